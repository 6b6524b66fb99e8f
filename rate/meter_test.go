package rate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func withFakeClock(t *testing.T) func(d time.Duration) {
	t.Helper()

	now := time.Unix(1700000000, 0)
	nowFunc = func() time.Time { return now }
	t.Cleanup(func() { nowFunc = time.Now })

	return func(d time.Duration) { now = now.Add(d) }
}

func TestMeter_Rate(t *testing.T) {
	advance := withFakeClock(t)

	var m Meter
	require.Zero(t, m.Rate(), "first query primes the window")

	m.Increment(1024)
	m.Increment(1024)

	advance(2 * time.Second)
	require.InDelta(t, 1024.0, m.Rate(), 0.01)

	// Mid-window queries report the previous window.
	m.Increment(4096)
	advance(100 * time.Millisecond)
	require.InDelta(t, 1024.0, m.Rate(), 0.01)

	advance(900 * time.Millisecond)
	require.InDelta(t, 4096.0, m.Rate(), 0.01)
}

func TestRates_Names(t *testing.T) {
	r := NewRates()

	section, err := r.Section("jointData")
	require.NoError(t, err)
	require.Same(t, &r.JointData, section)

	_, err = r.Section("bogus")
	require.Error(t, err)

	total, err := r.Section("")
	require.NoError(t, err)
	require.Same(t, &r.Buffer, total)

	require.Len(t, r.Names(), 16)
}

func TestRates_DataRateUnits(t *testing.T) {
	advance := withFakeClock(t)

	r := NewRates()
	_, err := r.DataRate("globalPosition")
	require.NoError(t, err)

	r.GlobalPosition.Bytes.Increment(2048)
	advance(time.Second)

	kib, err := r.DataRate("globalPosition")
	require.NoError(t, err)
	require.InDelta(t, 2.0, kib, 0.01)
}

func TestAvatarRates_OutboundSuffix(t *testing.T) {
	advance := withFakeClock(t)

	a := NewAvatarRates()
	a.Outbound.JointData.Bytes.Increment(1024)
	a.Inbound.JointData.Bytes.Increment(4096)

	// Prime both windows.
	_, _ = a.DataRate("jointDataOutbound")
	_, _ = a.DataRate("jointData")
	advance(time.Second)

	out, err := a.DataRate("jointDataOutbound")
	require.NoError(t, err)
	require.InDelta(t, 1.0, out, 0.01)

	in, err := a.DataRate("jointData")
	require.NoError(t, err)
	require.InDelta(t, 4.0, in, 0.01)
}

func TestAverage(t *testing.T) {
	advance := withFakeClock(t)

	var a Average
	a.Update(100)
	require.Zero(t, a.SampleValuePerSecond(), "single sample has no interval")

	advance(time.Second)
	a.Update(100)
	require.InDelta(t, 1.0, a.EventDelta(), 0.01)
	require.Greater(t, a.SampleValuePerSecond(), 0.0)
}
