package driver

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/vastspace/avatarwire/codec"
	"github.com/vastspace/avatarwire/format"
	"github.com/vastspace/avatarwire/packet"
	"github.com/vastspace/avatarwire/rate"
	"github.com/vastspace/avatarwire/spatial"
	"github.com/vastspace/avatarwire/traits"
)

// fakeAvatar is a minimal publishable avatar.
type fakeAvatar struct {
	position spatial.Vec3
	joints   []packet.JointData
	changes  codec.ChangeFlags
}

func (a *fakeAvatar) SessionUUIDOut() uuid.UUID          { return uuid.Nil }
func (a *fakeAvatar) GlobalPositionOut() spatial.Vec3    { return a.position }
func (a *fakeAvatar) BoundingBoxOut() packet.BoundingBox { return packet.BoundingBox{} }
func (a *fakeAvatar) OrientationOut() spatial.Quat       { return spatial.IdentityQuat() }
func (a *fakeAvatar) ScaleOut() float32                  { return 1 }
func (a *fakeAvatar) LookAtPositionOut() spatial.Vec3    { return spatial.Vec3{} }
func (a *fakeAvatar) AudioLoudnessOut() float32          { return 0 }
func (a *fakeAvatar) SensorToWorldMatrixOut() packet.SensorToWorld {
	return packet.SensorToWorld{Rotation: spatial.IdentityQuat(), Scale: 1}
}
func (a *fakeAvatar) AdditionalFlagsOut() packet.StateFlags      { return packet.StateFlags{} }
func (a *fakeAvatar) ParentInfoOut() packet.ParentInfo           { return packet.ParentInfo{} }
func (a *fakeAvatar) LocalPositionOut() spatial.Vec3             { return spatial.Vec3{} }
func (a *fakeAvatar) HandControllersOut() packet.HandControllers { return packet.HandControllers{} }
func (a *fakeAvatar) HandControllerCachesValidOut() (bool, bool) { return false, false }
func (a *fakeAvatar) FaceTrackerInfoOut() packet.FaceTrackerInfo { return packet.FaceTrackerInfo{} }
func (a *fakeAvatar) JointDataSizeOut() int                      { return len(a.joints) }
func (a *fakeAvatar) JointDataOut(i int) packet.JointData        { return a.joints[i] }
func (a *fakeAvatar) FarGrabJointsOut() packet.FarGrabJoints     { return packet.FarGrabJoints{} }
func (a *fakeAvatar) FarGrabCachesValidOut() (bool, bool, bool)  { return false, false, false }
func (a *fakeAvatar) ChangedSince(time.Time) codec.ChangeFlags   { return a.changes }

// fakeTransport records every packet kind.
type fakeTransport struct {
	avatarPackets   [][]byte
	identityPackets [][]byte
	traitPackets    int
}

func (f *fakeTransport) SendAvatarDataPacket(payload []byte) (int, error) {
	copied := make([]byte, len(payload))
	copy(copied, payload)
	f.avatarPackets = append(f.avatarPackets, copied)

	return len(payload) + 2, nil // transport adds the sequence prefix
}

func (f *fakeTransport) SendIdentityPacket(payload []byte) (int, error) {
	copied := make([]byte, len(payload))
	copy(copied, payload)
	f.identityPackets = append(f.identityPackets, copied)

	return len(payload), nil
}

func (f *fakeTransport) SendTraitsPacket(payload []byte) (int, error) {
	f.traitPackets++
	return len(payload), nil
}

func newDriverFixture(t *testing.T, avatar *fakeAvatar) (*Driver, *traits.Store, *fakeTransport, *time.Time) {
	t.Helper()

	store, err := traits.NewStore()
	require.NoError(t, err)

	transport := &fakeTransport{}
	sender, err := traits.NewSender(store, transport, format.CompressionNone)
	require.NoError(t, err)
	store.SetClientHandler(sender)

	now := time.Unix(1700000000, 0)
	drv, err := New(DefaultConfig(), avatar, store, sender, transport, rate.NewAvatarRates(),
		WithClock(func() time.Time { return now }),
		WithRandFloat(func() float64 { return 0.5 }), // never force a full update
	)
	require.NoError(t, err)

	return drv, store, transport, &now
}

func TestDriver_SendAll(t *testing.T) {
	avatar := &fakeAvatar{position: spatial.Vec3{X: 1, Y: 2, Z: 3}}
	drv, store, transport, now := newDriverFixture(t, avatar)

	t.Run("Identity goes out when changed", func(t *testing.T) {
		store.SetIdentity(traits.Identity{DisplayName: "Ada"})

		sent, err := drv.SendAll(codec.CullSmallData)
		require.NoError(t, err)
		require.Positive(t, sent)

		require.Len(t, transport.identityPackets, 1)
		require.Len(t, transport.avatarPackets, 1)
		require.EqualValues(t, 1, store.IdentitySequenceNumber())

		_, seq, identity, err := traits.DecodeIdentity(transport.identityPackets[0])
		require.NoError(t, err)
		require.EqualValues(t, 1, seq)
		require.Equal(t, "Ada", identity.DisplayName)
	})

	t.Run("Unchanged identity stays quiet", func(t *testing.T) {
		*now = now.Add(20 * time.Millisecond)

		_, err := drv.SendAll(codec.CullSmallData)
		require.NoError(t, err)

		require.Len(t, transport.identityPackets, 1, "no identity resend")
		require.Len(t, transport.avatarPackets, 2, "snapshot every tick")
		require.EqualValues(t, 1, store.IdentitySequenceNumber())
	})

	t.Run("Snapshot carries the global position", func(t *testing.T) {
		payload := transport.avatarPackets[0]
		mask := packet.HasFlags(uint16(payload[0]) | uint16(payload[1])<<8)
		require.True(t, mask.Has(packet.HasAvatarGlobalPosition))
	})
}

func TestDriver_ForcedFullUpdate(t *testing.T) {
	avatar := &fakeAvatar{joints: []packet.JointData{{Rotation: spatial.Quat{X: 0.5, W: 0.866}}}}

	store, err := traits.NewStore()
	require.NoError(t, err)
	transport := &fakeTransport{}

	now := time.Unix(1700000000, 0)
	drv, err := New(DefaultConfig(), avatar, store, nil, transport, nil,
		WithClock(func() time.Time { return now }),
		WithRandFloat(func() float64 { return 0.0 }), // always below the ratio
	)
	require.NoError(t, err)

	// Nothing changed, yet the forced full update sends the joint stream.
	_, err = drv.SendAll(codec.CullSmallData)
	require.NoError(t, err)
	require.Len(t, transport.avatarPackets, 1)

	mask := packet.HasFlags(uint16(transport.avatarPackets[0][0]) | uint16(transport.avatarPackets[0][1])<<8)
	require.True(t, mask.Has(packet.HasJointData))
	require.True(t, mask.Has(packet.HasAvatarOrientation))
}

func TestDriver_TraitsWindow(t *testing.T) {
	avatar := &fakeAvatar{}
	drv, store, transport, now := newDriverFixture(t, avatar)

	store.SetSkeleton([]traits.SkeletonJoint{{
		BoneType:        traits.SkeletonRoot,
		ParentIndex:     -1,
		DefaultRotation: spatial.IdentityQuat(),
		DefaultScale:    1,
		Name:            "Hips",
	}})

	_, err := drv.SendAll(codec.CullSmallData)
	require.NoError(t, err)
	require.Equal(t, 1, transport.traitPackets, "skeleton flushed on the first window")

	*now = now.Add(20 * time.Millisecond)
	_, err = drv.SendAll(codec.CullSmallData)
	require.NoError(t, err)
	require.Equal(t, 1, transport.traitPackets, "nothing marked, nothing sent")
}

func TestDriver_StatusResumesAcrossTicks(t *testing.T) {
	avatar := &fakeAvatar{joints: make([]packet.JointData, 100)}
	for i := range avatar.joints {
		avatar.joints[i].Rotation = spatial.Quat{X: 0.1 * float32(i%7), W: 1}.Normalize()
	}

	store, err := traits.NewStore()
	require.NoError(t, err)
	transport := &fakeTransport{}

	cfg := DefaultConfig()
	cfg.MaxAvatarDataSize = 128

	now := time.Unix(1700000000, 0)
	drv, err := New(cfg, avatar, store, nil, transport, nil,
		WithClock(func() time.Time { return now }),
		WithRandFloat(func() float64 { return 0.0 }), // force send-all so everything is pending
	)
	require.NoError(t, err)

	_, err = drv.SendAll(codec.CullSmallData)
	require.NoError(t, err)
	require.NotZero(t, drv.SendStatus().ItemFlags, "128 bytes cannot carry 100 joints")

	for i := 0; i < 200; i++ {
		now = now.Add(20 * time.Millisecond)
		_, err = drv.SendAll(codec.CullSmallData)
		require.NoError(t, err)
		if drv.SendStatus().ItemFlags == 0 {
			break
		}
	}
	require.Zero(t, drv.SendStatus().ItemFlags, "residual never drained")
}

func TestConfig(t *testing.T) {
	t.Run("Default validates", func(t *testing.T) {
		require.NoError(t, DefaultConfig().Validate())
	})

	t.Run("Rejects bad values", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.BroadcastFramesPerSecond = 0
		require.Error(t, cfg.Validate())

		cfg = DefaultConfig()
		cfg.MaxAvatarDataSize = 4
		require.Error(t, cfg.Validate())

		cfg = DefaultConfig()
		cfg.FullUpdateRatio = 2
		require.Error(t, cfg.Validate())

		cfg = DefaultConfig()
		cfg.TraitCompression = "brotli"
		require.Error(t, cfg.Validate())
	})

	t.Run("LoadConfig merges defaults", func(t *testing.T) {
		v := viper.New()
		v.Set("avatar.broadcast_frames_per_second", 30)

		cfg, err := LoadConfig(v)
		require.NoError(t, err)
		require.Equal(t, 30, cfg.BroadcastFramesPerSecond)
		require.Equal(t, DefaultMaxAvatarDataSize, cfg.MaxAvatarDataSize)
		require.Equal(t, "zstd", cfg.TraitCompression)
	})

	t.Run("Compression type resolves", func(t *testing.T) {
		cfg := DefaultConfig()
		ct, err := cfg.TraitCompressionType()
		require.NoError(t, err)
		require.Equal(t, format.CompressionZstd, ct)
	})
}
