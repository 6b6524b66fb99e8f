// Package driver runs the outbound side of one avatar: a periodic loop
// that sends identity and trait packets inside a bandwidth-budgeted window
// and one avatar snapshot per tick, resuming truncated snapshots across
// ticks through the codec's send status.
package driver

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/vastspace/avatarwire/codec"
	"github.com/vastspace/avatarwire/internal/options"
	"github.com/vastspace/avatarwire/logger"
	"github.com/vastspace/avatarwire/packet"
	"github.com/vastspace/avatarwire/rate"
	"github.com/vastspace/avatarwire/traits"
)

// Avatar is the application state the driver publishes: the codec source
// plus the change predicates the send policy filters on.
type Avatar interface {
	codec.Source

	// ChangedSince reports which fields changed after the given time,
	// normally the previous send.
	ChangedSince(since time.Time) codec.ChangeFlags
}

// Transport carries the driver's three packet kinds to the mixer.
type Transport interface {
	traits.Transport

	// SendAvatarDataPacket prefixes a 16-bit sequence number and
	// broadcasts one snapshot payload, returning bytes handed to the
	// network.
	SendAvatarDataPacket(payload []byte) (int, error)

	// SendIdentityPacket broadcasts one identity payload to the active
	// avatar-mixer nodes.
	SendIdentityPacket(payload []byte) (int, error)
}

// Driver owns the outbound loop of one avatar. The last-sent joint vector
// and the send status are exclusively its state; nothing else mutates them.
type Driver struct {
	cfg       Config
	avatar    Avatar
	store     *traits.Store
	handler   traits.ClientHandler
	transport Transport

	encoder *codec.Encoder
	rates   *rate.AvatarRates
	log     *zap.SugaredLogger

	randFloat func() float64
	now       func() time.Time

	detail func() codec.DetailLevel

	onTraitsSent   func()
	onIdentitySent func()

	lastSentJoints   []packet.JointData
	status           packet.SendStatus
	lastSendTime     time.Time
	nextTraitsWindow time.Time
}

// Option configures a Driver.
type Option = options.Option[*Driver]

// WithDriverLogger replaces the driver's logger.
func WithDriverLogger(l *zap.SugaredLogger) Option {
	return options.NoError(func(d *Driver) { d.log = l })
}

// WithRandFloat replaces the randomness source behind the periodic full
// refresh. Tests pin it.
func WithRandFloat(fn func() float64) Option {
	return options.NoError(func(d *Driver) { d.randFloat = fn })
}

// WithClock replaces the driver's clock. Tests pin it.
func WithClock(fn func() time.Time) Option {
	return options.NoError(func(d *Driver) { d.now = fn })
}

// WithDetailPolicy replaces the per-tick detail level choice. The default
// always culls small changes.
func WithDetailPolicy(fn func() codec.DetailLevel) Option {
	return options.NoError(func(d *Driver) { d.detail = fn })
}

// WithTraitsSentCallback registers the hook fired after each trait flush.
func WithTraitsSentCallback(fn func()) Option {
	return options.NoError(func(d *Driver) { d.onTraitsSent = fn })
}

// WithIdentitySentCallback registers the hook fired after each identity
// send.
func WithIdentitySentCallback(fn func()) Option {
	return options.NoError(func(d *Driver) { d.onIdentitySent = fn })
}

// New creates a driver. handler may be nil when the avatar publishes no
// traits; rates may be nil to skip outbound metering.
func New(cfg Config, avatar Avatar, store *traits.Store, handler traits.ClientHandler,
	transport Transport, rates *rate.AvatarRates, opts ...Option) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Driver{
		cfg:       cfg,
		avatar:    avatar,
		store:     store,
		handler:   handler,
		transport: transport,
		rates:     rates,
		log:       logger.Log,
		randFloat: rand.Float64,
		now:       time.Now,
		detail:    func() codec.DetailLevel { return codec.CullSmallData },
	}
	if err := options.Apply(d, opts...); err != nil {
		return nil, err
	}

	var outbound *rate.Rates
	if rates != nil {
		outbound = rates.Outbound
	}
	d.encoder = codec.NewEncoder(avatar, outbound)

	return d, nil
}

// Run ticks the driver at the configured broadcast rate until ctx is
// canceled. Send errors are logged and the loop keeps going; transient
// transport failures are recovered by the next periodic full update.
func (d *Driver) Run(ctx context.Context) {
	interval := time.Second / time.Duration(d.cfg.BroadcastFramesPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.SendAll(d.detail()); err != nil {
				d.log.Warnw("avatar send failed", "error", err)
			}
		}
	}
}

// SendAll performs one driver tick: identity and traits when the budgeted
// window is open, then one snapshot. It returns the total bytes handed to
// the transport.
func (d *Driver) SendAll(detail codec.DetailLevel) (int, error) {
	now := d.now()
	bytesSent := 0

	if now.After(d.nextTraitsWindow) {
		n, err := d.sendTraits()
		bytesSent += n
		if err != nil {
			return bytesSent, err
		}

		// Space the next window to keep traits under the data-rate budget.
		maxBytesPerMillisecond := d.cfg.MaxTraitsDataRateMbps * 1000 * 1000 / 8 / 1000
		d.nextTraitsWindow = d.nextTraitsWindow.Add(
			time.Duration(bytesSent/maxBytesPerMillisecond) * time.Millisecond)
		if d.nextTraitsWindow.Before(now) {
			d.nextTraitsWindow = now
		}
	}

	n, err := d.sendAvatarData(detail, now)
	bytesSent += n

	return bytesSent, err
}

func (d *Driver) sendTraits() (int, error) {
	bytesSent := 0

	if d.store.IdentityDataChanged() {
		// A changed identity pushes the sequence forward; mixers forward
		// sequence numbers as received instead.
		d.store.PushIdentitySequenceNumber()
		n, err := d.transport.SendIdentityPacket(d.store.IdentityBytes())
		if err != nil {
			return bytesSent, err
		}
		bytesSent += n
		d.store.ClearIdentityChanged()
		if d.onIdentitySent != nil {
			d.onIdentitySent()
		}
	}

	if d.handler != nil {
		if d.store.TakeSkeletonModelURLChanged() {
			d.handler.MarkTraitUpdated(traits.SkeletonModelURL)
		}
		if d.store.TakeSkeletonDataChanged() {
			d.handler.MarkTraitUpdated(traits.SkeletonData)
		}

		n, err := d.handler.SendChangedTraitsToMixer()
		if err != nil {
			return bytesSent, err
		}
		bytesSent += n
		if d.onTraitsSent != nil {
			d.onTraitsSent()
		}
	}

	return bytesSent, nil
}

func (d *Driver) sendAvatarData(detail codec.DetailLevel, now time.Time) (int, error) {
	// About 2% of sends transmit everything even if nothing changed, so a
	// single lost packet cannot hide a change indefinitely.
	if d.randFloat() < d.cfg.FullUpdateRatio {
		detail = codec.SendAllData
	}

	changes := d.avatar.ChangedSince(d.lastSendTime)
	d.lastSendTime = now

	initFlags := codec.InitialFlags(d.avatar, detail, changes, false)

	payload, err := d.encoder.Encode(initFlags, detail, d.lastSentJoints, &d.status, codec.EncodeOptions{
		MaxSize: d.cfg.MaxAvatarDataSize,
	})
	if err != nil {
		return 0, err
	}

	d.lastSentJoints = codec.CommitSent(d.avatar, d.lastSentJoints, d.status, detail == codec.CullSmallData)

	return d.transport.SendAvatarDataPacket(payload)
}

// SendStatus returns the current continuation state, mainly for tests and
// diagnostics.
func (d *Driver) SendStatus() packet.SendStatus {
	return d.status
}
