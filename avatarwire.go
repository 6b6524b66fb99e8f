// Package avatarwire implements the avatar state synchronization codec
// used between clients and an avatar-mixer service in a realtime
// multi-user 3D environment.
//
// Each participant continuously publishes a compact binary snapshot of its
// pose, head, hands, joints, and attached entities; the mixer rebroadcasts
// snapshots to interested peers. Slow-changing state (skeleton, identity,
// entities, grabs) travels separately as sequence-numbered traits.
//
// # Core Features
//
//   - Stateful snapshot codec with a leading section bitmask and strict
//     per-field byte budgets
//   - Resumable encoding across packet boundaries through an explicit
//     send-status continuation
//   - Change-filtered send policy with distance-based joint thresholds
//   - Lossy fixed-point quantization that round-trips bit-exactly across
//     platforms
//   - Concurrent trait store with monotonic sequence numbers and
//     per-instance update/delete marks
//   - Per-section byte and update rate meters, exportable to Prometheus
//
// # Basic Usage
//
// Publishing the local avatar (src implements codec.Source plus the
// driver's change predicates):
//
//	store, _ := traits.NewStore()
//	sender, _ := traits.NewSender(store, transport, format.CompressionZstd)
//	store.SetClientHandler(sender)
//
//	drv, _ := driver.New(driver.DefaultConfig(), src, store, sender, transport, nil)
//	go drv.Run(ctx)
//
// Consuming a remote avatar (sink implements codec.Sink):
//
//	decoder := avatarwire.NewDecoder(sink)
//	parsed := decoder.Decode(payload)
//
// # Package Structure
//
// The wire layout lives in packet, the primitive codecs in quant, the
// frame codec and send policy in codec, slow-changing state in traits, and
// the outbound loop in driver. This package provides thin constructors for
// the common cases.
package avatarwire

import (
	"github.com/vastspace/avatarwire/codec"
	"github.com/vastspace/avatarwire/rate"
	"github.com/vastspace/avatarwire/traits"
)

// NewEncoder creates a snapshot encoder reading from src with outbound
// metering into rates (which may be nil).
func NewEncoder(src codec.Source, rates *rate.Rates) *codec.Encoder {
	return codec.NewEncoder(src, rates)
}

// NewDecoder creates a snapshot decoder feeding sink, with a fresh inbound
// meter set.
func NewDecoder(sink codec.Sink) *codec.Decoder {
	return codec.NewDecoder(sink)
}

// NewStore creates an empty trait store.
func NewStore(opts ...traits.StoreOption) (*traits.Store, error) {
	return traits.NewStore(opts...)
}
