// Package traits implements the slow-changing side of avatar state: the
// skeleton definition, the identity record, and the per-instance entity and
// grab payloads, together with the sequence-numbered wire formats that
// carry them between client and mixer.
//
// The Store is the only cross-thread shared mutable state in the module;
// each subcollection is guarded by its own reader-writer lock and no lock
// is ever held across a transport send.
package traits

import "github.com/google/uuid"

// TraitType identifies one trait on the wire.
type TraitType uint8

const (
	// SkeletonModelURL is the whole-object skeleton model URL trait.
	SkeletonModelURL TraitType = iota
	// SkeletonData is the whole-object packed skeleton trait.
	SkeletonData
	// AvatarEntity is the instanced entity payload trait.
	AvatarEntity
	// Grab is the instanced grab payload trait.
	Grab
	// TotalTraitTypes bounds the trait type space.
	TotalTraitTypes
)

// Instanced reports whether the trait is addressed by a per-instance id.
func (t TraitType) Instanced() bool {
	return t == AvatarEntity || t == Grab
}

// String returns the wire name of the trait.
func (t TraitType) String() string {
	switch t {
	case SkeletonModelURL:
		return "skeletonModelURL"
	case SkeletonData:
		return "skeletonData"
	case AvatarEntity:
		return "avatarEntity"
	case Grab:
		return "grab"
	default:
		return "unknown"
	}
}

// Instance trait caps. Inserts beyond these are dropped with a warning.
const (
	MaxNumAvatarEntities = 42
	MaxNumAvatarGrabs    = 6
)

// Sequence is a wrap-safe 16-bit sequence number. Identity packets carry
// one; peers ignore packets whose sequence does not advance.
type Sequence uint16

// After reports whether s is ahead of other under wrap-around arithmetic.
func (s Sequence) After(other Sequence) bool {
	return int16(s-other) > 0
}

// ClientHandler is the optional client traits handler notified when local
// trait state changes so the changed traits reach the mixer on the next
// send window.
type ClientHandler interface {
	MarkTraitUpdated(t TraitType)
	MarkInstancedTraitUpdated(t TraitType, id uuid.UUID)
	MarkInstancedTraitDeleted(t TraitType, id uuid.UUID)
	// SendChangedTraitsToMixer flushes every marked trait and returns the
	// number of bytes handed to the transport.
	SendChangedTraitsToMixer() (int, error)
}
