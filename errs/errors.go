// Package errs defines the sentinel error values shared across avatarwire
// packages. Callers are expected to match them with errors.Is after any
// wrapping applied by higher layers.
package errs

import "errors"

var (
	// ErrPacketTooSmall indicates a section flag was set but the remaining
	// buffer cannot hold the section.
	ErrPacketTooSmall = errors.New("avatar data packet too small")

	// ErrInvalidFloat indicates a decoded float was NaN where a finite value
	// is required (positions, look-at, scale, loudness).
	ErrInvalidFloat = errors.New("invalid float in avatar data packet")

	// ErrTooManyBlendshapes indicates a face tracker section with more than
	// 255 blendshape coefficients.
	ErrTooManyBlendshapes = errors.New("too many blendshape coefficients")

	// ErrTooManyJoints indicates a joint set larger than the wire format's
	// one-byte joint count can carry.
	ErrTooManyJoints = errors.New("too many joints for wire format")

	// ErrCapacityExceeded indicates an instanced trait insert past its cap.
	ErrCapacityExceeded = errors.New("instanced trait capacity exceeded")

	// ErrStaleSequence indicates an identity packet with a sequence number
	// at or behind the stored one.
	ErrStaleSequence = errors.New("stale identity sequence number")

	// ErrInvalidTraitPayload indicates a trait payload that is too short or
	// internally inconsistent to decode.
	ErrInvalidTraitPayload = errors.New("invalid trait payload")

	// ErrInvalidStringTable indicates skeleton joint name offsets that fall
	// outside the encoded string table.
	ErrInvalidStringTable = errors.New("invalid skeleton string table")

	// ErrUnknownCompression indicates a trait framing byte that names no
	// registered compression codec.
	ErrUnknownCompression = errors.New("unknown compression codec")

	// ErrUnknownRateName indicates a rate query for a name that has no meter.
	ErrUnknownRateName = errors.New("unknown rate meter name")
)
