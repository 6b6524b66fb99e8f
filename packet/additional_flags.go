package packet

// KeyState is the 2-bit keyboard state carried in ADDITIONAL_FLAGS.
type KeyState uint8

const (
	NoKeyDown KeyState = iota
	InsertKeyDown
	DeleteKeyDown
)

// ADDITIONAL_FLAGS bit positions. The hand state is an octal split across
// a semi-nibble and a separate finger-pointing bit to preserve the legacy
// layout.
const (
	keyStateStartBit               = 0 // 2 bits
	handStateStartBit              = 2 // 2 bits
	hasScriptedBlendshapesBit      = 4
	hasProceduralEyeMovementBit    = 5
	hasReferentialBit              = 6
	handStateFingerPointingBit     = 7
	audioEnabledFaceMovementBit    = 8
	proceduralEyeFaceMovementBit   = 9
	proceduralBlinkFaceMovementBit = 10
	collideWithOtherAvatarsBit     = 11
	hasHeroPriorityBit             = 12
)

// IsFingerPointingFlag is the third hand-state bit, stored apart from the
// low two bits.
const IsFingerPointingFlag = 4

// StateFlags is the decoded form of the ADDITIONAL_FLAGS section.
// HasReferential is derived from the parent id on encode and is therefore
// not part of this struct.
type StateFlags struct {
	KeyState                       KeyState
	HandState                      uint8
	HasScriptedBlendshapes         bool
	HasProceduralEyeMovement       bool
	HasAudioEnabledFaceMovement    bool
	HasProceduralEyeFaceMovement   bool
	HasProceduralBlinkFaceMovement bool
	CollideWithOtherAvatars        bool
	HasPriority                    bool
}

// PackAdditionalFlags folds s into the 16-bit wire form. hasReferential is
// supplied by the encoder from the parent info section.
func PackAdditionalFlags(s StateFlags, hasReferential bool) uint16 {
	var flags uint16

	setSemiNibble(&flags, keyStateStartBit, uint8(s.KeyState))

	setSemiNibble(&flags, handStateStartBit, s.HandState&^IsFingerPointingFlag)
	if s.HandState&IsFingerPointingFlag != 0 {
		flags |= 1 << handStateFingerPointingBit
	}

	if s.HasScriptedBlendshapes {
		flags |= 1 << hasScriptedBlendshapesBit
	}
	if s.HasProceduralEyeMovement {
		flags |= 1 << hasProceduralEyeMovementBit
	}
	if hasReferential {
		flags |= 1 << hasReferentialBit
	}
	if s.HasAudioEnabledFaceMovement {
		flags |= 1 << audioEnabledFaceMovementBit
	}
	if s.HasProceduralEyeFaceMovement {
		flags |= 1 << proceduralEyeFaceMovementBit
	}
	if s.HasProceduralBlinkFaceMovement {
		flags |= 1 << proceduralBlinkFaceMovementBit
	}
	if s.CollideWithOtherAvatars {
		flags |= 1 << collideWithOtherAvatarsBit
	}
	if s.HasPriority {
		flags |= 1 << hasHeroPriorityBit
	}

	return flags
}

// UnpackAdditionalFlags decodes the 16-bit wire form. The second return
// value is the referential bit.
func UnpackAdditionalFlags(flags uint16) (StateFlags, bool) {
	s := StateFlags{
		KeyState:  KeyState(semiNibble(flags, keyStateStartBit)),
		HandState: semiNibble(flags, handStateStartBit),
	}
	if flags&(1<<handStateFingerPointingBit) != 0 {
		s.HandState |= IsFingerPointingFlag
	}

	s.HasScriptedBlendshapes = flags&(1<<hasScriptedBlendshapesBit) != 0
	s.HasProceduralEyeMovement = flags&(1<<hasProceduralEyeMovementBit) != 0
	s.HasAudioEnabledFaceMovement = flags&(1<<audioEnabledFaceMovementBit) != 0
	s.HasProceduralEyeFaceMovement = flags&(1<<proceduralEyeFaceMovementBit) != 0
	s.HasProceduralBlinkFaceMovement = flags&(1<<proceduralBlinkFaceMovementBit) != 0
	s.CollideWithOtherAvatars = flags&(1<<collideWithOtherAvatarsBit) != 0
	s.HasPriority = flags&(1<<hasHeroPriorityBit) != 0

	return s, flags&(1<<hasReferentialBit) != 0
}

func setSemiNibble(flags *uint16, bit int, value uint8) {
	*flags |= uint16(value&0x3) << bit
}

func semiNibble(flags uint16, bit int) uint8 {
	return uint8(flags>>bit) & 0x3
}
