package traits

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vastspace/avatarwire/errs"
	"github.com/vastspace/avatarwire/spatial"
)

func sampleIdentity() Identity {
	return Identity{
		Attachments: []Attachment{{
			ModelURL:    "https://models.example/hat.fbx",
			JointName:   "Head",
			Translation: spatial.Vec3{X: 0, Y: 0.1, Z: 0},
			Rotation:    spatial.IdentityQuat(),
			Scale:       1.0,
			IsSoft:      false,
		}},
		DisplayName:        "Ada",
		SessionDisplayName: "Ada·3",
		Flags:              IdentityLookAtSnapping,
	}
}

func TestIdentity_RoundTrip(t *testing.T) {
	sessionID := uuid.New()
	identity := sampleIdentity()

	data := EncodeIdentity(sessionID, 41, identity)

	gotID, gotSeq, gotIdentity, err := DecodeIdentity(data)
	require.NoError(t, err)
	require.Equal(t, sessionID, gotID)
	require.EqualValues(t, 41, gotSeq)
	require.True(t, identity.Equal(gotIdentity))
}

func TestIdentity_NonASCIIDisplayName(t *testing.T) {
	identity := Identity{DisplayName: "アバター🙂"}

	data := EncodeIdentity(uuid.Nil, 0, identity)
	_, _, got, err := DecodeIdentity(data)
	require.NoError(t, err)
	require.Equal(t, identity.DisplayName, got.DisplayName)
}

func TestIdentity_Truncated(t *testing.T) {
	data := EncodeIdentity(uuid.New(), 7, sampleIdentity())

	for _, cut := range []int{0, 10, 17, len(data) - 2} {
		_, _, _, err := DecodeIdentity(data[:cut])
		require.ErrorIs(t, err, errs.ErrInvalidTraitPayload, "cut at %d", cut)
	}
}

func TestIdentity_HostileAttachmentCount(t *testing.T) {
	data := make([]byte, 0, 32)
	data = append(data, make([]byte, 16)...)      // session id
	data = wireOrder.AppendUint16(data, 1)        // sequence
	data = wireOrder.AppendUint16(data, 0xffff)   // absurd attachment count
	_, _, _, err := DecodeIdentity(data)
	require.ErrorIs(t, err, errs.ErrInvalidTraitPayload)
}

func TestStore_ProcessIdentity(t *testing.T) {
	t.Run("First identity always accepted", func(t *testing.T) {
		store, err := NewStore()
		require.NoError(t, err)

		identity := sampleIdentity()
		changed, nameChanged, err := store.ProcessIdentity(EncodeIdentity(uuid.New(), 5, identity))
		require.NoError(t, err)
		require.True(t, changed)
		require.True(t, nameChanged)
		require.EqualValues(t, 5, store.IdentitySequenceNumber())
	})

	t.Run("Stale sequence silently ignored", func(t *testing.T) {
		store, err := NewStore()
		require.NoError(t, err)
		peer := uuid.New()

		first := sampleIdentity()
		_, _, err = store.ProcessIdentity(EncodeIdentity(peer, 5, first))
		require.NoError(t, err)

		stale := first
		stale.DisplayName = "Impostor"
		changed, nameChanged, err := store.ProcessIdentity(EncodeIdentity(peer, 3, stale))
		require.NoError(t, err)
		require.False(t, changed)
		require.False(t, nameChanged)

		require.EqualValues(t, 5, store.IdentitySequenceNumber())
		require.Equal(t, "Ada", store.Identity().DisplayName)
	})

	t.Run("Equal sequence is stale", func(t *testing.T) {
		store, err := NewStore()
		require.NoError(t, err)
		peer := uuid.New()

		_, _, err = store.ProcessIdentity(EncodeIdentity(peer, 9, sampleIdentity()))
		require.NoError(t, err)

		changed, _, err := store.ProcessIdentity(EncodeIdentity(peer, 9, Identity{DisplayName: "Other"}))
		require.NoError(t, err)
		require.False(t, changed)
	})

	t.Run("Wrap-safe advance", func(t *testing.T) {
		store, err := NewStore()
		require.NoError(t, err)
		peer := uuid.New()

		_, _, err = store.ProcessIdentity(EncodeIdentity(peer, 0xfffe, sampleIdentity()))
		require.NoError(t, err)

		// Sequence 2 is ahead of 0xfffe under wrap-around arithmetic.
		changed, _, err := store.ProcessIdentity(EncodeIdentity(peer, 2, Identity{DisplayName: "Wrapped"}))
		require.NoError(t, err)
		require.True(t, changed)
		require.Equal(t, "Wrapped", store.Identity().DisplayName)
	})

	t.Run("Unchanged values advance sequence without flags", func(t *testing.T) {
		store, err := NewStore()
		require.NoError(t, err)
		peer := uuid.New()
		identity := sampleIdentity()

		_, _, err = store.ProcessIdentity(EncodeIdentity(peer, 1, identity))
		require.NoError(t, err)

		changed, nameChanged, err := store.ProcessIdentity(EncodeIdentity(peer, 2, identity))
		require.NoError(t, err)
		require.False(t, changed)
		require.False(t, nameChanged)
		require.EqualValues(t, 2, store.IdentitySequenceNumber())
	})
}

func TestSequence_After(t *testing.T) {
	require.True(t, Sequence(1).After(0))
	require.False(t, Sequence(0).After(1))
	require.False(t, Sequence(5).After(5))
	require.True(t, Sequence(2).After(0xfffe), "wraps")
	require.False(t, Sequence(0xfffe).After(2))
}

func TestStore_IdentityOutbound(t *testing.T) {
	store, err := NewStore()
	require.NoError(t, err)

	sessionID := uuid.New()
	store.SetSessionID(sessionID)

	require.False(t, store.IdentityDataChanged())
	store.SetIdentity(sampleIdentity())
	require.True(t, store.IdentityDataChanged())

	// Setting the same values again does not re-mark after a clear.
	store.ClearIdentityChanged()
	store.SetIdentity(sampleIdentity())
	require.False(t, store.IdentityDataChanged())

	store.PushIdentitySequenceNumber()
	data := store.IdentityBytes()

	gotID, gotSeq, gotIdentity, err := DecodeIdentity(data)
	require.NoError(t, err)
	require.Equal(t, sessionID, gotID)
	require.EqualValues(t, 1, gotSeq)
	require.True(t, sampleIdentity().Equal(gotIdentity))
}
