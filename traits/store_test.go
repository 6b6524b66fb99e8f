package traits

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vastspace/avatarwire/spatial"
)

// recordingHandler captures client-handler marks.
type recordingHandler struct {
	updated   []TraitType
	instanced []string
}

func (h *recordingHandler) MarkTraitUpdated(t TraitType) {
	h.updated = append(h.updated, t)
}

func (h *recordingHandler) MarkInstancedTraitUpdated(t TraitType, id uuid.UUID) {
	h.instanced = append(h.instanced, fmt.Sprintf("update:%v:%s", t, id))
}

func (h *recordingHandler) MarkInstancedTraitDeleted(t TraitType, id uuid.UUID) {
	h.instanced = append(h.instanced, fmt.Sprintf("delete:%v:%s", t, id))
}

func (h *recordingHandler) SendChangedTraitsToMixer() (int, error) { return 0, nil }

func TestStore_Entities(t *testing.T) {
	t.Run("Insert replace and no-op", func(t *testing.T) {
		handler := &recordingHandler{}
		store, err := NewStore(WithClientHandler(handler))
		require.NoError(t, err)

		id := uuid.New()
		store.StoreEntity(id, []byte("payload-1"))
		require.Len(t, handler.instanced, 1)

		// Same bytes: no change, no mark.
		store.StoreEntity(id, []byte("payload-1"))
		require.Len(t, handler.instanced, 1)

		store.StoreEntity(id, []byte("payload-2"))
		require.Len(t, handler.instanced, 2)

		data, err := store.PackTraitInstance(AvatarEntity, id)
		require.NoError(t, err)
		require.Equal(t, []byte("payload-2"), data)
	})

	t.Run("Cap drops silently", func(t *testing.T) {
		store, err := NewStore(WithEntityCap(2))
		require.NoError(t, err)

		a, b, c := uuid.New(), uuid.New(), uuid.New()
		store.StoreEntity(a, []byte("a"))
		store.StoreEntity(b, []byte("b"))
		store.StoreEntity(c, []byte("c"))

		require.Len(t, store.EntityIDs(), 2)
		data, err := store.PackTraitInstance(AvatarEntity, c)
		require.NoError(t, err)
		require.Empty(t, data)

		// Replacing an existing entity still works at the cap.
		store.StoreEntity(a, []byte("a2"))
		data, err = store.PackTraitInstance(AvatarEntity, a)
		require.NoError(t, err)
		require.Equal(t, []byte("a2"), data)
	})

	t.Run("Clear records removal and double clear is idempotent", func(t *testing.T) {
		store, err := NewStore()
		require.NoError(t, err)

		id := uuid.New()
		store.StoreEntity(id, []byte("x"))
		store.ClearEntity(id)
		store.ClearEntity(id)

		removed := store.TakeRecentlyRemoved()
		require.Len(t, removed, 1)
		require.Contains(t, removed, id)

		// The take cleared the set.
		require.Empty(t, store.TakeRecentlyRemoved())
	})

	t.Run("Update revives a deleted id", func(t *testing.T) {
		store, err := NewStore()
		require.NoError(t, err)

		id := uuid.New()
		store.StoreEntity(id, []byte("x"))
		store.ClearEntity(id)
		store.StoreEntity(id, []byte("y"))

		require.Empty(t, store.TakeRecentlyRemoved(), "revival clears the delete mark")
		data, err := store.PackTraitInstance(AvatarEntity, id)
		require.NoError(t, err)
		require.Equal(t, []byte("y"), data)
	})
}

func TestStore_Grabs(t *testing.T) {
	t.Run("Update reports change", func(t *testing.T) {
		store, err := NewStore()
		require.NoError(t, err)

		id := uuid.New()
		require.True(t, store.UpdateGrab(id, []byte("g1")))
		require.False(t, store.UpdateGrab(id, []byte("g1")))
		require.True(t, store.UpdateGrab(id, []byte("g2")))
	})

	t.Run("Cap enforced", func(t *testing.T) {
		store, err := NewStore(WithGrabCap(1))
		require.NoError(t, err)

		require.True(t, store.UpdateGrab(uuid.New(), []byte("g")))
		require.False(t, store.UpdateGrab(uuid.New(), []byte("h")))
		require.Len(t, store.GrabIDs(), 1)
	})

	t.Run("Grab and release round trip", func(t *testing.T) {
		var removedIDs []uuid.UUID
		handler := &recordingHandler{}
		store, err := NewStore(
			WithClientHandler(handler),
			WithGrabRemovedCallback(func(id uuid.UUID) { removedIDs = append(removedIDs, id) }),
		)
		require.NoError(t, err)
		store.SetSessionID(uuid.New())

		target := uuid.New()
		grabID := store.Grab(target, 3, HandRight, spatial.Vec3{X: 0.1}, spatial.IdentityQuat())

		payload, err := store.PackTraitInstance(Grab, grabID)
		require.NoError(t, err)

		decoded, err := DecodeGrab(payload)
		require.NoError(t, err)
		require.Equal(t, store.SessionID(), decoded.OwnerID)
		require.Equal(t, target, decoded.TargetID)
		require.EqualValues(t, 3, decoded.ParentJointIndex)
		require.Equal(t, HandRight, decoded.Hand)
		require.Equal(t, spatial.Vec3{X: 0.1}, decoded.PositionalOffset)

		store.ReleaseGrab(grabID)
		require.Equal(t, []uuid.UUID{grabID}, removedIDs)
		require.Empty(t, store.GrabIDs())

		// Releasing again neither fires the callback nor marks anything.
		marks := len(handler.instanced)
		store.ReleaseGrab(grabID)
		require.Equal(t, []uuid.UUID{grabID}, removedIDs)
		require.Len(t, handler.instanced, marks)
	})
}

func TestStore_PrepareResetTraitInstances(t *testing.T) {
	handler := &recordingHandler{}
	store, err := NewStore(WithClientHandler(handler))
	require.NoError(t, err)

	store.StoreEntity(uuid.New(), []byte("e"))
	require.True(t, store.UpdateGrab(uuid.New(), []byte("g")))

	before := len(handler.instanced)
	store.PrepareResetTraitInstances()
	require.Len(t, handler.instanced, before+2)
}

func TestStore_SkeletonChangeMarks(t *testing.T) {
	store, err := NewStore()
	require.NoError(t, err)

	require.False(t, store.TakeSkeletonDataChanged())

	store.SetSkeleton(sampleSkeleton())
	require.True(t, store.TakeSkeletonDataChanged())
	require.False(t, store.TakeSkeletonDataChanged(), "take clears the mark")

	store.SetSkeletonModelURL([]byte("https://models.example/avatar.fst"))
	require.True(t, store.TakeSkeletonModelURLChanged())
	require.Equal(t, []byte("https://models.example/avatar.fst"), store.SkeletonModelURL())
}
