package traits

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vastspace/avatarwire/errs"
	"github.com/vastspace/avatarwire/internal/hash"
	"github.com/vastspace/avatarwire/internal/options"
	"github.com/vastspace/avatarwire/logger"
	"github.com/vastspace/avatarwire/spatial"
)

// Store holds one avatar's slow-changing state. It serves both directions:
// the local avatar packs traits out of it, a remote avatar's processor
// writes traits into it.
//
// Entities, grabs, the skeleton, and the identity record are guarded by
// separate reader-writer locks so decode and send paths touching different
// subcollections never contend.
type Store struct {
	log *zap.SugaredLogger

	handler       ClientHandler
	onGrabRemoved func(uuid.UUID)

	entityCap int
	grabCap   int

	entitiesLock sync.RWMutex
	entities     map[uuid.UUID][]byte
	entityHashes map[uuid.UUID]uint64
	removed      map[uuid.UUID]struct{}

	grabsLock  sync.RWMutex
	grabs      map[uuid.UUID][]byte
	grabHashes map[uuid.UUID]uint64

	skeletonLock       sync.RWMutex
	skeleton           []SkeletonJoint
	skeletonModelURL   []byte
	skeletonChanged    bool
	skeletonURLChanged bool

	identityLock              sync.RWMutex
	sessionID                 uuid.UUID
	identity                  Identity
	identitySeq               Sequence
	identityChanged           bool
	hasProcessedFirstIdentity bool
}

// StoreOption configures a Store.
type StoreOption = options.Option[*Store]

// WithLogger replaces the store's logger.
func WithLogger(l *zap.SugaredLogger) StoreOption {
	return options.NoError(func(s *Store) { s.log = l })
}

// WithClientHandler attaches the client traits handler that relays local
// changes to the mixer.
func WithClientHandler(h ClientHandler) StoreOption {
	return options.NoError(func(s *Store) { s.handler = h })
}

// WithGrabRemovedCallback registers the callback fired when a grab is
// released or deleted.
func WithGrabRemovedCallback(fn func(uuid.UUID)) StoreOption {
	return options.NoError(func(s *Store) { s.onGrabRemoved = fn })
}

// WithEntityCap overrides MaxNumAvatarEntities.
func WithEntityCap(n int) StoreOption {
	return options.New(func(s *Store) error {
		if n <= 0 {
			return fmt.Errorf("entity cap must be positive, got %d", n)
		}
		s.entityCap = n
		return nil
	})
}

// WithGrabCap overrides MaxNumAvatarGrabs.
func WithGrabCap(n int) StoreOption {
	return options.New(func(s *Store) error {
		if n <= 0 {
			return fmt.Errorf("grab cap must be positive, got %d", n)
		}
		s.grabCap = n
		return nil
	})
}

// NewStore creates an empty trait store.
func NewStore(opts ...StoreOption) (*Store, error) {
	s := &Store{
		log:          logger.Log,
		entityCap:    MaxNumAvatarEntities,
		grabCap:      MaxNumAvatarGrabs,
		entities:     make(map[uuid.UUID][]byte),
		entityHashes: make(map[uuid.UUID]uint64),
		removed:      make(map[uuid.UUID]struct{}),
		grabs:        make(map[uuid.UUID][]byte),
		grabHashes:   make(map[uuid.UUID]uint64),
	}
	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}

	return s, nil
}

// SetClientHandler attaches (or detaches, with nil) the client traits
// handler after construction.
func (s *Store) SetClientHandler(h ClientHandler) {
	s.handler = h
}

// SetSessionID records the transport-assigned session id used in identity
// packets and grab ownership.
func (s *Store) SetSessionID(id uuid.UUID) {
	s.identityLock.Lock()
	defer s.identityLock.Unlock()
	s.sessionID = id
}

// SessionID returns the recorded session id.
func (s *Store) SessionID() uuid.UUID {
	s.identityLock.RLock()
	defer s.identityLock.RUnlock()

	return s.sessionID
}

// PackTrait serializes a whole-object trait: the skeleton model URL or the
// packed skeleton data.
func (s *Store) PackTrait(t TraitType) ([]byte, error) {
	switch t {
	case SkeletonModelURL:
		s.skeletonLock.RLock()
		defer s.skeletonLock.RUnlock()
		url := make([]byte, len(s.skeletonModelURL))
		copy(url, s.skeletonModelURL)

		return url, nil
	case SkeletonData:
		s.skeletonLock.RLock()
		defer s.skeletonLock.RUnlock()

		return PackSkeleton(s.skeleton)
	default:
		return nil, fmt.Errorf("pack trait %v: %w", t, errs.ErrInvalidTraitPayload)
	}
}

// PackTraitInstance serializes one instanced trait payload. A missing id
// yields an empty payload.
func (s *Store) PackTraitInstance(t TraitType, id uuid.UUID) ([]byte, error) {
	switch t {
	case AvatarEntity:
		s.entitiesLock.RLock()
		defer s.entitiesLock.RUnlock()

		return cloneBytes(s.entities[id]), nil
	case Grab:
		s.grabsLock.RLock()
		defer s.grabsLock.RUnlock()

		return cloneBytes(s.grabs[id]), nil
	default:
		return nil, fmt.Errorf("pack trait instance %v: %w", t, errs.ErrInvalidTraitPayload)
	}
}

// ProcessTrait applies a received whole-object trait.
func (s *Store) ProcessTrait(t TraitType, data []byte) error {
	switch t {
	case SkeletonModelURL:
		s.skeletonLock.Lock()
		defer s.skeletonLock.Unlock()
		s.skeletonModelURL = cloneBytes(data)

		return nil
	case SkeletonData:
		joints, err := UnpackSkeleton(data)
		if err != nil {
			return err
		}
		s.skeletonLock.Lock()
		defer s.skeletonLock.Unlock()
		s.skeleton = joints

		return nil
	default:
		return fmt.Errorf("process trait %v: %w", t, errs.ErrInvalidTraitPayload)
	}
}

// ProcessTraitInstance applies a received instanced trait payload. Updating
// an id previously deleted revives it: the delete mark is cleared.
func (s *Store) ProcessTraitInstance(t TraitType, id uuid.UUID, data []byte) error {
	switch t {
	case AvatarEntity:
		s.StoreEntity(id, data)
		return nil
	case Grab:
		s.UpdateGrab(id, data)
		return nil
	default:
		return fmt.Errorf("process trait instance %v: %w", t, errs.ErrInvalidTraitPayload)
	}
}

// ProcessDeletedTraitInstance applies a received instance deletion.
func (s *Store) ProcessDeletedTraitInstance(t TraitType, id uuid.UUID) error {
	switch t {
	case AvatarEntity:
		s.ClearEntity(id)
		return nil
	case Grab:
		s.clearGrab(id)
		return nil
	default:
		return fmt.Errorf("process deleted trait instance %v: %w", t, errs.ErrInvalidTraitPayload)
	}
}

// StoreEntity inserts or replaces an entity payload. Inserts past the cap
// are dropped with a warning; replacing with identical bytes is a no-op.
// Any change clears a pending delete mark and notifies the client handler.
func (s *Store) StoreEntity(id uuid.UUID, data []byte) {
	fp := hash.Fingerprint(data)

	changed := false
	s.entitiesLock.Lock()
	if _, exists := s.entities[id]; !exists {
		if len(s.entities) >= s.entityCap {
			s.entitiesLock.Unlock()
			s.log.Warnw("dropping avatar entity, limit reached", "entity", id, "cap", s.entityCap)

			return
		}
		s.entities[id] = cloneBytes(data)
		s.entityHashes[id] = fp
		changed = true
	} else if s.entityHashes[id] != fp {
		s.entities[id] = cloneBytes(data)
		s.entityHashes[id] = fp
		changed = true
	}
	if changed {
		// An update revives a deleted id.
		delete(s.removed, id)
	}
	s.entitiesLock.Unlock()

	if changed && s.handler != nil {
		s.handler.MarkInstancedTraitUpdated(AvatarEntity, id)
	}
}

// ClearEntity removes an entity payload, records the id in the
// recently-removed set, and notifies the client handler. Clearing an absent
// id still records the removal, and clearing twice is the same as once.
func (s *Store) ClearEntity(id uuid.UUID) {
	s.entitiesLock.Lock()
	_, existed := s.entities[id]
	delete(s.entities, id)
	delete(s.entityHashes, id)
	s.removed[id] = struct{}{}
	s.entitiesLock.Unlock()

	if existed && s.handler != nil {
		s.handler.MarkInstancedTraitDeleted(AvatarEntity, id)
	}
}

// EntityIDs returns the ids of every held entity.
func (s *Store) EntityIDs() []uuid.UUID {
	s.entitiesLock.RLock()
	defer s.entitiesLock.RUnlock()

	ids := make([]uuid.UUID, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}

	return ids
}

// TakeRecentlyRemoved atomically reads and clears the recently-removed
// entity id set.
func (s *Store) TakeRecentlyRemoved() map[uuid.UUID]struct{} {
	s.entitiesLock.Lock()
	defer s.entitiesLock.Unlock()

	taken := s.removed
	s.removed = make(map[uuid.UUID]struct{})

	return taken
}

// UpdateGrab inserts or replaces a grab payload and reports whether stored
// state changed. Inserts past the cap are dropped with a warning.
func (s *Store) UpdateGrab(id uuid.UUID, data []byte) bool {
	fp := hash.Fingerprint(data)

	changed := false
	s.grabsLock.Lock()
	if _, exists := s.grabs[id]; !exists {
		if len(s.grabs) >= s.grabCap {
			s.grabsLock.Unlock()
			s.log.Warnw("cannot create more grabs on avatar, limit reached", "grab", id, "cap", s.grabCap)

			return false
		}
		s.grabs[id] = cloneBytes(data)
		s.grabHashes[id] = fp
		changed = true
	} else if s.grabHashes[id] != fp {
		s.grabs[id] = cloneBytes(data)
		s.grabHashes[id] = fp
		changed = true
	}
	s.grabsLock.Unlock()

	return changed
}

// Grab creates a grab of targetID from the given parent joint, stores its
// payload under a fresh instance id, and marks it for the mixer. It returns
// the grab id.
func (s *Store) Grab(targetID uuid.UUID, parentJointIndex int16, hand Hand,
	positionalOffset spatial.Vec3, rotationalOffset spatial.Quat) uuid.UUID {
	grabID := uuid.New()

	data := EncodeGrab(GrabData{
		OwnerID:          s.SessionID(),
		TargetID:         targetID,
		ParentJointIndex: parentJointIndex,
		Hand:             hand,
		PositionalOffset: positionalOffset,
		RotationalOffset: rotationalOffset,
	})

	if s.UpdateGrab(grabID, data) && s.handler != nil {
		s.handler.MarkInstancedTraitUpdated(Grab, grabID)
	}

	return grabID
}

// ReleaseGrab removes a grab, fires the grab-removed callback, and marks
// the deletion for the mixer.
func (s *Store) ReleaseGrab(grabID uuid.UUID) {
	s.grabsLock.Lock()
	_, existed := s.grabs[grabID]
	delete(s.grabs, grabID)
	delete(s.grabHashes, grabID)
	s.grabsLock.Unlock()

	if !existed {
		return
	}
	if s.onGrabRemoved != nil {
		s.onGrabRemoved(grabID)
	}
	if s.handler != nil {
		s.handler.MarkInstancedTraitDeleted(Grab, grabID)
	}
}

func (s *Store) clearGrab(grabID uuid.UUID) {
	s.grabsLock.Lock()
	_, existed := s.grabs[grabID]
	delete(s.grabs, grabID)
	delete(s.grabHashes, grabID)
	s.grabsLock.Unlock()

	if existed && s.onGrabRemoved != nil {
		s.onGrabRemoved(grabID)
	}
}

// GrabIDs returns the ids of every held grab.
func (s *Store) GrabIDs() []uuid.UUID {
	s.grabsLock.RLock()
	defer s.grabsLock.RUnlock()

	ids := make([]uuid.UUID, 0, len(s.grabs))
	for id := range s.grabs {
		ids = append(ids, id)
	}

	return ids
}

// PrepareResetTraitInstances re-marks every held instance trait updated,
// used after the mixer connection resets and all state must flow again.
func (s *Store) PrepareResetTraitInstances() {
	if s.handler == nil {
		return
	}

	for _, id := range s.EntityIDs() {
		s.handler.MarkInstancedTraitUpdated(AvatarEntity, id)
	}
	for _, id := range s.GrabIDs() {
		s.handler.MarkInstancedTraitUpdated(Grab, id)
	}
}

// SetSkeleton replaces the skeleton definition and marks it changed.
func (s *Store) SetSkeleton(joints []SkeletonJoint) {
	s.skeletonLock.Lock()
	defer s.skeletonLock.Unlock()
	s.skeleton = joints
	s.skeletonChanged = true
}

// Skeleton returns the current skeleton definition.
func (s *Store) Skeleton() []SkeletonJoint {
	s.skeletonLock.RLock()
	defer s.skeletonLock.RUnlock()

	return s.skeleton
}

// SetSkeletonModelURL replaces the skeleton model URL and marks it changed.
func (s *Store) SetSkeletonModelURL(url []byte) {
	s.skeletonLock.Lock()
	defer s.skeletonLock.Unlock()
	s.skeletonModelURL = cloneBytes(url)
	s.skeletonURLChanged = true
}

// SkeletonModelURL returns the current skeleton model URL.
func (s *Store) SkeletonModelURL() []byte {
	s.skeletonLock.RLock()
	defer s.skeletonLock.RUnlock()

	return cloneBytes(s.skeletonModelURL)
}

// TakeSkeletonDataChanged reads and clears the skeleton-changed mark.
func (s *Store) TakeSkeletonDataChanged() bool {
	s.skeletonLock.Lock()
	defer s.skeletonLock.Unlock()
	changed := s.skeletonChanged
	s.skeletonChanged = false

	return changed
}

// TakeSkeletonModelURLChanged reads and clears the URL-changed mark.
func (s *Store) TakeSkeletonModelURLChanged() bool {
	s.skeletonLock.Lock()
	defer s.skeletonLock.Unlock()
	changed := s.skeletonURLChanged
	s.skeletonURLChanged = false

	return changed
}

// SetIdentity replaces the identity record, marking it changed when the
// values differ.
func (s *Store) SetIdentity(identity Identity) {
	s.identityLock.Lock()
	defer s.identityLock.Unlock()
	if s.identity.Equal(identity) {
		return
	}
	s.identity = identity
	s.identityChanged = true
}

// Identity returns the current identity record.
func (s *Store) Identity() Identity {
	s.identityLock.RLock()
	defer s.identityLock.RUnlock()

	return s.identity
}

// IdentityDataChanged reports whether the identity record changed since the
// last ClearIdentityChanged.
func (s *Store) IdentityDataChanged() bool {
	s.identityLock.RLock()
	defer s.identityLock.RUnlock()

	return s.identityChanged
}

// ClearIdentityChanged clears the identity-changed mark after a successful
// identity send.
func (s *Store) ClearIdentityChanged() {
	s.identityLock.Lock()
	defer s.identityLock.Unlock()
	s.identityChanged = false
}

// IdentitySequenceNumber returns the current identity sequence number.
func (s *Store) IdentitySequenceNumber() Sequence {
	s.identityLock.RLock()
	defer s.identityLock.RUnlock()

	return s.identitySeq
}

// PushIdentitySequenceNumber advances the identity sequence. Agents push it
// before sending a changed identity; mixers forward sequence numbers as
// received instead.
func (s *Store) PushIdentitySequenceNumber() {
	s.identityLock.Lock()
	defer s.identityLock.Unlock()
	s.identitySeq++
}

// IdentityBytes serializes the identity packet payload for this avatar.
func (s *Store) IdentityBytes() []byte {
	s.identityLock.RLock()
	defer s.identityLock.RUnlock()

	return EncodeIdentity(s.sessionID, s.identitySeq, s.identity)
}

// ProcessIdentity applies a received identity packet. The first packet for
// a peer is always accepted; afterwards only packets whose sequence number
// advances (wrap-safe) replace the stored record. Stale packets are
// silently ignored with both change flags false.
func (s *Store) ProcessIdentity(data []byte) (identityChanged, displayNameChanged bool, err error) {
	_, seq, incoming, err := DecodeIdentity(data)
	if err != nil {
		return false, false, err
	}

	s.identityLock.Lock()
	defer s.identityLock.Unlock()

	if !s.hasProcessedFirstIdentity {
		s.identitySeq = seq - 1
		s.hasProcessedFirstIdentity = true
	}

	if !seq.After(s.identitySeq) {
		return false, false, nil
	}

	s.identitySeq = seq
	identityChanged = !s.identity.Equal(incoming)
	displayNameChanged = s.identity.DisplayName != incoming.DisplayName
	s.identity = incoming

	return identityChanged, displayNameChanged, nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)

	return c
}
