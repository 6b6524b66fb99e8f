package traits

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vastspace/avatarwire/compress"
	"github.com/vastspace/avatarwire/errs"
	"github.com/vastspace/avatarwire/format"
	"github.com/vastspace/avatarwire/internal/pool"
	"github.com/vastspace/avatarwire/logger"
)

// Transport carries framed trait messages to the mixer.
type Transport interface {
	// SendTraitsPacket broadcasts one framed trait message and returns the
	// number of bytes handed to the network.
	SendTraitsPacket(payload []byte) (int, error)
}

// Trait message framing. The message opens with one compression codec byte;
// each frame then carries the trait type, a per-type version, the instance
// id for instanced traits, a payload size, and the compressed payload.
// Instanced frames use a signed size where -1 marks a deletion.
const deletedTraitSize = -1

// Sender is the client traits handler: it accumulates updated/deleted marks
// from the Store and flushes them to the mixer as framed, versioned trait
// messages.
type Sender struct {
	store     *Store
	transport Transport
	codecType format.CompressionType
	codec     compress.Codec
	log       *zap.SugaredLogger

	mu               sync.Mutex
	simpleUpdated    [TotalTraitTypes]bool
	instancedUpdated map[TraitType]map[uuid.UUID]bool // true = updated, false = deleted
	versions         [TotalTraitTypes]uint32
}

var _ ClientHandler = (*Sender)(nil)

// NewSender creates a trait sender flushing through transport with the
// given payload compression.
func NewSender(store *Store, transport Transport, codecType format.CompressionType) (*Sender, error) {
	codec, err := compress.ByType(codecType)
	if err != nil {
		return nil, err
	}

	return &Sender{
		store:            store,
		transport:        transport,
		codecType:        codecType,
		codec:            codec,
		log:              logger.Log,
		instancedUpdated: make(map[TraitType]map[uuid.UUID]bool),
	}, nil
}

// MarkTraitUpdated queues a whole-object trait for the next flush.
func (s *Sender) MarkTraitUpdated(t TraitType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(t) < len(s.simpleUpdated) {
		s.simpleUpdated[t] = true
	}
}

// MarkInstancedTraitUpdated queues one trait instance for the next flush.
// An update supersedes a queued deletion of the same id.
func (s *Sender) MarkInstancedTraitUpdated(t TraitType, id uuid.UUID) {
	s.markInstanced(t, id, true)
}

// MarkInstancedTraitDeleted queues one trait instance deletion for the next
// flush. A deletion supersedes a queued update of the same id.
func (s *Sender) MarkInstancedTraitDeleted(t TraitType, id uuid.UUID) {
	s.markInstanced(t, id, false)
}

func (s *Sender) markInstanced(t TraitType, id uuid.UUID, updated bool) {
	if !t.Instanced() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.instancedUpdated[t]
	if m == nil {
		m = make(map[uuid.UUID]bool)
		s.instancedUpdated[t] = m
	}
	m[id] = updated
}

// SendChangedTraitsToMixer flushes every queued trait in one framed
// message: whole-object traits first, then instance updates, then instance
// deletions. It returns the number of bytes sent; with nothing queued it
// sends nothing.
func (s *Sender) SendChangedTraitsToMixer() (int, error) {
	s.mu.Lock()
	simple := s.simpleUpdated
	s.simpleUpdated = [TotalTraitTypes]bool{}
	instanced := s.instancedUpdated
	s.instancedUpdated = make(map[TraitType]map[uuid.UUID]bool)

	anything := false
	for t := range simple {
		anything = anything || simple[t]
	}
	for _, m := range instanced {
		anything = anything || len(m) > 0
	}
	if !anything {
		s.mu.Unlock()
		return 0, nil
	}

	buf := pool.GetTraitBuffer()
	defer pool.PutTraitBuffer(buf)

	_ = buf.WriteByte(byte(s.codecType))

	var firstErr error
	for t := TraitType(0); t < TotalTraitTypes; t++ {
		if !simple[t] {
			continue
		}
		if err := s.appendSimpleFrame(buf, t); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	// Updates before deletions, so a revived id is never dropped by a
	// stale deletion landing after its update.
	for t, m := range instanced {
		for id, updated := range m {
			if !updated {
				continue
			}
			if err := s.appendInstancedFrame(buf, t, id); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	for t, m := range instanced {
		for id, updated := range m {
			if updated {
				continue
			}
			s.versions[t]++
			s.appendInstancedHeader(buf, t, id)
			appendInt16(buf, deletedTraitSize)
		}
	}
	s.mu.Unlock()

	if firstErr != nil {
		return 0, firstErr
	}

	// The buffer must not travel through the transport while any store
	// lock is held; all packing above works on copies.
	return s.transport.SendTraitsPacket(buf.Bytes())
}

func (s *Sender) appendSimpleFrame(buf *pool.ByteBuffer, t TraitType) error {
	payload, err := s.store.PackTrait(t)
	if err != nil {
		return err
	}
	compressed, err := s.codec.Compress(payload)
	if err != nil {
		return fmt.Errorf("compress %v trait: %w", t, err)
	}
	if len(compressed) > 0xffff {
		return fmt.Errorf("%v trait payload %d bytes: %w", t, len(compressed), errs.ErrInvalidTraitPayload)
	}

	s.versions[t]++
	_ = buf.WriteByte(byte(t))
	buf.B = wireOrder.AppendUint32(buf.B, s.versions[t])
	buf.B = wireOrder.AppendUint16(buf.B, uint16(len(compressed)))
	buf.MustWrite(compressed)

	return nil
}

func (s *Sender) appendInstancedFrame(buf *pool.ByteBuffer, t TraitType, id uuid.UUID) error {
	payload, err := s.store.PackTraitInstance(t, id)
	if err != nil {
		return err
	}
	compressed, err := s.codec.Compress(payload)
	if err != nil {
		return fmt.Errorf("compress %v trait instance: %w", t, err)
	}
	if len(compressed) > 0x7fff {
		return fmt.Errorf("%v trait instance payload %d bytes: %w", t, len(compressed), errs.ErrInvalidTraitPayload)
	}

	s.versions[t]++
	s.appendInstancedHeader(buf, t, id)
	appendInt16(buf, int16(len(compressed)))
	buf.MustWrite(compressed)

	return nil
}

func (s *Sender) appendInstancedHeader(buf *pool.ByteBuffer, t TraitType, id uuid.UUID) {
	_ = buf.WriteByte(byte(t))
	buf.B = wireOrder.AppendUint32(buf.B, s.versions[t])
	buf.MustWrite(id[:])
}

func appendInt16(buf *pool.ByteBuffer, v int16) {
	buf.B = wireOrder.AppendUint16(buf.B, uint16(v))
}
