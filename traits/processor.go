package traits

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/vastspace/avatarwire/compress"
	"github.com/vastspace/avatarwire/errs"
	"github.com/vastspace/avatarwire/format"
)

// Processor applies received trait messages to a store, deduplicating by
// the per-trait versions the sender stamps on every frame. One processor
// serves one remote avatar.
type Processor struct {
	store *Store

	simpleVersions    [TotalTraitTypes]uint32
	instancedVersions map[instanceKey]uint32
}

type instanceKey struct {
	trait TraitType
	id    uuid.UUID
}

// NewProcessor creates a processor writing into store.
func NewProcessor(store *Store) *Processor {
	return &Processor{
		store:             store,
		instancedVersions: make(map[instanceKey]uint32),
	}
}

// ProcessPacket parses one framed trait message and applies every frame
// whose version advances past the last seen one; stale frames are skipped
// silently. Parsing stops at the first malformed frame.
func (p *Processor) ProcessPacket(data []byte) error {
	if len(data) < 1 {
		return fmt.Errorf("trait message: empty: %w", errs.ErrInvalidTraitPayload)
	}

	codecType := format.CompressionType(data[0])
	codec, err := compress.ByType(codecType)
	if err != nil {
		return err
	}

	r := reader{data: data, off: 1}
	for r.remaining() > 0 {
		t := TraitType(r.uint8())
		version := r.uint32()

		if t.Instanced() {
			var id uuid.UUID
			r.bytes(id[:])
			size := int16(r.uint16())

			if size == deletedTraitSize {
				if r.failed {
					break
				}
				if !p.advanceInstanced(t, id, version) {
					continue
				}
				if err := p.store.ProcessDeletedTraitInstance(t, id); err != nil {
					return err
				}

				continue
			}

			payload := r.take(int(size))
			if r.failed {
				break
			}
			if !p.advanceInstanced(t, id, version) {
				continue
			}
			decoded, err := codec.Decompress(payload)
			if err != nil {
				return fmt.Errorf("decompress %v trait instance: %w", t, err)
			}
			if err := p.store.ProcessTraitInstance(t, id, decoded); err != nil {
				return err
			}

			continue
		}

		size := int(r.uint16())
		payload := r.take(size)
		if r.failed {
			break
		}
		if t >= TotalTraitTypes || !versionAfter(version, p.simpleVersions[t]) {
			continue
		}
		p.simpleVersions[t] = version

		decoded, err := codec.Decompress(payload)
		if err != nil {
			return fmt.Errorf("decompress %v trait: %w", t, err)
		}
		if err := p.store.ProcessTrait(t, decoded); err != nil {
			return err
		}
	}

	if r.failed {
		return fmt.Errorf("trait message truncated at offset %d: %w", r.off, errs.ErrInvalidTraitPayload)
	}

	return nil
}

func (p *Processor) advanceInstanced(t TraitType, id uuid.UUID, version uint32) bool {
	key := instanceKey{trait: t, id: id}
	if last, seen := p.instancedVersions[key]; seen && !versionAfter(version, last) {
		return false
	}
	p.instancedVersions[key] = version

	return true
}

// versionAfter reports whether a is ahead of b under wrap-around
// arithmetic.
func versionAfter(a, b uint32) bool {
	return int32(a-b) > 0
}
