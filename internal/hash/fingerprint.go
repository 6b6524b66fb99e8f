// Package hash provides payload fingerprints for trait change detection.
// Comparing a stored 64-bit fingerprint is cheaper than comparing the
// payload bytes under the store's write lock.
package hash

import "github.com/cespare/xxhash/v2"

// Fingerprint computes the xxHash64 of the given payload.
func Fingerprint(data []byte) uint64 {
	return xxhash.Sum64(data)
}
