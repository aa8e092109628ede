package crypto

import "encoding/hex"

// BlobID identifies the master-key generation that protects a Salt. Records
// keep the BlobID they were written with; rotating the master key only changes
// the generation used for new writes.
type BlobID uint32

// SaltLength is the size of freshly drawn salts.
const SaltLength = 32

// Salt is the per-record (or per-account) random value combined with the
// BlobID-selected master key to derive an encryption key. Immutable once
// persisted.
type Salt []byte

// EncryptedBlob is the ciphertext of a sensitive field, opaque to the store.
// It is only meaningful together with the (BlobID, Salt) pair recorded next
// to it.
type EncryptedBlob []byte

// HashedID is the deterministic, non-reversible pseudonym of a plaintext
// identifier. It is used exclusively as an index and search key.
type HashedID []byte

// HashedKvnr is the pseudonym of a patient insurance identifier.
type HashedKvnr = HashedID

// HashedTelematikID is the pseudonym of a pharmacy/provider identifier.
type HashedTelematikID = HashedID

// Hex returns the lower-case hex encoding, used in canonical search links.
func (h HashedID) Hex() string { return hex.EncodeToString(h) }

// Equal reports whether two pseudonyms are byte-identical.
func (h HashedID) Equal(other HashedID) bool {
	if len(h) != len(other) {
		return false
	}
	for i := range h {
		if h[i] != other[i] {
			return false
		}
	}
	return true
}
