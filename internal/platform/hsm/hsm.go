// Package hsm models the hardware security module boundary. The core never
// talks to key hardware directly; it consumes this narrow capability
// interface, which keeps every component unit-testable with a software
// stand-in.
package hsm

import (
	"errors"

	"github.com/erx/erx/internal/platform/crypto"
)

// ErrUnavailable means the HSM boundary could not serve the request at all.
var ErrUnavailable = errors.New("hsm unavailable")

// ErrKeyUnavailable means the HSM cannot produce key material for the
// requested generation or category.
var ErrKeyUnavailable = errors.New("key unavailable")

// Client is the capability the core consumes from the HSM boundary.
type Client interface {
	// RandomBytes returns n cryptographically secure random bytes.
	RandomBytes(n int) ([]byte, error)

	// DeriveKey derives a 32-byte symmetric key from the master key
	// identified by blobID, the per-record salt and a caller-chosen
	// derivation context. Deterministic for fixed inputs.
	DeriveKey(blobID crypto.BlobID, salt crypto.Salt, context []byte) ([]byte, error)

	// CurrentBlobID returns the master-key generation to use for new writes.
	// Older generations stay derivable until explicitly retired.
	CurrentBlobID() crypto.BlobID
}
