package backend

import (
	"errors"

	"github.com/erx/erx/internal/platform/crypto"
	"github.com/erx/erx/internal/platform/hsm"
	"github.com/erx/erx/internal/platform/search"
)

// The error taxonomy callers test with errors.Is. Failures originating in
// lower layers surface here under the same identities, so callers never need
// to import the platform packages for error matching.
var (
	// ErrNotFound means no row existed for the requested id or lock.
	// Retrievals report a missing row as a nil result, not an error; this
	// sentinel is for the request layer above, which maps nil to it when a
	// flow requires the row to exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a uniqueness rule was violated, e.g. a second charge
	// item for the same prescription.
	ErrConflict = errors.New("conflict")

	// ErrInvalidArgument means a malformed search predicate or paging value.
	ErrInvalidArgument = search.ErrInvalidArgument

	// ErrDecryptionFailed means ciphertext and key material do not match.
	// Never retried.
	ErrDecryptionFailed = crypto.ErrDecryptionFailed

	// ErrKeyUnavailable means the HSM boundary cannot produce key material
	// for the requested generation or date.
	ErrKeyUnavailable = hsm.ErrKeyUnavailable

	// ErrHsmUnavailable means the HSM boundary could not be reached at all.
	ErrHsmUnavailable = hsm.ErrUnavailable

	// ErrPreconditionViolated means a state transition was attempted from an
	// invalid status, or a secret/access-code check failed. Like ErrNotFound
	// it is produced by the request layer, not by this package: status and
	// secret checks happen on decrypted fields above the persistence
	// boundary. Callers map both to the same uniform rejection so a prober
	// cannot tell "wrong id" from "wrong secret".
	ErrPreconditionViolated = errors.New("precondition violated")
)
