// Package keys implements the key-derivation side of the persistence scheme:
// deterministic pseudonymization of plaintext identifiers with date-scoped
// CMAC keys, and per-entity symmetric key derivation through the HSM boundary.
package keys

import (
	"context"
	"regexp"
	"time"

	"github.com/erx/erx/internal/platform/crypto"
)

// CmacCategory scopes a pseudonymization key to one class of identifiers.
type CmacCategory string

const (
	// CategoryUser pseudonymizes insurant and representative identifiers.
	CategoryUser CmacCategory = "user"
	// CategoryTelematik pseudonymizes pharmacy/provider identifiers.
	CategoryTelematik CmacCategory = "telematik"
)

// MasterKeyType selects which account-salt namespace a derived key belongs to.
// Task keys are not listed: the per-task salt lives on the task row itself.
type MasterKeyType int16

const (
	MasterKeyMedicationDispense MasterKeyType = 1
	MasterKeyCommunication      MasterKeyType = 2
	MasterKeyAuditEvent         MasterKeyType = 3
	MasterKeyChargeItem         MasterKeyType = 4
)

// CmacKey is a category- and date-scoped AES-128 pseudonymization key.
type CmacKey []byte

// Hash computes the deterministic pseudonym of plaintext under the key.
func (k CmacKey) Hash(plaintext []byte) (crypto.HashedID, error) {
	tag, err := crypto.CMAC(k, plaintext)
	if err != nil {
		return nil, err
	}
	return crypto.HashedID(tag), nil
}

// CmacSource produces (or looks up) the CMAC key for a (date, category) pair.
// The database-backed implementation mints a key on first use with a
// conflict-safe insert so concurrent first users agree on one key.
type CmacSource interface {
	AcquireCmac(ctx context.Context, validDate time.Time, category CmacCategory) (CmacKey, error)
}

var kvnrPattern = regexp.MustCompile(`^[A-Z][0-9]{9}$`)

// IsKvnr reports whether identity has the shape of an insurant identifier.
// Anything else is treated as a telematik id.
func IsKvnr(identity string) bool {
	return kvnrPattern.MatchString(identity)
}

// ValidDay truncates t to the calendar day the pseudonymization key is
// scoped to.
func ValidDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
