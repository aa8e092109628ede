// Package account is the key/blob registry: per-account salts bound to a
// master key generation, and the date-scoped CMAC keys used for
// pseudonymization. Both use the insert-or-return pattern so concurrent first
// writers converge on one authoritative row.
package account

import (
	"time"

	"github.com/erx/erx/internal/platform/crypto"
	"github.com/erx/erx/internal/platform/keys"
)

// SaltKey identifies one salt row: the pseudonymous account, the purpose the
// derived key serves and the master key generation protecting it.
type SaltKey struct {
	AccountID     crypto.HashedID
	MasterKeyType keys.MasterKeyType
	BlobID        crypto.BlobID
}

// CmacRow is one stored pseudonymization key. The key material is wrapped by
// a key derived from the HSM master identified by BlobID and Salt.
type CmacRow struct {
	ValidDate time.Time
	Category  keys.CmacCategory
	BlobID    crypto.BlobID
	Salt      crypto.Salt
	Wrapped   crypto.EncryptedBlob
}
