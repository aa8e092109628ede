package account

import (
	"context"

	"github.com/erx/erx/internal/platform/crypto"
)

// Repository is the relational side of the key/blob registry.
type Repository interface {
	// RetrieveSalt returns the stored salt for the key, or nil when absent.
	RetrieveSalt(ctx context.Context, key SaltKey) (crypto.Salt, error)

	// InsertOrReturnSalt tries to persist candidate for the key. The returned
	// salt is the authoritative one: the candidate when this caller won the
	// race, the pre-existing salt otherwise. Callers must derive their
	// encryption key from the returned value, never from the candidate.
	InsertOrReturnSalt(ctx context.Context, key SaltKey, candidate crypto.Salt) (crypto.Salt, error)

	// RetrieveCmac returns the stored CMAC row, or nil when absent.
	RetrieveCmac(ctx context.Context, row CmacRow) (*CmacRow, error)

	// InsertOrReturnCmac tries to persist row. The returned row is the
	// authoritative one, following the same rule as InsertOrReturnSalt.
	InsertOrReturnCmac(ctx context.Context, row CmacRow) (*CmacRow, error)
}
