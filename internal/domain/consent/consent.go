// Package consent persists the charge-item processing opt-in: at most one
// row per insurant. Absence of the row means "no consent".
package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erx/erx/internal/platform/crypto"
	"github.com/erx/erx/internal/platform/db"
)

// ErrAlreadyGiven means consent was already stored for the insurant.
var ErrAlreadyGiven = errors.New("consent already given")

type Repository interface {
	// StoreConsent records the opt-in with its creation time. Storing twice
	// fails with ErrAlreadyGiven.
	StoreConsent(ctx context.Context, kvnrHashed crypto.HashedKvnr, createdAt time.Time) error

	// RetrieveConsentDateTime returns the opt-in time, or nil when the
	// insurant never consented.
	RetrieveConsentDateTime(ctx context.Context, kvnrHashed crypto.HashedKvnr) (*time.Time, error)

	// ClearConsent deletes the row and reports whether one existed. Callers
	// must follow up with the charge item and communication cascades in the
	// same transaction.
	ClearConsent(ctx context.Context, kvnrHashed crypto.HashedKvnr) (bool, error)
}

const uniqueViolation = "23505"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) StoreConsent(ctx context.Context, kvnrHashed crypto.HashedKvnr, createdAt time.Time) error {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO erp.consent (kvnr_hashed, date_time) VALUES ($1, $2)`,
		[]byte(kvnrHashed), createdAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrAlreadyGiven
	}
	if err != nil {
		return fmt.Errorf("store consent: %w", err)
	}
	return nil
}

func (r *repoPG) RetrieveConsentDateTime(ctx context.Context, kvnrHashed crypto.HashedKvnr) (*time.Time, error) {
	var dateTime time.Time
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT date_time FROM erp.consent WHERE kvnr_hashed = $1`, []byte(kvnrHashed)).Scan(&dateTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve consent: %w", err)
	}
	dateTime = dateTime.UTC()
	return &dateTime, nil
}

func (r *repoPG) ClearConsent(ctx context.Context, kvnrHashed crypto.HashedKvnr) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM erp.consent WHERE kvnr_hashed = $1`, []byte(kvnrHashed))
	if err != nil {
		return false, fmt.Errorf("clear consent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
