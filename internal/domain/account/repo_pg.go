package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erx/erx/internal/platform/crypto"
	"github.com/erx/erx/internal/platform/db"
	"github.com/erx/erx/internal/platform/keys"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) RetrieveSalt(ctx context.Context, key SaltKey) (crypto.Salt, error) {
	var salt crypto.Salt
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT salt FROM erp.account WHERE account_id = $1 AND master_key_type = $2 AND blob_id = $3`,
		[]byte(key.AccountID), int16(key.MasterKeyType), int32(key.BlobID),
	).Scan(&salt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve account salt: %w", err)
	}
	return salt, nil
}

func (r *repoPG) InsertOrReturnSalt(ctx context.Context, key SaltKey, candidate crypto.Salt) (crypto.Salt, error) {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO erp.account (account_id, master_key_type, blob_id, salt)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (account_id, master_key_type, blob_id) DO NOTHING`,
		[]byte(key.AccountID), int16(key.MasterKeyType), int32(key.BlobID), []byte(candidate),
	)
	if err != nil {
		return nil, fmt.Errorf("insert account salt: %w", err)
	}

	// Re-select regardless of who won: the stored row is authoritative.
	salt, err := r.RetrieveSalt(ctx, key)
	if err != nil {
		return nil, err
	}
	if salt == nil {
		return nil, fmt.Errorf("account salt vanished after insert for key type %d", key.MasterKeyType)
	}
	return salt, nil
}

func (r *repoPG) RetrieveCmac(ctx context.Context, row CmacRow) (*CmacRow, error) {
	got := CmacRow{ValidDate: keys.ValidDay(row.ValidDate), Category: row.Category}
	var blobID int32
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT blob_id, salt, cmac FROM erp.vau_cmac WHERE valid_date = $1 AND category = $2`,
		got.ValidDate, string(got.Category),
	).Scan(&blobID, &got.Salt, &got.Wrapped)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve cmac key: %w", err)
	}
	got.BlobID = crypto.BlobID(blobID)
	return &got, nil
}

func (r *repoPG) InsertOrReturnCmac(ctx context.Context, row CmacRow) (*CmacRow, error) {
	row.ValidDate = keys.ValidDay(row.ValidDate)
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO erp.vau_cmac (valid_date, category, blob_id, salt, cmac)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (valid_date, category) DO NOTHING`,
		row.ValidDate, string(row.Category), int32(row.BlobID), []byte(row.Salt), []byte(row.Wrapped),
	)
	if err != nil {
		return nil, fmt.Errorf("insert cmac key: %w", err)
	}

	stored, err := r.RetrieveCmac(ctx, row)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("cmac key vanished after insert for %s/%s",
			row.Category, row.ValidDate.Format("2006-01-02"))
	}
	return stored, nil
}
