package account

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/erx/erx/internal/platform/crypto"
	"github.com/erx/erx/internal/platform/hsm"
	"github.com/erx/erx/internal/platform/keys"
)

const cmacKeyLength = 16

// CmacStore is the database-backed keys.CmacSource. Key material is stored
// wrapped under a key derived from the current HSM master, so a database dump
// alone never yields a usable pseudonymization key. First use of a
// (date, category) pair mints a key; concurrent first users converge on the
// stored row through the insert-or-return pattern.
type CmacStore struct {
	repo Repository
	hsm  hsm.Client
	log  zerolog.Logger
}

func NewCmacStore(repo Repository, client hsm.Client, log zerolog.Logger) *CmacStore {
	return &CmacStore{repo: repo, hsm: client, log: log}
}

func (s *CmacStore) AcquireCmac(ctx context.Context, validDate time.Time, category keys.CmacCategory) (keys.CmacKey, error) {
	day := keys.ValidDay(validDate)

	row, err := s.repo.RetrieveCmac(ctx, CmacRow{ValidDate: day, Category: category})
	if err != nil {
		return nil, err
	}
	if row != nil {
		return s.unwrap(row)
	}

	candidate, err := s.mint(day, category)
	if err != nil {
		return nil, err
	}

	stored, err := s.repo.InsertOrReturnCmac(ctx, *candidate)
	if err != nil {
		return nil, err
	}
	s.log.Info().
		Str("category", string(category)).
		Str("valid_date", day.Format("2006-01-02")).
		Msg("pseudonymization key acquired")

	return s.unwrap(stored)
}

func (s *CmacStore) mint(day time.Time, category keys.CmacCategory) (*CmacRow, error) {
	material, err := s.hsm.RandomBytes(cmacKeyLength)
	if err != nil {
		return nil, fmt.Errorf("mint cmac key: %w", err)
	}
	salt, err := s.hsm.RandomBytes(crypto.SaltLength)
	if err != nil {
		return nil, fmt.Errorf("mint cmac salt: %w", err)
	}

	row := CmacRow{
		ValidDate: day,
		Category:  category,
		BlobID:    s.hsm.CurrentBlobID(),
		Salt:      salt,
	}
	env, err := s.envelope(&row)
	if err != nil {
		return nil, err
	}
	row.Wrapped, err = env.Seal(material)
	if err != nil {
		return nil, fmt.Errorf("wrap cmac key: %w", err)
	}
	return &row, nil
}

func (s *CmacStore) unwrap(row *CmacRow) (keys.CmacKey, error) {
	env, err := s.envelope(row)
	if err != nil {
		return nil, err
	}
	material, err := env.Open(row.Wrapped)
	if err != nil {
		return nil, fmt.Errorf("unwrap cmac key %s/%s: %w",
			row.Category, row.ValidDate.Format("2006-01-02"), err)
	}
	return keys.CmacKey(material), nil
}

func (s *CmacStore) envelope(row *CmacRow) (*crypto.Envelope, error) {
	wrapKey, err := s.hsm.DeriveKey(row.BlobID, row.Salt, []byte("cmac/"+row.Category))
	if err != nil {
		return nil, err
	}
	return crypto.NewEnvelope(wrapKey)
}
