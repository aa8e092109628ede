package chargeitem

import (
	"context"
	"errors"

	"github.com/erx/erx/internal/domain/prescription"
	"github.com/erx/erx/internal/platform/crypto"
	"github.com/erx/erx/internal/platform/search"
)

// ErrDuplicate means a charge item already exists for the prescription.
var ErrDuplicate = errors.New("charge item already exists")

type Repository interface {
	// StoreChargeInformation inserts a new charge item. A second insert for
	// the same prescription fails with ErrDuplicate.
	StoreChargeInformation(ctx context.Context, item *ChargeItem) error

	// UpdateChargeInformation rewrites the mutable part: marking flags,
	// billing data and access code.
	UpdateChargeInformation(ctx context.Context, item *ChargeItem) error

	// RetrieveChargeInformation returns the full charge item, or nil.
	RetrieveChargeInformation(ctx context.Context, id prescription.ID) (*ChargeItem, error)

	// RetrieveChargeInformationForUpdate is the same read with a row lock,
	// serializing concurrent updates of one charge item.
	RetrieveChargeInformationForUpdate(ctx context.Context, id prescription.ID) (*ChargeItem, error)

	// RetrieveAllChargeItemsForInsurant lists the insurant's charge items
	// without their document payloads.
	RetrieveAllChargeItemsForInsurant(ctx context.Context, kvnrHashed crypto.HashedKvnr, args *search.Arguments) ([]ChargeItem, error)

	// CountChargeInformationForInsurant counts them under the same filter.
	CountChargeInformationForInsurant(ctx context.Context, kvnrHashed crypto.HashedKvnr, args *search.Arguments) (int, error)

	// DeleteChargeInformation removes one charge item.
	DeleteChargeInformation(ctx context.Context, id prescription.ID) error

	// ClearAllChargeInformation removes every charge item of an insurant,
	// for the consent-withdrawal cascade.
	ClearAllChargeInformation(ctx context.Context, kvnrHashed crypto.HashedKvnr) error
}
