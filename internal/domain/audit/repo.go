package audit

import (
	"context"

	"github.com/google/uuid"

	"github.com/erx/erx/internal/domain/prescription"
	"github.com/erx/erx/internal/platform/crypto"
	"github.com/erx/erx/internal/platform/search"
)

type Repository interface {
	// StoreAuditEventData appends one entry and returns its generated id.
	StoreAuditEventData(ctx context.Context, data *Data) (uuid.UUID, error)

	// RetrieveAuditEventData lists entries for the patient, optionally
	// narrowed to a single id or to one prescription, in recorded order
	// unless the search arguments say otherwise.
	RetrieveAuditEventData(ctx context.Context, kvnrHashed crypto.HashedKvnr, id *uuid.UUID, prescriptionID *prescription.ID, args *search.Arguments) ([]Retrieved, error)

	// CountAuditEventData counts the patient's entries under the search
	// filters, ignoring paging.
	CountAuditEventData(ctx context.Context, kvnrHashed crypto.HashedKvnr, args *search.Arguments) (int, error)
}
