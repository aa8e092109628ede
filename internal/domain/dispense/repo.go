package dispense

import (
	"context"

	"github.com/erx/erx/internal/domain/prescription"
	"github.com/erx/erx/internal/platform/crypto"
	"github.com/erx/erx/internal/platform/search"
)

type Repository interface {
	// RetrieveAllMedicationDispenses lists the insurant's dispense records,
	// optionally narrowed to one prescription and filtered/paged.
	RetrieveAllMedicationDispenses(ctx context.Context, kvnrHashed crypto.HashedKvnr, id *prescription.ID, args *search.Arguments) ([]MedicationDispense, error)

	// CountAllMedicationDispenses counts them under the same filter.
	CountAllMedicationDispenses(ctx context.Context, kvnrHashed crypto.HashedKvnr, args *search.Arguments) (int, error)
}
