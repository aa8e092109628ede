package task

import (
	"context"
	"time"

	"github.com/erx/erx/internal/domain/prescription"
	"github.com/erx/erx/internal/platform/crypto"
	"github.com/erx/erx/internal/platform/search"
)

// Repository is the task store for one workflow type. Each workflow type has
// its own table; the facade holds one repository per type.
//
// Every retrieval that feeds a state transition (the ForUpdate variants,
// RetrieveTaskAndPrescription, RetrieveTaskAndPrescriptionAndReceipt) takes a
// row lock held until commit, so at most one transaction at a time can drive
// a transition for a given id. RetrieveTaskAndReceipt is a lock-free read.
type Repository interface {
	// CreateTask allocates a prescription id from the table's sequence and
	// returns it with the store-rounded authored-on timestamp. Callers must
	// use the returned timestamp for any key derivation that depends on
	// authoring time.
	CreateTask(ctx context.Context, status Status, lastModified, authoredOn time.Time) (prescription.ID, time.Time, error)

	// UpdateTask attaches the access code and the task's key data.
	UpdateTask(ctx context.Context, id prescription.ID, accessCode crypto.EncryptedBlob, blobID crypto.BlobID, salt crypto.Salt) error

	// GetTaskKeyData returns the key derivation inputs for a task, locking
	// the row.
	GetTaskKeyData(ctx context.Context, id prescription.ID) (*KeyData, error)

	// UpdateTaskStatusAndSecret writes a status transition and the pharmacy
	// secret in one statement. A nil secret clears the column.
	UpdateTaskStatusAndSecret(ctx context.Context, id prescription.ID, status Status, lastModified time.Time, secret crypto.EncryptedBlob) error

	// ActivateTask writes the fields that become mandatory on activation.
	ActivateTask(ctx context.Context, id prescription.ID, activation Activation) error

	// UpdateTaskMedicationDispenseReceipt is the single atomic completion
	// write: status, dispense data and receipt together.
	UpdateTaskMedicationDispenseReceipt(ctx context.Context, id prescription.ID, update DispenseUpdate) error

	// UpdateTaskClearPersonalData nulls every personal column while keeping
	// the hashed kvnr, prescription id and status queryable.
	UpdateTaskClearPersonalData(ctx context.Context, id prescription.ID, status Status, lastModified time.Time) error

	RetrieveTaskForUpdate(ctx context.Context, id prescription.ID) (*Task, error)
	RetrieveTaskForUpdateAndPrescription(ctx context.Context, id prescription.ID) (*Task, error)
	RetrieveTaskAndReceipt(ctx context.Context, id prescription.ID) (*Task, error)
	RetrieveTaskAndPrescription(ctx context.Context, id prescription.ID) (*Task, error)
	RetrieveTaskAndPrescriptionAndReceipt(ctx context.Context, id prescription.ID) (*Task, error)

	// RetrieveAllTasksForPatient lists the patient's non-cancelled tasks,
	// optionally filtered/sorted/paged.
	RetrieveAllTasksForPatient(ctx context.Context, kvnrHashed crypto.HashedKvnr, args *search.Arguments) ([]Task, error)

	// CountAllTasksForPatient counts the patient's non-cancelled tasks under
	// the same filter.
	CountAllTasksForPatient(ctx context.Context, kvnrHashed crypto.HashedKvnr, args *search.Arguments) (int, error)

	// DeleteChargeItemSupportingInformation nulls the task's document blobs
	// when the owning charge item is deleted.
	DeleteChargeItemSupportingInformation(ctx context.Context, id prescription.ID) error

	// ClearAllChargeItemSupportingInformation does the same for every task of
	// a patient, used by the consent-withdrawal cascade.
	ClearAllChargeItemSupportingInformation(ctx context.Context, kvnrHashed crypto.HashedKvnr) error
}
