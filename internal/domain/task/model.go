// Package task persists prescriptions. The repository speaks encrypted values
// only: plaintext identifiers and documents are pseudonymized and sealed by
// the caller before they reach this package.
package task

import (
	"time"

	"github.com/erx/erx/internal/domain/prescription"
	"github.com/erx/erx/internal/platform/crypto"
)

// Status is the workflow status, stored in its numeric form.
type Status int16

const (
	StatusDraft      Status = 0
	StatusReady      Status = 1
	StatusInProgress Status = 2
	StatusCompleted  Status = 3
	StatusCancelled  Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusReady:
		return "ready"
	case StatusInProgress:
		return "in-progress"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// SearchStatuses maps search-facing status names to the stored numeric form.
func SearchStatuses() map[string]int16 {
	return map[string]int16{
		StatusDraft.String():      int16(StatusDraft),
		StatusReady.String():      int16(StatusReady),
		StatusInProgress.String(): int16(StatusInProgress),
		StatusCompleted.String():  int16(StatusCompleted),
		StatusCancelled.String():  int16(StatusCancelled),
	}
}

// Task is the persisted row. Every personal field is an EncryptedBlob bound
// to (KeyBlobID, Salt); KvnrHashed is the only patient-derived value usable
// as an index.
type Task struct {
	ID           prescription.ID
	Kvnr         crypto.EncryptedBlob
	KvnrHashed   crypto.HashedKvnr
	LastModified time.Time
	AuthoredOn   time.Time
	ExpiryDate   *time.Time
	AcceptDate   *time.Time
	Status       Status
	Salt         crypto.Salt
	KeyBlobID    crypto.BlobID

	// populated per retrieval variant
	AccessCode   crypto.EncryptedBlob
	Secret       crypto.EncryptedBlob
	Prescription crypto.EncryptedBlob
	Receipt      crypto.EncryptedBlob
}

// KeyData is what the dispense write path needs to re-derive the task key.
type KeyData struct {
	BlobID     crypto.BlobID
	Salt       crypto.Salt
	AuthoredOn time.Time
}

// DispenseUpdate is the atomic completion write: final status, dispense
// bundle, receipt and the dispense metadata land in one statement.
type DispenseUpdate struct {
	Status         Status
	LastModified   time.Time
	DispenseBundle crypto.EncryptedBlob
	DispenseBlobID crypto.BlobID
	Receipt        crypto.EncryptedBlob
	WhenHandedOver time.Time
	WhenPrepared   *time.Time
	Performer      crypto.HashedTelematikID
}

// Activation carries the fields that become mandatory when a draft task is
// activated.
type Activation struct {
	Kvnr         crypto.EncryptedBlob
	KvnrHashed   crypto.HashedKvnr
	Status       Status
	LastModified time.Time
	ExpiryDate   time.Time
	AcceptDate   time.Time
	Prescription crypto.EncryptedBlob
}
