// Package dispense reads medication dispense records. Dispense data is
// written through the task repository's atomic completion update; this
// package only retrieves it, joined with the per-insurant account salt needed
// to re-derive the dispense key.
package dispense

import (
	"github.com/erx/erx/internal/domain/prescription"
	"github.com/erx/erx/internal/platform/crypto"
)

// MedicationDispense is one retrievable dispense record.
type MedicationDispense struct {
	PrescriptionID prescription.ID
	Bundle         crypto.EncryptedBlob
	BlobID         crypto.BlobID
	// Salt is the insurant's dispense-account salt for BlobID; nil when the
	// account row is missing, which makes the bundle undecryptable and must
	// surface as a decryption failure, not be skipped.
	Salt crypto.Salt
}
