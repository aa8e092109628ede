// Package chargeitem persists insurance billing records for the private
// workflow types. A charge item exists at most once per prescription; storing
// a duplicate is a conflict the caller surfaces to the client.
package chargeitem

import (
	"time"

	"github.com/erx/erx/internal/domain/prescription"
	"github.com/erx/erx/internal/platform/crypto"
)

// ChargeItem is the persisted row. All document references are ciphertexts
// under the charge item key derived from (BlobID, Salt).
type ChargeItem struct {
	PrescriptionID prescription.ID
	Enterer        crypto.HashedTelematikID
	EnteredDate    time.Time
	LastModified   time.Time
	// MarkingFlags is an encrypted flag set; nil when the insurant never set
	// any marking.
	MarkingFlags crypto.EncryptedBlob
	BlobID       crypto.BlobID
	Salt         crypto.Salt
	AccessCode   crypto.EncryptedBlob
	Kvnr         crypto.EncryptedBlob
	KvnrHashed   crypto.HashedKvnr

	// populated by the full retrievals only
	Prescription     crypto.EncryptedBlob
	PrescriptionJSON crypto.EncryptedBlob
	ReceiptXML       crypto.EncryptedBlob
	ReceiptJSON      crypto.EncryptedBlob
	BillingData      crypto.EncryptedBlob
	BillingDataJSON  crypto.EncryptedBlob
}
