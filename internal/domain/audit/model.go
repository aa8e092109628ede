// Package audit stores the append-only trail of actions taken on behalf of
// or against a patient. Entries are written once and never updated; the
// human-readable description lives in the encrypted metadata blob, keyed by
// the patient's audit account salt.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/erx/erx/internal/domain/prescription"
	"github.com/erx/erx/internal/platform/crypto"
)

// AgentType says who triggered the audited action.
type AgentType int16

const (
	AgentHuman AgentType = iota
	AgentMachine
)

// Action is the single-character REST action code recorded with each entry.
type Action byte

const (
	ActionCreate Action = 'C'
	ActionRead   Action = 'R'
	ActionUpdate Action = 'U'
	ActionDelete Action = 'D'
)

// Data is one audit trail entry as handed to the store. Metadata is already
// encrypted by the caller; BlobID names the key generation that protects it.
type Data struct {
	KvnrHashed     crypto.HashedKvnr
	EventID        int16
	Action         Action
	AgentType      AgentType
	DeviceID       int16
	PrescriptionID *prescription.ID
	Metadata       crypto.EncryptedBlob
	BlobID         crypto.BlobID
}

// Retrieved is one entry as read back, including the account salt needed to
// open the metadata blob. Salt is nil when the entry carries no metadata or
// the salt row is gone.
type Retrieved struct {
	ID             uuid.UUID
	Recorded       time.Time
	EventID        int16
	Action         Action
	AgentType      AgentType
	DeviceID       int16
	PrescriptionID *prescription.ID
	Metadata       crypto.EncryptedBlob
	BlobID         crypto.BlobID
	Salt           []byte
}
