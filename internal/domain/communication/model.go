// Package communication persists messages between pseudonymous parties.
// Sender and recipient each get their own ciphertext of the message, sealed
// under their own communication-account key, so either side can read its copy
// without the other's key material.
package communication

import (
	"time"

	"github.com/google/uuid"

	"github.com/erx/erx/internal/domain/prescription"
	"github.com/erx/erx/internal/platform/crypto"
)

// MessageType tags the kind of message, stored numeric.
type MessageType int16

const (
	MessageInfoReq          MessageType = 0
	MessageChargChangeReq   MessageType = 1
	MessageChargChangeReply MessageType = 2
	MessageReply            MessageType = 3
	MessageDispReq          MessageType = 4
	MessageRepresentative   MessageType = 5
)

// ChargeItemRelated reports whether the type belongs to the charge item
// change dialogue, the subset removed by consent withdrawal.
func (t MessageType) ChargeItemRelated() bool {
	return t == MessageChargChangeReq || t == MessageChargChangeReply
}

// Communication is the persisted row. MessageForSender and
// MessageForRecipient are independent ciphertexts of the same logical
// message.
type Communication struct {
	ID              uuid.UUID
	MessageType     MessageType
	Sender          crypto.HashedID
	Recipient       crypto.HashedID
	Sent            time.Time
	Received        *time.Time
	PrescriptionID  *prescription.ID
	SenderBlobID    crypto.BlobID
	RecipientBlobID crypto.BlobID

	MessageForSender    crypto.EncryptedBlob
	MessageForRecipient crypto.EncryptedBlob
}

// Retrieved is one row of a party's view: the ciphertext addressed to that
// party plus the key data to open it.
type Retrieved struct {
	ID       uuid.UUID
	Received *time.Time
	Message  crypto.EncryptedBlob
	BlobID   crypto.BlobID
	// Salt is the party's communication-account salt for BlobID.
	Salt crypto.Salt
}
