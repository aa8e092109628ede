package communication

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/erx/erx/internal/domain/prescription"
	"github.com/erx/erx/internal/platform/crypto"
	"github.com/erx/erx/internal/platform/search"
)

type Repository interface {
	// InsertCommunication stores the message and returns its id.
	InsertCommunication(ctx context.Context, comm *Communication) (uuid.UUID, error)

	// CountRepresentativeCommunications counts representative messages
	// between two insurants for one prescription, in either direction.
	CountRepresentativeCommunications(ctx context.Context, insurantA, insurantB crypto.HashedKvnr, id prescription.ID) (int, error)

	// ExistCommunication reports whether a message with the id exists.
	ExistCommunication(ctx context.Context, id uuid.UUID) (bool, error)

	// RetrieveCommunications returns the party's view of its messages,
	// optionally narrowed to one id and filtered/paged.
	RetrieveCommunications(ctx context.Context, user crypto.HashedID, id *uuid.UUID, args *search.Arguments) ([]Retrieved, error)

	// CountCommunications counts the messages the party can see.
	CountCommunications(ctx context.Context, user crypto.HashedID, args *search.Arguments) (int, error)

	// DeleteCommunication removes the message if it exists and the caller is
	// its sender. Returns the deleted id and received timestamp, or nils when
	// no matching row existed.
	DeleteCommunication(ctx context.Context, id uuid.UUID, sender crypto.HashedID) (*uuid.UUID, *time.Time, error)

	// DeleteCommunicationsForTask removes every message tied to a prescription.
	DeleteCommunicationsForTask(ctx context.Context, id prescription.ID) error

	// DeleteCommunicationsForChargeItem removes the charge-item-related
	// messages tied to a prescription.
	DeleteCommunicationsForChargeItem(ctx context.Context, id prescription.ID) error

	// ClearAllChargeItemCommunications removes every charge-item-related
	// message an insurant participates in, for the consent-withdrawal cascade.
	ClearAllChargeItemCommunications(ctx context.Context, kvnrHashed crypto.HashedKvnr) error

	// MarkCommunicationsAsRetrieved stamps the received time on the listed
	// messages, recipient-keyed, first retrieval only.
	MarkCommunicationsAsRetrieved(ctx context.Context, ids []uuid.UUID, retrieved time.Time, recipient crypto.HashedID) error
}
