package communication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erx/erx/internal/domain/prescription"
	"github.com/erx/erx/internal/platform/crypto"
	"github.com/erx/erx/internal/platform/db"
	"github.com/erx/erx/internal/platform/keys"
	"github.com/erx/erx/internal/platform/search"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) InsertCommunication(ctx context.Context, comm *Communication) (uuid.UUID, error) {
	id := comm.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	var prescriptionType *int16
	var prescriptionID *int64
	if comm.PrescriptionID != nil {
		ft := int16(comm.PrescriptionID.FlowType())
		dbID := comm.PrescriptionID.DatabaseID()
		prescriptionType = &ft
		prescriptionID = &dbID
	}

	var received *time.Time
	if comm.Received != nil {
		t := comm.Received.UTC()
		received = &t
	}

	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO erp.communication (id, message_type, sender, recipient, sent, received,
		     prescription_type, prescription_id, sender_blob_id, message_for_sender,
		     recipient_blob_id, message_for_recipient)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id`,
		id, int16(comm.MessageType), []byte(comm.Sender), []byte(comm.Recipient),
		comm.Sent.UTC(), received, prescriptionType, prescriptionID,
		int32(comm.SenderBlobID), []byte(comm.MessageForSender),
		int32(comm.RecipientBlobID), []byte(comm.MessageForRecipient),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert communication: %w", err)
	}
	return id, nil
}

func (r *repoPG) CountRepresentativeCommunications(ctx context.Context, insurantA, insurantB crypto.HashedKvnr, id prescription.ID) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM erp.communication
		 WHERE message_type = $1 AND prescription_type = $4 AND prescription_id = $5
		   AND ((sender = $2 AND recipient = $3) OR (sender = $3 AND recipient = $2))`,
		int16(MessageRepresentative), []byte(insurantA), []byte(insurantB),
		int16(id.FlowType()), id.DatabaseID(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count representative communications: %w", err)
	}
	return count, nil
}

func (r *repoPG) ExistCommunication(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM erp.communication WHERE id = $1`, id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check communication existence: %w", err)
	}
	return count > 0, nil
}

// retrievalUnion gives each party its own ciphertext and salt: the sender arm
// yields message_for_sender under the sender's account, the recipient arm
// message_for_recipient under the recipient's.
const retrievalUnion = `
	SELECT c.id, c.sent, c.received, c.message_for_sender AS message,
	       c.sender_blob_id AS blob_id, sender_account.salt AS salt
	  FROM erp.communication c
	  LEFT JOIN erp.account sender_account ON
	       sender_account.account_id = c.sender AND
	       sender_account.master_key_type = %d AND
	       sender_account.blob_id = c.sender_blob_id
	  WHERE c.sender = $1
	UNION
	SELECT c.id, c.sent, c.received, c.message_for_recipient AS message,
	       c.recipient_blob_id AS blob_id, recipient_account.salt AS salt
	  FROM erp.communication c
	  LEFT JOIN erp.account recipient_account ON
	       recipient_account.account_id = c.recipient AND
	       recipient_account.master_key_type = %d AND
	       recipient_account.blob_id = c.recipient_blob_id
	  WHERE c.recipient = $1`

func retrievalBase() string {
	mk := int(keys.MasterKeyCommunication)
	return `SELECT id, received, message, blob_id, salt FROM (` +
		fmt.Sprintf(retrievalUnion, mk, mk) +
		`) communication WHERE ($2::uuid IS NULL OR id = $2::uuid)`
}

func (r *repoPG) RetrieveCommunications(ctx context.Context, user crypto.HashedID, id *uuid.UUID, args *search.Arguments) ([]Retrieved, error) {
	base := retrievalBase()
	baseArgs := []any{[]byte(user), id}

	sql := base + ` ORDER BY sent ASC`
	if args != nil {
		sql, baseArgs = args.Compile(base, baseArgs, "sent ASC")
	}

	rows, err := r.conn(ctx).Query(ctx, sql, baseArgs...)
	if err != nil {
		return nil, fmt.Errorf("retrieve communications: %w", err)
	}
	defer rows.Close()

	var result []Retrieved
	for rows.Next() {
		var ret Retrieved
		var blobID *int32
		if err := rows.Scan(&ret.ID, &ret.Received, &ret.Message, &blobID, &ret.Salt); err != nil {
			return nil, fmt.Errorf("scan communication: %w", err)
		}
		if blobID != nil {
			ret.BlobID = crypto.BlobID(*blobID)
		}
		result = append(result, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate communications: %w", err)
	}
	return result, nil
}

func (r *repoPG) CountCommunications(ctx context.Context, user crypto.HashedID, args *search.Arguments) (int, error) {
	base := `SELECT COUNT(*) FROM erp.communication WHERE (recipient = $1 OR sender = $1)`
	baseArgs := []any{[]byte(user)}
	if args != nil {
		base, baseArgs = args.CompileCount(base, baseArgs)
	}

	var count int
	if err := r.conn(ctx).QueryRow(ctx, base, baseArgs...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count communications: %w", err)
	}
	return count, nil
}

func (r *repoPG) DeleteCommunication(ctx context.Context, id uuid.UUID, sender crypto.HashedID) (*uuid.UUID, *time.Time, error) {
	var deleted uuid.UUID
	var received *time.Time
	err := r.conn(ctx).QueryRow(ctx,
		`DELETE FROM erp.communication WHERE id = $1 AND sender = $2 RETURNING id, received`,
		id, []byte(sender)).Scan(&deleted, &received)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("delete communication: %w", err)
	}
	return &deleted, received, nil
}

func (r *repoPG) DeleteCommunicationsForTask(ctx context.Context, id prescription.ID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM erp.communication WHERE prescription_type = $1 AND prescription_id = $2`,
		int16(id.FlowType()), id.DatabaseID())
	if err != nil {
		return fmt.Errorf("delete communications for task: %w", err)
	}
	return nil
}

func (r *repoPG) DeleteCommunicationsForChargeItem(ctx context.Context, id prescription.ID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM erp.communication
		 WHERE prescription_type = $1 AND prescription_id = $2 AND message_type = ANY($3::smallint[])`,
		int16(id.FlowType()), id.DatabaseID(), chargeItemMessageTypes())
	if err != nil {
		return fmt.Errorf("delete communications for charge item: %w", err)
	}
	return nil
}

func (r *repoPG) ClearAllChargeItemCommunications(ctx context.Context, kvnrHashed crypto.HashedKvnr) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM erp.communication
		 WHERE (sender = $1 OR recipient = $1) AND message_type = ANY($2::smallint[])`,
		[]byte(kvnrHashed), chargeItemMessageTypes())
	if err != nil {
		return fmt.Errorf("clear charge item communications: %w", err)
	}
	return nil
}

func (r *repoPG) MarkCommunicationsAsRetrieved(ctx context.Context, ids []uuid.UUID, retrieved time.Time, recipient crypto.HashedID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE erp.communication SET received = $2
		 WHERE received IS NULL AND id = ANY($1::uuid[]) AND recipient = $3`,
		ids, retrieved.UTC(), []byte(recipient))
	if err != nil {
		return fmt.Errorf("mark communications retrieved: %w", err)
	}
	return nil
}

func chargeItemMessageTypes() []int16 {
	return []int16{int16(MessageChargChangeReq), int16(MessageChargChangeReply)}
}
