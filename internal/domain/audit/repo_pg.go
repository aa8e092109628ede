package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
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

func (r *repoPG) StoreAuditEventData(ctx context.Context, data *Data) (uuid.UUID, error) {
	// The numeric prescription id alone is ambiguous across the per-type task
	// tables, so the workflow type is stored next to it.
	var prescriptionID *int64
	var prescriptionType *int16
	if data.PrescriptionID != nil {
		dbID := data.PrescriptionID.DatabaseID()
		pt := int16(data.PrescriptionID.FlowType())
		prescriptionID = &dbID
		prescriptionType = &pt
	}
	var metadata []byte
	if data.Metadata != nil {
		metadata = []byte(data.Metadata)
	}

	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO erp.auditevent (id, recorded, kvnr_hashed, event_id, action, agent_type,
		     observer, prescription_type, prescription_id, metadata, blob_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		uuid.New(), time.Now().UTC(), []byte(data.KvnrHashed), data.EventID,
		string(rune(data.Action)), int16(data.AgentType), data.DeviceID,
		prescriptionType, prescriptionID, metadata, int32(data.BlobID),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("store audit event: %w", err)
	}
	return id, nil
}

// retrievalBase joins the patient's audit account salt so callers can open
// the metadata blob without a second round trip. The join is keyed on the
// entry's own blob_id, so rows written under older key generations still
// resolve their matching salt.
func retrievalBase() string {
	return fmt.Sprintf(`SELECT e.id, e.recorded, e.event_id, e.action, e.agent_type, e.observer,
	       e.prescription_type, e.prescription_id, e.metadata, e.blob_id, a.salt
	  FROM erp.auditevent e
	  LEFT JOIN erp.account a ON
	       a.account_id = e.kvnr_hashed AND
	       a.master_key_type = %d AND
	       a.blob_id = e.blob_id
	  WHERE e.kvnr_hashed = $1
	    AND ($2::uuid IS NULL OR e.id = $2::uuid)
	    AND ($3::smallint IS NULL OR e.prescription_type = $3::smallint)
	    AND ($4::bigint IS NULL OR e.prescription_id = $4::bigint)`,
		int(keys.MasterKeyAuditEvent))
}

func (r *repoPG) RetrieveAuditEventData(ctx context.Context, kvnrHashed crypto.HashedKvnr, id *uuid.UUID, prescriptionID *prescription.ID, args *search.Arguments) ([]Retrieved, error) {
	var filterType *int16
	var filterID *int64
	if prescriptionID != nil {
		pt := int16(prescriptionID.FlowType())
		dbID := prescriptionID.DatabaseID()
		filterType = &pt
		filterID = &dbID
	}

	base := retrievalBase()
	baseArgs := []any{[]byte(kvnrHashed), id, filterType, filterID}

	sql := base + ` ORDER BY e.recorded DESC`
	if args != nil {
		sql, baseArgs = args.Compile(base, baseArgs, "e.recorded DESC")
	}

	rows, err := r.conn(ctx).Query(ctx, sql, baseArgs...)
	if err != nil {
		return nil, fmt.Errorf("retrieve audit events: %w", err)
	}
	defer rows.Close()

	var result []Retrieved
	for rows.Next() {
		var ret Retrieved
		var action string
		var agentType int16
		var prescriptionType *int16
		var dbID *int64
		var metadata []byte
		var blobID int32
		if err := rows.Scan(&ret.ID, &ret.Recorded, &ret.EventID, &action, &agentType,
			&ret.DeviceID, &prescriptionType, &dbID, &metadata, &blobID, &ret.Salt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if len(action) != 1 {
			return nil, fmt.Errorf("audit event %s: malformed action %q", ret.ID, action)
		}
		ret.Action = Action(action[0])
		ret.AgentType = AgentType(agentType)
		if prescriptionType != nil && dbID != nil {
			pid := prescription.NewID(prescription.FlowType(*prescriptionType), *dbID)
			ret.PrescriptionID = &pid
		}
		ret.Metadata = crypto.EncryptedBlob(metadata)
		ret.BlobID = crypto.BlobID(blobID)
		result = append(result, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return result, nil
}

func (r *repoPG) CountAuditEventData(ctx context.Context, kvnrHashed crypto.HashedKvnr, args *search.Arguments) (int, error) {
	base := `SELECT COUNT(*) FROM erp.auditevent WHERE kvnr_hashed = $1`
	baseArgs := []any{[]byte(kvnrHashed)}
	if args != nil {
		base, baseArgs = args.CompileCount(base, baseArgs)
	}

	var count int
	if err := r.conn(ctx).QueryRow(ctx, base, baseArgs...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return count, nil
}
