package chargeitem

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erx/erx/internal/domain/prescription"
	"github.com/erx/erx/internal/platform/crypto"
	"github.com/erx/erx/internal/platform/db"
	"github.com/erx/erx/internal/platform/search"
)

const uniqueViolation = "23505"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) StoreChargeInformation(ctx context.Context, item *ChargeItem) error {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO erp.charge_item (prescription_type, prescription_id, enterer,
		     entered_date, last_modified, marking_flag,
		     blob_id, salt, access_code,
		     kvnr, kvnr_hashed, prescription,
		     prescription_json, receipt_xml, receipt_json,
		     billing_data, billing_data_json)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		int16(item.PrescriptionID.FlowType()), item.PrescriptionID.DatabaseID(), []byte(item.Enterer),
		item.EnteredDate.UTC(), item.LastModified.UTC(), []byte(item.MarkingFlags),
		int32(item.BlobID), []byte(item.Salt), []byte(item.AccessCode),
		[]byte(item.Kvnr), []byte(item.KvnrHashed), []byte(item.Prescription),
		[]byte(item.PrescriptionJSON), []byte(item.ReceiptXML), []byte(item.ReceiptJSON),
		[]byte(item.BillingData), []byte(item.BillingDataJSON))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("charge item for %s: %w", item.PrescriptionID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("store charge information: %w", err)
	}
	return nil
}

func (r *repoPG) UpdateChargeInformation(ctx context.Context, item *ChargeItem) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE erp.charge_item SET marking_flag = $3,
		     last_modified = NOW(),
		     billing_data = $4,
		     billing_data_json = $5,
		     access_code = $6
		 WHERE prescription_type = $1 AND prescription_id = $2`,
		int16(item.PrescriptionID.FlowType()), item.PrescriptionID.DatabaseID(),
		[]byte(item.MarkingFlags), []byte(item.BillingData), []byte(item.BillingDataJSON),
		[]byte(item.AccessCode))
	if err != nil {
		return fmt.Errorf("update charge information: %w", err)
	}
	return nil
}

const fullCols = `prescription_type, prescription_id, enterer,
	entered_date, last_modified, marking_flag,
	blob_id, salt, access_code,
	kvnr, prescription, prescription_json,
	receipt_xml, receipt_json, billing_data, billing_data_json`

func (r *repoPG) RetrieveChargeInformation(ctx context.Context, id prescription.ID) (*ChargeItem, error) {
	return r.retrieve(ctx, id, ``)
}

func (r *repoPG) RetrieveChargeInformationForUpdate(ctx context.Context, id prescription.ID) (*ChargeItem, error) {
	return r.retrieve(ctx, id, ` FOR UPDATE`)
}

func (r *repoPG) retrieve(ctx context.Context, id prescription.ID, suffix string) (*ChargeItem, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+fullCols+` FROM erp.charge_item
		 WHERE prescription_type = $1 AND prescription_id = $2`+suffix,
		int16(id.FlowType()), id.DatabaseID())

	var item ChargeItem
	var flowType int16
	var dbID int64
	var blobID int32
	var enteredDate, lastModified time.Time
	err := row.Scan(&flowType, &dbID, &item.Enterer,
		&enteredDate, &lastModified, &item.MarkingFlags,
		&blobID, &item.Salt, &item.AccessCode,
		&item.Kvnr, &item.Prescription, &item.PrescriptionJSON,
		&item.ReceiptXML, &item.ReceiptJSON, &item.BillingData, &item.BillingDataJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("retrieve charge information: %w", err)
	}

	item.PrescriptionID = prescription.NewID(prescription.FlowType(flowType), dbID)
	item.EnteredDate = enteredDate.UTC()
	item.LastModified = lastModified.UTC()
	item.BlobID = crypto.BlobID(blobID)
	return &item, nil
}

func (r *repoPG) RetrieveAllChargeItemsForInsurant(ctx context.Context, kvnrHashed crypto.HashedKvnr, args *search.Arguments) ([]ChargeItem, error) {
	base := `SELECT prescription_type, prescription_id, enterer,
		entered_date, last_modified, marking_flag, blob_id, salt
	 FROM erp.charge_item WHERE kvnr_hashed = $1`
	baseArgs := []any{[]byte(kvnrHashed)}

	sql := base + ` ORDER BY entered_date ASC`
	if args != nil {
		sql, baseArgs = args.Compile(base, baseArgs, "entered_date ASC")
	}

	rows, err := r.conn(ctx).Query(ctx, sql, baseArgs...)
	if err != nil {
		return nil, fmt.Errorf("retrieve charge items for insurant: %w", err)
	}
	defer rows.Close()

	var items []ChargeItem
	for rows.Next() {
		var item ChargeItem
		var flowType int16
		var dbID int64
		var blobID int32
		var enteredDate, lastModified time.Time
		err := rows.Scan(&flowType, &dbID, &item.Enterer,
			&enteredDate, &lastModified, &item.MarkingFlags, &blobID, &item.Salt)
		if err != nil {
			return nil, fmt.Errorf("scan charge item: %w", err)
		}
		item.PrescriptionID = prescription.NewID(prescription.FlowType(flowType), dbID)
		item.KvnrHashed = kvnrHashed
		item.EnteredDate = enteredDate.UTC()
		item.LastModified = lastModified.UTC()
		item.BlobID = crypto.BlobID(blobID)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate charge items: %w", err)
	}
	return items, nil
}

func (r *repoPG) CountChargeInformationForInsurant(ctx context.Context, kvnrHashed crypto.HashedKvnr, args *search.Arguments) (int, error) {
	base := `SELECT COUNT(*) FROM erp.charge_item WHERE kvnr_hashed = $1`
	baseArgs := []any{[]byte(kvnrHashed)}
	if args != nil {
		base, baseArgs = args.CompileCount(base, baseArgs)
	}

	var count int
	if err := r.conn(ctx).QueryRow(ctx, base, baseArgs...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count charge items for insurant: %w", err)
	}
	return count, nil
}

func (r *repoPG) DeleteChargeInformation(ctx context.Context, id prescription.ID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM erp.charge_item WHERE prescription_type = $1 AND prescription_id = $2`,
		int16(id.FlowType()), id.DatabaseID())
	if err != nil {
		return fmt.Errorf("delete charge information: %w", err)
	}
	return nil
}

func (r *repoPG) ClearAllChargeInformation(ctx context.Context, kvnrHashed crypto.HashedKvnr) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM erp.charge_item WHERE kvnr_hashed = $1`, []byte(kvnrHashed))
	if err != nil {
		return fmt.Errorf("clear charge information: %w", err)
	}
	return nil
}
