package dispense

import (
	"context"
	"fmt"
	"strings"

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

// taskTables pairs each workflow type with its task table.
var taskTables = []struct {
	flowType prescription.FlowType
	table    string
}{
	{prescription.FlowTypeStatutory, "erp.task"},
	{prescription.FlowTypeDirectAssignment, "erp.task_169"},
	{prescription.FlowTypePrivate, "erp.task_200"},
	{prescription.FlowTypeDirectAssignmentPrivate, "erp.task_209"},
}

// dispenseUnion selects dispense rows across all task tables, tagged with
// their workflow type and joined with the dispense-account salt.
func dispenseUnion() string {
	arms := make([]string, 0, len(taskTables))
	for _, tt := range taskTables {
		arms = append(arms, fmt.Sprintf(`SELECT %d AS flow_type, t.prescription_id,
			t.medication_dispense_bundle AS bundle, t.medication_dispense_blob_id AS blob_id,
			a.salt, t.when_handed_over, t.when_prepared, t.performer
		FROM %s t
		LEFT JOIN erp.account a ON
			a.account_id = $1 AND a.master_key_type = %d AND
			t.medication_dispense_blob_id = a.blob_id
		WHERE t.kvnr_hashed = $1 AND t.medication_dispense_bundle IS NOT NULL`,
			tt.flowType, tt.table, keys.MasterKeyMedicationDispense))
	}
	return strings.Join(arms, "\n\t\tUNION ALL\n\t\t")
}

func (r *repoPG) RetrieveAllMedicationDispenses(ctx context.Context, kvnrHashed crypto.HashedKvnr, id *prescription.ID, args *search.Arguments) ([]MedicationDispense, error) {
	base := `SELECT flow_type, prescription_id, bundle, blob_id, salt FROM (
		` + dispenseUnion() + `
	) d WHERE ($2::bigint IS NULL OR prescription_id = $2::bigint)`

	var dbID *int64
	if id != nil {
		v := id.DatabaseID()
		dbID = &v
	}
	baseArgs := []any{[]byte(kvnrHashed), dbID}

	sql := base + ` ORDER BY prescription_id ASC`
	if args != nil {
		sql, baseArgs = args.Compile(base, baseArgs, "prescription_id ASC")
	}

	rows, err := r.conn(ctx).Query(ctx, sql, baseArgs...)
	if err != nil {
		return nil, fmt.Errorf("retrieve medication dispenses: %w", err)
	}
	defer rows.Close()

	var dispenses []MedicationDispense
	for rows.Next() {
		var d MedicationDispense
		var flowType int16
		var rowID int64
		var blobID *int32
		if err := rows.Scan(&flowType, &rowID, &d.Bundle, &blobID, &d.Salt); err != nil {
			return nil, fmt.Errorf("scan medication dispense: %w", err)
		}
		d.PrescriptionID = prescription.NewID(prescription.FlowType(flowType), rowID)
		if blobID != nil {
			d.BlobID = crypto.BlobID(*blobID)
		}
		dispenses = append(dispenses, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate medication dispenses: %w", err)
	}
	return dispenses, nil
}

func (r *repoPG) CountAllMedicationDispenses(ctx context.Context, kvnrHashed crypto.HashedKvnr, args *search.Arguments) (int, error) {
	base := `SELECT COUNT(*) FROM (
		` + dispenseUnion() + `
	) d WHERE ($2::bigint IS NULL OR prescription_id = $2::bigint)`
	baseArgs := []any{[]byte(kvnrHashed), (*int64)(nil)}
	if args != nil {
		base, baseArgs = args.CompileCount(base, baseArgs)
	}

	var count int
	if err := r.conn(ctx).QueryRow(ctx, base, baseArgs...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count medication dispenses: %w", err)
	}
	return count, nil
}
