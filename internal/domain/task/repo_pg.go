package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/erx/erx/internal/domain/prescription"
	"github.com/erx/erx/internal/platform/crypto"
	"github.com/erx/erx/internal/platform/db"
	"github.com/erx/erx/internal/platform/search"
)

type repoPG struct {
	pool     *pgxpool.Pool
	flowType prescription.FlowType
	table    string
}

// NewRepoPG returns the repository for one workflow type. Each type has its
// own table so their prescription id sequences stay independent.
func NewRepoPG(pool *pgxpool.Pool, flowType prescription.FlowType) (Repository, error) {
	table, err := tableName(flowType)
	if err != nil {
		return nil, err
	}
	return &repoPG{pool: pool, flowType: flowType, table: table}, nil
}

func tableName(flowType prescription.FlowType) (string, error) {
	switch flowType {
	case prescription.FlowTypeStatutory:
		return "erp.task", nil
	case prescription.FlowTypeDirectAssignment:
		return "erp.task_169", nil
	case prescription.FlowTypePrivate:
		return "erp.task_200", nil
	case prescription.FlowTypeDirectAssignmentPrivate:
		return "erp.task_209", nil
	}
	return "", fmt.Errorf("unsupported workflow type %d", flowType)
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) CreateTask(ctx context.Context, status Status, lastModified, authoredOn time.Time) (prescription.ID, time.Time, error) {
	var dbID int64
	var rounded time.Time
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO `+r.table+` (last_modified, authored_on, status) VALUES ($1, $2, $3)
		 RETURNING prescription_id, authored_on`,
		lastModified.UTC(), authoredOn.UTC(), int16(status),
	).Scan(&dbID, &rounded)
	if err != nil {
		return prescription.ID{}, time.Time{}, fmt.Errorf("create task: %w", err)
	}
	return prescription.NewID(r.flowType, dbID), rounded.UTC(), nil
}

func (r *repoPG) UpdateTask(ctx context.Context, id prescription.ID, accessCode crypto.EncryptedBlob, blobID crypto.BlobID, salt crypto.Salt) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE `+r.table+` SET task_key_blob_id = $2, salt = $3, access_code = $4 WHERE prescription_id = $1`,
		id.DatabaseID(), int32(blobID), []byte(salt), []byte(accessCode))
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

func (r *repoPG) GetTaskKeyData(ctx context.Context, id prescription.ID) (*KeyData, error) {
	var kd KeyData
	var blobID int32
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT task_key_blob_id, salt, authored_on FROM `+r.table+` WHERE prescription_id = $1 FOR UPDATE`,
		id.DatabaseID(),
	).Scan(&blobID, &kd.Salt, &kd.AuthoredOn)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task key data: %w", err)
	}
	kd.BlobID = crypto.BlobID(blobID)
	kd.AuthoredOn = kd.AuthoredOn.UTC()
	return &kd, nil
}

func (r *repoPG) UpdateTaskStatusAndSecret(ctx context.Context, id prescription.ID, status Status, lastModified time.Time, secret crypto.EncryptedBlob) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE `+r.table+` SET status = $2, last_modified = $3, secret = $4 WHERE prescription_id = $1`,
		id.DatabaseID(), int16(status), lastModified.UTC(), []byte(secret))
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

func (r *repoPG) ActivateTask(ctx context.Context, id prescription.ID, a Activation) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE `+r.table+`
		 SET kvnr = $2, kvnr_hashed = $3, last_modified = $4, expiry_date = $5, accept_date = $6, status = $7,
		     healthcare_provider_prescription = $8
		 WHERE prescription_id = $1`,
		id.DatabaseID(), []byte(a.Kvnr), []byte(a.KvnrHashed), a.LastModified.UTC(),
		a.ExpiryDate.UTC(), a.AcceptDate.UTC(), int16(a.Status), []byte(a.Prescription))
	if err != nil {
		return fmt.Errorf("activate task: %w", err)
	}
	return nil
}

func (r *repoPG) UpdateTaskMedicationDispenseReceipt(ctx context.Context, id prescription.ID, u DispenseUpdate) error {
	var prepared *time.Time
	if u.WhenPrepared != nil {
		p := u.WhenPrepared.UTC()
		prepared = &p
	}
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE `+r.table+`
		 SET status = $2, last_modified = $3, medication_dispense_bundle = $4, medication_dispense_blob_id = $5,
		     receipt = $6, when_handed_over = $7, when_prepared = $8, performer = $9
		 WHERE prescription_id = $1`,
		id.DatabaseID(), int16(u.Status), u.LastModified.UTC(), []byte(u.DispenseBundle),
		int32(u.DispenseBlobID), []byte(u.Receipt), u.WhenHandedOver.UTC(), prepared, []byte(u.Performer))
	if err != nil {
		return fmt.Errorf("update task dispense receipt: %w", err)
	}
	return nil
}

func (r *repoPG) UpdateTaskClearPersonalData(ctx context.Context, id prescription.ID, status Status, lastModified time.Time) error {
	// kvnr_hashed deliberately survives: the de-identified trace stays
	// queryable by the patient's pseudonym.
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE `+r.table+`
		 SET status = $2, last_modified = $3, kvnr = NULL, salt = NULL, access_code = NULL,
		     secret = NULL, healthcare_provider_prescription = NULL, receipt = NULL,
		     when_handed_over = NULL, when_prepared = NULL, performer = NULL,
		     medication_dispense_bundle = NULL
		 WHERE prescription_id = $1`,
		id.DatabaseID(), int16(status), lastModified.UTC())
	if err != nil {
		return fmt.Errorf("clear task personal data: %w", err)
	}
	return nil
}

// column sets per retrieval variant
const taskCols = `prescription_id, kvnr, kvnr_hashed, last_modified, authored_on, expiry_date, accept_date, status,
	salt, task_key_blob_id`

func (r *repoPG) RetrieveTaskForUpdate(ctx context.Context, id prescription.ID) (*Task, error) {
	return r.retrieveInto(ctx, id, `access_code, secret`, ` FOR UPDATE`, func(t *Task) []any {
		return []any{&t.AccessCode, &t.Secret}
	})
}

func (r *repoPG) RetrieveTaskForUpdateAndPrescription(ctx context.Context, id prescription.ID) (*Task, error) {
	return r.retrieveInto(ctx, id, `access_code, secret, healthcare_provider_prescription`, ` FOR UPDATE`, func(t *Task) []any {
		return []any{&t.AccessCode, &t.Secret, &t.Prescription}
	})
}

func (r *repoPG) RetrieveTaskAndReceipt(ctx context.Context, id prescription.ID) (*Task, error) {
	return r.retrieveInto(ctx, id, `secret, receipt`, ``, func(t *Task) []any {
		return []any{&t.Secret, &t.Receipt}
	})
}

func (r *repoPG) RetrieveTaskAndPrescription(ctx context.Context, id prescription.ID) (*Task, error) {
	// Locked: abort and similar flows read task plus prescription and then
	// transition the state, so two of them must serialize on the row.
	return r.retrieveInto(ctx, id, `access_code, healthcare_provider_prescription`, ` FOR UPDATE`, func(t *Task) []any {
		return []any{&t.AccessCode, &t.Prescription}
	})
}

func (r *repoPG) RetrieveTaskAndPrescriptionAndReceipt(ctx context.Context, id prescription.ID) (*Task, error) {
	return r.retrieveInto(ctx, id, `access_code, secret, healthcare_provider_prescription, receipt`, ` FOR UPDATE`, func(t *Task) []any {
		return []any{&t.AccessCode, &t.Secret, &t.Prescription, &t.Receipt}
	})
}

func (r *repoPG) retrieveInto(ctx context.Context, id prescription.ID, extraCols, suffix string, extras func(*Task) []any) (*Task, error) {
	var t Task
	got, err := r.retrieveScan(ctx, id, extraCols, suffix, &t, extras(&t))
	if err != nil || !got {
		return nil, err
	}
	return &t, nil
}

func (r *repoPG) retrieveScan(ctx context.Context, id prescription.ID, extraCols, suffix string, t *Task, extras []any) (bool, error) {
	cols := taskCols
	if extraCols != "" {
		cols += ", " + extraCols
	}
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+cols+` FROM `+r.table+` WHERE prescription_id = $1`+suffix, id.DatabaseID())

	var dbID int64
	var blobID *int32
	var lastModified, authoredOn time.Time
	dest := []any{&dbID, &t.Kvnr, &t.KvnrHashed, &lastModified, &authoredOn, &t.ExpiryDate, &t.AcceptDate, &t.Status, &t.Salt, &blobID}
	dest = append(dest, extras...)

	err := row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("retrieve task: %w", err)
	}

	t.ID = prescription.NewID(r.flowType, dbID)
	t.LastModified = lastModified.UTC()
	t.AuthoredOn = authoredOn.UTC()
	if blobID != nil {
		t.KeyBlobID = crypto.BlobID(*blobID)
	}
	return true, nil
}

func (r *repoPG) RetrieveAllTasksForPatient(ctx context.Context, kvnrHashed crypto.HashedKvnr, args *search.Arguments) ([]Task, error) {
	base := `SELECT ` + taskCols + ` FROM ` + r.table + ` WHERE kvnr_hashed = $1 AND status != 4`
	baseArgs := []any{[]byte(kvnrHashed)}

	sql := base + ` ORDER BY authored_on ASC`
	if args != nil {
		sql, baseArgs = args.Compile(base, baseArgs, "authored_on ASC")
	}

	rows, err := r.conn(ctx).Query(ctx, sql, baseArgs...)
	if err != nil {
		return nil, fmt.Errorf("retrieve tasks for patient: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		var dbID int64
		var blobID *int32
		var lastModified, authoredOn time.Time
		err := rows.Scan(&dbID, &t.Kvnr, &t.KvnrHashed, &lastModified, &authoredOn, &t.ExpiryDate, &t.AcceptDate,
			&t.Status, &t.Salt, &blobID)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.ID = prescription.NewID(r.flowType, dbID)
		t.LastModified = lastModified.UTC()
		t.AuthoredOn = authoredOn.UTC()
		if blobID != nil {
			t.KeyBlobID = crypto.BlobID(*blobID)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return tasks, nil
}

func (r *repoPG) CountAllTasksForPatient(ctx context.Context, kvnrHashed crypto.HashedKvnr, args *search.Arguments) (int, error) {
	base := `SELECT COUNT(*) FROM ` + r.table + ` WHERE kvnr_hashed = $1 AND status != 4`
	baseArgs := []any{[]byte(kvnrHashed)}
	if args != nil {
		base, baseArgs = args.CompileCount(base, baseArgs)
	}

	var count int
	if err := r.conn(ctx).QueryRow(ctx, base, baseArgs...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count tasks for patient: %w", err)
	}
	return count, nil
}

func (r *repoPG) DeleteChargeItemSupportingInformation(ctx context.Context, id prescription.ID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE `+r.table+`
		 SET healthcare_provider_prescription = NULL, medication_dispense_bundle = NULL,
		     medication_dispense_blob_id = NULL, receipt = NULL
		 WHERE prescription_id = $1`, id.DatabaseID())
	if err != nil {
		return fmt.Errorf("delete charge item supporting information: %w", err)
	}
	return nil
}

func (r *repoPG) ClearAllChargeItemSupportingInformation(ctx context.Context, kvnrHashed crypto.HashedKvnr) error {
	_, err := r.conn(ctx).Exec(ctx,
		`UPDATE `+r.table+`
		 SET healthcare_provider_prescription = NULL, medication_dispense_bundle = NULL,
		     medication_dispense_blob_id = NULL, receipt = NULL
		 WHERE kvnr_hashed = $1`, []byte(kvnrHashed))
	if err != nil {
		return fmt.Errorf("clear charge item supporting information: %w", err)
	}
	return nil
}
