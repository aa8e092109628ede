// Package backend is the single surface callers use to reach the encrypted
// store. A Backend owns exactly one relational transaction: it is begun at
// construction, every repository call runs on it, and the caller either
// commits explicitly or lets CloseConnection roll it back. No repository call
// ever spans two transactions.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/erx/erx/internal/domain/account"
	"github.com/erx/erx/internal/domain/audit"
	"github.com/erx/erx/internal/domain/chargeitem"
	"github.com/erx/erx/internal/domain/communication"
	"github.com/erx/erx/internal/domain/consent"
	"github.com/erx/erx/internal/domain/dispense"
	"github.com/erx/erx/internal/domain/prescription"
	"github.com/erx/erx/internal/domain/task"
	"github.com/erx/erx/internal/platform/crypto"
	"github.com/erx/erx/internal/platform/db"
	"github.com/erx/erx/internal/platform/keys"
	"github.com/erx/erx/internal/platform/search"
)

// TxBeginner starts the backend's transaction. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repositories bundles the entity stores a Backend routes to. Tests inject
// fakes here; production wiring comes from PostgresRepositories.
type Repositories struct {
	Tasks          map[prescription.FlowType]task.Repository
	Dispenses      dispense.Repository
	Communications communication.Repository
	ChargeItems    chargeitem.Repository
	Consents       consent.Repository
	Audit          audit.Repository
	Accounts       account.Repository
}

// PostgresRepositories wires the relational implementations, one task store
// per workflow type.
func PostgresRepositories(pool *pgxpool.Pool) (Repositories, error) {
	tasks := make(map[prescription.FlowType]task.Repository, 4)
	for _, ft := range []prescription.FlowType{
		prescription.FlowTypeStatutory,
		prescription.FlowTypeDirectAssignment,
		prescription.FlowTypePrivate,
		prescription.FlowTypeDirectAssignmentPrivate,
	} {
		repo, err := task.NewRepoPG(pool, ft)
		if err != nil {
			return Repositories{}, fmt.Errorf("task repository %d: %w", ft, err)
		}
		tasks[ft] = repo
	}
	return Repositories{
		Tasks:          tasks,
		Dispenses:      dispense.NewRepoPG(pool),
		Communications: communication.NewRepoPG(pool),
		ChargeItems:    chargeitem.NewRepoPG(pool),
		Consents:       consent.NewRepoPG(pool),
		Audit:          audit.NewRepoPG(pool),
		Accounts:       account.NewRepoPG(pool),
	}, nil
}

// Backend is one logical request's view of the store.
type Backend struct {
	tx        pgx.Tx
	repos     Repositories
	committed bool
	closed    bool
	log       zerolog.Logger
}

// New begins the transaction and returns the backend bound to it. The caller
// must end the transaction with CommitTransaction or CloseConnection.
func New(ctx context.Context, beginner TxBeginner, repos Repositories, log zerolog.Logger) (*Backend, error) {
	tx, err := beginner.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Backend{tx: tx, repos: repos, log: log}, nil
}

// withTx routes repository calls onto the backend's transaction.
func (b *Backend) withTx(ctx context.Context) context.Context {
	return db.WithTx(ctx, b.tx)
}

// CommitTransaction flushes all writes. After a successful commit IsCommitted
// reports true; a failed commit leaves the transaction aborted.
func (b *Backend) CommitTransaction(ctx context.Context) error {
	if b.closed {
		return errors.New("transaction already closed")
	}
	b.closed = true
	if err := b.tx.Commit(ctx); err != nil {
		txOutcomes.WithLabelValues("rollback").Inc()
		return fmt.Errorf("commit transaction: %w", err)
	}
	b.committed = true
	txOutcomes.WithLabelValues("commit").Inc()
	return nil
}

// CloseConnection rolls back if the transaction was never committed. Safe to
// call after CommitTransaction and safe to call twice.
func (b *Backend) CloseConnection(ctx context.Context) {
	if b.closed {
		return
	}
	b.closed = true
	if err := b.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		b.log.Warn().Err(err).Msg("transaction rollback failed")
	}
	txOutcomes.WithLabelValues("rollback").Inc()
}

// IsCommitted reports whether the transaction reached the store. Callers
// assert it before acknowledging a write to an external client.
func (b *Backend) IsCommitted() bool { return b.committed }

func (b *Backend) taskRepo(flowType prescription.FlowType) (task.Repository, error) {
	repo, ok := b.repos.Tasks[flowType]
	if !ok {
		return nil, fmt.Errorf("no task repository for flow type %d", flowType)
	}
	return repo, nil
}

// --- tasks ---

func (b *Backend) CreateTask(ctx context.Context, flowType prescription.FlowType, status task.Status, lastModified, authoredOn time.Time) (prescription.ID, time.Time, error) {
	repo, err := b.taskRepo(flowType)
	if err != nil {
		return prescription.ID{}, time.Time{}, err
	}
	return repo.CreateTask(b.withTx(ctx), status, lastModified, authoredOn)
}

func (b *Backend) UpdateTask(ctx context.Context, id prescription.ID, accessCode crypto.EncryptedBlob, blobID crypto.BlobID, salt crypto.Salt) error {
	repo, err := b.taskRepo(id.FlowType())
	if err != nil {
		return err
	}
	return repo.UpdateTask(b.withTx(ctx), id, accessCode, blobID, salt)
}

func (b *Backend) GetTaskKeyData(ctx context.Context, id prescription.ID) (*task.KeyData, error) {
	repo, err := b.taskRepo(id.FlowType())
	if err != nil {
		return nil, err
	}
	return repo.GetTaskKeyData(b.withTx(ctx), id)
}

func (b *Backend) UpdateTaskStatusAndSecret(ctx context.Context, id prescription.ID, status task.Status, lastModified time.Time, secret crypto.EncryptedBlob) error {
	repo, err := b.taskRepo(id.FlowType())
	if err != nil {
		return err
	}
	return repo.UpdateTaskStatusAndSecret(b.withTx(ctx), id, status, lastModified, secret)
}

func (b *Backend) ActivateTask(ctx context.Context, id prescription.ID, activation task.Activation) error {
	repo, err := b.taskRepo(id.FlowType())
	if err != nil {
		return err
	}
	return repo.ActivateTask(b.withTx(ctx), id, activation)
}

func (b *Backend) UpdateTaskMedicationDispenseReceipt(ctx context.Context, id prescription.ID, update task.DispenseUpdate) error {
	repo, err := b.taskRepo(id.FlowType())
	if err != nil {
		return err
	}
	return repo.UpdateTaskMedicationDispenseReceipt(b.withTx(ctx), id, update)
}

func (b *Backend) UpdateTaskClearPersonalData(ctx context.Context, id prescription.ID, status task.Status, lastModified time.Time) error {
	repo, err := b.taskRepo(id.FlowType())
	if err != nil {
		return err
	}
	return repo.UpdateTaskClearPersonalData(b.withTx(ctx), id, status, lastModified)
}

func (b *Backend) RetrieveTaskForUpdate(ctx context.Context, id prescription.ID) (*task.Task, error) {
	repo, err := b.taskRepo(id.FlowType())
	if err != nil {
		return nil, err
	}
	return repo.RetrieveTaskForUpdate(b.withTx(ctx), id)
}

func (b *Backend) RetrieveTaskForUpdateAndPrescription(ctx context.Context, id prescription.ID) (*task.Task, error) {
	repo, err := b.taskRepo(id.FlowType())
	if err != nil {
		return nil, err
	}
	return repo.RetrieveTaskForUpdateAndPrescription(b.withTx(ctx), id)
}

func (b *Backend) RetrieveTaskAndReceipt(ctx context.Context, id prescription.ID) (*task.Task, error) {
	repo, err := b.taskRepo(id.FlowType())
	if err != nil {
		return nil, err
	}
	return repo.RetrieveTaskAndReceipt(b.withTx(ctx), id)
}

func (b *Backend) RetrieveTaskAndPrescription(ctx context.Context, id prescription.ID) (*task.Task, error) {
	repo, err := b.taskRepo(id.FlowType())
	if err != nil {
		return nil, err
	}
	return repo.RetrieveTaskAndPrescription(b.withTx(ctx), id)
}

func (b *Backend) RetrieveTaskAndPrescriptionAndReceipt(ctx context.Context, id prescription.ID) (*task.Task, error) {
	repo, err := b.taskRepo(id.FlowType())
	if err != nil {
		return nil, err
	}
	return repo.RetrieveTaskAndPrescriptionAndReceipt(b.withTx(ctx), id)
}

// RetrieveAllTasksForPatient lists one workflow type's tasks for the patient.
// Merging across workflow types is the caller's concern, as is re-running the
// query per type.
func (b *Backend) RetrieveAllTasksForPatient(ctx context.Context, flowType prescription.FlowType, kvnrHashed crypto.HashedKvnr, args *search.Arguments) ([]task.Task, error) {
	repo, err := b.taskRepo(flowType)
	if err != nil {
		return nil, err
	}
	return repo.RetrieveAllTasksForPatient(b.withTx(ctx), kvnrHashed, args)
}

func (b *Backend) CountAllTasksForPatient(ctx context.Context, flowType prescription.FlowType, kvnrHashed crypto.HashedKvnr, args *search.Arguments) (int, error) {
	repo, err := b.taskRepo(flowType)
	if err != nil {
		return 0, err
	}
	return repo.CountAllTasksForPatient(b.withTx(ctx), kvnrHashed, args)
}

// --- dispenses ---

func (b *Backend) RetrieveAllMedicationDispenses(ctx context.Context, kvnrHashed crypto.HashedKvnr, id *prescription.ID, args *search.Arguments) ([]dispense.MedicationDispense, error) {
	return b.repos.Dispenses.RetrieveAllMedicationDispenses(b.withTx(ctx), kvnrHashed, id, args)
}

func (b *Backend) CountAllMedicationDispenses(ctx context.Context, kvnrHashed crypto.HashedKvnr, args *search.Arguments) (int, error) {
	return b.repos.Dispenses.CountAllMedicationDispenses(b.withTx(ctx), kvnrHashed, args)
}

// --- communications ---

func (b *Backend) InsertCommunication(ctx context.Context, comm *communication.Communication) (uuid.UUID, error) {
	return b.repos.Communications.InsertCommunication(b.withTx(ctx), comm)
}

func (b *Backend) CountRepresentativeCommunications(ctx context.Context, insurantA, insurantB crypto.HashedKvnr, id prescription.ID) (int, error) {
	return b.repos.Communications.CountRepresentativeCommunications(b.withTx(ctx), insurantA, insurantB, id)
}

func (b *Backend) ExistCommunication(ctx context.Context, id uuid.UUID) (bool, error) {
	return b.repos.Communications.ExistCommunication(b.withTx(ctx), id)
}

func (b *Backend) RetrieveCommunications(ctx context.Context, user crypto.HashedID, id *uuid.UUID, args *search.Arguments) ([]communication.Retrieved, error) {
	return b.repos.Communications.RetrieveCommunications(b.withTx(ctx), user, id, args)
}

func (b *Backend) CountCommunications(ctx context.Context, user crypto.HashedID, args *search.Arguments) (int, error) {
	return b.repos.Communications.CountCommunications(b.withTx(ctx), user, args)
}

func (b *Backend) DeleteCommunication(ctx context.Context, id uuid.UUID, sender crypto.HashedID) (*uuid.UUID, *time.Time, error) {
	return b.repos.Communications.DeleteCommunication(b.withTx(ctx), id, sender)
}

func (b *Backend) DeleteCommunicationsForTask(ctx context.Context, id prescription.ID) error {
	return b.repos.Communications.DeleteCommunicationsForTask(b.withTx(ctx), id)
}

func (b *Backend) MarkCommunicationsAsRetrieved(ctx context.Context, ids []uuid.UUID, retrieved time.Time, recipient crypto.HashedID) error {
	return b.repos.Communications.MarkCommunicationsAsRetrieved(b.withTx(ctx), ids, retrieved, recipient)
}

// --- charge items ---

// StoreChargeInformation maps the store's duplicate error to ErrConflict.
func (b *Backend) StoreChargeInformation(ctx context.Context, item *chargeitem.ChargeItem) error {
	err := b.repos.ChargeItems.StoreChargeInformation(b.withTx(ctx), item)
	if errors.Is(err, chargeitem.ErrDuplicate) {
		return fmt.Errorf("store charge information: %w", ErrConflict)
	}
	return err
}

func (b *Backend) UpdateChargeInformation(ctx context.Context, item *chargeitem.ChargeItem) error {
	return b.repos.ChargeItems.UpdateChargeInformation(b.withTx(ctx), item)
}

func (b *Backend) RetrieveChargeInformation(ctx context.Context, id prescription.ID) (*chargeitem.ChargeItem, error) {
	return b.repos.ChargeItems.RetrieveChargeInformation(b.withTx(ctx), id)
}

func (b *Backend) RetrieveChargeInformationForUpdate(ctx context.Context, id prescription.ID) (*chargeitem.ChargeItem, error) {
	return b.repos.ChargeItems.RetrieveChargeInformationForUpdate(b.withTx(ctx), id)
}

func (b *Backend) RetrieveAllChargeItemsForInsurant(ctx context.Context, kvnrHashed crypto.HashedKvnr, args *search.Arguments) ([]chargeitem.ChargeItem, error) {
	return b.repos.ChargeItems.RetrieveAllChargeItemsForInsurant(b.withTx(ctx), kvnrHashed, args)
}

func (b *Backend) CountChargeInformationForInsurant(ctx context.Context, kvnrHashed crypto.HashedKvnr, args *search.Arguments) (int, error) {
	return b.repos.ChargeItems.CountChargeInformationForInsurant(b.withTx(ctx), kvnrHashed, args)
}

// DeleteChargeInformation removes the charge item with its dependent
// communications and the task-side document references, in this transaction.
func (b *Backend) DeleteChargeInformation(ctx context.Context, id prescription.ID) error {
	ctx = b.withTx(ctx)
	if err := b.repos.ChargeItems.DeleteChargeInformation(ctx, id); err != nil {
		return err
	}
	if err := b.repos.Communications.DeleteCommunicationsForChargeItem(ctx, id); err != nil {
		return err
	}
	repo, err := b.taskRepo(id.FlowType())
	if err != nil {
		return err
	}
	return repo.DeleteChargeItemSupportingInformation(ctx, id)
}

// --- consent ---

// StoreConsent maps a repeated opt-in to ErrConflict.
func (b *Backend) StoreConsent(ctx context.Context, kvnrHashed crypto.HashedKvnr, createdAt time.Time) error {
	err := b.repos.Consents.StoreConsent(b.withTx(ctx), kvnrHashed, createdAt)
	if errors.Is(err, consent.ErrAlreadyGiven) {
		return fmt.Errorf("store consent: %w", ErrConflict)
	}
	return err
}

func (b *Backend) RetrieveConsentDateTime(ctx context.Context, kvnrHashed crypto.HashedKvnr) (*time.Time, error) {
	return b.repos.Consents.RetrieveConsentDateTime(b.withTx(ctx), kvnrHashed)
}

// ClearConsent deletes only the consent row. Callers withdrawing consent must
// use WithdrawConsent, which issues the full cascade.
func (b *Backend) ClearConsent(ctx context.Context, kvnrHashed crypto.HashedKvnr) (bool, error) {
	return b.repos.Consents.ClearConsent(b.withTx(ctx), kvnrHashed)
}

// WithdrawConsent is the consent-withdrawal unit of work: it removes the
// consent row, every charge item of the patient, every charge-item-related
// communication the patient participates in, and the charge-item document
// references on the patient's tasks. All four run on this backend's single
// transaction; either all are committed or none. Reports whether a consent
// row existed.
func (b *Backend) WithdrawConsent(ctx context.Context, kvnrHashed crypto.HashedKvnr) (bool, error) {
	ctx = b.withTx(ctx)

	existed, err := b.repos.Consents.ClearConsent(ctx, kvnrHashed)
	if err != nil {
		return false, err
	}
	if err := b.repos.ChargeItems.ClearAllChargeInformation(ctx, kvnrHashed); err != nil {
		return existed, err
	}
	if err := b.repos.Communications.ClearAllChargeItemCommunications(ctx, kvnrHashed); err != nil {
		return existed, err
	}
	for flowType, repo := range b.repos.Tasks {
		// Charge items exist only for the private workflows; the statutory
		// tables keep their documents.
		if !flowType.Private() {
			continue
		}
		if err := repo.ClearAllChargeItemSupportingInformation(ctx, kvnrHashed); err != nil {
			return existed, err
		}
	}
	return existed, nil
}

// --- audit ---

func (b *Backend) StoreAuditEventData(ctx context.Context, data *audit.Data) (uuid.UUID, error) {
	return b.repos.Audit.StoreAuditEventData(b.withTx(ctx), data)
}

func (b *Backend) RetrieveAuditEventData(ctx context.Context, kvnrHashed crypto.HashedKvnr, id *uuid.UUID, prescriptionID *prescription.ID, args *search.Arguments) ([]audit.Retrieved, error) {
	return b.repos.Audit.RetrieveAuditEventData(b.withTx(ctx), kvnrHashed, id, prescriptionID, args)
}

func (b *Backend) CountAuditEventData(ctx context.Context, kvnrHashed crypto.HashedKvnr, args *search.Arguments) (int, error) {
	return b.repos.Audit.CountAuditEventData(b.withTx(ctx), kvnrHashed, args)
}

// --- key/blob registry ---

func (b *Backend) RetrieveSaltForAccount(ctx context.Context, accountID crypto.HashedID, masterKeyType keys.MasterKeyType, blobID crypto.BlobID) (crypto.Salt, error) {
	return b.repos.Accounts.RetrieveSalt(b.withTx(ctx), account.SaltKey{
		AccountID:     accountID,
		MasterKeyType: masterKeyType,
		BlobID:        blobID,
	})
}

// InsertOrReturnAccountSalt persists candidate unless a salt already exists
// for the account key. The returned salt is always the authoritative one;
// callers must re-derive their encryption key from it.
func (b *Backend) InsertOrReturnAccountSalt(ctx context.Context, accountID crypto.HashedID, masterKeyType keys.MasterKeyType, blobID crypto.BlobID, candidate crypto.Salt) (crypto.Salt, error) {
	return b.repos.Accounts.InsertOrReturnSalt(b.withTx(ctx), account.SaltKey{
		AccountID:     accountID,
		MasterKeyType: masterKeyType,
		BlobID:        blobID,
	}, candidate)
}
