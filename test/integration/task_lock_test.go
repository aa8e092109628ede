package integration

import (
	"context"
	"testing"
	"time"

	"github.com/erx/erx/internal/domain/prescription"
	"github.com/erx/erx/internal/domain/task"
	"github.com/erx/erx/internal/platform/db"
)

// lockProbeDelay is how long a competing transaction must stay blocked before
// the test accepts that the row lock is actually held.
const lockProbeDelay = 300 * time.Millisecond

func TestTaskRowLockSerializesStatusTransitions(t *testing.T) {
	tdb := requireDB(t)
	ctx := context.Background()
	repo := taskRepo(t, prescription.FlowTypeStatutory)

	kvnr := newPseudonym()
	id := createActivatedTask(t, ctx, repo, kvnr, time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC))

	// First transaction takes the lock and transitions ready -> in-progress.
	tx1, err := tdb.Pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin first transaction: %v", err)
	}
	defer tx1.Rollback(ctx)
	ctx1 := db.WithTx(ctx, tx1)

	got, err := repo.RetrieveTaskForUpdate(ctx1, id)
	if err != nil {
		t.Fatalf("first retrieval: %v", err)
	}
	if got == nil || got.Status != task.StatusReady {
		t.Fatalf("first retrieval: got %+v, want ready task", got)
	}

	// Second transaction tries the same row and must block until the first
	// commits, then observe the committed transition.
	var second *task.Task
	var secondErr error
	unblocked := make(chan struct{})
	go func() {
		defer close(unblocked)
		tx2, err := tdb.Pool.Begin(ctx)
		if err != nil {
			secondErr = err
			return
		}
		defer tx2.Rollback(ctx)
		second, secondErr = repo.RetrieveTaskForUpdate(db.WithTx(ctx, tx2), id)
	}()

	select {
	case <-unblocked:
		t.Fatal("second transaction acquired the row lock while the first still held it")
	case <-time.After(lockProbeDelay):
	}

	now := time.Date(2024, 4, 2, 9, 5, 0, 0, time.UTC)
	if err := repo.UpdateTaskStatusAndSecret(ctx1, id, task.StatusInProgress, now, blob("secret-ct")); err != nil {
		t.Fatalf("status transition: %v", err)
	}
	if err := tx1.Commit(ctx); err != nil {
		t.Fatalf("commit first transaction: %v", err)
	}

	select {
	case <-unblocked:
	case <-time.After(5 * time.Second):
		t.Fatal("second transaction still blocked after the first committed")
	}
	if secondErr != nil {
		t.Fatalf("second retrieval: %v", secondErr)
	}
	if second == nil {
		t.Fatal("second retrieval returned no task")
	}
	if second.Status != task.StatusInProgress {
		t.Errorf("second retrieval status = %v, want %v", second.Status, task.StatusInProgress)
	}
	if len(second.Secret) == 0 {
		t.Error("second retrieval must see the committed secret")
	}
}

func TestRetrievalWithPrescriptionHoldsRowLock(t *testing.T) {
	tdb := requireDB(t)
	ctx := context.Background()
	repo := taskRepo(t, prescription.FlowTypeStatutory)

	kvnr := newPseudonym()
	id := createActivatedTask(t, ctx, repo, kvnr, time.Date(2024, 4, 3, 11, 0, 0, 0, time.UTC))

	// The abort flow reads task plus prescription and then transitions the
	// state, so this retrieval has to hold the row against a competitor.
	tx1, err := tdb.Pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin first transaction: %v", err)
	}
	defer tx1.Rollback(ctx)
	ctx1 := db.WithTx(ctx, tx1)

	got, err := repo.RetrieveTaskAndPrescription(ctx1, id)
	if err != nil {
		t.Fatalf("retrieve task and prescription: %v", err)
	}
	if got == nil || len(got.Prescription) == 0 {
		t.Fatalf("retrieve task and prescription: got %+v, want prescription ciphertext", got)
	}

	var secondErr error
	unblocked := make(chan struct{})
	go func() {
		defer close(unblocked)
		tx2, err := tdb.Pool.Begin(ctx)
		if err != nil {
			secondErr = err
			return
		}
		defer tx2.Rollback(ctx)
		_, secondErr = repo.RetrieveTaskForUpdate(db.WithTx(ctx, tx2), id)
	}()

	select {
	case <-unblocked:
		t.Fatal("competing transaction got the row while the prescription retrieval held it")
	case <-time.After(lockProbeDelay):
	}

	if err := tx1.Rollback(ctx); err != nil {
		t.Fatalf("rollback first transaction: %v", err)
	}

	select {
	case <-unblocked:
	case <-time.After(5 * time.Second):
		t.Fatal("competing transaction still blocked after the lock was released")
	}
	if secondErr != nil {
		t.Fatalf("competing retrieval: %v", secondErr)
	}
}
