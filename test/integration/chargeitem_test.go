package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erx/erx/internal/domain/chargeitem"
	"github.com/erx/erx/internal/domain/prescription"
	"github.com/erx/erx/internal/platform/crypto"
)

func newChargeItem(id prescription.ID, kvnrHashed crypto.HashedKvnr) *chargeitem.ChargeItem {
	entered := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	return &chargeitem.ChargeItem{
		PrescriptionID: id,
		Enterer:        newPseudonym(),
		EnteredDate:    entered,
		LastModified:   entered,
		BlobID:         crypto.BlobID(3),
		Salt:           crypto.Salt("charge-item-salt"),
		AccessCode:     blob("access-code-ct"),
		Kvnr:           blob("kvnr-ct"),
		KvnrHashed:     kvnrHashed,
		Prescription:   blob("prescription-ct"),
	}
}

func TestChargeItemUniquePerPrescription(t *testing.T) {
	tdb := requireDB(t)
	ctx := context.Background()
	repo := chargeitem.NewRepoPG(tdb.Pool)

	kvnr := newPseudonym()
	privateRepo := taskRepo(t, prescription.FlowTypePrivate)
	id := createActivatedTask(t, ctx, privateRepo, kvnr, time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC))

	if err := repo.StoreChargeInformation(ctx, newChargeItem(id, kvnr)); err != nil {
		t.Fatalf("first store: %v", err)
	}

	t.Run("duplicate is rejected by the store", func(t *testing.T) {
		err := repo.StoreChargeInformation(ctx, newChargeItem(id, kvnr))
		if !errors.Is(err, chargeitem.ErrDuplicate) {
			t.Fatalf("second store: got %v, want ErrDuplicate", err)
		}
	})

	t.Run("same number under another workflow type is distinct", func(t *testing.T) {
		// The per-type task tables have independent sequences, so the same
		// number can legitimately exist under both private types.
		other := prescription.NewID(prescription.FlowTypeDirectAssignmentPrivate, id.DatabaseID())
		if err := repo.StoreChargeInformation(ctx, newChargeItem(other, kvnr)); err != nil {
			t.Fatalf("store under other workflow type: %v", err)
		}
	})
}
