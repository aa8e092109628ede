package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/erx/erx/internal/backend"
	"github.com/erx/erx/internal/domain/chargeitem"
	"github.com/erx/erx/internal/domain/communication"
	"github.com/erx/erx/internal/domain/consent"
	"github.com/erx/erx/internal/domain/prescription"
	"github.com/erx/erx/internal/platform/crypto"
)

func TestWithdrawConsentCascadeAgainstStore(t *testing.T) {
	tdb := requireDB(t)
	ctx := context.Background()

	kvnr := newPseudonym()
	pharmacy := newPseudonym()

	privateRepo := taskRepo(t, prescription.FlowTypePrivate)
	statutoryRepo := taskRepo(t, prescription.FlowTypeStatutory)
	privateID := createActivatedTask(t, ctx, privateRepo, kvnr, time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC))
	statutoryID := createActivatedTask(t, ctx, statutoryRepo, kvnr, time.Date(2024, 6, 4, 9, 0, 0, 0, time.UTC))

	consentRepo := consent.NewRepoPG(tdb.Pool)
	if err := consentRepo.StoreConsent(ctx, kvnr, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("store consent: %v", err)
	}

	chargeRepo := chargeitem.NewRepoPG(tdb.Pool)
	if err := chargeRepo.StoreChargeInformation(ctx, newChargeItem(privateID, kvnr)); err != nil {
		t.Fatalf("store charge item: %v", err)
	}

	commRepo := communication.NewRepoPG(tdb.Pool)
	insertMessage := func(msgType communication.MessageType) uuid.UUID {
		t.Helper()
		id, err := commRepo.InsertCommunication(ctx, &communication.Communication{
			MessageType:         msgType,
			Sender:              crypto.HashedID(kvnr),
			Recipient:           crypto.HashedID(pharmacy),
			Sent:                time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC),
			PrescriptionID:      &privateID,
			SenderBlobID:        crypto.BlobID(1),
			RecipientBlobID:     crypto.BlobID(1),
			MessageForSender:    blob("message-for-sender-ct"),
			MessageForRecipient: blob("message-for-recipient-ct"),
		})
		if err != nil {
			t.Fatalf("insert communication type %d: %v", msgType, err)
		}
		return id
	}
	chargeMsgID := insertMessage(communication.MessageChargChangeReq)
	dispMsgID := insertMessage(communication.MessageDispReq)

	repos, err := backend.PostgresRepositories(tdb.Pool)
	if err != nil {
		t.Fatalf("wire repositories: %v", err)
	}
	be, err := backend.New(ctx, tdb.Pool, repos, zerolog.Nop())
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	defer be.CloseConnection(ctx)

	existed, err := be.WithdrawConsent(ctx, kvnr)
	if err != nil {
		t.Fatalf("withdraw consent: %v", err)
	}
	if !existed {
		t.Fatal("withdrawal must report the existing consent row")
	}
	if err := be.CommitTransaction(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if !be.IsCommitted() {
		t.Fatal("backend must report the commit")
	}

	t.Run("consent row is gone", func(t *testing.T) {
		got, err := consentRepo.RetrieveConsentDateTime(ctx, kvnr)
		if err != nil {
			t.Fatalf("retrieve consent: %v", err)
		}
		if got != nil {
			t.Fatalf("consent still present: %v", got)
		}
	})

	t.Run("charge item is gone", func(t *testing.T) {
		got, err := chargeRepo.RetrieveChargeInformation(ctx, privateID)
		if err != nil {
			t.Fatalf("retrieve charge item: %v", err)
		}
		if got != nil {
			t.Fatal("charge item still present")
		}
	})

	t.Run("charge dialogue messages are gone, others stay", func(t *testing.T) {
		if exists, err := commRepo.ExistCommunication(ctx, chargeMsgID); err != nil || exists {
			t.Fatalf("charge change request: exists=%v err=%v, want deleted", exists, err)
		}
		if exists, err := commRepo.ExistCommunication(ctx, dispMsgID); err != nil || !exists {
			t.Fatalf("dispense request: exists=%v err=%v, want kept", exists, err)
		}
	})

	t.Run("private task loses its documents but keeps its state", func(t *testing.T) {
		got, err := privateRepo.RetrieveTaskAndPrescriptionAndReceipt(ctx, privateID)
		if err != nil {
			t.Fatalf("retrieve private task: %v", err)
		}
		if got == nil {
			t.Fatal("private task row must survive the cascade")
		}
		if len(got.Prescription) != 0 || len(got.Receipt) != 0 {
			t.Fatal("private task still carries charge item supporting documents")
		}
		if !got.KvnrHashed.Equal(crypto.HashedID(kvnr)) {
			t.Fatal("private task must stay bound to the patient pseudonym")
		}
	})

	t.Run("statutory task keeps its documents", func(t *testing.T) {
		got, err := statutoryRepo.RetrieveTaskAndPrescription(ctx, statutoryID)
		if err != nil {
			t.Fatalf("retrieve statutory task: %v", err)
		}
		if got == nil || len(got.Prescription) == 0 {
			t.Fatal("statutory task documents must survive a consent withdrawal")
		}
	})
}
