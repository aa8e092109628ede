package integration

import (
	"context"
	"testing"

	"github.com/erx/erx/internal/domain/audit"
	"github.com/erx/erx/internal/domain/prescription"
	"github.com/erx/erx/internal/platform/crypto"
)

// The per-type task tables allocate numbers independently, so a statutory and
// a private prescription can share a number. Filtering the trail by one of
// them must not surface entries of the other.
func TestAuditTrailKeepsWorkflowTypesApart(t *testing.T) {
	tdb := requireDB(t)
	ctx := context.Background()
	repo := audit.NewRepoPG(tdb.Pool)

	kvnr := newPseudonym()
	statutory := prescription.NewID(prescription.FlowTypeStatutory, 4711)
	private := prescription.NewID(prescription.FlowTypePrivate, 4711)

	store := func(id prescription.ID, eventID int16) {
		t.Helper()
		_, err := repo.StoreAuditEventData(ctx, &audit.Data{
			KvnrHashed:     kvnr,
			EventID:        eventID,
			Action:         audit.ActionRead,
			AgentType:      audit.AgentHuman,
			DeviceID:       1,
			PrescriptionID: &id,
			Metadata:       blob("metadata-ct"),
			BlobID:         crypto.BlobID(2),
		})
		if err != nil {
			t.Fatalf("store audit event for %s: %v", id, err)
		}
	}
	store(statutory, 10)
	store(private, 20)

	t.Run("filter by statutory id", func(t *testing.T) {
		got, err := repo.RetrieveAuditEventData(ctx, kvnr, nil, &statutory, nil)
		if err != nil {
			t.Fatalf("retrieve: %v", err)
		}
		if len(got) != 1 || got[0].EventID != 10 {
			t.Fatalf("got %d entries %+v, want only the statutory one", len(got), got)
		}
		if got[0].PrescriptionID == nil || *got[0].PrescriptionID != statutory {
			t.Fatalf("prescription id = %v, want %s", got[0].PrescriptionID, statutory)
		}
	})

	t.Run("filter by private id", func(t *testing.T) {
		got, err := repo.RetrieveAuditEventData(ctx, kvnr, nil, &private, nil)
		if err != nil {
			t.Fatalf("retrieve: %v", err)
		}
		if len(got) != 1 || got[0].EventID != 20 {
			t.Fatalf("got %d entries %+v, want only the private one", len(got), got)
		}
		if got[0].PrescriptionID == nil || *got[0].PrescriptionID != private {
			t.Fatalf("prescription id = %v, want %s", got[0].PrescriptionID, private)
		}
	})

	t.Run("unfiltered trail has both", func(t *testing.T) {
		got, err := repo.RetrieveAuditEventData(ctx, kvnr, nil, nil, nil)
		if err != nil {
			t.Fatalf("retrieve: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("got %d entries, want 2", len(got))
		}
	})
}
