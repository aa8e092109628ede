package keys

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/erx/erx/internal/platform/crypto"
	"github.com/erx/erx/internal/platform/hsm"
)

// Derivation combines the HSM boundary, the CMAC key source and the process
// cache into the key material operations the repositories need. All methods
// are safe for concurrent use.
type Derivation struct {
	hsm    hsm.Client
	source CmacSource
	cache  *CmacCache
	now    func() time.Time
}

func NewDerivation(client hsm.Client, source CmacSource, cache *CmacCache) *Derivation {
	return &Derivation{
		hsm:    client,
		source: source,
		cache:  cache,
		now:    time.Now,
	}
}

// Pseudonymize turns a plaintext identifier into its deterministic pseudonym
// under the (category, validDate) key. The key is lazily minted by the source
// on first use for a not-yet-seen pair.
func (d *Derivation) Pseudonymize(ctx context.Context, plaintext string, category CmacCategory, validDate time.Time) (crypto.HashedID, error) {
	key, ok := d.cache.Get(category, validDate)
	if !ok {
		var err error
		key, err = d.source.AcquireCmac(ctx, validDate, category)
		if err != nil {
			return nil, fmt.Errorf("pseudonymize %s: %w", category, err)
		}
		d.cache.Put(category, validDate, key)
	}

	hashed, err := key.Hash([]byte(plaintext))
	if err != nil {
		return nil, fmt.Errorf("pseudonymize %s: %w", category, err)
	}
	return hashed, nil
}

// HashKvnr pseudonymizes an insurant identifier with today's user key.
func (d *Derivation) HashKvnr(ctx context.Context, kvnr string) (crypto.HashedKvnr, error) {
	return d.Pseudonymize(ctx, kvnr, CategoryUser, d.now())
}

// HashTelematikID pseudonymizes a pharmacy/provider identifier with today's
// telematik key.
func (d *Derivation) HashTelematikID(ctx context.Context, tid string) (crypto.HashedTelematikID, error) {
	return d.Pseudonymize(ctx, tid, CategoryTelematik, d.now())
}

// HashIdentity dispatches on the identifier shape: insurant identifiers go
// through the user key, everything else through the telematik key.
func (d *Derivation) HashIdentity(ctx context.Context, identity string) (crypto.HashedID, error) {
	if IsKvnr(identity) {
		return d.HashKvnr(ctx, identity)
	}
	return d.HashTelematikID(ctx, identity)
}

// NewSalt draws a fresh salt from the HSM boundary.
func (d *Derivation) NewSalt() (crypto.Salt, error) {
	b, err := d.hsm.RandomBytes(crypto.SaltLength)
	if err != nil {
		return nil, err
	}
	return crypto.Salt(b), nil
}

// CurrentBlobID returns the master-key generation for new writes.
func (d *Derivation) CurrentBlobID() crypto.BlobID {
	return d.hsm.CurrentBlobID()
}

// TaskKey derives the symmetric key protecting a task's encrypted fields.
// The derivation context binds prescription id, workflow type and the
// store-rounded authoring time, so the same tuple always re-derives the same
// key regardless of which process asks.
func (d *Derivation) TaskKey(id int64, flowType uint8, authoredOn time.Time, blobID crypto.BlobID, salt crypto.Salt) ([]byte, error) {
	data := make([]byte, 0, 17)
	data = binary.BigEndian.AppendUint64(data, uint64(id))
	data = append(data, flowType)
	data = binary.BigEndian.AppendUint64(data, uint64(authoredOn.UTC().Unix()))
	return d.hsm.DeriveKey(blobID, salt, append([]byte("task/"), data...))
}

// MedicationDispenseKey derives the per-insurant dispense key.
func (d *Derivation) MedicationDispenseKey(kvnr crypto.HashedKvnr, blobID crypto.BlobID, salt crypto.Salt) ([]byte, error) {
	return d.hsm.DeriveKey(blobID, salt, append([]byte("dispense/"), kvnr...))
}

// AuditEventKey derives the per-insurant audit log key.
func (d *Derivation) AuditEventKey(kvnr crypto.HashedKvnr, blobID crypto.BlobID, salt crypto.Salt) ([]byte, error) {
	return d.hsm.DeriveKey(blobID, salt, append([]byte("audit/"), kvnr...))
}

// CommunicationKey derives the message key for one pseudonymous party.
func (d *Derivation) CommunicationKey(identity crypto.HashedID, blobID crypto.BlobID, salt crypto.Salt) ([]byte, error) {
	return d.hsm.DeriveKey(blobID, salt, append([]byte("communication/"), identity...))
}

// ChargeItemKey derives the key protecting a charge item's document references.
func (d *Derivation) ChargeItemKey(prescriptionID string, blobID crypto.BlobID, salt crypto.Salt) ([]byte, error) {
	return d.hsm.DeriveKey(blobID, salt, append([]byte("chargeitem/"), prescriptionID...))
}
