package keys

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/erx/erx/internal/platform/crypto"
	"github.com/erx/erx/internal/platform/hsm"
)

// fakeSource mints one key per (category, day) and counts acquisitions.
type fakeSource struct {
	mu       sync.Mutex
	keys     map[string]CmacKey
	acquired int
	fail     error
}

func (s *fakeSource) AcquireCmac(_ context.Context, validDate time.Time, category CmacCategory) (CmacKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	s.acquired++
	k := string(category) + ValidDay(validDate).Format("2006-01-02")
	if s.keys == nil {
		s.keys = make(map[string]CmacKey)
	}
	if existing, ok := s.keys[k]; ok {
		return existing, nil
	}
	key := make(CmacKey, 16)
	copy(key, k)
	s.keys[k] = key
	return key, nil
}

func newTestDerivation(t *testing.T, source CmacSource) *Derivation {
	t.Helper()
	master := make([]byte, 32)
	client, err := hsm.NewSoftwareClient(master, zerolog.Nop())
	if err != nil {
		t.Fatalf("software hsm: %v", err)
	}
	return NewDerivation(client, source, NewCmacCache(24*time.Hour))
}

func TestPseudonymizeDeterministic(t *testing.T) {
	d := newTestDerivation(t, &fakeSource{})
	ctx := context.Background()
	day := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	a, err := d.Pseudonymize(ctx, "X123456789", CategoryUser, day)
	if err != nil {
		t.Fatalf("pseudonymize: %v", err)
	}
	b, err := d.Pseudonymize(ctx, "X123456789", CategoryUser, day)
	if err != nil {
		t.Fatalf("pseudonymize: %v", err)
	}
	if !a.Equal(b) {
		t.Fatal("same identifier and day must map to the same pseudonym")
	}

	c, err := d.Pseudonymize(ctx, "X123456780", CategoryUser, day)
	if err != nil {
		t.Fatalf("pseudonymize: %v", err)
	}
	if a.Equal(c) {
		t.Fatal("different identifiers must not collide")
	}

	// Different category, same plaintext: different key, different pseudonym.
	tel, err := d.Pseudonymize(ctx, "X123456789", CategoryTelematik, day)
	if err != nil {
		t.Fatalf("pseudonymize: %v", err)
	}
	if a.Equal(tel) {
		t.Fatal("categories must not share keys")
	}
}

func TestPseudonymizeUsesCache(t *testing.T) {
	source := &fakeSource{}
	d := newTestDerivation(t, source)
	ctx := context.Background()
	day := time.Now()

	for i := 0; i < 5; i++ {
		if _, err := d.Pseudonymize(ctx, "3-SMC-B-Testkarte-883110000120312", CategoryTelematik, day); err != nil {
			t.Fatalf("pseudonymize: %v", err)
		}
	}
	if source.acquired != 1 {
		t.Fatalf("expected a single key acquisition, got %d", source.acquired)
	}
}

func TestPseudonymizeKeyUnavailable(t *testing.T) {
	source := &fakeSource{fail: hsm.ErrKeyUnavailable}
	d := newTestDerivation(t, source)

	_, err := d.Pseudonymize(context.Background(), "X123456789", CategoryUser, time.Now())
	if !errors.Is(err, hsm.ErrKeyUnavailable) {
		t.Fatalf("expected ErrKeyUnavailable, got %v", err)
	}
}

func TestHashIdentityDispatch(t *testing.T) {
	d := newTestDerivation(t, &fakeSource{})
	ctx := context.Background()

	kvnr, err := d.HashIdentity(ctx, "X123456789")
	if err != nil {
		t.Fatalf("hash identity: %v", err)
	}
	direct, err := d.HashKvnr(ctx, "X123456789")
	if err != nil {
		t.Fatalf("hash kvnr: %v", err)
	}
	if !kvnr.Equal(direct) {
		t.Fatal("kvnr-shaped identity must go through the user key")
	}

	tid, err := d.HashIdentity(ctx, "3-SMC-B-Testkarte-883110000120312")
	if err != nil {
		t.Fatalf("hash identity: %v", err)
	}
	directTid, err := d.HashTelematikID(ctx, "3-SMC-B-Testkarte-883110000120312")
	if err != nil {
		t.Fatalf("hash telematik id: %v", err)
	}
	if !tid.Equal(directTid) {
		t.Fatal("non-kvnr identity must go through the telematik key")
	}
}

func TestTaskKeyBinding(t *testing.T) {
	d := newTestDerivation(t, &fakeSource{})
	authored := time.Date(2025, 5, 2, 11, 0, 0, 0, time.UTC)
	salt := crypto.Salt{1, 2, 3}

	a, err := d.TaskKey(4711, 160, authored, 1, salt)
	if err != nil {
		t.Fatalf("task key: %v", err)
	}
	same, err := d.TaskKey(4711, 160, authored, 1, salt)
	if err != nil {
		t.Fatalf("task key: %v", err)
	}
	if !bytes.Equal(a, same) {
		t.Fatal("task key must be deterministic")
	}

	otherID, _ := d.TaskKey(4712, 160, authored, 1, salt)
	if bytes.Equal(a, otherID) {
		t.Fatal("key must change with prescription id")
	}
	otherType, _ := d.TaskKey(4711, 200, authored, 1, salt)
	if bytes.Equal(a, otherType) {
		t.Fatal("key must change with workflow type")
	}
	otherTime, _ := d.TaskKey(4711, 160, authored.Add(time.Second), 1, salt)
	if bytes.Equal(a, otherTime) {
		t.Fatal("key must change with authoring time")
	}
}

func TestIsKvnr(t *testing.T) {
	cases := map[string]bool{
		"X123456789":                        true,
		"A000000001":                        true,
		"x123456789":                        false,
		"X12345678":                         false,
		"3-SMC-B-Testkarte-883110000120312": false,
		"":                                  false,
	}
	for identity, want := range cases {
		if got := IsKvnr(identity); got != want {
			t.Errorf("IsKvnr(%q) = %v, want %v", identity, got, want)
		}
	}
}

func TestCmacCacheGraceEviction(t *testing.T) {
	cache := NewCmacCache(2 * time.Hour)
	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	cache.Put(CategoryUser, day, CmacKey(make([]byte, 16)))

	// Within valid day + grace: still present.
	cache.now = func() time.Time { return day.Add(25 * time.Hour) }
	if _, ok := cache.Get(CategoryUser, day); !ok {
		t.Fatal("key must survive until the grace window ends")
	}

	// Past valid day + grace: evicted.
	cache.now = func() time.Time { return day.Add(27 * time.Hour) }
	if _, ok := cache.Get(CategoryUser, day); ok {
		t.Fatal("key must be evicted after the grace window")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected empty cache, have %d entries", cache.Len())
	}
}
