package hsm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/erx/erx/internal/platform/crypto"
)

func newTestClient(t *testing.T) *SoftwareClient {
	t.Helper()
	master := make([]byte, 32)
	for i := range master {
		master[i] = byte(i)
	}
	c, err := NewSoftwareClient(master, zerolog.Nop())
	if err != nil {
		t.Fatalf("new software client: %v", err)
	}
	return c
}

func TestNewSoftwareClientRejectsBadMaster(t *testing.T) {
	if _, err := NewSoftwareClient(make([]byte, 16), zerolog.Nop()); err == nil {
		t.Fatal("expected error for short master key")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	c := newTestClient(t)
	salt := crypto.Salt{1, 2, 3, 4}

	a, err := c.DeriveKey(1, salt, []byte("task"))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := c.DeriveKey(1, salt, []byte("task"))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("derivation must be deterministic for fixed inputs")
	}
	if len(a) != 32 {
		t.Fatalf("derived key length = %d, want 32", len(a))
	}

	other, err := c.DeriveKey(1, salt, []byte("communication"))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if bytes.Equal(a, other) {
		t.Fatal("different contexts must yield different keys")
	}
}

func TestDeriveKeyUnknownGeneration(t *testing.T) {
	c := newTestClient(t)
	_, err := c.DeriveKey(99, crypto.Salt{1}, []byte("task"))
	if !errors.Is(err, ErrKeyUnavailable) {
		t.Fatalf("expected ErrKeyUnavailable, got %v", err)
	}
}

func TestRotateKeepsOldGenerations(t *testing.T) {
	c := newTestClient(t)
	salt := crypto.Salt{9, 9, 9}

	before, err := c.DeriveKey(1, salt, []byte("task"))
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	next := make([]byte, 32)
	for i := range next {
		next[i] = byte(100 + i)
	}
	id, err := c.Rotate(next)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if id != 2 || c.CurrentBlobID() != 2 {
		t.Fatalf("expected generation 2 after rotate, got %d", id)
	}

	after, err := c.DeriveKey(1, salt, []byte("task"))
	if err != nil {
		t.Fatalf("derive old generation: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("old generation must keep deriving the same key after rotation")
	}

	fresh, err := c.DeriveKey(2, salt, []byte("task"))
	if err != nil {
		t.Fatalf("derive new generation: %v", err)
	}
	if bytes.Equal(before, fresh) {
		t.Fatal("new generation must derive different keys")
	}
}

func TestRandomBytes(t *testing.T) {
	c := newTestClient(t)
	a, err := c.RandomBytes(32)
	if err != nil {
		t.Fatalf("random: %v", err)
	}
	b, err := c.RandomBytes(32)
	if err != nil {
		t.Fatalf("random: %v", err)
	}
	if len(a) != 32 || len(b) != 32 {
		t.Fatal("wrong length")
	}
	if bytes.Equal(a, b) {
		t.Fatal("two random draws should not be identical")
	}
}
