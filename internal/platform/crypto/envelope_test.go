package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate test key: %v", err)
	}
	return key
}

func TestNewEnvelope(t *testing.T) {
	t.Run("valid 32-byte key", func(t *testing.T) {
		env, err := NewEnvelope(testKey(t))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if env == nil {
			t.Fatal("expected non-nil envelope")
		}
	})

	t.Run("key too short", func(t *testing.T) {
		if _, err := NewEnvelope(make([]byte, 16)); err == nil {
			t.Fatal("expected error for 16-byte key")
		}
	})

	t.Run("empty key", func(t *testing.T) {
		if _, err := NewEnvelope(nil); err == nil {
			t.Fatal("expected error for empty key")
		}
	})
}

func TestSealOpenRoundTrip(t *testing.T) {
	env, err := NewEnvelope(testKey(t))
	if err != nil {
		t.Fatalf("create envelope: %v", err)
	}

	cases := [][]byte{
		[]byte("X123456789"),
		[]byte(`{"resourceType":"Bundle","type":"document"}`),
		[]byte(""),
		{0x00, 0x01, 0x02, 0xff, 0xfe},
	}

	for _, plaintext := range cases {
		blob, err := env.Seal(plaintext)
		if err != nil {
			t.Fatalf("seal: %v", err)
		}
		got, err := env.Open(blob)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("round trip mismatch: got %q, want %q", got, plaintext)
		}
	}
}

func TestOpenWrongKey(t *testing.T) {
	env1, _ := NewEnvelope(testKey(t))
	env2, _ := NewEnvelope(testKey(t))

	blob, err := env1.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	_, err = env2.Open(blob)
	if !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestOpenTamperedCiphertext(t *testing.T) {
	env, _ := NewEnvelope(testKey(t))

	blob, err := env.Seal([]byte("secret"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	blob[len(blob)-1] ^= 0x01

	if _, err := env.Open(blob); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestOpenTruncated(t *testing.T) {
	env, _ := NewEnvelope(testKey(t))
	if _, err := env.Open(EncryptedBlob{0x01, 0x02}); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestSealProducesFreshNonce(t *testing.T) {
	env, _ := NewEnvelope(testKey(t))

	a, _ := env.Seal([]byte("same plaintext"))
	b, _ := env.Seal([]byte("same plaintext"))
	if bytes.Equal(a, b) {
		t.Fatal("two seals of the same plaintext must not produce identical blobs")
	}
}
