package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// ErrDecryptionFailed means the ciphertext could not be opened with the key
// derived from the recorded (BlobID, Salt) pair: wrong key generation,
// corruption or tampering. It is always fatal and never retried.
var ErrDecryptionFailed = errors.New("decryption failed")

// Envelope encrypts and decrypts field payloads with AES-256-GCM. It is
// stateless given the key material; the caller is responsible for deriving
// the key from the correct (BlobID, Salt) pair recorded with the ciphertext.
type Envelope struct {
	aead cipher.AEAD
}

// NewEnvelope creates an Envelope for the given 32-byte AES-256 key.
func NewEnvelope(key []byte) (*Envelope, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("envelope: key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("envelope: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("envelope: create GCM: %w", err)
	}

	return &Envelope{aead: aead}, nil
}

// Seal encrypts plaintext and returns the nonce prepended to the ciphertext.
func (e *Envelope) Seal(plaintext []byte) (EncryptedBlob, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("envelope seal: generate nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, so the result is nonce + ciphertext.
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open extracts the nonce from the front of blob and decrypts the remainder.
// Any failure is reported as ErrDecryptionFailed.
func (e *Envelope) Open(blob EncryptedBlob) ([]byte, error) {
	nonceSize := e.aead.NonceSize()
	if len(blob) < nonceSize {
		return nil, fmt.Errorf("envelope open: ciphertext too short: %w", ErrDecryptionFailed)
	}

	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("envelope open: %w", ErrDecryptionFailed)
	}
	return plaintext, nil
}
