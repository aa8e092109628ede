package hsm

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/hkdf"

	"github.com/erx/erx/internal/platform/crypto"
)

// SoftwareClient is an in-process stand-in for the hardware module. It keeps
// one 32-byte master secret per blob generation and derives record keys with
// HKDF-SHA256. Not a substitute for real key hardware in production; the
// constructor logs a warning for that reason.
type SoftwareClient struct {
	mu      sync.RWMutex
	masters map[crypto.BlobID][]byte
	current crypto.BlobID
	rand    io.Reader
}

// NewSoftwareClient creates a SoftwareClient whose first generation is blobID 1.
func NewSoftwareClient(master []byte, logger zerolog.Logger) (*SoftwareClient, error) {
	if len(master) != 32 {
		return nil, fmt.Errorf("software hsm: master key must be 32 bytes, got %d", len(master))
	}
	logger.Warn().Msg("software HSM in use: key material is not hardware backed")

	m := make([]byte, 32)
	copy(m, master)
	return &SoftwareClient{
		masters: map[crypto.BlobID][]byte{1: m},
		current: 1,
		rand:    rand.Reader,
	}, nil
}

// Rotate installs a new master secret under the next blob generation and makes
// it current. Previous generations remain derivable.
func (c *SoftwareClient) Rotate(master []byte) (crypto.BlobID, error) {
	if len(master) != 32 {
		return 0, fmt.Errorf("software hsm: master key must be 32 bytes, got %d", len(master))
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.current++
	m := make([]byte, 32)
	copy(m, master)
	c.masters[c.current] = m
	return c.current, nil
}

func (c *SoftwareClient) RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.rand, buf); err != nil {
		return nil, fmt.Errorf("software hsm: random: %w", ErrUnavailable)
	}
	return buf, nil
}

func (c *SoftwareClient) DeriveKey(blobID crypto.BlobID, salt crypto.Salt, context []byte) ([]byte, error) {
	c.mu.RLock()
	master, ok := c.masters[blobID]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("software hsm: no master key for generation %d: %w", blobID, ErrKeyUnavailable)
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, context), key); err != nil {
		return nil, fmt.Errorf("software hsm: derive: %w", err)
	}
	return key, nil
}

func (c *SoftwareClient) CurrentBlobID() crypto.BlobID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}
