package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrKeyTooShort       = errors.New("master key must be at least 32 bytes")
	ErrCiphertextInvalid = errors.New("ciphertext too short or corrupted")
)

// Purpose scopes a derived subkey. Image payloads and serialized result
// sets are encrypted under different keys so a leak of one never exposes
// the other.
type Purpose string

const (
	PurposeImage   Purpose = "imageguard/image"
	PurposeResults Purpose = "imageguard/results"
)

// Service performs reversible encryption of search artifacts. The master
// key is process-wide immutable configuration, loaded once at startup;
// per-purpose AES-256-GCM keys are derived from it via HKDF.
type Service struct {
	aeads map[Purpose]cipher.AEAD
}

// New creates an encryption service from the server-held master key.
func New(masterKey []byte) (*Service, error) {
	if len(masterKey) < 32 {
		return nil, ErrKeyTooShort
	}

	s := &Service{aeads: make(map[Purpose]cipher.AEAD)}
	for _, purpose := range []Purpose{PurposeImage, PurposeResults} {
		aead, err := deriveAEAD(masterKey, purpose)
		if err != nil {
			return nil, fmt.Errorf("failed to derive key for %s: %w", purpose, err)
		}
		s.aeads[purpose] = aead
	}
	return s, nil
}

func deriveAEAD(masterKey []byte, purpose Purpose) (cipher.AEAD, error) {
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, masterKey, nil, []byte(purpose))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext under the purpose's key. The random nonce is
// prepended to the ciphertext.
func (s *Service) Encrypt(purpose Purpose, plaintext []byte) ([]byte, error) {
	aead, ok := s.aeads[purpose]
	if !ok {
		return nil, fmt.Errorf("unknown purpose: %s", purpose)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt with the same purpose.
func (s *Service) Decrypt(purpose Purpose, ciphertext []byte) ([]byte, error) {
	aead, ok := s.aeads[purpose]
	if !ok {
		return nil, fmt.Errorf("unknown purpose: %s", purpose)
	}

	if len(ciphertext) < aead.NonceSize() {
		return nil, ErrCiphertextInvalid
	}

	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCiphertextInvalid, err)
	}
	return plaintext, nil
}

// ContentHash returns the hex SHA-256 of a plaintext payload. Stored next
// to the ciphertext so replays and exports can verify integrity without
// decrypting.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
