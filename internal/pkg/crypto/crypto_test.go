package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestNew_KeyTooShort(t *testing.T) {
	_, err := New([]byte("short"))
	assert.ErrorIs(t, err, ErrKeyTooShort)
}

func TestService_EncryptDecrypt(t *testing.T) {
	svc, err := New(testKey)
	require.NoError(t, err)

	plaintext := []byte("query image bytes")

	ciphertext, err := svc.Encrypt(PurposeImage, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := svc.Decrypt(PurposeImage, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestService_Encrypt_NonDeterministic(t *testing.T) {
	svc, err := New(testKey)
	require.NoError(t, err)

	a, err := svc.Encrypt(PurposeResults, []byte("payload"))
	require.NoError(t, err)
	b, err := svc.Encrypt(PurposeResults, []byte("payload"))
	require.NoError(t, err)

	assert.False(t, bytes.Equal(a, b))
}

func TestService_PurposeIsolation(t *testing.T) {
	svc, err := New(testKey)
	require.NoError(t, err)

	ciphertext, err := svc.Encrypt(PurposeImage, []byte("payload"))
	require.NoError(t, err)

	// A ciphertext sealed for one purpose never opens under another
	_, err = svc.Decrypt(PurposeResults, ciphertext)
	assert.ErrorIs(t, err, ErrCiphertextInvalid)
}

func TestService_Decrypt_Corrupted(t *testing.T) {
	svc, err := New(testKey)
	require.NoError(t, err)

	ciphertext, err := svc.Encrypt(PurposeImage, []byte("payload"))
	require.NoError(t, err)

	ciphertext[len(ciphertext)-1] ^= 0xff
	_, err = svc.Decrypt(PurposeImage, ciphertext)
	assert.ErrorIs(t, err, ErrCiphertextInvalid)

	_, err = svc.Decrypt(PurposeImage, []byte("tiny"))
	assert.ErrorIs(t, err, ErrCiphertextInvalid)
}

func TestContentHash(t *testing.T) {
	h1 := ContentHash([]byte("image"))
	h2 := ContentHash([]byte("image"))
	h3 := ContentHash([]byte("other"))

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 64)
}
