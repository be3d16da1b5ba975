package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
)

// TestRoundTrip verifies decrypt(encrypt(p, K), K) == p.
func TestRoundTrip(t *testing.T) {
	v, err := NewFromSecret("s3cret-app-key")
	require.NoError(t, err)

	plaintext := []byte("super-secret-password")
	ciphertext, err := v.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := v.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

// TestWrongKeyFails verifies decrypt(c, K') != p, Cryptographic error.
func TestWrongKeyFails(t *testing.T) {
	v1, _ := NewFromSecret("key-one")
	v2, _ := NewFromSecret("key-two")

	ciphertext, err := v1.Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = v2.Decrypt(ciphertext)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.Cryptographic))
}

func TestTamperedCiphertextFails(t *testing.T) {
	v, _ := NewFromSecret("key")
	ciphertext, err := v.Encrypt([]byte("payload"))
	require.NoError(t, err)

	tampered := append([]byte{}, ciphertext...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = v.Decrypt(tampered)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.Cryptographic))
}

// TestRotateThenReDecryptWithOldKeyFails verifies that after rotation,
// the ciphertext is only readable under the new key.
func TestRotateThenReDecryptWithOldKeyFails(t *testing.T) {
	oldVault, _ := NewFromSecret("old-key")
	newVault, _ := NewFromSecret("new-key")

	ciphertext, err := oldVault.Encrypt([]byte("payload"))
	require.NoError(t, err)

	rotated, err := oldVault.Rotate(ciphertext, newVault)
	require.NoError(t, err)

	// New key opens it.
	pt, err := newVault.Decrypt(rotated)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), pt)

	// Old key no longer does.
	_, err = oldVault.Decrypt(rotated)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.Cryptographic))
}

// TestRotateAppliedTwiceFailsSecondPass verifies that rotate(K_old, K_new)
// applied twice with the same keys fails MAC on the second pass because the
// ciphertext is already in K_new.
func TestRotateAppliedTwiceFailsSecondPass(t *testing.T) {
	oldVault, _ := NewFromSecret("old-key")
	newVault, _ := NewFromSecret("new-key")

	ciphertext, err := oldVault.Encrypt([]byte("payload"))
	require.NoError(t, err)

	rotatedOnce, err := oldVault.Rotate(ciphertext, newVault)
	require.NoError(t, err)

	_, err = oldVault.Rotate(rotatedOnce, newVault)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.Cryptographic))
}

func TestDeriveKeyIsDeterministic(t *testing.T) {
	k1 := DeriveKey("same-secret")
	k2 := DeriveKey("same-secret")
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, keyLen)
}
