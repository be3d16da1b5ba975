// Package vault implements the credential vault: PBKDF2-derived AES-GCM
// authenticated encryption with a version byte so that rotated
// ciphertext can be told apart from ciphertext still under the old key.
//
// The AEAD core is grounded in cuemby-warren's pkg/security/secrets.go
// (AES cipher -> GCM -> nonce-prepended ciphertext); this package adds the
// PBKDF2-HMAC-SHA256 key derivation and version envelope.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
)

const (
	kdfIterations = 100_000
	keyLen        = 32 // AES-256
	envelopeV1    = byte(1)
)

// fixedSalt is the application-scoped PBKDF2 salt. It is fixed (not random
// per-secret) by design: the same SECRET_KEY must always derive the same
// vault key so existing ciphertext remains decryptable across restarts.
var fixedSalt = []byte("cockpit-credential-vault-v1")

// DeriveKey turns an application secret into a 32-byte AES-256 key via
// PBKDF2-HMAC-SHA256, 100,000 iterations.
func DeriveKey(secret string) []byte {
	return pbkdf2.Key([]byte(secret), fixedSalt, kdfIterations, keyLen, sha256.New)
}

// Vault encrypts and decrypts credential secrets with a single derived key.
type Vault struct {
	key []byte
}

func New(key []byte) (*Vault, error) {
	if len(key) != keyLen {
		return nil, fmt.Errorf("vault: key must be %d bytes, got %d", keyLen, len(key))
	}
	return &Vault{key: key}, nil
}

// NewFromSecret derives the key from an application secret and constructs a
// Vault, the common entrypoint used by cmd/ processes.
func NewFromSecret(secret string) (*Vault, error) {
	return New(DeriveKey(secret))
}

func (v *Vault) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("vault: new cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext into an envelope: version byte || nonce || ciphertext+tag.
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("vault: cannot encrypt empty data")
	}

	gcm, err := v.gcm()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("vault: generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	envelope := make([]byte, 0, 1+len(nonce)+len(sealed))
	envelope = append(envelope, envelopeV1)
	envelope = append(envelope, nonce...)
	envelope = append(envelope, sealed...)
	return envelope, nil
}

// Decrypt opens an envelope produced by Encrypt. A MAC mismatch (wrong key
// or tampered ciphertext) is surfaced as a Cryptographic apperrors.Error,
// never silently ignored.
func (v *Vault) Decrypt(envelope []byte) ([]byte, error) {
	if len(envelope) < 1 {
		return nil, apperrors.New(apperrors.Cryptographic, "vault: empty envelope")
	}
	if envelope[0] != envelopeV1 {
		return nil, apperrors.New(apperrors.Cryptographic, "vault: unsupported envelope version")
	}

	gcm, err := v.gcm()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Cryptographic, "vault: cipher setup failed", err)
	}

	nonceSize := gcm.NonceSize()
	body := envelope[1:]
	if len(body) < nonceSize {
		return nil, apperrors.New(apperrors.Cryptographic, "vault: envelope too short")
	}
	nonce, ciphertext := body[:nonceSize], body[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Cryptographic, "vault: decryption failed (MAC mismatch)", err)
	}
	return plaintext, nil
}

// Rotate re-encrypts a single envelope under newVault, decrypting with the
// receiver (the old key). Calling Rotate twice with vaults that are
// already in their final state fails MAC on the second pass because the
// ciphertext has already moved to the new key.
func (v *Vault) Rotate(envelope []byte, newVault *Vault) ([]byte, error) {
	plaintext, err := v.Decrypt(envelope)
	if err != nil {
		return nil, err
	}
	defer zero(plaintext)
	return newVault.Encrypt(plaintext)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
