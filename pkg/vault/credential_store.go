package vault

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/cockpitlog"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

// CredentialStore is the persistence-backed facade over Vault implementing
// the create/decrypt/rotate operation contract, grounded on kubernaut's
// NewXRepository(db, logger) repository shape.
type CredentialStore struct {
	db     *sql.DB
	vault  *Vault
	logger *logrus.Entry
}

func NewCredentialStore(db *sql.DB, v *Vault) *CredentialStore {
	return &CredentialStore{db: db, vault: v, logger: cockpitlog.WithComponent("vault")}
}

// PlainSecrets carries the secret fields as seen by the caller before
// encryption; at most one of these is typically set at a time.
type PlainSecrets struct {
	Password   string
	SSHKey     string
	Passphrase string
}

// Create encrypts each present secret and inserts the row, enforcing the
// (name, source) uniqueness invariant.
func (cs *CredentialStore) Create(ctx context.Context, name, source, username string, kind models.CredentialKind, secrets PlainSecrets, validUntil *time.Time, owner string) (*models.Credential, error) {
	cred := &models.Credential{
		Name:       name,
		Source:     source,
		Kind:       kind,
		Username:   username,
		ValidUntil: validUntil,
		Owner:      owner,
	}

	var err error
	if secrets.Password != "" {
		if cred.PasswordCipher, err = cs.vault.Encrypt([]byte(secrets.Password)); err != nil {
			return nil, err
		}
	}
	if secrets.SSHKey != "" {
		if cred.SSHKeyCipher, err = cs.vault.Encrypt([]byte(secrets.SSHKey)); err != nil {
			return nil, err
		}
	}
	if secrets.Passphrase != "" {
		if cred.PassphraseCipher, err = cs.vault.Encrypt([]byte(secrets.Passphrase)); err != nil {
			return nil, err
		}
	}

	row := cs.db.QueryRowContext(ctx, `
		INSERT INTO credentials (name, source, kind, username, password_cipher, ssh_key_cipher, passphrase_cipher, valid_until, owner, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now())
		RETURNING id, created_at`,
		cred.Name, cred.Source, cred.Kind, cred.Username, cred.PasswordCipher, cred.SSHKeyCipher, cred.PassphraseCipher, cred.ValidUntil, cred.Owner)
	if err := row.Scan(&cred.ID, &cred.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.New(apperrors.Validation, fmt.Sprintf("credential %q already exists for source %q", name, source))
		}
		return nil, fmt.Errorf("vault: insert credential: %w", err)
	}

	cs.logger.WithFields(logrus.Fields{"name": name, "source": source}).Info("credential created")
	return cred, nil
}

// GetByName loads a credential's non-secret fields by its (name, source)
// composite key, for executors that reference a credential by name.
func (cs *CredentialStore) GetByName(ctx context.Context, name, source string) (*models.Credential, error) {
	var cred models.Credential
	row := cs.db.QueryRowContext(ctx, `
		SELECT id, name, source, kind, username, valid_until, owner, created_at
		FROM credentials WHERE name=$1 AND source=$2`, name, source)
	if err := row.Scan(&cred.ID, &cred.Name, &cred.Source, &cred.Kind, &cred.Username, &cred.ValidUntil, &cred.Owner, &cred.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.New(apperrors.NotFound, fmt.Sprintf("credential %q/%q not found", name, source))
		}
		return nil, fmt.Errorf("vault: load credential %q/%q: %w", name, source, err)
	}
	return &cred, nil
}

// DecryptedSecrets is never logged; callers must not pass it to a logger.
type DecryptedSecrets struct {
	Password   string
	SSHKey     string
	Passphrase string
}

// Decrypt retrieves and decrypts all present secret fields for a
// credential. A MAC mismatch surfaces as apperrors.Cryptographic.
func (cs *CredentialStore) Decrypt(ctx context.Context, id int64) (*DecryptedSecrets, error) {
	var cred models.Credential
	row := cs.db.QueryRowContext(ctx, `SELECT password_cipher, ssh_key_cipher, passphrase_cipher FROM credentials WHERE id=$1`, id)
	if err := row.Scan(&cred.PasswordCipher, &cred.SSHKeyCipher, &cred.PassphraseCipher); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.New(apperrors.NotFound, fmt.Sprintf("credential %d not found", id))
		}
		return nil, fmt.Errorf("vault: load credential %d: %w", id, err)
	}

	out := &DecryptedSecrets{}
	var err error
	if len(cred.PasswordCipher) > 0 {
		pt, derr := cs.vault.Decrypt(cred.PasswordCipher)
		if derr != nil {
			return nil, derr
		}
		out.Password = string(pt)
	}
	if len(cred.SSHKeyCipher) > 0 {
		pt, derr := cs.vault.Decrypt(cred.SSHKeyCipher)
		if derr != nil {
			return nil, derr
		}
		out.SSHKey = string(pt)
	}
	if len(cred.PassphraseCipher) > 0 {
		pt, derr := cs.vault.Decrypt(cred.PassphraseCipher)
		if derr != nil {
			return nil, derr
		}
		out.Passphrase = string(pt)
	}
	_ = err
	return out, nil
}

// RotationResult reports per-row outcomes for a vault key rotation.
type RotationResult struct {
	Rotated int
	Failed  map[int64]error
}

// Rotate re-encrypts every matching credential's secret fields from oldVault
// to newVault inside a single transaction, tolerating per-row failures.
// The transaction commits even when some rows fail; failed rows keep
// their original ciphertext.
func Rotate(ctx context.Context, db *sql.DB, oldVault, newVault *Vault, sourceFilter string) (*RotationResult, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: begin rotation tx: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT id, password_cipher, ssh_key_cipher, passphrase_cipher FROM credentials`
	args := []any{}
	if sourceFilter != "" {
		query += ` WHERE source = $1`
		args = append(args, sourceFilter)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vault: select credentials: %w", err)
	}

	type row struct {
		id                              int64
		password, sshKey, passphrase   []byte
	}
	var batch []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.password, &r.sshKey, &r.passphrase); err != nil {
			rows.Close()
			return nil, fmt.Errorf("vault: scan credential row: %w", err)
		}
		batch = append(batch, r)
	}
	rows.Close()

	result := &RotationResult{Failed: map[int64]error{}}
	for _, r := range batch {
		newPassword, newSSHKey, newPassphrase, rerr := rotateTriple(oldVault, newVault, r.password, r.sshKey, r.passphrase)
		if rerr != nil {
			result.Failed[r.id] = rerr
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE credentials SET password_cipher=$1, ssh_key_cipher=$2, passphrase_cipher=$3 WHERE id=$4`,
			newPassword, newSSHKey, newPassphrase, r.id); err != nil {
			result.Failed[r.id] = err
			continue
		}
		result.Rotated++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("vault: commit rotation tx: %w", err)
	}
	return result, nil
}

func rotateTriple(oldVault, newVault *Vault, password, sshKey, passphrase []byte) ([]byte, []byte, []byte, error) {
	var newPassword, newSSHKey, newPassphrase []byte
	var err error
	if len(password) > 0 {
		if newPassword, err = oldVault.Rotate(password, newVault); err != nil {
			return nil, nil, nil, err
		}
	}
	if len(sshKey) > 0 {
		if newSSHKey, err = oldVault.Rotate(sshKey, newVault); err != nil {
			return nil, nil, nil, err
		}
	}
	if len(passphrase) > 0 {
		if newPassphrase, err = oldVault.Rotate(passphrase, newVault); err != nil {
			return nil, nil, nil, err
		}
	}
	return newPassword, newSSHKey, newPassphrase, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
