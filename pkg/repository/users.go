package repository

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/pbkdf2"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

const (
	passwordKDFIterations = 100_000
	passwordKeyLen        = 32
	saltLen               = 16
)

// UserRepository owns the User/Role/Permission grant graph.
type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// HashPassword derives a PBKDF2-HMAC-SHA256 hash with a fresh random salt
// per user.
func HashPassword(password string) (hash, salt string, err error) {
	saltBytes := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, saltBytes); err != nil {
		return "", "", fmt.Errorf("repository: generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(password), saltBytes, passwordKDFIterations, passwordKeyLen, sha256.New)
	return hex.EncodeToString(derived), hex.EncodeToString(saltBytes), nil
}

// VerifyPassword recomputes the hash with the stored salt and compares in
// constant time.
func VerifyPassword(password, hash, salt string) (bool, error) {
	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		return false, fmt.Errorf("repository: decode salt: %w", err)
	}
	wantHash, err := hex.DecodeString(hash)
	if err != nil {
		return false, fmt.Errorf("repository: decode hash: %w", err)
	}
	derived := pbkdf2.Key([]byte(password), saltBytes, passwordKDFIterations, passwordKeyLen, sha256.New)
	return subtle.ConstantTimeCompare(derived, wantHash) == 1, nil
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO users (username, display_name, email, active, password_hash, password_salt, created_at)
		VALUES ($1,$2,$3,$4,$5,$6, now()) RETURNING id, created_at`,
		u.Username, u.DisplayName, u.Email, u.Active, u.PasswordHash, u.PasswordSalt)
	if err := row.Scan(&u.ID, &u.CreatedAt); err != nil {
		return nil, fmt.Errorf("repository: create user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE username=$1`, username); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.New(apperrors.NotFound, fmt.Sprintf("user %q not found", username))
		}
		return nil, fmt.Errorf("repository: get user %q: %w", username, err)
	}
	return &u, nil
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = now() WHERE id=$1`, userID)
	if err != nil {
		return fmt.Errorf("repository: touch last login for %d: %w", userID, err)
	}
	return nil
}

// EffectivePermissions computes the union of permissions granted by every
// role assigned to userID — the RBAC closure pkg/rbac resolves against.
func (r *UserRepository) EffectivePermissions(ctx context.Context, userID int64) ([]models.Permission, error) {
	var out []models.Permission
	err := r.db.SelectContext(ctx, &out, `
		SELECT DISTINCT p.* FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN user_roles ur ON ur.role_id = rp.role_id
		WHERE ur.user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("repository: effective permissions for %d: %w", userID, err)
	}
	return out, nil
}

func (r *UserRepository) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`, userID, roleID)
	if err != nil {
		return fmt.Errorf("repository: assign role %d to user %d: %w", roleID, userID, err)
	}
	return nil
}

// HashAPIKey derives the lookup hash stored for an API key: unlike a
// password, an API key is itself a high-entropy secret, so a plain
// SHA-256 digest (not a slow KDF) is sufficient to prevent the stored
// value from being usable as a key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// SetAPIKey stores the hash of a freshly issued API key for userID,
// replacing any previous key.
func (r *UserRepository) SetAPIKey(ctx context.Context, userID int64, keyHash string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET api_key_hash=$1 WHERE id=$2`, keyHash, userID)
	if err != nil {
		return fmt.Errorf("repository: set api key for user %d: %w", userID, err)
	}
	return nil
}

// GetByAPIKeyHash looks a user up by their stored API key hash, the path
// POST /auth/api-key-login uses instead of a password check.
func (r *UserRepository) GetByAPIKeyHash(ctx context.Context, keyHash string) (*models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `SELECT * FROM users WHERE api_key_hash=$1 AND api_key_hash <> ''`, keyHash)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.Authentication, "invalid api key")
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get user by api key: %w", err)
	}
	return &u, nil
}

func (r *UserRepository) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	if err := r.db.GetContext(ctx, &role, `SELECT * FROM roles WHERE name=$1`, name); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.New(apperrors.NotFound, fmt.Sprintf("role %q not found", name))
		}
		return nil, fmt.Errorf("repository: get role %q: %w", name, err)
	}
	return &role, nil
}
