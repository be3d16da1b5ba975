package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

// GitRepositoryRepository stores the git remotes the backup job type
// checks configuration into, by category (e.g. "configs", "templates").
type GitRepositoryRepository struct {
	db *sqlx.DB
}

func NewGitRepositoryRepository(db *sqlx.DB) *GitRepositoryRepository {
	return &GitRepositoryRepository{db: db}
}

func (r *GitRepositoryRepository) Create(ctx context.Context, g *models.GitRepository) (*models.GitRepository, error) {
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO git_repositories (name, url, branch, category, credential_name, auth_type, verify_ssl, path, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		g.Name, g.URL, g.Branch, g.Category, g.CredentialName, g.AuthType, g.VerifySSL, g.Path, g.Active)
	if err := row.Scan(&g.ID); err != nil {
		return nil, fmt.Errorf("repository: create git repository: %w", err)
	}
	return g, nil
}

func (r *GitRepositoryRepository) Get(ctx context.Context, id int64) (*models.GitRepository, error) {
	var g models.GitRepository
	if err := r.db.GetContext(ctx, &g, `SELECT * FROM git_repositories WHERE id=$1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.New(apperrors.NotFound, fmt.Sprintf("git repository %d not found", id))
		}
		return nil, fmt.Errorf("repository: get git repository %d: %w", id, err)
	}
	return &g, nil
}

// GetByCategory returns the active repository for a category, the lookup
// the backup job handler performs to find where to commit a device's
// running config.
func (r *GitRepositoryRepository) GetByCategory(ctx context.Context, category string) (*models.GitRepository, error) {
	var g models.GitRepository
	err := r.db.GetContext(ctx, &g, `SELECT * FROM git_repositories WHERE category=$1 AND active=true ORDER BY id LIMIT 1`, category)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.NotFound, fmt.Sprintf("no active git repository for category %q", category))
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get git repository for category %q: %w", category, err)
	}
	return &g, nil
}

func (r *GitRepositoryRepository) List(ctx context.Context) ([]models.GitRepository, error) {
	var out []models.GitRepository
	if err := r.db.SelectContext(ctx, &out, `SELECT * FROM git_repositories ORDER BY name`); err != nil {
		return nil, fmt.Errorf("repository: list git repositories: %w", err)
	}
	return out, nil
}

func (r *GitRepositoryRepository) Update(ctx context.Context, g *models.GitRepository) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE git_repositories SET name=$1, url=$2, branch=$3, category=$4, credential_name=$5,
			auth_type=$6, verify_ssl=$7, path=$8, active=$9
		WHERE id=$10`,
		g.Name, g.URL, g.Branch, g.Category, g.CredentialName, g.AuthType, g.VerifySSL, g.Path, g.Active, g.ID)
	if err != nil {
		return fmt.Errorf("repository: update git repository %d: %w", g.ID, err)
	}
	return requireRowAffected(res, "git repository", g.ID)
}

func (r *GitRepositoryRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM git_repositories WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("repository: delete git repository %d: %w", id, err)
	}
	return requireRowAffected(res, "git repository", id)
}
