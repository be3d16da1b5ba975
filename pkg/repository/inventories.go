package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

// InventoryRepository stores named, stored boolean expressions over device
// attributes. Evaluation of the stored condition tree lives in
// pkg/inventory; this repository only persists the JSON blob.
type InventoryRepository struct {
	db *sqlx.DB
}

func NewInventoryRepository(db *sqlx.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) Create(ctx context.Context, inv *models.Inventory) (*models.Inventory, error) {
	row := r.db.QueryRowxContext(ctx, `
		INSERT INTO inventories (name, scope, created_by, conditions)
		VALUES ($1,$2,$3,$4) RETURNING id`,
		inv.Name, inv.Scope, inv.CreatedBy, inv.Conditions)
	if err := row.Scan(&inv.ID); err != nil {
		return nil, fmt.Errorf("repository: create inventory: %w", err)
	}
	return inv, nil
}

// GetByName loads an inventory scoped either globally or to username, the
// lookup performed when a template's inventory_source is "inventory".
func (r *InventoryRepository) GetByName(ctx context.Context, name, username string) (*models.Inventory, error) {
	var inv models.Inventory
	err := r.db.GetContext(ctx, &inv, `
		SELECT * FROM inventories WHERE name=$1 AND (scope='global' OR created_by=$2) ORDER BY scope LIMIT 1`,
		name, username)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.NotFound, fmt.Sprintf("inventory %q not found", name))
	}
	if err != nil {
		return nil, fmt.Errorf("repository: get inventory %q: %w", name, err)
	}
	return &inv, nil
}

func (r *InventoryRepository) List(ctx context.Context, username string) ([]models.Inventory, error) {
	var out []models.Inventory
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM inventories WHERE scope='global' OR created_by=$1 ORDER BY name`, username)
	if err != nil {
		return nil, fmt.Errorf("repository: list inventories: %w", err)
	}
	return out, nil
}

func (r *InventoryRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM inventories WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("repository: delete inventory %d: %w", id, err)
	}
	return requireRowAffected(res, "inventory", id)
}
