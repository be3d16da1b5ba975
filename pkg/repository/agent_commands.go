package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

// AgentCommandRepository persists CockpitAgentCommand rows, implementing
// pkg/agentbus.CommandStore. Transitions pending -> terminal only —
// Complete never rewrites an already-terminal row.
type AgentCommandRepository struct {
	db *sqlx.DB
}

func NewAgentCommandRepository(db *sqlx.DB) *AgentCommandRepository {
	return &AgentCommandRepository{db: db}
}

func (r *AgentCommandRepository) Create(ctx context.Context, cmd *models.CockpitAgentCommand) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cockpit_agent_commands (agent_id, command_id, command, params, status, sent_at, sent_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		cmd.AgentID, cmd.CommandID, cmd.Command, cmd.Params, cmd.Status, cmd.SentAt, cmd.SentBy)
	if err != nil {
		return fmt.Errorf("repository: create agent command %s: %w", cmd.CommandID, err)
	}
	return nil
}

func (r *AgentCommandRepository) Complete(ctx context.Context, commandID string, status models.AgentCommandStatus, output, errMsg string, executionTimeMs int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE cockpit_agent_commands
		SET status=$1, output=$2, error=$3, execution_time_ms=$4, completed_at=$5
		WHERE command_id=$6 AND status='pending'`,
		status, output, errMsg, executionTimeMs, time.Now(), commandID)
	if err != nil {
		return fmt.Errorf("repository: complete agent command %s: %w", commandID, err)
	}
	return nil
}

func (r *AgentCommandRepository) Get(ctx context.Context, commandID string) (*models.CockpitAgentCommand, error) {
	var cmd models.CockpitAgentCommand
	if err := r.db.GetContext(ctx, &cmd, `SELECT * FROM cockpit_agent_commands WHERE command_id=$1`, commandID); err != nil {
		return nil, fmt.Errorf("repository: get agent command %s: %w", commandID, err)
	}
	return &cmd, nil
}
