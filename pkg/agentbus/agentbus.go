// Package agentbus implements the remote-agent command bus: per-agent
// pub/sub command dispatch, response correlation by command_id, a
// heartbeat-backed agent registry, and the known commands (echo, git_pull,
// docker_restart). Grounded on
// original_source/backend/services/cockpit_agent_service.py and
// models/cockpit_agent.py; pub/sub transport is go-redis, consistent with
// pkg/broker's usage.
package agentbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/cockpitlog"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

const (
	heartbeatInterval = 30 * time.Second
	offlineThreshold  = 90 * time.Second
	hashTTLMultiplier = 3
)

func commandChannel(agentID string) string  { return "cockpit-agent:" + agentID }
func responseChannel(agentID string) string { return "cockpit-agent-response:" + agentID }
func heartbeatKey(agentID string) string    { return "agents:" + agentID }

// CommandRequest is the wire format sent on the per-agent command
// channel.
type CommandRequest struct {
	CommandID string          `json:"command_id"`
	Command   string          `json:"command"`
	Params    json.RawMessage `json:"params"`
	Timestamp int64           `json:"timestamp"`
	Sender    string          `json:"sender"`
}

// CommandResponse is the wire format an agent publishes back.
type CommandResponse struct {
	CommandID       string `json:"command_id"`
	Status          string `json:"status"`
	Output          string `json:"output,omitempty"`
	Error           string `json:"error,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// CommandStore persists CockpitAgentCommand rows; satisfied by
// pkg/repository's command repository.
type CommandStore interface {
	Create(ctx context.Context, cmd *models.CockpitAgentCommand) error
	Complete(ctx context.Context, commandID string, status models.AgentCommandStatus, output, errMsg string, executionTimeMs int64) error
}

// Bus is the control-plane side of the agent command bus.
type Bus struct {
	rdb   *redis.Client
	store CommandStore
	logger interface {
		Warnf(format string, args ...any)
	}
}

func New(rdb *redis.Client, store CommandStore) *Bus {
	return &Bus{rdb: rdb, store: store, logger: cockpitlog.WithComponent("agentbus")}
}

// SendCommand persists the command as pending and publishes it to the
// agent's channel.
func (b *Bus) SendCommand(ctx context.Context, agentID, command string, params json.RawMessage, sentBy string) (string, error) {
	commandID := uuid.New().String()
	now := time.Now()

	if err := b.store.Create(ctx, &models.CockpitAgentCommand{
		AgentID:   agentID,
		CommandID: commandID,
		Command:   command,
		Params:    params,
		Status:    models.AgentCommandPending,
		SentAt:    now,
		SentBy:    sentBy,
	}); err != nil {
		return "", fmt.Errorf("agentbus: persist command: %w", err)
	}

	req := CommandRequest{CommandID: commandID, Command: command, Params: params, Timestamp: now.Unix(), Sender: "cockpit-backend"}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("agentbus: marshal command: %w", err)
	}

	if err := b.rdb.Publish(ctx, commandChannel(agentID), payload).Err(); err != nil {
		return "", fmt.Errorf("agentbus: publish command: %w", err)
	}
	return commandID, nil
}

// WaitForResponse subscribes to the agent's response channel and blocks
// until a response matching commandID arrives or timeout elapses. A
// response for any other command_id is discarded, not just ignored for
// this call — duplicate/mismatched responses never touch a command row
// they weren't addressed to.
func (b *Bus) WaitForResponse(ctx context.Context, agentID, commandID string, timeout time.Duration) (*CommandResponse, error) {
	sub := b.rdb.Subscribe(ctx, responseChannel(agentID))
	defer sub.Close()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ch := sub.Channel()
	for {
		select {
		case msg := <-ch:
			var resp CommandResponse
			if err := json.Unmarshal([]byte(msg.Payload), &resp); err != nil {
				continue
			}
			if resp.CommandID != commandID {
				continue // discard responses for other commands
			}
			status := models.AgentCommandStatus(resp.Status)
			if err := b.store.Complete(ctx, commandID, status, resp.Output, resp.Error, resp.ExecutionTimeMs); err != nil {
				b.logger.Warnf("agentbus: failed to record completion for %s: %v", commandID, err)
			}
			return &resp, nil
		case <-deadline.C:
			if err := b.store.Complete(ctx, commandID, models.AgentCommandTimeout, "", "timed out waiting for agent response", 0); err != nil {
				b.logger.Warnf("agentbus: failed to record timeout for %s: %v", commandID, err)
			}
			return nil, apperrors.New(apperrors.UpstreamUnavailable, "agent did not respond before timeout")
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// AgentStatus summarises one agent's last known heartbeat state.
type AgentStatus struct {
	AgentID          string
	Online           bool
	LastHeartbeat    time.Time
	Version          string
	Capabilities     []string
	StartedAt        time.Time
	CommandsExecuted int64
}

// IsOnline reports whether agentID's heartbeat is within the heartbeat
// TTL window — a hash TTL of 3x the heartbeat interval marks an absent
// agent offline.
func (b *Bus) IsOnline(ctx context.Context, agentID string) (bool, error) {
	exists, err := b.rdb.Exists(ctx, heartbeatKey(agentID)).Result()
	if err != nil {
		return false, fmt.Errorf("agentbus: check heartbeat for %s: %w", agentID, err)
	}
	if exists == 0 {
		return false, nil
	}

	lastBeatRaw, err := b.rdb.HGet(ctx, heartbeatKey(agentID), "last_heartbeat").Result()
	if err != nil {
		return false, nil
	}
	epoch, err := strconv.ParseInt(lastBeatRaw, 10, 64)
	if err != nil {
		return false, nil
	}
	return time.Since(time.Unix(epoch, 0)) < offlineThreshold, nil
}

// ListAgents scans every agent heartbeat hash, marking anything whose
// last_heartbeat is stale as offline.
func (b *Bus) ListAgents(ctx context.Context) ([]AgentStatus, error) {
	var out []AgentStatus
	iter := b.rdb.Scan(ctx, 0, "agents:*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := b.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			continue
		}
		status := parseAgentStatus(key, fields)
		out = append(out, status)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("agentbus: scan agent hashes: %w", err)
	}
	return out, nil
}

func parseAgentStatus(key string, fields map[string]string) AgentStatus {
	agentID := key[len("agents:"):]
	epoch, _ := strconv.ParseInt(fields["last_heartbeat"], 10, 64)
	lastBeat := time.Unix(epoch, 0)
	commandsExecuted, _ := strconv.ParseInt(fields["commands_executed"], 10, 64)

	var capabilities []string
	if raw, ok := fields["capabilities"]; ok && raw != "" {
		capabilities = splitCSV(raw)
	}

	return AgentStatus{
		AgentID:          agentID,
		Online:           time.Since(lastBeat) < offlineThreshold,
		LastHeartbeat:     lastBeat,
		Version:          fields["version"],
		Capabilities:     capabilities,
		CommandsExecuted: commandsExecuted,
	}
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

// RecordHeartbeat is called by an agent process every heartbeatInterval;
// it is provided here so a local/test harness can simulate an agent
// without a separate binary.
func (b *Bus) RecordHeartbeat(ctx context.Context, agentID, version string, capabilities []string, commandsExecuted int64) error {
	fields := map[string]any{
		"status":            "online",
		"last_heartbeat":    time.Now().Unix(),
		"version":           version,
		"capabilities":      joinCSV(capabilities),
		"commands_executed": commandsExecuted,
	}
	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, heartbeatKey(agentID), fields)
	pipe.Expire(ctx, heartbeatKey(agentID), heartbeatInterval*hashTTLMultiplier)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("agentbus: record heartbeat for %s: %w", agentID, err)
	}
	return nil
}

func joinCSV(items []string) string {
	out := ""
	for i, s := range items {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
