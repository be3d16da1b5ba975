// Package broker implements the task broker + result-store abstraction:
// named queues, a task-name -> queue routing table loaded from
// settings at boot, and publish/consume/set-result primitives, grounded
// on the go-redis client usage pattern
// (goredis.NewClient(&goredis.Options{...})).
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/config"
)

const (
	defaultQueue    = "default"
	resultKeyPrefix = "cockpit:result:"
	queueKeyPrefix  = "cockpit:queue:"
	defaultResultTTL = 24 * time.Hour
)

// TaskState mirrors Celery's terminal/non-terminal result states.
type TaskState string

const (
	StatePending TaskState = "pending"
	StateSuccess TaskState = "success"
	StateFailure TaskState = "failure"
)

// TaskEnvelope is the JSON message body placed on a queue.
type TaskEnvelope struct {
	TaskID   string          `json:"task_id"`
	TaskName string          `json:"task_name"`
	Kwargs   json.RawMessage `json:"kwargs"`
	Queue    string          `json:"queue"`
}

// Result is a task's outcome as SetResult stores it: JSON under a per-task
// key with a TTL. Client has no method that reads a stored result back.
type Result struct {
	State   TaskState       `json:"state"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Router maps task names to queues; "*" is the wildcard default queue.
// Loaded from settings at boot, fully data-driven rather than hardcoded.
type Router struct {
	routes map[string]string
}

func NewRouter(routes map[string]string) *Router {
	r := &Router{routes: map[string]string{}}
	for k, v := range routes {
		r.routes[k] = v
	}
	return r
}

func (r *Router) QueueFor(taskName string) string {
	if q, ok := r.routes[taskName]; ok {
		return q
	}
	if q, ok := r.routes["*"]; ok {
		return q
	}
	return defaultQueue
}

// Client is the Redis-backed broker + result store.
type Client struct {
	rdb    *redis.Client
	router *Router
	resultTTL time.Duration
}

func NewClient(cfg *config.RedisConfig, router *Router) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	return &Client{rdb: rdb, router: router, resultTTL: defaultResultTTL}
}

func (c *Client) Close() error { return c.rdb.Close() }

// Publish pushes a task onto its routed queue and initializes a pending
// result entry, returning the generated task_id.
func (c *Client) Publish(ctx context.Context, taskName string, kwargs any, queue string) (string, error) {
	payload, err := json.Marshal(kwargs)
	if err != nil {
		return "", fmt.Errorf("broker: marshal kwargs: %w", err)
	}

	if queue == "" {
		queue = c.router.QueueFor(taskName)
	}

	taskID := uuid.New().String()
	envelope := TaskEnvelope{TaskID: taskID, TaskName: taskName, Kwargs: payload, Queue: queue}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("broker: marshal envelope: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, queueKeyPrefix+queue, raw)
	pipe.Set(ctx, resultKeyPrefix+taskID, mustJSON(Result{State: StatePending}), c.resultTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("broker: publish: %w", err)
	}

	return taskID, nil
}

// Consume blocks (with context cancellation) until a task is available on
// queue, returning its envelope. Used by the worker pool's per-queue
// goroutines.
func (c *Client) Consume(ctx context.Context, queue string, timeout time.Duration) (*TaskEnvelope, error) {
	res, err := c.rdb.BRPop(ctx, timeout, queueKeyPrefix+queue).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("broker: consume from %s: %w", queue, err)
	}

	var envelope TaskEnvelope
	// res[0] is the key name, res[1] is the value.
	if err := json.Unmarshal([]byte(res[1]), &envelope); err != nil {
		return nil, fmt.Errorf("broker: unmarshal envelope: %w", err)
	}
	return &envelope, nil
}

// SetResult records the terminal (or pending) state of a task.
func (c *Client) SetResult(ctx context.Context, taskID string, result Result) error {
	return c.rdb.Set(ctx, resultKeyPrefix+taskID, mustJSON(result), c.resultTTL).Err()
}

// MarshalPayload encodes a handler's return value for storage as a
// Result.Payload, shared by the worker pool and any caller constructing a
// Result directly.
func MarshalPayload(v any) ([]byte, error) {
	return json.Marshal(v)
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
