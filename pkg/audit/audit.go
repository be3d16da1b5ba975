// Package audit implements the append-only security event trail, named
// "buffered store" after kubernaut's
// pkg/audit/buffered_store_integration_test.go naming convention: writes
// are queued on a bounded channel and flushed by a background goroutine so
// the originating request never blocks on more than enqueueing a single
// row.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/cockpitlog"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
)

const writeBufferSize = 1024

// Store is the append-only, non-blocking audit log writer.
type Store struct {
	db      *sqlx.DB
	logger  *logrus.Entry
	entries chan models.AuditLog
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewStore(db *sqlx.DB) *Store {
	s := &Store{
		db:      db,
		logger:  cockpitlog.WithComponent("audit"),
		entries: make(chan models.AuditLog, writeBufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

// Record enqueues an event. It never blocks the caller on the database: if
// the buffer is full, the event is dropped and logged at warning level
// rather than stalling the originating request, since audit delivery is
// explicitly asynchronous.
func (s *Store) Record(username string, userID *int64, eventType, message string, severity models.Severity, opts ...Option) {
	entry := models.AuditLog{
		Username:  username,
		UserID:    userID,
		EventType: eventType,
		Message:   message,
		Severity:  severity,
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&entry)
	}

	select {
	case s.entries <- entry:
	default:
		s.logger.WithFields(logrus.Fields{"event_type": eventType, "username": username}).Warn("audit buffer full, event dropped")
	}
}

// Option mutates an AuditLog entry before it is enqueued.
type Option func(*models.AuditLog)

func WithIP(ip string) Option               { return func(e *models.AuditLog) { e.IP = ip } }
func WithResource(kind, id, name string) Option {
	return func(e *models.AuditLog) { e.ResourceType = kind; e.ResourceID = id; e.ResourceName = name }
}
func WithExtra(v any) Option {
	return func(e *models.AuditLog) {
		if b, err := json.Marshal(v); err == nil {
			e.ExtraData = b
		}
	}
}

func (s *Store) flushLoop() {
	defer close(s.doneCh)
	ctx := context.Background()
	for {
		select {
		case entry := <-s.entries:
			if err := s.insert(ctx, entry); err != nil {
				s.logger.WithError(err).Error("failed to persist audit entry")
			}
		case <-s.stopCh:
			// Drain remaining buffered entries before exiting.
			for {
				select {
				case entry := <-s.entries:
					_ = s.insert(ctx, entry)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) insert(ctx context.Context, e models.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (username, user_id, event_type, message, ip, resource_type, resource_id, resource_name, severity, extra_data, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		e.Username, e.UserID, e.EventType, e.Message, e.IP, e.ResourceType, e.ResourceID, e.ResourceName, e.Severity, e.ExtraData, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

// Close stops the flush loop after draining the buffer.
func (s *Store) Close() {
	close(s.stopCh)
	<-s.doneCh
}

// Query runs the package-level Query against the store's own connection,
// the entrypoint GET /api/logs uses.
func (s *Store) Query(ctx context.Context, f Filter) ([]models.AuditLog, int, error) {
	return Query(ctx, s.db, f)
}

// Filter is the GET /api/logs query surface.
type Filter struct {
	Severity  models.Severity
	EventType string
	Username  string
	StartDate *time.Time
	EndDate   *time.Time
	Search    string
	Page      int
	PageSize  int
}

// Query is read-only pageable/filterable access to the log, never blocked
// by writers thanks to MVCC snapshot reads.
func Query(ctx context.Context, db *sqlx.DB, f Filter) ([]models.AuditLog, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 || f.PageSize > 500 {
		f.PageSize = 50
	}

	where := "WHERE 1=1"
	args := []any{}
	add := func(clause string, val any) {
		args = append(args, val)
		where += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}
	if f.Severity != "" {
		add("severity =", f.Severity)
	}
	if f.EventType != "" {
		add("event_type =", f.EventType)
	}
	if f.Username != "" {
		add("username =", f.Username)
	}
	if f.StartDate != nil {
		add("created_at >=", *f.StartDate)
	}
	if f.EndDate != nil {
		add("created_at <=", *f.EndDate)
	}
	if f.Search != "" {
		add("message ILIKE", "%"+f.Search+"%")
	}

	var total int
	if err := db.GetContext(ctx, &total, "SELECT count(*) FROM audit_log "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("audit: count: %w", err)
	}

	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)
	var out []models.AuditLog
	query := fmt.Sprintf("SELECT * FROM audit_log %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d", where, len(args)-1, len(args))
	if err := db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, 0, fmt.Errorf("audit: query: %w", err)
	}
	return out, total, nil
}
