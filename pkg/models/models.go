// Package models declares the entity types shared by every repository
// and executor. Field sets are grounded in original_source/backend/models/*.py.
package models

import (
	"encoding/json"
	"time"
)

// User identity, grounded on original_source/backend/models (user table) and
// core/auth.py's PBKDF2 password hash shape.
type User struct {
	ID           int64      `db:"id" json:"id"`
	Username     string     `db:"username" json:"username"`
	DisplayName  string     `db:"display_name" json:"display_name"`
	Email        string     `db:"email" json:"email"`
	Active       bool       `db:"active" json:"active"`
	PasswordHash string     `db:"password_hash" json:"-"`
	PasswordSalt string     `db:"password_salt" json:"-"`
	APIKeyHash   string     `db:"api_key_hash" json:"-"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

type Role struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Permission struct {
	ID       int64  `db:"id" json:"id"`
	Resource string `db:"resource" json:"resource"`
	Action   string `db:"action" json:"action"`
}

type RolePermission struct {
	RoleID       int64 `db:"role_id"`
	PermissionID int64 `db:"permission_id"`
}

type UserRole struct {
	UserID int64 `db:"user_id"`
	RoleID int64 `db:"role_id"`
}

// CredentialKind enumerates Credential.kind.
type CredentialKind string

const (
	CredentialSSH     CredentialKind = "ssh"
	CredentialTACACS  CredentialKind = "tacacs"
	CredentialGeneric CredentialKind = "generic"
	CredentialToken   CredentialKind = "token"
	CredentialSSHKey  CredentialKind = "ssh_key"
)

// CredentialStatus is derived, never stored.
type CredentialStatus string

const (
	CredentialActive   CredentialStatus = "active"
	CredentialExpiring CredentialStatus = "expiring"
	CredentialExpired  CredentialStatus = "expired"
)

type Credential struct {
	ID               int64          `db:"id" json:"id"`
	Name             string         `db:"name" json:"name"`
	Source           string         `db:"source" json:"source"`
	Kind             CredentialKind `db:"kind" json:"kind"`
	Username         string         `db:"username" json:"username"`
	PasswordCipher   []byte         `db:"password_cipher" json:"-"`
	SSHKeyCipher     []byte         `db:"ssh_key_cipher" json:"-"`
	PassphraseCipher []byte         `db:"passphrase_cipher" json:"-"`
	ValidUntil       *time.Time     `db:"valid_until" json:"valid_until,omitempty"`
	Owner            string         `db:"owner" json:"owner,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
}

// Status derives the credential's expiry bucket relative to now.
func (c *Credential) Status(now time.Time) CredentialStatus {
	if c.ValidUntil == nil {
		return CredentialActive
	}
	if c.ValidUntil.Before(now) {
		return CredentialExpired
	}
	if c.ValidUntil.Before(now.Add(7 * 24 * time.Hour)) {
		return CredentialExpiring
	}
	return CredentialActive
}

type GitAuthType string

const (
	GitAuthToken  GitAuthType = "token"
	GitAuthSSHKey GitAuthType = "ssh_key"
	GitAuthNone   GitAuthType = "none"
)

type GitRepository struct {
	ID             int64       `db:"id" json:"id"`
	Name           string      `db:"name" json:"name"`
	URL            string      `db:"url" json:"url"`
	Branch         string      `db:"branch" json:"branch"`
	Category       string      `db:"category" json:"category"`
	CredentialName string      `db:"credential_name" json:"credential_name,omitempty"`
	AuthType       GitAuthType `db:"auth_type" json:"auth_type"`
	VerifySSL      bool        `db:"verify_ssl" json:"verify_ssl"`
	Path           string      `db:"path" json:"path"`
	Active         bool        `db:"active" json:"active"`
}

// JobType enumerates JobTemplate.job_type.
type JobType string

const (
	JobBackup        JobType = "backup"
	JobRunCommands    JobType = "run_commands"
	JobSyncDevices    JobType = "sync_devices"
	JobCompareDevices JobType = "compare_devices"
	JobScanPrefixes   JobType = "scan_prefixes"
	JobIPAddresses    JobType = "ip_addresses"
	JobDeployAgent    JobType = "deploy_agent"
)

type InventorySource string

const (
	InventorySourceAll       InventorySource = "all"
	InventorySourceInventory InventorySource = "inventory"
)

// JobTemplate holds per-type configuration as a JSON blob (Config) plus the
// common fields every job type shares.
type JobTemplate struct {
	ID                        int64           `db:"id" json:"id"`
	Name                      string          `db:"name" json:"name"`
	JobType                   JobType         `db:"job_type" json:"job_type"`
	InventorySource           InventorySource `db:"inventory_source" json:"inventory_source"`
	InventoryName             string          `db:"inventory_name" json:"inventory_name,omitempty"`
	Config                    json.RawMessage `db:"config" json:"config"`
	IsGlobal                  bool            `db:"is_global" json:"is_global"`
	CreatedBy                 string          `db:"created_by" json:"created_by"`
	TimestampCustomField      string          `db:"timestamp_custom_field" json:"timestamp_custom_field,omitempty"`
	ActivateChangesAfterSync  bool            `db:"activate_changes_after_sync" json:"activate_changes_after_sync"`
	NonOverlapping            bool            `db:"non_overlapping" json:"non_overlapping"`
	CreatedAt                 time.Time       `db:"created_at" json:"created_at"`
}

type JobSchedule struct {
	ID           int64      `db:"id" json:"id"`
	TemplateID   int64      `db:"template_id" json:"template_id"`
	CronExpr     string     `db:"cron_expr" json:"cron_expr"`
	Enabled      bool       `db:"enabled" json:"enabled"`
	CredentialID *int64     `db:"credential_id" json:"credential_id,omitempty"`
	LastFiredAt  *time.Time `db:"last_fired_at" json:"last_fired_at,omitempty"`
}

// RunStatus enumerates JobRun.status. Terminal states are
// {Success, Failed, Partial, Cancelled} and are write-once.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSuccess   RunStatus = "success"
	RunFailed    RunStatus = "failed"
	RunPartial   RunStatus = "partial"
	RunCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether status is one of the write-once terminal
// states.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunSuccess, RunFailed, RunPartial, RunCancelled:
		return true
	default:
		return false
	}
}

type Progress struct {
	Processed int `db:"processed" json:"processed"`
	Total     int `db:"total" json:"total"`
}

type JobRun struct {
	ID            string          `db:"id" json:"id"`
	TemplateID    int64           `db:"template_id" json:"template_id"`
	Type          JobType         `db:"type" json:"type"`
	Status        RunStatus       `db:"status" json:"status"`
	StartedBy     string          `db:"started_by" json:"started_by"`
	StartedAt     time.Time       `db:"started_at" json:"started_at"`
	CompletedAt   *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	Processed     int             `db:"processed" json:"processed"`
	Total         int             `db:"total" json:"total"`
	ResultSummary string          `db:"result_summary" json:"result_summary,omitempty"`
	Error         string          `db:"error" json:"error,omitempty"`
	Metadata      json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	Cancelled     bool            `db:"cancelled" json:"-"`
}

type DeviceResultStatus string

const (
	DeviceResultOK      DeviceResultStatus = "ok"
	DeviceResultError   DeviceResultStatus = "error"
	DeviceResultSkipped DeviceResultStatus = "skipped"
)

type DeviceResult struct {
	ID           int64              `db:"id" json:"id"`
	RunID        string             `db:"run_id" json:"run_id"`
	DeviceName   string             `db:"device_name" json:"device_name"`
	DeviceID     string             `db:"device_id" json:"device_id,omitempty"`
	Status       DeviceResultStatus `db:"status" json:"status"`
	ResultBlob   json.RawMessage    `db:"result_blob" json:"result_blob,omitempty"`
	ErrorMessage string             `db:"error_message" json:"error_message,omitempty"`
	ProcessedAt  time.Time          `db:"processed_at" json:"processed_at"`
}

type InventoryScope string

const (
	InventoryGlobal  InventoryScope = "global"
	InventoryPrivate InventoryScope = "private"
)

type Inventory struct {
	ID         int64           `db:"id" json:"id"`
	Name       string          `db:"name" json:"name"`
	Scope      InventoryScope  `db:"scope" json:"scope"`
	CreatedBy  string          `db:"created_by" json:"created_by"`
	Conditions json.RawMessage `db:"conditions" json:"conditions"`
}

// NB2CMKComparison enumerates per-device Nautobot/CheckMK comparison
// outcomes.
type NB2CMKComparison string

const (
	CmpEqual         NB2CMKComparison = "equal"
	CmpDiff          NB2CMKComparison = "diff"
	CmpHostNotFound  NB2CMKComparison = "host_not_found"
	CmpError         NB2CMKComparison = "error"
)

type NB2CMKJob struct {
	ID          string     `db:"id" json:"id"`
	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	Total       int        `db:"total" json:"total"`
	Processed   int        `db:"processed" json:"processed"`
}

type NB2CMKJobResult struct {
	ID         int64            `db:"id" json:"id"`
	JobID      string           `db:"job_id" json:"job_id"`
	DeviceName string           `db:"device_name" json:"device_name"`
	Outcome    NB2CMKComparison `db:"outcome" json:"outcome"`
	Detail     string           `db:"detail" json:"detail,omitempty"`
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

type AuditLog struct {
	ID           int64           `db:"id" json:"id"`
	Username     string          `db:"username" json:"username"`
	UserID       *int64          `db:"user_id" json:"user_id,omitempty"`
	EventType    string          `db:"event_type" json:"event_type"`
	Message      string          `db:"message" json:"message"`
	IP           string          `db:"ip" json:"ip,omitempty"`
	ResourceType string          `db:"resource_type" json:"resource_type,omitempty"`
	ResourceID   string          `db:"resource_id" json:"resource_id,omitempty"`
	ResourceName string          `db:"resource_name" json:"resource_name,omitempty"`
	Severity     Severity        `db:"severity" json:"severity"`
	ExtraData    json.RawMessage `db:"extra_data" json:"extra_data,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

type AgentCommandStatus string

const (
	AgentCommandPending AgentCommandStatus = "pending"
	AgentCommandSuccess AgentCommandStatus = "success"
	AgentCommandError   AgentCommandStatus = "error"
	AgentCommandTimeout AgentCommandStatus = "timeout"
)

type CockpitAgentCommand struct {
	ID                int64              `db:"id" json:"id"`
	AgentID           string             `db:"agent_id" json:"agent_id"`
	CommandID         string             `db:"command_id" json:"command_id"`
	Command           string             `db:"command" json:"command"`
	Params            json.RawMessage    `db:"params" json:"params,omitempty"`
	Status            AgentCommandStatus `db:"status" json:"status"`
	Output            string             `db:"output" json:"output,omitempty"`
	Error             string             `db:"error" json:"error,omitempty"`
	ExecutionTimeMs   *int64             `db:"execution_time_ms" json:"execution_time_ms,omitempty"`
	SentAt            time.Time          `db:"sent_at" json:"sent_at"`
	CompletedAt       *time.Time         `db:"completed_at" json:"completed_at,omitempty"`
	SentBy            string             `db:"sent_by" json:"sent_by"`
}
