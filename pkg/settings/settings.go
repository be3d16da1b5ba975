// Package settings stores the singleton setting groups (Nautobot,
// CheckMK, Git, Cache, Celery-equivalent broker, NautobotDefaults,
// DeviceOffboarding) and the dynamic queue list, fully data-driven at
// boot, grounded on
// original_source/backend/models/settings.py and
// repositories/settings/settings_repository.py.
package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
)

// Group names a singleton setting record.
type Group string

const (
	GroupNautobot          Group = "nautobot"
	GroupCheckMK           Group = "checkmk"
	GroupGit               Group = "git"
	GroupCache             Group = "cache"
	GroupBroker            Group = "broker"
	GroupNautobotDefaults  Group = "nautobot_defaults"
	GroupDeviceOffboarding Group = "device_offboarding"
	GroupQueues            Group = "queues"
)

// Store is the sqlx-backed singleton setting-group repository.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Get loads group's JSON blob and decodes it into out.
func (s *Store) Get(ctx context.Context, group Group, out any) error {
	var raw json.RawMessage
	err := s.db.GetContext(ctx, &raw, `SELECT data FROM settings WHERE group_name=$1`, group)
	if err == sql.ErrNoRows {
		return apperrors.New(apperrors.NotFound, fmt.Sprintf("setting group %q not configured", group))
	}
	if err != nil {
		return fmt.Errorf("settings: get %q: %w", group, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("settings: decode %q: %w", group, err)
	}
	return nil
}

// Put upserts group's JSON blob.
func (s *Store) Put(ctx context.Context, group Group, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("settings: encode %q: %w", group, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settings (group_name, data, updated_at) VALUES ($1,$2, now())
		ON CONFLICT (group_name) DO UPDATE SET data=EXCLUDED.data, updated_at=now()`, group, raw)
	if err != nil {
		return fmt.Errorf("settings: put %q: %w", group, err)
	}
	return nil
}

// QueueConfig is the dynamic queue/routing table loaded at worker and
// scheduler boot, fully data-driven at start-up rather than hardcoded.
type QueueConfig struct {
	Queues []string          `json:"queues"`
	Routes map[string]string `json:"routes"`
}

// DefaultQueueConfig is used only to seed the settings table; runtime code
// always reads QueueConfig back from the store, never from this constant.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Queues: []string{"default", "backup", "network", "heavy"},
		Routes: map[string]string{
			"backup":       "backup",
			"scan_prefixes": "network",
			"sync_devices":  "heavy",
			"*":            "default",
		},
	}
}

// LoadQueueConfig reads the queue config, falling back to the built-in
// default (and persisting it) on first boot.
func (s *Store) LoadQueueConfig(ctx context.Context) (QueueConfig, error) {
	var cfg QueueConfig
	err := s.Get(ctx, GroupQueues, &cfg)
	if apperrors.Is(err, apperrors.NotFound) {
		cfg = DefaultQueueConfig()
		if putErr := s.Put(ctx, GroupQueues, cfg); putErr != nil {
			return cfg, putErr
		}
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	return cfg, nil
}

// NautobotSettings mirrors the Nautobot connection singleton.
type NautobotSettings struct {
	URL      string `json:"url"`
	Token    string `json:"token"`
	VerifyTLS bool  `json:"verify_tls"`
}

// CheckMKSettings mirrors the CheckMK connection singleton.
type CheckMKSettings struct {
	URL      string `json:"url"`
	Site     string `json:"site"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// DeviceOffboardingSettings controls offboard default behaviour and the
// set-offboarding integration mode's custom-field cleanup rules.
type DeviceOffboardingSettings struct {
	DefaultIntegrationMode string            `json:"default_integration_mode"`
	RemovePrimaryIP        bool              `json:"remove_primary_ip"`
	RemoveInterfaceIPs     bool              `json:"remove_interface_ips"`
	RemoveFromCheckMK      bool              `json:"remove_from_checkmk"`
	RemoveAllCustomFields  bool              `json:"remove_all_custom_fields"`
	ClearDeviceName        bool              `json:"clear_device_name"`
	KeepSerial             bool              `json:"keep_serial"`
	CustomFieldSettings    map[string]string `json:"custom_field_settings"`
	OffboardingStatus      string            `json:"offboarding_status"`
	OffboardingRole        string            `json:"offboarding_role"`
	OffboardingLocation    string            `json:"offboarding_location"`
}
