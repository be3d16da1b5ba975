// Package offboard orchestrates device offboarding: two integration modes
// against Nautobot ("remove" the device outright, or "set-offboarding"
// which clears/parks its attributes in place), optional primary/interface
// IP address cleanup, and optional CheckMK host removal. Grounded on
// original_source/backend/services/nautobot/offboarding/service.py and its
// device_cleanup.py/ip_cleanup.py/checkmk_cleanup.py collaborators; the
// per-step try/accumulate-errors shape is kept, translated into a single Go
// struct method that never stops early on a per-step failure.
package offboard

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/audit"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/checkmk"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/cockpitlog"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/nautobot"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/settings"
)

// IntegrationMode mirrors normalize_integration_mode's canonical values.
type IntegrationMode string

const (
	ModeRemove         IntegrationMode = "remove"
	ModeSetOffboarding IntegrationMode = "set-offboarding"
)

// NormalizeMode maps aliases ("set offboarding", "set offboarding values")
// onto the two canonical modes, defaulting to ModeRemove like the original.
func NormalizeMode(raw string) IntegrationMode {
	switch raw {
	case "set-offboarding", "set offboarding", "set offboarding values":
		return ModeSetOffboarding
	default:
		return ModeRemove
	}
}

// Request is the decoded POST /api/nautobot/devices/{id}/offboard body.
type Request struct {
	IntegrationMode    string
	RemoveInterfaceIPs bool
	RemovePrimaryIP    bool
	RemoveFromCheckMK  bool
}

// Result is the offboard response shape returned to the API layer.
type Result struct {
	Success      bool     `json:"success"`
	DeviceID     string   `json:"device_id"`
	DeviceName   string   `json:"device_name"`
	RemovedItems []string `json:"removed_items"`
	SkippedItems []string `json:"skipped_items"`
	Errors       []string `json:"errors"`
	Summary      string   `json:"summary"`
}

func newResult(deviceID string) *Result {
	return &Result{Success: true, DeviceID: deviceID}
}

func (r *Result) addError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Success = false
}

// Service orchestrates the offboarding workflow end to end.
type Service struct {
	nautobot *nautobot.Client
	checkmk  *checkmk.Client
	settings *settings.Store
	audit    *audit.Store
	logger   interface {
		Infof(format string, args ...any)
		Warnf(format string, args ...any)
	}
}

func NewService(nb *nautobot.Client, cmk *checkmk.Client, settingsStore *settings.Store, auditStore *audit.Store) *Service {
	return &Service{nautobot: nb, checkmk: cmk, settings: settingsStore, audit: auditStore, logger: cockpitlog.WithComponent("offboard")}
}

// Offboard runs the full workflow for one device and returns a Result that
// is always populated, even on partial failure — individual step errors
// are accumulated into Result.Errors rather than aborting the run.
func (s *Service) Offboard(ctx context.Context, deviceID string, req Request, actor string) (*Result, error) {
	device, err := s.fetchDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	result := newResult(deviceID)
	result.DeviceName = device.Name

	mode := NormalizeMode(req.IntegrationMode)
	s.logger.Infof("offboarding device %s mode=%s", deviceID, mode)

	offboardSettings, settingsErr := s.loadSettings(ctx)

	switch mode {
	case ModeRemove:
		s.handleDeviceRemoval(ctx, deviceID, result)
	case ModeSetOffboarding:
		if settingsErr != nil || offboardSettings == nil {
			result.addError("no offboarding settings configured - cannot proceed with set-offboarding mode")
		} else if !validateSettings(*offboardSettings, result) {
			// validateSettings already recorded the error.
		} else {
			s.applySetOffboarding(ctx, deviceID, *offboardSettings, device, result)
		}
	}

	var interfaceIPsRemoved []string
	if req.RemoveInterfaceIPs {
		interfaceIPsRemoved = s.removeInterfaceIPs(ctx, deviceID, device, result)
	} else {
		result.SkippedItems = append(result.SkippedItems, "Interface IP removal was not requested")
	}

	if req.RemovePrimaryIP {
		s.removePrimaryIP(ctx, deviceID, device, interfaceIPsRemoved, result)
	} else {
		result.SkippedItems = append(result.SkippedItems, "Primary IP removal was not requested")
	}

	if req.RemoveFromCheckMK {
		s.removeFromCheckMK(ctx, device, result)
	} else {
		result.SkippedItems = append(result.SkippedItems, "CheckMK removal was not requested")
	}

	s.buildSummary(result)
	s.recordAudit(ctx, result, device, req, actor, mode)

	return result, nil
}

func (s *Service) fetchDevice(ctx context.Context, deviceID string) (nautobot.Device, error) {
	device, err := nautobot.NewResolvers(s.nautobot).DeviceByID(ctx, deviceID)
	if err != nil {
		return nautobot.Device{}, apperrors.Wrap(apperrors.NotFound, "device not found: "+deviceID, err)
	}
	return device, nil
}

func (s *Service) loadSettings(ctx context.Context) (*settings.DeviceOffboardingSettings, error) {
	var cfg settings.DeviceOffboardingSettings
	if err := s.settings.Get(ctx, settings.GroupDeviceOffboarding, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateSettings mirrors validate_offboarding_settings: set-offboarding
// mode needs at least one concrete action configured.
func validateSettings(cfg settings.DeviceOffboardingSettings, result *Result) bool {
	if cfg.RemoveAllCustomFields || cfg.ClearDeviceName {
		return true
	}
	if len(cfg.CustomFieldSettings) == 0 {
		result.addError("no custom field settings configured, remove_all_custom_fields is false, and clear_device_name is false - cannot proceed with set-offboarding mode")
		return false
	}
	return true
}

func (s *Service) handleDeviceRemoval(ctx context.Context, deviceID string, result *Result) {
	if err := s.nautobot.Delete(ctx, "/api/dcim/devices/"+deviceID+"/"); err != nil {
		result.addError(fmt.Sprintf("Failed to remove device %s: %v", deviceID, err))
		return
	}
	result.RemovedItems = append(result.RemovedItems, fmt.Sprintf("Device: %s (%s)", result.DeviceName, deviceID))
}

func (s *Service) applySetOffboarding(ctx context.Context, deviceID string, cfg settings.DeviceOffboardingSettings, device nautobot.Device, result *Result) {
	if cfg.ClearDeviceName {
		if err := s.patchDevice(ctx, deviceID, map[string]any{"name": ""}); err != nil {
			result.addError("Failed to clear device name: " + err.Error())
		} else {
			result.RemovedItems = append(result.RemovedItems, "Device name cleared")
		}
	}

	if !cfg.KeepSerial {
		if err := s.patchDevice(ctx, deviceID, map[string]any{"serial": ""}); err != nil {
			result.addError("Failed to clear device serial number: " + err.Error())
		} else {
			result.RemovedItems = append(result.RemovedItems, "Device serial number cleared")
		}
	}

	s.applyCustomFields(ctx, deviceID, cfg, device, result)
	s.applyDeviceAttributes(ctx, deviceID, cfg, result)
}

// applyCustomFields implements CustomFieldManager.apply_offboarding_values:
// either blank every custom field Nautobot reports for the device, or set
// exactly the configured subset.
func (s *Service) applyCustomFields(ctx context.Context, deviceID string, cfg settings.DeviceOffboardingSettings, device nautobot.Device, result *Result) {
	if cfg.RemoveAllCustomFields {
		fields := map[string]any{}
		for k := range device.Attrs {
			if name := strings.TrimPrefix(k, "_custom_field_data."); name != k && name != "" {
				fields[name] = nil
			}
		}
		if len(fields) == 0 {
			return
		}
		if err := s.patchDevice(ctx, deviceID, map[string]any{"custom_fields": fields}); err != nil {
			result.addError("Failed to clear custom fields: " + err.Error())
			return
		}
		result.RemovedItems = append(result.RemovedItems, "All custom fields cleared")
		return
	}

	if len(cfg.CustomFieldSettings) == 0 {
		return
	}
	values := map[string]any{}
	for field, value := range cfg.CustomFieldSettings {
		values[field] = value
	}
	if err := s.patchDevice(ctx, deviceID, map[string]any{"custom_fields": values}); err != nil {
		result.addError("Failed to apply custom field settings: " + err.Error())
		return
	}
	result.RemovedItems = append(result.RemovedItems, "Custom field settings applied")
}

func (s *Service) applyDeviceAttributes(ctx context.Context, deviceID string, cfg settings.DeviceOffboardingSettings, result *Result) {
	payload := map[string]any{}
	if cfg.OffboardingStatus != "" {
		payload["status"] = cfg.OffboardingStatus
	}
	if cfg.OffboardingRole != "" {
		payload["role"] = cfg.OffboardingRole
	}
	if cfg.OffboardingLocation != "" {
		payload["location"] = cfg.OffboardingLocation
	}
	if len(payload) == 0 {
		return
	}
	if err := s.patchDevice(ctx, deviceID, payload); err != nil {
		result.addError("Failed to update device location/status/role: " + err.Error())
		return
	}
	result.RemovedItems = append(result.RemovedItems, "Device location, status, and role updated")
}

func (s *Service) patchDevice(ctx context.Context, deviceID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.nautobot.Patch(ctx, "/api/dcim/devices/"+deviceID+"/", body)
	return err
}

// removeInterfaceIPs deletes every non-primary IP address attached to the
// device's interfaces, returning the addresses removed so removePrimaryIP
// can skip double-deleting one that was also the primary.
func (s *Service) removeInterfaceIPs(ctx context.Context, deviceID string, device nautobot.Device, result *Result) []string {
	ipIDs, _ := device.Field("_interface_ip_ids")
	ids, ok := ipIDs.([]string)
	if !ok || len(ids) == 0 {
		result.SkippedItems = append(result.SkippedItems, "No interface IP addresses found")
		return nil
	}

	var removed []string
	for _, id := range ids {
		if err := s.nautobot.Delete(ctx, "/api/ipam/ip-addresses/"+id+"/"); err != nil {
			result.addError(fmt.Sprintf("Failed to remove interface IP %s: %v", id, err))
			continue
		}
		removed = append(removed, id)
		result.RemovedItems = append(result.RemovedItems, "Interface IP: "+id)
	}
	return removed
}

func (s *Service) removePrimaryIP(ctx context.Context, deviceID string, device nautobot.Device, alreadyRemoved []string, result *Result) {
	primaryIPID, ok := device.Field("_primary_ip_id")
	id, isStr := primaryIPID.(string)
	if !ok || !isStr || id == "" {
		result.SkippedItems = append(result.SkippedItems, "Device has no primary IP address")
		return
	}
	for _, removedID := range alreadyRemoved {
		if removedID == id {
			result.SkippedItems = append(result.SkippedItems, "Primary IP already removed as an interface IP")
			return
		}
	}
	if err := s.patchDevice(ctx, deviceID, map[string]any{"primary_ip4": nil}); err != nil {
		result.addError("Failed to clear primary IP assignment: " + err.Error())
		return
	}
	if err := s.nautobot.Delete(ctx, "/api/ipam/ip-addresses/"+id+"/"); err != nil {
		result.addError(fmt.Sprintf("Failed to delete primary IP %s: %v", id, err))
		return
	}
	result.RemovedItems = append(result.RemovedItems, "Primary IP: "+id)
}

func (s *Service) removeFromCheckMK(ctx context.Context, device nautobot.Device, result *Result) {
	if err := s.checkmk.DeleteHost(ctx, device.Name); err != nil {
		if apperrors.Is(err, apperrors.NotFound) {
			result.SkippedItems = append(result.SkippedItems, "Device has no CheckMK host")
			return
		}
		result.addError("Failed to remove CheckMK host: " + err.Error())
		return
	}
	result.RemovedItems = append(result.RemovedItems, "CheckMK host: "+device.Name)
}

func (s *Service) buildSummary(result *Result) {
	removed := len(result.RemovedItems)
	errored := len(result.Errors)
	if errored > 0 {
		result.Success = false
		result.Summary = fmt.Sprintf("Offboarding partially completed: %d items removed, %d errors occurred", removed, errored)
		return
	}
	result.Summary = fmt.Sprintf("Offboarding completed successfully: %d items removed", removed)
}

func (s *Service) recordAudit(ctx context.Context, result *Result, device nautobot.Device, req Request, actor string, mode IntegrationMode) {
	if s.audit == nil {
		return
	}
	s.audit.Record(actor, nil, "offboard_device", result.Summary, models.SeverityInfo,
		audit.WithResource("device", result.DeviceID, result.DeviceName),
		audit.WithExtra(map[string]any{
			"mode":    string(mode),
			"success": result.Success,
		}))
}
