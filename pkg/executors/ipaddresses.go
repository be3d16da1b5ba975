package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/nautobot"
)

// IPAddressAction enumerates the three ip_addresses job_type actions.
type IPAddressAction string

const (
	IPActionList   IPAddressAction = "list"
	IPActionMark   IPAddressAction = "mark"
	IPActionRemove IPAddressAction = "remove"
)

// IPAddressesConfig is the ip_addresses (Maintain IP-Addresses) job_type's
// per-template configuration, grounded on
// original_source/backend/tasks/execution/ip_addresses_executor.py's
// template field names (ip_action, ip_filter_field, ...).
type IPAddressesConfig struct {
	Action              IPAddressAction `json:"ip_action"`
	FilterField         string          `json:"ip_filter_field"`
	FilterType          string          `json:"ip_filter_type,omitempty"` // lte|gte|lt|gt|contains|"" (equality)
	FilterValue         string          `json:"ip_filter_value"`
	IncludeNull         bool            `json:"ip_include_null"`
	MarkStatus          string          `json:"ip_mark_status,omitempty"`
	MarkTag             string          `json:"ip_mark_tag,omitempty"`
	MarkDescription     *string         `json:"ip_mark_description,omitempty"`
	RemoveSkipAssigned  bool            `json:"ip_remove_skip_assigned"`
}

type ipAddressRecord struct {
	ID                   string           `json:"id"`
	Address              string           `json:"address"`
	InterfaceAssignments []map[string]any `json:"interface_assignments"`
}

type ipAddressesResultBlob struct {
	Action      IPAddressAction   `json:"action"`
	Total       int               `json:"total"`
	Deleted     int               `json:"deleted,omitempty"`
	Failed      int               `json:"failed,omitempty"`
	Skipped     int               `json:"skipped,omitempty"`
	Updated     int               `json:"updated,omitempty"`
	IPAddresses []ipAddressRecord `json:"ip_addresses,omitempty"`
	SkippedIPs  []ipAddressRecord `json:"skipped_ips,omitempty"`
}

// NewIPAddressesHandler implements the Maintain IP-Addresses contract. It
// runs once per JobRun against the whole matching IP set rather than once
// per Nautobot device — the dispatcher materialises a single-device Run
// for this job_type (total=1) and hands this handler a DeviceContext whose
// Device field is unused.
func NewIPAddressesHandler(nb *nautobot.Client) Handler {
	return func(ctx context.Context, dc DeviceContext) DeviceOutcome {
		var cfg IPAddressesConfig
		if err := json.Unmarshal(dc.Template.Config, &cfg); err != nil {
			return DeviceOutcome{Status: models.DeviceResultError, Error: "invalid ip_addresses config: " + err.Error()}
		}
		if cfg.FilterField == "" || cfg.FilterValue == "" {
			return DeviceOutcome{Status: models.DeviceResultError, Error: "ip_filter_field and ip_filter_value must be configured"}
		}

		ips, err := listMatchingIPs(ctx, nb, cfg)
		if err != nil {
			return DeviceOutcome{Status: models.DeviceResultError, Error: err.Error()}
		}

		var blob ipAddressesResultBlob
		switch cfg.Action {
		case IPActionList, "":
			blob = ipAddressesResultBlob{Action: IPActionList, Total: len(ips), IPAddresses: ips}
		case IPActionRemove:
			blob = removeIPs(ctx, nb, ips, cfg.RemoveSkipAssigned)
		case IPActionMark:
			if cfg.MarkStatus == "" && cfg.MarkTag == "" && cfg.MarkDescription == nil {
				return DeviceOutcome{Status: models.DeviceResultError, Error: "at least one of ip_mark_status, ip_mark_tag, or ip_mark_description must be set for the mark action"}
			}
			blob = markIPs(ctx, nb, ips, cfg)
		default:
			return DeviceOutcome{Status: models.DeviceResultError, Error: fmt.Sprintf("unknown action %q", cfg.Action)}
		}

		encoded, _ := json.Marshal(blob)
		return DeviceOutcome{Status: models.DeviceResultOK, ResultBlob: encoded}
	}
}

// filterKey renders the REST query key, applying the operator suffix
// (__lte/__gte/__lt/__gt/__contains, equality otherwise). Date templates
// in the value are rendered by the caller, not here.
func filterKey(field, filterType string) string {
	if filterType == "" {
		return field
	}
	return field + "__" + filterType
}

func listMatchingIPs(ctx context.Context, nb *nautobot.Client, cfg IPAddressesConfig) ([]ipAddressRecord, error) {
	value := RenderDateTemplates(cfg.FilterValue, time.Now())
	key := filterKey(cfg.FilterField, cfg.FilterType)

	q := url.Values{}
	q.Set(key, value)
	if cfg.IncludeNull {
		// Nautobot's ORM-backed filter API treats "field__isnull=false"
		// as excluding nulls by default; an explicit include_null widens
		// the filter to also match unset values.
		q.Set(cfg.FilterField+"__isnull", "true")
	}

	data, err := nb.Get(ctx, "/api/ipam/ip-addresses/?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("executors: list ip addresses: %w", err)
	}
	var parsed struct {
		Results []ipAddressRecord `json:"results"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("executors: decode ip address list: %w", err)
	}
	return parsed.Results, nil
}

func removeIPs(ctx context.Context, nb *nautobot.Client, ips []ipAddressRecord, skipAssigned bool) ipAddressesResultBlob {
	blob := ipAddressesResultBlob{Action: IPActionRemove, Total: len(ips)}
	for _, ip := range ips {
		if ip.ID == "" {
			blob.Failed++
			continue
		}
		if skipAssigned && len(ip.InterfaceAssignments) > 0 {
			blob.Skipped++
			blob.SkippedIPs = append(blob.SkippedIPs, ip)
			continue
		}
		if err := nb.Delete(ctx, "/api/ipam/ip-addresses/"+ip.ID+"/"); err != nil {
			blob.Failed++
			continue
		}
		blob.Deleted++
	}
	return blob
}

func markIPs(ctx context.Context, nb *nautobot.Client, ips []ipAddressRecord, cfg IPAddressesConfig) ipAddressesResultBlob {
	blob := ipAddressesResultBlob{Action: IPActionMark, Total: len(ips)}

	changes := map[string]any{}
	if cfg.MarkStatus != "" {
		changes["status"] = cfg.MarkStatus
	}
	if cfg.MarkTag != "" {
		changes["tags"] = []string{cfg.MarkTag}
	}
	if cfg.MarkDescription != nil {
		changes["description"] = *cfg.MarkDescription
	}

	body, _ := json.Marshal(changes)
	for _, ip := range ips {
		if ip.ID == "" {
			blob.Failed++
			continue
		}
		if _, err := nb.Patch(ctx, "/api/ipam/ip-addresses/"+ip.ID+"/", body); err != nil {
			blob.Failed++
			continue
		}
		blob.Updated++
	}
	return blob
}
