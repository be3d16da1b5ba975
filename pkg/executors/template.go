// Package executors implements the per-job-type execution logic (backup,
// run_commands, sync_devices, scan_prefixes, ip_addresses, deploy_agent)
// registered against a shared Registry. The registry shape is grounded on
// kubernaut's pkg/executor (Register/Unregister/IsRegistered/Execute over a
// name->handler map, "already registered"/"unknown action" error text).
// Path and date templating are grounded on
// original_source/backend/tasks/execution/ip_addresses_executor.py (date
// templates) and original_source/backend/services/network/configs/backup_service.py
// (path templates using device attributes).
package executors

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/nautobot"
)

var templateFieldPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// RenderPath expands "{field}", "{field.subfield}", and
// "{_custom_field_data.<key>}" placeholders against a device, per the
// backup/deploy path-templating syntax. An unresolved placeholder is left
// as the literal empty string, mirroring the original's best-effort
// rendering rather than aborting the run.
func RenderPath(template string, device nautobot.Device) string {
	return templateFieldPattern.ReplaceAllStringFunc(template, func(match string) string {
		field := strings.Trim(match, "{}")
		value, ok := resolveField(device, field)
		if !ok {
			return ""
		}
		return fmt.Sprintf("%v", value)
	})
}

func resolveField(device nautobot.Device, field string) (any, bool) {
	if v, ok := device.Field(field); ok {
		return v, ok
	}
	if strings.Contains(field, ".") {
		parts := strings.SplitN(field, ".", 2)
		if parts[0] == "location" {
			return device.Field("location.name")
		}
	}
	return nil, false
}

// dateTemplatePattern matches {today}, {today-N}, {today+N}.
var dateTemplatePattern = regexp.MustCompile(`\{today([+-]\d+)?\}`)

// RenderDateTemplates resolves {today}, {today-N}, {today+N} against now,
// evaluated lazily at task execution per the date-templating contract.
func RenderDateTemplates(s string, now time.Time) string {
	return dateTemplatePattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := dateTemplatePattern.FindStringSubmatch(match)
		offset := 0
		if sub[1] != "" {
			n, err := strconv.Atoi(sub[1])
			if err == nil {
				offset = n
			}
		}
		return now.AddDate(0, 0, offset).Format("2006-01-02")
	})
}
