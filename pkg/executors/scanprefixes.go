package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/nautobot"
)

// ScanPrefixesConfig is the scan_prefixes job_type's per-template
// configuration.
type ScanPrefixesConfig struct {
	PingCount              int    `json:"ping_count"`
	PingTimeoutMs          int    `json:"ping_timeout_ms"`
	PingRetries            int    `json:"ping_retries"`
	PingIntervalMs         int    `json:"ping_interval_ms"`
	ResolveDNS             bool   `json:"resolve_dns"`
	SetActiveOnReachable   *bool  `json:"set_active_on_reachable"`
	ReachableCustomField   string `json:"reachable_custom_field,omitempty"`
	SummaryCustomField     string `json:"summary_custom_field,omitempty"`
}

type scanPrefixesResultBlob struct {
	Prefix        string   `json:"prefix"`
	Scanned       int      `json:"scanned"`
	ReachableIPs  []string `json:"reachable_ips"`
	Unreachable   int      `json:"unreachable"`
}

// NewScanPrefixesHandler implements the scan_prefixes contract: enumerate
// every host address in the prefix dc.Device.Name carries, probe each for
// reachability, and mark reachable addresses Active in Nautobot (and/or
// write a custom field) when the template opts in. ResolveDNS is accepted
// in the config but no DNS lookup is performed. A run whose template
// leaves SetActiveOnReachable unset is rejected rather than defaulting
// silently.
func NewScanPrefixesHandler(nb *nautobot.Client) Handler {
	return func(ctx context.Context, dc DeviceContext) DeviceOutcome {
		var cfg ScanPrefixesConfig
		if err := json.Unmarshal(dc.Template.Config, &cfg); err != nil {
			return DeviceOutcome{Status: models.DeviceResultError, Error: "invalid scan_prefixes config: " + err.Error()}
		}
		if cfg.SetActiveOnReachable == nil {
			return DeviceOutcome{Status: models.DeviceResultError, Error: "set_active_on_reachable must be explicitly set"}
		}

		_, ipNet, err := net.ParseCIDR(dc.Device.Name)
		if err != nil {
			return DeviceOutcome{Status: models.DeviceResultError, Error: "invalid prefix: " + err.Error()}
		}

		addrs := hostAddresses(ipNet)
		blob := scanPrefixesResultBlob{Prefix: dc.Device.Name, Scanned: len(addrs)}

		timeout := time.Duration(cfg.PingTimeoutMs) * time.Millisecond
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		retries := cfg.PingRetries
		if retries <= 0 {
			retries = 1
		}
		interval := time.Duration(cfg.PingIntervalMs) * time.Millisecond

		for _, addr := range addrs {
			if !probeReachable(ctx, addr, timeout, retries, interval) {
				blob.Unreachable++
				continue
			}
			blob.ReachableIPs = append(blob.ReachableIPs, addr)

			if *cfg.SetActiveOnReachable {
				markIPActive(ctx, nb, addr, cfg.ReachableCustomField)
			}
		}

		if cfg.SummaryCustomField != "" {
			writeScanSummary(ctx, nb, dc.Device, cfg.SummaryCustomField, blob)
		}

		result, _ := json.Marshal(blob)
		return DeviceOutcome{Status: models.DeviceResultOK, ResultBlob: result}
	}
}

// hostAddresses enumerates usable host addresses in a prefix, excluding the
// network and broadcast addresses for prefixes wider than /31.
func hostAddresses(ipNet *net.IPNet) []string {
	ones, bits := ipNet.Mask.Size()
	if bits-ones == 0 {
		return []string{ipNet.IP.String()}
	}
	if bits-ones == 1 {
		second := cloneIP(ipNet.IP)
		incrementIP(second)
		return []string{ipNet.IP.String(), second.String()}
	}

	var out []string
	ip := cloneIP(ipNet.IP)
	incrementIP(ip)
	for ipNet.Contains(ip) {
		next := cloneIP(ip)
		incrementIP(next)
		if !ipNet.Contains(next) {
			break // next would be the broadcast address
		}
		out = append(out, ip.String())
		ip = next
	}
	return out
}

func cloneIP(ip net.IP) net.IP {
	out := make(net.IP, len(ip))
	copy(out, ip)
	return out
}

func incrementIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			break
		}
	}
}

// probeReachable checks host reachability via a TCP dial sweep of common
// management ports (22, 443, 80). No ICMP library is present anywhere in
// the retrieval pack and raw ICMP sockets require elevated privileges this
// process does not assume, so a connect-based probe substitutes for "ping"
// — a hit on any port counts as reachable, a timeout on all of them across
// every retry counts as unreachable.
func probeReachable(ctx context.Context, host string, timeout time.Duration, retries int, interval time.Duration) bool {
	ports := []string{"22", "443", "80"}
	dialer := net.Dialer{Timeout: timeout}

	for attempt := 0; attempt < retries; attempt++ {
		for _, port := range ports {
			conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
			if err == nil {
				conn.Close()
				return true
			}
		}
		if attempt < retries-1 && interval > 0 {
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return false
			}
		}
	}
	return false
}

func markIPActive(ctx context.Context, nb *nautobot.Client, addr, customField string) {
	payload := map[string]any{"status": "Active"}
	if customField != "" {
		payload["custom_fields"] = map[string]any{customField: true}
	}
	body, _ := json.Marshal(payload)
	_, _ = nb.Patch(ctx, "/api/ipam/ip-addresses/?address="+addr, body)
}

func writeScanSummary(ctx context.Context, nb *nautobot.Client, device nautobot.Device, field string, blob scanPrefixesResultBlob) {
	summary := fmt.Sprintf("%d/%d reachable", len(blob.ReachableIPs), blob.Scanned)
	payload, _ := json.Marshal(map[string]any{"custom_fields": map[string]any{field: summary}})
	if device.ID != "" {
		_, _ = nb.Patch(ctx, "/api/ipam/prefixes/"+device.ID+"/", payload)
	}
}
