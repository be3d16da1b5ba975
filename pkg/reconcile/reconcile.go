package reconcile

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/nerdfunk-net/cockpit-ng-sub003/internal/apperrors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/checkmk"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/nautobot"
)

// DesiredHost is the normalised Nautobot -> CheckMK representation a
// device produces.
type DesiredHost struct {
	Folder     string
	Attributes map[string]any
}

// FolderTemplate renders a CheckMK folder path from a device, e.g.
// "/site/{location.parent.name}/{location.name}"-style. Path
// components use "/" on the wire to the engine; the gateway itself
// converts to "~" at the CheckMK API boundary.
type FolderTemplate func(d nautobot.Device) (string, error)

// Normaliser builds the desired CheckMK host configuration for a device.
type Normaliser struct {
	folderTemplate  FolderTemplate
	snmpMapping     SNMPMapping
	snmpCustomField string
	ignoreAttrs     map[string]bool
}

func NewNormaliser(folderTemplate FolderTemplate, snmpMapping SNMPMapping, snmpCustomField string, ignoreAttributes []string) *Normaliser {
	ignore := map[string]bool{"meta_data": true}
	for _, a := range ignoreAttributes {
		ignore[a] = true
	}
	return &Normaliser{folderTemplate: folderTemplate, snmpMapping: snmpMapping, snmpCustomField: snmpCustomField, ignoreAttrs: ignore}
}

// Normalise converts a Nautobot device into the desired CheckMK host
// config, covering the attribute set
// {site, ipaddress, alias, location, tag_*, snmp_community}.
func (n *Normaliser) Normalise(d nautobot.Device) (*DesiredHost, error) {
	folder, err := n.folderTemplate(d)
	if err != nil {
		return nil, fmt.Errorf("reconcile: render folder template: %w", err)
	}

	attrs := map[string]any{
		"site":      d.Location,
		"ipaddress": d.PrimaryIP4,
		"alias":     d.Name,
		"location":  d.Location,
	}
	for k, v := range d.Attrs {
		if strings.HasPrefix(k, "tag_") {
			attrs[k] = v
		}
	}

	if n.snmpMapping != nil && n.snmpCustomField != "" {
		if v, ok := d.Field(n.snmpCustomField); ok {
			cfValue := fmt.Sprintf("%v", v)
			community, err := n.snmpMapping.Resolve(cfValue)
			if err != nil {
				return nil, err
			}
			attrs["snmp_community"] = community.ToWire()
		}
	}

	return &DesiredHost{Folder: folder, Attributes: attrs}, nil
}

// Compare reports equal iff every key in the comparison set (every key
// present in either side, minus ignored ones) matches by deep equality;
// snmp_community is compared as a whole value.
func (n *Normaliser) Compare(desired *DesiredHost, actual *checkmk.HostConfig) models.NB2CMKComparison {
	if actual == nil {
		return models.CmpHostNotFound
	}
	if desired.Folder != actual.Folder {
		return models.CmpDiff
	}

	keys := map[string]bool{}
	for k := range desired.Attributes {
		keys[k] = true
	}
	for k := range actual.Attributes {
		keys[k] = true
	}

	for k := range keys {
		if n.ignoreAttrs[k] {
			continue
		}
		if !reflect.DeepEqual(desired.Attributes[k], actual.Attributes[k]) {
			return models.CmpDiff
		}
	}
	return models.CmpEqual
}

// Engine drives the per-device state machine:
// NAUTOBOT_FETCH_OK -> NORMALISE -> CHECKMK_GET_HOST -> COMPARE -> {EQUAL,DIFF,HOST_NOT_FOUND,ERROR}
type Engine struct {
	checkmk    *checkmk.Client
	normaliser *Normaliser
}

func NewEngine(cmk *checkmk.Client, normaliser *Normaliser) *Engine {
	return &Engine{checkmk: cmk, normaliser: normaliser}
}

// CompareDevice runs the state machine for one device, returning the
// comparison outcome and the desired host for use by Sync.
func (e *Engine) CompareDevice(ctx context.Context, d nautobot.Device) (models.NB2CMKComparison, *DesiredHost, error) {
	desired, err := e.normaliser.Normalise(d)
	if err != nil {
		return models.CmpError, nil, err
	}

	actual, _, err := e.checkmk.GetHost(ctx, d.Name)
	if apperrors.Is(err, apperrors.NotFound) {
		return models.CmpHostNotFound, desired, nil
	}
	if err != nil {
		return models.CmpError, desired, err
	}

	return e.normaliser.Compare(desired, actual), desired, nil
}

// Sync converges CheckMK toward the desired state for one device via the
// add/update/remove action driven by the comparison outcome. Per-device
// failures are the caller's responsibility to capture into
// NB2CMKJobResult; the aggregate job completes regardless.
func (e *Engine) Sync(ctx context.Context, hostname string, outcome models.NB2CMKComparison, desired *DesiredHost) error {
	switch outcome {
	case models.CmpEqual:
		return nil
	case models.CmpHostNotFound:
		if err := e.ensureFolderPath(ctx, desired.Folder); err != nil {
			return err
		}
		return e.checkmk.CreateHost(ctx, hostname, checkmk.HostConfig{Folder: desired.Folder, Attributes: desired.Attributes})
	case models.CmpDiff:
		actual, _, err := e.checkmk.GetHost(ctx, hostname)
		if err != nil {
			return err
		}
		if actual.Folder != desired.Folder {
			if err := e.ensureFolderPath(ctx, desired.Folder); err != nil {
				return err
			}
			if err := e.checkmk.MoveHost(ctx, hostname, desired.Folder); err != nil {
				return err
			}
		}
		return e.checkmk.UpdateHost(ctx, hostname, desired.Attributes)
	default:
		return fmt.Errorf("reconcile: cannot sync from outcome %q", outcome)
	}
}

func (e *Engine) ensureFolderPath(ctx context.Context, folder string) error {
	return e.checkmk.EnsureFolder(ctx, folder)
}

// Remove deletes a device's CheckMK host, the remove action used by
// device offboarding.
func (e *Engine) Remove(ctx context.Context, hostname string) error {
	return e.checkmk.DeleteHost(ctx, hostname)
}

// ActivateChanges invokes CheckMK's activation for the given sites.
func (e *Engine) ActivateChanges(ctx context.Context, sites []string) error {
	return e.checkmk.ActivateChanges(ctx, sites)
}
