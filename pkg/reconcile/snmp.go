// Package reconcile implements the Nautobot->CheckMK state machine and
// normalisation rules, grounded on
// original_source/backend/repositories/checkmk/nb2cmk_repository.py and
// models/nb2cmk.py. The SNMP community tagged union is modelled as an
// explicit Go sum type with a discriminant, not a free-form map.
package reconcile

import "fmt"

// SNMPSecurityLevel enumerates the v3 security_level values.
type SNMPSecurityLevel string

const (
	SecurityLevelNoAuthNoPriv SNMPSecurityLevel = "noAuthNoPriv"
	SecurityLevelAuthNoPriv   SNMPSecurityLevel = "authNoPriv"
	SecurityLevelAuthPriv     SNMPSecurityLevel = "authPriv"
)

// SNMPCommunity is a tagged union: exactly one of V1V2/V3 is set,
// discriminated by Kind.
type SNMPCommunity struct {
	Kind string // "v1_v2_community" | "v3"
	V1V2 *V1V2Community
	V3   *V3Community
}

type V1V2Community struct {
	Community string
}

type V3Community struct {
	SecurityLevel  SNMPSecurityLevel
	AuthProtocol   string
	AuthPassword   string
	PrivProtocol   string
	PrivPassword   string
	SecurityName   string
}

// Equal is structural equality on the discriminant plus the active
// variant's fields.
func (c SNMPCommunity) Equal(other SNMPCommunity) bool {
	if c.Kind != other.Kind {
		return false
	}
	switch c.Kind {
	case "v1_v2_community":
		if c.V1V2 == nil || other.V1V2 == nil {
			return c.V1V2 == other.V1V2
		}
		return *c.V1V2 == *other.V1V2
	case "v3":
		if c.V3 == nil || other.V3 == nil {
			return c.V3 == other.V3
		}
		return *c.V3 == *other.V3
	default:
		return false
	}
}

// ToWire renders the community as the JSON shape the CheckMK attribute
// payload expects.
func (c SNMPCommunity) ToWire() map[string]any {
	switch c.Kind {
	case "v1_v2_community":
		return map[string]any{"type": "v1_v2_community", "community": c.V1V2.Community}
	case "v3":
		out := map[string]any{
			"type":           "v3",
			"security_level": string(c.V3.SecurityLevel),
			"auth_protocol":  c.V3.AuthProtocol,
			"auth_password":  c.V3.AuthPassword,
		}
		if c.V3.PrivProtocol != "" {
			out["priv_protocol"] = c.V3.PrivProtocol
			out["priv_password"] = c.V3.PrivPassword
		}
		if c.V3.SecurityName != "" {
			out["security_name"] = c.V3.SecurityName
		}
		return out
	default:
		return nil
	}
}

// SNMPMapping resolves a Nautobot custom-field value to the SNMP
// community variant to use, derived from an SNMP mapping file keyed by
// a Nautobot custom-field ID.
type SNMPMapping map[string]SNMPCommunity

func (m SNMPMapping) Resolve(customFieldValue string) (SNMPCommunity, error) {
	c, ok := m[customFieldValue]
	if !ok {
		return SNMPCommunity{}, fmt.Errorf("reconcile: no SNMP mapping for custom field value %q", customFieldValue)
	}
	return c, nil
}
