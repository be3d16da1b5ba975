package nautobot

import (
	"context"
	"encoding/json"
	"fmt"
)

// ContentType scopes a name resolution to a Nautobot content-type, e.g.
// "dcim.device", "dcim.interface", "ipam.ipaddress".
type ContentType string

const (
	ContentTypeDevice    ContentType = "dcim.device"
	ContentTypeInterface ContentType = "dcim.interface"
	ContentTypeIPAddress ContentType = "ipam.ipaddress"
)

// Resolvers translate human-readable names to Nautobot UUIDs, scoped by
// content-type for role/status, and unscoped for platform/namespace/location.
// Failure to resolve returns ("", false) rather than an error — the caller
// decides how to treat an unresolved name.
type Resolvers struct {
	client *Client
}

func NewResolvers(c *Client) *Resolvers {
	return &Resolvers{client: c}
}

type choiceResult struct {
	Results []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"results"`
}

func (r *Resolvers) resolveByName(ctx context.Context, path, name string) (string, bool) {
	data, err := r.client.Get(ctx, path)
	if err != nil {
		return "", false
	}
	var parsed choiceResult
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", false
	}
	for _, item := range parsed.Results {
		if item.Name == name {
			return item.ID, true
		}
	}
	return "", false
}

func (r *Resolvers) Role(ctx context.Context, contentType ContentType, name string) (string, bool) {
	return r.resolveByName(ctx, fmt.Sprintf("/api/extras/roles/?content_types=%s&name=%s", contentType, name), name)
}

func (r *Resolvers) Platform(ctx context.Context, name string) (string, bool) {
	return r.resolveByName(ctx, "/api/dcim/platforms/?name="+name, name)
}

func (r *Resolvers) Status(ctx context.Context, contentType ContentType, name string) (string, bool) {
	return r.resolveByName(ctx, fmt.Sprintf("/api/extras/statuses/?content_types=%s&name=%s", contentType, name), name)
}

func (r *Resolvers) Namespace(ctx context.Context, name string) (string, bool) {
	return r.resolveByName(ctx, "/api/ipam/namespaces/?name="+name, name)
}

func (r *Resolvers) Location(ctx context.Context, name string) (string, bool) {
	return r.resolveByName(ctx, "/api/dcim/locations/?name="+name, name)
}

// Devices executes the GraphQL query that fetches the full device set used
// as the base of every inventory evaluation: evaluation happens against
// Nautobot device objects fetched once per run.
func (r *Resolvers) Devices(ctx context.Context) ([]Device, error) {
	const query = `query { devices { id name primary_ip4 { address } platform { name } location { name } _custom_field_data } }`

	var resp struct {
		Devices []struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			PrimaryIP4 struct {
				Address string `json:"address"`
			} `json:"primary_ip4"`
			Platform struct {
				Name string `json:"name"`
			} `json:"platform"`
			Location struct {
				Name string `json:"name"`
			} `json:"location"`
			CustomFieldData map[string]any `json:"_custom_field_data"`
		} `json:"devices"`
	}

	if err := r.client.GraphQL(ctx, query, nil, &resp); err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(resp.Devices))
	for _, d := range resp.Devices {
		devices = append(devices, deviceFromGraphQL(d.ID, d.Name, d.PrimaryIP4.Address, d.Platform.Name, d.Location.Name, d.CustomFieldData))
	}
	return devices, nil
}

// DeviceByID fetches a single device by its Nautobot UUID, used by
// offboarding and any one-device lookup that doesn't want the full
// inventory pull Devices() does.
func (r *Resolvers) DeviceByID(ctx context.Context, id string) (Device, error) {
	const query = `query($id: ID!) { device(id: $id) { id name primary_ip4 { address } platform { name } location { name } interfaces { ip_addresses { id } } _custom_field_data } }`

	var resp struct {
		Device *struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			PrimaryIP4 struct {
				ID      string `json:"id"`
				Address string `json:"address"`
			} `json:"primary_ip4"`
			Platform struct {
				Name string `json:"name"`
			} `json:"platform"`
			Location struct {
				Name string `json:"name"`
			} `json:"location"`
			Interfaces []struct {
				IPAddresses []struct {
					ID string `json:"id"`
				} `json:"ip_addresses"`
			} `json:"interfaces"`
			CustomFieldData map[string]any `json:"_custom_field_data"`
		} `json:"device"`
	}

	if err := r.client.GraphQL(ctx, query, map[string]any{"id": id}, &resp); err != nil {
		return Device{}, err
	}
	if resp.Device == nil {
		return Device{}, fmt.Errorf("nautobot: device %s not found", id)
	}
	d := resp.Device

	device := deviceFromGraphQL(d.ID, d.Name, d.PrimaryIP4.Address, d.Platform.Name, d.Location.Name, d.CustomFieldData)
	if d.PrimaryIP4.ID != "" {
		device.Attrs["_primary_ip_id"] = d.PrimaryIP4.ID
	}
	var ifaceIPs []string
	for _, iface := range d.Interfaces {
		for _, ip := range iface.IPAddresses {
			if ip.ID != d.PrimaryIP4.ID {
				ifaceIPs = append(ifaceIPs, ip.ID)
			}
		}
	}
	device.Attrs["_interface_ip_ids"] = ifaceIPs
	return device, nil
}

func deviceFromGraphQL(id, name, primaryIP4, platform, location string, customFieldData map[string]any) Device {
	attrs := map[string]any{}
	for k, v := range customFieldData {
		attrs["_custom_field_data."+k] = v
	}
	return Device{
		ID:         id,
		Name:       name,
		PrimaryIP4: primaryIP4,
		Platform:   platform,
		Location:   location,
		Attrs:      attrs,
	}
}
