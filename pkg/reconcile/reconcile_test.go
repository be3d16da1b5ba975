package reconcile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/checkmk"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/nautobot"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/reconcile"
)

func folderTemplate(d nautobot.Device) (string, error) {
	return "/site/" + d.Location, nil
}

func TestNormaliseBuildsBaseAttributes(t *testing.T) {
	n := reconcile.NewNormaliser(folderTemplate, nil, "", nil)
	dev := nautobot.Device{Name: "rtr1", PrimaryIP4: "10.0.0.1", Location: "berlin", Attrs: map[string]any{
		"tag_role": "core",
		"unrelated": "ignored-by-normalise-but-kept-in-attrs-map",
	}}

	desired, err := n.Normalise(dev)
	require.NoError(t, err)
	assert.Equal(t, "/site/berlin", desired.Folder)
	assert.Equal(t, "berlin", desired.Attributes["site"])
	assert.Equal(t, "10.0.0.1", desired.Attributes["ipaddress"])
	assert.Equal(t, "rtr1", desired.Attributes["alias"])
	assert.Equal(t, "core", desired.Attributes["tag_role"])
	assert.NotContains(t, desired.Attributes, "unrelated")
}

func TestNormaliseResolvesSNMPCommunity(t *testing.T) {
	mapping := reconcile.SNMPMapping{
		"v1": reconcile.SNMPCommunity{Kind: "v1_v2_community", V1V2: &reconcile.V1V2Community{Community: "public"}},
	}
	n := reconcile.NewNormaliser(folderTemplate, mapping, "snmp_profile", nil)
	dev := nautobot.Device{Location: "berlin", Attrs: map[string]any{"snmp_profile": "v1"}}

	desired, err := n.Normalise(dev)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "v1_v2_community", "community": "public"}, desired.Attributes["snmp_community"])
}

func TestNormaliseUnmappedSNMPValueErrors(t *testing.T) {
	mapping := reconcile.SNMPMapping{}
	n := reconcile.NewNormaliser(folderTemplate, mapping, "snmp_profile", nil)
	dev := nautobot.Device{Location: "berlin", Attrs: map[string]any{"snmp_profile": "unknown"}}

	_, err := n.Normalise(dev)
	assert.Error(t, err)
}

func TestCompareHostNotFound(t *testing.T) {
	n := reconcile.NewNormaliser(folderTemplate, nil, "", nil)
	desired := &reconcile.DesiredHost{Folder: "/site/berlin", Attributes: map[string]any{"site": "berlin"}}

	assert.Equal(t, models.CmpHostNotFound, n.Compare(desired, nil))
}

func TestCompareEqualIgnoresMetaDataAndIgnoreList(t *testing.T) {
	n := reconcile.NewNormaliser(folderTemplate, nil, "", []string{"ignored_field"})
	desired := &reconcile.DesiredHost{Folder: "/site/berlin", Attributes: map[string]any{
		"site": "berlin", "meta_data": "desired-meta", "ignored_field": "a",
	}}
	actual := &checkmk.HostConfig{Folder: "/site/berlin", Attributes: map[string]any{
		"site": "berlin", "meta_data": "actual-meta", "ignored_field": "b",
	}}

	assert.Equal(t, models.CmpEqual, n.Compare(desired, actual))
}

func TestCompareDiffOnFolderMismatch(t *testing.T) {
	n := reconcile.NewNormaliser(folderTemplate, nil, "", nil)
	desired := &reconcile.DesiredHost{Folder: "/site/berlin", Attributes: map[string]any{"site": "berlin"}}
	actual := &checkmk.HostConfig{Folder: "/site/munich", Attributes: map[string]any{"site": "berlin"}}

	assert.Equal(t, models.CmpDiff, n.Compare(desired, actual))
}

func TestCompareDiffOnAttributeMismatch(t *testing.T) {
	n := reconcile.NewNormaliser(folderTemplate, nil, "", nil)
	desired := &reconcile.DesiredHost{Folder: "/site/berlin", Attributes: map[string]any{"site": "berlin"}}
	actual := &checkmk.HostConfig{Folder: "/site/berlin", Attributes: map[string]any{"site": "munich"}}

	assert.Equal(t, models.CmpDiff, n.Compare(desired, actual))
}

func TestSNMPCommunityEqual(t *testing.T) {
	a := reconcile.SNMPCommunity{Kind: "v1_v2_community", V1V2: &reconcile.V1V2Community{Community: "public"}}
	b := reconcile.SNMPCommunity{Kind: "v1_v2_community", V1V2: &reconcile.V1V2Community{Community: "public"}}
	c := reconcile.SNMPCommunity{Kind: "v1_v2_community", V1V2: &reconcile.V1V2Community{Community: "private"}}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestSNMPCommunityToWireV3(t *testing.T) {
	community := reconcile.SNMPCommunity{Kind: "v3", V3: &reconcile.V3Community{
		SecurityLevel: reconcile.SecurityLevelAuthPriv,
		AuthProtocol:  "sha",
		AuthPassword:  "authpass",
		PrivProtocol:  "aes",
		PrivPassword:  "privpass",
	}}
	wire := community.ToWire()
	assert.Equal(t, "v3", wire["type"])
	assert.Equal(t, "authPriv", wire["security_level"])
	assert.Equal(t, "aes", wire["priv_protocol"])
}
