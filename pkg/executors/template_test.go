package executors_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/executors"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/nautobot"
)

func TestRenderPathSubstitutesFields(t *testing.T) {
	dev := nautobot.Device{Name: "rtr1", Location: "berlin", Attrs: map[string]any{"custom": "x"}}
	out := executors.RenderPath("configs/{location.name}/{name}.cfg", dev)
	assert.Equal(t, "configs/berlin/rtr1.cfg", out)
}

func TestRenderPathUnresolvedPlaceholderIsEmpty(t *testing.T) {
	dev := nautobot.Device{Name: "rtr1"}
	out := executors.RenderPath("configs/{nonexistent}/{name}.cfg", dev)
	assert.Equal(t, "configs//rtr1.cfg", out)
}

func TestRenderDateTemplates(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "2026-07-31", executors.RenderDateTemplates("{today}", now))
	assert.Equal(t, "2026-07-29", executors.RenderDateTemplates("{today-2}", now))
	assert.Equal(t, "2026-08-02", executors.RenderDateTemplates("{today+2}", now))
	assert.Equal(t, "prefix-2026-07-31-suffix", executors.RenderDateTemplates("prefix-{today}-suffix", now))
}
