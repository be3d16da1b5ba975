package jobs

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/models"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/nautobot"
	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/repository"
)

type fakeDeviceSource struct {
	devices []nautobot.Device
}

func (f fakeDeviceSource) Devices(ctx context.Context) ([]nautobot.Device, error) {
	return f.devices, nil
}

func TestResolveDevicesReturnsAllForInventorySourceAll(t *testing.T) {
	d := &Dispatcher{
		devices: fakeDeviceSource{devices: []nautobot.Device{{Name: "rtr1"}, {Name: "rtr2"}}},
	}
	tmpl := &models.JobTemplate{InventorySource: models.InventorySourceAll}

	out, err := d.resolveDevices(context.Background(), tmpl, "alice")
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestResolveDevicesFiltersByNamedInventory(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(mockDB, "sqlmock")
	inventories := repository.NewInventoryRepository(db)

	conditions, err := json.Marshal(map[string]any{
		"field":    "location.name",
		"operator": "equals",
		"value":    "berlin",
	})
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"id", "name", "scope", "created_by", "conditions"}).
		AddRow(int64(1), "berlin-only", models.InventoryScope("global"), "alice", conditions)
	mock.ExpectQuery("SELECT \\* FROM inventories WHERE name=\\$1").
		WithArgs("berlin-only", "alice").
		WillReturnRows(rows)

	d := &Dispatcher{
		inventories: inventories,
		devices: fakeDeviceSource{devices: []nautobot.Device{
			{Name: "rtr1", Location: "berlin"},
			{Name: "rtr2", Location: "munich"},
		}},
	}
	tmpl := &models.JobTemplate{InventorySource: models.InventorySourceInventory, InventoryName: "berlin-only"}

	out, err := d.resolveDevices(context.Background(), tmpl, "alice")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "rtr1", out[0].Name)
}

func TestCountOK(t *testing.T) {
	results := []models.DeviceResult{
		{Status: models.DeviceResultOK},
		{Status: models.DeviceResultError},
		{Status: models.DeviceResultOK},
	}
	assert.Equal(t, 2, countOK(results))
}
