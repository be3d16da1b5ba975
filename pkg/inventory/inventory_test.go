package inventory_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdfunk-net/cockpit-ng-sub003/pkg/inventory"
)

type fakeDevice map[string]any

func (d fakeDevice) Field(name string) (any, bool) {
	v, ok := d[name]
	return v, ok
}

func TestEmptyAndGroupIsTrue(t *testing.T) {
	n := &inventory.Node{Kind: "group", Group: &inventory.Group{Logic: inventory.LogicAND}}
	ok, err := inventory.Evaluate(n, fakeDevice{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEmptyOrGroupIsFalse(t *testing.T) {
	n := &inventory.Node{Kind: "group", Group: &inventory.Group{Logic: inventory.LogicOR}}
	ok, err := inventory.Evaluate(n, fakeDevice{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNilNodeIsTrue(t *testing.T) {
	ok, err := inventory.Evaluate(nil, fakeDevice{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLeafEquals(t *testing.T) {
	leaf := &inventory.Node{Kind: "leaf", Leaf: &inventory.Leaf{Field: "platform", Operator: inventory.OpEquals, Value: "ios"}}
	ok, err := inventory.Evaluate(leaf, fakeDevice{"platform": "ios"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = inventory.Evaluate(leaf, fakeDevice{"platform": "eos"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLeafMissingFieldIsFalseNotError(t *testing.T) {
	leaf := &inventory.Node{Kind: "leaf", Leaf: &inventory.Leaf{Field: "platform", Operator: inventory.OpEquals, Value: "ios"}}
	ok, err := inventory.Evaluate(leaf, fakeDevice{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLeafContainsStartsWithRegex(t *testing.T) {
	dev := fakeDevice{"name": "core-rtr-01"}

	ok, _ := inventory.Evaluate(&inventory.Node{Kind: "leaf", Leaf: &inventory.Leaf{Field: "name", Operator: inventory.OpContains, Value: "rtr"}}, dev)
	assert.True(t, ok)

	ok, _ = inventory.Evaluate(&inventory.Node{Kind: "leaf", Leaf: &inventory.Leaf{Field: "name", Operator: inventory.OpStartsWith, Value: "core"}}, dev)
	assert.True(t, ok)

	ok, err := inventory.Evaluate(&inventory.Node{Kind: "leaf", Leaf: &inventory.Leaf{Field: "name", Operator: inventory.OpRegex, Value: `^core-rtr-\d+$`}}, dev)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = inventory.Evaluate(&inventory.Node{Kind: "leaf", Leaf: &inventory.Leaf{Field: "name", Operator: inventory.OpRegex, Value: "("}}, dev)
	assert.Error(t, err)
}

func TestLeafInList(t *testing.T) {
	leaf := &inventory.Node{Kind: "leaf", Leaf: &inventory.Leaf{Field: "location", Operator: inventory.OpInList, Value: []any{"berlin", "munich"}}}
	ok, err := inventory.Evaluate(leaf, fakeDevice{"location": "munich"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = inventory.Evaluate(leaf, fakeDevice{"location": "paris"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNotInvertsChild(t *testing.T) {
	leaf := &inventory.Node{Kind: "leaf", Leaf: &inventory.Leaf{Field: "active", Operator: inventory.OpEquals, Value: true}}
	not := &inventory.Node{Kind: "not", Not: leaf}

	ok, err := inventory.Evaluate(not, fakeDevice{"active": true})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = inventory.Evaluate(not, fakeDevice{"active": false})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGroupShortCircuits(t *testing.T) {
	group := &inventory.Node{Kind: "group", Group: &inventory.Group{
		Logic: inventory.LogicAND,
		Items: []*inventory.Node{
			{Kind: "leaf", Leaf: &inventory.Leaf{Field: "x", Operator: inventory.OpEquals, Value: "a"}},
			{Kind: "leaf", Leaf: &inventory.Leaf{Field: "x", Operator: inventory.OpEquals, Value: "b"}},
		},
	}}
	ok, err := inventory.Evaluate(group, fakeDevice{"x": "a"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseEmptyIsTrueAND(t *testing.T) {
	n, err := inventory.Parse(nil)
	require.NoError(t, err)
	ok, err := inventory.Evaluate(n, fakeDevice{})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestParseNestedGroupAndLeaf(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "root",
		"internalLogic": "OR",
		"items": [
			{"field": "platform", "operator": "equals", "value": "ios"},
			{
				"type": "group",
				"internalLogic": "AND",
				"items": [
					{"field": "location", "operator": "equals", "value": "berlin"},
					{"type": "not", "items": [{"field": "active", "operator": "equals", "value": false}]}
				]
			}
		]
	}`)

	n, err := inventory.Parse(raw)
	require.NoError(t, err)

	ok, err := inventory.Evaluate(n, fakeDevice{"platform": "ios", "location": "paris", "active": true})
	require.NoError(t, err)
	assert.True(t, ok, "first OR branch matches on platform alone")

	ok, err = inventory.Evaluate(n, fakeDevice{"platform": "eos", "location": "berlin", "active": true})
	require.NoError(t, err)
	assert.True(t, ok, "second OR branch: berlin AND NOT(active==false)")

	ok, err = inventory.Evaluate(n, fakeDevice{"platform": "eos", "location": "berlin", "active": false})
	require.NoError(t, err)
	assert.False(t, ok, "NOT(active==false) fails when active is false")
}
