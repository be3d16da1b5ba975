// Package inventory evaluates a condition tree against Nautobot device
// records. Modelled as a recursive sum type (Leaf | Group{logic, children}
// | Not{child}) rather than the free-form {type, internalLogic, items}
// object the source used, grounded on
// original_source/backend/tasks/utils/condition_helpers.py.
package inventory

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Logic is the boolean combinator carried by a Group node.
type Logic string

const (
	LogicAND Logic = "AND"
	LogicOR  Logic = "OR"
)

// Operator enumerates the leaf comparison operators a condition can use.
type Operator string

const (
	OpEquals     Operator = "equals"
	OpNotEquals  Operator = "not-equals"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "starts-with"
	OpRegex      Operator = "regex"
	OpInList     Operator = "in-list"
)

// Node is the recursive sum type. Exactly one of Leaf/Group/Not fields
// is populated for a given Kind.
type Node struct {
	Kind  string // "leaf" | "group" | "not"
	Leaf  *Leaf
	Group *Group
	Not   *Node
}

type Leaf struct {
	Field    string
	Operator Operator
	Value    any
}

type Group struct {
	Logic Logic
	Items []*Node
}

// Device is the minimal field-lookup surface a condition tree evaluates
// against; the Nautobot gateway's device representation implements it by
// exposing its flattened attribute map (including `_custom_field_data.*`
// keys).
type Device interface {
	Field(name string) (any, bool)
}

// Evaluate runs the tree against a device record. AND over an empty item
// list is true; OR over an empty item list is false. NOT inverts its
// single child. Evaluation short-circuits.
func Evaluate(n *Node, d Device) (bool, error) {
	if n == nil {
		return true, nil
	}
	switch n.Kind {
	case "leaf":
		return evalLeaf(n.Leaf, d)
	case "not":
		inner, err := Evaluate(n.Not, d)
		if err != nil {
			return false, err
		}
		return !inner, nil
	case "group":
		return evalGroup(n.Group, d)
	default:
		return false, fmt.Errorf("inventory: unknown node kind %q", n.Kind)
	}
}

func evalGroup(g *Group, d Device) (bool, error) {
	if g == nil || len(g.Items) == 0 {
		switch g.Logic {
		case LogicOR:
			return false, nil
		default:
			return true, nil
		}
	}

	switch g.Logic {
	case LogicOR:
		for _, item := range g.Items {
			ok, err := Evaluate(item, d)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default: // AND
		for _, item := range g.Items {
			ok, err := Evaluate(item, d)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
}

func evalLeaf(l *Leaf, d Device) (bool, error) {
	actual, found := d.Field(l.Field)
	if !found {
		// Missing field never matches a positive condition, but must not
		// be treated as an error: it is a normal, expected edge case for
		// sparsely-populated custom fields.
		return false, nil
	}

	actualStr := toComparable(actual)
	switch l.Operator {
	case OpEquals:
		return actualStr == toComparable(l.Value), nil
	case OpNotEquals:
		return actualStr != toComparable(l.Value), nil
	case OpContains:
		return strings.Contains(actualStr, toComparable(l.Value)), nil
	case OpStartsWith:
		return strings.HasPrefix(actualStr, toComparable(l.Value)), nil
	case OpRegex:
		pattern, ok := l.Value.(string)
		if !ok {
			return false, fmt.Errorf("inventory: regex operator requires a string pattern")
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("inventory: invalid regex %q: %w", pattern, err)
		}
		return re.MatchString(actualStr), nil
	case OpInList:
		list, ok := l.Value.([]any)
		if !ok {
			return false, fmt.Errorf("inventory: in-list operator requires an array value")
		}
		for _, v := range list {
			if actualStr == toComparable(v) {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("inventory: unknown operator %q", l.Operator)
	}
}

func toComparable(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// wireNode/wireLeaf/wireGroup mirror the JSON-over-the-wire condition
// shape ({type, internalLogic, items} / {field, operator, value}) so
// Inventory.Conditions (stored as JSONB) can be parsed into the Node sum
// type at evaluation time.
type wireNode struct {
	Type         string     `json:"type"`
	InternalLogic string    `json:"internalLogic"`
	Items        []wireNode `json:"items"`
	Field        string     `json:"field"`
	Operator     Operator   `json:"operator"`
	Value        any        `json:"value"`
}

// Parse decodes the stored JSON condition tree into the recursive sum type.
func Parse(raw json.RawMessage) (*Node, error) {
	if len(raw) == 0 {
		return &Node{Kind: "group", Group: &Group{Logic: LogicAND}}, nil
	}
	var w wireNode
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("inventory: parse condition tree: %w", err)
	}
	return fromWire(&w), nil
}

func fromWire(w *wireNode) *Node {
	switch strings.ToLower(w.Type) {
	case "not":
		var child *Node
		if len(w.Items) > 0 {
			child = fromWire(&w.Items[0])
		}
		return &Node{Kind: "not", Not: child}
	case "group", "root":
		logic := LogicAND
		if strings.EqualFold(w.InternalLogic, "OR") {
			logic = LogicOR
		}
		children := make([]*Node, 0, len(w.Items))
		for i := range w.Items {
			children = append(children, fromWire(&w.Items[i]))
		}
		return &Node{Kind: "group", Group: &Group{Logic: logic, Items: children}}
	default:
		return &Node{Kind: "leaf", Leaf: &Leaf{Field: w.Field, Operator: w.Operator, Value: w.Value}}
	}
}
