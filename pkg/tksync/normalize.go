package tksync

import (
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/wurt83ow/tablekeeper/pkg/models"
)

// FieldRule tells Normalize where a canonical field may come from upstream.
// Aliases are tried after Key, in order; a dotted alias reads a nested object.
type FieldRule struct {
	Key     string
	Aliases []string
	Default string
}

// DefaultRules fit the JSONPlaceholder users shape.
var DefaultRules = []FieldRule{
	{Key: "name", Aliases: []string{"username"}, Default: "Unknown"},
	{Key: "email", Default: "email@example.com"},
	{Key: "role", Default: "User"},
	{Key: "department", Aliases: []string{"company.name"}, Default: "General"},
	{Key: "status", Default: "Active"},
}

// MergeRules returns base with each override replacing the rule of the same
// key. Overrides for keys base lacks are appended.
func MergeRules(base, overrides []FieldRule) []FieldRule {
	out := slices.Clone(base)
	for _, o := range overrides {
		i := slices.IndexFunc(out, func(r FieldRule) bool { return r.Key == o.Key })
		if i < 0 {
			out = append(out, o)
			continue
		}
		out[i] = o
	}
	return out
}

// Normalize maps an upstream record onto columns, filling defaults for missing
// fields. Records without a positive integer id are rejected.
func Normalize(raw map[string]any, columns []models.Column, rules []FieldRule) (models.Entry, bool) {
	id, ok := parseID(raw["id"])
	if !ok {
		return models.Entry{}, false
	}

	e := models.Entry{ID: id, Fields: make(map[string]string, len(columns))}
	for _, col := range columns {
		rule := FieldRule{Key: col.Key}
		for _, r := range rules {
			if r.Key == col.Key {
				rule = r
				break
			}
		}
		value, found := lookup(raw, col.Key)
		for _, alias := range rule.Aliases {
			if found {
				break
			}
			value, found = lookup(raw, alias)
		}
		if !found {
			value = rule.Default
		}
		e.Fields[col.Key] = value
	}
	return e, true
}

// Extract copies the non-empty column values of raw without applying defaults.
func Extract(raw map[string]any, columns []models.Column) models.Entry {
	id, _ := parseID(raw["id"])
	e := models.Entry{ID: id, Fields: make(map[string]string, len(columns))}
	for _, col := range columns {
		if v, ok := lookup(raw, col.Key); ok {
			e.Fields[col.Key] = v
		}
	}
	return e
}

// lookup returns the string form of a non-empty scalar at path.
func lookup(raw map[string]any, path string) (string, bool) {
	var cur any = raw
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", false
		}
		if cur, ok = m[part]; !ok {
			return "", false
		}
	}
	s, ok := scalar(cur)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

func parseID(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t <= 0 || t != math.Trunc(t) || t > 1<<53 {
			return 0, false
		}
		return int(t), true
	case string:
		n, err := strconv.Atoi(t)
		if err != nil || n <= 0 {
			return 0, false
		}
		return n, true
	case json.Number:
		n, err := strconv.Atoi(t.String())
		if err != nil || n <= 0 {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
