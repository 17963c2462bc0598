package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// Entry is a single table row: an immutable id plus named string fields.
type Entry struct {
	ID     int
	Fields map[string]string
}

type Column struct {
	Key   string
	Label string
}

type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
)

type Filters struct {
	Search    string    `json:"search" yaml:"search"`
	SortBy    string    `json:"sortBy,omitempty" yaml:"sortBy"`
	SortOrder SortOrder `json:"sortOrder" yaml:"sortOrder"`
	Page      int       `json:"page" yaml:"page"`
	Limit     int       `json:"limit" yaml:"limit"`
	Where     string    `json:"where,omitempty" yaml:"where"`
}

type ColumnVisibility map[string]bool

type Page struct {
	Data  []Entry `json:"data"`
	Total int     `json:"total"`
}

var ErrInvalidID = errors.New("entry id must be a positive integer")

// DefaultColumns is the schema the table is shipped with.
var DefaultColumns = []Column{
	{Key: "name", Label: "Name"},
	{Key: "email", Label: "Email"},
	{Key: "role", Label: "Role"},
	{Key: "department", Label: "Department"},
	{Key: "status", Label: "Status"},
}

func DefaultFilters() Filters {
	return Filters{
		SortOrder: Asc,
		Page:      DefaultPage,
		Limit:     DefaultLimit,
	}
}

// Normalized returns a copy with page and limit clamped to usable values.
func (f Filters) Normalized() Filters {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.SortOrder != Desc {
		f.SortOrder = Asc
	}
	return f
}

func NewEntry(id int, fields map[string]string) Entry {
	e := Entry{ID: id, Fields: make(map[string]string, len(fields))}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		e.Fields[k] = v
	}
	return e
}

func (e Entry) Get(key string) string {
	if key == "id" {
		return strconv.Itoa(e.ID)
	}
	return e.Fields[key]
}

func (e Entry) Clone() Entry {
	return Entry{ID: e.ID, Fields: maps.Clone(e.Fields)}
}

// Merge returns a copy of e with fields shallow-merged on top. The id never changes.
func (e Entry) Merge(fields map[string]string) Entry {
	out := e.Clone()
	if out.Fields == nil {
		out.Fields = make(map[string]string, len(fields))
	}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		out.Fields[k] = v
	}
	return out
}

// MarshalJSON writes the entry as a flat object: {"id":1,"name":"A"}.
func (e Entry) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		m[k] = v
	}
	m["id"] = e.ID
	return json.Marshal(m)
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	idRaw, ok := raw["id"]
	if !ok {
		return ErrInvalidID
	}
	var id int
	if err := json.Unmarshal(idRaw, &id); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	if id <= 0 {
		return ErrInvalidID
	}
	e.ID = id
	e.Fields = make(map[string]string, len(raw)-1)
	for k, v := range raw {
		if k == "id" {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			// Numbers and booleans written by hand are kept verbatim.
			s = string(v)
		}
		e.Fields[k] = s
	}
	return nil
}

// EditableKeys returns the column keys a form may set.
func EditableKeys(columns []Column) []string {
	keys := make([]string, 0, len(columns))
	for _, c := range columns {
		if c.Key == "id" {
			continue
		}
		keys = append(keys, c.Key)
	}
	return keys
}

// ParseColumns turns "key:Label" specs into columns; a missing label reuses the key.
func ParseColumns(specs []string) []Column {
	cols := make([]Column, 0, len(specs))
	for _, s := range specs {
		key, label, found := strings.Cut(strings.TrimSpace(s), ":")
		if key == "" || key == "id" {
			continue
		}
		if !found || label == "" {
			label = key
		}
		cols = append(cols, Column{Key: key, Label: label})
	}
	return cols
}
