package services

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/wurt83ow/tablekeeper/pkg/models"
	"github.com/wurt83ow/tablekeeper/pkg/storage"
)

// SortPolicy decides how the merged dataset is ordered.
type SortPolicy int

const (
	// SortRequested honors Filters.SortBy/SortOrder, falling back to id ascending.
	SortRequested SortPolicy = iota
	// SortByID always orders by id ascending and ignores the requested sort.
	SortByID
)

func ParseSortPolicy(s string) (SortPolicy, error) {
	switch strings.ToLower(s) {
	case "", "requested":
		return SortRequested, nil
	case "id":
		return SortByID, nil
	}
	return SortRequested, fmt.Errorf("unknown sort policy %q", s)
}

func (p SortPolicy) String() string {
	if p == SortByID {
		return "id"
	}
	return "requested"
}

// Policy holds the reconciliation choices that are not fixed by the data.
type Policy struct {
	Sort SortPolicy
	// PaginateFallback applies page/limit to cache-only results too.
	PaginateFallback bool
}

// NextID returns an id above every id in the cache, its tombstones and pool.
func NextID(snap *storage.Snapshot, pool []models.Entry) int {
	highest := snap.MaxID()
	for _, e := range pool {
		highest = max(highest, e.ID)
	}
	return highest + 1
}

// merge combines a remote page with the cache. Cached versions win, tombstoned ids
// are dropped, and cached entries unknown to the remote page are appended.
func merge(remote []models.Entry, snap *storage.Snapshot) []models.Entry {
	cached := make(map[int]models.Entry, len(snap.Entries))
	for _, e := range snap.Entries {
		cached[e.ID] = e
	}

	out := make([]models.Entry, 0, len(remote)+len(snap.Entries))
	inRemote := make(map[int]struct{}, len(remote))
	for _, e := range remote {
		if _, dup := inRemote[e.ID]; dup {
			continue
		}
		inRemote[e.ID] = struct{}{}
		if snap.IsDeleted(e.ID) {
			continue
		}
		if c, ok := cached[e.ID]; ok {
			out = append(out, c.Clone())
		} else {
			out = append(out, e.Clone())
		}
	}
	for _, e := range snap.Entries {
		if _, ok := inRemote[e.ID]; ok || snap.IsDeleted(e.ID) {
			continue
		}
		out = append(out, e.Clone())
	}
	return out
}

func order(entries []models.Entry, f models.Filters, p SortPolicy) {
	byField := p == SortRequested && f.SortBy != ""
	desc := f.SortOrder == models.Desc
	slices.SortStableFunc(entries, func(a, b models.Entry) int {
		if byField {
			var c int
			if f.SortBy == "id" {
				c = cmp.Compare(a.ID, b.ID)
			} else {
				c = compareValues(a.Get(f.SortBy), b.Get(f.SortBy))
			}
			if desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// compareValues orders numbers numerically and before everything else, which
// compares case-insensitively.
func compareValues(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(fa, fb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	}
	if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func paginate(entries []models.Entry, page, limit int) []models.Entry {
	if len(entries) == 0 || page-1 > len(entries)/limit {
		return []models.Entry{}
	}
	start := (page - 1) * limit
	end := min(start+limit, len(entries))
	return entries[start:end]
}

// whereFilter is a compiled Filters.Where expression; nil matches everything.
type whereFilter struct {
	program *vm.Program
}

func compileWhere(src string) (*whereFilter, error) {
	if strings.TrimSpace(src) == "" {
		return nil, nil
	}
	program, err := expr.Compile(src, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, &ValidationError{Fields: []FieldError{{Key: "where", Message: "invalid filter: " + err.Error()}}}
	}
	return &whereFilter{program: program}, nil
}

func (w *whereFilter) apply(entries []models.Entry) []models.Entry {
	if w == nil {
		return entries
	}
	out := make([]models.Entry, 0, len(entries))
	for _, e := range entries {
		env := make(map[string]any, len(e.Fields)+1)
		for k, v := range e.Fields {
			env[k] = v
		}
		env["id"] = e.ID
		res, err := expr.Run(w.program, env)
		if err != nil {
			continue
		}
		if ok, _ := res.(bool); ok {
			out = append(out, e)
		}
	}
	return out
}
