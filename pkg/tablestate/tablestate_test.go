package tablestate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wurt83ow/tablekeeper/pkg/models"
)

func ptr[T any](v T) *T { return &v }

func TestStore_Defaults(t *testing.T) {
	s := New()
	assert.Equal(t, models.Filters{SortOrder: models.Asc, Page: 1, Limit: 20}, s.Filters())
	assert.Empty(t, s.ColumnVisibility())
	assert.True(t, s.IsVisible("name"))
}

func TestStore_SetFiltersMergesPatch(t *testing.T) {
	s := New()
	s.SetFilters(FilterPatch{Search: ptr("ann"), Page: ptr(3)})
	s.SetFilters(FilterPatch{SortBy: ptr("email")})

	f := s.Filters()
	assert.Equal(t, "ann", f.Search)
	assert.Equal(t, 3, f.Page)
	assert.Equal(t, "email", f.SortBy)
	assert.Equal(t, 20, f.Limit)

	// No validation: out-of-range values are kept as given.
	s.SetFilters(FilterPatch{Page: ptr(-4), SortOrder: ptr(models.SortOrder("sideways"))})
	assert.Equal(t, -4, s.Filters().Page)
	assert.Equal(t, models.SortOrder("sideways"), s.Filters().SortOrder)

	s.ResetFilters()
	assert.Equal(t, models.DefaultFilters(), s.Filters())
}

func TestStore_ToggleSort(t *testing.T) {
	s := New()

	s.ToggleSort("name")
	assert.Equal(t, "name", s.Filters().SortBy)
	assert.Equal(t, models.Asc, s.Filters().SortOrder)

	s.ToggleSort("name")
	assert.Equal(t, models.Desc, s.Filters().SortOrder)

	s.ToggleSort("name")
	assert.Equal(t, models.Asc, s.Filters().SortOrder)

	s.ToggleSort("name")
	s.ToggleSort("email")
	assert.Equal(t, "email", s.Filters().SortBy)
	assert.Equal(t, models.Asc, s.Filters().SortOrder)
}

func TestStore_SetLimitResetsPage(t *testing.T) {
	s := New()
	s.SetFilters(FilterPatch{Page: ptr(4)})
	s.SetLimit(50)
	assert.Equal(t, 50, s.Filters().Limit)
	assert.Equal(t, 1, s.Filters().Page)
}

func TestStore_ColumnVisibility(t *testing.T) {
	s := New()

	s.ToggleColumnVisibility("email")
	assert.False(t, s.IsVisible("email"), "first toggle hides")
	s.ToggleColumnVisibility("email")
	assert.True(t, s.IsVisible("email"))

	s.SetColumnVisibility(models.ColumnVisibility{"role": false})
	assert.Equal(t, models.ColumnVisibility{"role": false}, s.ColumnVisibility())
	assert.True(t, s.IsVisible("email"), "replaced wholesale")

	cols := s.VisibleColumns(models.DefaultColumns)
	keys := make([]string, 0, len(cols))
	for _, c := range cols {
		keys = append(keys, c.Key)
	}
	assert.Equal(t, []string{"name", "email", "department", "status"}, keys)

	got := s.ColumnVisibility()
	got["name"] = false
	assert.True(t, s.IsVisible("name"), "returned map is a copy")

	s.SetColumnVisibility(nil)
	s.ToggleColumnVisibility("name")
	assert.False(t, s.IsVisible("name"))
}

func TestStore_StaleResultsAreDiscarded(t *testing.T) {
	s := New()

	_, oldGen := s.Begin()
	s.SetFilters(FilterPatch{Search: ptr("fresh")})
	f, newGen := s.Begin()
	require.Equal(t, "fresh", f.Search)

	fresh := models.Page{Data: []models.Entry{models.NewEntry(2, nil)}, Total: 1}
	stale := models.Page{Data: []models.Entry{models.NewEntry(1, nil)}, Total: 1}

	assert.True(t, s.Publish(newGen, fresh))
	assert.False(t, s.Publish(oldGen, stale), "older fetch finished last")

	page, current := s.Current()
	assert.Equal(t, fresh, page)
	assert.True(t, current)

	s.SetLimit(10)
	_, current = s.Current()
	assert.False(t, current)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.ToggleSort("name")
			s.ToggleColumnVisibility("email")
		}()
		go func() {
			defer wg.Done()
			_, gen := s.Begin()
			s.Publish(gen, models.Page{})
			_ = s.IsVisible("email")
		}()
	}
	wg.Wait()
	_, gen := s.Begin()
	assert.Equal(t, uint64(20), gen)
}

func TestPageWindow(t *testing.T) {
	tests := []struct {
		name               string
		page, limit, total int
		want               PageWindow
	}{
		{"first page", 1, 20, 45, PageWindow{Page: 1, From: 1, To: 20, Total: 45, Pages: 3}},
		{"last partial page", 3, 20, 45, PageWindow{Page: 3, From: 41, To: 45, Total: 45, Pages: 3}},
		{"empty", 1, 20, 0, PageWindow{Page: 1}},
		{"past the end", 9, 5, 12, PageWindow{Page: 9, Total: 12, Pages: 3}},
		{"bad input clamped", 0, 0, 3, PageWindow{Page: 1, From: 1, To: 3, Total: 3, Pages: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewPageWindow(tt.page, tt.limit, tt.total))
		})
	}

	s := New()
	s.SetLimit(10)
	assert.Equal(t, PageWindow{Page: 1, From: 1, To: 10, Total: 25, Pages: 3}, s.Window(25))
}
