// Package tablestate holds what the table currently shows: filters, column
// visibility and the last page published for them.
package tablestate

import (
	"maps"
	"sync"

	"github.com/wurt83ow/tablekeeper/pkg/models"
)

// Limits are the page sizes offered to the user.
var Limits = []int{5, 10, 20, 50, 100}

// FilterPatch carries the filter fields to change; nil fields are left alone.
type FilterPatch struct {
	Search    *string
	SortBy    *string
	SortOrder *models.SortOrder
	Page      *int
	Limit     *int
	Where     *string
}

// PageWindow describes the visible slice of the dataset, 1-based.
type PageWindow struct {
	Page  int
	From  int
	To    int
	Total int
	Pages int
}

type Store struct {
	mu         sync.RWMutex
	filters    models.Filters
	visibility models.ColumnVisibility

	gen       uint64 // bumped by every filter change
	published uint64 // generation of page
	page      models.Page
}

func New() *Store {
	return &Store{
		filters:    models.DefaultFilters(),
		visibility: models.ColumnVisibility{},
	}
}

func (s *Store) Filters() models.Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

// SetFilters merges the non-nil fields of p into the filters. Values are not validated.
func (s *Store) SetFilters(p FilterPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Search != nil {
		s.filters.Search = *p.Search
	}
	if p.SortBy != nil {
		s.filters.SortBy = *p.SortBy
	}
	if p.SortOrder != nil {
		s.filters.SortOrder = *p.SortOrder
	}
	if p.Page != nil {
		s.filters.Page = *p.Page
	}
	if p.Limit != nil {
		s.filters.Limit = *p.Limit
	}
	if p.Where != nil {
		s.filters.Where = *p.Where
	}
	s.gen++
}

func (s *Store) ResetFilters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = models.DefaultFilters()
	s.gen++
}

// ToggleSort flips the order when column is already sorted ascending,
// otherwise sorts by column ascending.
func (s *Store) ToggleSort(column string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.filters.SortBy == column && s.filters.SortOrder == models.Asc {
		s.filters.SortOrder = models.Desc
	} else {
		s.filters.SortBy = column
		s.filters.SortOrder = models.Asc
	}
	s.gen++
}

// SetLimit changes the page size and goes back to the first page.
func (s *Store) SetLimit(limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters.Limit = limit
	s.filters.Page = models.DefaultPage
	s.gen++
}

func (s *Store) ColumnVisibility() models.ColumnVisibility {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.visibility)
}

// ToggleColumnVisibility flips one column. A column never toggled counts as visible.
func (s *Store) ToggleColumnVisibility(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visibility[key] = !s.isVisible(key)
}

// SetColumnVisibility replaces the whole visibility map.
func (s *Store) SetColumnVisibility(v models.ColumnVisibility) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visibility = maps.Clone(v)
	if s.visibility == nil {
		s.visibility = models.ColumnVisibility{}
	}
}

func (s *Store) IsVisible(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isVisible(key)
}

func (s *Store) isVisible(key string) bool {
	v, ok := s.visibility[key]
	return !ok || v
}

// VisibleColumns filters columns down to the visible ones, keeping their order.
func (s *Store) VisibleColumns(columns []models.Column) []models.Column {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Column, 0, len(columns))
	for _, c := range columns {
		if s.isVisible(c.Key) {
			out = append(out, c)
		}
	}
	return out
}

// Begin snapshots the filters for a fetch together with their generation.
func (s *Store) Begin() (models.Filters, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters, s.gen
}

// Publish stores page as the current result unless a result for a newer
// generation is already there. It reports whether page was kept.
func (s *Store) Publish(gen uint64, page models.Page) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen < s.published || gen > s.gen {
		return false
	}
	s.published = gen
	s.page = page
	return true
}

// Current returns the last published page and whether it matches the current filters.
func (s *Store) Current() (models.Page, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page, s.published == s.gen
}

// Window computes the footer numbers for total entries under the current filters.
func (s *Store) Window(total int) PageWindow {
	f := s.Filters().Normalized()
	return NewPageWindow(f.Page, f.Limit, total)
}

func NewPageWindow(page, limit, total int) PageWindow {
	if limit <= 0 {
		limit = models.DefaultLimit
	}
	if page < 1 {
		page = models.DefaultPage
	}
	w := PageWindow{Page: page, Total: total, Pages: (total + limit - 1) / limit}
	if total <= 0 {
		return w
	}
	from := (page-1)*limit + 1
	if from > total {
		return w
	}
	w.From = from
	w.To = min(page*limit, total)
	return w
}
