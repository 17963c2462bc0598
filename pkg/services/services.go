// Package services reconciles the remote collection with the local cache.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/wurt83ow/tablekeeper/pkg/logger"
	"github.com/wurt83ow/tablekeeper/pkg/models"
	"github.com/wurt83ow/tablekeeper/pkg/storage"
	"github.com/wurt83ow/tablekeeper/pkg/syncinfo"
	"github.com/wurt83ow/tablekeeper/pkg/tksync"
)

// Remote is the CRUD surface of the remote collection. *tksync.Client implements it.
type Remote interface {
	FetchPage(ctx context.Context, filters models.Filters) (tksync.RemotePage, error)
	Create(ctx context.Context, fields map[string]string) (models.Entry, error)
	Update(ctx context.Context, id int, fields map[string]string) (models.Entry, error)
	Delete(ctx context.Context, id int) error
}

type Service struct {
	remote         Remote
	store          *storage.Store
	columns        []models.Column
	policy         Policy
	log            logger.LoggerInterface
	sync           *syncinfo.SyncManager
	syncWithServer bool

	mu   sync.Mutex
	seen map[int]models.Entry // remote versions from earlier fetches
}

type Option func(*Service)

func WithPolicy(p Policy) Option {
	return func(s *Service) { s.policy = p }
}

func WithColumns(columns []models.Column) Option {
	return func(s *Service) { s.columns = columns }
}

func WithLogger(l logger.LoggerInterface) Option {
	return func(s *Service) { s.log = l }
}

func WithSyncInfo(sm *syncinfo.SyncManager) Option {
	return func(s *Service) { s.sync = sm }
}

// WithSyncWithServer turns remote calls on or off. Off behaves like a permanently unreachable server.
func WithSyncWithServer(on bool) Option {
	return func(s *Service) { s.syncWithServer = on }
}

func NewServices(remote Remote, store *storage.Store, opts ...Option) *Service {
	s := &Service{
		remote:         remote,
		store:          store,
		columns:        models.DefaultColumns,
		log:            logger.Discard(),
		syncWithServer: remote != nil,
		seen:           make(map[int]models.Entry),
	}
	for _, o := range opts {
		o(s)
	}
	if s.remote == nil {
		s.syncWithServer = false
	}
	return s
}

func (s *Service) Columns() []models.Column {
	return s.columns
}

func (s *Service) Policy() Policy {
	return s.policy
}

// GetPage returns one page of the merged dataset. Remote failures are absorbed by
// serving the cache; an error means no data could be produced at all.
func (s *Service) GetPage(ctx context.Context, filters models.Filters) (models.Page, error) {
	filters = filters.Normalized()
	where, err := compileWhere(filters.Where)
	if err != nil {
		return models.Page{}, err
	}

	remote, fetchErr := s.fetch(ctx, filters)

	snap, err := s.store.Load(ctx)
	if err != nil {
		if fetchErr != nil {
			return models.Page{}, fmt.Errorf("%w: %w", ErrNoData, errors.Join(fetchErr, err))
		}
		// Without tombstones a remote page could resurrect deleted entries.
		return models.Page{}, fmt.Errorf("%w: %w", ErrNoData, err)
	}

	if fetchErr != nil {
		data := where.apply(snap.Live())
		order(data, filters, s.policy.Sort)
		total := len(data)
		if s.policy.PaginateFallback {
			data = paginate(data, filters.Page, filters.Limit)
		}
		return models.Page{Data: data, Total: total}, nil
	}

	merged := where.apply(merge(remote.Entries, &snap))
	order(merged, filters, s.policy.Sort)
	s.log.Debug("merged page",
		"remote", len(remote.Entries), "remote_total", remote.Total,
		"cached", len(snap.Entries), "deleted", len(snap.Deleted), "merged", len(merged))

	return models.Page{
		Data:  paginate(merged, filters.Page, filters.Limit),
		Total: len(merged),
	}, nil
}

func (s *Service) fetch(ctx context.Context, filters models.Filters) (tksync.RemotePage, error) {
	if !s.syncWithServer {
		return tksync.RemotePage{}, ErrOffline
	}
	page, err := s.remote.FetchPage(ctx, filters)
	if err != nil {
		s.log.Warn("remote fetch failed, serving cache", "err", err)
		s.markSync(err)
		return tksync.RemotePage{}, err
	}
	s.remember(page.Entries)
	s.markSync(nil)
	return page, nil
}

// Create stores a new entry. It always yields an entry: when the remote call fails
// the entry only lives in the cache.
func (s *Service) Create(ctx context.Context, fields map[string]string) (models.Entry, error) {
	if err := s.validateCreate(fields); err != nil {
		return models.Entry{}, err
	}
	fields = withoutID(fields)

	var echoed *models.Entry
	if s.syncWithServer {
		resp, err := s.remote.Create(ctx, fields)
		if err != nil {
			s.log.Warn("remote create failed, keeping entry locally", "err", err)
		} else {
			echoed = &resp
		}
	}

	var created models.Entry
	err := s.store.Update(ctx, func(snap *storage.Snapshot) error {
		var entry models.Entry
		if echoed != nil {
			entry = models.Entry{ID: s.nextID(snap, *echoed), Fields: make(map[string]string, len(s.columns))}
			for _, key := range models.EditableKeys(s.columns) {
				v := echoed.Fields[key]
				if v == "" {
					v = fields[key]
				}
				entry.Fields[key] = v
			}
		} else {
			entry = models.NewEntry(s.nextID(snap), fields)
		}
		created = snap.Upsert(entry)
		return nil
	})
	if err != nil {
		return models.Entry{}, err
	}
	s.log.Info("entry created", "id", created.ID, "remote", echoed != nil)
	return created, nil
}

// Update shallow-merges fields into the entry. The cache is updated whatever the remote says.
func (s *Service) Update(ctx context.Context, id int, fields map[string]string) (models.Entry, error) {
	if id <= 0 {
		return models.Entry{}, models.ErrInvalidID
	}
	if err := s.validateUpdate(fields); err != nil {
		return models.Entry{}, err
	}
	fields = withoutID(fields)

	if s.syncWithServer {
		if _, err := s.remote.Update(ctx, id, fields); err != nil {
			s.log.Warn("remote update failed, applying locally", "id", id, "err", err)
		}
	}

	var updated models.Entry
	err := s.store.Update(ctx, func(snap *storage.Snapshot) error {
		if _, ok := snap.Find(id); !ok {
			base, ok := s.seenEntry(id)
			if !ok {
				base = models.NewEntry(id, nil)
			}
			snap.Upsert(base)
		}
		updated = snap.Upsert(models.Entry{ID: id, Fields: fields})
		return nil
	})
	if err != nil {
		return models.Entry{}, err
	}
	s.log.Info("entry updated", "id", id)
	return updated, nil
}

// Delete removes the entry and tombstones its id, even when the remote call fails.
func (s *Service) Delete(ctx context.Context, id int) error {
	if id <= 0 {
		return models.ErrInvalidID
	}
	if s.syncWithServer {
		if err := s.remote.Delete(ctx, id); err != nil {
			s.log.Warn("remote delete failed, deleting locally", "id", id, "err", err)
		}
	}
	err := s.store.Update(ctx, func(snap *storage.Snapshot) error {
		snap.Remove(id)
		snap.Tombstone(id)
		return nil
	})
	if err != nil {
		return err
	}
	s.log.Info("entry deleted", "id", id)
	return nil
}

// ClearDeleted forgets all tombstones so remote entries can show again. The cache is kept.
func (s *Service) ClearDeleted(ctx context.Context) error {
	return s.store.ClearTombstones(ctx)
}

// Cached returns the raw cache contents.
func (s *Service) Cached(ctx context.Context) ([]models.Entry, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Entries, nil
}

type Stats struct {
	Cached  int
	Deleted int
	Online  bool
	Sync    syncinfo.SyncInfo
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	snap, err := s.store.Load(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Cached: len(snap.Entries), Deleted: len(snap.Deleted), Online: s.syncWithServer}
	if s.sync != nil {
		st.Sync = s.sync.Get()
	}
	return st, nil
}

// nextID also counts remote ids seen so far, so a local id never shadows a remote entry.
func (s *Service) nextID(snap *storage.Snapshot, extra ...models.Entry) int {
	s.mu.Lock()
	pool := make([]models.Entry, 0, len(s.seen)+len(extra))
	for _, e := range s.seen {
		pool = append(pool, e)
	}
	s.mu.Unlock()
	return NextID(snap, append(pool, extra...))
}

func (s *Service) remember(entries []models.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.seen[e.ID] = e.Clone()
	}
}

func (s *Service) seenEntry(id int) (models.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.seen[id]
	return e.Clone(), ok
}

func (s *Service) markSync(err error) {
	if s.sync == nil {
		return
	}
	var serr error
	if err == nil {
		serr = s.sync.MarkSuccess()
	} else {
		serr = s.sync.MarkFailure(err)
	}
	if serr != nil {
		s.log.Warn("failed to record sync status", "err", serr)
	}
}

func (s *Service) validateCreate(fields map[string]string) error {
	var errs []FieldError
	for _, col := range s.columns {
		if col.Key == "id" {
			continue
		}
		if strings.TrimSpace(fields[col.Key]) == "" {
			errs = append(errs, FieldError{Key: col.Key, Message: col.Label + " is required"})
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func (s *Service) validateUpdate(fields map[string]string) error {
	var errs []FieldError
	for _, col := range s.columns {
		v, ok := fields[col.Key]
		if !ok || col.Key == "id" {
			continue
		}
		if strings.TrimSpace(v) == "" {
			errs = append(errs, FieldError{Key: col.Key, Message: col.Label + " is required"})
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func withoutID(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if k != "id" {
			out[k] = v
		}
	}
	return out
}
