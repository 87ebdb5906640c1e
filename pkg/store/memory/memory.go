// Package memory is an in-process store.Store for tests and dry runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"igharvest/pkg/models"
	"igharvest/pkg/store"
)

// Store keeps everything in mutex-guarded maps
type Store struct {
	mu         sync.RWMutex
	contents   map[string]models.ContentRecord // by external id
	executions map[string]models.ExecutionRecord
	profiles   map[string]models.Profile // by lower-cased username
	now        func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		contents:   map[string]models.ContentRecord{},
		executions: map[string]models.ExecutionRecord{},
		profiles:   map[string]models.Profile{},
		now:        time.Now,
	}
}

func (s *Store) Contents() store.ContentStore     { return contents{s} }
func (s *Store) Executions() store.ExecutionStore { return executions{s} }
func (s *Store) Profiles() store.ProfileStore     { return profiles{s} }
func (s *Store) Close() error                     { return nil }

type contents struct{ s *Store }

func (c contents) ExistsByExternalID(ctx context.Context, externalID string) (bool, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	_, ok := c.s.contents[externalID]
	return ok, ctx.Err()
}

func (c contents) FindByExternalID(ctx context.Context, externalID string) (*models.ContentRecord, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	rec, ok := c.s.contents[externalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &rec, nil
}

func (c contents) SaveAll(ctx context.Context, records []models.ContentRecord) ([]models.ContentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	saved := make([]models.ContentRecord, 0, len(records))
	for _, rec := range records {
		if existing, ok := c.s.contents[rec.ExternalID]; ok && existing.ID != rec.ID {
			continue
		}
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if rec.CollectedAt.IsZero() {
			rec.CollectedAt = c.s.now()
		}
		rec.ImageBlob = append([]byte(nil), rec.ImageBlob...)
		c.s.contents[rec.ExternalID] = rec
		saved = append(saved, rec)
	}
	return saved, nil
}

func (c contents) FindByProfile(ctx context.Context, profileID string) ([]models.ContentRecord, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	var out []models.ContentRecord
	for _, rec := range c.s.contents {
		if rec.ProfileID == profileID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CollectedAt.After(out[j].CollectedAt)
	})
	return out, nil
}

type executions struct{ s *Store }

func (e executions) Save(ctx context.Context, rec *models.ExecutionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	e.s.executions[rec.ID] = *rec
	return nil
}

// byStartDesc returns the executions matching keep, newest first; callers hold mu
func (e executions) byStartDesc(keep func(models.ExecutionRecord) bool) []models.ExecutionRecord {
	var out []models.ExecutionRecord
	for _, rec := range e.s.executions {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

func (e executions) FindLatestByProfile(ctx context.Context, profileID string) (*models.ExecutionRecord, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()
	all := e.byStartDesc(func(r models.ExecutionRecord) bool { return r.ProfileID == profileID })
	if len(all) == 0 {
		return nil, store.ErrNotFound
	}
	return &all[0], nil
}

func (e executions) FindRecent(ctx context.Context, limit int) ([]models.ExecutionRecord, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()
	all := e.byStartDesc(func(models.ExecutionRecord) bool { return true })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (e executions) FindSuccessfulByProfile(ctx context.Context, profileID string) ([]models.ExecutionRecord, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()
	return e.byStartDesc(func(r models.ExecutionRecord) bool {
		return r.ProfileID == profileID && store.Successful(r.Status)
	}), nil
}

func (e executions) HasRecentSuccess(ctx context.Context, profileID string, since time.Time) (bool, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()
	for _, r := range e.s.executions {
		if r.ProfileID == profileID && store.Successful(r.Status) && !r.StartedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

type profiles struct{ s *Store }

func (p profiles) FindByUsername(ctx context.Context, username string) (*models.Profile, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	prof, ok := p.s.profiles[strings.ToLower(username)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &prof, nil
}

func (p profiles) Save(ctx context.Context, prof *models.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	key := strings.ToLower(prof.Username)
	now := p.s.now()
	if existing, ok := p.s.profiles[key]; ok {
		prof.ID = existing.ID
		prof.CreatedAt = existing.CreatedAt
	}
	if prof.ID == "" {
		prof.ID = uuid.NewString()
	}
	if prof.CreatedAt.IsZero() {
		prof.CreatedAt = now
	}
	prof.UpdatedAt = now
	p.s.profiles[key] = *prof
	return nil
}

func (p profiles) List(ctx context.Context) ([]models.Profile, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	out := make([]models.Profile, 0, len(p.s.profiles))
	for _, prof := range p.s.profiles {
		out = append(out, prof)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}
