package model

import (
	"context"
	"sync"
)

// Arena is the process-wide index of models keyed by table slug. It is
// rebuilt from the registry after every committed schema mutation and read
// concurrently by record operations.
type Arena struct {
	mu      sync.RWMutex
	bySlug  map[string]*Model
	byID    map[int64]*Model
	ordered []*Model
	version uint64
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{
		bySlug: make(map[string]*Model),
		byID:   make(map[int64]*Model),
	}
}

// Load rebuilds every model with b and swaps them in. On error the arena is
// left unchanged.
func (a *Arena) Load(ctx context.Context, b *Builder) error {
	models, err := b.BuildAll(ctx)
	if err != nil {
		return err
	}
	a.Replace(models)
	return nil
}

// Replace swaps the arena contents for models.
func (a *Arena) Replace(models []*Model) {
	bySlug := make(map[string]*Model, len(models))
	byID := make(map[int64]*Model, len(models))
	for _, m := range models {
		bySlug[m.Slug()] = m
		byID[m.Table.ID] = m
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.bySlug = bySlug
	a.byID = byID
	a.ordered = models
	a.version++
}

// Get returns the model of the table with the given slug.
func (a *Arena) Get(slug string) (*Model, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m, ok := a.bySlug[slug]
	return m, ok
}

// ByID returns the model of the table with the given id.
func (a *Arena) ByID(id int64) (*Model, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m, ok := a.byID[id]
	return m, ok
}

// All returns every model ordered by table id.
func (a *Arena) All() []*Model {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Model, len(a.ordered))
	copy(out, a.ordered)
	return out
}

// Version increases with every Replace.
func (a *Arena) Version() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.version
}
