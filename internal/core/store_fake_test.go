package core

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JonMunkholm/charimport/internal/ingest"
)

// memStore is an in-memory Store for service tests.
type memStore struct {
	mu         sync.Mutex
	runs       map[string]ImportRun
	characters []Character
	saveErr    error
	purgedAt   time.Time
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[string]ImportRun)}
}

func (m *memStore) SaveCharacters(_ context.Context, importID string, records []ingest.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	for _, r := range records {
		m.characters = append(m.characters, Character{Record: r, ImportID: importID, CreatedAt: time.Now()})
	}
	return nil
}

func (m *memStore) RecordImport(_ context.Context, run ImportRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *memStore) GetImport(_ context.Context, id string) (ImportRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ImportRun{}, ErrNotFound
	}
	return run, nil
}

func (m *memStore) ListImports(_ context.Context, limit, offset int) ([]ImportRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := make([]ImportRun, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	return page(runs, limit, offset), nil
}

func (m *memStore) ListCharacters(_ context.Context, f CharacterFilter) ([]Character, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Character
	for _, c := range m.characters {
		if f.ImportID != "" && c.ImportID != f.ImportID {
			continue
		}
		if f.Type != "" && c.Type != f.Type {
			continue
		}
		if f.Search != "" && !strings.Contains(c.Name, f.Search) {
			continue
		}
		out = append(out, c)
	}
	return page(out, f.Limit, f.Offset), nil
}

func (m *memStore) PurgeImports(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purgedAt = before
	var n int64
	for id, r := range m.runs {
		if r.CreatedAt.Before(before) {
			delete(m.runs, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

func (m *memStore) run(id string) (ImportRun, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	return r, ok
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

var errStoreDown = errors.New("connection refused")
