package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/menta2k/doc-scanner/internal/logger"
	"github.com/menta2k/doc-scanner/pkg/types"
)

// MemoryStore is a process-local Store
type MemoryStore struct {
	mu       sync.RWMutex
	records  map[string]types.ScanRecord
	settings map[string]string
	now      func() time.Time
	logger   zerolog.Logger
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]types.ScanRecord),
		settings: make(map[string]string),
		now:      time.Now,
		logger:   logger.WithComponent("store"),
	}
}

func (m *MemoryStore) Save(ctx context.Context, rec *types.ScanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prepare(rec, m.now())
	m.records[rec.ID] = *rec
	m.logger.Debug().Str("id", rec.ID).Str("type", string(rec.Type)).Msg("Scan saved")
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (types.ScanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return types.ScanRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) List(ctx context.Context, opts ListOptions) ([]types.ScanRecord, error) {
	m.mu.RLock()
	out := make([]types.ScanRecord, 0, len(m.records))
	for _, r := range m.records {
		if opts.Type == "" || r.Type == opts.Type {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID > out[j].ID
		}
		return out[i].Date.After(out[j].Date)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *MemoryStore) DeleteOlderThan(ctx context.Context, hours int) (int, error) {
	cutoff := m.now().Add(-time.Duration(hours) * time.Hour)

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, r := range m.records {
		if r.Date.Before(cutoff) {
			delete(m.records, id)
			n++
		}
	}
	if n > 0 {
		m.logger.Debug().Int("deleted", n).Int("hours", hours).Msg("Old scans pruned")
	}
	return n, nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]types.ScanRecord)
	return nil
}

func (m *MemoryStore) GetSetting(ctx context.Context, key, def string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.settings[key]; ok {
		return v, nil
	}
	return def, nil
}

func (m *MemoryStore) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *MemoryStore) AllSettings(ctx context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) DeleteSetting(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.settings, key)
	return nil
}

func (m *MemoryStore) Size(ctx context.Context) (int64, error) {
	records, _ := m.List(ctx, ListOptions{})
	settings, _ := m.AllSettings(ctx)

	a, err := json.Marshal(records)
	if err != nil {
		return 0, err
	}
	b, err := json.Marshal(settings)
	if err != nil {
		return 0, err
	}
	return int64(len(a) + len(b)), nil
}

func (m *MemoryStore) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]types.ScanRecord)
	m.settings = make(map[string]string)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
