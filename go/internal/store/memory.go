package store

import (
	"context"
	"sync"

	"github.com/mcdev12/warboard/go/internal/models"
)

// Memory is an in-process Accessor. It also backs local demos.
type Memory struct {
	mu   sync.RWMutex
	wars map[string]models.War
	errs map[string]error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		wars: make(map[string]models.War),
		errs: make(map[string]error),
	}
}

// Put stores a copy of war under warID and clears any injected failure.
func (m *Memory) Put(warID string, war models.War) {
	war.Diff = append([]int(nil), war.Diff...)
	war.HomeScore = append([]int(nil), war.HomeScore...)
	war.EnemyScore = append([]int(nil), war.EnemyScore...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.wars[warID] = war
	delete(m.errs, warID)
}

// Delete removes the record for warID.
func (m *Memory) Delete(warID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.wars, warID)
}

// Fail makes Fetch for warID return err until the next Put.
func (m *Memory) Fail(warID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[warID] = err
}

// Fetch implements Accessor.
func (m *Memory) Fetch(ctx context.Context, warID string) (*models.War, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, ok := m.errs[warID]; ok {
		return nil, err
	}
	war, ok := m.wars[warID]
	if !ok {
		return nil, ErrNotFound
	}
	war.Diff = append([]int(nil), war.Diff...)
	war.HomeScore = append([]int(nil), war.HomeScore...)
	war.EnemyScore = append([]int(nil), war.EnemyScore...)
	return &war, nil
}
