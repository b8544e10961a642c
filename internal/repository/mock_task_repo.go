package repository

import (
	"context"
	"sync"
	"time"

	"github.com/ricirt/task-insights/internal/domain"
)

// TaskRecord is the in-memory view of the analysis columns of one task row.
type TaskRecord struct {
	ID         domain.TaskID
	Category   domain.Category
	Sentiment  domain.Sentiment
	AnalyzedAt *time.Time
}

// MockTaskRepository is a hand-written, in-memory implementation of
// TaskRepository used in unit tests. No mock-generation library needed.
type MockTaskRepository struct {
	mu    sync.RWMutex
	tasks map[domain.TaskID]*TaskRecord
	calls int

	// Optional error override: set in tests to simulate store failures.
	UpdateErr error
}

func NewMockTaskRepository() *MockTaskRepository {
	return &MockTaskRepository{tasks: make(map[domain.TaskID]*TaskRecord)}
}

// Seed inserts task rows that have not been analysed yet.
func (m *MockTaskRepository) Seed(ids ...domain.TaskID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.tasks[id] = &TaskRecord{ID: id}
	}
}

func (m *MockTaskRepository) UpdateAnalysis(_ context.Context, id domain.TaskID, c domain.Classification, analyzedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.UpdateErr != nil {
		return false, m.UpdateErr
	}
	rec, ok := m.tasks[id]
	if !ok {
		return false, nil
	}
	at := analyzedAt.UTC()
	rec.Category = c.Category
	rec.Sentiment = c.Sentiment
	rec.AnalyzedAt = &at
	return true, nil
}

// Get returns a copy of the stored record.
func (m *MockTaskRepository) Get(id domain.TaskID) (TaskRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.tasks[id]
	if !ok {
		return TaskRecord{}, false
	}
	return *rec, true
}

// Calls reports how many times UpdateAnalysis was invoked.
func (m *MockTaskRepository) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}
