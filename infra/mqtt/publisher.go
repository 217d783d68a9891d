package mqtt

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/foundry/core/dispatch"
)

// MockPublisher records published queues in memory.
type MockPublisher struct {
	Queues  map[string]dispatch.Queue
	FailIDs map[string]bool
	mu      sync.Mutex
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		Queues:  make(map[string]dispatch.Queue),
		FailIDs: make(map[string]bool),
	}
}

// PublishQueue records the queue or returns an error if configured to fail.
func (m *MockPublisher) PublishQueue(_ context.Context, q dispatch.Queue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[q.LineID] {
		return fmt.Errorf("publish failed")
	}
	m.Queues[q.LineID] = q
	return nil
}

// Get returns the last queue published for a line.
func (m *MockPublisher) Get(line string) (dispatch.Queue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.Queues[line]
	return q, ok
}
