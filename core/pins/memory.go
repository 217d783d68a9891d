package pins

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/foundry/core/model"
)

// MemoryStore keeps splits in process memory. A single mutex makes every
// Apply atomic.
type MemoryStore struct {
	mu   sync.Mutex
	data map[model.PinKey][]model.PinnedSplit
	now  func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[model.PinKey][]model.PinnedSplit), now: time.Now}
}

func (m *MemoryStore) Apply(ctx context.Context, key model.PinKey, op Op) ([]model.PinnedSplit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	next, err := op(clone(m.data[key]), m.now().UTC())
	if err != nil {
		return nil, err
	}
	if len(next) == 0 {
		delete(m.data, key)
		return nil, nil
	}
	m.data[key] = clone(next)
	return next, nil
}

func (m *MemoryStore) Get(ctx context.Context, key model.PinKey) ([]model.PinnedSplit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	splits, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(splits), nil
}

func (m *MemoryStore) List(ctx context.Context, process string) ([]model.PinnedSplit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PinnedSplit
	for k, splits := range m.data {
		if process == "" || k.Process == process {
			out = append(out, clone(splits)...)
		}
	}
	SortSplits(out)
	return out, nil
}

// SortSplits orders splits by key then split id.
func SortSplits(s []model.PinnedSplit) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Key != s[j].Key {
			return s[i].Key.String() < s[j].Key.String()
		}
		return s[i].SplitID < s[j].SplitID
	})
}
