package content

import (
	"context"
	"maps"
	"sync"
	"time"
)

type MemoryIndex struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		records: make(map[string]Record),
	}
}

func (s *MemoryIndex) Put(_ context.Context, record Record) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	record.Source = maps.Clone(record.Source)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.URL] = record
	return nil
}

func (s *MemoryIndex) Lookup(ctx context.Context, url string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[url]
	if !ok {
		return Record{}, false, nil
	}
	record.Source = maps.Clone(record.Source)
	return record, true, nil
}
