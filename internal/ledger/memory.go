package ledger

import "sync"

// InMemoryStore keeps records in a slice, for tests and dry runs.
type InMemoryStore struct {
	mu   sync.Mutex
	recs []Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

// Records returns a copy of everything appended so far.
func (s *InMemoryStore) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.recs))
	copy(out, s.recs)
	return out
}
