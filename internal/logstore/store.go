// Package logstore holds completed request records in memory.
package logstore

import (
	"sync"

	"github.com/dgnsrekt/authtap/internal/types"
)

// DefaultCapacity bounds the store when no capacity is given.
const DefaultCapacity = 1000

// Store is an insertion-ordered ring of records. When full, the oldest record is evicted.
type Store struct {
	mu      sync.RWMutex
	buf     []types.RequestRecord
	head    int // index of the oldest record
	count   int
	evicted int64
}

func New(capacity int) *Store {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Store{buf: make([]types.RequestRecord, capacity)}
}

// Append adds rec as the newest record.
func (s *Store) Append(rec types.RequestRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	capacity := len(s.buf)
	if s.count < capacity {
		s.buf[(s.head+s.count)%capacity] = rec
		s.count++
		return
	}
	s.buf[s.head] = rec
	s.head = (s.head + 1) % capacity
	s.evicted++
}

// All returns a copy of the records, oldest first. Never nil.
func (s *Store) All() []types.RequestRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.RequestRecord, s.count)
	for i := 0; i < s.count; i++ {
		out[i] = s.buf[(s.head+i)%len(s.buf)]
	}
	return out
}

// Clear removes every record.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.buf {
		s.buf[i] = types.RequestRecord{}
	}
	s.head = 0
	s.count = 0
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *Store) Cap() int {
	return len(s.buf)
}

// Evicted returns how many records were pushed out by newer ones.
func (s *Store) Evicted() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evicted
}
