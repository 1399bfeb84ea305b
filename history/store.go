// Package history keeps a bounded, ordered window of the most recent CAN messages.
package history

import (
	"sync"

	"github.com/squadracorsepolito/canweb/can"
)

// DefaultCapacity is the number of messages kept when no capacity is configured.
const DefaultCapacity = 100

// Store is a fixed-capacity ring buffer of messages.
// When full, appending evicts the oldest message.
// It is safe for concurrent use.
type Store struct {
	capacity int
	currSize int

	buffer []*can.Message
	mux    *sync.Mutex

	// head is the index of the oldest message
	head int
}

// New returns a [Store] holding at most capacity messages.
func New(capacity int) *Store {
	capacity = max(capacity, 1)

	return &Store{
		capacity: capacity,

		buffer: make([]*can.Message, capacity),
		mux:    &sync.Mutex{},
	}
}

// Append inserts msg at the tail, evicting the oldest message at capacity.
func (s *Store) Append(msg *can.Message) {
	s.mux.Lock()
	defer s.mux.Unlock()

	tail := (s.head + s.currSize) % s.capacity
	s.buffer[tail] = msg

	if s.currSize < s.capacity {
		s.currSize++
		return
	}

	// The tail overwrote the oldest message
	s.head = (s.head + 1) % s.capacity
}

// Snapshot returns an ordered copy of the messages whose identifier is in filter,
// or of all messages when filter is empty.
// The copy reflects a single point in time.
func (s *Store) Snapshot(filter map[uint32]struct{}) []*can.Message {
	s.mux.Lock()
	defer s.mux.Unlock()

	res := make([]*can.Message, 0, s.currSize)
	for i := range s.currSize {
		msg := s.buffer[(s.head+i)%s.capacity]

		if len(filter) > 0 {
			if _, ok := filter[msg.ID]; !ok {
				continue
			}
		}

		res = append(res, msg)
	}

	return res
}

// Len returns the number of messages currently held.
func (s *Store) Len() int {
	s.mux.Lock()
	defer s.mux.Unlock()

	return s.currSize
}

// Cap returns the capacity of the store.
func (s *Store) Cap() int {
	return s.capacity
}
