package watchdog

import "sync"

// Signal is a hot, latest-value stream. New subscribers receive the latest
// value (or the seed when nothing was published) and then every later value
// in publish order.
//
// Subscriber callbacks run on the publishing goroutine and must not call
// Publish or Subscribe on the same signal. Cancelling from inside a callback is fine.
type Signal[T any] struct {
	emitMu sync.Mutex // serializes publish and subscribe replay

	mu     sync.Mutex
	value  T
	has    bool
	seed   T
	seeded bool
	closed bool
	nextID uint64
	subs   map[uint64]func(T)
}

// NewSignal returns a signal with no initial value.
func NewSignal[T any]() *Signal[T] {
	return &Signal[T]{subs: make(map[uint64]func(T))}
}

// NewSeededSignal returns a signal that replays seed until the first Publish.
// HasValue stays false until then.
func NewSeededSignal[T any](seed T) *Signal[T] {
	s := NewSignal[T]()
	s.seed = seed
	s.seeded = true
	return s
}

// Publish stores v and delivers it to every subscriber. It returns false once
// the signal is closed.
func (s *Signal[T]) Publish(v T) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.value = v
	s.has = true
	subs := make([]func(T), 0, len(s.subs))
	ids := make([]uint64, 0, len(s.subs))
	for id, fn := range s.subs {
		subs = append(subs, fn)
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for i, fn := range subs {
		if s.active(ids[i]) {
			fn(v)
		}
	}
	return true
}

// Value returns the latest value, falling back to the seed. ok is false when
// there is neither.
func (s *Signal[T]) Value() (v T, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.has:
		return s.value, true
	case s.seeded:
		return s.seed, true
	}
	return v, false
}

// HasValue reports whether Publish was ever called.
func (s *Signal[T]) HasValue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.has
}

// Subscribe registers fn and replays the current value to it, if any. The
// returned cancel func is idempotent.
func (s *Signal[T]) Subscribe(fn func(T)) (cancel func()) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	replay, ok := s.value, s.has
	if !ok && s.seeded {
		replay, ok = s.seed, true
	}
	s.mu.Unlock()

	if ok {
		fn(replay)
	}

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Close drops every subscriber; later Publish calls are ignored.
func (s *Signal[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.subs = make(map[uint64]func(T))
}

func (s *Signal[T]) active(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[id]
	return ok
}
