package tree

import "sync"

// Serial runs queued funcs one at a time, in push order, on its own
// goroutine. Push never blocks the caller.
type Serial struct {
	mu      sync.Mutex
	queue   []func()
	running bool
	closed  bool
}

func (s *Serial) Push(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	s.queue = append(s.queue, fn)
	if !s.running {
		s.running = true
		go s.drain()
	}
}

// Close drops pending funcs. A func already running is not interrupted.
func (s *Serial) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.queue = nil
}

func (s *Serial) drain() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 || s.closed {
			s.running = false
			s.mu.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		fn()
	}
}
