package autorefresh

import (
	"context"
	"sync"
	"time"
)

// Signal holds the generation of the served content. Every Advance bumps the
// generation and wakes everyone blocked in Wait. The zero value is ready to
// use.
//
// Generations wrap at 1<<16, so a reader that misses exactly 65536 advances
// sees no change.
type Signal struct {
	mu  sync.Mutex
	gen uint16
	ch  chan struct{} // closed and replaced on every advance
}

// changed must be called with mu held.
func (s *Signal) changed() <-chan struct{} {
	if s.ch == nil {
		s.ch = make(chan struct{})
	}
	return s.ch
}

// Advance bumps the generation and wakes all waiters. It returns the new
// generation.
func (s *Signal) Advance() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.ch != nil {
		close(s.ch)
		s.ch = nil
	}
	return s.gen
}

// Current returns the current generation.
func (s *Signal) Current() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Wait blocks until the generation differs from last, the timeout elapses or
// the context is done. A timeout <= 0 waits without a deadline. An advance
// that lands together with the timeout is reported by the next Wait.
func (s *Signal) Wait(ctx context.Context, last uint16, timeout time.Duration) (gen uint16, timedOut bool, err error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	for {
		s.mu.Lock()
		gen = s.gen
		if gen != last {
			s.mu.Unlock()
			return gen, false, nil
		}
		changed := s.changed()
		s.mu.Unlock()
		select {
		case <-changed:
		case <-expired:
			return last, true, nil
		case <-ctx.Done():
			return last, false, ctx.Err()
		}
	}
}
