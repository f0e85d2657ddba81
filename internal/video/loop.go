package video

import "sync"

// LoopSource serves a fixed set of frames in a loop. It backs dev mode
// and tests, where no real camera footage is available. Errors can be
// injected at chosen positions to exercise monitor recovery paths.
type LoopSource struct {
	mu     sync.Mutex
	frames [][]byte
	errs   map[int]error
	pos    int
	reads  int
	closed bool
}

// NewLoopSource returns a source cycling through frames. At least one
// frame is required.
func NewLoopSource(frames ...[]byte) *LoopSource {
	return &LoopSource{frames: frames, errs: make(map[int]error)}
}

// FailAt injects err on the nth call to Next (0-based). The failing
// call consumes a position in the cycle like a normal read.
func (s *LoopSource) FailAt(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[n] = err
}

// Next returns the next frame, ErrEndOfStream at each wrap point, or an
// injected error.
func (s *LoopSource) Next() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrEndOfStream
	}

	n := s.reads
	s.reads++
	if err, ok := s.errs[n]; ok {
		return nil, err
	}

	if len(s.frames) == 0 {
		return nil, ErrEndOfStream
	}
	if s.pos == len(s.frames) {
		s.pos = 0
		return nil, ErrEndOfStream
	}
	frame := s.frames[s.pos]
	s.pos++
	return frame, nil
}

// Reads reports how many times Next has been called.
func (s *LoopSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Closed reports whether Close has been called.
func (s *LoopSource) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close marks the source closed. Idempotent.
func (s *LoopSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
