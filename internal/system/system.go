// Package system assembles the lane monitors and the controller into
// one lifecycle: start them together, stop them together, and bound how
// long shutdown may take.
package system

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sujal0507/ai-powered-smart-signals/internal/controller"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/monitor"
	"github.com/Sujal0507/ai-powered-smart-signals/internal/monitoring"
)

// ErrPartialStop reports that some workers did not exit within the
// shutdown timeout. They were abandoned, not waited on indefinitely.
var ErrPartialStop = errors.New("system: shutdown timed out with workers still running")

// DefaultStopTimeout bounds how long Stop waits for workers to exit.
const DefaultStopTimeout = 5 * time.Second

// System runs a set of lane monitors and one controller.
type System struct {
	Monitors   []*monitor.Monitor
	Controller *controller.Controller

	// StopTimeout bounds Stop. Zero means DefaultStopTimeout.
	StopTimeout time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
	stopErr error
}

// Start launches every monitor and the controller. A monitor whose
// video source failed to open never reaches this point; construction
// surfaces that error per lane. Start may be called once.
func (s *System) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return fmt.Errorf("system: already started")
	}
	if s.Controller == nil {
		return fmt.Errorf("system: controller is required")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	var wg sync.WaitGroup
	for _, m := range s.Monitors {
		wg.Add(1)
		go func(m *monitor.Monitor) {
			defer wg.Done()
			if err := m.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				monitoring.Logf("lane %d monitor exited: %v", m.LaneID, err)
			}
		}(m)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.Controller.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("controller exited: %v", err)
		}
	}()

	go func() {
		wg.Wait()
		close(s.done)
	}()

	return nil
}

// Stop cancels all workers and waits for them to exit, up to the stop
// timeout. Workers still running at the deadline are abandoned and the
// call returns ErrPartialStop. Stop is idempotent: the second and later
// calls return the first call's result without further effect.
func (s *System) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return fmt.Errorf("system: not started")
	}
	if s.stopped {
		err := s.stopErr
		s.mu.Unlock()
		return err
	}
	s.stopped = true
	cancel := s.cancel
	done := s.done
	timeout := s.StopTimeout
	if timeout == 0 {
		timeout = DefaultStopTimeout
	}
	s.mu.Unlock()

	cancel()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = ErrPartialStop
	}

	s.mu.Lock()
	s.stopErr = err
	s.mu.Unlock()
	return err
}

// Done returns a channel closed once every worker has exited.
func (s *System) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}
