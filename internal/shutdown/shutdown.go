package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultTimeout bounds the whole cleanup sequence.
const DefaultTimeout = 15 * time.Second

// Step is one named cleanup action.
type Step struct {
	Name string
	Fn   func(context.Context) error
}

// Coordinator runs cleanup steps in registration order once the process is
// asked to stop. All steps share one deadline; a failing step does not stop
// the ones after it.
type Coordinator struct {
	timeout time.Duration
	logger  *log.Logger

	mu    sync.Mutex
	steps []Step
}

// NewCoordinator creates a coordinator. A zero timeout uses DefaultTimeout
// and a nil logger uses log.Default().
func NewCoordinator(timeout time.Duration, logger *log.Logger) *Coordinator {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{timeout: timeout, logger: logger}
}

// Add registers a cleanup step.
func (c *Coordinator) Add(name string, fn func(context.Context) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, Step{Name: name, Fn: fn})
}

// WaitForShutdown blocks until ctx is cancelled (typically by
// signal.NotifyContext), then runs the registered steps.
func (c *Coordinator) WaitForShutdown(ctx context.Context) error {
	<-ctx.Done()
	c.logger.Println("INFO: Shutdown signal received, starting graceful shutdown")
	return c.Shutdown()
}

// Shutdown runs the registered steps now. The returned error joins every
// step failure and the deadline, if it was exceeded.
func (c *Coordinator) Shutdown() error {
	c.mu.Lock()
	steps := append([]Step(nil), c.steps...)
	c.mu.Unlock()

	cleanupCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var errs []error
	for i, s := range steps {
		c.logger.Printf("INFO: Shutdown step %d/%d: %s", i+1, len(steps), s.Name)
		if err := s.Fn(cleanupCtx); err != nil {
			c.logger.Printf("ERROR: Shutdown step %s failed: %v", s.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}

	if errors.Is(cleanupCtx.Err(), context.DeadlineExceeded) {
		c.logger.Printf("ERROR: Shutdown timeout exceeded (%v)", c.timeout)
		errs = append(errs, fmt.Errorf("shutdown timeout exceeded: %w", cleanupCtx.Err()))
	}

	if len(errs) == 0 {
		c.logger.Println("INFO: Graceful shutdown completed successfully")
		return nil
	}
	c.logger.Printf("ERROR: Graceful shutdown completed with %d error(s)", len(errs))
	return errors.Join(errs...)
}
