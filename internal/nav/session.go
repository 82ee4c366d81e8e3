package nav

import (
	"context"
	"log"
	"sync"
	"time"
)

// session is one execution of a route. Its course and step index belong to
// the navigation worker; the mutex only guards snapshots taken by Status.
type session struct {
	id        string
	route     Route
	course    *course
	tracker   *PositionTracker
	gate      *PauseGate
	exec      *StepExecutor
	logger    *log.Logger
	observers []Observer

	mu         sync.RWMutex
	stepIndex  int
	startedAt  time.Time
	finishedAt time.Time
}

// run executes the route steps strictly in order. Step errors skip the step;
// any other error ends the session.
func (s *session) run(ctx context.Context) error {
	for i, step := range s.route.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.setStep(i)
		s.emit(EventStepStarted, map[string]interface{}{
			"action": string(step.Action),
			"value":  step.Value,
		})

		err := s.exec.Execute(ctx, step)
		if isStepError(err) {
			s.logger.Printf("WARN: Skipping step %d of route %q: %v", i+1, s.route.Destination, err)
			s.emit(EventStepSkipped, map[string]interface{}{
				"action": string(step.Action),
				"error":  err.Error(),
			})
			continue
		}
		if err != nil {
			return err
		}
		s.emit(EventStepCompleted, map[string]interface{}{"action": string(step.Action)})
	}
	s.setStep(len(s.route.Steps))
	return nil
}

func (s *session) setStep(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepIndex = i
}

func (s *session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finishedAt = time.Now().UTC()
}

func (s *session) fill(st *Status) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st.SessionID = s.id
	st.Destination = s.route.Destination
	st.StepIndex = s.stepIndex
	st.StepCount = len(s.route.Steps)
	st.Heading = s.course.Heading()
	st.LateralCompensation = s.course.Lateral()
	st.Position = s.tracker.Position()
	st.StartedAt = s.startedAt
	st.FinishedAt = s.finishedAt
}

func (s *session) emit(t EventType, data map[string]interface{}) {
	if len(s.observers) == 0 {
		return
	}

	s.mu.RLock()
	idx := s.stepIndex
	s.mu.RUnlock()

	e := Event{
		Type:        t,
		SessionID:   s.id,
		Destination: s.route.Destination,
		StepIndex:   idx,
		Heading:     s.course.Heading(),
		Position:    s.tracker.Position(),
		Time:        time.Now().UTC(),
		Data:        data,
	}
	for _, o := range s.observers {
		o.OnEvent(e)
	}
}
