package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"deepreport/internal/logging"
	"deepreport/internal/progress"
	"deepreport/internal/types"

	"github.com/google/uuid"
)

// Subscription is the consumer side of a streaming run.
type Subscription struct {
	taskID string
	runner *Runner
	stream *progress.Stream
	cancel context.CancelFunc
	reg    *progress.Registration

	last atomic.Pointer[Snapshot]
	done chan struct{}
	once sync.Once

	report *Report
	err    error
}

// Stream starts a task on a worker goroutine and returns a subscription to
// its events. The event stream ends with exactly one complete or error event.
func (r *Runner) Stream(ctx context.Context, req Request) (*Subscription, error) {
	if r.broker == nil {
		return nil, fmt.Errorf("streaming requires a progress broker")
	}
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}

	stream := progress.NewStream(r.cfg.EventBuffer)
	reg, err := r.broker.Attach(req.TaskID, stream.Callback())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		taskID: req.TaskID,
		runner: r,
		stream: stream,
		cancel: cancel,
		reg:    reg,
		done:   make(chan struct{}),
	}

	go sub.work(ctx, req)
	logging.Progress("Streaming task %s started", req.TaskID)
	return sub, nil
}

func (s *Subscription) work(ctx context.Context, req Request) {
	defer close(s.done)
	defer s.reg.Detach()
	defer s.cancel()

	rep := s.reg.Reporter()
	report, err := s.runner.execute(ctx, req, rep, func(st State, next Phase) {
		s.last.Store(snapshotOf(st, next))
	})
	s.report, s.err = report, err

	if err != nil {
		rep.Error(err)
		return
	}
	rep.Complete("report complete", report)
}

// TaskID returns the id of the streamed task.
func (s *Subscription) TaskID() string { return s.taskID }

// Events returns the progress events. Consumers stop at the first terminal
// event.
func (s *Subscription) Events() <-chan types.ProgressEvent { return s.stream.Events() }

// Done is closed when the worker has finished.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Snapshot returns the last state the worker published, or nil.
func (s *Subscription) Snapshot() *Snapshot { return s.last.Load() }

// Result waits for the worker and returns its outcome.
func (s *Subscription) Result(ctx context.Context) (*Report, error) {
	select {
	case <-s.done:
		return s.report, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel handles a consumer disconnect: it stops the worker, stops event
// delivery, and purges the task's evidence index through the last published
// snapshot or a handle reconstructed from the task id. It does not wait for
// the worker to exit.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.cancel()
		s.stream.Close()
		if s.reg != nil {
			s.reg.Detach()
		}

		var idx EvidenceIndex
		if snap := s.last.Load(); snap != nil && snap.Index != nil {
			idx = snap.Index
		} else {
			opened, err := s.runner.indexes.Open(s.taskID)
			if err != nil {
				if !errors.Is(err, types.ErrIndexPurged) {
					logging.ProgressWarn("Cannot reopen evidence index for cancelled task %s: %v", s.taskID, err)
				}
			} else {
				idx = opened
			}
		}
		if idx != nil {
			if err := idx.Purge(); err != nil {
				logging.ProgressWarn("Purge after disconnect failed for task %s: %v", s.taskID, err)
			}
		}
		logging.Progress("Streaming task %s cancelled by consumer", s.taskID)
	})
}
