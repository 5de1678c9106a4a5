package audit

import (
	"context"

	"go.uber.org/zap"
)

// WithQueue moves sink writes off the caller's goroutine. Up to size writes
// wait for Run; further events are dropped and logged until the queue
// drains.
func WithQueue(size int) Option {
	return func(r *Recorder) {
		if size > 0 {
			r.jobs = make(chan func(context.Context), size)
		}
	}
}

func (r *Recorder) submit(ctx context.Context, sessionID string, kind Kind, job func(context.Context)) {
	if !r.Enabled() {
		return
	}
	if r.jobs == nil {
		job(ctx)
		return
	}
	select {
	case r.jobs <- job:
	default:
		r.logger.Warn("Audit queue is full, dropping event",
			zap.String("session_id", sessionID),
			zap.String("kind", string(kind)),
		)
	}
}

// Run performs queued writes until ctx is done, then flushes whatever is
// already queued before returning. Without WithQueue it returns at once.
func (r *Recorder) Run(ctx context.Context) {
	if r.jobs == nil {
		return
	}
	// queued writes outlive the caller's cancellation; each still gets writeTimeout
	writeCtx := context.WithoutCancel(ctx)
	for {
		select {
		case job := <-r.jobs:
			job(writeCtx)
		case <-ctx.Done():
			for {
				select {
				case job := <-r.jobs:
					job(writeCtx)
				default:
					return
				}
			}
		}
	}
}
