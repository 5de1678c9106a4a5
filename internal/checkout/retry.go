package checkout

import (
	"strconv"
	"time"

	"go.uber.org/zap"
)

// backoff returns min(base*2^(attempt-1), limit).
func backoff(attempt int, base, limit time.Duration) time.Duration {
	if base <= 0 || attempt <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	if delay > limit {
		return limit
	}
	return delay
}

// scheduleRetryLocked re-issues the setup of an expired session. Expiries
// reported for the same generation share one retry.
func (o *Orchestrator) scheduleRetryLocked(gen uint64) {
	if o.expiryRetries >= o.opts.MaxExpiryRetries {
		o.logger.Warn("Session expiry retries exhausted", zap.Int("retries", o.expiryRetries))
		o.setErrorLocked(true)
		o.transitionLocked(StateFailure)
		return
	}
	o.expiryRetries++
	attempt := o.expiryRetries

	key := "expiry-" + strconv.FormatUint(gen, 10)
	o.retries.DoChan(key, func() (any, error) {
		o.retryExpired(gen, attempt)
		return nil, nil
	})
}

func (o *Orchestrator) retryExpired(gen uint64, attempt int) {
	delay := backoff(attempt, o.opts.RetryBaseDelay, o.opts.RetryMaxDelay)
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-o.done:
			return
		}
	}

	o.mu.Lock()
	// a reset or a new selection in the meantime supersedes the retry
	if o.closed || gen != o.generation || o.state != StateSessionExpired {
		o.mu.Unlock()
		return
	}
	o.logger.Info("Re-issuing expired payment session", zap.Int("attempt", attempt))
	next, req := o.beginSetupLocked()
	o.unlockAndNotify()

	o.runSetup(o.ctx, next, req, attempt)
}
