// Package embed hands hosted payment pages to the browser and relays the
// page's result notification back to the owning checkout session.
package embed

import (
	"context"
	"errors"
	"sync"

	"checkout/internal/checkout"

	"go.uber.org/zap"
)

var (
	ErrUnknownTarget = errors.New("no payment frame registered for target")
	ErrStaleResult   = errors.New("result is for a payment frame that was replaced")
)

// Frame is what the page needs to mount the hosted payment form.
type Frame struct {
	Target             string `json:"target"`
	URL                string `json:"url"`
	TransactionSetupID string `json:"transactionSetupId"`
}

type registration struct {
	frame    Frame
	callback func(checkout.SessionResult)
}

// Relay implements checkout.PaymentEmbedder for server-rendered checkouts.
type Relay struct {
	mu     sync.RWMutex
	frames map[string]registration
	logger *zap.Logger
}

var _ checkout.PaymentEmbedder = (*Relay)(nil)

func NewRelay(logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{
		frames: make(map[string]registration),
		logger: logger,
	}
}

// Setup registers the frame for cfg.Target, replacing any earlier frame.
func (r *Relay) Setup(_ context.Context, cfg checkout.EmbedConfig) error {
	if cfg.Target == "" {
		return errors.New("embed target is required")
	}
	if cfg.URL == "" {
		return errors.New("payment page url is required")
	}

	r.mu.Lock()
	r.frames[cfg.Target] = registration{
		frame: Frame{
			Target:             cfg.Target,
			URL:                cfg.URL,
			TransactionSetupID: cfg.TransactionSetupID,
		},
		callback: cfg.ResultCallback,
	}
	r.mu.Unlock()

	r.logger.Debug("Payment frame registered",
		zap.String("target", cfg.Target),
		zap.String("transaction_setup_id", cfg.TransactionSetupID),
	)
	return nil
}

// Notify forwards a result posted by the hosted page to the session that
// owns target. Only the frame registered last can report; a result naming
// any other transactionSetupID is rejected with ErrStaleResult.
func (r *Relay) Notify(target string, result checkout.SessionResult) error {
	r.mu.RLock()
	reg, ok := r.frames[target]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownTarget
	}
	if result.TransactionSetupID != reg.frame.TransactionSetupID {
		r.logger.Info("Dropping result for replaced payment frame",
			zap.String("target", target),
			zap.String("transaction_setup_id", result.TransactionSetupID),
			zap.String("current_setup_id", reg.frame.TransactionSetupID),
		)
		return ErrStaleResult
	}
	if reg.callback != nil {
		reg.callback(result)
	}
	return nil
}

func (r *Relay) Frame(target string) (Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.frames[target]
	return reg.frame, ok
}

// Remove drops the frame of a torn down session.
func (r *Relay) Remove(target string) {
	r.mu.Lock()
	delete(r.frames, target)
	r.mu.Unlock()
}
