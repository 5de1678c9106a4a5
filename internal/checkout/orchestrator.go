// Package checkout drives a hosted payment session from payment method
// selection to a final gateway result.
package checkout

import (
	"context"
	"errors"
	"sync"

	"checkout/internal/models"
	"checkout/internal/payment/express/setup"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrClosed                = errors.New("checkout session closed")
	ErrCompleted             = errors.New("checkout session already completed")
	ErrPaymentMethodDisabled = errors.New("payment method is not available until a valid address is set")
)

const resultBuffer = 16

type resultMsg struct {
	generation uint64
	result     SessionResult
}

// Orchestrator owns one checkout session record. All mutation goes through
// its methods; every setup call is tagged with a generation and its outcome
// is applied only while that generation is current.
type Orchestrator struct {
	setup    SessionSetup
	embedder PaymentEmbedder
	opts     Options
	hooks    Hooks
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	results   chan resultMsg
	done      chan struct{}
	closeOnce sync.Once
	retries   singleflight.Group

	mu             sync.Mutex
	closed         bool
	generation     uint64
	state          State
	status         models.PaymentStatus
	outcome        models.PaymentStatus
	errored        bool
	inFlight       int
	methodSelected bool
	selectorLocked bool
	expiryRetries  int
	response       *setup.TransactionSetupResponse
	transactionID  string
	billing        *models.BillingAddress
	shipping       *models.ShippingAddress

	pending []func()
}

func New(sessionSetup SessionSetup, embedder PaymentEmbedder, opts Options, hooks Hooks, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		setup:    sessionSetup,
		embedder: embedder,
		opts:     opts,
		hooks:    hooks,
		logger:   logger.With(zap.String("session_id", opts.SessionID)),
		ctx:      ctx,
		cancel:   cancel,
		results:  make(chan resultMsg, resultBuffer),
		done:     make(chan struct{}),
		state:    StateIdle,
		status:   models.PaymentStatusUnset,
		outcome:  models.PaymentStatusUnset,
	}
}

func (o *Orchestrator) ID() string {
	return o.opts.SessionID
}

// Done is closed once the orchestrator has been closed.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// SetBillingAddress replaces the billing address; nil clears it. While a
// session is being set up or is waiting for a result, a valid address
// re-issues the setup so the gateway sees the current address.
func (o *Orchestrator) SetBillingAddress(ctx context.Context, addr *models.BillingAddress) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if addr != nil {
		cp := *addr
		o.billing = &cp
	} else {
		o.billing = nil
	}
	return o.addressChangedLocked(ctx)
}

// SetShippingAddress is SetBillingAddress for the shipping record.
func (o *Orchestrator) SetShippingAddress(ctx context.Context, addr *models.ShippingAddress) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if addr != nil {
		cp := *addr
		o.shipping = &cp
	} else {
		o.shipping = nil
	}
	return o.addressChangedLocked(ctx)
}

func (o *Orchestrator) addressChangedLocked(ctx context.Context) error {
	if o.addressesValidLocked() {
		o.selectorLocked = false
	}
	if !o.methodSelected || !o.state.awaiting() || !o.methodEnabledLocked() {
		o.unlockAndNotify()
		return nil
	}

	gen, req := o.beginSetupLocked()
	o.unlockAndNotify()
	o.runSetup(ctx, gen, req, 0)
	return nil
}

// SelectPaymentMethod starts a new hosted payment session. It only fails on
// preconditions; a failed setup call is reported through the session state.
func (o *Orchestrator) SelectPaymentMethod(ctx context.Context) error {
	o.mu.Lock()
	switch {
	case o.closed:
		o.mu.Unlock()
		return ErrClosed
	case o.state == StateSuccess:
		o.mu.Unlock()
		return ErrCompleted
	case !o.methodEnabledLocked():
		o.mu.Unlock()
		return ErrPaymentMethodDisabled
	}

	o.methodSelected = true
	o.expiryRetries = 0
	o.outcome = models.PaymentStatusUnset
	gen, req := o.beginSetupLocked()
	o.unlockAndNotify()

	o.runSetup(ctx, gen, req, 0)
	return nil
}

// HandleResult applies a hosted page result to the current session.
func (o *Orchestrator) HandleResult(result SessionResult) {
	o.mu.Lock()
	gen := o.generation
	o.mu.Unlock()
	o.applyResult(gen, result)
}

// Run consumes result notifications until ctx is done or the orchestrator
// is closed.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-o.done:
			return nil
		case msg := <-o.results:
			o.applyResult(msg.generation, msg.result)
		}
	}
}

// Reset returns the session to IDLE. Any in-flight setup or pending result
// becomes stale, and the payment method stays disabled until a valid
// address is set again.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.generation++
	o.status = models.PaymentStatusUnset
	o.outcome = models.PaymentStatusUnset
	o.response = nil
	o.transactionID = ""
	o.methodSelected = false
	o.expiryRetries = 0
	o.selectorLocked = true
	o.setErrorLocked(false)
	o.transitionLocked(StateIdle)
	o.unlockAndNotify()
}

// Close tears the session down. Late setup results and callbacks are
// dropped afterwards.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.closed = true
		o.mu.Unlock()
		o.cancel()
		close(o.done)
	})
}

func (o *Orchestrator) PaymentMethodEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.methodEnabledLocked()
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	alertStatus := o.status
	if alertStatus == models.PaymentStatusUnset {
		alertStatus = o.outcome
	}
	snap := Snapshot{
		SessionID:      o.opts.SessionID,
		State:          o.state,
		Status:         o.status,
		Loading:        o.inFlight > 0,
		Error:          o.errored,
		MethodSelected: o.methodSelected,
		MethodEnabled:  o.methodEnabledLocked(),
		Alert:          models.AlertFor(alertStatus, o.errored),
		Response:       o.response,
		TransactionID:  o.transactionID,
		ExpiryRetries:  o.expiryRetries,
	}
	if o.state == StateSuccess {
		snap.RedirectURL = o.opts.SuccessRedirectURL
	}
	if o.billing != nil {
		b := *o.billing
		snap.BillingAddress = &b
	}
	if o.shipping != nil {
		s := *o.shipping
		snap.ShippingAddress = &s
	}
	return snap
}

func (o *Orchestrator) addressesValidLocked() bool {
	if o.billing == nil || !o.billing.Valid() {
		return false
	}
	if o.opts.RequireShipping && (o.shipping == nil || !o.shipping.Valid()) {
		return false
	}
	return true
}

func (o *Orchestrator) methodEnabledLocked() bool {
	return !o.closed && !o.selectorLocked && o.state != StateSuccess && o.addressesValidLocked()
}

// beginSetupLocked invalidates every earlier setup and builds the request
// for the new one. The caller must hand the request to runSetup, which
// settles the loading count taken here.
func (o *Orchestrator) beginSetupLocked() (uint64, setup.TransactionSetupRequest) {
	o.generation++
	o.response = nil
	o.status = models.PaymentStatusUnset
	o.setErrorLocked(false)
	o.transitionLocked(StateAwaitingSetup)
	o.loadingLocked(1)

	req := setup.TransactionSetupRequest{
		Amount:          o.opts.Amount.StringFixed(2),
		ReturnURL:       o.opts.ReturnURL,
		AccountID:       o.opts.Credentials.AccountID,
		AccountToken:    o.opts.Credentials.AccountToken,
		AcceptorID:      o.opts.Credentials.AcceptorID,
		ReferenceNumber: o.opts.ReferenceID,
		Styling:         o.opts.Styling,
	}
	if o.billing != nil {
		b := *o.billing
		req.BillingAddress = &b
	}
	return o.generation, req
}

// runSetup performs one setup call. The loading count drops in the same
// critical section that applies or discards the outcome, so loading=false is
// only ever observed on a settled session.
func (o *Orchestrator) runSetup(ctx context.Context, gen uint64, req setup.TransactionSetupRequest, retry int) {
	resp, err := o.setup.SetupSession(ctx, req, setup.Signals{
		Error: func(bool) { o.onSetupError(gen) },
	})

	o.mu.Lock()
	stale := o.closed || gen != o.generation
	if o.hooks.Setup != nil {
		attempt := SetupAttempt{SessionID: o.opts.SessionID, Generation: gen, Retry: retry, Response: resp, Err: err, Stale: stale}
		o.pending = append(o.pending, func() { o.hooks.Setup(attempt) })
	}
	if stale {
		o.logger.Debug("Discarding stale transaction setup", zap.Uint64("generation", gen))
		o.loadingLocked(-1)
		o.unlockAndNotify()
		return
	}

	if err == nil && (resp == nil || resp.TransactionSetupURL == nil || resp.TransactionSetupID == nil) {
		err = setup.ErrMissingIdentifier
	}
	if err != nil {
		o.logger.Warn("Transaction setup failed", zap.Error(err), zap.Int("retry", retry))
		o.response = resp
		o.setErrorLocked(true)
		o.transitionLocked(StateFailure)
		o.loadingLocked(-1)
		o.unlockAndNotify()
		return
	}

	o.response = resp
	o.transitionLocked(StateAwaitingResult)
	cfg := EmbedConfig{
		URL:                *resp.TransactionSetupURL,
		TransactionSetupID: *resp.TransactionSetupID,
		Target:             o.opts.EmbedTarget,
		ResultCallback:     o.callbackFor(gen),
	}
	o.unlockAndNotify()

	embedErr := o.embedder.Setup(ctx, cfg)

	o.mu.Lock()
	if embedErr != nil {
		o.logger.Error("Failed to embed hosted payment page", zap.Error(embedErr))
		if !o.closed && gen == o.generation {
			o.setErrorLocked(true)
			o.transitionLocked(StateFailure)
		}
	}
	o.loadingLocked(-1)
	o.unlockAndNotify()
}

func (o *Orchestrator) callbackFor(gen uint64) func(SessionResult) {
	return func(r SessionResult) {
		select {
		case o.results <- resultMsg{generation: gen, result: r}:
		case <-o.done:
		}
	}
}

func (o *Orchestrator) applyResult(gen uint64, result SessionResult) {
	o.mu.Lock()
	if o.closed || gen != o.generation || o.state != StateAwaitingResult {
		o.logger.Debug("Ignoring payment result",
			zap.Uint64("generation", gen),
			zap.String("state", string(o.state)),
			zap.String("status", result.Status),
		)
		o.mu.Unlock()
		return
	}
	if current := o.currentSetupIDLocked(); result.TransactionSetupID != current {
		o.logger.Debug("Ignoring payment result for another hosted session",
			zap.String("transaction_setup_id", result.TransactionSetupID),
			zap.String("current_setup_id", current),
			zap.String("status", result.Status),
		)
		o.mu.Unlock()
		return
	}

	status := models.ParsePaymentStatus(result.Status)
	o.logger.Info("Payment result received",
		zap.String("status", string(status)),
		zap.String("transaction_id", result.TransactionID),
	)

	switch {
	case status == models.PaymentStatusSuccess:
		o.status = status
		o.transactionID = result.TransactionID
		o.transitionLocked(StateSuccess)
		if url := o.opts.SuccessRedirectURL; url != "" && o.hooks.Redirect != nil {
			o.pending = append(o.pending, func() { o.hooks.Redirect(url) })
		}
		if o.hooks.Completed != nil {
			snap := o.snapshotLocked()
			o.pending = append(o.pending, func() { o.hooks.Completed(snap) })
		}
	case status.IsDeclined():
		o.outcome = status
		o.status = models.PaymentStatusUnset
		o.response = nil
		o.methodSelected = false
		o.transitionLocked(StateFailure)
	case status == models.PaymentStatusSessionExpired:
		o.status = status
		o.transitionLocked(StateSessionExpired)
		o.scheduleRetryLocked(gen)
	default:
		o.logger.Warn("Unknown payment result status", zap.String("status", result.Status))
	}
	o.unlockAndNotify()
}

func (o *Orchestrator) currentSetupIDLocked() string {
	if o.response == nil || o.response.TransactionSetupID == nil {
		return ""
	}
	return *o.response.TransactionSetupID
}

func (o *Orchestrator) loadingLocked(delta int) {
	was := o.inFlight > 0
	o.inFlight += delta
	if o.inFlight < 0 {
		o.inFlight = 0
	}
	now := o.inFlight > 0
	if was != now && o.hooks.Loading != nil {
		o.pending = append(o.pending, func() { o.hooks.Loading(now) })
	}
}

func (o *Orchestrator) onSetupError(gen uint64) {
	o.mu.Lock()
	if !o.closed && gen == o.generation {
		o.setErrorLocked(true)
	}
	o.unlockAndNotify()
}

func (o *Orchestrator) setErrorLocked(v bool) {
	if o.errored == v {
		return
	}
	o.errored = v
	if o.hooks.Error != nil {
		o.pending = append(o.pending, func() { o.hooks.Error(v) })
	}
}

func (o *Orchestrator) transitionLocked(to State) {
	from := o.state
	if from == to {
		return
	}
	o.state = to
	o.logger.Debug("Checkout state changed", zap.String("from", string(from)), zap.String("to", string(to)))
	if o.hooks.Transition != nil {
		o.pending = append(o.pending, func() { o.hooks.Transition(from, to) })
	}
}

// unlockAndNotify releases the lock and then runs queued hooks in order.
func (o *Orchestrator) unlockAndNotify() {
	queued := o.pending
	o.pending = nil
	o.mu.Unlock()
	for _, fn := range queued {
		fn()
	}
}
