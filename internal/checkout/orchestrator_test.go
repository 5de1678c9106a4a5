package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"checkout/internal/models"
	"checkout/internal/payment/express/setup"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentMethodEnabled(t *testing.T) {
	ctx := context.Background()

	t.Run("billing only", func(t *testing.T) {
		o := newTestOrchestrator(t, &fakeSetup{respond: alwaysOK}, &fakeEmbedder{}, testOptions(), Hooks{})
		require.False(t, o.PaymentMethodEnabled())
		require.ErrorIs(t, o.SelectPaymentMethod(ctx), ErrPaymentMethodDisabled)

		require.NoError(t, o.SetBillingAddress(ctx, &models.BillingAddress{Address1: "123 Main St", City: "Denver"}))
		require.False(t, o.PaymentMethodEnabled())

		require.NoError(t, o.SetBillingAddress(ctx, validBilling()))
		require.True(t, o.PaymentMethodEnabled())

		require.NoError(t, o.SetBillingAddress(ctx, nil))
		require.False(t, o.PaymentMethodEnabled())
	})

	t.Run("shipping required", func(t *testing.T) {
		opts := testOptions()
		opts.RequireShipping = true
		o := newTestOrchestrator(t, &fakeSetup{respond: alwaysOK}, &fakeEmbedder{}, opts, Hooks{})

		require.NoError(t, o.SetBillingAddress(ctx, validBilling()))
		require.False(t, o.PaymentMethodEnabled())

		require.NoError(t, o.SetShippingAddress(ctx, &models.ShippingAddress{
			Address1: "1 Dock", City: "Boulder", State: "CO", Zipcode: "80301",
		}))
		require.True(t, o.PaymentMethodEnabled())
	})
}

func TestScenarioSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := &fakeSetup{respond: alwaysOK}
	fe := &fakeEmbedder{}
	log := &hookLog{}
	o := newTestOrchestrator(t, fs, fe, testOptions(), log.hooks())
	go o.Run(ctx)

	require.NoError(t, o.SetBillingAddress(ctx, validBilling()))
	require.NoError(t, o.SelectPaymentMethod(ctx))

	snap := o.Snapshot()
	require.Equal(t, StateAwaitingResult, snap.State)
	require.False(t, snap.Loading)
	require.False(t, snap.Error)
	require.Nil(t, snap.Alert)
	require.Equal(t, "setup-1", *snap.Response.TransactionSetupID)

	req := fs.request(0)
	assert.Equal(t, "25.00", req.Amount)
	assert.Equal(t, "ORDER-77", req.ReferenceNumber)
	assert.Equal(t, "80202", req.BillingAddress.Zipcode)

	require.Equal(t, 1, fe.count())
	cfg := fe.last()
	require.Equal(t, "setup-1", cfg.TransactionSetupID)
	require.Equal(t, "sess-1", cfg.Target)
	require.Contains(t, cfg.URL, "TransactionSetupID=setup-1")

	cfg.ResultCallback(SessionResult{TransactionSetupID: "setup-1", Status: "SUCCESS", TransactionID: "tx-42"})
	waitForState(t, o, StateSuccess)

	snap = o.Snapshot()
	require.Equal(t, models.PaymentStatusSuccess, snap.Status)
	require.Equal(t, "tx-42", snap.TransactionID)
	require.Equal(t, models.AlertSuccess, snap.Alert.Kind)
	require.Equal(t, "https://shop.example.com/thanks", snap.RedirectURL)
	require.False(t, snap.MethodEnabled)

	// hooks run after the state lock is released
	require.Eventually(t, func() bool {
		log.mu.Lock()
		defer log.mu.Unlock()
		return len(log.redirects) == 1
	}, 2*time.Second, time.Millisecond)

	log.mu.Lock()
	require.Equal(t, []string{"https://shop.example.com/thanks"}, log.redirects)
	require.Equal(t, []State{StateAwaitingSetup, StateAwaitingResult, StateSuccess}, log.transitions)
	require.Equal(t, []bool{true, false}, log.loading)
	log.mu.Unlock()

	require.ErrorIs(t, o.SelectPaymentMethod(ctx), ErrCompleted)

	// the session is terminal, later results change nothing
	cfg.ResultCallback(SessionResult{TransactionSetupID: "setup-1", Status: "FAILURE"})
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, StateSuccess, o.Snapshot().State)
}

func TestScenarioSessionExpiredRetriesOnce(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	fs := &fakeSetup{respond: func(n int, req setup.TransactionSetupRequest) (*setup.TransactionSetupResponse, error) {
		if n == 2 {
			<-gate
		}
		return okSetup(idFor(n)), nil
	}}
	fe := &fakeEmbedder{}
	o := newTestOrchestrator(t, fs, fe, testOptions(), Hooks{})

	require.NoError(t, o.SetBillingAddress(ctx, validBilling()))
	require.NoError(t, o.SelectPaymentMethod(ctx))
	expired := currentGeneration(o)

	o.applyResult(expired, SessionResult{TransactionSetupID: "setup-1", Status: "SESSION_EXPIRED"})
	require.Eventually(t, func() bool { return fs.calls() == 2 }, 2*time.Second, time.Millisecond)

	snap := o.Snapshot()
	require.Equal(t, StateAwaitingSetup, snap.State)
	require.True(t, snap.Loading)

	// a second expiry for the same session while the retry is pending
	o.applyResult(expired, SessionResult{TransactionSetupID: "setup-1", Status: "SESSION_EXPIRED"})
	o.HandleResult(SessionResult{TransactionSetupID: "setup-1", Status: "SESSION_EXPIRED"})

	close(gate)
	waitForState(t, o, StateAwaitingResult)

	snap = o.Snapshot()
	require.Equal(t, "setup-2", *snap.Response.TransactionSetupID)
	require.Equal(t, 1, snap.ExpiryRetries)
	require.False(t, snap.Loading)
	require.False(t, snap.Error)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 2, fs.calls())
	require.Equal(t, 2, fe.count())
	require.Equal(t, "setup-2", fe.last().TransactionSetupID)
}

func TestSessionExpiredAlertWhileRetrying(t *testing.T) {
	ctx := context.Background()
	fs := &fakeSetup{respond: alwaysOK}
	opts := testOptions()
	opts.RetryBaseDelay = time.Hour
	opts.RetryMaxDelay = time.Hour
	o := newTestOrchestrator(t, fs, &fakeEmbedder{}, opts, Hooks{})

	require.NoError(t, o.SetBillingAddress(ctx, validBilling()))
	require.NoError(t, o.SelectPaymentMethod(ctx))
	o.HandleResult(resultFor(o, "session-expired"))

	snap := o.Snapshot()
	require.Equal(t, StateSessionExpired, snap.State)
	require.Equal(t, models.PaymentStatusSessionExpired, snap.Status)
	require.Equal(t, models.AlertDanger, snap.Alert.Kind)
	require.Equal(t, 1, fs.calls())
}

func TestScenarioSetupTransportFailure(t *testing.T) {
	ctx := context.Background()
	fail := true
	var mu sync.Mutex
	fs := &fakeSetup{respond: func(n int, req setup.TransactionSetupRequest) (*setup.TransactionSetupResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, &setup.SetupError{Kind: setup.ErrTransport, StatusCode: 500}
		}
		return okSetup(idFor(n)), nil
	}}
	log := &hookLog{}
	o := newTestOrchestrator(t, fs, &fakeEmbedder{}, testOptions(), log.hooks())

	require.NoError(t, o.SetBillingAddress(ctx, validBilling()))
	require.NoError(t, o.SelectPaymentMethod(ctx))

	snap := o.Snapshot()
	require.Equal(t, StateFailure, snap.State)
	require.True(t, snap.Error)
	require.False(t, snap.Loading)
	require.Equal(t, models.PaymentStatusUnset, snap.Status)
	require.True(t, snap.MethodEnabled)
	require.Equal(t, models.AlertDanger, snap.Alert.Kind)

	log.mu.Lock()
	require.Equal(t, []bool{true, false}, log.loading)
	require.Equal(t, []bool{true}, log.errors)
	require.Len(t, log.attempts, 1)
	require.ErrorIs(t, log.attempts[0].Err, setup.ErrTransport)
	log.mu.Unlock()

	mu.Lock()
	fail = false
	mu.Unlock()

	require.NoError(t, o.SelectPaymentMethod(ctx))
	snap = o.Snapshot()
	require.Equal(t, StateAwaitingResult, snap.State)
	require.False(t, snap.Error)
	require.Nil(t, snap.Alert)
}

func TestMissingIdentifierFailsSetup(t *testing.T) {
	ctx := context.Background()
	fs := &fakeSetup{respond: func(int, setup.TransactionSetupRequest) (*setup.TransactionSetupResponse, error) {
		return &setup.TransactionSetupResponse{ExpressResponseCode: "103"}, setup.ErrMissingIdentifier
	}}
	fe := &fakeEmbedder{}
	o := newTestOrchestrator(t, fs, fe, testOptions(), Hooks{})

	require.NoError(t, o.SetBillingAddress(ctx, validBilling()))
	require.NoError(t, o.SelectPaymentMethod(ctx))

	snap := o.Snapshot()
	require.Equal(t, StateFailure, snap.State)
	require.True(t, snap.Error)
	require.Equal(t, "103", snap.Response.ExpressResponseCode)
	require.Zero(t, fe.count())
}

func TestOnlyLatestSetupIsApplied(t *testing.T) {
	ctx := context.Background()
	gates := []chan struct{}{make(chan struct{}), make(chan struct{})}
	fs := &fakeSetup{respond: func(n int, req setup.TransactionSetupRequest) (*setup.TransactionSetupResponse, error) {
		<-gates[n-1]
		return okSetup(idFor(n)), nil
	}}
	fe := &fakeEmbedder{}
	log := &hookLog{}
	o := newTestOrchestrator(t, fs, fe, testOptions(), log.hooks())
	require.NoError(t, o.SetBillingAddress(ctx, validBilling()))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, o.SelectPaymentMethod(ctx))
	}()
	require.Eventually(t, func() bool { return fs.calls() == 1 }, 2*time.Second, time.Millisecond)

	moved := validBilling()
	moved.Address1 = "500 Market St"
	second := make(chan struct{})
	go func() {
		defer close(second)
		assert.NoError(t, o.SetBillingAddress(ctx, moved))
	}()
	require.Eventually(t, func() bool { return fs.calls() == 2 }, 2*time.Second, time.Millisecond)
	require.Equal(t, "500 Market St", fs.request(1).BillingAddress.Address1)

	// the newer call settles first
	close(gates[1])
	<-second
	require.Equal(t, "setup-2", *o.Snapshot().Response.TransactionSetupID)
	require.True(t, o.Snapshot().Loading)

	close(gates[0])
	wg.Wait()

	snap := o.Snapshot()
	require.Equal(t, StateAwaitingResult, snap.State)
	require.Equal(t, "setup-2", *snap.Response.TransactionSetupID)
	require.False(t, snap.Loading)
	require.Equal(t, 1, fe.count())
	require.Equal(t, "setup-2", fe.last().TransactionSetupID)

	log.mu.Lock()
	defer log.mu.Unlock()
	require.Len(t, log.attempts, 2)
	require.False(t, log.attempts[0].Stale)
	require.True(t, log.attempts[1].Stale)
	require.Equal(t, []bool{true, false}, log.loading)
}

func TestResultForPreviousHostedSessionIsIgnored(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := &fakeSetup{respond: alwaysOK}
	fe := &fakeEmbedder{}
	o := newTestOrchestrator(t, fs, fe, testOptions(), Hooks{})
	go o.Run(ctx)

	require.NoError(t, o.SetBillingAddress(ctx, validBilling()))
	require.NoError(t, o.SelectPaymentMethod(ctx))

	moved := validBilling()
	moved.Address1 = "500 Market St"
	require.NoError(t, o.SetBillingAddress(ctx, moved))
	require.Equal(t, 2, fs.calls())
	current := fe.last()
	require.Equal(t, "setup-2", current.TransactionSetupID)

	// the page opened for setup-1 reports through the current callback
	current.ResultCallback(SessionResult{TransactionSetupID: "setup-1", Status: "FAILURE"})
	o.HandleResult(SessionResult{TransactionSetupID: "setup-1", Status: "SESSION_EXPIRED"})
	o.HandleResult(SessionResult{Status: "FAILURE"})
	time.Sleep(20 * time.Millisecond)

	snap := o.Snapshot()
	require.Equal(t, StateAwaitingResult, snap.State)
	require.True(t, snap.MethodSelected)
	require.Equal(t, "setup-2", *snap.Response.TransactionSetupID)
	require.Equal(t, 2, fs.calls())

	current.ResultCallback(SessionResult{TransactionSetupID: "setup-2", Status: "SUCCESS", TransactionID: "tx-7"})
	waitForState(t, o, StateSuccess)
	require.Equal(t, "tx-7", o.Snapshot().TransactionID)
}

func TestLoadingClearsOnceSetupSettles(t *testing.T) {
	ctx := context.Background()
	fail := false
	var mu sync.Mutex
	fs := &fakeSetup{respond: func(n int, req setup.TransactionSetupRequest) (*setup.TransactionSetupResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		if fail {
			return nil, &setup.SetupError{Kind: setup.ErrTransport, StatusCode: 502}
		}
		return okSetup(idFor(n)), nil
	}}

	var o *Orchestrator
	var seen []Snapshot
	hooks := Hooks{Loading: func(v bool) {
		if !v {
			seen = append(seen, o.Snapshot())
		}
	}}
	o = newTestOrchestrator(t, fs, &fakeEmbedder{}, testOptions(), hooks)

	require.NoError(t, o.SetBillingAddress(ctx, validBilling()))
	require.NoError(t, o.SelectPaymentMethod(ctx))

	mu.Lock()
	fail = true
	mu.Unlock()
	require.NoError(t, o.SelectPaymentMethod(ctx))

	require.Len(t, seen, 2)
	require.False(t, seen[0].Loading)
	require.Equal(t, StateAwaitingResult, seen[0].State)
	require.NotNil(t, seen[0].Response)
	require.False(t, seen[1].Loading)
	require.Equal(t, StateFailure, seen[1].State)
	require.True(t, seen[1].Error)
}

func TestDeclinedResultResetsSession(t *testing.T) {
	ctx := context.Background()
	for _, code := range []string{"FAILURE", "ERROR", "EXCEPTION"} {
		t.Run(code, func(t *testing.T) {
			o := newTestOrchestrator(t, &fakeSetup{respond: alwaysOK}, &fakeEmbedder{}, testOptions(), Hooks{})
			require.NoError(t, o.SetBillingAddress(ctx, validBilling()))
			require.NoError(t, o.SelectPaymentMethod(ctx))

			o.HandleResult(resultFor(o, code))

			snap := o.Snapshot()
			require.Equal(t, StateFailure, snap.State)
			require.Equal(t, models.PaymentStatusUnset, snap.Status)
			require.Nil(t, snap.Response)
			require.False(t, snap.MethodSelected)
			require.False(t, snap.Error)
			require.True(t, snap.MethodEnabled)
			require.Equal(t, models.AlertDanger, snap.Alert.Kind)
			require.Contains(t, snap.Alert.Text, "card")

			require.NoError(t, o.SelectPaymentMethod(ctx))
			require.Equal(t, StateAwaitingResult, o.Snapshot().State)
			require.Nil(t, o.Snapshot().Alert)
		})
	}
}

func TestUnknownResultIsIgnored(t *testing.T) {
	ctx := context.Background()
	o := newTestOrchestrator(t, &fakeSetup{respond: alwaysOK}, &fakeEmbedder{}, testOptions(), Hooks{})
	require.NoError(t, o.SetBillingAddress(ctx, validBilling()))
	require.NoError(t, o.SelectPaymentMethod(ctx))

	o.HandleResult(resultFor(o, "PENDING"))
	require.Equal(t, StateAwaitingResult, o.Snapshot().State)
}

func TestReset(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fe := &fakeEmbedder{}
	o := newTestOrchestrator(t, &fakeSetup{respond: alwaysOK}, fe, testOptions(), Hooks{})
	go o.Run(ctx)

	require.NoError(t, o.SetBillingAddress(ctx, validBilling()))
	require.NoError(t, o.SelectPaymentMethod(ctx))
	stale := fe.last()

	o.Reset()
	snap := o.Snapshot()
	require.Equal(t, StateIdle, snap.State)
	require.Equal(t, models.PaymentStatusUnset, snap.Status)
	require.Nil(t, snap.Response)
	require.False(t, snap.Error)
	require.False(t, snap.MethodSelected)
	require.False(t, snap.MethodEnabled)
	require.ErrorIs(t, o.SelectPaymentMethod(ctx), ErrPaymentMethodDisabled)

	stale.ResultCallback(SessionResult{TransactionSetupID: stale.TransactionSetupID, Status: "SUCCESS"})
	time.Sleep(10 * time.Millisecond)
	require.Equal(t, StateIdle, o.Snapshot().State)

	// resetting twice is harmless
	o.Reset()
	require.Equal(t, StateIdle, o.Snapshot().State)

	require.NoError(t, o.SetBillingAddress(ctx, validBilling()))
	require.True(t, o.PaymentMethodEnabled())
}

func TestCloseDropsLateResults(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	fs := &fakeSetup{respond: func(n int, req setup.TransactionSetupRequest) (*setup.TransactionSetupResponse, error) {
		<-gate
		return okSetup(idFor(n)), nil
	}}
	fe := &fakeEmbedder{}
	o := newTestOrchestrator(t, fs, fe, testOptions(), Hooks{})
	require.NoError(t, o.SetBillingAddress(ctx, validBilling()))

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, o.SelectPaymentMethod(ctx))
	}()
	require.Eventually(t, func() bool { return fs.calls() == 1 }, 2*time.Second, time.Millisecond)

	o.Close()
	close(gate)
	<-done

	snap := o.Snapshot()
	require.Equal(t, StateAwaitingSetup, snap.State)
	require.Nil(t, snap.Response)
	require.Zero(t, fe.count())

	require.ErrorIs(t, o.SelectPaymentMethod(ctx), ErrClosed)
	require.ErrorIs(t, o.SetBillingAddress(ctx, validBilling()), ErrClosed)
	require.NoError(t, o.Run(ctx))

	select {
	case <-o.Done():
	default:
		t.Fatal("done channel not closed")
	}
	o.Close()
}

func TestExpiryRetriesAreBounded(t *testing.T) {
	ctx := context.Background()
	fs := &fakeSetup{respond: alwaysOK}
	opts := testOptions()
	opts.MaxExpiryRetries = 2
	o := newTestOrchestrator(t, fs, &fakeEmbedder{}, opts, Hooks{})

	require.NoError(t, o.SetBillingAddress(ctx, validBilling()))
	require.NoError(t, o.SelectPaymentMethod(ctx))

	for i := 1; i <= 2; i++ {
		o.HandleResult(resultFor(o, "SESSION_EXPIRED"))
		want := i + 1
		require.Eventually(t, func() bool {
			return fs.calls() == want && o.Snapshot().State == StateAwaitingResult
		}, 2*time.Second, time.Millisecond)
	}

	o.HandleResult(resultFor(o, "SESSION_EXPIRED"))
	snap := o.Snapshot()
	require.Equal(t, StateFailure, snap.State)
	require.True(t, snap.Error)
	require.Equal(t, 2, snap.ExpiryRetries)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 3, fs.calls())

	// a new selection starts a fresh retry budget
	require.NoError(t, o.SelectPaymentMethod(ctx))
	require.Equal(t, 0, o.Snapshot().ExpiryRetries)
}

func TestEmbedderFailure(t *testing.T) {
	ctx := context.Background()
	fe := &fakeEmbedder{err: errors.New("frame unavailable")}
	o := newTestOrchestrator(t, &fakeSetup{respond: alwaysOK}, fe, testOptions(), Hooks{})

	require.NoError(t, o.SetBillingAddress(ctx, validBilling()))
	require.NoError(t, o.SelectPaymentMethod(ctx))

	snap := o.Snapshot()
	require.Equal(t, StateFailure, snap.State)
	require.True(t, snap.Error)
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	limit := time.Second
	require.Equal(t, time.Duration(0), backoff(1, 0, limit))
	require.Equal(t, 100*time.Millisecond, backoff(1, base, limit))
	require.Equal(t, 200*time.Millisecond, backoff(2, base, limit))
	require.Equal(t, 400*time.Millisecond, backoff(3, base, limit))
	require.Equal(t, 800*time.Millisecond, backoff(4, base, limit))
	require.Equal(t, time.Second, backoff(5, base, limit))
	require.Equal(t, time.Second, backoff(30, base, limit))
}
