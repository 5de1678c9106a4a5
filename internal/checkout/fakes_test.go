package checkout

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"checkout/internal/models"
	"checkout/internal/payment/express"
	"checkout/internal/payment/express/setup"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeSetup struct {
	mu       sync.Mutex
	requests []setup.TransactionSetupRequest
	respond  func(n int, req setup.TransactionSetupRequest) (*setup.TransactionSetupResponse, error)
}

func (f *fakeSetup) SetupSession(ctx context.Context, req setup.TransactionSetupRequest, signals setup.Signals) (*setup.TransactionSetupResponse, error) {
	if signals.Loading != nil {
		signals.Loading(true)
	}
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n := len(f.requests)
	f.mu.Unlock()

	resp, err := f.respond(n, req)
	if err != nil && signals.Error != nil {
		signals.Error(true)
	}
	if signals.Loading != nil {
		signals.Loading(false)
	}
	return resp, err
}

func (f *fakeSetup) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeSetup) request(i int) setup.TransactionSetupRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[i]
}

func okSetup(id string) *setup.TransactionSetupResponse {
	url := "https://certtransaction.hostedpayments.com/?TransactionSetupID=" + id
	return &setup.TransactionSetupResponse{
		TransactionSetupID:  &id,
		TransactionSetupURL: &url,
		ExpressResponseCode: "0",
	}
}

func alwaysOK(n int, _ setup.TransactionSetupRequest) (*setup.TransactionSetupResponse, error) {
	return okSetup(idFor(n)), nil
}

func idFor(n int) string {
	return fmt.Sprintf("setup-%d", n)
}

// resultFor builds a hosted page result for the session's current setup.
func resultFor(o *Orchestrator, status string) SessionResult {
	r := SessionResult{Status: status}
	if resp := o.Snapshot().Response; resp != nil && resp.TransactionSetupID != nil {
		r.TransactionSetupID = *resp.TransactionSetupID
	}
	return r
}

type fakeEmbedder struct {
	mu      sync.Mutex
	configs []EmbedConfig
	err     error
}

func (f *fakeEmbedder) Setup(_ context.Context, cfg EmbedConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
	return f.err
}

func (f *fakeEmbedder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.configs)
}

func (f *fakeEmbedder) last() EmbedConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configs[len(f.configs)-1]
}

type hookLog struct {
	mu          sync.Mutex
	loading     []bool
	errors      []bool
	redirects   []string
	transitions []State
	attempts    []SetupAttempt
}

func (h *hookLog) hooks() Hooks {
	return Hooks{
		Loading: func(v bool) { h.mu.Lock(); h.loading = append(h.loading, v); h.mu.Unlock() },
		Error:   func(v bool) { h.mu.Lock(); h.errors = append(h.errors, v); h.mu.Unlock() },
		Redirect: func(url string) {
			h.mu.Lock()
			h.redirects = append(h.redirects, url)
			h.mu.Unlock()
		},
		Transition: func(_, to State) { h.mu.Lock(); h.transitions = append(h.transitions, to); h.mu.Unlock() },
		Setup:      func(a SetupAttempt) { h.mu.Lock(); h.attempts = append(h.attempts, a); h.mu.Unlock() },
	}
}

func testOptions() Options {
	return Options{
		SessionID:   "sess-1",
		Amount:      decimal.RequireFromString("25.00"),
		ReferenceID: "ORDER-77",
		Credentials: express.Credentials{
			AccountID:    "1048",
			AccountToken: "token",
			AcceptorID:   "3928907",
		},
		ReturnURL:          "https://shop.example.com/return",
		SuccessRedirectURL: "https://shop.example.com/thanks",
		RetryBaseDelay:     time.Millisecond,
		RetryMaxDelay:      4 * time.Millisecond,
	}
}

func newTestOrchestrator(t *testing.T, fs *fakeSetup, fe *fakeEmbedder, opts Options, hooks Hooks) *Orchestrator {
	t.Helper()
	o := New(fs, fe, opts, hooks, nil)
	t.Cleanup(o.Close)
	return o
}

func validBilling() *models.BillingAddress {
	return &models.BillingAddress{
		Address1: "123 Main St",
		City:     "Denver",
		State:    "CO",
		Zipcode:  "80202",
	}
}

func currentGeneration(o *Orchestrator) uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

func waitForState(t *testing.T, o *Orchestrator, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return o.Snapshot().State == want
	}, 2*time.Second, time.Millisecond, "state never became %s", want)
}
