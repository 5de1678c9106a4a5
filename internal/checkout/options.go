package checkout

import (
	"time"

	"checkout/internal/payment/express"
	"checkout/internal/payment/express/setup"

	"github.com/shopspring/decimal"
)

const (
	DefaultMaxExpiryRetries = 3
	DefaultRetryBaseDelay   = 500 * time.Millisecond
	DefaultRetryMaxDelay    = 5 * time.Second
)

type Options struct {
	SessionID          string
	Amount             decimal.Decimal
	ReferenceID        string
	Credentials        express.Credentials
	ReturnURL          string
	Styling            setup.Styling
	SuccessRedirectURL string
	// EmbedTarget defaults to SessionID.
	EmbedTarget     string
	RequireShipping bool

	MaxExpiryRetries int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
}

func (o Options) withDefaults() Options {
	if o.EmbedTarget == "" {
		o.EmbedTarget = o.SessionID
	}
	if o.MaxExpiryRetries == 0 {
		o.MaxExpiryRetries = DefaultMaxExpiryRetries
	}
	if o.RetryBaseDelay == 0 {
		o.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if o.RetryMaxDelay == 0 {
		o.RetryMaxDelay = DefaultRetryMaxDelay
	}
	return o
}

// SetupAttempt describes one finished setup call.
type SetupAttempt struct {
	SessionID  string
	Generation uint64
	Retry      int
	Response   *setup.TransactionSetupResponse
	Err        error
	// Stale is set when a newer setup had already been started.
	Stale bool
}

// Hooks observe the orchestrator. Any of them may be nil. They are invoked
// without internal locks held, so they may call back into the orchestrator.
type Hooks struct {
	Loading    func(bool)
	Error      func(bool)
	Redirect   func(url string)
	Transition func(from, to State)
	Setup      func(SetupAttempt)
	Completed  func(Snapshot)
}
