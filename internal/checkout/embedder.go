package checkout

import (
	"context"

	"checkout/internal/payment/express/setup"
)

// SessionSetup obtains hosted payment sessions. *setup.Client satisfies it.
type SessionSetup interface {
	SetupSession(ctx context.Context, payload setup.TransactionSetupRequest, signals setup.Signals) (*setup.TransactionSetupResponse, error)
}

// SessionResult is the notification the hosted page sends once the shopper
// finished (or abandoned) the payment form. TransactionSetupID names the
// hosted session the page was opened for; results for any other session are
// ignored.
type SessionResult struct {
	TransactionSetupID string `json:"transactionSetupId" validate:"required"`
	Status             string `json:"status" validate:"required"`
	TransactionID      string `json:"transactionId,omitempty"`
	Message            string `json:"message,omitempty"`
}

type EmbedConfig struct {
	URL                string
	TransactionSetupID string
	Target             string
	// ResultCallback may be called from any goroutine, any number of times.
	ResultCallback func(SessionResult)
}

// PaymentEmbedder mounts the hosted payment page for a session.
type PaymentEmbedder interface {
	Setup(ctx context.Context, cfg EmbedConfig) error
}
