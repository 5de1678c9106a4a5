package checkout

import (
	"checkout/internal/models"
	"checkout/internal/payment/express/setup"
)

type State string

const (
	StateIdle           State = "IDLE"
	StateAwaitingSetup  State = "AWAITING_SETUP"
	StateAwaitingResult State = "AWAITING_RESULT"
	StateSuccess        State = "SUCCESS"
	StateFailure        State = "FAILURE"
	StateSessionExpired State = "SESSION_EXPIRED"
)

func (s State) awaiting() bool {
	return s == StateAwaitingSetup || s == StateAwaitingResult
}

// Snapshot is a read-only copy of a session record.
type Snapshot struct {
	SessionID       string                          `json:"sessionId"`
	State           State                           `json:"state"`
	Status          models.PaymentStatus            `json:"status"`
	Loading         bool                            `json:"loading"`
	Error           bool                            `json:"error"`
	MethodSelected  bool                            `json:"methodSelected"`
	MethodEnabled   bool                            `json:"methodEnabled"`
	Alert           *models.AlertMessage            `json:"alert,omitempty"`
	Response        *setup.TransactionSetupResponse `json:"response,omitempty"`
	TransactionID   string                          `json:"transactionId,omitempty"`
	RedirectURL     string                          `json:"redirectUrl,omitempty"`
	ExpiryRetries   int                             `json:"expiryRetries"`
	BillingAddress  *models.BillingAddress          `json:"billingAddress,omitempty"`
	ShippingAddress *models.ShippingAddress         `json:"shippingAddress,omitempty"`
}
