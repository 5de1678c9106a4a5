package setup

import "checkout/internal/models"

// ApplicationID is the identifier issued for this integration.
const ApplicationID = "10431"

type Styling struct {
	LogoURL     string `json:"logoUrl,omitempty"`
	CustomCSS   string `json:"customCss,omitempty"`
	Embedded    bool   `json:"embedded"`
	Title       string `json:"title,omitempty"`
	Tagline     string `json:"tagline,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
}

type TransactionSetupRequest struct {
	Amount          string `validate:"required"`
	ReturnURL       string
	AccountID       string `validate:"required"`
	AccountToken    string `validate:"required"`
	AcceptorID      string `validate:"required"`
	ReferenceNumber string
	Styling         Styling
	BillingAddress  *models.BillingAddress
}

type TransactionSetupResponse struct {
	TransactionSetupID     *string `json:"transactionSetupId"`
	TransactionSetupURL    *string `json:"transactionSetupUrl"`
	ExpressResponseCode    string  `json:"expressResponseCode,omitempty"`
	ExpressResponseMessage string  `json:"expressResponseMessage,omitempty"`
	// Raw is the converted response document, kept for diagnostics.
	Raw any `json:"-"`
}

// Signals are the caller's observers for a single SetupSession call. Loading
// is raised first and lowered last; Error is raised only when the call fails.
type Signals struct {
	Loading func(bool)
	Error   func(bool)
}

func (s Signals) loading(v bool) {
	if s.Loading != nil {
		s.Loading(v)
	}
}

func (s Signals) failed() {
	if s.Error != nil {
		s.Error(true)
	}
}
