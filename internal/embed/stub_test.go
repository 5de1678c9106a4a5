package embed

import (
	"context"
	"fmt"
	"sync/atomic"

	"checkout/internal/models"
	"checkout/internal/payment/express/setup"
)

// stubSetup hands out relay-1, relay-2, ... on successive calls.
type stubSetup struct {
	calls atomic.Int32
}

func (s *stubSetup) SetupSession(_ context.Context, _ setup.TransactionSetupRequest, _ setup.Signals) (*setup.TransactionSetupResponse, error) {
	id := fmt.Sprintf("relay-%d", s.calls.Add(1))
	url := "https://certtransaction.hostedpayments.com/?TransactionSetupID=" + id
	return &setup.TransactionSetupResponse{TransactionSetupID: &id, TransactionSetupURL: &url}, nil
}

func validBilling() *models.BillingAddress {
	return &models.BillingAddress{Address1: "123 Main St", City: "Denver", State: "CO", Zipcode: "80202"}
}
