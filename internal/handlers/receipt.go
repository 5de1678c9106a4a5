package handlers

import (
	"fmt"
	"strings"

	"checkout/internal/checkout"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func receiptMessage(snap checkout.Snapshot, amount decimal.Decimal, reference string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your payment of %s.\r\n\r\n", amount.StringFixed(2))
	fmt.Fprintf(&b, "Order reference: %s\r\n", reference)
	if snap.TransactionID != "" {
		fmt.Fprintf(&b, "Transaction: %s\r\n", snap.TransactionID)
	}
	if addr := snap.BillingAddress; addr != nil {
		fmt.Fprintf(&b, "\r\nBilled to:\r\n%s %s\r\n%s, %s %s\r\n",
			addr.Address1, addr.Address2, addr.City, addr.State, addr.Zipcode)
	}
	return b.String()
}

func (api *CheckoutAPI) sendReceipt(snap checkout.Snapshot, amount decimal.Decimal, reference string) {
	if api.mailer == nil || !api.mailer.Configured() {
		return
	}
	if snap.BillingAddress == nil || snap.BillingAddress.Email == "" {
		return
	}

	err := api.mailer.SendMail(receiptMessage(snap, amount, reference), snap.BillingAddress.Email, "Your payment receipt")
	if err != nil {
		api.logger.Warn("Failed to send receipt", zap.Error(err), zap.String("session_id", snap.SessionID))
		return
	}
	api.logger.Info("Receipt sent", zap.String("session_id", snap.SessionID))
}
