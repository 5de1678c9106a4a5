package models

type AlertKind string

const (
	AlertSuccess AlertKind = "SUCCESS"
	AlertDanger  AlertKind = "DANGER"
)

type AlertMessage struct {
	Kind AlertKind `json:"kind"`
	Text string    `json:"text"`
}

const (
	alertPaymentComplete = "Your payment was completed successfully."
	alertSetupFailed     = "We could not start the payment session. Please try again."
	alertCardError       = "There was a problem processing your card. Please review your details and try again."
	alertSessionExpired  = "Your payment session expired. The payment form is being reloaded."
)

// AlertFor derives the banner to show from the last reported status and the
// setup error flag. It returns nil when nothing should be shown.
func AlertFor(status PaymentStatus, errored bool) *AlertMessage {
	switch {
	case status == PaymentStatusSuccess:
		return &AlertMessage{Kind: AlertSuccess, Text: alertPaymentComplete}
	case errored:
		return &AlertMessage{Kind: AlertDanger, Text: alertSetupFailed}
	case status == PaymentStatusSessionExpired:
		return &AlertMessage{Kind: AlertDanger, Text: alertSessionExpired}
	case status.IsDeclined():
		return &AlertMessage{Kind: AlertDanger, Text: alertCardError}
	}
	return nil
}
