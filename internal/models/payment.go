package models

import "strings"

// PaymentStatus is the outcome reported by the hosted payment page.
type PaymentStatus string

const (
	PaymentStatusUnset          PaymentStatus = "UNSET"
	PaymentStatusSuccess        PaymentStatus = "SUCCESS"
	PaymentStatusFailure        PaymentStatus = "FAILURE"
	PaymentStatusError          PaymentStatus = "ERROR"
	PaymentStatusException      PaymentStatus = "EXCEPTION"
	PaymentStatusSessionExpired PaymentStatus = "SESSION_EXPIRED"
)

var gatewayStatusCodes = map[string]PaymentStatus{
	"SUCCESS":         PaymentStatusSuccess,
	"FAILURE":         PaymentStatusFailure,
	"ERROR":           PaymentStatusError,
	"EXCEPTION":       PaymentStatusException,
	"SESSION_EXPIRED": PaymentStatusSessionExpired,
	"SESSIONEXPIRED":  PaymentStatusSessionExpired,
}

// ParsePaymentStatus maps a gateway status code. Matching ignores case and
// treats '-' and ' ' like '_'. Unknown codes map to PaymentStatusUnset.
func ParsePaymentStatus(code string) PaymentStatus {
	norm := strings.ToUpper(strings.TrimSpace(code))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	if s, ok := gatewayStatusCodes[norm]; ok {
		return s
	}
	return PaymentStatusUnset
}

// IsDeclined reports whether the status ends the current attempt without
// a retry.
func (s PaymentStatus) IsDeclined() bool {
	switch s {
	case PaymentStatusFailure, PaymentStatusError, PaymentStatusException:
		return true
	}
	return false
}
