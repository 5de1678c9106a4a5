package express

import (
	"os"
)

const (
	// ProdHostUrl Production transaction endpoint
	ProdHostUrl = "https://transaction.elementexpress.com/"

	// CertHostUrl Certification/Sandbox transaction endpoint
	CertHostUrl = "https://certtransaction.elementexpress.com/"

	// ProdHostedPaymentsUrl Production hosted payments page
	ProdHostedPaymentsUrl = "https://transaction.hostedpayments.com/"

	// CertHostedPaymentsUrl Certification hosted payments page
	CertHostedPaymentsUrl = "https://certtransaction.hostedpayments.com/"
)

func isProduction() bool {
	return os.Getenv("EXPRESS_ENV") == "production"
}

func GetBaseEndpoint() string {
	if isProduction() {
		return ProdHostUrl
	}
	return CertHostUrl
}

func GetHostedPaymentsEndpoint() string {
	if isProduction() {
		return ProdHostedPaymentsUrl
	}
	return CertHostedPaymentsUrl
}

// Credentials identify the merchant towards the gateway.
type Credentials struct {
	AccountID    string
	AccountToken string
	AcceptorID   string
}

// CredentialsFromEnv reads EXPRESS_ACCOUNT_ID, EXPRESS_ACCOUNT_TOKEN and
// EXPRESS_ACCEPTOR_ID.
func CredentialsFromEnv() Credentials {
	return Credentials{
		AccountID:    os.Getenv("EXPRESS_ACCOUNT_ID"),
		AccountToken: os.Getenv("EXPRESS_ACCOUNT_TOKEN"),
		AcceptorID:   os.Getenv("EXPRESS_ACCEPTOR_ID"),
	}
}

func (c Credentials) Complete() bool {
	return c.AccountID != "" && c.AccountToken != "" && c.AcceptorID != ""
}
