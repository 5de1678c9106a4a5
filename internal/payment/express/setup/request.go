package setup

import (
	"fmt"

	"checkout/internal/utility/xmltemplate"

	"github.com/go-playground/validator"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

const baseTemplateXML = `<?xml version="1.0" encoding="utf-8"?>
<TransactionSetup xmlns="https://transaction.elementexpress.com">
  <Credentials>
    <AccountID></AccountID>
    <AccountToken></AccountToken>
    <AcceptorID></AcceptorID>
  </Credentials>
  <Application>
    <ApplicationID></ApplicationID>
    <ApplicationName>checkout</ApplicationName>
    <ApplicationVersion>1.0</ApplicationVersion>
  </Application>
  <TransactionSetup>
    <TransactionSetupMethod>1</TransactionSetupMethod>
    <Embedded></Embedded>
    <AutoReturn>1</AutoReturn>
    <ReturnURL></ReturnURL>
    <CompanyName></CompanyName>
    <LogoURL></LogoURL>
    <Tagline></Tagline>
    <WelcomeMessage></WelcomeMessage>
    <HostedCustomization></HostedCustomization>
  </TransactionSetup>
  <Transaction>
    <TransactionAmount></TransactionAmount>
    <MarketCode>3</MarketCode>
    <ReferenceNumber></ReferenceNumber>
  </Transaction>
  <Terminal>
    <TerminalID>01</TerminalID>
    <CardholderPresentCode>7</CardholderPresentCode>
    <CardInputCode>4</CardInputCode>
    <TerminalCapabilityCode>5</TerminalCapabilityCode>
    <TerminalEnvironmentCode>6</TerminalEnvironmentCode>
    <CardPresentCode>3</CardPresentCode>
    <MotoECICode>7</MotoECICode>
  </Terminal>
  <Address>
    <BillingAddress1></BillingAddress1>
    <BillingAddress2></BillingAddress2>
    <BillingCity></BillingCity>
    <BillingState></BillingState>
    <BillingZipcode></BillingZipcode>
    <BillingEmail></BillingEmail>
    <BillingPhone></BillingPhone>
  </Address>
</TransactionSetup>`

var baseTemplate = mustParseTemplate(baseTemplateXML)

func mustParseTemplate(src string) *xmltemplate.Template {
	tpl, err := xmltemplate.Parse(src)
	if err != nil {
		panic(fmt.Sprintf("setup: base template: %v", err))
	}
	return tpl
}

// parseAmount accepts a positive decimal and formats it with two places.
func parseAmount(amount string) (string, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return "", fmt.Errorf("amount %q: %w", amount, err)
	}
	if !d.IsPositive() {
		return "", fmt.Errorf("amount %s must be greater than zero", d.String())
	}
	return d.StringFixed(2), nil
}

func buildRequestBody(payload TransactionSetupRequest) (string, error) {
	if err := validate.Struct(payload); err != nil {
		return "", err
	}

	amount, err := parseAmount(payload.Amount)
	if err != nil {
		return "", err
	}

	embedded := "0"
	if payload.Styling.Embedded {
		embedded = "1"
	}

	// every tag is set so that absent optional fields render empty
	updates := map[string]string{
		"TransactionAmount":   amount,
		"AccountID":           payload.AccountID,
		"AccountToken":        payload.AccountToken,
		"AcceptorID":          payload.AcceptorID,
		"ApplicationID":       ApplicationID,
		"ReturnURL":           payload.ReturnURL,
		"HostedCustomization": payload.Styling.CustomCSS,
		"Embedded":            embedded,
		"LogoURL":             payload.Styling.LogoURL,
		"WelcomeMessage":      payload.Styling.Title,
		"Tagline":             payload.Styling.Tagline,
		"CompanyName":         payload.Styling.CompanyName,
		"ReferenceNumber":     payload.ReferenceNumber,
	}

	if addr := payload.BillingAddress; addr != nil {
		updates["BillingAddress1"] = addr.Address1
		updates["BillingAddress2"] = addr.Address2
		updates["BillingCity"] = addr.City
		updates["BillingState"] = addr.State
		updates["BillingZipcode"] = addr.Zipcode
		updates["BillingEmail"] = addr.Email
		updates["BillingPhone"] = addr.Phone
	}

	return baseTemplate.Render(updates), nil
}
