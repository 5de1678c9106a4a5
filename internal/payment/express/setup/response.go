package setup

import (
	"strings"

	"checkout/internal/utility/xmltree"
)

const responseRoot = "TransactionSetupResponse"

// parseResponse converts the gateway body. The returned response is filled as
// far as the document allows, even when an error is returned.
func (c *Client) parseResponse(body string) (*TransactionSetupResponse, error) {
	doc, err := xmltree.Parse(strings.NewReader(body))
	if err != nil {
		return nil, newSetupError(ErrMalformedResponse, err)
	}

	tree := xmltree.Convert(doc)
	resp := &TransactionSetupResponse{Raw: tree}

	if _, ok := xmltree.Lookup(tree, responseRoot, "Response"); !ok {
		return resp, newSetupError(ErrMalformedResponse, nil)
	}

	resp.ExpressResponseCode, _ = xmltree.LookupString(tree, responseRoot, "Response", "ExpressResponseCode")
	resp.ExpressResponseMessage, _ = xmltree.LookupString(tree, responseRoot, "Response", "ExpressResponseMessage")

	id, ok := xmltree.LookupString(tree, responseRoot, "Response", "TransactionSetup", "TransactionSetupID")
	if !ok || id == "" {
		return resp, newSetupError(ErrMissingIdentifier, nil)
	}

	url := c.hostedPaymentsURL + "?TransactionSetupID=" + id
	resp.TransactionSetupID = &id
	resp.TransactionSetupURL = &url

	return resp, nil
}
