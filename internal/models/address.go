package models

import (
	"encoding/json"

	"github.com/go-playground/validator"
)

var validate = validator.New()

var (
	billingRequiredFields  = []string{"billingAddress1", "billingCity", "billingState", "billingZipcode"}
	shippingRequiredFields = []string{"shippingAddress1", "shippingCity", "shippingState", "shippingZipcode"}
)

type BillingAddress struct {
	Address1 string `json:"billingAddress1" bson:"address1" validate:"required"`
	Address2 string `json:"billingAddress2,omitempty" bson:"address2,omitempty"`
	Email    string `json:"billingEmail,omitempty" bson:"email,omitempty"`
	Phone    string `json:"billingPhone,omitempty" bson:"phone,omitempty"`
	City     string `json:"billingCity" bson:"city" validate:"required"`
	State    string `json:"billingState" bson:"state" validate:"required"`
	Zipcode  string `json:"billingZipcode" bson:"zipcode" validate:"required"`
}

type ShippingAddress struct {
	Address1 string `json:"shippingAddress1" bson:"address1" validate:"required"`
	Address2 string `json:"shippingAddress2,omitempty" bson:"address2,omitempty"`
	Email    string `json:"shippingEmail,omitempty" bson:"email,omitempty"`
	Phone    string `json:"shippingPhone,omitempty" bson:"phone,omitempty"`
	City     string `json:"shippingCity" bson:"city" validate:"required"`
	State    string `json:"shippingState" bson:"state" validate:"required"`
	Zipcode  string `json:"shippingZipcode" bson:"zipcode" validate:"required"`
}

// Valid reports whether all mandatory fields are filled in.
func (a BillingAddress) Valid() bool {
	return validate.Struct(a) == nil
}

// Valid reports whether all mandatory fields are filled in.
func (a ShippingAddress) Valid() bool {
	return validate.Struct(a) == nil
}

// IsValidBillingAddress checks a decoded JSON object: every mandatory field
// must be present as a non-empty string. A numeric zipcode does not count.
func IsValidBillingAddress(data map[string]any) bool {
	return hasStringFields(data, billingRequiredFields)
}

// IsValidShippingAddress is IsValidBillingAddress for shipping records.
func IsValidShippingAddress(data map[string]any) bool {
	return hasStringFields(data, shippingRequiredFields)
}

// ParseBillingAddress decodes a serialized billing address. Malformed JSON and
// partial records are reported as absent rather than as errors.
func ParseBillingAddress(raw []byte) (BillingAddress, bool) {
	var addr BillingAddress
	if !decodeValid(raw, &addr, IsValidBillingAddress) {
		return BillingAddress{}, false
	}
	return addr, true
}

// ParseShippingAddress decodes a serialized shipping address, see
// ParseBillingAddress.
func ParseShippingAddress(raw []byte) (ShippingAddress, bool) {
	var addr ShippingAddress
	if !decodeValid(raw, &addr, IsValidShippingAddress) {
		return ShippingAddress{}, false
	}
	return addr, true
}

func decodeValid(raw []byte, dst any, valid func(map[string]any) bool) bool {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil || !valid(data) {
		return false
	}
	// optional fields of the wrong type make the record unusable as well
	return json.Unmarshal(raw, dst) == nil
}

func hasStringFields(data map[string]any, fields []string) bool {
	if data == nil {
		return false
	}
	for _, f := range fields {
		s, ok := data[f].(string)
		if !ok || s == "" {
			return false
		}
	}
	return true
}
