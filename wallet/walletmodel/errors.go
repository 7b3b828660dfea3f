package walletmodel

import (
	"github.com/pkt-cash/pldwallet/btcutil/er"
)

var Err er.ErrorType = er.NewErrorType("walletmodel.Err")

var (
	// ErrMissingField is returned when a required field is absent or has the
	// wrong JSON type. The field name is the error info.
	ErrMissingField = Err.CodeWithDetail("ErrMissingField",
		"required field missing or of the wrong type")

	// ErrUnrecognizedType is returned for an unknown discriminator or enum value.
	ErrUnrecognizedType = Err.CodeWithDetail("ErrUnrecognizedType",
		"unrecognized type")

	ErrMalformedHex = Err.CodeWithDetail("ErrMalformedHex",
		"field is not valid hex")

	ErrMalformedJSON = Err.CodeWithDetail("ErrMalformedJSON",
		"payload is not valid JSON")
)

// MissingField creates an ErrMissingField naming the field.
func MissingField(name string) er.R {
	return ErrMissingField.New(name, nil)
}

// UnrecognizedType creates an ErrUnrecognizedType naming the value.
func UnrecognizedType(value string) er.R {
	return ErrUnrecognizedType.New(value, nil)
}

// MissingFieldName returns the field named by an ErrMissingField.
func MissingFieldName(err er.R) (string, bool) {
	return ErrMissingField.Info(err)
}
