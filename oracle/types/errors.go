package types

import (
	"fmt"
	"strings"

	errorsmod "cosmossdk.io/errors"
)

const ModuleName = "ondemand"

// errors
var (
	ErrNotFound       = errorsmod.Register(ModuleName, 2, "account not found")
	ErrDeserialize    = errorsmod.Register(ModuleName, 3, "malformed payload")
	ErrNoQuotes       = errorsmod.Register(ModuleName, 4, "no oracle returned a usable value")
	ErrInvalidIndex   = errorsmod.Register(ModuleName, 5, "lookup table index out of active range")
	ErrTransport      = errorsmod.Register(ModuleName, 6, "transport failure")
	ErrInactiveTable  = errorsmod.Register(ModuleName, 7, "lookup table is not active")
	ErrInvalidRequest = errorsmod.Register(ModuleName, 8, "invalid request")
)

// NoQuotesError is returned when a gateway round trip produced no parsable
// value. Errors holds whatever each oracle reported.
type NoQuotesError struct {
	Errors []string
}

func (e *NoQuotesError) Error() string {
	return fmt.Sprintf("%s: [%s]", ErrNoQuotes.Error(), strings.Join(e.Errors, "; "))
}

func (e *NoQuotesError) Unwrap() error {
	return ErrNoQuotes
}
