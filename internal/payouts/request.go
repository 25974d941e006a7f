package payouts

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/dfaith-labs/payout-service/pkg/errors"
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// SubmitParams is a validated payout request.
type SubmitParams struct {
	Amount             decimal.Decimal
	DestinationAddress string
}

// NewSubmitParams validates a raw intake payload. Pure; no side effects.
// Rules are applied in order: presence, amount, address format.
func NewSubmitParams(amount, destinationAddress string) (SubmitParams, error) {
	amount = strings.TrimSpace(amount)
	destinationAddress = strings.TrimSpace(destinationAddress)

	if amount == "" || destinationAddress == "" {
		return SubmitParams{}, pkgerrors.New(pkgerrors.CodeValidation,
			"missing required fields: amount and destinationAddress")
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil || parsed.Sign() <= 0 {
		return SubmitParams{}, pkgerrors.New(pkgerrors.CodeValidation,
			"invalid amount: must be a positive number")
	}

	if !addressPattern.MatchString(destinationAddress) {
		return SubmitParams{}, pkgerrors.New(pkgerrors.CodeValidation,
			"invalid destination address format")
	}

	return SubmitParams{
		Amount:             parsed,
		DestinationAddress: destinationAddress,
	}, nil
}

// ValidAddress reports whether the value is a 0x-prefixed 40-hex-digit address.
func ValidAddress(value string) bool {
	return addressPattern.MatchString(value)
}
