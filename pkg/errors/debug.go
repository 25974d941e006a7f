package errors

import (
	"errors"
	"fmt"
)

// providerError is implemented by transport errors that carry the raw provider
// response (see pkg/tatum.APIError).
type providerError interface {
	error
	ProviderStatus() int
	ProviderBody() string
}

type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	ProviderStatus int    `json:"provider_status,omitempty"`
	ProviderBody   string `json:"provider_body,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{
		TopMessage: err.Error(),
	}

	if te := As(err); te != nil {
		d.Code = te.Code()
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pe providerError
	if errors.As(err, &pe) {
		d.ProviderStatus = pe.ProviderStatus()
		d.ProviderBody = pe.ProviderBody()
	}

	return d
}
