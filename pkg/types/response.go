// Package types holds the wire envelopes every payout API response uses.
package types

// SuccessEnvelope wraps successful payloads. Payout records and queue
// snapshots ride in Data.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public error shape: a stable machine-readable code, a
// message safe to show callers, and field-level details only for codes that
// allow them.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope wraps every non-2xx response body.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
