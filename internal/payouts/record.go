package payouts

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a payout. Transitions only move forward:
// queued -> processing -> completed|failed.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrorDetail carries the structured failure context captured on a record.
type ErrorDetail struct {
	Kind   string `json:"kind"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Record is one payout request and its evolving state. The queue owns all
// mutation; readers only ever see copies.
type Record struct {
	ID                 string          `json:"id"`
	Amount             decimal.Decimal `json:"amount"`
	DestinationAddress string          `json:"destinationAddress"`
	Status             Status          `json:"status"`
	QueuePosition      int             `json:"queuePosition,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`

	TokenTxHash  string `json:"tokenTxHash,omitempty"`
	NativeTxHash string `json:"nativeTxHash,omitempty"`

	Error       string       `json:"error,omitempty"`
	ErrorDetail *ErrorDetail `json:"errorDetail,omitempty"`
}

func (r *Record) clone() Record {
	copied := *r
	if r.ErrorDetail != nil {
		detail := *r.ErrorDetail
		copied.ErrorDetail = &detail
	}
	return copied
}
