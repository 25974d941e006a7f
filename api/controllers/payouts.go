package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dfaith-labs/payout-service/api/responses"
	"github.com/dfaith-labs/payout-service/api/validators"
	"github.com/dfaith-labs/payout-service/internal/payouts"
	pkgerrors "github.com/dfaith-labs/payout-service/pkg/errors"
	"github.com/dfaith-labs/payout-service/pkg/logger"
)

// amountField accepts the amount as either a JSON string or a JSON number,
// preserving the exact textual form for decimal parsing.
type amountField string

func (a *amountField) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*a = amountField(asString)
		return nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(data, &asNumber); err != nil {
		return errors.New("amount must be a string or a number")
	}
	*a = amountField(asNumber.String())
	return nil
}

type submitPayoutRequest struct {
	Amount             amountField `json:"amount" validate:"required"`
	DestinationAddress string      `json:"destinationAddress" validate:"required,eth_addr"`
}

// SubmitPayout accepts a payout request, queues it, and reports the record's
// state after the inline drain. A payout that failed during the drain is still
// a handled submission, so the response stays 200 with the failure on the
// record body.
func SubmitPayout(svc *payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		var req submitPayoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := payouts.NewSubmitParams(string(req.Amount), req.DestinationAddress)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record := svc.Submit(r.Context(), params)
		responses.WriteSuccess(w, record)
	}
}

// GetPayout returns a single payout record by ID.
func GetPayout(svc *payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}

		payoutID := strings.TrimSpace(chi.URLParam(r, "payoutId"))
		if payoutID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payout id is required"))
			return
		}

		record, err := svc.Get(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}

// QueueStatus returns the full queue projection.
func QueueStatus(svc *payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payout service unavailable"))
			return
		}
		responses.WriteSuccess(w, svc.Status(r.Context()))
	}
}
