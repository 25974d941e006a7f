package payouts

import (
	"context"

	pkgerrors "github.com/dfaith-labs/payout-service/pkg/errors"
	"github.com/dfaith-labs/payout-service/pkg/logger"
)

// Service is the application-facing surface over the queue: submission with
// an inline drain, single-record lookups, and the status projection.
type Service struct {
	logg  *logger.Logger
	queue *Queue
}

func NewService(logg *logger.Logger, queue *Queue) *Service {
	return &Service{logg: logg, queue: queue}
}

// Submit enqueues a payout and drains the queue before responding, so a
// caller hitting an idle service gets the terminal outcome in the same
// round trip. When another payout is already in flight the drain is a no-op
// and the caller gets the queued record back instead. The drain runs on a
// detached context: a client disconnect must not abandon a payout that has
// already been accepted.
func (s *Service) Submit(ctx context.Context, params SubmitParams) Record {
	record := s.queue.Enqueue(params)

	submitCtx := s.logg.WithPayoutID(ctx, record.ID)
	s.logg.Info(submitCtx, "payout accepted")

	s.queue.Drain(context.WithoutCancel(ctx))

	if current, ok := s.queue.Get(record.ID); ok {
		return current
	}
	return record
}

// Get returns a single payout record by ID.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	record, ok := s.queue.Get(id)
	if !ok {
		return Record{}, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	return record, nil
}

// Status returns the full queue projection.
func (s *Service) Status(ctx context.Context) Snapshot {
	return s.queue.Status()
}
