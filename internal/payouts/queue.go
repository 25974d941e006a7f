package payouts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/dfaith-labs/payout-service/pkg/errors"
	"github.com/dfaith-labs/payout-service/pkg/logger"
	"github.com/dfaith-labs/payout-service/pkg/metrics"
	"github.com/dfaith-labs/payout-service/pkg/tatum"
)

const (
	defaultConfirmAttempts = 5
	defaultConfirmDelay    = 2 * time.Second
	defaultDrainInterval   = 15 * time.Second
	defaultHistoryLimit    = 10
)

var errNotConfirmed = errors.New("transaction not yet confirmed")

// QueueParams configure the payout queue.
type QueueParams struct {
	Logger      *logger.Logger
	Broadcaster Broadcaster
	Metrics     *metrics.PayoutMetrics

	// NativeAmount is the fixed native-coin amount sent alongside every
	// token transfer.
	NativeAmount decimal.Decimal

	ConfirmAttempts uint
	ConfirmDelay    time.Duration
	DrainInterval   time.Duration
	HistoryLimit    int
}

// Queue holds pending payout records and drives each through its lifecycle.
// At most one payout is ever mid-execution: a mutual-exclusion flag spans the
// whole queue, and a drain attempt that observes it held is a no-op. Records
// live in the all-records map until process termination; the completed and
// failed slices are bounded display projections, never the source of truth.
type Queue struct {
	logg            *logger.Logger
	broadcaster     Broadcaster
	metrics         *metrics.PayoutMetrics
	nativeAmount    decimal.Decimal
	confirmAttempts uint
	confirmDelay    time.Duration
	drainInterval   time.Duration
	historyLimit    int

	processing atomic.Bool

	mu        sync.Mutex
	pending   []*Record
	current   *Record
	records   map[string]*Record
	completed []*Record
	failed    []*Record
}

// NewQueue builds a payout queue. The broadcaster may be nil when the wallet
// is not provisioned; processing then fails each record with a configuration
// error instead of refusing to boot.
func NewQueue(params QueueParams) (*Queue, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.ConfirmAttempts == 0 {
		params.ConfirmAttempts = defaultConfirmAttempts
	}
	if params.ConfirmDelay <= 0 {
		params.ConfirmDelay = defaultConfirmDelay
	}
	if params.DrainInterval <= 0 {
		params.DrainInterval = defaultDrainInterval
	}
	if params.HistoryLimit <= 0 {
		params.HistoryLimit = defaultHistoryLimit
	}
	return &Queue{
		logg:            params.Logger,
		broadcaster:     params.Broadcaster,
		metrics:         params.Metrics,
		nativeAmount:    params.NativeAmount,
		confirmAttempts: params.ConfirmAttempts,
		confirmDelay:    params.ConfirmDelay,
		drainInterval:   params.DrainInterval,
		historyLimit:    params.HistoryLimit,
		records:         make(map[string]*Record),
	}, nil
}

// Enqueue appends a new queued record and returns a copy of it. The caller is
// expected to trigger a drain separately; enqueue itself never blocks on
// processing.
func (q *Queue) Enqueue(params SubmitParams) Record {
	q.mu.Lock()
	record := &Record{
		ID:                 "pay_" + uuid.NewString(),
		Amount:             params.Amount,
		DestinationAddress: params.DestinationAddress,
		Status:             StatusQueued,
		QueuePosition:      len(q.pending) + 1,
		CreatedAt:          time.Now().UTC(),
	}
	q.records[record.ID] = record
	q.pending = append(q.pending, record)
	depth := len(q.pending)
	snapshot := record.clone()
	q.mu.Unlock()

	q.metrics.SetQueueDepth(depth)
	return snapshot
}

// Drain processes pending records until the queue is empty. It is the
// single-flight critical section: if another drain holds the processing flag
// the call returns immediately without side effects. The flag is always
// released, whatever happens inside.
func (q *Queue) Drain(ctx context.Context) {
	if !q.processing.CompareAndSwap(false, true) {
		q.logg.Info(ctx, "drain skipped, payout already in flight")
		return
	}
	defer q.processing.Store(false)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		record := q.takeHead()
		if record == nil {
			return
		}
		q.process(ctx, record)
	}
}

// Run drains the queue on a fixed tick until the context is canceled, so a
// record skipped during a single-flight collision is still picked up without
// waiting for the next enqueue.
func (q *Queue) Run(ctx context.Context) error {
	ticker := time.NewTicker(q.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.logg.Info(ctx, "payout drain loop stopped")
			return ctx.Err()
		case <-ticker.C:
			q.Drain(ctx)
		}
	}
}

// takeHead pops the FIFO head, marks it processing, and publishes it as the
// in-flight record.
func (q *Queue) takeHead() *Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	record := q.pending[0]
	q.pending = q.pending[1:]
	q.current = record

	now := time.Now().UTC()
	record.Status = StatusProcessing
	record.StartedAt = &now
	record.QueuePosition = 0

	q.metrics.SetQueueDepth(len(q.pending))
	return record
}

func (q *Queue) process(ctx context.Context, record *Record) {
	ctx = q.logg.WithPayoutID(ctx, record.ID)
	q.logg.Info(ctx, "processing payout")
	start := time.Now()

	if err := q.configError(); err != nil {
		q.finishFailed(ctx, record, start, err)
		return
	}

	tokenHash, err := q.executeLeg(ctx, legToken, record.DestinationAddress, record.Amount)
	if err != nil {
		q.finishFailed(ctx, record, start, err)
		return
	}
	q.setHash(record, legToken, tokenHash)

	nativeHash, err := q.executeLeg(ctx, legNative, record.DestinationAddress, q.nativeAmount)
	if err != nil {
		// The token leg already moved funds; its hash stays on the record.
		q.finishFailed(ctx, record, start, err)
		return
	}
	q.setHash(record, legNative, nativeHash)

	q.finishCompleted(ctx, record, start)
}

const (
	legToken  = "token"
	legNative = "native"
)

// configError verifies the credentials and amounts processing depends on.
// Checked per record so a misconfigured deployment fails payouts visibly
// instead of refusing to serve status queries.
func (q *Queue) configError() error {
	if q.broadcaster == nil {
		return pkgerrors.New(pkgerrors.CodeConfiguration, "transaction broadcaster not configured")
	}
	if q.nativeAmount.Sign() <= 0 {
		return pkgerrors.New(pkgerrors.CodeConfiguration, "native payout amount not configured")
	}
	return nil
}

func (q *Queue) executeLeg(ctx context.Context, leg, to string, amount decimal.Decimal) (string, error) {
	legCtx := q.logg.WithLeg(ctx, leg)
	q.logg.Info(legCtx, "broadcasting transfer")

	var txID string
	var err error
	switch leg {
	case legToken:
		txID, err = q.broadcaster.BroadcastTokenTransfer(legCtx, to, amount)
	default:
		txID, err = q.broadcaster.BroadcastNativeTransfer(legCtx, to, amount)
	}
	if err != nil {
		q.metrics.IncBroadcast(leg, "error")
		return "", err
	}
	q.metrics.IncBroadcast(leg, "ok")

	legCtx = q.logg.WithField(legCtx, "tx_hash", txID)
	q.logg.Info(legCtx, "transfer broadcast accepted")
	q.awaitConfirmation(legCtx, txID)
	return txID, nil
}

// awaitConfirmation polls the provider a bounded number of times with a fixed
// delay. Running out of attempts is not a failure: the transfer was accepted
// and is likely successful, so the outcome is logged and processing moves on.
func (q *Queue) awaitConfirmation(ctx context.Context, txID string) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(q.confirmDelay), uint64(q.confirmAttempts)),
		ctx,
	)

	var confirmation tatum.Confirmation
	err := backoff.Retry(func() error {
		result, lookupErr := q.broadcaster.GetTransaction(ctx, txID)
		if lookupErr != nil {
			return lookupErr
		}
		if !result.Confirmed {
			return errNotConfirmed
		}
		confirmation = result
		return nil
	}, policy)
	if err != nil {
		q.logg.Warn(ctx, "confirmation timeout, transfer likely successful")
		return
	}

	q.logg.Info(q.logg.WithField(ctx, "block_number", confirmation.BlockNumber), "transfer confirmed")
}

func (q *Queue) setHash(record *Record, leg, txID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if leg == legToken {
		record.TokenTxHash = txID
	} else {
		record.NativeTxHash = txID
	}
}

func (q *Queue) finishCompleted(ctx context.Context, record *Record, start time.Time) {
	q.mu.Lock()
	now := time.Now().UTC()
	record.Status = StatusCompleted
	record.CompletedAt = &now
	q.current = nil
	q.completed = append(q.completed, record)
	total := len(q.completed)
	q.mu.Unlock()

	q.metrics.IncCompleted()
	q.metrics.ObserveDuration("completed", time.Since(start))

	ctx = q.logg.WithField(ctx, "total_completed", total)
	q.logg.Info(ctx, "payout completed")
}

func (q *Queue) finishFailed(ctx context.Context, record *Record, start time.Time, err error) {
	message, detail := describeFailure(err)

	q.mu.Lock()
	now := time.Now().UTC()
	record.Status = StatusFailed
	record.FailedAt = &now
	record.Error = message
	record.ErrorDetail = detail
	q.current = nil
	q.failed = append(q.failed, record)
	total := len(q.failed)
	q.mu.Unlock()

	q.metrics.IncFailed(detail.Kind)
	q.metrics.ObserveDuration("failed", time.Since(start))

	ctx = q.logg.WithField(ctx, "total_failed", total)
	q.logg.Error(ctx, "payout failed", err)
}

// describeFailure captures the provider-level message verbatim plus the
// structured kind/code/reason triple stored on failed records.
func describeFailure(err error) (string, *ErrorDetail) {
	detail := &ErrorDetail{Kind: "internal"}

	if typed := pkgerrors.As(err); typed != nil {
		switch typed.Code() {
		case pkgerrors.CodeBroadcast:
			detail.Kind = "broadcast"
		case pkgerrors.CodeConfiguration:
			detail.Kind = "configuration"
		case pkgerrors.CodeDependency:
			detail.Kind = "dependency"
		case pkgerrors.CodeValidation:
			detail.Kind = "validation"
		}
		detail.Code = string(typed.Code())
		detail.Reason = typed.Message()
	}

	var apiErr *tatum.APIError
	if errors.As(err, &apiErr) {
		detail.Code = strconv.Itoa(apiErr.StatusCode)
		detail.Reason = apiErr.Body
	}

	return rootCause(err).Error(), detail
}

func rootCause(err error) error {
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err
		}
		err = unwrapped
	}
}
