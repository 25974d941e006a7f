package payouts

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/dfaith-labs/payout-service/pkg/errors"
	"github.com/dfaith-labs/payout-service/pkg/logger"
	"github.com/dfaith-labs/payout-service/pkg/tatum"
)

type fakeBroadcaster struct {
	mu          sync.Mutex
	tokenCalls  []decimal.Decimal
	nativeCalls []decimal.Decimal

	tokenFn  func(ctx context.Context, to string, amount decimal.Decimal) (string, error)
	nativeFn func(ctx context.Context, to string, amount decimal.Decimal) (string, error)
	lookupFn func(ctx context.Context, txID string) (tatum.Confirmation, error)
}

func (f *fakeBroadcaster) BroadcastTokenTransfer(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	f.mu.Lock()
	f.tokenCalls = append(f.tokenCalls, amount)
	f.mu.Unlock()
	if f.tokenFn != nil {
		return f.tokenFn(ctx, to, amount)
	}
	return "0xtoken", nil
}

func (f *fakeBroadcaster) BroadcastNativeTransfer(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	f.mu.Lock()
	f.nativeCalls = append(f.nativeCalls, amount)
	f.mu.Unlock()
	if f.nativeFn != nil {
		return f.nativeFn(ctx, to, amount)
	}
	return "0xnative", nil
}

func (f *fakeBroadcaster) GetTransaction(ctx context.Context, txID string) (tatum.Confirmation, error) {
	if f.lookupFn != nil {
		return f.lookupFn(ctx, txID)
	}
	return tatum.Confirmation{Confirmed: true, BlockNumber: 123}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "payouts-test", Output: io.Discard})
}

func newTestQueue(t *testing.T, broadcaster Broadcaster) *Queue {
	t.Helper()
	queue, err := NewQueue(QueueParams{
		Logger:          testLogger(),
		Broadcaster:     broadcaster,
		NativeAmount:    decimal.RequireFromString("0.00002"),
		ConfirmAttempts: 2,
		ConfirmDelay:    time.Millisecond,
		HistoryLimit:    10,
	})
	require.NoError(t, err)
	return queue
}

func submitParams(t *testing.T, amount string) SubmitParams {
	t.Helper()
	params, err := NewSubmitParams(amount, "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	return params
}

func TestQueueSuccessfulPayout(t *testing.T) {
	broadcaster := &fakeBroadcaster{}
	queue := newTestQueue(t, broadcaster)

	record := queue.Enqueue(submitParams(t, "5"))
	assert.Equal(t, StatusQueued, record.Status)
	assert.Equal(t, 1, record.QueuePosition)
	assert.NotEmpty(t, record.ID)

	queue.Drain(context.Background())

	final, ok := queue.Get(record.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, "0xtoken", final.TokenTxHash)
	assert.Equal(t, "0xnative", final.NativeTxHash)
	assert.Empty(t, final.Error)
	require.NotNil(t, final.StartedAt)
	require.NotNil(t, final.CompletedAt)
	assert.False(t, final.CompletedAt.Before(*final.StartedAt))

	require.Len(t, broadcaster.tokenCalls, 1)
	assert.True(t, broadcaster.tokenCalls[0].Equal(decimal.RequireFromString("5")))
	require.Len(t, broadcaster.nativeCalls, 1)
	assert.True(t, broadcaster.nativeCalls[0].Equal(decimal.RequireFromString("0.00002")))
}

func TestQueueNativeLegFailureKeepsTokenHash(t *testing.T) {
	broadcaster := &fakeBroadcaster{
		nativeFn: func(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
			return "", errors.New("insufficient funds")
		},
	}
	queue := newTestQueue(t, broadcaster)

	record := queue.Enqueue(submitParams(t, "5"))
	queue.Drain(context.Background())

	final, ok := queue.Get(record.ID)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, "0xtoken", final.TokenTxHash)
	assert.Empty(t, final.NativeTxHash)
	assert.Equal(t, "insufficient funds", final.Error)
	require.NotNil(t, final.FailedAt)
	require.NotNil(t, final.ErrorDetail)
	assert.Equal(t, "internal", final.ErrorDetail.Kind)
}

func TestQueueBroadcastErrorDetail(t *testing.T) {
	broadcaster := &fakeBroadcaster{
		tokenFn: func(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
			apiErr := &tatum.APIError{StatusCode: 403, Body: `{"message":"insufficient funds"}`}
			return "", pkgerrors.Wrap(pkgerrors.CodeBroadcast, apiErr, "broadcast rejected")
		},
	}
	queue := newTestQueue(t, broadcaster)

	record := queue.Enqueue(submitParams(t, "5"))
	queue.Drain(context.Background())

	final, ok := queue.Get(record.ID)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Empty(t, final.TokenTxHash)
	require.NotNil(t, final.ErrorDetail)
	assert.Equal(t, "broadcast", final.ErrorDetail.Kind)
	assert.Equal(t, "403", final.ErrorDetail.Code)
	assert.Contains(t, final.ErrorDetail.Reason, "insufficient funds")
}

func TestQueueConfirmationTimeoutIsNotFatal(t *testing.T) {
	broadcaster := &fakeBroadcaster{
		lookupFn: func(ctx context.Context, txID string) (tatum.Confirmation, error) {
			return tatum.Confirmation{Confirmed: false}, nil
		},
	}
	queue := newTestQueue(t, broadcaster)

	record := queue.Enqueue(submitParams(t, "5"))
	queue.Drain(context.Background())

	final, ok := queue.Get(record.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, "0xtoken", final.TokenTxHash)
	assert.Equal(t, "0xnative", final.NativeTxHash)
}

func TestQueueMissingBroadcasterFailsRecord(t *testing.T) {
	queue, err := NewQueue(QueueParams{
		Logger:       testLogger(),
		NativeAmount: decimal.RequireFromString("0.00002"),
		ConfirmDelay: time.Millisecond,
	})
	require.NoError(t, err)

	record := queue.Enqueue(submitParams(t, "5"))
	queue.Drain(context.Background())

	final, ok := queue.Get(record.ID)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, final.Status)
	require.NotNil(t, final.ErrorDetail)
	assert.Equal(t, "configuration", final.ErrorDetail.Kind)
	assert.Equal(t, "CONFIGURATION_ERROR", final.ErrorDetail.Code)
}

func TestQueueProcessesInSubmissionOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	broadcaster := &fakeBroadcaster{}
	broadcaster.tokenFn = func(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
		mu.Lock()
		order = append(order, amount.String())
		mu.Unlock()
		return "0xtoken", nil
	}
	queue := newTestQueue(t, broadcaster)

	first := queue.Enqueue(submitParams(t, "1"))
	second := queue.Enqueue(submitParams(t, "2"))
	third := queue.Enqueue(submitParams(t, "3"))
	assert.Equal(t, 1, first.QueuePosition)
	assert.Equal(t, 2, second.QueuePosition)
	assert.Equal(t, 3, third.QueuePosition)

	queue.Drain(context.Background())

	assert.Equal(t, []string{"1", "2", "3"}, order)
	for _, record := range []Record{first, second, third} {
		final, ok := queue.Get(record.ID)
		require.True(t, ok)
		assert.Equal(t, StatusCompleted, final.Status)
	}
}

func TestQueueDrainIsSingleFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var startedOnce sync.Once
	broadcaster := &fakeBroadcaster{
		tokenFn: func(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
			startedOnce.Do(func() { close(started) })
			<-release
			return "0xtoken", nil
		},
	}
	queue := newTestQueue(t, broadcaster)
	queue.Enqueue(submitParams(t, "5"))

	done := make(chan struct{})
	go func() {
		queue.Drain(context.Background())
		close(done)
	}()

	<-started
	// A second drain while the first holds the flag must return immediately.
	queue.Drain(context.Background())
	assert.True(t, queue.Status().Stats.IsProcessing)

	skipped := queue.Enqueue(submitParams(t, "7"))

	close(release)
	<-done

	// The winning drain keeps going while pending work remains, so the
	// record skipped during the collision still reaches a terminal state.
	final, ok := queue.Get(skipped.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, final.Status)

	broadcaster.mu.Lock()
	defer broadcaster.mu.Unlock()
	assert.Len(t, broadcaster.tokenCalls, 2)
}

func TestQueueRunDrainsWithoutAnEnqueueTrigger(t *testing.T) {
	broadcaster := &fakeBroadcaster{}
	queue, err := NewQueue(QueueParams{
		Logger:          testLogger(),
		Broadcaster:     broadcaster,
		NativeAmount:    decimal.RequireFromString("0.00002"),
		ConfirmAttempts: 1,
		ConfirmDelay:    time.Millisecond,
		DrainInterval:   5 * time.Millisecond,
	})
	require.NoError(t, err)

	// Enqueue without calling Drain: only the ticker loop can pick this up.
	record := queue.Enqueue(submitParams(t, "5"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go queue.Run(ctx)

	require.Eventually(t, func() bool {
		current, ok := queue.Get(record.ID)
		return ok && current.Status.Terminal()
	}, time.Second, 5*time.Millisecond)

	final, ok := queue.Get(record.ID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, "0xtoken", final.TokenTxHash)
	assert.Equal(t, "0xnative", final.NativeTxHash)
}

func TestQueueRunStopsOnContextCancel(t *testing.T) {
	queue := newTestQueue(t, &fakeBroadcaster{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := queue.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueueEnqueueAssignsUniqueIDs(t *testing.T) {
	queue := newTestQueue(t, &fakeBroadcaster{})

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		record := queue.Enqueue(submitParams(t, "1"))
		assert.False(t, seen[record.ID])
		seen[record.ID] = true
	}
}

func TestQueueGetUnknownID(t *testing.T) {
	queue := newTestQueue(t, &fakeBroadcaster{})
	_, ok := queue.Get("pay_missing")
	assert.False(t, ok)
}
