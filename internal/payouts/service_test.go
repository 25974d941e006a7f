package payouts

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/dfaith-labs/payout-service/pkg/errors"
)

func TestServiceSubmitDrainsInline(t *testing.T) {
	queue := newTestQueue(t, &fakeBroadcaster{})
	service := NewService(testLogger(), queue)

	record := service.Submit(context.Background(), submitParams(t, "5"))
	assert.Equal(t, StatusCompleted, record.Status)
	assert.Equal(t, "0xtoken", record.TokenTxHash)
	assert.Equal(t, "0xnative", record.NativeTxHash)
}

func TestServiceSubmitWhileBusyReturnsQueuedRecord(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	broadcaster := &fakeBroadcaster{}
	var once bool
	broadcaster.tokenFn = func(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
		if !once {
			once = true
			close(started)
			<-release
		}
		return "0xtoken", nil
	}
	queue := newTestQueue(t, broadcaster)
	service := NewService(testLogger(), queue)

	done := make(chan struct{})
	go func() {
		service.Submit(context.Background(), submitParams(t, "1"))
		close(done)
	}()
	<-started

	// The drain inside this submit is a no-op while the first payout holds
	// the processing flag, so the record comes back queued.
	record := service.Submit(context.Background(), submitParams(t, "2"))
	assert.Equal(t, StatusQueued, record.Status)
	assert.Equal(t, 1, record.QueuePosition)

	close(release)
	<-done

	// Once the first submission's drain releases the flag it keeps draining,
	// so the queued record must not be stranded.
	final, err := service.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
}

func TestServiceGet(t *testing.T) {
	queue := newTestQueue(t, &fakeBroadcaster{})
	service := NewService(testLogger(), queue)

	record := service.Submit(context.Background(), submitParams(t, "5"))

	found, err := service.Get(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, found.ID)

	_, err = service.Get(context.Background(), "pay_missing")
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestServiceStatus(t *testing.T) {
	queue := newTestQueue(t, &fakeBroadcaster{})
	service := NewService(testLogger(), queue)

	service.Submit(context.Background(), submitParams(t, "5"))

	snapshot := service.Status(context.Background())
	assert.Equal(t, 1, snapshot.Stats.TotalCompleted)
	assert.Equal(t, 1, snapshot.Stats.TotalPayouts)
}
