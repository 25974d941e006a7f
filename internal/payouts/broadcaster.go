package payouts

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dfaith-labs/payout-service/pkg/tatum"
)

// Broadcaster signs and submits a single asset transfer through the external
// provider and can be polled for its confirmation state. Broadcast success
// means accepted for inclusion, not finalized.
type Broadcaster interface {
	BroadcastTokenTransfer(ctx context.Context, to string, amount decimal.Decimal) (string, error)
	BroadcastNativeTransfer(ctx context.Context, to string, amount decimal.Decimal) (string, error)
	GetTransaction(ctx context.Context, txID string) (tatum.Confirmation, error)
}
