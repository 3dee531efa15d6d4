package delivery

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PostedEvent is published after a delivery commits.
type PostedEvent struct {
	DeliveryID   int64
	DeliveryNo   string
	LocationID   int64
	SupplierID   int64
	TotalAmount  decimal.Decimal
	HasVariance  bool
	NCRNos       []string
	POAutoClosed bool
	POID         *int64
	PostedAt     time.Time
}

// OverDeliveryEvent is published when posting approves or blocks an
// over-delivered line.
type OverDeliveryEvent struct {
	DeliveryID int64
	DeliveryNo string
	ItemID     int64
	Qty        decimal.Decimal
	Remaining  decimal.Decimal
	Approved   bool
	ActorID    int64
}

// Notifier receives delivery events fire-and-forget. Failures are logged
// by the caller and never roll back the posting.
type Notifier interface {
	DeliveryPosted(ctx context.Context, evt PostedEvent) error
	OverDelivery(ctx context.Context, evt OverDeliveryEvent) error
}
