package transfer

import (
	"context"

	"github.com/shopspring/decimal"
)

// SubmittedEvent is published when a transfer enters PENDING_APPROVAL,
// so approvers can be paged.
type SubmittedEvent struct {
	TransferID     int64
	TransferNo     string
	FromLocationID int64
	ToLocationID   int64
	TotalValue     decimal.Decimal
	SubmittedBy    int64
}

// DecidedEvent is published after an approval or rejection commits.
type DecidedEvent struct {
	TransferID   int64
	TransferNo   string
	Approved     bool
	RejectReason string
	DecidedBy    int64
}

// Notifier receives transfer events fire-and-forget.
type Notifier interface {
	TransferSubmitted(ctx context.Context, evt SubmittedEvent) error
	TransferDecided(ctx context.Context, evt DecidedEvent) error
}
