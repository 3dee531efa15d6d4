// Package notify bridges domain events onto the background job queues.
// Services publish fire-and-forget; the worker renders and delivers.
package notify

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/delivery"
	"github.com/meridian-erp/meridian-erp/internal/transfer"
	"github.com/meridian-erp/meridian-erp/jobs"
)

// Enqueuer is the slice of the jobs client the notifier needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task) error
}

// AsynqNotifier converts delivery and transfer events into queued tasks.
type AsynqNotifier struct {
	client Enqueuer
	logger *slog.Logger
}

// NewAsynqNotifier constructs the notifier.
func NewAsynqNotifier(client Enqueuer, logger *slog.Logger) *AsynqNotifier {
	return &AsynqNotifier{client: client, logger: logger}
}

// DeliveryPosted enqueues the delivery-posted notification.
func (n *AsynqNotifier) DeliveryPosted(ctx context.Context, evt delivery.PostedEvent) error {
	task, err := jobs.NewDeliveryPostedTask(jobs.DeliveryPostedPayload{
		DeliveryID:   evt.DeliveryID,
		DeliveryNo:   evt.DeliveryNo,
		LocationID:   evt.LocationID,
		SupplierID:   evt.SupplierID,
		TotalAmount:  evt.TotalAmount.String(),
		HasVariance:  evt.HasVariance,
		NCRNos:       evt.NCRNos,
		POAutoClosed: evt.POAutoClosed,
		PostedAt:     evt.PostedAt,
	})
	if err != nil {
		return err
	}
	return n.client.Enqueue(ctx, task)
}

// OverDelivery enqueues the over-delivery notification. Blocked lines are
// not broadcast, only approvals that actually moved stock.
func (n *AsynqNotifier) OverDelivery(ctx context.Context, evt delivery.OverDeliveryEvent) error {
	if !evt.Approved {
		return nil
	}
	task, err := jobs.NewOverDeliveryTask(jobs.OverDeliveryPayload{
		DeliveryID: evt.DeliveryID,
		DeliveryNo: evt.DeliveryNo,
		ItemID:     evt.ItemID,
		Qty:        evt.Qty.String(),
		Remaining:  evt.Remaining.String(),
		ActorID:    evt.ActorID,
	})
	if err != nil {
		return err
	}
	return n.client.Enqueue(ctx, task)
}

// TransferSubmitted enqueues the approval request notification.
func (n *AsynqNotifier) TransferSubmitted(ctx context.Context, evt transfer.SubmittedEvent) error {
	task, err := jobs.NewTransferSubmittedTask(jobs.TransferSubmittedPayload{
		TransferID:     evt.TransferID,
		TransferNo:     evt.TransferNo,
		FromLocationID: evt.FromLocationID,
		ToLocationID:   evt.ToLocationID,
		TotalValue:     evt.TotalValue.String(),
		SubmittedBy:    evt.SubmittedBy,
	})
	if err != nil {
		return err
	}
	return n.client.Enqueue(ctx, task)
}

// TransferDecided enqueues the decision notification.
func (n *AsynqNotifier) TransferDecided(ctx context.Context, evt transfer.DecidedEvent) error {
	task, err := jobs.NewTransferDecidedTask(jobs.TransferDecidedPayload{
		TransferID:   evt.TransferID,
		TransferNo:   evt.TransferNo,
		Approved:     evt.Approved,
		RejectReason: evt.RejectReason,
		DecidedBy:    evt.DecidedBy,
	})
	if err != nil {
		return err
	}
	return n.client.Enqueue(ctx, task)
}

var (
	_ delivery.Notifier = (*AsynqNotifier)(nil)
	_ transfer.Notifier = (*AsynqNotifier)(nil)
)
