// Package jobs defines the background task surface: notification fan-out
// after postings and periodic maintenance. Posting transactions never wait
// on any of this; tasks are enqueued after commit.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueNotify carries post-commit notification fan-out.
	QueueNotify = "notify"
	// QueueMaintenance carries scheduled housekeeping.
	QueueMaintenance = "maintenance"
)

const (
	TaskNotifyDeliveryPosted    = "notify:delivery_posted"
	TaskNotifyOverDelivery      = "notify:over_delivery"
	TaskNotifyTransferSubmitted = "notify:transfer_submitted"
	TaskNotifyTransferDecided   = "notify:transfer_decided"
	TaskIdempotencyCleanup      = "maintenance:idempotency_cleanup"
)

// DeliveryPostedPayload announces a committed delivery posting.
type DeliveryPostedPayload struct {
	DeliveryID   int64     `json:"delivery_id"`
	DeliveryNo   string    `json:"delivery_no"`
	LocationID   int64     `json:"location_id"`
	SupplierID   int64     `json:"supplier_id"`
	TotalAmount  string    `json:"total_amount"`
	HasVariance  bool      `json:"has_variance"`
	NCRNos       []string  `json:"ncr_nos,omitempty"`
	POAutoClosed bool      `json:"po_auto_closed"`
	PostedAt     time.Time `json:"posted_at"`
}

// OverDeliveryPayload announces an over-delivered line approved at posting.
type OverDeliveryPayload struct {
	DeliveryID int64  `json:"delivery_id"`
	DeliveryNo string `json:"delivery_no"`
	ItemID     int64  `json:"item_id"`
	Qty        string `json:"qty"`
	Remaining  string `json:"remaining"`
	ActorID    int64  `json:"actor_id"`
}

// TransferSubmittedPayload pages approvers for a pending transfer.
type TransferSubmittedPayload struct {
	TransferID     int64  `json:"transfer_id"`
	TransferNo     string `json:"transfer_no"`
	FromLocationID int64  `json:"from_location_id"`
	ToLocationID   int64  `json:"to_location_id"`
	TotalValue     string `json:"total_value"`
	SubmittedBy    int64  `json:"submitted_by"`
}

// TransferDecidedPayload reports an approval or rejection back to the creator.
type TransferDecidedPayload struct {
	TransferID   int64  `json:"transfer_id"`
	TransferNo   string `json:"transfer_no"`
	Approved     bool   `json:"approved"`
	RejectReason string `json:"reject_reason,omitempty"`
	DecidedBy    int64  `json:"decided_by"`
}

func newTask(taskType string, payload any) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

// NewDeliveryPostedTask constructs the delivery-posted notification task.
func NewDeliveryPostedTask(p DeliveryPostedPayload) (*asynq.Task, error) {
	return newTask(TaskNotifyDeliveryPosted, p)
}

// NewOverDeliveryTask constructs the over-delivery notification task.
func NewOverDeliveryTask(p OverDeliveryPayload) (*asynq.Task, error) {
	return newTask(TaskNotifyOverDelivery, p)
}

// NewTransferSubmittedTask constructs the transfer-submitted notification task.
func NewTransferSubmittedTask(p TransferSubmittedPayload) (*asynq.Task, error) {
	return newTask(TaskNotifyTransferSubmitted, p)
}

// NewTransferDecidedTask constructs the transfer-decided notification task.
func NewTransferDecidedTask(p TransferDecidedPayload) (*asynq.Task, error) {
	return newTask(TaskNotifyTransferDecided, p)
}

// NewIdempotencyCleanupTask constructs the scheduled key-retention sweep.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
