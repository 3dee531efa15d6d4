package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
)

// Sink delivers a rendered notification to its audience. The default sink
// writes to the log; deployments swap in chat or email transports.
type Sink interface {
	Send(ctx context.Context, subject, body string) error
}

// LogSink writes notifications to the application log.
type LogSink struct {
	Logger *slog.Logger
}

// Send logs the notification.
func (s LogSink) Send(_ context.Context, subject, body string) error {
	s.Logger.Info("notification", "subject", subject, "body", body)
	return nil
}

// IdempotencySweeper removes expired posting keys.
type IdempotencySweeper interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// NotificationHandlers processes the notify queue. Redis guards against
// double delivery when asynq retries a task that already reached the sink.
type NotificationHandlers struct {
	logger  *slog.Logger
	sink    Sink
	redis   *redis.Client
	printer *message.Printer
	metrics *jobmetrics.Metrics
	sweeper IdempotencySweeper
}

// KeyRetention is how long processed posting keys are kept before the
// scheduled sweep removes them.
const KeyRetention = 30 * 24 * time.Hour

// NewNotificationHandlers wires the worker-side handlers.
func NewNotificationHandlers(logger *slog.Logger, sink Sink, rdb *redis.Client, metrics *jobmetrics.Metrics, sweeper IdempotencySweeper) *NotificationHandlers {
	if sink == nil {
		sink = LogSink{Logger: logger}
	}
	return &NotificationHandlers{
		logger:  logger,
		sink:    sink,
		redis:   rdb,
		printer: message.NewPrinter(language.English),
		metrics: metrics,
		sweeper: sweeper,
	}
}

// Register attaches every handler to the mux.
func (h *NotificationHandlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskNotifyDeliveryPosted, h.HandleDeliveryPosted)
	mux.HandleFunc(TaskNotifyOverDelivery, h.HandleOverDelivery)
	mux.HandleFunc(TaskNotifyTransferSubmitted, h.HandleTransferSubmitted)
	mux.HandleFunc(TaskNotifyTransferDecided, h.HandleTransferDecided)
	mux.HandleFunc(TaskIdempotencyCleanup, h.HandleIdempotencyCleanup)
}

// alreadySent marks the dedupe key and reports whether a prior attempt
// already delivered this notification.
func (h *NotificationHandlers) alreadySent(ctx context.Context, key string) bool {
	if h.redis == nil {
		return false
	}
	ok, err := h.redis.SetNX(ctx, "notify:sent:"+key, 1, 24*time.Hour).Result()
	if err != nil {
		h.logger.Warn("notification dedupe unavailable", "key", key, "error", err)
		return false
	}
	return !ok
}

// HandleDeliveryPosted renders and delivers the posting summary.
func (h *NotificationHandlers) HandleDeliveryPosted(ctx context.Context, t *asynq.Task) error {
	track := h.metrics.Track(TaskNotifyDeliveryPosted)
	var p DeliveryPostedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return track.End(asynq.SkipRetry)
	}
	if h.alreadySent(ctx, fmt.Sprintf("delivery:%d", p.DeliveryID)) {
		h.metrics.AddNotification("delivery_posted", "deduped")
		return track.End(nil)
	}
	h.metrics.AddNotification("delivery_posted", "sent")
	subject := h.printer.Sprintf("Delivery %s posted", p.DeliveryNo)
	body := h.printer.Sprintf("Delivery %s at location %d posted for %s.", p.DeliveryNo, p.LocationID, p.TotalAmount)
	if p.HasVariance {
		body += h.printer.Sprintf(" Price variance raised %d NCR(s): %v.", len(p.NCRNos), p.NCRNos)
	}
	if p.POAutoClosed {
		body += " The linked purchase order is fully delivered and has been closed."
	}
	return track.End(h.sink.Send(ctx, subject, body))
}

// HandleOverDelivery notifies supervision that an over-delivered line was
// accepted at posting time.
func (h *NotificationHandlers) HandleOverDelivery(ctx context.Context, t *asynq.Task) error {
	track := h.metrics.Track(TaskNotifyOverDelivery)
	var p OverDeliveryPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return track.End(asynq.SkipRetry)
	}
	if h.alreadySent(ctx, fmt.Sprintf("overdelivery:%d:%d", p.DeliveryID, p.ItemID)) {
		h.metrics.AddNotification("over_delivery", "deduped")
		return track.End(nil)
	}
	h.metrics.AddNotification("over_delivery", "sent")
	subject := h.printer.Sprintf("Over-delivery approved on %s", p.DeliveryNo)
	body := h.printer.Sprintf("Item %d received %s against %s remaining on the purchase order, approved by user %d.",
		p.ItemID, p.Qty, p.Remaining, p.ActorID)
	return track.End(h.sink.Send(ctx, subject, body))
}

// HandleTransferSubmitted pages approvers.
func (h *NotificationHandlers) HandleTransferSubmitted(ctx context.Context, t *asynq.Task) error {
	track := h.metrics.Track(TaskNotifyTransferSubmitted)
	var p TransferSubmittedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return track.End(asynq.SkipRetry)
	}
	if h.alreadySent(ctx, fmt.Sprintf("transfer:submit:%d", p.TransferID)) {
		h.metrics.AddNotification("transfer_submitted", "deduped")
		return track.End(nil)
	}
	h.metrics.AddNotification("transfer_submitted", "sent")
	subject := h.printer.Sprintf("Transfer %s awaiting approval", p.TransferNo)
	body := h.printer.Sprintf("Transfer %s moves %s from location %d to location %d and needs a decision.",
		p.TransferNo, p.TotalValue, p.FromLocationID, p.ToLocationID)
	return track.End(h.sink.Send(ctx, subject, body))
}

// HandleTransferDecided reports the decision back.
func (h *NotificationHandlers) HandleTransferDecided(ctx context.Context, t *asynq.Task) error {
	track := h.metrics.Track(TaskNotifyTransferDecided)
	var p TransferDecidedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return track.End(asynq.SkipRetry)
	}
	if h.alreadySent(ctx, fmt.Sprintf("transfer:decide:%d", p.TransferID)) {
		h.metrics.AddNotification("transfer_decided", "deduped")
		return track.End(nil)
	}
	h.metrics.AddNotification("transfer_decided", "sent")
	var subject, body string
	if p.Approved {
		subject = h.printer.Sprintf("Transfer %s completed", p.TransferNo)
		body = h.printer.Sprintf("Transfer %s was approved by user %d and the stock has moved.", p.TransferNo, p.DecidedBy)
	} else {
		subject = h.printer.Sprintf("Transfer %s rejected", p.TransferNo)
		body = h.printer.Sprintf("Transfer %s was rejected by user %d: %s", p.TransferNo, p.DecidedBy, p.RejectReason)
	}
	return track.End(h.sink.Send(ctx, subject, body))
}

// HandleIdempotencyCleanup sweeps expired posting keys.
func (h *NotificationHandlers) HandleIdempotencyCleanup(ctx context.Context, _ *asynq.Task) error {
	track := h.metrics.Track(TaskIdempotencyCleanup)
	if h.sweeper == nil {
		return track.End(nil)
	}
	return track.End(h.sweeper.Cleanup(ctx, KeyRetention))
}
