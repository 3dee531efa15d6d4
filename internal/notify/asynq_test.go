package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/delivery"
	"github.com/meridian-erp/meridian-erp/internal/transfer"
	"github.com/meridian-erp/meridian-erp/jobs"
)

func newTestNotifier(t *testing.T) (*AsynqNotifier, *asynq.Inspector) {
	t.Helper()
	mr := miniredis.RunT(t)
	opts := asynq.RedisClientOpt{Addr: mr.Addr()}
	client := jobs.NewClient(opts)
	inspector := asynq.NewInspector(opts)
	t.Cleanup(func() {
		_ = client.Close()
		_ = inspector.Close()
	})
	return NewAsynqNotifier(client, slog.Default()), inspector
}

func pendingTasks(t *testing.T, inspector *asynq.Inspector) []*asynq.TaskInfo {
	t.Helper()
	tasks, err := inspector.ListPendingTasks(jobs.QueueNotify)
	require.NoError(t, err)
	return tasks
}

func TestDeliveryPostedEnqueued(t *testing.T) {
	n, inspector := newTestNotifier(t)

	err := n.DeliveryPosted(context.Background(), delivery.PostedEvent{
		DeliveryID:   11,
		DeliveryNo:   "DLV-3-20260115-001",
		LocationID:   3,
		SupplierID:   7,
		TotalAmount:  decimal.RequireFromString("600.00"),
		HasVariance:  true,
		NCRNos:       []string{"NCR-2026-0001"},
		POAutoClosed: true,
		PostedAt:     time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	tasks := pendingTasks(t, inspector)
	require.Len(t, tasks, 1)
	require.Equal(t, jobs.TaskNotifyDeliveryPosted, tasks[0].Type)

	var p jobs.DeliveryPostedPayload
	require.NoError(t, json.Unmarshal(tasks[0].Payload, &p))
	require.Equal(t, "DLV-3-20260115-001", p.DeliveryNo)
	require.Equal(t, "600", p.TotalAmount)
	require.True(t, p.POAutoClosed)
	require.Equal(t, []string{"NCR-2026-0001"}, p.NCRNos)
}

func TestOverDeliverySkipsBlockedLines(t *testing.T) {
	n, inspector := newTestNotifier(t)

	err := n.OverDelivery(context.Background(), delivery.OverDeliveryEvent{
		DeliveryID: 11,
		DeliveryNo: "DLV-3-20260115-001",
		ItemID:     2,
		Qty:        decimal.RequireFromString("40"),
		Remaining:  decimal.RequireFromString("25"),
		Approved:   false,
	})
	require.NoError(t, err)
	require.Empty(t, pendingTasks(t, inspector))

	err = n.OverDelivery(context.Background(), delivery.OverDeliveryEvent{
		DeliveryID: 11,
		DeliveryNo: "DLV-3-20260115-001",
		ItemID:     2,
		Qty:        decimal.RequireFromString("40"),
		Remaining:  decimal.RequireFromString("25"),
		Approved:   true,
		ActorID:    8,
	})
	require.NoError(t, err)

	tasks := pendingTasks(t, inspector)
	require.Len(t, tasks, 1)
	require.Equal(t, jobs.TaskNotifyOverDelivery, tasks[0].Type)

	var p jobs.OverDeliveryPayload
	require.NoError(t, json.Unmarshal(tasks[0].Payload, &p))
	require.Equal(t, int64(8), p.ActorID)
	require.Equal(t, "40", p.Qty)
}

func TestTransferLifecycleEnqueued(t *testing.T) {
	n, inspector := newTestNotifier(t)

	err := n.TransferSubmitted(context.Background(), transfer.SubmittedEvent{
		TransferID:     5,
		TransferNo:     "TRF-3-20260120-001",
		FromLocationID: 3,
		ToLocationID:   4,
		TotalValue:     decimal.RequireFromString("420.00"),
		SubmittedBy:    5,
	})
	require.NoError(t, err)

	err = n.TransferDecided(context.Background(), transfer.DecidedEvent{
		TransferID:   5,
		TransferNo:   "TRF-3-20260120-001",
		Approved:     false,
		RejectReason: "wrong destination",
		DecidedBy:    8,
	})
	require.NoError(t, err)

	tasks := pendingTasks(t, inspector)
	require.Len(t, tasks, 2)

	types := map[string]bool{}
	for _, task := range tasks {
		types[task.Type] = true
		if task.Type == jobs.TaskNotifyTransferDecided {
			var p jobs.TransferDecidedPayload
			require.NoError(t, json.Unmarshal(task.Payload, &p))
			require.False(t, p.Approved)
			require.Equal(t, "wrong destination", p.RejectReason)
		}
	}
	require.True(t, types[jobs.TaskNotifyTransferSubmitted])
	require.True(t, types[jobs.TaskNotifyTransferDecided])
}
