package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	rows   []TimelineRow
	gotF   TimelineFilters
	gotOff int
	gotLim int
}

func (m *memoryRepo) Window(_ context.Context, f TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	m.gotF = f
	m.gotOff = offset
	m.gotLim = limit
	var out []TimelineRow
	for _, row := range m.rows {
		if f.ActorID > 0 && row.ActorID != f.ActorID {
			continue
		}
		if f.Entity != "" && row.Entity != f.Entity {
			continue
		}
		out = append(out, row)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func seedRows(n int, actorID int64, entity string) []TimelineRow {
	rows := make([]TimelineRow, 0, n)
	base := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		rows = append(rows, TimelineRow{
			At: base.Add(time.Duration(i) * time.Minute), ActorID: actorID,
			Action: "delivery.post", Entity: entity, EntityID: "11",
		})
	}
	return rows
}

var (
	admin  = shared.Actor{ID: 1, Role: shared.RoleAdmin}
	keeper = shared.Actor{ID: 5, Role: shared.RoleStorekeep}
)

func TestTimelinePagingDetectsNextPage(t *testing.T) {
	repo := &memoryRepo{rows: seedRows(25, 5, "delivery")}
	svc := NewService(repo)

	res, err := svc.Timeline(context.Background(), admin, TimelineFilters{PageSize: 20})
	require.NoError(t, err)
	require.Len(t, res.Rows, 20)
	require.True(t, res.Paging.HasNext)
	require.Equal(t, 2, res.Paging.NextPage)
	require.Equal(t, 21, repo.gotLim, "requests one extra row to probe next page")

	res, err = svc.Timeline(context.Background(), admin, TimelineFilters{Page: 2, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, res.Rows, 5)
	require.False(t, res.Paging.HasNext)
	require.Equal(t, 1, res.Paging.PrevPage)
}

func TestTimelineCapsPageSize(t *testing.T) {
	repo := &memoryRepo{}
	svc := NewService(repo)

	res, err := svc.Timeline(context.Background(), admin, TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, maxPageSize, res.Paging.PageSize)
}

func TestTimelineStorekeeperSeesOnlyOwnActions(t *testing.T) {
	repo := &memoryRepo{rows: append(seedRows(3, 5, "delivery"), seedRows(2, 8, "transfer")...)}
	svc := NewService(repo)

	res, err := svc.Timeline(context.Background(), keeper, TimelineFilters{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	require.Equal(t, int64(5), repo.gotF.ActorID, "filter forced to own actor")
}

func TestTimelineAdminFiltersPassThrough(t *testing.T) {
	repo := &memoryRepo{rows: seedRows(2, 8, "transfer")}
	svc := NewService(repo)

	res, err := svc.Timeline(context.Background(), admin, TimelineFilters{Entity: "transfer"})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	require.Zero(t, repo.gotF.ActorID, "admin view is not actor-scoped")
}
