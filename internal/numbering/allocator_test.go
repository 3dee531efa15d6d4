package numbering

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormats(t *testing.T) {
	date := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "DLV-3-20260115-004", FormatDelivery(3, date, 4))
	require.Equal(t, "ISS-3-20260115-012", FormatIssue(3, date, 12))
	require.Equal(t, "TRF-7-20260115-001", FormatTransfer(7, date, 1))
	require.Equal(t, "NCR-2026-0017", FormatNCR(2026, 17))
}

func TestScopesSeparateLocationsAndDays(t *testing.T) {
	d1 := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	require.NotEqual(t, DeliveryScope(1, d1), DeliveryScope(2, d1))
	require.NotEqual(t, DeliveryScope(1, d1), DeliveryScope(1, d2))
	require.NotEqual(t, DeliveryScope(1, d1), IssueScope(1, d1))
	require.Equal(t, "NCR:2026", NCRScope(2026))
}
