package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestReceivingRecomputesWAC(t *testing.T) {
	pos := Position{LocationID: 1, ItemID: 1, OnHand: dec("100"), WAC: dec("10.00")}

	next, err := pos.Receiving(dec("50"), dec("12.00"))
	require.NoError(t, err)
	require.True(t, next.OnHand.Equal(dec("150")))
	require.True(t, next.WAC.Equal(dec("10.6667")), "got %s", next.WAC)
}

func TestReceivingFirstStockTakesReceiptPrice(t *testing.T) {
	next, err := Position{LocationID: 1, ItemID: 9}.Receiving(dec("20"), dec("5.25"))
	require.NoError(t, err)
	require.True(t, next.OnHand.Equal(dec("20")))
	require.True(t, next.WAC.Equal(dec("5.25")))
}

func TestDeductingKeepsWAC(t *testing.T) {
	pos := Position{OnHand: dec("150"), WAC: dec("10.6667")}

	next, err := pos.Deducting(dec("30"))
	require.NoError(t, err)
	require.True(t, next.OnHand.Equal(dec("120")))
	require.True(t, next.WAC.Equal(dec("10.6667")))
}

func TestDeductingGuardsNegative(t *testing.T) {
	pos := Position{OnHand: dec("5"), WAC: dec("2.00")}

	_, err := pos.Deducting(dec("6"))
	require.ErrorIs(t, err, ErrNegativeStock)
	require.True(t, pos.OnHand.Equal(dec("5")), "original position untouched")
}

func TestDeductingToZeroAllowed(t *testing.T) {
	pos := Position{OnHand: dec("5"), WAC: dec("2.00")}

	next, err := pos.Deducting(dec("5"))
	require.NoError(t, err)
	require.True(t, next.OnHand.IsZero())
	require.True(t, next.WAC.Equal(dec("2.00")))
}

func TestMovementQuantityMustBePositive(t *testing.T) {
	pos := Position{OnHand: dec("5"), WAC: dec("2.00")}

	_, err := pos.Receiving(decimal.Zero, dec("1"))
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = pos.Deducting(dec("-1"))
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestValue(t *testing.T) {
	pos := Position{OnHand: dec("120"), WAC: dec("10.6667")}
	require.True(t, pos.Value().Equal(dec("1280.00")), "got %s", pos.Value())
}
