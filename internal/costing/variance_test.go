package costing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectVarianceExactMatch(t *testing.T) {
	res := DetectVariance(dec("10.00"), dec("10.00"))
	require.False(t, res.HasVariance)
	require.True(t, res.Variance.IsZero())
}

func TestDetectVarianceOneCent(t *testing.T) {
	res := DetectVariance(dec("10.01"), dec("10.00"))
	require.True(t, res.HasVariance)
	require.True(t, res.Variance.Equal(dec("0.01")), "got %s", res.Variance)
}

func TestDetectVarianceNegative(t *testing.T) {
	res := DetectVariance(dec("4.50"), dec("5.00"))
	require.True(t, res.HasVariance)
	require.True(t, res.Variance.Equal(dec("-0.50")))
	require.True(t, res.VariancePercent.Equal(dec("-10")), "got %s", res.VariancePercent)
}

func TestVarianceValue(t *testing.T) {
	res := DetectVariance(dec("5.50"), dec("5.00"))
	require.True(t, res.HasVariance)
	got := VarianceValue(res.Variance, dec("20"))
	require.True(t, got.Equal(dec("10.00")), "got %s", got)
}
