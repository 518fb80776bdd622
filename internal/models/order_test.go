package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderStatus(t *testing.T) {
	for _, s := range AllStatuses {
		got, err := ParseOrderStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	got, err := ParseOrderStatus("  Paid ")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got)

	for _, bad := range []string{"", "bogus", "delivered", "refunded"} {
		_, err := ParseOrderStatus(bad)
		assert.Error(t, err, bad)
	}
}

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPaid, StatusPreparing, true},
		{StatusPreparing, StatusShipped, true},
		{StatusShipped, StatusDone, true},
		{StatusPending, StatusShipped, true},
		{StatusPending, StatusCancelled, true},
		{StatusPaid, StatusCancelled, true},
		{StatusPreparing, StatusCancelled, false},
		{StatusShipped, StatusCancelled, false},
		{StatusPaid, StatusPending, false},
		{StatusDone, StatusShipped, false},
		{StatusCancelled, StatusPaid, false},
		{StatusDone, StatusCancelled, false},
		{StatusPaid, StatusPaid, false},
		{StatusPending, OrderStatus("bogus"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestCalcTotal(t *testing.T) {
	items := []OrderItem{
		{ProductID: "p1", Price: decimal.RequireFromString("10.99"), Quantity: 2},
		{ProductID: "p2", Price: decimal.RequireFromString("15.99"), Quantity: 1},
	}

	total := CalcTotal(items)
	assert.True(t, decimal.RequireFromString("37.97").Equal(total), total.String())
	assert.True(t, CalcTotal(nil).IsZero())
}

func TestCartLineDisplayName(t *testing.T) {
	assert.Equal(t, "Chaise", CartLine{ProductID: "p1", Name: "Chaise"}.DisplayName())
	assert.Equal(t, "p1", CartLine{ProductID: "p1"}.DisplayName())
}
