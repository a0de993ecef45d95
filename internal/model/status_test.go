package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatus_Step(t *testing.T) {
	tests := []struct {
		status OrderStatus
		want   int
	}{
		{StatusPending, 1},
		{StatusPreparing, 2},
		{StatusReady, 3},
		{StatusCompleted, 4},
		{"PREPARING", 2},
		{"", 1},
		{StatusCancelled, 0},
		{"bogus", 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Step())
		})
	}
}

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{StatusPending, StatusPreparing, true},
		{StatusPreparing, StatusReady, true},
		{StatusReady, StatusCompleted, true},
		{StatusPending, StatusReady, true},
		{StatusPending, StatusCancelled, true},
		{StatusPreparing, StatusCancelled, false},
		{StatusReady, StatusPreparing, false},
		{StatusCompleted, StatusPending, false},
		{StatusCancelled, StatusPending, false},
		{StatusPending, StatusPending, false},
		{StatusPending, "bogus", false},
		{"PENDING", "Preparing", true},
		{"COMPLETED", StatusPending, false},
		{"Pending", "CANCELLED", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestParseOrderStatus(t *testing.T) {
	s, err := ParseOrderStatus(" Ready ")
	require.NoError(t, err)
	assert.Equal(t, StatusReady, s)

	s, err = ParseOrderStatus("")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, s)

	_, err = ParseOrderStatus("served")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "status", verr.Field)
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusReady.IsTerminal())
}

func TestOrderStatus_MixedCaseAgrees(t *testing.T) {
	for _, s := range []OrderStatus{"COMPLETED", "Completed", " completed "} {
		assert.Equal(t, 4, s.Step(), s)
		assert.True(t, s.IsTerminal(), s)
	}
	assert.True(t, OrderStatus("Cancelled").IsTerminal())
	assert.False(t, OrderStatus("READY").IsTerminal())
}
