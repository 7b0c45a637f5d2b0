package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		ok   bool
	}{
		{StatusActive, StatusCompleted, true},
		{StatusActive, StatusStale, true},
		{StatusActive, StatusFailed, true},
		{StatusActive, StatusActive, false},
		{StatusCompleted, StatusActive, false},
		{StatusCompleted, StatusStale, false},
		{StatusStale, StatusCompleted, false},
		{StatusFailed, StatusActive, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestPriorityValid(t *testing.T) {
	assert.True(t, PriorityHigh.Valid())
	assert.True(t, PriorityNormal.Valid())
	assert.True(t, PriorityLow.Valid())
	assert.False(t, Priority("urgent").Valid())
	assert.False(t, Priority("").Valid())
}
