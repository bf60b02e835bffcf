package startup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from State
		to   State
		want bool
	}{
		{StateIdle, StatePortAllocated, true},
		{StatePortAllocated, StateLocated, true},
		{StateLocated, StateSpawned, true},
		{StateSpawned, StateHealthChecking, true},
		{StateHealthChecking, StateReady, true},
		{StateIdle, StateFailed, true},
		{StateSpawned, StateFailed, true},
		{StateHealthChecking, StateFailed, true},
		{StateIdle, StateReady, false},
		{StateLocated, StateHealthChecking, false},
		{StateReady, StateFailed, false},
		{StateFailed, StateIdle, false},
		{StateFailed, StateFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, canTransition(tt.from, tt.to))
		})
	}
}

func TestState_IsTerminal(t *testing.T) {
	assert.True(t, StateReady.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	assert.False(t, StateHealthChecking.IsTerminal())
	assert.False(t, StateIdle.IsTerminal())
}
