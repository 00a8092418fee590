package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationErrorWrapping(t *testing.T) {
	err := fmt.Errorf("register trip: %w", NewValidationError("waypoints", "must not be empty"))

	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "waypoints must not be empty")
	assert.False(t, IsValidation(ErrForecastUnavailable))
}

func TestEvaluationStateTerminal(t *testing.T) {
	assert.False(t, StatePending.IsTerminal())
	assert.False(t, StateEvaluating.IsTerminal())
	for _, s := range []EvaluationState{StateNoActionNeeded, StateCooldownBlocked, StateNotified, StateEvaluationFailed, StateSkipped} {
		assert.True(t, s.IsTerminal(), s)
	}
}
