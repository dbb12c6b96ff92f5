package sandbox

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpBudget_WithinLimit(t *testing.T) {
	b := NewOpBudget(10)

	for i := 0; i < 10; i++ {
		assert.NoError(t, b.Check("Move"), "op %d should be allowed", i+1)
	}
	assert.Equal(t, 10, b.Current())
	assert.Equal(t, 10, b.Max())
}

func TestOpBudget_ExceedsLimit(t *testing.T) {
	b := NewOpBudget(5)
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Check("Move"))
	}

	err := b.Check("Move")
	require.Error(t, err)

	var be *BudgetExceededError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "Move", be.System)
	assert.Equal(t, 6, be.Ops)
	assert.Equal(t, 5, be.Limit)
	assert.Equal(t, "system Move exceeded op budget: 6 calls > 5 limit", err.Error())
}

func TestOpBudget_Unbounded(t *testing.T) {
	b := NewOpBudget(0)
	for i := 0; i < 1000; i++ {
		require.NoError(t, b.Check("Move"))
	}
}

func TestIsBudgetExceeded(t *testing.T) {
	err := &BudgetExceededError{System: "Move", Ops: 2, Limit: 1}
	assert.True(t, IsBudgetExceeded(err))
	assert.True(t, IsBudgetExceeded(fmt.Errorf("tick: %w", err)))
	assert.False(t, IsBudgetExceeded(fmt.Errorf("other")))
}
