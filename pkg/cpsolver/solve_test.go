package cpsolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveSimpleFeasible(t *testing.T) {
	m := NewModel()
	a := m.NewBoolVar("a")
	b := m.NewBoolVar("b")
	m.AddSumEqual("pick-one", []BoolVar{a, b}, 1)

	res := m.Solve(context.Background(), Options{MaxTime: time.Second})

	require.Equal(t, StatusOptimal, res.Status)
	assert.True(t, res.Value(a) != res.Value(b))
}

func TestSolveInfeasible(t *testing.T) {
	m := NewModel()
	a := m.NewBoolVar("a")
	m.Fix("fix-true", a, true)
	m.Fix("fix-false", a, false)

	res := m.Solve(context.Background(), Options{MaxTime: time.Second})

	assert.Equal(t, StatusInfeasible, res.Status)
}

func TestSolveModelInvalidShortCircuits(t *testing.T) {
	m := NewModel()
	m.NewBoolVar("a")
	m.MarkInfeasible()

	res := m.Solve(context.Background(), Options{MaxTime: time.Second})

	assert.Equal(t, StatusModelInvalid, res.Status)
	assert.Equal(t, int64(0), res.Stats.Branches)
}

func TestSolveMinimizesObjective(t *testing.T) {
	m := NewModel()
	cheap := m.NewBoolVar("cheap")
	expensive := m.NewBoolVar("expensive")
	m.AddSumEqual("pick-one", []BoolVar{cheap, expensive}, 1)
	m.Minimize([]BoolVar{cheap, expensive}, []float64{1, 100})

	res := m.Solve(context.Background(), Options{MaxTime: time.Second})

	require.Equal(t, StatusOptimal, res.Status)
	assert.True(t, res.Value(cheap))
	assert.False(t, res.Value(expensive))
	assert.Equal(t, 1.0, res.ObjectiveValue)
}

func TestSolveRespectsFixedValue(t *testing.T) {
	m := NewModel()
	a := m.NewBoolVar("a")
	b := m.NewBoolVar("b")
	m.Fix("fix-a", a, true)
	m.AddSumAtMost("at-most-one", []BoolVar{a, b}, 1)

	res := m.Solve(context.Background(), Options{MaxTime: time.Second})

	require.Equal(t, StatusOptimal, res.Status)
	assert.True(t, res.Value(a))
}

func TestSolveLexicographicObjective(t *testing.T) {
	m := NewModel()
	primary := m.NewBoolVar("primary")
	secondary := m.NewBoolVar("secondary")
	m.Minimize([]BoolVar{primary}, []float64{10})
	m.AddToObjective([]BoolVar{secondary}, []float64{1})
	m.AddSumAtLeast("secondary-must-hold", []BoolVar{secondary}, 1)

	res := m.Solve(context.Background(), Options{MaxTime: time.Second})

	require.Equal(t, StatusOptimal, res.Status)
	assert.False(t, res.Value(primary))
	assert.True(t, res.Value(secondary))
}

func TestResultValueOutOfRangeIsFalse(t *testing.T) {
	r := Result{Assignment: []bool{true}}
	assert.False(t, r.Value(BoolVar{id: 5}))
}

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusOptimal:      "OPTIMAL",
		StatusFeasible:     "FEASIBLE",
		StatusInfeasible:   "INFEASIBLE",
		StatusModelInvalid: "MODEL_INVALID",
		StatusUnknown:      "UNKNOWN",
	}
	for status, want := range cases {
		assert.Equal(t, want, status.String())
	}
}
