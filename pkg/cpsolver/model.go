// Package cpsolver implements a small deterministic branch-and-bound solver
// over boolean decision variables and linear constraints. It is the only
// solver-surface contract the timetable model builder depends on: boolean
// variables, linear sums compared against a bound, and a single
// Minimize(linear) objective.
package cpsolver

import "fmt"

// Op is the comparison operator of a LinearConstraint.
type Op int

const (
	OpEqual Op = iota
	OpLessOrEqual
	OpGreaterOrEqual
)

// BoolVar is a handle to a boolean decision variable owned by a Model.
type BoolVar struct {
	id   int
	name string
}

// ID returns the dense, zero-based index of the variable inside its Model.
func (v BoolVar) ID() int { return v.id }

// String renders the variable's debug name.
func (v BoolVar) String() string { return v.name }

// term is one coefficient*variable pair inside a constraint or the objective.
type term struct {
	varID int
	coeff float64
}

// LinearConstraint is a single "Σ coeff*var OP bound" row.
type LinearConstraint struct {
	Name  string
	terms []term
	op    Op
	bound float64
}

// Model accumulates boolean variables, linear constraints, and an objective.
// It is not safe for concurrent writes; build it single-threaded, then call
// Solve.
type Model struct {
	names       []string
	constraints []LinearConstraint
	objective   []term
	infeasible  bool // set by MarkInfeasible; short-circuits Solve
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{}
}

// NewBoolVar allocates a fresh boolean variable with a debug name.
func (m *Model) NewBoolVar(name string) BoolVar {
	id := len(m.names)
	m.names = append(m.names, name)
	return BoolVar{id: id, name: name}
}

// NumVars returns the number of variables allocated so far.
func (m *Model) NumVars() int { return len(m.names) }

// AddLinear adds a constraint "Σ coeff_i*vars_i OP bound".
func (m *Model) AddLinear(name string, vars []BoolVar, coeffs []float64, op Op, bound float64) LinearConstraint {
	if len(vars) != len(coeffs) {
		panic(fmt.Sprintf("cpsolver: AddLinear %q: vars/coeffs length mismatch", name))
	}
	terms := make([]term, len(vars))
	for i, v := range vars {
		terms[i] = term{varID: v.id, coeff: coeffs[i]}
	}
	c := LinearConstraint{Name: name, terms: terms, op: op, bound: bound}
	m.constraints = append(m.constraints, c)
	return c
}

// AddSumEqual is shorthand for Σ vars == bound with unit coefficients.
func (m *Model) AddSumEqual(name string, vars []BoolVar, bound float64) {
	m.AddLinear(name, vars, unitCoeffs(len(vars)), OpEqual, bound)
}

// AddSumAtMost is shorthand for Σ vars <= bound with unit coefficients.
func (m *Model) AddSumAtMost(name string, vars []BoolVar, bound float64) {
	m.AddLinear(name, vars, unitCoeffs(len(vars)), OpLessOrEqual, bound)
}

// AddSumAtLeast is shorthand for Σ vars >= bound with unit coefficients.
func (m *Model) AddSumAtLeast(name string, vars []BoolVar, bound float64) {
	m.AddLinear(name, vars, unitCoeffs(len(vars)), OpGreaterOrEqual, bound)
}

// Fix forces var == value (1 or 0) via a trivial unit constraint.
func (m *Model) Fix(name string, v BoolVar, value bool) {
	b := 0.0
	if value {
		b = 1.0
	}
	m.AddLinear(name, []BoolVar{v}, []float64{1}, OpEqual, b)
}

// MarkInfeasible records that the caller detected an impossible requirement
// while building the model (e.g. a fixed entry referencing a variable that
// was never created). Solve short-circuits with StatusModelInvalid.
func (m *Model) MarkInfeasible() {
	m.infeasible = true
}

// Minimize sets the objective to Σ coeff_i*vars_i, replacing any previous
// objective.
func (m *Model) Minimize(vars []BoolVar, coeffs []float64) {
	if len(vars) != len(coeffs) {
		panic("cpsolver: Minimize: vars/coeffs length mismatch")
	}
	terms := make([]term, len(vars))
	for i, v := range vars {
		terms[i] = term{varID: v.id, coeff: coeffs[i]}
	}
	m.objective = terms
}

// AddToObjective accumulates additional weighted terms onto the existing
// objective (used to combine a primary and secondary lexicographic term).
func (m *Model) AddToObjective(vars []BoolVar, coeffs []float64) {
	if len(vars) != len(coeffs) {
		panic("cpsolver: AddToObjective: vars/coeffs length mismatch")
	}
	for i, v := range vars {
		m.objective = append(m.objective, term{varID: v.id, coeff: coeffs[i]})
	}
}

func unitCoeffs(n int) []float64 {
	c := make([]float64, n)
	for i := range c {
		c[i] = 1
	}
	return c
}
