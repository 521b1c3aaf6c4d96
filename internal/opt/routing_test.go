package opt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func lineModel(t *testing.T, cfg Config) *Model {
	t.Helper()
	orders := []Order{
		{ID: 1, Pickup: Location{Lng: 0.1}, Dropoff: Location{Lng: 0.2}},
		{ID: 2, Pickup: Location{Lng: 0.3}, Dropoff: Location{Lng: 0.4}},
	}
	p := BuildProblem(orders, []Vehicle{{ID: 1}})
	return NewModel(p, BuildMatrices(p.Locations, nil), cfg)
}

func TestModelFeasible(t *testing.T) {
	m := lineModel(t, DefaultConfig())
	// nodes: 0 anchor, 1/2 order 1, 3/4 order 2
	assert.True(t, m.Feasible(0, nil))
	assert.True(t, m.Feasible(0, []int{1, 2}))
	assert.True(t, m.Feasible(0, []int{1, 3, 2, 4}))
	assert.True(t, m.Feasible(0, []int{1, 3, 4, 2}))

	assert.False(t, m.Feasible(0, []int{2, 1}), "dropoff before pickup")
	assert.False(t, m.Feasible(0, []int{1}), "pickup without dropoff")
	assert.False(t, m.Feasible(0, []int{1, 2, 1, 2}), "pair visited twice")
	assert.False(t, m.Feasible(0, []int{0, 1, 2}), "anchor inside route")
}

func TestModelFeasibleCeilings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRouteDistanceM = 50_000
	m := lineModel(t, cfg)
	// 0.2 degrees out and back is about 44.5 km
	assert.True(t, m.Feasible(0, []int{1, 2}))
	// 0.4 degrees out and back is about 89 km
	assert.False(t, m.Feasible(0, []int{1, 3, 2, 4}))

	cfg = DefaultConfig()
	cfg.MaxRouteTimeS = 3600
	m = lineModel(t, cfg)
	// 44.5 km at 40 km/h takes longer than an hour
	assert.False(t, m.Feasible(0, []int{1, 2}))
}

func TestModelCumuls(t *testing.T) {
	m := lineModel(t, DefaultConfig())
	dist, tm, cost := m.Cumuls(0, []int{1, 2})
	assert.Equal(t, m.Matrices.Distance[0][1]+m.Matrices.Distance[1][2]+m.Matrices.Distance[2][0], dist)
	assert.Equal(t, m.Matrices.Time[0][1]+m.Matrices.Time[1][2]+m.Matrices.Time[2][0], tm)
	assert.Equal(t, tm, cost)

	cfg := DefaultConfig()
	cfg.Objective = ObjectiveDistance
	m = NewModel(m.Problem, m.Matrices, cfg)
	_, _, cost = m.Cumuls(0, []int{1, 2})
	assert.Equal(t, dist, cost)
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, ObjectiveTime, c.Objective)
	assert.Equal(t, DimensionDistance, c.PrecedenceDimension)
	assert.Equal(t, DefaultRejectionPenalty, c.RejectionPenalty)
	assert.Equal(t, DefaultMaxRouteDistanceM, c.MaxRouteDistanceM)
	assert.Equal(t, DefaultMaxRouteTimeS, c.MaxRouteTimeS)
	assert.Equal(t, DefaultTimeBudget, c.TimeBudget)
	assert.False(t, c.DisableRejection)
	assert.Equal(t, DefaultConfig(), Config{}.withDefaults())
}
