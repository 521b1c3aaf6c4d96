package opt

import "time"

// Objective selects which matrix drives arc cost.
type Objective string

const (
	ObjectiveTime     Objective = "time"
	ObjectiveDistance Objective = "distance"
)

// Dimension names a cumulative quantity tracked along a route.
type Dimension string

const (
	DimensionDistance Dimension = "distance"
	DimensionTime     Dimension = "time"
)

const (
	DefaultRejectionPenalty  int64 = 1_000_000_000
	DefaultMaxRouteDistanceM int64 = 1_000_000
	DefaultMaxRouteTimeS     int64 = 1_000_000
	DefaultTimeBudget              = 10 * time.Second
	DefaultMaxStall                = 200
)

// Config groups model and search parameters. The zero value of every field
// means "use the default"; rejection is on unless DisableRejection is set.
type Config struct {
	Objective           Objective
	PrecedenceDimension Dimension
	DisableRejection    bool
	RejectionPenalty    int64
	MaxRouteDistanceM   int64
	MaxRouteTimeS       int64

	TimeBudget    time.Duration
	MaxIterations int
	MaxStall      int
	Seed          int64
}

// DefaultConfig returns the time-primary configuration.
func DefaultConfig() Config {
	return Config{
		Objective:           ObjectiveTime,
		PrecedenceDimension: DimensionDistance,
		RejectionPenalty:    DefaultRejectionPenalty,
		MaxRouteDistanceM:   DefaultMaxRouteDistanceM,
		MaxRouteTimeS:       DefaultMaxRouteTimeS,
		TimeBudget:          DefaultTimeBudget,
		MaxStall:            DefaultMaxStall,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Objective == "" {
		c.Objective = d.Objective
	}
	if c.PrecedenceDimension == "" {
		c.PrecedenceDimension = d.PrecedenceDimension
	}
	if c.RejectionPenalty <= 0 {
		c.RejectionPenalty = d.RejectionPenalty
	}
	if c.MaxRouteDistanceM <= 0 {
		c.MaxRouteDistanceM = d.MaxRouteDistanceM
	}
	if c.MaxRouteTimeS <= 0 {
		c.MaxRouteTimeS = d.MaxRouteTimeS
	}
	if c.TimeBudget <= 0 {
		c.TimeBudget = d.TimeBudget
	}
	if c.MaxStall <= 0 {
		c.MaxStall = d.MaxStall
	}
	return c
}

// Model encodes the pickup-and-delivery problem over a Problem's node graph:
// per-vehicle anchored routes, distance and time dimensions with ceilings,
// same-vehicle pairing, precedence and optional rejection.
type Model struct {
	Problem  Problem
	Matrices Matrices
	cfg      Config
	cost     [][]int64
	prec     [][]int64
}

// NewModel binds the problem and its matrices under cfg.
func NewModel(p Problem, m Matrices, cfg Config) *Model {
	cfg = cfg.withDefaults()
	md := &Model{Problem: p, Matrices: m, cfg: cfg, cost: m.Time, prec: m.Distance}
	if cfg.Objective == ObjectiveDistance {
		md.cost = m.Distance
	}
	if cfg.PrecedenceDimension == DimensionTime {
		md.prec = m.Time
	}
	return md
}

// Config returns the effective configuration.
func (m *Model) Config() Config { return m.cfg }

// Vehicles is the fleet size.
func (m *Model) Vehicles() int { return len(m.Problem.Starts) }

// node returns the node at path position k of vehicle v, where position 0
// is the start anchor and len(seq)+1 the end anchor.
func (m *Model) node(v int, seq []int, k int) int {
	switch {
	case k == 0:
		return m.Problem.Starts[v]
	case k == len(seq)+1:
		return m.Problem.Ends[v]
	default:
		return seq[k-1]
	}
}

// Cumuls returns the cumulative distance, time and objective cost at the end
// anchor of vehicle v's route.
func (m *Model) Cumuls(v int, seq []int) (dist, tm, cost int64) {
	prev := m.Problem.Starts[v]
	for k := 1; k <= len(seq)+1; k++ {
		n := m.node(v, seq, k)
		dist += m.Matrices.Distance[prev][n]
		tm += m.Matrices.Time[prev][n]
		cost += m.cost[prev][n]
		prev = n
	}
	return dist, tm, cost
}

// Feasible checks ceilings, pairing and precedence for one route.
func (m *Model) Feasible(v int, seq []int) bool {
	var dist, tm, precCum int64
	open := make(map[int]int64, len(seq)/2)
	closed := make(map[int]struct{}, len(seq)/2)
	prev := m.Problem.Starts[v]
	for k := 1; k <= len(seq)+1; k++ {
		n := m.node(v, seq, k)
		dist += m.Matrices.Distance[prev][n]
		tm += m.Matrices.Time[prev][n]
		precCum += m.prec[prev][n]
		prev = n
		if k == len(seq)+1 {
			break
		}
		pi, ok := m.Problem.PairOf(n)
		if !ok {
			return false
		}
		if m.Problem.Pairs[pi].Pickup == n {
			if _, dup := open[pi]; dup {
				return false
			}
			if _, dup := closed[pi]; dup {
				return false
			}
			open[pi] = precCum
			continue
		}
		at, ok := open[pi]
		if !ok || at > precCum {
			return false
		}
		delete(open, pi)
		closed[pi] = struct{}{}
	}
	if len(open) > 0 {
		return false
	}
	return dist <= m.cfg.MaxRouteDistanceM && tm <= m.cfg.MaxRouteTimeS
}

// withinCeilings reports whether route totals respect both dimension caps.
func (m *Model) withinCeilings(dist, tm int64) bool {
	return dist <= m.cfg.MaxRouteDistanceM && tm <= m.cfg.MaxRouteTimeS
}

// arc returns the objective, distance and time of i->j.
func (m *Model) arc(i, j int) (cost, dist, tm int64) {
	return m.cost[i][j], m.Matrices.Distance[i][j], m.Matrices.Time[i][j]
}
