package opt

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Optimizer runs the full pipeline for one request at a time per call. It
// holds only immutable dependencies and is safe for concurrent use.
type Optimizer struct {
	est      Estimator
	degraded bool
	cfg      Config
	log      *zap.Logger
}

// New creates an Optimizer. A nil estimator puts it in degraded mode: the
// objective becomes distance and times use LinearEstimator at
// DefaultSpeedKph.
func New(est Estimator, cfg Config, log *zap.Logger) *Optimizer {
	if log == nil {
		log = zap.NewNop()
	}
	o := &Optimizer{est: est, cfg: cfg.withDefaults(), log: log}
	if est == nil {
		o.est = LinearEstimator{SpeedKph: DefaultSpeedKph}
		o.degraded = true
		log.Warn("travel-time estimator unavailable, optimising distance instead",
			zap.Float64("fallback_speed_kph", DefaultSpeedKph))
	}
	return o
}

// Config returns the default configuration used by Optimize.
func (o *Optimizer) Config() Config { return o.cfg }

// Degraded reports whether the estimator fallback is active.
func (o *Optimizer) Degraded() bool { return o.degraded }

// Optimize uses the optimizer's default configuration.
func (o *Optimizer) Optimize(ctx context.Context, orders []Order, vehicles []Vehicle) (Result, error) {
	return o.OptimizeWith(ctx, o.cfg, orders, vehicles)
}

type outcome struct {
	sol Solution
	met Metrics
	err error
}

// OptimizeWith validates the input, builds the model and runs the search on
// its own goroutine. Infeasibility and budget expiry are reported in the
// Result; only validation failures and ctx cancellation return errors.
func (o *Optimizer) OptimizeWith(ctx context.Context, cfg Config, orders []Order, vehicles []Vehicle) (Result, error) {
	if err := Validate(orders, vehicles); err != nil {
		return Result{}, err
	}
	cfg = cfg.withDefaults()
	if o.degraded {
		cfg.Objective = ObjectiveDistance
	}
	runID := uuid.NewString()
	log := o.log.With(zap.String("run_id", runID), zap.Int("orders", len(orders)), zap.Int("vehicles", len(vehicles)))
	stats := Stats{RunID: runID, Degraded: o.degraded, Objective: cfg.Objective, StopReason: StopSkipped}

	prob := BuildProblem(orders, vehicles)
	if len(vehicles) == 0 || len(orders) == 0 {
		// nothing to search: either no fleet or no demand
		res := Extract(NewModel(prob, Matrices{}, cfg), Solution{Rejected: allPairs(len(prob.Pairs))})
		res.Stats = stats
		log.Debug("optimisation skipped", zap.Int("unassigned", len(res.Unassigned)))
		return res, nil
	}

	model := NewModel(prob, BuildMatrices(prob.Locations, o.est), cfg)
	done := make(chan outcome, 1)
	go func() {
		sol, met, err := Solve(ctx, model)
		done <- outcome{sol: sol, met: met, err: err}
	}()

	var out outcome
	select {
	case <-ctx.Done():
		return Result{}, fmt.Errorf("optimize: %w", ctx.Err())
	case out = <-done:
	}
	if out.met.StopReason == StopCancelled && ctx.Err() != nil {
		return Result{}, fmt.Errorf("optimize: %w", ctx.Err())
	}

	var res Result
	switch {
	case errors.Is(out.err, ErrNoSolution):
		log.Info("no feasible solution with rejection disabled", zap.Error(out.err))
		res = unassignedAll(model)
	case out.err != nil:
		return Result{}, fmt.Errorf("optimize: %w", out.err)
	default:
		res = Extract(model, out.sol)
	}
	stats.Iterations = out.met.Iterations
	stats.Improvements = out.met.Improvements
	stats.ConstructionCost = out.met.ConstructionCost
	stats.FinalCost = out.met.BestCost
	stats.StopReason = out.met.StopReason
	stats.Elapsed = out.met.Elapsed
	res.Stats = stats
	log.Info("optimisation finished",
		zap.String("stop_reason", string(stats.StopReason)),
		zap.Int("iterations", stats.Iterations),
		zap.Int("improvements", stats.Improvements),
		zap.Int64("construction_cost", stats.ConstructionCost),
		zap.Int64("final_cost", stats.FinalCost),
		zap.Int("unassigned", len(res.Unassigned)),
		zap.Duration("elapsed", out.met.Elapsed))
	return res, nil
}

func allPairs(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
