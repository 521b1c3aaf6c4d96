package opt

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RoutePlan is one vehicle's visiting order between its anchors, with the
// cumulative dimension values at the end anchor.
type RoutePlan struct {
	Vehicle int
	Seq     []int
	Dist    int64
	Time    int64
	Cost    int64
}

// Solution is a full assignment: one plan per vehicle plus rejected pairs.
type Solution struct {
	Plans    []RoutePlan
	Rejected []int
	Cost     int64
}

func (s Solution) clone() Solution {
	out := Solution{Plans: make([]RoutePlan, len(s.Plans)), Rejected: append([]int(nil), s.Rejected...), Cost: s.Cost}
	for i, pl := range s.Plans {
		out.Plans[i] = pl
		out.Plans[i].Seq = append([]int(nil), pl.Seq...)
	}
	return out
}

// StopReason tells why the improvement loop ended.
type StopReason string

const (
	StopBudget     StopReason = "budget"
	StopIterations StopReason = "iterations"
	StopConverged  StopReason = "converged"
	StopCancelled  StopReason = "cancelled"
	StopSkipped    StopReason = "skipped"
)

// Metrics summarises one search.
type Metrics struct {
	RemovalSelects        [2]int // random, shaw
	InsertSelects         [2]int // greedy, regret2
	Iterations            int
	Improvements          int
	ConstructionCost      int64
	BestCost              int64
	FinalRemovalWeights   [2]float64
	FinalInsertionWeights [2]float64
	StopReason            StopReason
	Elapsed               time.Duration
}

type solver struct {
	m        *Model
	cfg      Config
	rng      *rand.Rand
	ctx      context.Context
	deadline time.Time
}

// Solve builds a cheapest-insertion solution and improves it with local
// search and ruin-and-recreate until the budget ends or the search stalls.
// The returned solution is the best one seen.
func Solve(ctx context.Context, m *Model) (Solution, Metrics, error) {
	cfg := m.Config()
	start := time.Now()
	seed := cfg.Seed
	if seed == 0 {
		seed = start.UnixNano()
	}
	s := &solver{m: m, cfg: cfg, rng: rand.New(rand.NewSource(seed)), ctx: ctx, deadline: start.Add(cfg.TimeBudget)}
	var met Metrics

	curr := s.construct()
	met.ConstructionCost = curr.Cost
	if len(curr.Rejected) > 0 && cfg.DisableRejection {
		met.StopReason = StopSkipped
		// construction cut short by the budget, not proven infeasible
		switch {
		case s.ctx.Err() != nil:
			met.StopReason = StopCancelled
		case s.expired():
			met.StopReason = StopBudget
		}
		met.Elapsed = time.Since(start)
		return Solution{}, met, fmt.Errorf("solve: %d orders without feasible insertion: %w", len(curr.Rejected), ErrNoSolution)
	}
	s.localSearch(&curr)
	best := curr

	remW := []float64{1, 1}
	insW := []float64{1, 1}
	stall := 0
	for {
		if reason, done := s.stop(met.Iterations, stall); done {
			met.StopReason = reason
			break
		}
		if len(m.Problem.Pairs) == 0 {
			met.StopReason = StopConverged
			break
		}
		met.Iterations++
		cand := best.clone()
		k := 1 + s.rng.Intn(3)
		op := selectOp(remW, s.rng)
		met.RemovalSelects[op]++
		ip := selectOp(insW, s.rng)
		met.InsertSelects[ip]++
		var removed []int
		switch op {
		case 0:
			removed = s.randomRemoval(&cand, k)
		case 1:
			removed = s.shawRemoval(&cand, k)
		}
		// rejected orders join every recreate step
		removed = append(removed, cand.Rejected...)
		cand.Rejected = nil
		switch ip {
		case 0:
			s.greedyInsert(&cand, removed)
		case 1:
			s.regretInsert(&cand, removed)
		}
		s.localSearch(&cand)
		if cand.Cost < best.Cost {
			best = cand
			remW[op] += 0.1
			insW[ip] += 0.1
			met.Improvements++
			stall = 0
		} else {
			remW[op] = math.Max(0.01, remW[op]*0.999)
			insW[ip] = math.Max(0.01, insW[ip]*0.999)
			stall++
		}
	}
	met.BestCost = best.Cost
	met.FinalRemovalWeights = [2]float64{remW[0], remW[1]}
	met.FinalInsertionWeights = [2]float64{insW[0], insW[1]}
	met.Elapsed = time.Since(start)
	return best, met, nil
}

func (s *solver) stop(iter, stall int) (StopReason, bool) {
	if s.ctx.Err() != nil {
		return StopCancelled, true
	}
	if s.cfg.MaxIterations > 0 && iter >= s.cfg.MaxIterations {
		return StopIterations, true
	}
	if !time.Now().Before(s.deadline) {
		return StopBudget, true
	}
	if stall >= s.cfg.MaxStall {
		return StopConverged, true
	}
	return "", false
}

func (s *solver) expired() bool {
	return s.ctx.Err() != nil || !time.Now().Before(s.deadline)
}

func (s *solver) emptySolution() Solution {
	sol := Solution{Plans: make([]RoutePlan, s.m.Vehicles())}
	for v := range sol.Plans {
		sol.Plans[v] = RoutePlan{Vehicle: v}
		s.refresh(&sol.Plans[v])
	}
	sol.Cost = s.total(&sol)
	return sol
}

func (s *solver) construct() Solution {
	sol := s.emptySolution()
	pool := make([]int, len(s.m.Problem.Pairs))
	for i := range pool {
		pool[i] = i
	}
	s.greedyInsert(&sol, pool)
	return sol
}

func (s *solver) refresh(pl *RoutePlan) {
	pl.Dist, pl.Time, pl.Cost = s.m.Cumuls(pl.Vehicle, pl.Seq)
}

func (s *solver) total(sol *Solution) int64 {
	var c int64
	for _, pl := range sol.Plans {
		c += pl.Cost
	}
	return c + int64(len(sol.Rejected))*s.cfg.RejectionPenalty
}

// insertion places a pair's pickup at seq index i and its dropoff right
// after the original seq[j-1], with j >= i.
type insertion struct {
	ok    bool
	plan  int
	i, j  int
	delta int64
}

// cheapestInsertion scans every plan and position pair with O(1) deltas.
// Arcs are non-negative, so placing the pickup first also keeps its
// cumulative values at or below the dropoff's on every dimension; only the
// ceilings need checking. second is the runner-up delta for regret.
func (s *solver) cheapestInsertion(plans []RoutePlan, pi int) (best insertion, second int64) {
	second = math.MaxInt64
	pr := s.m.Problem.Pairs[pi]
	p, d := pr.Pickup, pr.Dropoff
	consider := func(vi, i, j int, delta, dist, tm int64) {
		if !s.m.withinCeilings(dist, tm) {
			return
		}
		if !best.ok || delta < best.delta {
			if best.ok {
				second = best.delta
			}
			best = insertion{ok: true, plan: vi, i: i, j: j, delta: delta}
			return
		}
		if delta < second {
			second = delta
		}
	}
	for vi := range plans {
		pl := &plans[vi]
		n := len(pl.Seq)
		for i := 0; i <= n; i++ {
			a := s.m.node(pl.Vehicle, pl.Seq, i)
			b := s.m.node(pl.Vehicle, pl.Seq, i+1)
			cAB, dAB, tAB := s.m.arc(a, b)
			cAP, dAP, tAP := s.m.arc(a, p)
			cPD, dPD, tPD := s.m.arc(p, d)
			cDB, dDB, tDB := s.m.arc(d, b)
			consider(vi, i, i, cAP+cPD+cDB-cAB, pl.Dist+dAP+dPD+dDB-dAB, pl.Time+tAP+tPD+tDB-tAB)

			cPB, dPB, tPB := s.m.arc(p, b)
			pc, pd, pt := cAP+cPB-cAB, dAP+dPB-dAB, tAP+tPB-tAB
			for j := i + 1; j <= n; j++ {
				x := s.m.node(pl.Vehicle, pl.Seq, j)
				y := s.m.node(pl.Vehicle, pl.Seq, j+1)
				cXY, dXY, tXY := s.m.arc(x, y)
				cXD, dXD, tXD := s.m.arc(x, d)
				cDY, dDY, tDY := s.m.arc(d, y)
				consider(vi, i, j, pc+cXD+cDY-cXY, pl.Dist+pd+dXD+dDY-dXY, pl.Time+pt+tXD+tDY-tXY)
			}
		}
	}
	return best, second
}

func (s *solver) apply(sol *Solution, pi int, ins insertion) {
	pl := &sol.Plans[ins.plan]
	pr := s.m.Problem.Pairs[pi]
	seq := make([]int, 0, len(pl.Seq)+2)
	seq = append(seq, pl.Seq[:ins.i]...)
	seq = append(seq, pr.Pickup)
	seq = append(seq, pl.Seq[ins.i:ins.j]...)
	seq = append(seq, pr.Dropoff)
	seq = append(seq, pl.Seq[ins.j:]...)
	pl.Seq = seq
	s.refresh(pl)
	sol.Cost = s.total(sol)
}

// greedyInsert repeatedly commits the globally cheapest feasible insertion.
// Pairs left without one, or still pooled when the budget runs out, are
// rejected.
func (s *solver) greedyInsert(sol *Solution, pool []int) {
	pool = append([]int(nil), pool...)
	for len(pool) > 0 && !s.expired() {
		bestAt := -1
		var best insertion
		for at, pi := range pool {
			ins, _ := s.cheapestInsertion(sol.Plans, pi)
			if ins.ok && (bestAt < 0 || ins.delta < best.delta) {
				best, bestAt = ins, at
			}
		}
		if bestAt < 0 {
			break
		}
		s.apply(sol, pool[bestAt], best)
		pool = append(pool[:bestAt], pool[bestAt+1:]...)
	}
	sol.Rejected = append(sol.Rejected, pool...)
	sol.Cost = s.total(sol)
}

// regretInsert commits first the pair that would lose most by waiting:
// the largest gap between its best and second-best insertion.
func (s *solver) regretInsert(sol *Solution, pool []int) {
	pool = append([]int(nil), pool...)
	for len(pool) > 0 && !s.expired() {
		bestAt := -1
		var best insertion
		var bestRegret int64
		for at, pi := range pool {
			ins, second := s.cheapestInsertion(sol.Plans, pi)
			if !ins.ok {
				continue
			}
			regret := int64(math.MaxInt64)
			if second != math.MaxInt64 {
				regret = second - ins.delta
			}
			if bestAt < 0 || regret > bestRegret || (regret == bestRegret && ins.delta < best.delta) {
				best, bestAt, bestRegret = ins, at, regret
			}
		}
		if bestAt < 0 {
			break
		}
		s.apply(sol, pool[bestAt], best)
		pool = append(pool[:bestAt], pool[bestAt+1:]...)
	}
	sol.Rejected = append(sol.Rejected, pool...)
	sol.Cost = s.total(sol)
}

func selectOp(weights []float64, rng *rand.Rand) int {
	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return 0
	}
	r := rng.Float64() * sum
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return i
		}
	}
	return len(weights) - 1
}
