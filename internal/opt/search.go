package opt

import "sort"

// localSearch applies pair relocation, 2-opt and or-opt until none of them
// improves the solution or the budget is spent.
func (s *solver) localSearch(sol *Solution) {
	for !s.expired() {
		improved := s.relocatePairs(sol)
		if s.twoOpt(sol) {
			improved = true
		}
		if s.orOpt(sol) {
			improved = true
		}
		if !improved {
			break
		}
	}
	sol.Cost = s.total(sol)
}

// planOf returns the plan holding pair pi, or false when it is rejected.
func (s *solver) planOf(sol *Solution, pi int) (int, bool) {
	pick := s.m.Problem.Pairs[pi].Pickup
	for vi, pl := range sol.Plans {
		for _, n := range pl.Seq {
			if n == pick {
				return vi, true
			}
		}
	}
	return 0, false
}

func (s *solver) withoutPair(pl RoutePlan, pi int) RoutePlan {
	pr := s.m.Problem.Pairs[pi]
	out := RoutePlan{Vehicle: pl.Vehicle, Seq: make([]int, 0, len(pl.Seq))}
	for _, n := range pl.Seq {
		if n != pr.Pickup && n != pr.Dropoff {
			out.Seq = append(out.Seq, n)
		}
	}
	s.refresh(&out)
	return out
}

// relocatePairs moves one order at a time to its cheapest position anywhere
// in the fleet. A rejected order is inserted whenever a feasible slot exists,
// since its penalty dominates any route cost.
func (s *solver) relocatePairs(sol *Solution) bool {
	improved := false
	for pi := range s.m.Problem.Pairs {
		if s.expired() {
			break
		}
		vi, assigned := s.planOf(sol, pi)
		plans := sol.Plans
		gain := s.cfg.RejectionPenalty
		var without RoutePlan
		if assigned {
			without = s.withoutPair(sol.Plans[vi], pi)
			gain = sol.Plans[vi].Cost - without.Cost
			plans = append([]RoutePlan(nil), sol.Plans...)
			plans[vi] = without
		}
		ins, _ := s.cheapestInsertion(plans, pi)
		if !ins.ok || ins.delta >= gain {
			continue
		}
		if assigned {
			sol.Plans[vi] = without
		} else {
			sol.Rejected = removeInt(sol.Rejected, pi)
		}
		s.apply(sol, pi, ins)
		improved = true
	}
	return improved
}

// twoOpt reverses a segment of one route. Reversals that flip an order's
// pickup and dropoff are rejected by the feasibility check.
func (s *solver) twoOpt(sol *Solution) bool {
	improved := false
	for vi := range sol.Plans {
		pl := &sol.Plans[vi]
		n := len(pl.Seq)
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				if s.expired() {
					return improved
				}
				cand := append([]int(nil), pl.Seq...)
				for a, b := i, k; a < b; a, b = a+1, b-1 {
					cand[a], cand[b] = cand[b], cand[a]
				}
				if s.tryReplace(pl, cand) {
					improved = true
				}
			}
		}
	}
	if improved {
		sol.Cost = s.total(sol)
	}
	return improved
}

// orOpt moves a run of one to three consecutive stops elsewhere in the same
// route.
func (s *solver) orOpt(sol *Solution) bool {
	improved := false
	for vi := range sol.Plans {
		pl := &sol.Plans[vi]
		for seg := 1; seg <= 3; seg++ {
			for i := 0; i+seg <= len(pl.Seq); i++ {
				rest := make([]int, 0, len(pl.Seq)-seg)
				rest = append(rest, pl.Seq[:i]...)
				rest = append(rest, pl.Seq[i+seg:]...)
				moved := pl.Seq[i : i+seg]
				for j := 0; j <= len(rest); j++ {
					if j == i {
						continue
					}
					if s.expired() {
						return improved
					}
					cand := make([]int, 0, len(pl.Seq))
					cand = append(cand, rest[:j]...)
					cand = append(cand, moved...)
					cand = append(cand, rest[j:]...)
					if s.tryReplace(pl, cand) {
						improved = true
						break
					}
				}
			}
		}
	}
	if improved {
		sol.Cost = s.total(sol)
	}
	return improved
}

// tryReplace swaps in cand when it is cheaper and feasible.
func (s *solver) tryReplace(pl *RoutePlan, cand []int) bool {
	dist, tm, cost := s.m.Cumuls(pl.Vehicle, cand)
	if cost >= pl.Cost {
		return false
	}
	if !s.m.Feasible(pl.Vehicle, cand) {
		return false
	}
	pl.Seq = cand
	pl.Dist, pl.Time, pl.Cost = dist, tm, cost
	return true
}

func (s *solver) assignedPairs(sol *Solution) []int {
	var out []int
	for _, pl := range sol.Plans {
		for _, n := range pl.Seq {
			if s.m.Problem.IsPickup(n) {
				pi, _ := s.m.Problem.PairOf(n)
				out = append(out, pi)
			}
		}
	}
	return out
}

// removePairs strips the given pairs from every plan.
func (s *solver) removePairs(sol *Solution, pairs []int) {
	if len(pairs) == 0 {
		return
	}
	rm := make(map[int]bool, 2*len(pairs))
	for _, pi := range pairs {
		pr := s.m.Problem.Pairs[pi]
		rm[pr.Pickup] = true
		rm[pr.Dropoff] = true
	}
	for vi := range sol.Plans {
		pl := &sol.Plans[vi]
		kept := pl.Seq[:0]
		changed := false
		for _, n := range pl.Seq {
			if rm[n] {
				changed = true
				continue
			}
			kept = append(kept, n)
		}
		pl.Seq = kept
		if changed {
			s.refresh(pl)
		}
	}
	sol.Cost = s.total(sol)
}

func (s *solver) randomRemoval(sol *Solution, k int) []int {
	all := s.assignedPairs(sol)
	var removed []int
	for i := 0; i < k && len(all) > 0; i++ {
		j := s.rng.Intn(len(all))
		removed = append(removed, all[j])
		all = append(all[:j], all[j+1:]...)
	}
	s.removePairs(sol, removed)
	return removed
}

// shawRemoval removes a random order plus the k-1 orders whose pickups and
// dropoffs lie closest to it.
func (s *solver) shawRemoval(sol *Solution, k int) []int {
	assigned := s.assignedPairs(sol)
	if len(assigned) == 0 {
		return nil
	}
	seed := assigned[s.rng.Intn(len(assigned))]
	sp := s.m.Problem.Pairs[seed]
	dist := s.m.Matrices.Distance
	type related struct {
		pair  int
		score int64
	}
	rel := make([]related, 0, len(assigned))
	for _, pi := range assigned {
		if pi == seed {
			continue
		}
		op := s.m.Problem.Pairs[pi]
		rel = append(rel, related{pair: pi, score: dist[sp.Pickup][op.Pickup] + dist[sp.Dropoff][op.Dropoff]})
	}
	sort.SliceStable(rel, func(a, b int) bool { return rel[a].score < rel[b].score })
	removed := []int{seed}
	for i := 0; i < len(rel) && len(removed) < k; i++ {
		removed = append(removed, rel[i].pair)
	}
	s.removePairs(sol, removed)
	return removed
}

func removeInt(xs []int, v int) []int {
	for i, x := range xs {
		if x == v {
			return append(xs[:i], xs[i+1:]...)
		}
	}
	return xs
}
