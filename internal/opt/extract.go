package opt

import (
	"sort"
	"time"
)

// StopType classifies a visited node.
type StopType string

const (
	StopPickup  StopType = "pickup"
	StopDropoff StopType = "dropoff"
)

// Stop is one pickup or dropoff on a route.
type Stop struct {
	OrderID  int
	Location Location
	Type     StopType
}

// Route is a vehicle's ordered stops with totals read from the cumulative
// dimensions at its end anchor.
type Route struct {
	VehicleID       int
	Stops           []Stop
	TotalDistanceKm float64
	TotalTimeHours  float64
}

// Result is the outcome of one optimisation. Every input order is either on
// exactly one route (pickup before dropoff) or listed in Unassigned.
type Result struct {
	Routes     []Route
	Unassigned []int
	Stats      Stats
}

// Stats reports how the search went.
type Stats struct {
	RunID            string
	Iterations       int
	Improvements     int
	ConstructionCost int64
	FinalCost        int64
	StopReason       StopReason
	Elapsed          time.Duration
	Degraded         bool
	Objective        Objective
}

// Extract converts a solution into routes. Totals are the solver's
// cumulative values, not recomputed.
func Extract(m *Model, sol Solution) Result {
	p := m.Problem
	res := Result{Routes: make([]Route, 0, len(p.VehicleIDs)), Unassigned: []int{}}
	plans := make(map[int]RoutePlan, len(sol.Plans))
	for _, pl := range sol.Plans {
		plans[pl.Vehicle] = pl
	}
	for v, vid := range p.VehicleIDs {
		rt := Route{VehicleID: vid, Stops: []Stop{}}
		// totals are the cumuls at the end anchor, so a vehicle without stops
		// still reports its start to end leg
		if pl, ok := plans[v]; ok {
			for _, n := range pl.Seq {
				pi, isOrder := p.PairOf(n)
				if !isOrder {
					continue
				}
				typ := StopDropoff
				if p.Pairs[pi].Pickup == n {
					typ = StopPickup
				}
				rt.Stops = append(rt.Stops, Stop{OrderID: p.Pairs[pi].OrderID, Location: p.Locations[n], Type: typ})
			}
			rt.TotalDistanceKm = metresToKm(pl.Dist)
			rt.TotalTimeHours = secondsToHours(pl.Time)
		}
		res.Routes = append(res.Routes, rt)
	}
	rejected := append([]int(nil), sol.Rejected...)
	sort.Ints(rejected)
	for _, pi := range rejected {
		res.Unassigned = append(res.Unassigned, p.Pairs[pi].OrderID)
	}
	return res
}

// unassignedAll reports every order as unassigned with idle routes, the
// outcome when the solver finds no solution.
func unassignedAll(m *Model) Result {
	sol := Solution{Plans: make([]RoutePlan, m.Vehicles()), Rejected: allPairs(len(m.Problem.Pairs))}
	for v := range sol.Plans {
		pl := RoutePlan{Vehicle: v}
		pl.Dist, pl.Time, pl.Cost = m.Cumuls(v, nil)
		sol.Plans[v] = pl
	}
	return Extract(m, sol)
}
