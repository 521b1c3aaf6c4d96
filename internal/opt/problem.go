package opt

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is wrapped by every validation failure.
var ErrInvalidInput = errors.New("invalid input")

// ErrNoSolution is returned when rejection is disabled and some order has no
// feasible insertion.
var ErrNoSolution = errors.New("no feasible solution")

// ValidationError describes the first invalid field of a request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// Order is a pickup-and-delivery demand.
type Order struct {
	ID      int
	Pickup  Location
	Dropoff Location
}

// Vehicle starts at Start and ends at End, or back at Start when End is nil.
type Vehicle struct {
	ID    int
	Start Location
	End   *Location
}

// Validate checks id uniqueness and coordinate ranges.
func Validate(orders []Order, vehicles []Vehicle) error {
	seenV := make(map[int]struct{}, len(vehicles))
	for i, v := range vehicles {
		if _, dup := seenV[v.ID]; dup {
			return &ValidationError{Field: fmt.Sprintf("vehicles[%d].id", i), Reason: fmt.Sprintf("duplicate vehicle id %d", v.ID)}
		}
		seenV[v.ID] = struct{}{}
		if !v.Start.Valid() {
			return &ValidationError{Field: fmt.Sprintf("vehicles[%d].start_location", i), Reason: "coordinate out of range"}
		}
		if v.End != nil && !v.End.Valid() {
			return &ValidationError{Field: fmt.Sprintf("vehicles[%d].end_location", i), Reason: "coordinate out of range"}
		}
	}
	seenO := make(map[int]struct{}, len(orders))
	for i, o := range orders {
		if _, dup := seenO[o.ID]; dup {
			return &ValidationError{Field: fmt.Sprintf("orders[%d].id", i), Reason: fmt.Sprintf("duplicate order id %d", o.ID)}
		}
		seenO[o.ID] = struct{}{}
		if !o.Pickup.Valid() {
			return &ValidationError{Field: fmt.Sprintf("orders[%d].pickup_location", i), Reason: "coordinate out of range"}
		}
		if !o.Dropoff.Valid() {
			return &ValidationError{Field: fmt.Sprintf("orders[%d].dropoff_location", i), Reason: "coordinate out of range"}
		}
	}
	return nil
}

// Pair links the pickup and dropoff nodes of one order.
type Pair struct {
	Pickup  int
	Dropoff int
	OrderID int
}

// Problem is the flattened node list shared by the matrices and the model.
// Node indices are stable for the lifetime of one request.
type Problem struct {
	Locations  []Location
	VehicleIDs []int
	Starts     []int
	Ends       []int
	Pairs      []Pair

	// pairOf maps a node to its pair index, -1 for vehicle anchors.
	pairOf []int
}

// BuildProblem appends every vehicle's anchors, then every order's pickup and
// dropoff, in input order.
func BuildProblem(orders []Order, vehicles []Vehicle) Problem {
	n := 2*len(vehicles) + 2*len(orders)
	p := Problem{
		Locations:  make([]Location, 0, n),
		VehicleIDs: make([]int, 0, len(vehicles)),
		Starts:     make([]int, 0, len(vehicles)),
		Ends:       make([]int, 0, len(vehicles)),
		Pairs:      make([]Pair, 0, len(orders)),
	}
	for _, v := range vehicles {
		start := len(p.Locations)
		p.Locations = append(p.Locations, v.Start)
		end := start
		if v.End != nil {
			end = len(p.Locations)
			p.Locations = append(p.Locations, *v.End)
		}
		p.VehicleIDs = append(p.VehicleIDs, v.ID)
		p.Starts = append(p.Starts, start)
		p.Ends = append(p.Ends, end)
	}
	for _, o := range orders {
		pick := len(p.Locations)
		p.Locations = append(p.Locations, o.Pickup)
		drop := len(p.Locations)
		p.Locations = append(p.Locations, o.Dropoff)
		p.Pairs = append(p.Pairs, Pair{Pickup: pick, Dropoff: drop, OrderID: o.ID})
	}
	p.pairOf = make([]int, len(p.Locations))
	for i := range p.pairOf {
		p.pairOf[i] = -1
	}
	for i, pr := range p.Pairs {
		p.pairOf[pr.Pickup] = i
		p.pairOf[pr.Dropoff] = i
	}
	return p
}

// PairOf returns the pair index of a pickup or dropoff node.
func (p Problem) PairOf(node int) (int, bool) {
	if node < 0 || node >= len(p.pairOf) || p.pairOf[node] < 0 {
		return 0, false
	}
	return p.pairOf[node], true
}

// IsPickup reports whether node is the pickup of its order.
func (p Problem) IsPickup(node int) bool {
	i, ok := p.PairOf(node)
	return ok && p.Pairs[i].Pickup == node
}

// Size is the number of nodes.
func (p Problem) Size() int { return len(p.Locations) }
