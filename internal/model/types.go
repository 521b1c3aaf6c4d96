package model

// Wire types for the HTTP API. Field names follow the snake_case JSON used by
// the dispatch dashboard.

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// OrderIn is one order of an optimisation request.
type OrderIn struct {
	ID              int       `json:"id"`
	PickupLocation  *GeoPoint `json:"pickup_location"`
	DropoffLocation *GeoPoint `json:"dropoff_location"`
}

// VehicleIn is one vehicle of an optimisation request. A missing end
// location means the vehicle returns to its start.
type VehicleIn struct {
	ID            int       `json:"id"`
	StartLocation *GeoPoint `json:"start_location"`
	EndLocation   *GeoPoint `json:"end_location,omitempty"`
}

type OptimizeRequest struct {
	Orders   []OrderIn   `json:"orders"`
	Vehicles []VehicleIn `json:"vehicles"`

	// Optional per-request overrides of the server defaults.
	TimeBudgetMs   int    `json:"time_budget_ms,omitempty"`
	MaxIterations  int    `json:"max_iterations,omitempty"`
	Objective      string `json:"objective,omitempty"`
	AllowRejection *bool  `json:"allow_rejection,omitempty"`
	Seed           int64  `json:"seed,omitempty"`
}

type StopOut struct {
	OrderID  int      `json:"order_id"`
	Location GeoPoint `json:"location"`
	Type     string   `json:"type"`
}

type OptimizedRoute struct {
	VehicleID     int       `json:"vehicle_id"`
	Stops         []StopOut `json:"stops"`
	TotalDistance float64   `json:"total_distance"`
	TotalTime     float64   `json:"total_time"`
}

// RunStats is diagnostic output; clients that only know the core response
// shape ignore it.
type RunStats struct {
	RunID            string `json:"run_id"`
	Iterations       int    `json:"iterations"`
	Improvements     int    `json:"improvements"`
	ConstructionCost int64  `json:"construction_cost"`
	FinalCost        int64  `json:"final_cost"`
	StopReason       string `json:"stop_reason"`
	Objective        string `json:"objective"`
	Degraded         bool   `json:"degraded"`
}

type OptimizeResponse struct {
	OptimizedRoutes  []OptimizedRoute `json:"optimized_routes"`
	UnassignedOrders []int            `json:"unassigned_orders"`
	Stats            *RunStats        `json:"stats,omitempty"`
}

// Order statuses.
const (
	OrderPending   = "pending"
	OrderAssigned  = "assigned"
	OrderDelivered = "delivered"
)

// Vehicle statuses.
const (
	VehicleIdle    = "idle"
	VehicleEnRoute = "en_route"
)

// Order is a stored order record. Coordinates are optional until geocoded;
// orders without both pickup and dropoff coordinates are skipped by dispatch.
type Order struct {
	ID             int      `json:"id"`
	CustomerName   string   `json:"customer_name"`
	PickupAddress  string   `json:"pickup_address"`
	DropoffAddress string   `json:"dropoff_address"`
	Status         string   `json:"status"`
	PickupLat      *float64 `json:"pickup_lat"`
	PickupLng      *float64 `json:"pickup_lng"`
	DropoffLat     *float64 `json:"dropoff_lat"`
	DropoffLng     *float64 `json:"dropoff_lng"`
}

// Located reports whether both ends of the order have coordinates.
func (o Order) Located() bool {
	return o.PickupLat != nil && o.PickupLng != nil && o.DropoffLat != nil && o.DropoffLng != nil
}

// Vehicle is a stored vehicle record.
type Vehicle struct {
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	Status     string   `json:"status"`
	CurrentLat *float64 `json:"current_lat"`
	CurrentLng *float64 `json:"current_lng"`
}

// Located reports whether the vehicle has a known position.
func (v Vehicle) Located() bool { return v.CurrentLat != nil && v.CurrentLng != nil }

type TelemetryUpdate struct {
	CurrentLat *float64 `json:"current_lat"`
	CurrentLng *float64 `json:"current_lng"`
	Status     string   `json:"status,omitempty"`
}

type OrderFilter struct {
	Status       string
	CustomerName string
	Limit        int
	Offset       int
}

type VehicleFilter struct {
	Status string
	Name   string
	Limit  int
	Offset int
}

// Assignment is the outcome of a dispatch for one vehicle.
type Assignment struct {
	VehicleID int   `json:"vehicle_id"`
	OrderIDs  []int `json:"order_ids"`
}

type DispatchResponse struct {
	OptimizeResponse
	Assignments []Assignment `json:"assignments"`
}
