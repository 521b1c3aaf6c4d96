package store

import (
	"context"
	"errors"

	"ecoroute/internal/model"
	"ecoroute/internal/opt"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Orders
	CreateOrder(ctx context.Context, o model.Order) (model.Order, error)
	GetOrder(ctx context.Context, id int) (model.Order, error)
	ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error)
	UpdateOrder(ctx context.Context, o model.Order) (model.Order, error)
	DeleteOrder(ctx context.Context, id int) error
	NearbyOrders(ctx context.Context, center model.GeoPoint, radiusKm float64) ([]model.Order, error)

	// Vehicles
	CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error)
	GetVehicle(ctx context.Context, id int) (model.Vehicle, error)
	ListVehicles(ctx context.Context, f model.VehicleFilter) ([]model.Vehicle, error)
	UpdateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error)
	DeleteVehicle(ctx context.Context, id int) error
	UpdateTelemetry(ctx context.Context, id int, t model.TelemetryUpdate) (model.Vehicle, error)

	// Dispatch
	PendingOrders(ctx context.Context) ([]model.Order, error)
	AvailableVehicles(ctx context.Context) ([]model.Vehicle, error)
	ApplyAssignments(ctx context.Context, as []model.Assignment) error

	Ping(ctx context.Context) error
	Close() error
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a duplicate id or a record no longer in the state
	// a write expects.
	ErrConflict = errors.New("conflict")
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func withDefaults(o model.Order) model.Order {
	if o.Status == "" {
		o.Status = model.OrderPending
	}
	return o
}

func vehicleDefaults(v model.Vehicle) model.Vehicle {
	if v.Status == "" {
		v.Status = model.VehicleIdle
	}
	return v
}

// pickupWithin reports whether the order's pickup lies within radiusKm of
// center by great-circle distance.
func pickupWithin(o model.Order, center model.GeoPoint, radiusKm float64) bool {
	if o.PickupLat == nil || o.PickupLng == nil {
		return false
	}
	d := opt.Haversine(opt.Location{Lat: center.Lat, Lng: center.Lng}, opt.Location{Lat: *o.PickupLat, Lng: *o.PickupLng})
	return d <= radiusKm
}

// dispatchable filters orders that can be handed to the optimiser.
func dispatchable(o model.Order) bool {
	return o.Status == model.OrderPending && o.Located()
}
