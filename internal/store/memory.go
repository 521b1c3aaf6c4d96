package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"ecoroute/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu       sync.Mutex
	orders   map[int]model.Order
	vehicles map[int]model.Vehicle
}

func NewMemory() *Memory {
	return &Memory{
		orders:   map[int]model.Order{},
		vehicles: map[int]model.Vehicle{},
	}
}

func (m *Memory) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return model.Order{}, ErrConflict
	}
	o = withDefaults(o)
	m.orders[o.ID] = o
	return o, nil
}

func (m *Memory) GetOrder(ctx context.Context, id int) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, ErrNotFound
	}
	return o, nil
}

func (m *Memory) ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit, offset := clampPage(f.Limit, f.Offset)
	name := strings.ToLower(f.CustomerName)
	out := []model.Order{}
	skipped := 0
	for _, id := range sortedKeys(m.orders) {
		o := m.orders[id]
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(o.CustomerName), name) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, o)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) UpdateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		return model.Order{}, ErrNotFound
	}
	o = withDefaults(o)
	m.orders[o.ID] = o
	return o, nil
}

func (m *Memory) DeleteOrder(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[id]; !ok {
		return ErrNotFound
	}
	delete(m.orders, id)
	return nil
}

func (m *Memory) NearbyOrders(ctx context.Context, center model.GeoPoint, radiusKm float64) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Order{}
	for _, id := range sortedKeys(m.orders) {
		if o := m.orders[id]; pickupWithin(o, center, radiusKm) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *Memory) CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vehicles[v.ID]; ok {
		return model.Vehicle{}, ErrConflict
	}
	v = vehicleDefaults(v)
	m.vehicles[v.ID] = v
	return v, nil
}

func (m *Memory) GetVehicle(ctx context.Context, id int) (model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return model.Vehicle{}, ErrNotFound
	}
	return v, nil
}

func (m *Memory) ListVehicles(ctx context.Context, f model.VehicleFilter) ([]model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit, offset := clampPage(f.Limit, f.Offset)
	name := strings.ToLower(f.Name)
	out := []model.Vehicle{}
	skipped := 0
	for _, id := range sortedKeys(m.vehicles) {
		v := m.vehicles[id]
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		if name != "" && !strings.Contains(strings.ToLower(v.Name), name) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) UpdateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vehicles[v.ID]; !ok {
		return model.Vehicle{}, ErrNotFound
	}
	v = vehicleDefaults(v)
	m.vehicles[v.ID] = v
	return v, nil
}

func (m *Memory) DeleteVehicle(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vehicles[id]; !ok {
		return ErrNotFound
	}
	delete(m.vehicles, id)
	return nil
}

func (m *Memory) UpdateTelemetry(ctx context.Context, id int, t model.TelemetryUpdate) (model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok {
		return model.Vehicle{}, ErrNotFound
	}
	lat, lng := *t.CurrentLat, *t.CurrentLng
	v.CurrentLat, v.CurrentLng = &lat, &lng
	if t.Status != "" {
		v.Status = t.Status
	}
	m.vehicles[id] = v
	return v, nil
}

func (m *Memory) PendingOrders(ctx context.Context) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Order{}
	for _, id := range sortedKeys(m.orders) {
		if o := m.orders[id]; dispatchable(o) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *Memory) AvailableVehicles(ctx context.Context) ([]model.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Vehicle{}
	for _, id := range sortedKeys(m.vehicles) {
		if v := m.vehicles[id]; v.Status == model.VehicleIdle && v.Located() {
			out = append(out, v)
		}
	}
	return out, nil
}

// ApplyAssignments marks assigned orders and their vehicles. Unknown ids,
// orders no longer pending and vehicles no longer idle fail the whole batch
// before anything changes.
func (m *Memory) ApplyAssignments(ctx context.Context, as []model.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range as {
		v, ok := m.vehicles[a.VehicleID]
		if !ok {
			return ErrNotFound
		}
		if len(a.OrderIDs) > 0 && v.Status != model.VehicleIdle {
			return fmt.Errorf("vehicle %d is %s: %w", v.ID, v.Status, ErrConflict)
		}
		for _, id := range a.OrderIDs {
			o, ok := m.orders[id]
			if !ok {
				return ErrNotFound
			}
			if o.Status != model.OrderPending {
				return fmt.Errorf("order %d is %s: %w", id, o.Status, ErrConflict)
			}
		}
	}
	for _, a := range as {
		if len(a.OrderIDs) == 0 {
			continue
		}
		v := m.vehicles[a.VehicleID]
		v.Status = model.VehicleEnRoute
		m.vehicles[a.VehicleID] = v
		for _, id := range a.OrderIDs {
			o := m.orders[id]
			o.Status = model.OrderAssigned
			m.orders[id] = o
		}
	}
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

func sortedKeys[T any](m map[int]T) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
