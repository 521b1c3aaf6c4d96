package api

import (
	"fmt"
	"strings"
	"time"

	"ecoroute/internal/model"
	"ecoroute/internal/opt"
)

// maxTimeBudgetMs caps per-request search budgets.
const maxTimeBudgetMs = 60_000

func invalid(field, reason string) error {
	return &opt.ValidationError{Field: field, Reason: reason}
}

func toLocation(p *model.GeoPoint) opt.Location { return opt.Location{Lat: p.Lat, Lng: p.Lng} }

func fromLocation(l opt.Location) model.GeoPoint { return model.GeoPoint{Lat: l.Lat, Lng: l.Lng} }

// convertOptimizeRequest checks required fields and the per-request overrides
// and returns engine inputs plus the effective configuration. Range and
// uniqueness checks are left to opt.Validate.
func convertOptimizeRequest(req *model.OptimizeRequest, base opt.Config) ([]opt.Order, []opt.Vehicle, opt.Config, error) {
	cfg := base
	if req.TimeBudgetMs < 0 || req.TimeBudgetMs > maxTimeBudgetMs {
		return nil, nil, cfg, invalid("time_budget_ms", fmt.Sprintf("must be between 0 and %d", maxTimeBudgetMs))
	}
	if req.TimeBudgetMs > 0 {
		cfg.TimeBudget = time.Duration(req.TimeBudgetMs) * time.Millisecond
	}
	if req.MaxIterations < 0 {
		return nil, nil, cfg, invalid("max_iterations", "must be >= 0")
	}
	if req.MaxIterations > 0 {
		cfg.MaxIterations = req.MaxIterations
	}
	switch obj := opt.Objective(strings.ToLower(req.Objective)); obj {
	case "":
	case opt.ObjectiveTime, opt.ObjectiveDistance:
		cfg.Objective = obj
	default:
		return nil, nil, cfg, invalid("objective", "must be time or distance")
	}
	if req.AllowRejection != nil {
		cfg.DisableRejection = !*req.AllowRejection
	}
	if req.Seed != 0 {
		cfg.Seed = req.Seed
	}

	orders := make([]opt.Order, len(req.Orders))
	for i, o := range req.Orders {
		if o.PickupLocation == nil {
			return nil, nil, cfg, invalid(fmt.Sprintf("orders[%d].pickup_location", i), "required")
		}
		if o.DropoffLocation == nil {
			return nil, nil, cfg, invalid(fmt.Sprintf("orders[%d].dropoff_location", i), "required")
		}
		orders[i] = opt.Order{ID: o.ID, Pickup: toLocation(o.PickupLocation), Dropoff: toLocation(o.DropoffLocation)}
	}
	vehicles := make([]opt.Vehicle, len(req.Vehicles))
	for i, v := range req.Vehicles {
		if v.StartLocation == nil {
			return nil, nil, cfg, invalid(fmt.Sprintf("vehicles[%d].start_location", i), "required")
		}
		vehicles[i] = opt.Vehicle{ID: v.ID, Start: toLocation(v.StartLocation)}
		if v.EndLocation != nil {
			end := toLocation(v.EndLocation)
			vehicles[i].End = &end
		}
	}
	return orders, vehicles, cfg, nil
}

func toResponse(res opt.Result) model.OptimizeResponse {
	out := model.OptimizeResponse{
		OptimizedRoutes:  make([]model.OptimizedRoute, 0, len(res.Routes)),
		UnassignedOrders: append([]int{}, res.Unassigned...),
		Stats: &model.RunStats{
			RunID:            res.Stats.RunID,
			Iterations:       res.Stats.Iterations,
			Improvements:     res.Stats.Improvements,
			ConstructionCost: res.Stats.ConstructionCost,
			FinalCost:        res.Stats.FinalCost,
			StopReason:       string(res.Stats.StopReason),
			Objective:        string(res.Stats.Objective),
			Degraded:         res.Stats.Degraded,
		},
	}
	for _, r := range res.Routes {
		stops := make([]model.StopOut, len(r.Stops))
		for i, s := range r.Stops {
			stops[i] = model.StopOut{OrderID: s.OrderID, Location: fromLocation(s.Location), Type: string(s.Type)}
		}
		out.OptimizedRoutes = append(out.OptimizedRoutes, model.OptimizedRoute{
			VehicleID:     r.VehicleID,
			Stops:         stops,
			TotalDistance: r.TotalDistanceKm,
			TotalTime:     r.TotalTimeHours,
		})
	}
	return out
}

func validCoord(lat, lng *float64, field string) error {
	if (lat == nil) != (lng == nil) {
		return invalid(field, "latitude and longitude must be set together")
	}
	if lat == nil {
		return nil
	}
	if !(opt.Location{Lat: *lat, Lng: *lng}).Valid() {
		return invalid(field, "coordinate out of range")
	}
	return nil
}

func validateOrder(o model.Order) error {
	if o.ID <= 0 {
		return invalid("id", "must be a positive integer")
	}
	if strings.TrimSpace(o.CustomerName) == "" {
		return invalid("customer_name", "required")
	}
	if strings.TrimSpace(o.PickupAddress) == "" {
		return invalid("pickup_address", "required")
	}
	if strings.TrimSpace(o.DropoffAddress) == "" {
		return invalid("dropoff_address", "required")
	}
	switch o.Status {
	case "", model.OrderPending, model.OrderAssigned, model.OrderDelivered:
	default:
		return invalid("status", "must be pending, assigned or delivered")
	}
	if err := validCoord(o.PickupLat, o.PickupLng, "pickup"); err != nil {
		return err
	}
	return validCoord(o.DropoffLat, o.DropoffLng, "dropoff")
}

func validVehicleStatus(s string) bool {
	return s == "" || s == model.VehicleIdle || s == model.VehicleEnRoute
}

func validateVehicle(v model.Vehicle) error {
	if v.ID <= 0 {
		return invalid("id", "must be a positive integer")
	}
	if strings.TrimSpace(v.Name) == "" {
		return invalid("name", "required")
	}
	if !validVehicleStatus(v.Status) {
		return invalid("status", "must be idle or en_route")
	}
	return validCoord(v.CurrentLat, v.CurrentLng, "current")
}

func validateTelemetry(t model.TelemetryUpdate) error {
	if t.CurrentLat == nil || t.CurrentLng == nil {
		return invalid("current_lat", "current_lat and current_lng are required")
	}
	if !validVehicleStatus(t.Status) {
		return invalid("status", "must be idle or en_route")
	}
	return validCoord(t.CurrentLat, t.CurrentLng, "current")
}
