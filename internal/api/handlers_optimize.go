package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ecoroute/internal/metrics"
	"ecoroute/internal/model"
	"ecoroute/internal/opt"
)

// Event types published by the optimisation handlers.
const (
	EventRoutesOptimized = "routes.optimized"
	EventVehicleAssigned = "vehicle.assigned"
	EventVehicleUpdate   = "vehicle_update"
)

// OptimizeHandler implements POST /optimize_routes.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
	var req model.OptimizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, "Invalid request body", err)
		return
	}
	orders, vehicles, cfg, err := convertOptimizeRequest(&req, s.Optimizer.Config())
	if err != nil {
		s.writeError(w, r, "Invalid request", err)
		return
	}
	res, err := s.solve(r.Context(), cfg, orders, vehicles)
	if err != nil {
		s.writeError(w, r, "Optimization failed", err)
		return
	}
	resp := toResponse(res)
	s.publish(TopicRoutes, EventRoutesOptimized, resp)
	writeJSON(w, http.StatusOK, resp)
}

// DispatchHandler implements POST /v1/dispatch: optimise every pending,
// located order over the idle fleet and record the assignments.
func (s *Server) DispatchHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pending, err := s.Store.PendingOrders(ctx)
	if err != nil {
		s.writeError(w, r, "Load orders failed", err)
		return
	}
	fleet, err := s.Store.AvailableVehicles(ctx)
	if err != nil {
		s.writeError(w, r, "Load vehicles failed", err)
		return
	}
	orders := make([]opt.Order, len(pending))
	for i, o := range pending {
		orders[i] = opt.Order{
			ID:      o.ID,
			Pickup:  opt.Location{Lat: *o.PickupLat, Lng: *o.PickupLng},
			Dropoff: opt.Location{Lat: *o.DropoffLat, Lng: *o.DropoffLng},
		}
	}
	vehicles := make([]opt.Vehicle, len(fleet))
	for i, v := range fleet {
		vehicles[i] = opt.Vehicle{ID: v.ID, Start: opt.Location{Lat: *v.CurrentLat, Lng: *v.CurrentLng}}
	}

	res, err := s.solve(ctx, s.Optimizer.Config(), orders, vehicles)
	if err != nil {
		s.writeError(w, r, "Dispatch failed", err)
		return
	}
	assignments := assignmentsFor(res)
	if err := s.Store.ApplyAssignments(ctx, assignments); err != nil {
		s.writeError(w, r, "Record assignments failed", err)
		return
	}

	resp := model.DispatchResponse{OptimizeResponse: toResponse(res), Assignments: assignments}
	for i, a := range assignments {
		if len(a.OrderIDs) == 0 {
			continue
		}
		s.publish(TopicVehicles, EventVehicleAssigned, map[string]any{
			"vehicle_id": a.VehicleID,
			"order_ids":  a.OrderIDs,
			"route":      resp.OptimizedRoutes[i],
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// assignmentsFor lists, per route, the orders in pickup order.
func assignmentsFor(res opt.Result) []model.Assignment {
	out := make([]model.Assignment, len(res.Routes))
	for i, rt := range res.Routes {
		ids := []int{}
		for _, st := range rt.Stops {
			if st.Type == opt.StopPickup {
				ids = append(ids, st.OrderID)
			}
		}
		out[i] = model.Assignment{VehicleID: rt.VehicleID, OrderIDs: ids}
	}
	return out
}

// solve validates, waits for a worker slot and runs the optimiser. Waiting
// ends with errBusy when ctx is done first.
func (s *Server) solve(ctx context.Context, cfg opt.Config, orders []opt.Order, vehicles []opt.Vehicle) (opt.Result, error) {
	if err := opt.Validate(orders, vehicles); err != nil {
		return opt.Result{}, err
	}
	if err := s.solves.Acquire(ctx, 1); err != nil {
		return opt.Result{}, errBusy
	}
	defer s.solves.Release(1)
	metrics.SolvesInFlight.Inc()
	defer metrics.SolvesInFlight.Dec()

	start := time.Now()
	res, err := s.Optimizer.OptimizeWith(ctx, cfg, orders, vehicles)
	if err != nil {
		return opt.Result{}, err
	}
	metrics.Optimizations.WithLabelValues(string(res.Stats.StopReason)).Inc()
	metrics.SolveDuration.Observe(time.Since(start).Seconds())
	metrics.UnassignedOrders.Add(float64(len(res.Unassigned)))
	s.log.Debug("solve complete",
		zap.String("run_id", res.Stats.RunID),
		zap.String("request_id", RequestID(ctx)),
		zap.Int("routes", len(res.Routes)),
		zap.Int("unassigned", len(res.Unassigned)))
	return res, nil
}
