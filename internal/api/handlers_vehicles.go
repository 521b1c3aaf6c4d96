package api

import (
	"net/http"
	"strconv"

	"ecoroute/internal/model"
)

func (s *Server) ListVehiclesHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		s.writeError(w, r, "Invalid query", err)
		return
	}
	q := r.URL.Query()
	vehicles, err := s.Store.ListVehicles(r.Context(), model.VehicleFilter{
		Status: q.Get("status"),
		Name:   q.Get("name"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.writeError(w, r, "List vehicles failed", err)
		return
	}
	writeJSON(w, http.StatusOK, vehicles)
}

func (s *Server) CreateVehicleHandler(w http.ResponseWriter, r *http.Request) {
	var v model.Vehicle
	if err := decodeJSON(w, r, &v); err != nil {
		s.writeError(w, r, "Invalid request body", err)
		return
	}
	if err := validateVehicle(v); err != nil {
		s.writeError(w, r, "Invalid vehicle", err)
		return
	}
	created, err := s.Store.CreateVehicle(r.Context(), v)
	if err != nil {
		s.writeError(w, r, "Create vehicle failed", err)
		return
	}
	w.Header().Set("Location", "/vehicles/"+strconv.Itoa(created.ID))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) GetVehicleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, "Invalid path", err)
		return
	}
	v, err := s.Store.GetVehicle(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "Get vehicle failed", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) UpdateVehicleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, "Invalid path", err)
		return
	}
	var v model.Vehicle
	if err := decodeJSON(w, r, &v); err != nil {
		s.writeError(w, r, "Invalid request body", err)
		return
	}
	v.ID = id
	if err := validateVehicle(v); err != nil {
		s.writeError(w, r, "Invalid vehicle", err)
		return
	}
	updated, err := s.Store.UpdateVehicle(r.Context(), v)
	if err != nil {
		s.writeError(w, r, "Update vehicle failed", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) DeleteVehicleHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, "Invalid path", err)
		return
	}
	if err := s.Store.DeleteVehicle(r.Context(), id); err != nil {
		s.writeError(w, r, "Delete vehicle failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TelemetryHandler records a position report and pushes it to stream
// subscribers as a vehicle_update event.
func (s *Server) TelemetryHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, "Invalid path", err)
		return
	}
	var t model.TelemetryUpdate
	if err := decodeJSON(w, r, &t); err != nil {
		s.writeError(w, r, "Invalid request body", err)
		return
	}
	if err := validateTelemetry(t); err != nil {
		s.writeError(w, r, "Invalid telemetry", err)
		return
	}
	v, err := s.Store.UpdateTelemetry(r.Context(), id, t)
	if err != nil {
		s.writeError(w, r, "Telemetry update failed", err)
		return
	}
	s.publish(TopicVehicles, EventVehicleUpdate, v)
	writeJSON(w, http.StatusOK, v)
}
