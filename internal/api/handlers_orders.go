package api

import (
	"net/http"
	"strconv"

	"ecoroute/internal/model"
	"ecoroute/internal/store"
)

func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, invalid("id", "must be a positive integer")
	}
	return id, nil
}

// page reads limit and offset query parameters.
func page(r *http.Request) (limit, offset int, err error) {
	q := r.URL.Query()
	limit = store.DefaultLimit
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 || limit > store.MaxLimit {
			return 0, 0, invalid("limit", "must be between 1 and "+strconv.Itoa(store.MaxLimit))
		}
	}
	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, invalid("offset", "must be >= 0")
		}
	}
	return limit, offset, nil
}

func queryFloat(r *http.Request, key string, def float64, required bool) (float64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		if required {
			return 0, invalid(key, "required")
		}
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, invalid(key, "must be a number")
	}
	return f, nil
}

func (s *Server) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := page(r)
	if err != nil {
		s.writeError(w, r, "Invalid query", err)
		return
	}
	q := r.URL.Query()
	orders, err := s.Store.ListOrders(r.Context(), model.OrderFilter{
		Status:       q.Get("status"),
		CustomerName: q.Get("customer_name"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		s.writeError(w, r, "List orders failed", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	var o model.Order
	if err := decodeJSON(w, r, &o); err != nil {
		s.writeError(w, r, "Invalid request body", err)
		return
	}
	if err := validateOrder(o); err != nil {
		s.writeError(w, r, "Invalid order", err)
		return
	}
	created, err := s.Store.CreateOrder(r.Context(), o)
	if err != nil {
		s.writeError(w, r, "Create order failed", err)
		return
	}
	w.Header().Set("Location", "/orders/"+strconv.Itoa(created.ID))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, "Invalid path", err)
		return
	}
	o, err := s.Store.GetOrder(r.Context(), id)
	if err != nil {
		s.writeError(w, r, "Get order failed", err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) UpdateOrderHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, "Invalid path", err)
		return
	}
	var o model.Order
	if err := decodeJSON(w, r, &o); err != nil {
		s.writeError(w, r, "Invalid request body", err)
		return
	}
	o.ID = id
	if err := validateOrder(o); err != nil {
		s.writeError(w, r, "Invalid order", err)
		return
	}
	updated, err := s.Store.UpdateOrder(r.Context(), o)
	if err != nil {
		s.writeError(w, r, "Update order failed", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) DeleteOrderHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, "Invalid path", err)
		return
	}
	if err := s.Store.DeleteOrder(r.Context(), id); err != nil {
		s.writeError(w, r, "Delete order failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NearbyOrdersHandler implements GET /orders/nearby?lat&lng&radius_km.
func (s *Server) NearbyOrdersHandler(w http.ResponseWriter, r *http.Request) {
	lat, err := queryFloat(r, "lat", 0, true)
	if err != nil {
		s.writeError(w, r, "Invalid query", err)
		return
	}
	lng, err := queryFloat(r, "lng", 0, true)
	if err != nil {
		s.writeError(w, r, "Invalid query", err)
		return
	}
	radius, err := queryFloat(r, "radius_km", 5, false)
	if err != nil {
		s.writeError(w, r, "Invalid query", err)
		return
	}
	if radius <= 0 {
		s.writeError(w, r, "Invalid query", invalid("radius_km", "must be positive"))
		return
	}
	if err := validCoord(&lat, &lng, "lat"); err != nil {
		s.writeError(w, r, "Invalid query", err)
		return
	}
	orders, err := s.Store.NearbyOrders(r.Context(), model.GeoPoint{Lat: lat, Lng: lng}, radius)
	if err != nil {
		s.writeError(w, r, "Nearby orders failed", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}
