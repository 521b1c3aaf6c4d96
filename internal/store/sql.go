package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"ecoroute/internal/model"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// SQL stores orders and vehicles in Postgres (pgx) or SQLite (modernc).
// Queries are written with ? placeholders and rebound per driver.
type SQL struct {
	db     *sql.DB
	driver string
}

// DriverFor infers the database/sql driver from a DSN.
func DriverFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return DriverPostgres
	}
	return DriverSQLite
}

// OpenSQL connects and pings. An empty driver is inferred from the DSN.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQL, error) {
	if driver == "" {
		driver = DriverFor(dsn)
	}
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("open store: unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if driver == DriverSQLite {
		// one writer at a time; busy_timeout covers readers during writes
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("open store: %s: %w", pragma, err)
			}
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open store: ping: %w", err)
	}
	return &SQL{db: db, driver: driver}, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGINT PRIMARY KEY,
		customer_name TEXT NOT NULL,
		pickup_address TEXT NOT NULL,
		dropoff_address TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		pickup_lat DOUBLE PRECISION,
		pickup_lng DOUBLE PRECISION,
		dropoff_lat DOUBLE PRECISION,
		dropoff_lng DOUBLE PRECISION
	)`,
	`CREATE INDEX IF NOT EXISTS orders_status_idx ON orders (status)`,
	`CREATE TABLE IF NOT EXISTS vehicles (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'idle',
		current_lat DOUBLE PRECISION,
		current_lng DOUBLE PRECISION
	)`,
}

// Migrate creates the tables when missing.
func (s *SQL) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQL) Close() error { return s.db.Close() }

// rebind turns ? placeholders into $n for Postgres.
func (s *SQL) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const orderColumns = `id, customer_name, pickup_address, dropoff_address, status, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng`

type scanner interface{ Scan(dest ...any) error }

func scanOrder(row scanner) (model.Order, error) {
	var o model.Order
	var plat, plng, dlat, dlng sql.NullFloat64
	if err := row.Scan(&o.ID, &o.CustomerName, &o.PickupAddress, &o.DropoffAddress, &o.Status, &plat, &plng, &dlat, &dlng); err != nil {
		return o, err
	}
	o.PickupLat, o.PickupLng = floatPtr(plat), floatPtr(plng)
	o.DropoffLat, o.DropoffLng = floatPtr(dlat), floatPtr(dlng)
	return o, nil
}

func (s *SQL) queryOrders(ctx context.Context, q string, args ...any) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQL) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	o = withDefaults(o)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Order{}, err
	}
	defer func() { _ = tx.Rollback() }()
	if err := s.ensureAbsent(ctx, tx, "orders", o.ID); err != nil {
		return model.Order{}, err
	}
	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO orders (`+orderColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`),
		o.ID, o.CustomerName, o.PickupAddress, o.DropoffAddress, o.Status,
		nullFloat(o.PickupLat), nullFloat(o.PickupLng), nullFloat(o.DropoffLat), nullFloat(o.DropoffLng))
	if err != nil {
		return model.Order{}, fmt.Errorf("create order %d: %w", o.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (s *SQL) ensureAbsent(ctx context.Context, tx *sql.Tx, table string, id int) error {
	var one int
	err := tx.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM `+table+` WHERE id = ?`), id).Scan(&one)
	switch {
	case err == nil:
		return ErrConflict
	case errors.Is(err, sql.ErrNoRows):
		return nil
	default:
		return err
	}
}

func (s *SQL) GetOrder(ctx context.Context, id int) (model.Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, s.rebind(`SELECT `+orderColumns+` FROM orders WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	return o, err
}

func (s *SQL) ListOrders(ctx context.Context, f model.OrderFilter) ([]model.Order, error) {
	limit, offset := clampPage(f.Limit, f.Offset)
	q := `SELECT ` + orderColumns + ` FROM orders WHERE 1=1`
	var args []any
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.CustomerName != "" {
		q += ` AND LOWER(customer_name) LIKE ?`
		args = append(args, "%"+strings.ToLower(f.CustomerName)+"%")
	}
	q += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	return s.queryOrders(ctx, q, args...)
}

func (s *SQL) UpdateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	o = withDefaults(o)
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE orders SET customer_name = ?, pickup_address = ?, dropoff_address = ?, status = ?,
		pickup_lat = ?, pickup_lng = ?, dropoff_lat = ?, dropoff_lng = ? WHERE id = ?`),
		o.CustomerName, o.PickupAddress, o.DropoffAddress, o.Status,
		nullFloat(o.PickupLat), nullFloat(o.PickupLng), nullFloat(o.DropoffLat), nullFloat(o.DropoffLng), o.ID)
	if err != nil {
		return model.Order{}, fmt.Errorf("update order %d: %w", o.ID, err)
	}
	if err := expectOne(res); err != nil {
		return model.Order{}, err
	}
	return o, nil
}

func (s *SQL) DeleteOrder(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM orders WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete order %d: %w", id, err)
	}
	return expectOne(res)
}

// NearbyOrders narrows candidates with a bounding box in SQL, then applies
// the exact great-circle radius.
func (s *SQL) NearbyOrders(ctx context.Context, center model.GeoPoint, radiusKm float64) ([]model.Order, error) {
	const kmPerDegree = 111.195
	dLat := radiusKm / kmPerDegree
	q := `SELECT ` + orderColumns + ` FROM orders WHERE pickup_lat BETWEEN ? AND ? AND pickup_lng IS NOT NULL`
	args := []any{center.Lat - dLat, center.Lat + dLat}
	if cos := math.Cos(center.Lat * math.Pi / 180); cos > 1e-6 {
		if dLng := radiusKm / (kmPerDegree * cos); dLng < 180 {
			q += ` AND pickup_lng BETWEEN ? AND ?`
			args = append(args, center.Lng-dLng, center.Lng+dLng)
		}
	}
	cands, err := s.queryOrders(ctx, q+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("nearby orders: %w", err)
	}
	out := cands[:0]
	for _, o := range cands {
		if pickupWithin(o, center, radiusKm) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *SQL) PendingOrders(ctx context.Context) ([]model.Order, error) {
	return s.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE status = ? AND pickup_lat IS NOT NULL AND pickup_lng IS NOT NULL
		AND dropoff_lat IS NOT NULL AND dropoff_lng IS NOT NULL ORDER BY id`, model.OrderPending)
}

const vehicleColumns = `id, name, status, current_lat, current_lng`

func scanVehicle(row scanner) (model.Vehicle, error) {
	var v model.Vehicle
	var lat, lng sql.NullFloat64
	if err := row.Scan(&v.ID, &v.Name, &v.Status, &lat, &lng); err != nil {
		return v, err
	}
	v.CurrentLat, v.CurrentLng = floatPtr(lat), floatPtr(lng)
	return v, nil
}

func (s *SQL) queryVehicles(ctx context.Context, q string, args ...any) ([]model.Vehicle, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Vehicle{}
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQL) CreateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	v = vehicleDefaults(v)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Vehicle{}, err
	}
	defer func() { _ = tx.Rollback() }()
	if err := s.ensureAbsent(ctx, tx, "vehicles", v.ID); err != nil {
		return model.Vehicle{}, err
	}
	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO vehicles (`+vehicleColumns+`) VALUES (?,?,?,?,?)`),
		v.ID, v.Name, v.Status, nullFloat(v.CurrentLat), nullFloat(v.CurrentLng))
	if err != nil {
		return model.Vehicle{}, fmt.Errorf("create vehicle %d: %w", v.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return model.Vehicle{}, err
	}
	return v, nil
}

func (s *SQL) GetVehicle(ctx context.Context, id int) (model.Vehicle, error) {
	v, err := scanVehicle(s.db.QueryRowContext(ctx, s.rebind(`SELECT `+vehicleColumns+` FROM vehicles WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Vehicle{}, ErrNotFound
	}
	return v, err
}

func (s *SQL) ListVehicles(ctx context.Context, f model.VehicleFilter) ([]model.Vehicle, error) {
	limit, offset := clampPage(f.Limit, f.Offset)
	q := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE 1=1`
	var args []any
	if f.Status != "" {
		q += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Name != "" {
		q += ` AND LOWER(name) LIKE ?`
		args = append(args, "%"+strings.ToLower(f.Name)+"%")
	}
	q += ` ORDER BY id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)
	return s.queryVehicles(ctx, q, args...)
}

func (s *SQL) UpdateVehicle(ctx context.Context, v model.Vehicle) (model.Vehicle, error) {
	v = vehicleDefaults(v)
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE vehicles SET name = ?, status = ?, current_lat = ?, current_lng = ? WHERE id = ?`),
		v.Name, v.Status, nullFloat(v.CurrentLat), nullFloat(v.CurrentLng), v.ID)
	if err != nil {
		return model.Vehicle{}, fmt.Errorf("update vehicle %d: %w", v.ID, err)
	}
	if err := expectOne(res); err != nil {
		return model.Vehicle{}, err
	}
	return v, nil
}

func (s *SQL) DeleteVehicle(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM vehicles WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete vehicle %d: %w", id, err)
	}
	return expectOne(res)
}

func (s *SQL) UpdateTelemetry(ctx context.Context, id int, t model.TelemetryUpdate) (model.Vehicle, error) {
	q := `UPDATE vehicles SET current_lat = ?, current_lng = ?`
	args := []any{*t.CurrentLat, *t.CurrentLng}
	if t.Status != "" {
		q += `, status = ?`
		args = append(args, t.Status)
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx, s.rebind(q+` WHERE id = ?`), args...)
	if err != nil {
		return model.Vehicle{}, fmt.Errorf("telemetry %d: %w", id, err)
	}
	if err := expectOne(res); err != nil {
		return model.Vehicle{}, err
	}
	return s.GetVehicle(ctx, id)
}

func (s *SQL) AvailableVehicles(ctx context.Context) ([]model.Vehicle, error) {
	return s.queryVehicles(ctx, `SELECT `+vehicleColumns+` FROM vehicles
		WHERE status = ? AND current_lat IS NOT NULL AND current_lng IS NOT NULL ORDER BY id`, model.VehicleIdle)
}

// ApplyAssignments updates every vehicle and order of the batch in one
// transaction. Each update only matches an idle vehicle or a pending order,
// so a concurrent dispatch that got there first fails the batch.
func (s *SQL) ApplyAssignments(ctx context.Context, as []model.Assignment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, a := range as {
		if len(a.OrderIDs) == 0 {
			continue
		}
		if err := s.transition(ctx, tx, "vehicles", a.VehicleID, model.VehicleIdle, model.VehicleEnRoute); err != nil {
			return fmt.Errorf("assign vehicle %d: %w", a.VehicleID, err)
		}
		for _, id := range a.OrderIDs {
			if err := s.transition(ctx, tx, "orders", id, model.OrderPending, model.OrderAssigned); err != nil {
				return fmt.Errorf("assign order %d: %w", id, err)
			}
		}
	}
	return tx.Commit()
}

// transition moves row id of table from status from to status to. A missing
// row is ErrNotFound; a row in another status is ErrConflict.
func (s *SQL) transition(ctx context.Context, tx *sql.Tx, table string, id int, from, to string) error {
	res, err := tx.ExecContext(ctx, s.rebind(`UPDATE `+table+` SET status = ? WHERE id = ? AND status = ?`), to, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var one int
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM `+table+` WHERE id = ?`), id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case err != nil:
		return err
	}
	return ErrConflict
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}
