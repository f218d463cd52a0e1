package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"trackback/pkg/db"
	"trackback/pkg/geo"
	"trackback/pkg/model"
)

// Store defines the repository interface.
// Consumers should depend on the sub-interfaces when possible.
type Store interface {
	FlightStore
	StateStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Flights ---

const flightColumns = `id, started_at, ended_at, home_lat, home_lng, home_alt, plan`

func (s *SQLiteStore) CreateFlight(ctx context.Context, home geo.Position, startedAt time.Time) (*model.Flight, error) {
	f := &model.Flight{
		ID:        uuid.NewString(),
		StartedAt: startedAt.UTC(),
		Home:      home,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO flights (id, started_at, home_lat, home_lng, home_alt) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.StartedAt, home.Lat, home.Lng, home.Alt)
	if err != nil {
		return nil, fmt.Errorf("create flight: %w", err)
	}
	return f, nil
}

func (s *SQLiteStore) SetFlightPlan(ctx context.Context, id, plan string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE flights SET plan = ? WHERE id = ?`, plan, id)
	return err
}

func (s *SQLiteStore) EndFlight(ctx context.Context, id string, endedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE flights SET ended_at = ? WHERE id = ? AND ended_at IS NULL`, endedAt.UTC(), id)
	return err
}

// CloseOpenFlights ends every flight still marked in progress. Used at
// startup, when no flight can be in progress yet.
func (s *SQLiteStore) CloseOpenFlights(ctx context.Context, endedAt time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE flights SET ended_at = ? WHERE ended_at IS NULL`, endedAt.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetFlight returns the flight with the given ID, or nil if there is none.
func (s *SQLiteStore) GetFlight(ctx context.Context, id string) (*model.Flight, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+flightColumns+` FROM flights WHERE id = ?`, id)
	f, err := scanFlight(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

// ListFlights returns the most recent flights first. limit <= 0 means all.
func (s *SQLiteStore) ListFlights(ctx context.Context, limit int) ([]*model.Flight, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+flightColumns+` FROM flights ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flights []*model.Flight
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, err
		}
		flights = append(flights, f)
	}
	return flights, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlight(r rowScanner) (*model.Flight, error) {
	var f model.Flight
	var ended sql.NullTime
	if err := r.Scan(&f.ID, &f.StartedAt, &ended, &f.Home.Lat, &f.Home.Lng, &f.Home.Alt, &f.Plan); err != nil {
		return nil, err
	}
	if ended.Valid {
		t := ended.Time
		f.EndedAt = &t
	}
	return &f, nil
}

// --- Paths ---

// SavePath stores a snapshot of the path, replacing an earlier one of the
// same kind. Points are stored as gzipped JSON.
func (s *SQLiteStore) SavePath(ctx context.Context, flightID, kind string, points []geo.Position) error {
	raw, err := json.Marshal(points)
	if err != nil {
		return err
	}
	blob, err := compress(raw)
	if err != nil {
		return fmt.Errorf("compress path: %w", err)
	}

	query := `INSERT OR REPLACE INTO flight_paths (flight_id, kind, created_at, points) VALUES (?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query, flightID, kind, time.Now().UTC(), blob)
	return err
}

// GetPath returns a stored snapshot, or nil if there is none.
func (s *SQLiteStore) GetPath(ctx context.Context, flightID, kind string) ([]geo.Position, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT points FROM flight_paths WHERE flight_id = ? AND kind = ?`, flightID, kind).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// Transparent Decompression
	if len(blob) > 2 && blob[0] == 0x1f && blob[1] == 0x8b {
		if blob, err = decompress(blob); err != nil {
			return nil, fmt.Errorf("decompress path: %w", err)
		}
	}

	points := []geo.Position{}
	if err := json.Unmarshal(blob, &points); err != nil {
		return nil, err
	}
	return points, nil
}

// --- Events ---

func (s *SQLiteStore) AddEvent(ctx context.Context, e *model.FlightEvent) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO flight_events (flight_id, created_at, type, title, summary) VALUES (?, ?, ?, ?, ?)`,
		e.FlightID, ts.UTC(), e.Type, e.Title, e.Summary)
	return err
}

// ListEvents returns a flight's events, oldest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, flightID string) ([]*model.FlightEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT flight_id, created_at, type, title, summary FROM flight_events WHERE flight_id = ? ORDER BY created_at, id`,
		flightID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*model.FlightEvent
	for rows.Next() {
		var e model.FlightEvent
		var title, summary sql.NullString
		if err := rows.Scan(&e.FlightID, &e.Timestamp, &e.Type, &title, &summary); err != nil {
			return nil, err
		}
		e.Title = title.String
		e.Summary = summary.String
		events = append(events, &e)
	}
	return events, rows.Err()
}

// --- Compression Pooling ---

var (
	// Pool for gzip writers to reuse flate state
	gzipWriterPool = sync.Pool{
		New: func() interface{} {
			return gzip.NewWriter(io.Discard)
		},
	}
	// Pool for generic byte buffers
	bufferPool = sync.Pool{
		New: func() interface{} {
			return new(bytes.Buffer)
		},
	}
)

func compress(data []byte) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	w := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(w)
	w.Reset(buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	// Must copy because buf is returned to pool
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}
