package store

import (
	"context"
	"time"

	"trackback/pkg/geo"
	"trackback/pkg/model"
)

// FlightStore handles the flight log: flights, their path snapshots and events.
type FlightStore interface {
	CreateFlight(ctx context.Context, home geo.Position, startedAt time.Time) (*model.Flight, error)
	SetFlightPlan(ctx context.Context, id, plan string) error
	EndFlight(ctx context.Context, id string, endedAt time.Time) error
	GetFlight(ctx context.Context, id string) (*model.Flight, error)
	ListFlights(ctx context.Context, limit int) ([]*model.Flight, error)
	CloseOpenFlights(ctx context.Context, endedAt time.Time) (int64, error)

	SavePath(ctx context.Context, flightID, kind string, points []geo.Position) error
	GetPath(ctx context.Context, flightID, kind string) ([]geo.Position, error)

	AddEvent(ctx context.Context, e *model.FlightEvent) error
	ListEvents(ctx context.Context, flightID string) ([]*model.FlightEvent, error)
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}
