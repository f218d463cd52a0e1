package sim

import (
	"context"
	"errors"

	"trackback/pkg/geo"
)

var (
	// ErrNotConnected is returned when a client action requires a connection.
	ErrNotConnected = errors.New("vehicle not connected")
)

// Client defines the interface for reading the vehicle's fixes.
type Client interface {
	// GetTelemetry returns the current state of the vehicle.
	GetTelemetry(ctx context.Context) (Telemetry, error)
	// GetState returns the current connection/activity state.
	GetState() State
	// Close cleans up resources associated with the client.
	Close() error
}

// Steerable is a vehicle that can be sent to a target position.
type Steerable interface {
	// SetTarget makes the vehicle fly towards pos and hold its altitude.
	SetTarget(pos geo.Position)
	// ClearTarget hands control back to the vehicle's own plan.
	ClearTarget()
}

// Telemetry represents a snapshot of the vehicle state.
type Telemetry struct {
	Latitude      float64 `json:"latitude"`       // Degrees
	Longitude     float64 `json:"longitude"`      // Degrees
	AltitudeMSL   float64 `json:"altitude_msl"`   // Meters MSL
	AltitudeAGL   float64 `json:"altitude_agl"`   // Meters AGL
	Heading       float64 `json:"heading"`        // Degrees True (ground track)
	GroundSpeed   float64 `json:"ground_speed"`   // m/s
	VerticalSpeed float64 `json:"vertical_speed"` // m/s

	IsOnGround  bool   `json:"is_on_ground"`
	FlightStage string `json:"flight_stage"`
}

// Position converts the fix to the recorder's fixed-point form.
func (t *Telemetry) Position() geo.Position {
	return geo.FromDegrees(t.Latitude, t.Longitude, t.AltitudeMSL)
}

// Point returns the horizontal position in degrees.
func (t *Telemetry) Point() geo.Point {
	return geo.Point{Lat: t.Latitude, Lon: t.Longitude}
}

// Flight stages reported in Telemetry.FlightStage.
const (
	StageGround  = "GROUND"
	StageClimb   = "CLIMB"
	StageDescent = "DESCENT"
	StageCruise  = "CRUISE"
)

// DetermineFlightStage calculates the flight phase based on telemetry.
func DetermineFlightStage(t *Telemetry) string {
	if t.IsOnGround {
		return StageGround
	}
	if t.VerticalSpeed > 1.5 {
		return StageClimb
	}
	if t.VerticalSpeed < -1.5 {
		return StageDescent
	}
	return StageCruise
}
