package model

import (
	"time"

	"trackback/pkg/geo"
)

// Event types written to the flight log.
const (
	EventHome       = "home"        // first fix recorded
	EventLoopCut    = "loop_cut"    // the track crossed itself
	EventReturn     = "return"      // return flight committed
	EventAutoReturn = "auto_return" // return committed by the flight timer
	EventWaypoint   = "waypoint"    // a return waypoint was reached
	EventArrived    = "arrived"     // the vehicle is back home
	EventReset      = "reset"       // the recorder was cleared
)

// FlightEvent is one line of the flight log.
type FlightEvent struct {
	FlightID  string    `json:"flight_id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
}

// Flight summarizes one recording session, from the home fix to the end of
// the return.
type Flight struct {
	ID        string       `json:"id"`
	StartedAt time.Time    `json:"started_at"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
	Home      geo.Position `json:"home"`
	Plan      string       `json:"plan,omitempty"` // kind of return flown, empty until committed
}

// Active reports whether the flight has not ended yet.
func (f *Flight) Active() bool {
	return f.EndedAt == nil
}

// Path snapshot kinds.
const (
	PathOutbound = "outbound" // recorded track at the moment the return was committed
	PathReturn   = "return"   // track after return planning
)
