// Package sim provides vehicle client interfaces and types.
package sim

// State represents the connection and activity state of the vehicle link.
type State string

const (
	// StateDisconnected indicates no link to the vehicle.
	StateDisconnected State = "disconnected"
	// StateInactive indicates a link but no usable fixes (no GPS lock, paused).
	StateInactive State = "inactive"
	// StateActive indicates a link with live fixes.
	StateActive State = "active"
)

// Usable reports whether fixes in this state may be recorded.
func (s State) Usable() bool {
	return s == StateActive
}
