package config

// Persistent state keys (Registry)
const (
	KeyInitialThreshold = "initial_threshold"
	KeyGrowthFactor     = "growth_factor"
	KeyAcceptanceRadius = "acceptance_radius"
	KeyReturnClearance  = "return_clearance"
	KeyReturnFloor      = "return_floor"
	KeyAutoReturnAfter  = "auto_return_after"
)

// RuntimeKeys lists every key the provider reads from the state store.
var RuntimeKeys = []string{
	KeyInitialThreshold,
	KeyGrowthFactor,
	KeyAcceptanceRadius,
	KeyReturnClearance,
	KeyReturnFloor,
	KeyAutoReturnAfter,
}
