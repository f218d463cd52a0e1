package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support extended units (d, w) in YAML.
type Duration time.Duration

// Common durations.
const (
	Day  = 24 * time.Hour
	Week = 7 * Day
)

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

var durationUnits = map[string]time.Duration{
	"ns": time.Nanosecond,
	"us": time.Microsecond,
	"µs": time.Microsecond,
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  Day,
	"w":  Week,
}

var durationTerm = regexp.MustCompile(`([0-9.]+)([a-zµ]+)`)

// ParseDuration parses a duration string. On top of time.ParseDuration it
// accepts d (day) and w (week), also in composites like "2d2h".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if !strings.ContainsAny(s, "dw") {
		return time.ParseDuration(s)
	}

	terms := durationTerm.FindAllStringSubmatch(s, -1)
	if len(terms) == 0 {
		return 0, fmt.Errorf("invalid duration format: %s", s)
	}

	var total time.Duration
	for _, term := range terms {
		val, err := strconv.ParseFloat(term[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number in duration: %s", term[1])
		}
		unit, ok := durationUnits[term[2]]
		if !ok {
			return 0, fmt.Errorf("unknown unit: %s", term[2])
		}
		total += time.Duration(val * float64(unit))
	}
	return total, nil
}

// Distance represents a distance in meters.
type Distance float64

// Meters returns the value as a plain float.
func (d Distance) Meters() float64 {
	return float64(d)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Distance) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		var f float64
		if errNum := value.Decode(&f); errNum == nil {
			*d = Distance(f)
			return nil
		}
		return err
	}

	dist, err := ParseDistance(s)
	if err != nil {
		return err
	}
	*d = Distance(dist)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Distance) MarshalYAML() (interface{}, error) {
	return fmt.Sprintf("%.2fm", float64(d)), nil
}

// distanceUnits is ordered so that "nm" and "km" are tried before "m".
var distanceUnits = []struct {
	suffix string
	meters float64
}{
	{"km", 1000},
	{"nm", 1852},
	{"ft", 0.3048},
	{"m", 1},
}

// ParseDistance parses a distance in m, km, nm or ft. A bare number is meters.
func ParseDistance(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	mult := 1.0
	num := s
	for _, u := range distanceUnits {
		if strings.HasSuffix(s, u.suffix) {
			mult = u.meters
			num = strings.TrimSuffix(s, u.suffix)
			break
		}
	}

	val, err := strconv.ParseFloat(strings.TrimSpace(num), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid distance number: %w", err)
	}
	return val * mult, nil
}
