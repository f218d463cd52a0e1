package gpx

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"trackback/pkg/geo"
)

const namespace = "http://www.topografix.com/GPX/1/1"

// maxAltitude keeps altitudes inside the fixed-point centimeter range.
const maxAltitude = 2e7

// ErrNoPoints is returned when a document holds no track points.
var ErrNoPoints = errors.New("gpx: no track points")

// Parse reads a GPX file.
func Parse(filename string) (*GPX, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return ParseReader(file)
}

// ParseReader decodes a GPX document from r.
func ParseReader(r io.Reader) (*GPX, error) {
	var doc GPX
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse GPX: %w", err)
	}
	if doc.Version == "" {
		doc.Version = "1.1"
	}
	return &doc, nil
}

// FlattenPoints returns the points of all tracks and segments in file order.
func (g *GPX) FlattenPoints() []Point {
	var points []Point
	for _, track := range g.Tracks {
		for _, seg := range track.Segments {
			points = append(points, seg.Points...)
		}
	}
	return points
}

// Positions converts all track points to fixes. Points without an
// elevation get defaultAlt (meters).
func (g *GPX) Positions(defaultAlt float64) ([]geo.Position, error) {
	points := g.FlattenPoints()
	if len(points) == 0 {
		return nil, ErrNoPoints
	}
	out := make([]geo.Position, 0, len(points))
	for i, pt := range points {
		if !inRange(pt.Lat, 90) || !inRange(pt.Lon, 180) {
			return nil, fmt.Errorf("gpx: point %d out of range (%f, %f)", i, pt.Lat, pt.Lon)
		}
		alt := defaultAlt
		if pt.Elevation != nil {
			alt = *pt.Elevation
		}
		if !inRange(alt, maxAltitude) {
			return nil, fmt.Errorf("gpx: point %d has invalid elevation %f", i, alt)
		}
		out = append(out, geo.FromDegrees(pt.Lat, pt.Lon, alt))
	}
	return out, nil
}

// FromPositions builds a single-track document from fixes.
func FromPositions(name, creator string, positions []geo.Position) *GPX {
	seg := TrackSegment{Points: make([]Point, 0, len(positions))}
	for _, p := range positions {
		pt := p.Point()
		ele := p.AltMeters()
		seg.Points = append(seg.Points, Point{Lat: pt.Lat, Lon: pt.Lon, Elevation: &ele})
	}
	return &GPX{
		Version: "1.1",
		Creator: creator,
		XMLNS:   namespace,
		Tracks:  []Track{{Name: name, Segments: []TrackSegment{seg}}},
	}
}

// Write saves the document to filename.
func (g *GPX) Write(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return g.Encode(file)
}

// Encode writes the document to w with an XML header.
func (g *GPX) Encode(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(g); err != nil {
		return fmt.Errorf("failed to encode GPX: %w", err)
	}
	return nil
}

// Duration is the time between the first and last timestamped point.
func (g *GPX) Duration() time.Duration {
	var first, last *time.Time
	for _, pt := range g.FlattenPoints() {
		if pt.Time == nil {
			continue
		}
		if first == nil {
			first = pt.Time
		}
		last = pt.Time
	}
	if first == nil {
		return 0
	}
	return last.Sub(*first)
}

// inRange reports whether v is a number within [-limit, limit]. NaN fails.
func inRange(v, limit float64) bool {
	return !math.IsNaN(v) && v >= -limit && v <= limit
}
