package gpx

import (
	"encoding/xml"
	"time"
)

// Point is a GPX track point.
type Point struct {
	Lat       float64    `xml:"lat,attr"`
	Lon       float64    `xml:"lon,attr"`
	Elevation *float64   `xml:"ele,omitempty"`
	Time      *time.Time `xml:"time,omitempty"`
}

// TrackSegment is a run of contiguous points.
type TrackSegment struct {
	Points []Point `xml:"trkpt"`
}

// Track is a named list of segments.
type Track struct {
	Name     string         `xml:"name,omitempty"`
	Segments []TrackSegment `xml:"trkseg"`
}

// GPX is the document root. Only tracks are kept; waypoints, routes and
// extensions are skipped on read.
type GPX struct {
	XMLName xml.Name `xml:"gpx"`
	Version string   `xml:"version,attr"`
	Creator string   `xml:"creator,attr"`
	XMLNS   string   `xml:"xmlns,attr,omitempty"`
	Tracks  []Track  `xml:"trk"`
}
