package terrain

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

const (
	// ETOPO1 Constants (cell-registered: 10801 rows × 21601 cols)
	etopo1Rows = 10801
	etopo1Cols = 21601
	etopo1Size = etopo1Rows * etopo1Cols * 2 // 16-bit signed integers
)

// ElevationGetter defines the efficient retrieval of terrain elevation.
type ElevationGetter interface {
	GetElevation(lat, lon float64) (int16, error)
	GetLowestElevation(lat, lon, radiusKM float64) (int16, error)
	GetHighestElevation(lat, lon, radiusKM float64) (int16, error)
}

// ElevationProvider reads elevation data from ETOPO1.
type ElevationProvider struct {
	file *os.File
}

// NewElevationProvider opens the ETOPO1 binary file.
func NewElevationProvider(path string) (*ElevationProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if info.Size() != int64(etopo1Size) {
		f.Close()
		return nil, fmt.Errorf("invalid ETOPO1 file size: expected %d, got %d", etopo1Size, info.Size())
	}

	return &ElevationProvider{
		file: f,
	}, nil
}

// Close closes the file handle.
func (e *ElevationProvider) Close() error {
	return e.file.Close()
}

// GetElevation returns the elevation in meters at the given lat/lon.
func (e *ElevationProvider) GetElevation(lat, lon float64) (int16, error) {
	if lat > 90 || lat < -90 || lon > 180 || lon < -180 {
		return 0, fmt.Errorf("coordinates out of bounds: %f, %f", lat, lon)
	}

	row := min(max(int(math.Round((90.0-lat)*60.0)), 0), etopo1Rows-1)
	col := max(int(math.Round((lon+180.0)*60.0)), 0) % etopo1Cols

	b := make([]byte, 2)
	if _, err := e.file.ReadAt(b, cellOffset(row, col)); err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(b)), nil
}

func cellOffset(row, col int) int64 {
	return int64(row*etopo1Cols+col) * 2
}

// GetLowestElevation returns the minimum elevation (meters) within radiusKM,
// capped at MSL: depressions and sea floor count as 0.
func (e *ElevationProvider) GetLowestElevation(lat, lon, radiusKM float64) (int16, error) {
	minElev, err := e.scanArea(lat, lon, radiusKM, math.MaxInt16, func(acc, v int16) int16 { return min(acc, v) })
	if err != nil {
		return 0, err
	}
	return max(minElev, 0), nil
}

// GetHighestElevation returns the maximum elevation (meters) within radiusKM.
func (e *ElevationProvider) GetHighestElevation(lat, lon, radiusKM float64) (int16, error) {
	return e.scanArea(lat, lon, radiusKM, math.MinInt16, func(acc, v int16) int16 { return max(acc, v) })
}

// scanArea folds every grid cell within radiusKM into seed. The grid is
// read row by row with one ReadAt per contiguous run.
func (e *ElevationProvider) scanArea(lat, lon, radiusKM float64, seed int16, fold func(acc, v int16) int16) (int16, error) {
	if radiusKM < 0 {
		return 0, fmt.Errorf("negative radius")
	}
	if lat > 90 || lat < -90 || lon > 180 || lon < -180 {
		return 0, fmt.Errorf("coordinates out of bounds: %f, %f", lat, lon)
	}

	// One arc-minute of latitude is one nautical mile.
	radiusRows := int(math.Ceil(radiusKM / 1.852))

	// Longitude cells shrink towards the poles, so more columns cover the same distance.
	cosLat := math.Cos(lat * math.Pi / 180.0)
	if math.Abs(cosLat) < 0.01 {
		cosLat = 0.01
	}
	radiusCols := min(int(math.Ceil(float64(radiusRows)/cosLat)), etopo1Cols/2)

	centerRow := int(math.Round((90.0 - lat) * 60.0))
	centerCol := int(math.Round((lon + 180.0) * 60.0))
	startCol := centerCol - radiusCols
	width := 2*radiusCols + 1

	acc := seed
	for r := centerRow - radiusRows; r <= centerRow+radiusRows; r++ {
		row := min(max(r, 0), etopo1Rows-1)
		if err := e.scanRowSegment(row, startCol, width, &acc, fold); err != nil {
			return 0, err
		}
	}
	return acc, nil
}

// scanRowSegment scans a portion of a row, handling longitude wrapping (Date Line).
func (e *ElevationProvider) scanRowSegment(row, startCol, width int, acc *int16, fold func(acc, v int16) int16) error {
	normStart := (startCol%etopo1Cols + etopo1Cols) % etopo1Cols

	if normStart+width <= etopo1Cols {
		return e.scanChunk(row, normStart, width, acc, fold)
	}

	firstLen := etopo1Cols - normStart
	if err := e.scanChunk(row, normStart, firstLen, acc, fold); err != nil {
		return err
	}
	return e.scanChunk(row, 0, width-firstLen, acc, fold)
}

// scanChunk reads a contiguous run of cells from one row.
func (e *ElevationProvider) scanChunk(row, colStart, count int, acc *int16, fold func(acc, v int16) int16) error {
	if count <= 0 {
		return nil
	}
	b := make([]byte, count*2)
	if _, err := e.file.ReadAt(b, cellOffset(row, colStart)); err != nil {
		return err
	}

	for i := 0; i < count; i++ {
		*acc = fold(*acc, int16(binary.LittleEndian.Uint16(b[i*2:i*2+2])))
	}
	return nil
}
