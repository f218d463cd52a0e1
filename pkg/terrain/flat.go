package terrain

// FlatProvider reports the same elevation everywhere. It stands in for the
// ETOPO1 grid when no elevation file is configured.
type FlatProvider struct {
	Elevation int16 // meters MSL
}

func (f FlatProvider) GetElevation(lat, lon float64) (int16, error) {
	return f.Elevation, nil
}

func (f FlatProvider) GetLowestElevation(lat, lon, radiusKM float64) (int16, error) {
	return max(f.Elevation, 0), nil
}

func (f FlatProvider) GetHighestElevation(lat, lon, radiusKM float64) (int16, error) {
	return f.Elevation, nil
}
