package geo

import (
	"math"

	"github.com/uber/h3-go/v4"
)

// ZoneResolution is the H3 resolution of a ride's pickup cell (~3.7 km edge).
// Rides are tagged with it on creation and the nearby search uses it as a
// coarse prefilter before the exact distance check.
const ZoneResolution = 6

const (
	// Conservative bounds for resolution 6 so a k-ring never misses a cell
	// that intersects the search circle.
	minCellSpacingMeters = 3500.0
	maxCellRadiusMeters  = 5000.0
)

// LatLngToCell converts latitude/longitude to an H3 cell index at the given resolution.
// Returns 0 for coordinates h3 rejects, which callers validate upstream.
func LatLngToCell(lat, lng float64, resolution int) h3.Cell {
	cell, err := h3.LatLngToCell(h3.NewLatLng(lat, lng), resolution)
	if err != nil {
		return 0
	}
	return cell
}

// ZoneCell returns the pickup zone of a point as a hex string.
func ZoneCell(lat, lng float64) string {
	cell := LatLngToCell(lat, lng, ZoneResolution)
	if cell == 0 {
		return ""
	}
	return cell.String()
}

// KRingForRadius returns the grid distance needed for a k-ring around the
// origin cell to cover every cell within radiusMeters.
func KRingForRadius(radiusMeters float64) int {
	if radiusMeters <= 0 {
		return 1
	}
	// A k-ring's inscribed radius is k * spacing * cos(30°).
	return int(math.Ceil((radiusMeters + maxCellRadiusMeters) / (minCellSpacingMeters * math.Sqrt(3) / 2)))
}

// ZoneCellsWithin returns the zone cells that may hold a point within
// radiusMeters of (lat, lng).
func ZoneCellsWithin(lat, lng, radiusMeters float64) []string {
	origin := LatLngToCell(lat, lng, ZoneResolution)
	if origin == 0 {
		return nil
	}
	cells, err := origin.GridDisk(KRingForRadius(radiusMeters))
	if err != nil {
		return []string{origin.String()}
	}
	out := make([]string, len(cells))
	for i, cell := range cells {
		out[i] = cell.String()
	}
	return out
}
