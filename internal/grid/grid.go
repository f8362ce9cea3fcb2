// Package grid computes the ordered set of overlapping search cells that
// cover a bounding geographic region. Generation is pure: persistence of the
// resulting cells is the ledger's job.
package grid

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/tastemap/tastemap-cli/internal/model"
)

// MetersPerDegree is the equirectangular approximation for one degree of
// latitude. Longitude degrees shrink by cos(latitude). Good enough for
// city-scale boxes, not globally exact.
const MetersPerDegree = 111320.0

// Params describes the region to cover and how to order the result.
type Params struct {
	// Two opposite corners of the bounding box, any order.
	SWLat, SWLng float64
	NELat, NELng float64

	// RadiusM is the search radius of each cell in meters.
	RadiusM float64

	// Overlap is the fractional overlap between adjacent cells, in [0, 1).
	// Center spacing is 2*RadiusM*(1-Overlap).
	Overlap float64

	// PriorityLat/PriorityLng is the coordinate cells are sorted towards:
	// the crawl visits priority-adjacent cells first. Left zero, the
	// priority defaults to the center of the bounding box.
	PriorityLat, PriorityLng float64
}

// Generate produces pending grid cells covering the box, stably sorted by
// ascending distance (in degrees) from each center to the priority
// coordinate. Ties keep row-major order.
func Generate(p Params) ([]model.GridCell, error) {
	if p.RadiusM <= 0 {
		return nil, eris.New("grid: radius must be positive")
	}
	if p.Overlap < 0 || p.Overlap >= 1 {
		return nil, eris.New("grid: overlap must be in [0, 1)")
	}

	bounds := geom.NewBounds(geom.XY).SetCoords(
		geom.Coord{math.Min(p.SWLng, p.NELng), math.Min(p.SWLat, p.NELat)},
		geom.Coord{math.Max(p.SWLng, p.NELng), math.Max(p.SWLat, p.NELat)},
	)
	minLng, minLat := bounds.Min(0), bounds.Min(1)
	maxLng, maxLat := bounds.Max(0), bounds.Max(1)

	stepM := 2 * p.RadiusM * (1 - p.Overlap)
	latStep := stepM / MetersPerDegree
	midLat := (minLat + maxLat) / 2
	lngScale := math.Cos(midLat * math.Pi / 180)
	if lngScale < 0.01 {
		return nil, eris.New("grid: bounding box too close to a pole")
	}
	lngStep := stepM / (MetersPerDegree * lngScale)

	latDiameter := 2 * p.RadiusM / MetersPerDegree
	lngDiameter := 2 * p.RadiusM / (MetersPerDegree * lngScale)

	// An unset priority would sort cells toward (0,0), which is nowhere
	// near any real crawl area; fall back to the box center instead.
	if p.PriorityLat == 0 && p.PriorityLng == 0 {
		p.PriorityLat = (minLat + maxLat) / 2
		p.PriorityLng = (minLng + maxLng) / 2
	}

	lats := axisCenters(minLat, maxLat, latDiameter, latStep)
	lngs := axisCenters(minLng, maxLng, lngDiameter, lngStep)

	cells := make([]model.GridCell, 0, len(lats)*len(lngs))
	for _, lat := range lats {
		for _, lng := range lngs {
			cells = append(cells, model.GridCell{
				Lat:    lat,
				Lng:    lng,
				Status: model.CellPending,
			})
		}
	}

	// Priority-adjacent cells crawl first; stable sort preserves row-major
	// order between equidistant cells.
	sort.SliceStable(cells, func(i, j int) bool {
		return priorityDistance(cells[i], p) < priorityDistance(cells[j], p)
	})

	return cells, nil
}

// axisCenters places cell centers along one axis. A box no wider than one
// cell diameter gets a single centered cell. Otherwise centers start half a
// step inside the near edge and march by step, so each center owns a tile of
// side step; if the last tile falls short of the far edge one extra center
// is emitted past it rather than leaving a gap. A circle of radius R covers
// its step-sided tile whenever step <= R*sqrt(2), i.e. overlap >= ~0.3.
func axisCenters(min, max, diameter, step float64) []float64 {
	if max-min <= diameter {
		return []float64{(min + max) / 2}
	}
	var out []float64
	for v := min + step/2; v < max; v += step {
		out = append(out, v)
	}
	if last := out[len(out)-1]; last+step/2 < max {
		out = append(out, last+step)
	}
	return out
}

func priorityDistance(c model.GridCell, p Params) float64 {
	dLat := c.Lat - p.PriorityLat
	dLng := c.Lng - p.PriorityLng
	return math.Sqrt(dLat*dLat + dLng*dLng)
}
