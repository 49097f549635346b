// Package analytics derives heatmaps and short-term crowd predictions from
// area state and hourly scan trends.
package analytics

import (
	"cmp"
	"math"
	"slices"

	"github.com/crowdpulse/crowdfeed/internal/constants"
	"github.com/crowdpulse/crowdfeed/internal/model"
)

// MovingAverage averages the counts of the last window points, rounded to
// the nearest person. It returns false when there are fewer points than the
// window. A window <= 0 uses the default of 3.
func MovingAverage(points []model.HourlyTrend, window int) (int, bool) {
	if window <= 0 {
		window = constants.PredictionWindow
	}
	if len(points) < window {
		return 0, false
	}

	sum := 0
	for _, p := range points[len(points)-window:] {
		sum += p.Count
	}
	return int(math.Round(float64(sum) / float64(window))), true
}

// Level is a heatmap intensity from 0 (quiet) to 4 (packed).
type Level int

const (
	LevelLow Level = iota
	LevelModerate
	LevelBusy
	LevelHigh
	LevelCritical
)

var levelLabels = [...]string{"Low", "Moderate", "Busy", "High", "Critical"}

func (l Level) String() string {
	if l < LevelLow || l > LevelCritical {
		return "Unknown"
	}
	return levelLabels[l]
}

// HeatLevel buckets an area by occupancy percentage.
func HeatLevel(a model.Area) Level {
	occ := a.OccupancyPercentage
	switch {
	case occ >= 90:
		return LevelCritical
	case occ >= 70:
		return LevelHigh
	case occ >= 50:
		return LevelBusy
	case occ >= 30:
		return LevelModerate
	default:
		return LevelLow
	}
}

// Cell is one heatmap entry.
type Cell struct {
	AreaID    int64            `json:"areaId"`
	Name      string           `json:"name"`
	Occupancy float64          `json:"occupancy"`
	Count     int              `json:"count"`
	Capacity  int              `json:"capacity"`
	Status    model.AreaStatus `json:"status"`
	Level     Level            `json:"level"`
	Label     string           `json:"label"`
}

// Heatmap returns one cell per area, busiest first. Ties keep id order.
func Heatmap(areas []model.Area) []Cell {
	cells := make([]Cell, 0, len(areas))
	for _, a := range areas {
		lvl := HeatLevel(a)
		cells = append(cells, Cell{
			AreaID:    a.ID,
			Name:      a.Name,
			Occupancy: a.OccupancyPercentage,
			Count:     a.CurrentCount,
			Capacity:  a.Capacity,
			Status:    a.Status,
			Level:     lvl,
			Label:     lvl.String(),
		})
	}

	slices.SortStableFunc(cells, func(a, b Cell) int {
		if c := cmp.Compare(b.Occupancy, a.Occupancy); c != 0 {
			return c
		}
		return cmp.Compare(a.AreaID, b.AreaID)
	})
	return cells
}
