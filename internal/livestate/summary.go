package livestate

import (
	"github.com/crowdpulse/crowdfeed/internal/model"
	"github.com/crowdpulse/crowdfeed/internal/utils"
)

// Summary aggregates the current areas the way the dashboard header does.
type Summary struct {
	TotalAreas    int                      `json:"totalAreas"`
	TotalPeople   int                      `json:"totalPeople"`
	TotalCapacity int                      `json:"totalCapacity"`
	Warning       int                      `json:"warning"`
	Critical      int                      `json:"critical"`
	OccupancyRate int                      `json:"occupancyRate"`
	Distribution  map[model.AreaStatus]int `json:"distribution"`
	ActiveAlerts  int                      `json:"activeAlerts"`
}

// Summary computes totals over the stored areas.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summary{
		TotalAreas: len(s.areas),
		Distribution: map[model.AreaStatus]int{
			model.StatusGreen:  0,
			model.StatusYellow: 0,
			model.StatusRed:    0,
		},
	}
	for _, a := range s.areas {
		sum.TotalPeople += a.CurrentCount
		sum.TotalCapacity += a.Capacity
		sum.Distribution[a.Status]++
		switch a.Status {
		case model.StatusYellow:
			sum.Warning++
		case model.StatusRed:
			sum.Critical++
		}
	}
	for _, a := range s.alerts {
		if a.Active() {
			sum.ActiveAlerts++
		}
	}
	sum.OccupancyRate = utils.Percentage(sum.TotalPeople, sum.TotalCapacity)
	return sum
}
