package model

import "github.com/crowdpulse/crowdfeed/internal/utils"

// AreaStatus is the traffic-light occupancy level of an area.
type AreaStatus string

const (
	StatusGreen  AreaStatus = "GREEN"
	StatusYellow AreaStatus = "YELLOW"
	StatusRed    AreaStatus = "RED"
)

// Severity orders statuses so callers can tell escalation from recovery.
func (s AreaStatus) Severity() int {
	switch s {
	case StatusRed:
		return 2
	case StatusYellow:
		return 1
	default:
		return 0
	}
}

// Area is a monitored zone as served by GET /api/areas and pushed on
// /topic/area/{id}, /topic/areas and /topic/areas/all.
type Area struct {
	ID                  int64      `json:"id"`
	Name                string     `json:"name"`
	Capacity            int        `json:"capacity"`
	Threshold           int        `json:"threshold"`
	CurrentCount        int        `json:"currentCount"`
	Status              AreaStatus `json:"status"`
	OccupancyPercentage float64    `json:"occupancyPercentage"`
}

// ComputeStatus applies the backend's rule: RED at or above capacity,
// YELLOW at or above threshold, GREEN otherwise.
func ComputeStatus(count, capacity, threshold int) AreaStatus {
	switch {
	case count >= capacity:
		return StatusRed
	case count >= threshold:
		return StatusYellow
	default:
		return StatusGreen
	}
}

// Occupancy returns count/capacity as a percentage rounded to two decimals.
func Occupancy(count, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return utils.FloatRound(float64(count)/float64(capacity)*100, 2)
}

// Recompute refreshes Status and OccupancyPercentage from the counts.
func (a *Area) Recompute() {
	a.Status = ComputeStatus(a.CurrentCount, a.Capacity, a.Threshold)
	a.OccupancyPercentage = Occupancy(a.CurrentCount, a.Capacity)
}

// AreaRequest is the body of POST/PUT /api/areas.
type AreaRequest struct {
	Name      string `json:"name"`
	Capacity  int    `json:"capacity"`
	Threshold int    `json:"threshold"`
}
