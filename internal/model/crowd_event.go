package model

// EventStatus is derived by the backend from the event's time window.
type EventStatus string

const (
	EventUpcoming  EventStatus = "UPCOMING"
	EventLive      EventStatus = "LIVE"
	EventCompleted EventStatus = "COMPLETED"
)

// CrowdEvent is a scheduled gathering owning a set of areas.
type CrowdEvent struct {
	ID                  int64       `json:"id"`
	Name                string      `json:"name"`
	Description         string      `json:"description,omitempty"`
	Venue               string      `json:"venue,omitempty"`
	EventDateTime       LocalTime   `json:"eventDateTime"`
	EndDateTime         *LocalTime  `json:"endDateTime,omitempty"`
	Status              EventStatus `json:"status"`
	TotalAreas          int         `json:"totalAreas"`
	TotalCapacity       int         `json:"totalCapacity"`
	TotalCurrentCount   int         `json:"totalCurrentCount"`
	OccupancyPercentage float64     `json:"occupancyPercentage"`
	Areas               []Area      `json:"areas,omitempty"`
	CreatedAt           *LocalTime  `json:"createdAt,omitempty"`
	UpdatedAt           *LocalTime  `json:"updatedAt,omitempty"`
}

// GroupedEvents is the body of GET /api/events/grouped.
type GroupedEvents struct {
	Live      []CrowdEvent `json:"live"`
	Upcoming  []CrowdEvent `json:"upcoming"`
	Completed []CrowdEvent `json:"completed"`
}

// EventRequest is the body of POST/PUT /api/events.
type EventRequest struct {
	Name          string           `json:"name"`
	Description   string           `json:"description,omitempty"`
	Venue         string           `json:"venue,omitempty"`
	EventDateTime LocalTime        `json:"eventDateTime"`
	EndDateTime   *LocalTime       `json:"endDateTime,omitempty"`
	Areas         []EventAreaInput `json:"areas"`
}

// EventAreaInput declares an area created together with its event.
type EventAreaInput struct {
	Name       string `json:"name"`
	Capacity   int    `json:"capacity"`
	Threshold  int    `json:"threshold"`
	GenerateQR *bool  `json:"generateQr,omitempty"`
}
