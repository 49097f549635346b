package model

// AlertType classifies an alert raised by the backend.
type AlertType string

const (
	AlertOvercrowding    AlertType = "OVERCROWDING"
	AlertThresholdBreach AlertType = "THRESHOLD_BREACH"
	AlertRapidInflow     AlertType = "RAPID_INFLOW"
)

// Display returns the human label used in the dashboard.
func (t AlertType) Display() string {
	switch t {
	case AlertOvercrowding:
		return "Overcrowding"
	case AlertThresholdBreach:
		return "Threshold Breach"
	case AlertRapidInflow:
		return "Rapid Inflow"
	default:
		return string(t)
	}
}

// Critical reports whether alerts of this type are critical rather than
// warnings.
func (t AlertType) Critical() bool {
	return t == AlertOvercrowding || t == AlertRapidInflow
}

// AlertStatus is the operator-facing lifecycle of an alert.
type AlertStatus string

const (
	AlertUnread   AlertStatus = "UNREAD"
	AlertRead     AlertStatus = "READ"
	AlertResolved AlertStatus = "RESOLVED"
)

// Alert mirrors the backend's AlertResponse.
type Alert struct {
	ID                  int64       `json:"id"`
	AreaID              int64       `json:"areaId"`
	AreaName            string      `json:"areaName"`
	EventName           string      `json:"eventName,omitempty"`
	AlertType           AlertType   `json:"alertType"`
	AlertTypeDisplay    string      `json:"alertTypeDisplay"`
	Status              AlertStatus `json:"status"`
	Severity            string      `json:"severity"`
	Critical            bool        `json:"critical"`
	Message             string      `json:"message"`
	OccupancyPercentage float64     `json:"occupancyPercentage"`
	CurrentCount        int         `json:"currentCount"`
	Threshold           int         `json:"threshold"`
	Capacity            int         `json:"capacity"`
	CreatedAt           LocalTime   `json:"createdAt"`
	ResolvedAt          *LocalTime  `json:"resolvedAt,omitempty"`
}

// Active reports whether the alert still needs attention.
func (a Alert) Active() bool {
	return a.Status != AlertResolved
}
