package model

// Event is a monitor event type used for log decoration and notification
// filtering.
type Event string

// All supported monitor events.
const (
	EventAreaWarning   Event = "AREA_WARNING"
	EventAreaCritical  Event = "AREA_CRITICAL"
	EventAreaNormal    Event = "AREA_NORMAL"
	EventAlertCreated  Event = "ALERT_CREATED"
	EventFeedConnected Event = "FEED_CONNECTED"
	EventFeedLost      Event = "FEED_LOST"
	EventFeedFailed    Event = "FEED_FAILED"
	EventScan          Event = "SCAN"
	EventTest          Event = "TEST"
)

// AllEvents returns a slice of all defined events.
func AllEvents() []Event {
	return []Event{
		EventAreaWarning,
		EventAreaCritical,
		EventAreaNormal,
		EventAlertCreated,
		EventFeedConnected,
		EventFeedLost,
		EventFeedFailed,
		EventScan,
		EventTest,
	}
}

// String returns the string representation of an Event.
func (e Event) String() string {
	return string(e)
}

// ParseEvent converts a string to an Event. Returns empty string if invalid.
func ParseEvent(s string) Event {
	for _, e := range AllEvents() {
		if string(e) == s {
			return e
		}
	}
	return ""
}

// StatusEvent maps an area status to the event emitted when an area enters it.
func StatusEvent(s AreaStatus) Event {
	switch s {
	case StatusRed:
		return EventAreaCritical
	case StatusYellow:
		return EventAreaWarning
	default:
		return EventAreaNormal
	}
}
