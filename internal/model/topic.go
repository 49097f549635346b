package model

import (
	"fmt"
	"strconv"
	"strings"
)

// TopicKind identifies one of the broker destinations the backend publishes on.
type TopicKind int

const (
	// TopicArea carries updates for a single area.
	TopicArea TopicKind = iota
	// TopicAreas carries every area update, one area per message.
	TopicAreas
	// TopicAreasAll carries full area snapshots.
	TopicAreasAll
	// TopicScans carries scan events.
	TopicScans
	// TopicAlerts carries newly raised or updated alerts.
	TopicAlerts
)

var topicDestinations = map[TopicKind]string{
	TopicArea:     "/topic/area/",
	TopicAreas:    "/topic/areas",
	TopicAreasAll: "/topic/areas/all",
	TopicScans:    "/topic/scans",
	TopicAlerts:   "/topic/alerts",
}

var topicNames = map[TopicKind]string{
	TopicArea:     "area",
	TopicAreas:    "areas",
	TopicAreasAll: "areas-all",
	TopicScans:    "scans",
	TopicAlerts:   "alerts",
}

// String returns a short name for logs.
func (k TopicKind) String() string {
	if name, ok := topicNames[k]; ok {
		return name
	}
	return fmt.Sprintf("TopicKind(%d)", int(k))
}

// Topic is a typed broker destination. AreaID is only meaningful for
// TopicArea.
type Topic struct {
	Kind   TopicKind
	AreaID int64
}

// AreaTopic returns the destination for a single area.
func AreaTopic(areaID int64) Topic {
	return Topic{Kind: TopicArea, AreaID: areaID}
}

// Destination returns the STOMP destination string.
func (t Topic) Destination() string {
	if t.Kind == TopicArea {
		return topicDestinations[TopicArea] + strconv.FormatInt(t.AreaID, 10)
	}
	return topicDestinations[t.Kind]
}

// String is the same as Destination.
func (t Topic) String() string {
	return t.Destination()
}

// ParseTopic maps a STOMP destination back to a Topic.
func ParseTopic(destination string) (Topic, bool) {
	for kind, dest := range topicDestinations {
		if kind != TopicArea && destination == dest {
			return Topic{Kind: kind}, true
		}
	}

	rest, ok := strings.CutPrefix(destination, topicDestinations[TopicArea])
	if !ok {
		return Topic{}, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return Topic{}, false
	}
	return AreaTopic(id), true
}
