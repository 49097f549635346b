package realtime

import (
	"encoding/json"

	"github.com/crowdpulse/crowdfeed/internal/model"
)

// SubscribeJSON subscribes to topic and decodes every payload into T before
// calling fn. Payloads that do not decode are dropped and counted.
func SubscribeJSON[T any](c *Client, topic string, fn func(T)) (SubscriptionID, error) {
	if fn == nil {
		return 0, ErrNilHandler
	}
	return c.Subscribe(topic, func(m Message) {
		var v T
		if err := json.Unmarshal(m.Payload, &v); err != nil {
			c.dropped.Add(1)
			c.log.Warn("Dropping undecodable payload", "topic", m.Topic, "error", err)
			return
		}
		fn(v)
	})
}

// SubscribeToArea follows updates for a single area.
func (c *Client) SubscribeToArea(areaID int64, fn func(model.Area)) (SubscriptionID, error) {
	return SubscribeJSON(c, model.AreaTopic(areaID).Destination(), fn)
}

// SubscribeToAllAreas follows updates for every area, one area per event.
func (c *Client) SubscribeToAllAreas(fn func(model.Area)) (SubscriptionID, error) {
	return SubscribeJSON(c, model.Topic{Kind: model.TopicAreas}.Destination(), fn)
}

// SubscribeToAreaSnapshots follows full area list broadcasts.
func (c *Client) SubscribeToAreaSnapshots(fn func([]model.Area)) (SubscriptionID, error) {
	return SubscribeJSON(c, model.Topic{Kind: model.TopicAreasAll}.Destination(), fn)
}

// SubscribeToScans follows entry and exit scans.
func (c *Client) SubscribeToScans(fn func(model.ScanEvent)) (SubscriptionID, error) {
	return SubscribeJSON(c, model.Topic{Kind: model.TopicScans}.Destination(), fn)
}

// SubscribeToAlerts follows newly raised alerts.
func (c *Client) SubscribeToAlerts(fn func(model.Alert)) (SubscriptionID, error) {
	return SubscribeJSON(c, model.Topic{Kind: model.TopicAlerts}.Destination(), fn)
}
