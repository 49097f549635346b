package monitor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/crowdpulse/crowdfeed/internal/livestate"
	"github.com/crowdpulse/crowdfeed/internal/model"
	"github.com/crowdpulse/crowdfeed/internal/poller"
	"github.com/crowdpulse/crowdfeed/internal/realtime"
	"github.com/crowdpulse/crowdfeed/internal/relay"
	"github.com/crowdpulse/crowdfeed/internal/utils"
)

// subscribe registers every feed handler. With configured areas each gets its
// own topic; otherwise the all-areas topic is used.
func (m *Monitor) subscribe() error {
	if len(m.cfg.Areas) > 0 {
		for _, id := range m.cfg.Areas {
			if _, err := m.feed.SubscribeToArea(id, m.onArea(model.AreaTopic(id))); err != nil {
				return err
			}
		}
	} else {
		if _, err := m.feed.SubscribeToAllAreas(m.onArea(model.Topic{Kind: model.TopicAreas})); err != nil {
			return err
		}
	}

	if _, err := m.feed.SubscribeToAreaSnapshots(m.onSnapshot); err != nil {
		return err
	}
	if _, err := m.feed.SubscribeToScans(m.onScan); err != nil {
		return err
	}
	if _, err := m.feed.SubscribeToAlerts(m.onAlert); err != nil {
		return err
	}
	return nil
}

func (m *Monitor) watched(id int64) bool {
	if len(m.cfg.Areas) == 0 {
		return true
	}
	for _, a := range m.cfg.Areas {
		if a == id {
			return true
		}
	}
	return false
}

func (m *Monitor) onArea(topic model.Topic) func(model.Area) {
	return func(a model.Area) {
		m.publish(topic, a)
		m.applyArea(a, livestate.SourceFeed)
	}
}

func (m *Monitor) applyArea(a model.Area, src livestate.Source) {
	if !m.watched(a.ID) {
		return
	}
	m.reportTransition(m.store.ApplyArea(a, src))
}

func (m *Monitor) onSnapshot(areas []model.Area) {
	m.publish(model.Topic{Kind: model.TopicAreasAll}, areas)
	m.applySnapshot(areas, livestate.SourceFeed)
}

func (m *Monitor) applySnapshot(areas []model.Area, src livestate.Source) {
	if len(m.cfg.Areas) > 0 {
		kept := areas[:0:0]
		for _, a := range areas {
			if m.watched(a.ID) {
				kept = append(kept, a)
			}
		}
		areas = kept
	}
	for _, tr := range m.store.ReplaceAreas(areas, src) {
		m.reportTransition(tr)
	}
}

func (m *Monitor) onScan(ev model.ScanEvent) {
	m.publish(model.Topic{Kind: model.TopicScans}, ev)
	m.applyScan(ev, livestate.SourceFeed)
}

func (m *Monitor) applyScan(ev model.ScanEvent, src livestate.Source) {
	if !m.watched(ev.AreaID) {
		return
	}
	tr, ok := m.store.ApplyScan(ev, src)
	if !ok {
		m.log.Debug("Scan for unknown area", "area", ev.AreaID, "type", string(ev.ScanType))
		return
	}

	m.log.Event(m.ctx(), model.EventScan, fmt.Sprintf("%s scan at %s", ev.ScanType, tr.Name),
		"people", utils.Plural(ev.NewCount, "person", "people"))
	m.reportTransition(tr)
}

func (m *Monitor) onAlert(a model.Alert) {
	m.publish(model.Topic{Kind: model.TopicAlerts}, a)
	m.applyAlert(a)
}

func (m *Monitor) applyAlert(a model.Alert) {
	if !m.watched(a.AreaID) {
		return
	}
	if !m.store.AddAlert(a) || !a.Active() {
		return
	}

	label := a.AlertTypeDisplay
	if label == "" {
		label = a.AlertType.Display()
	}
	args := []any{"area", a.AreaName}
	if a.Message != "" {
		args = append(args, "message", a.Message)
	}
	m.log.Event(m.ctx(), model.EventAlertCreated, label, args...)
}

// reportTransition logs, and thereby notifies, a status change.
func (m *Monitor) reportTransition(tr livestate.Transition) {
	if !tr.Changed() {
		return
	}
	a, ok := m.store.Area(tr.AreaID)
	if !ok {
		return
	}

	msg := fmt.Sprintf("%s is %s", a.Name, a.Status)
	if tr.Escalated() {
		msg = fmt.Sprintf("%s escalated to %s", a.Name, a.Status)
	}
	m.log.Event(m.ctx(), model.StatusEvent(tr.To), msg,
		"occupancy", fmt.Sprintf("%.1f%%", a.OccupancyPercentage),
		"count", fmt.Sprintf("%s/%s", utils.Millify(a.CurrentCount, 1), utils.Millify(a.Capacity, 1)),
		"was", string(tr.From),
	)
}

// handlePoll applies a REST snapshot. The first one primes the store
// without raising events for alerts that already existed.
func (m *Monitor) handlePoll(s poller.Snapshot) error {
	m.applySnapshot(s.Areas, livestate.SourcePoll)

	if !m.primed.Swap(true) {
		var alerts []model.Alert
		for _, a := range s.Alerts {
			if m.watched(a.AreaID) {
				alerts = append(alerts, a)
			}
		}
		m.store.ReplaceAlerts(alerts)
		return nil
	}

	// Oldest first so the store ends up newest first.
	for i := len(s.Alerts) - 1; i >= 0; i-- {
		m.applyAlert(s.Alerts[i])
	}
	return nil
}

// publish forwards a decoded feed event to the other instances.
func (m *Monitor) publish(topic model.Topic, v any) {
	if m.relay == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		m.log.Debug("Relay encode failed", "topic", topic.String(), "error", err)
		return
	}
	if err := m.relay.Publish(m.ctx(), topic.Destination(), payload, time.Now()); err != nil {
		m.log.Debug("Relay publish failed", "topic", topic.String(), "error", err)
	}
}

// handleRemote applies events relayed by other instances while the local
// feed is down.
func (m *Monitor) handleRemote(env relay.Envelope) {
	if !m.feedDown() {
		return
	}
	topic, ok := model.ParseTopic(env.Topic)
	if !ok {
		m.log.Debug("Relayed event on unknown topic", "topic", env.Topic)
		return
	}

	var err error
	switch topic.Kind {
	case model.TopicArea, model.TopicAreas:
		var a model.Area
		if err = json.Unmarshal(env.Payload, &a); err == nil {
			m.applyArea(a, livestate.SourceRelay)
		}
	case model.TopicAreasAll:
		var areas []model.Area
		if err = json.Unmarshal(env.Payload, &areas); err == nil {
			m.applySnapshot(areas, livestate.SourceRelay)
		}
	case model.TopicScans:
		var ev model.ScanEvent
		if err = json.Unmarshal(env.Payload, &ev); err == nil {
			m.applyScan(ev, livestate.SourceRelay)
		}
	case model.TopicAlerts:
		var a model.Alert
		if err = json.Unmarshal(env.Payload, &a); err == nil {
			m.applyAlert(a)
		}
	}
	if err != nil {
		m.log.Warn("Dropping relayed event", "topic", env.Topic, "error", err)
	}
}

// onFeedState turns feed transitions into events and drives recovery.
func (m *Monitor) onFeedState(from, to realtime.State) {
	ctx := m.ctx()
	switch to {
	case realtime.StateConnected:
		m.log.Event(ctx, model.EventFeedConnected, "Feed connected")
		if from == realtime.StateReconnecting {
			// Updates sent while we were away are lost; resync over REST.
			go func() {
				if err := m.poller.PollOnce(ctx); err != nil && ctx.Err() == nil {
					m.log.Warn("Resync after reconnect failed", "error", err)
				}
			}()
		}
	case realtime.StateReconnecting:
		if from == realtime.StateConnected {
			m.log.Event(ctx, model.EventFeedLost, "Feed lost, reconnecting")
		}
	case realtime.StateFailed:
		m.log.Event(ctx, model.EventFeedFailed, "Feed unavailable, polling REST")
		select {
		case m.failed <- struct{}{}:
		default:
		}
	}
}
