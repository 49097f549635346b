// Package livestate keeps the in-memory picture of every monitored area,
// reconciled from feed updates and REST snapshots.
package livestate

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/crowdpulse/crowdfeed/internal/constants"
	"github.com/crowdpulse/crowdfeed/internal/model"
)

// Source records where the latest update came from.
type Source string

const (
	SourceNone  Source = ""
	SourceFeed  Source = "feed"
	SourcePoll  Source = "poll"
	SourceREST  Source = "rest"
	SourceRelay Source = "relay"
)

// Transition is the status change an update caused. Known is false when the
// area was not in the store before.
type Transition struct {
	AreaID int64
	Name   string
	From   model.AreaStatus
	To     model.AreaStatus
	Known  bool
}

// Changed reports whether the status actually moved.
func (t Transition) Changed() bool {
	return t.Known && t.From != t.To
}

// Escalated reports whether the area got more crowded in status terms.
func (t Transition) Escalated() bool {
	return t.Changed() && t.To.Severity() > t.From.Severity()
}

// Store is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	areas      map[int64]*model.Area
	alerts     []model.Alert
	scans      []model.ScanEvent
	lastUpdate time.Time
	lastSource Source
	now        func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		areas: make(map[int64]*model.Area),
		now:   time.Now,
	}
}

func (s *Store) touchLocked(src Source) {
	s.lastUpdate = s.now()
	s.lastSource = src
}

// ReplaceAreas swaps in a full snapshot and returns the transitions of areas
// that were already known.
func (s *Store) ReplaceAreas(areas []model.Area, src Source) []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[int64]*model.Area, len(areas))
	var transitions []Transition
	for _, a := range areas {
		a.Recompute()
		if prev, ok := s.areas[a.ID]; ok && prev.Status != a.Status {
			transitions = append(transitions, Transition{AreaID: a.ID, Name: a.Name, From: prev.Status, To: a.Status, Known: true})
		}
		next[a.ID] = &a
	}
	s.areas = next
	s.touchLocked(src)
	return transitions
}

// ApplyArea upserts a single area.
func (s *Store) ApplyArea(a model.Area, src Source) Transition {
	a.Recompute()

	s.mu.Lock()
	defer s.mu.Unlock()

	t := Transition{AreaID: a.ID, Name: a.Name, To: a.Status}
	if prev, ok := s.areas[a.ID]; ok {
		t.From, t.Known = prev.Status, true
	}
	s.areas[a.ID] = &a
	s.touchLocked(src)
	return t
}

// ApplyScan records the scan and moves the area's count to NewCount. ok is
// false when the area is unknown; the scan is still kept in the ring.
func (s *Store) ApplyScan(ev model.ScanEvent, src Source) (Transition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.scans = append(s.scans, ev)
	if over := len(s.scans) - constants.MaxStoredScans; over > 0 {
		s.scans = slices.Delete(s.scans, 0, over)
	}
	s.touchLocked(src)

	a, ok := s.areas[ev.AreaID]
	if !ok {
		return Transition{AreaID: ev.AreaID}, false
	}

	from := a.Status
	a.CurrentCount = max(ev.NewCount, 0)
	a.Recompute()
	return Transition{AreaID: a.ID, Name: a.Name, From: from, To: a.Status, Known: true}, true
}

// AddAlert stores an alert newest first. It returns false when an alert with
// the same id was already present; that entry is replaced in place.
func (s *Store) AddAlert(alert model.Alert) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := slices.IndexFunc(s.alerts, func(a model.Alert) bool { return a.ID == alert.ID }); i >= 0 {
		s.alerts[i] = alert
		return false
	}

	s.alerts = slices.Insert(s.alerts, 0, alert)
	if len(s.alerts) > constants.MaxStoredAlerts {
		s.alerts = s.alerts[:constants.MaxStoredAlerts]
	}
	return true
}

// ReplaceAlerts swaps in a REST alert list, newest first.
func (s *Store) ReplaceAlerts(alerts []model.Alert) {
	sorted := slices.Clone(alerts)
	slices.SortStableFunc(sorted, func(a, b model.Alert) int {
		return b.CreatedAt.Compare(a.CreatedAt.Time)
	})
	if len(sorted) > constants.MaxStoredAlerts {
		sorted = sorted[:constants.MaxStoredAlerts]
	}

	s.mu.Lock()
	s.alerts = sorted
	s.mu.Unlock()
}

// Area returns a copy of one area.
func (s *Store) Area(id int64) (model.Area, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.areas[id]
	if !ok {
		return model.Area{}, false
	}
	return *a, true
}

// Areas returns copies of all areas ordered by id.
func (s *Store) Areas() []model.Area {
	s.mu.RLock()
	out := make([]model.Area, 0, len(s.areas))
	for _, a := range s.areas {
		out = append(out, *a)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.Area) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Alerts returns the stored alerts, newest first.
func (s *Store) Alerts() []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.alerts)
}

// ActiveAlerts returns unresolved alerts, newest first.
func (s *Store) ActiveAlerts() []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Alert
	for _, a := range s.alerts {
		if a.Active() {
			out = append(out, a)
		}
	}
	return out
}

// RecentScans returns the scan ring, newest first.
func (s *Store) RecentScans() []model.ScanEvent {
	s.mu.RLock()
	out := slices.Clone(s.scans)
	s.mu.RUnlock()

	slices.Reverse(out)
	return out
}

// LastUpdate returns when and from where the store last changed.
func (s *Store) LastUpdate() (time.Time, Source) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate, s.lastSource
}
