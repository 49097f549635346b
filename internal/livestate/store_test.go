package livestate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdpulse/crowdfeed/internal/model"
)

func area(id int64, count, capacity, threshold int) model.Area {
	return model.Area{ID: id, Name: "Area", Capacity: capacity, Threshold: threshold, CurrentCount: count}
}

func TestApplyAreaRecomputesStatus(t *testing.T) {
	s := NewStore()

	tr := s.ApplyArea(area(1, 50, 100, 80), SourceFeed)
	assert.False(t, tr.Known)
	assert.False(t, tr.Changed())
	assert.Equal(t, model.StatusGreen, tr.To)

	// A stale status on the wire is ignored.
	stale := area(1, 85, 100, 80)
	stale.Status = model.StatusGreen
	tr = s.ApplyArea(stale, SourceFeed)
	assert.True(t, tr.Changed())
	assert.True(t, tr.Escalated())
	assert.Equal(t, model.StatusGreen, tr.From)
	assert.Equal(t, model.StatusYellow, tr.To)

	got, ok := s.Area(1)
	require.True(t, ok)
	assert.Equal(t, 85.0, got.OccupancyPercentage)

	tr = s.ApplyArea(area(1, 100, 100, 80), SourceFeed)
	assert.Equal(t, model.StatusRed, tr.To)

	tr = s.ApplyArea(area(1, 10, 100, 80), SourceFeed)
	assert.True(t, tr.Changed())
	assert.False(t, tr.Escalated())
}

func TestZeroCapacity(t *testing.T) {
	s := NewStore()
	s.ApplyArea(area(1, 0, 0, 0), SourceFeed)

	got, _ := s.Area(1)
	assert.Equal(t, 0.0, got.OccupancyPercentage)
	assert.Equal(t, model.StatusRed, got.Status)
	assert.Equal(t, 0, s.Summary().OccupancyRate)
}

func TestReplaceAreas(t *testing.T) {
	s := NewStore()
	s.ReplaceAreas([]model.Area{area(1, 10, 100, 80), area(2, 90, 100, 80)}, SourceREST)

	trs := s.ReplaceAreas([]model.Area{area(1, 95, 100, 80), area(3, 1, 10, 5)}, SourcePoll)
	require.Len(t, trs, 1)
	assert.Equal(t, int64(1), trs[0].AreaID)
	assert.Equal(t, model.StatusYellow, trs[0].To)

	ids := []int64{}
	for _, a := range s.Areas() {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []int64{1, 3}, ids)

	_, src := s.LastUpdate()
	assert.Equal(t, SourcePoll, src)
}

func TestApplyScan(t *testing.T) {
	s := NewStore()
	s.ApplyArea(area(1, 79, 100, 80), SourceREST)

	tr, ok := s.ApplyScan(model.ScanEvent{AreaID: 1, ScanType: model.ScanEntry, NewCount: 80}, SourceFeed)
	require.True(t, ok)
	assert.True(t, tr.Escalated())

	_, ok = s.ApplyScan(model.ScanEvent{AreaID: 9, ScanType: model.ScanEntry, NewCount: 1}, SourceFeed)
	assert.False(t, ok)

	scans := s.RecentScans()
	require.Len(t, scans, 2)
	assert.Equal(t, int64(9), scans[0].AreaID)
}

func TestScanRingIsBounded(t *testing.T) {
	s := NewStore()
	for i := range 60 {
		s.ApplyScan(model.ScanEvent{AreaID: 1, NewCount: i}, SourceFeed)
	}

	scans := s.RecentScans()
	require.Len(t, scans, 50)
	assert.Equal(t, 59, scans[0].NewCount)
	assert.Equal(t, 10, scans[49].NewCount)
}

func TestAddAlertDedupes(t *testing.T) {
	s := NewStore()

	assert.True(t, s.AddAlert(model.Alert{ID: 1, Status: model.AlertUnread}))
	assert.True(t, s.AddAlert(model.Alert{ID: 2, Status: model.AlertUnread}))
	assert.False(t, s.AddAlert(model.Alert{ID: 1, Status: model.AlertResolved}))

	alerts := s.Alerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, int64(2), alerts[0].ID)
	assert.Equal(t, model.AlertResolved, alerts[1].Status)

	active := s.ActiveAlerts()
	require.Len(t, active, 1)
	assert.Equal(t, int64(2), active[0].ID)
}

func TestAlertsAreCapped(t *testing.T) {
	s := NewStore()
	for i := range 250 {
		s.AddAlert(model.Alert{ID: int64(i)})
	}

	alerts := s.Alerts()
	require.Len(t, alerts, 200)
	assert.Equal(t, int64(249), alerts[0].ID)
}

func TestReplaceAlertsSortsNewestFirst(t *testing.T) {
	s := NewStore()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
	s.ReplaceAlerts([]model.Alert{
		{ID: 1, CreatedAt: model.LocalTime{Time: base}},
		{ID: 2, CreatedAt: model.LocalTime{Time: base.Add(time.Hour)}},
	})

	alerts := s.Alerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, int64(2), alerts[0].ID)
}

func TestSummary(t *testing.T) {
	s := NewStore()
	s.ReplaceAreas([]model.Area{
		area(1, 50, 100, 80),
		area(2, 85, 100, 80),
		area(3, 100, 100, 80),
		area(4, 0, 200, 150),
	}, SourceREST)
	s.AddAlert(model.Alert{ID: 1, Status: model.AlertUnread})
	s.AddAlert(model.Alert{ID: 2, Status: model.AlertResolved})

	sum := s.Summary()
	assert.Equal(t, 4, sum.TotalAreas)
	assert.Equal(t, 235, sum.TotalPeople)
	assert.Equal(t, 500, sum.TotalCapacity)
	assert.Equal(t, 1, sum.Warning)
	assert.Equal(t, 1, sum.Critical)
	assert.Equal(t, 47, sum.OccupancyRate)
	assert.Equal(t, map[model.AreaStatus]int{
		model.StatusGreen:  2,
		model.StatusYellow: 1,
		model.StatusRed:    1,
	}, sum.Distribution)
	assert.Equal(t, 1, sum.ActiveAlerts)
}
