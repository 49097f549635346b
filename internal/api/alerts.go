package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/crowdpulse/crowdfeed/internal/constants"
	"github.com/crowdpulse/crowdfeed/internal/jsonutil"
	"github.com/crowdpulse/crowdfeed/internal/model"
)

// AlertFilter narrows ListAlerts. The backend applies at most one filter, in
// the order area, status, type, date range.
type AlertFilter struct {
	Status    model.AlertStatus
	Type      model.AlertType
	AreaID    int64
	DateRange string
}

func (f AlertFilter) query() url.Values {
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.Type != "" {
		q.Set("type", string(f.Type))
	}
	if f.AreaID > 0 {
		q.Set("areaId", strconv.FormatInt(f.AreaID, 10))
	}
	dateRange := f.DateRange
	if dateRange == "" {
		dateRange = constants.DefaultAlertDateRange
	}
	q.Set("dateRange", dateRange)
	return q
}

// ListAlerts returns alerts matching the filter.
func (c *Client) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	var alerts []model.Alert
	if err := c.get(ctx, "/alerts", filter.query(), &alerts); err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	return alerts, nil
}

// ActiveAlerts returns unresolved alerts.
func (c *Client) ActiveAlerts(ctx context.Context) ([]model.Alert, error) {
	var alerts []model.Alert
	if err := c.get(ctx, "/alerts/active", nil, &alerts); err != nil {
		return nil, fmt.Errorf("listing active alerts: %w", err)
	}
	return alerts, nil
}

// UnreadAlertCount returns the number of unread alerts.
func (c *Client) UnreadAlertCount(ctx context.Context) (int64, error) {
	var raw jsonRaw
	if err := c.get(ctx, "/alerts/unread-count", nil, &raw); err != nil {
		return 0, fmt.Errorf("getting unread alert count: %w", err)
	}
	m, err := jsonutil.Object(raw)
	if err != nil {
		return 0, fmt.Errorf("getting unread alert count: %w", err)
	}
	return jsonutil.Int64FromMap(m, "count"), nil
}

// MarkAlertRead marks an alert as read.
func (c *Client) MarkAlertRead(ctx context.Context, id int64) (*model.Alert, error) {
	return c.updateAlert(ctx, id, "read")
}

// ResolveAlert marks an alert as resolved.
func (c *Client) ResolveAlert(ctx context.Context, id int64) (*model.Alert, error) {
	return c.updateAlert(ctx, id, "resolve")
}

func (c *Client) updateAlert(ctx context.Context, id int64, action string) (*model.Alert, error) {
	var alert model.Alert
	if err := c.put(ctx, fmt.Sprintf("/alerts/%d/%s", id, action), nil, &alert); err != nil {
		return nil, fmt.Errorf("alert %d %s: %w", id, action, err)
	}
	return &alert, nil
}

// MarkAllAlertsRead marks every alert as read.
func (c *Client) MarkAllAlertsRead(ctx context.Context) error {
	if err := c.put(ctx, "/alerts/mark-all-read", nil, nil); err != nil {
		return fmt.Errorf("marking all alerts read: %w", err)
	}
	return nil
}
