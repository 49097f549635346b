package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// jsonRaw is decoded into without interpretation.
type jsonRaw = json.RawMessage

// Dashboard returns the backend's dashboard statistics.
func (c *Client) Dashboard(ctx context.Context) (json.RawMessage, error) {
	return c.analytics(ctx, "/analytics/dashboard", nil)
}

// HourlyAnalytics returns hourly analytics for an area. date is YYYY-MM-DD
// or empty for today.
func (c *Client) HourlyAnalytics(ctx context.Context, areaID int64, date string) (json.RawMessage, error) {
	var q url.Values
	if date != "" {
		q = url.Values{"date": {date}}
	}
	return c.analytics(ctx, fmt.Sprintf("/analytics/hourly/%d", areaID), q)
}

// Prediction returns the backend's occupancy prediction for an area.
func (c *Client) Prediction(ctx context.Context, areaID int64) (json.RawMessage, error) {
	return c.analytics(ctx, fmt.Sprintf("/analytics/prediction/%d", areaID), nil)
}

// Comparison returns the cross-area comparison.
func (c *Client) Comparison(ctx context.Context) (json.RawMessage, error) {
	return c.analytics(ctx, "/analytics/comparison", nil)
}

// DailySummary returns the summary for a day (YYYY-MM-DD).
func (c *Client) DailySummary(ctx context.Context, date string) (json.RawMessage, error) {
	return c.analytics(ctx, "/analytics/daily", url.Values{"date": {date}})
}

func (c *Client) analytics(ctx context.Context, path string, q url.Values) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.get(ctx, path, q, &raw); err != nil {
		return nil, fmt.Errorf("getting analytics %s: %w", path, err)
	}
	return raw, nil
}
