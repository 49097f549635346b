package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/crowdpulse/crowdfeed/internal/constants"
	"github.com/crowdpulse/crowdfeed/internal/model"
)

// ProcessScan records an entry or exit scan and returns the updated count.
func (c *Client) ProcessScan(ctx context.Context, req model.ScanRequest) (*model.ScanResponse, error) {
	if !req.ScanType.Valid() {
		return nil, fmt.Errorf("processing scan: invalid scan type %q", req.ScanType)
	}
	var resp model.ScanResponse
	if err := c.post(ctx, "/scans", req, &resp); err != nil {
		return nil, fmt.Errorf("processing %s scan for area %d: %w", req.ScanType, req.AreaID, err)
	}
	return &resp, nil
}

// RecentScans returns the latest scans across all areas. limit <= 0 uses
// the dashboard's default of 50.
func (c *Client) RecentScans(ctx context.Context, limit int) ([]model.ScanResponse, error) {
	if limit <= 0 {
		limit = constants.DefaultRecentScansLimit
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}

	var scans []model.ScanResponse
	if err := c.get(ctx, "/scans/recent", q, &scans); err != nil {
		return nil, fmt.Errorf("listing recent scans: %w", err)
	}
	return scans, nil
}

// ScansByArea returns the scans of one area.
func (c *Client) ScansByArea(ctx context.Context, areaID int64) ([]model.ScanResponse, error) {
	var scans []model.ScanResponse
	if err := c.get(ctx, fmt.Sprintf("/scans/area/%d", areaID), nil, &scans); err != nil {
		return nil, fmt.Errorf("listing scans for area %d: %w", areaID, err)
	}
	return scans, nil
}

// TodayScans returns today's scans.
func (c *Client) TodayScans(ctx context.Context) ([]model.ScanResponse, error) {
	var scans []model.ScanResponse
	if err := c.get(ctx, "/scans/today", nil, &scans); err != nil {
		return nil, fmt.Errorf("listing today's scans: %w", err)
	}
	return scans, nil
}

// HourlyTrend returns hourly entry/exit buckets for an area.
func (c *Client) HourlyTrend(ctx context.Context, areaID int64) ([]model.HourlyTrend, error) {
	var trend []model.HourlyTrend
	if err := c.get(ctx, fmt.Sprintf("/scans/area/%d/trend", areaID), nil, &trend); err != nil {
		return nil, fmt.Errorf("getting hourly trend for area %d: %w", areaID, err)
	}
	return trend, nil
}
