package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/crowdpulse/crowdfeed/internal/model"
)

// ListAreas returns every area with its current count and status.
func (c *Client) ListAreas(ctx context.Context) ([]model.Area, error) {
	var areas []model.Area
	if err := c.get(ctx, "/areas", nil, &areas); err != nil {
		return nil, fmt.Errorf("listing areas: %w", err)
	}
	return areas, nil
}

// GetArea returns a single area. A missing area yields an error wrapping
// ErrNotFound.
func (c *Client) GetArea(ctx context.Context, id int64) (*model.Area, error) {
	var area model.Area
	if err := c.get(ctx, fmt.Sprintf("/areas/%d", id), nil, &area); err != nil {
		return nil, fmt.Errorf("getting area %d: %w", id, err)
	}
	return &area, nil
}

// CreateArea creates an area.
func (c *Client) CreateArea(ctx context.Context, req model.AreaRequest) (*model.Area, error) {
	var area model.Area
	if err := c.post(ctx, "/areas", req, &area); err != nil {
		return nil, fmt.Errorf("creating area %q: %w", req.Name, err)
	}
	return &area, nil
}

// UpdateArea replaces an area's name, capacity and threshold.
func (c *Client) UpdateArea(ctx context.Context, id int64, req model.AreaRequest) (*model.Area, error) {
	var area model.Area
	if err := c.put(ctx, fmt.Sprintf("/areas/%d", id), req, &area); err != nil {
		return nil, fmt.Errorf("updating area %d: %w", id, err)
	}
	return &area, nil
}

// DeleteArea deletes an area.
func (c *Client) DeleteArea(ctx context.Context, id int64) error {
	if err := c.delete(ctx, fmt.Sprintf("/areas/%d", id)); err != nil {
		return fmt.Errorf("deleting area %d: %w", id, err)
	}
	return nil
}

// ResetArea sets an area's count back to zero.
func (c *Client) ResetArea(ctx context.Context, id int64) (*model.Area, error) {
	var area model.Area
	if err := c.post(ctx, fmt.Sprintf("/areas/%d/reset", id), nil, &area); err != nil {
		return nil, fmt.Errorf("resetting area %d: %w", id, err)
	}
	return &area, nil
}

// AreasNeedingAttention returns the areas in YELLOW or RED.
func (c *Client) AreasNeedingAttention(ctx context.Context) ([]model.Area, error) {
	var areas []model.Area
	if err := c.get(ctx, "/areas/attention", nil, &areas); err != nil {
		return nil, fmt.Errorf("listing areas needing attention: %w", err)
	}
	return areas, nil
}

// AreaQRCode returns the PNG image of an area's entry or exit QR code.
func (c *Client) AreaQRCode(ctx context.Context, id int64, scanType model.ScanType) ([]byte, error) {
	if !scanType.Valid() {
		return nil, fmt.Errorf("qr code for area %d: invalid scan type %q", id, scanType)
	}

	path := fmt.Sprintf("/areas/%d/qrcode/%s", id, strings.ToLower(string(scanType)))
	body, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("getting qr code for area %d: %w", id, err)
	}

	png, err := decodeQRCode(body)
	if err != nil {
		return nil, fmt.Errorf("qr code for area %d: %w", id, err)
	}
	return png, nil
}

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// decodeQRCode accepts a raw PNG, a base64 string, a data URL, or any of
// those as a JSON string.
func decodeQRCode(body []byte) ([]byte, error) {
	if bytes.HasPrefix(body, pngMagic) {
		return body, nil
	}

	s := strings.TrimSpace(string(body))
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal([]byte(s), &s); err != nil {
			return nil, fmt.Errorf("decoding qr code string: %w", err)
		}
	}
	if _, data, ok := strings.Cut(s, ";base64,"); ok {
		s = data
	}

	png, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding qr code base64: %w", err)
	}
	if !bytes.HasPrefix(png, pngMagic) {
		return nil, fmt.Errorf("qr code is not a png image")
	}
	return png, nil
}
