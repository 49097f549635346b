package api

import (
	"context"
	"fmt"

	"github.com/crowdpulse/crowdfeed/internal/model"
)

// ListEvents returns the operator's events.
func (c *Client) ListEvents(ctx context.Context) ([]model.CrowdEvent, error) {
	return c.listEvents(ctx, "/events")
}

// LiveEvents returns events currently in progress.
func (c *Client) LiveEvents(ctx context.Context) ([]model.CrowdEvent, error) {
	return c.listEvents(ctx, "/events/live")
}

// UpcomingEvents returns events that have not started.
func (c *Client) UpcomingEvents(ctx context.Context) ([]model.CrowdEvent, error) {
	return c.listEvents(ctx, "/events/upcoming")
}

// CompletedEvents returns finished events.
func (c *Client) CompletedEvents(ctx context.Context) ([]model.CrowdEvent, error) {
	return c.listEvents(ctx, "/events/completed")
}

func (c *Client) listEvents(ctx context.Context, path string) ([]model.CrowdEvent, error) {
	var events []model.CrowdEvent
	if err := c.get(ctx, path, nil, &events); err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return events, nil
}

// GroupedEvents returns events split into live, upcoming and completed.
func (c *Client) GroupedEvents(ctx context.Context) (*model.GroupedEvents, error) {
	var grouped model.GroupedEvents
	if err := c.get(ctx, "/events/grouped", nil, &grouped); err != nil {
		return nil, fmt.Errorf("listing grouped events: %w", err)
	}
	return &grouped, nil
}

// GetEvent returns one of the operator's events with its areas.
func (c *Client) GetEvent(ctx context.Context, id int64) (*model.CrowdEvent, error) {
	return c.getEvent(ctx, fmt.Sprintf("/events/%d", id))
}

// GetPublicEvent returns an event through the unauthenticated view used by
// scan pages.
func (c *Client) GetPublicEvent(ctx context.Context, id int64) (*model.CrowdEvent, error) {
	return c.getEvent(ctx, fmt.Sprintf("/events/public/%d", id))
}

func (c *Client) getEvent(ctx context.Context, path string) (*model.CrowdEvent, error) {
	var ev model.CrowdEvent
	if err := c.get(ctx, path, nil, &ev); err != nil {
		return nil, fmt.Errorf("getting event: %w", err)
	}
	return &ev, nil
}

// CreateEvent creates an event together with its areas.
func (c *Client) CreateEvent(ctx context.Context, req model.EventRequest) (*model.CrowdEvent, error) {
	var ev model.CrowdEvent
	if err := c.post(ctx, "/events", req, &ev); err != nil {
		return nil, fmt.Errorf("creating event %q: %w", req.Name, err)
	}
	return &ev, nil
}

// UpdateEvent replaces an event.
func (c *Client) UpdateEvent(ctx context.Context, id int64, req model.EventRequest) (*model.CrowdEvent, error) {
	var ev model.CrowdEvent
	if err := c.put(ctx, fmt.Sprintf("/events/%d", id), req, &ev); err != nil {
		return nil, fmt.Errorf("updating event %d: %w", id, err)
	}
	return &ev, nil
}

// DeleteEvent deletes an event and its areas.
func (c *Client) DeleteEvent(ctx context.Context, id int64) error {
	if err := c.delete(ctx, fmt.Sprintf("/events/%d", id)); err != nil {
		return fmt.Errorf("deleting event %d: %w", id, err)
	}
	return nil
}
