package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/crowdpulse/crowdfeed/internal/jsonutil"
	"github.com/crowdpulse/crowdfeed/internal/model"
)

// Session is the client's view of the operator login. It lives in memory
// only.
type Session struct {
	Authenticated bool
	Provider      string
	Username      string
	Email         string
}

// User is the OAuth principal returned by GET /auth/user.
type User struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// Health is the body of GET /health.
type Health struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// Session returns the current login state.
func (c *Client) Session() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) setSession(s Session) {
	c.mu.Lock()
	c.session = s
	if s.Email != "" && c.userEmail == "" {
		c.userEmail = s.Email
	}
	c.mu.Unlock()
}

// Login authenticates with username and password. Invalid credentials yield
// an error wrapping ErrUnauthorized together with the backend's response.
func (c *Client) Login(ctx context.Context, username, password string) (*model.LoginResponse, error) {
	req := model.LoginRequest{Username: username, Password: password}

	var resp model.LoginResponse
	if err := c.post(ctx, "/auth/login", req, &resp); err != nil {
		var se *StatusError
		if errors.As(err, &se) && errors.Is(err, ErrUnauthorized) {
			return &model.LoginResponse{Success: false, Message: se.Message}, fmt.Errorf("logging in as %s: %w", username, err)
		}
		return nil, fmt.Errorf("logging in as %s: %w", username, err)
	}
	if !resp.Success {
		return &resp, fmt.Errorf("logging in as %s: %s: %w", username, resp.Message, ErrUnauthorized)
	}

	name := resp.Username
	if name == "" {
		name = username
	}
	c.setSession(Session{Authenticated: true, Provider: "local", Username: name, Email: resp.Email})
	c.log.Info("Logged in", "user", name)
	return &resp, nil
}

// GoogleAuthURL returns the URL that starts the Google OAuth flow.
func (c *Client) GoogleAuthURL(ctx context.Context) (string, error) {
	var raw jsonRaw
	if err := c.get(ctx, "/auth/google/url", nil, &raw); err != nil {
		return "", fmt.Errorf("getting google auth url: %w", err)
	}
	m, err := jsonutil.Object(raw)
	if err != nil {
		return "", fmt.Errorf("getting google auth url: %w", err)
	}
	u := jsonutil.StringFromMap(m, "url")
	if u == "" {
		return "", fmt.Errorf("getting google auth url: empty url")
	}
	return u, nil
}

// ValidateGoogle completes an OAuth login for email.
func (c *Client) ValidateGoogle(ctx context.Context, email string) (*model.LoginResponse, error) {
	if email == "" {
		return nil, fmt.Errorf("validating google login: email is required")
	}

	var resp model.LoginResponse
	body := map[string]string{"email": email}
	if err := c.post(ctx, "/auth/google/validate", body, &resp); err != nil {
		return nil, fmt.Errorf("validating google login for %s: %w", email, err)
	}
	if !resp.Success {
		return &resp, fmt.Errorf("validating google login for %s: %s: %w", email, resp.Message, ErrUnauthorized)
	}

	c.setSession(Session{Authenticated: true, Provider: "google", Username: resp.Username, Email: email})
	return &resp, nil
}

// ValidateSession checks that the backend still accepts the session.
func (c *Client) ValidateSession(ctx context.Context) (*model.LoginResponse, error) {
	var resp model.LoginResponse
	if err := c.get(ctx, "/auth/validate", nil, &resp); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			c.setSession(Session{})
		}
		return nil, fmt.Errorf("validating session: %w", err)
	}
	return &resp, nil
}

// CurrentUser returns the OAuth principal of the session.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var raw jsonRaw
	if err := c.get(ctx, "/auth/user", nil, &raw); err != nil {
		return nil, fmt.Errorf("getting current user: %w", err)
	}
	m, err := jsonutil.Object(raw)
	if err != nil {
		return nil, fmt.Errorf("getting current user: %w", err)
	}
	return &User{
		Email:   jsonutil.StringFromMap(m, "email"),
		Name:    jsonutil.StringFromMap(m, "name"),
		Picture: jsonutil.StringFromMap(m, "picture"),
	}, nil
}

// Logout ends the session. Local session state is cleared even when the
// backend call fails.
func (c *Client) Logout(ctx context.Context) error {
	defer c.setSession(Session{})
	if err := c.post(ctx, "/auth/logout", nil, nil); err != nil {
		return fmt.Errorf("logging out: %w", err)
	}
	return nil
}

// Health checks the backend's health endpoint.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var raw jsonRaw
	if err := c.get(ctx, "/health", nil, &raw); err != nil {
		return nil, fmt.Errorf("checking backend health: %w", err)
	}
	m, err := jsonutil.Object(raw)
	if err != nil {
		return nil, fmt.Errorf("checking backend health: %w", err)
	}
	return &Health{
		Status:    jsonutil.StringFromMap(m, "status"),
		Service:   jsonutil.StringFromMap(m, "service"),
		Timestamp: jsonutil.StringFromMap(m, "timestamp"),
	}, nil
}
