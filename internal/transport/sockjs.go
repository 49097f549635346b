package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/crowdpulse/crowdfeed/internal/stomp"
)

// CloseError is a SockJS close frame, c[code,"reason"].
type CloseError struct {
	Code   int
	Reason string
}

// Error implements the error interface.
func (e *CloseError) Error() string {
	return fmt.Sprintf("sockjs session closed: %d %s", e.Code, e.Reason)
}

// websocketURL rewrites http(s) endpoints to ws(s).
func websocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint %q: %w", raw, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint %q has no host", raw)
	}
	return u.String(), nil
}

// sockJSURL builds <endpoint>/<server>/<session>/websocket.
func sockJSURL(endpoint string, server int, session string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint %q: %w", endpoint, err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + fmt.Sprintf("/%03d/%s/websocket", server%1000, session)
	return u.String(), nil
}

func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func encodeSockJS(frame []byte) ([]byte, error) {
	data, err := json.Marshal([]string{string(frame)})
	if err != nil {
		return nil, fmt.Errorf("encoding sockjs message: %w", err)
	}
	return data, nil
}

// decodeSockJS unpacks one SockJS server message into STOMP frames.
func decodeSockJS(data []byte) ([]*stomp.Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty sockjs message", stomp.ErrMalformedFrame)
	}

	switch data[0] {
	case 'o':
		return nil, nil
	case 'h':
		return []*stomp.Frame{stomp.Heartbeat()}, nil
	case 'a':
		var payloads []string
		if err := json.Unmarshal(data[1:], &payloads); err != nil {
			return nil, fmt.Errorf("%w: sockjs array: %v", stomp.ErrMalformedFrame, err)
		}
		// Elements are delimited independently; a bad one costs only itself.
		var (
			frames []*stomp.Frame
			errs   []error
		)
		for _, p := range payloads {
			decoded, err := stomp.Decode([]byte(p))
			frames = append(frames, decoded...)
			if err != nil {
				errs = append(errs, err)
			}
		}
		return frames, errors.Join(errs...)
	case 'c':
		var payload []json.RawMessage
		if err := json.Unmarshal(data[1:], &payload); err != nil || len(payload) < 2 {
			return nil, &CloseError{Code: 0, Reason: "unparseable close frame"}
		}
		ce := &CloseError{}
		json.Unmarshal(payload[0], &ce.Code)   //nolint:errcheck
		json.Unmarshal(payload[1], &ce.Reason) //nolint:errcheck
		return nil, ce
	default:
		return nil, fmt.Errorf("%w: unknown sockjs frame type %q", stomp.ErrMalformedFrame, data[0])
	}
}
