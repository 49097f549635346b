// Package stomp implements the part of STOMP 1.2 that the occupancy feed
// speaks: frame encoding and decoding, header value escaping, and heart-beat
// negotiation. It is transport agnostic; callers hand it whole WebSocket or
// SockJS payloads.
package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// STOMP commands.
const (
	CmdConnect     = "CONNECT"
	CmdStomp       = "STOMP"
	CmdConnected   = "CONNECTED"
	CmdSend        = "SEND"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdMessage     = "MESSAGE"
	CmdReceipt     = "RECEIPT"
	CmdError       = "ERROR"
	CmdDisconnect  = "DISCONNECT"
)

// Well-known header names.
const (
	HdrAcceptVersion = "accept-version"
	HdrVersion       = "version"
	HdrHost          = "host"
	HdrLogin         = "login"
	HdrPasscode      = "passcode"
	HdrHeartBeat     = "heart-beat"
	HdrDestination   = "destination"
	HdrID            = "id"
	HdrSubscription  = "subscription"
	HdrMessageID     = "message-id"
	HdrAck           = "ack"
	HdrReceipt       = "receipt"
	HdrReceiptID     = "receipt-id"
	HdrContentType   = "content-type"
	HdrContentLength = "content-length"
	HdrMessage       = "message"
)

// ErrMalformedFrame is wrapped by every decoding failure.
var ErrMalformedFrame = errors.New("malformed stomp frame")

// Frame is a single STOMP frame. A Frame with an empty Command is a
// heart-beat (a bare EOL on the wire).
type Frame struct {
	Command string
	Headers map[string]string
	Body    []byte
}

// NewFrame builds a frame from alternating header keys and values.
func NewFrame(command string, kv ...string) *Frame {
	f := &Frame{Command: command, Headers: make(map[string]string, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Headers[kv[i]] = kv[i+1]
	}
	return f
}

// Heartbeat returns a heart-beat frame.
func Heartbeat() *Frame {
	return &Frame{}
}

// IsHeartbeat reports whether f is a heart-beat.
func (f *Frame) IsHeartbeat() bool {
	return f.Command == ""
}

// Header returns the value of a header, or "" when absent.
func (f *Frame) Header(key string) string {
	if f.Headers == nil {
		return ""
	}
	return f.Headers[key]
}

// Encode serializes the frame. Headers are written in sorted order so the
// output is deterministic; content-length is always derived from Body.
func (f *Frame) Encode() []byte {
	if f.IsHeartbeat() {
		return []byte{'\n'}
	}

	escape := escapesHeaders(f.Command)
	keys := make([]string, 0, len(f.Headers))
	for k := range f.Headers {
		if k == HdrContentLength {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b bytes.Buffer
	b.Grow(len(f.Command) + len(f.Body) + 32*len(keys) + 4)
	b.WriteString(f.Command)
	b.WriteByte('\n')
	for _, k := range keys {
		v := f.Headers[k]
		if escape {
			k, v = headerEscaper.Replace(k), headerEscaper.Replace(v)
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(v)
		b.WriteByte('\n')
	}
	if len(f.Body) > 0 {
		b.WriteString(HdrContentLength)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(len(f.Body)))
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(0)
	return b.Bytes()
}

// String returns the encoded frame without the trailing NUL, for logs.
func (f *Frame) String() string {
	if f.IsHeartbeat() {
		return "<heartbeat>"
	}
	return string(bytes.TrimSuffix(f.Encode(), []byte{0}))
}

// Decode parses every frame in data. Bare EOLs between frames decode as
// heart-beats. On error the frames decoded so far are returned together with
// an error wrapping ErrMalformedFrame.
func Decode(data []byte) ([]*Frame, error) {
	var frames []*Frame
	for len(data) > 0 {
		switch {
		case data[0] == '\n':
			frames = append(frames, Heartbeat())
			data = data[1:]
			continue
		case len(data) > 1 && data[0] == '\r' && data[1] == '\n':
			frames = append(frames, Heartbeat())
			data = data[2:]
			continue
		}

		f, rest, err := decodeOne(data)
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
		data = rest
	}
	return frames, nil
}

func decodeOne(data []byte) (*Frame, []byte, error) {
	line, pos, ok := nextLine(data, 0)
	if !ok {
		return nil, nil, malformed("missing command terminator")
	}
	command := string(line)
	if command == "" {
		return nil, nil, malformed("empty command")
	}

	escaped := escapesHeaders(command)
	headers := make(map[string]string)
	for {
		line, pos, ok = nextLine(data, pos)
		if !ok {
			return nil, nil, malformed("unterminated headers in %s frame", command)
		}
		if len(line) == 0 {
			break
		}

		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return nil, nil, malformed("bad header line %q", line)
		}
		key, value := string(line[:colon]), string(line[colon+1:])
		if escaped {
			var err error
			if key, err = unescape(key); err != nil {
				return nil, nil, err
			}
			if value, err = unescape(value); err != nil {
				return nil, nil, err
			}
		}
		// Repeated headers: the first occurrence wins.
		if _, dup := headers[key]; !dup {
			headers[key] = value
		}
	}

	var body, rest []byte
	if cl, ok := headers[HdrContentLength]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil || n < 0 {
			return nil, nil, malformed("bad content-length %q", cl)
		}
		if pos+n >= len(data) || data[pos+n] != 0 {
			return nil, nil, malformed("body shorter than content-length %d", n)
		}
		body = data[pos : pos+n]
		rest = data[pos+n+1:]
	} else {
		end := bytes.IndexByte(data[pos:], 0)
		if end < 0 {
			return nil, nil, malformed("missing NUL terminator in %s frame", command)
		}
		body = data[pos : pos+end]
		rest = data[pos+end+1:]
	}

	f := &Frame{Command: command, Headers: headers}
	if len(body) > 0 {
		f.Body = append([]byte(nil), body...)
	}
	return f, rest, nil
}

// nextLine returns the line starting at pos without its EOL (LF or CRLF)
// and the offset just past it.
func nextLine(data []byte, pos int) ([]byte, int, bool) {
	nl := bytes.IndexByte(data[pos:], '\n')
	if nl < 0 {
		return nil, 0, false
	}
	line := data[pos : pos+nl]
	line = bytes.TrimSuffix(line, []byte{'\r'})
	return line, pos + nl + 1, true
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedFrame, fmt.Sprintf(format, args...))
}

// CONNECT and CONNECTED frames carry raw header values.
func escapesHeaders(command string) bool {
	return command != CmdConnect && command != CmdConnected && command != CmdStomp
}

var headerEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\r", `\r`,
	"\n", `\n`,
	":", `\c`,
)

func unescape(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i == len(s) {
			return "", malformed("dangling escape in %q", s)
		}
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'c':
			b.WriteByte(':')
		default:
			return "", malformed("undefined escape \\%c in %q", s[i], s)
		}
	}
	return b.String(), nil
}
