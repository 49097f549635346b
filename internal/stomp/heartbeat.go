package stomp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HeartBeat is the pair carried by the heart-beat header: the smallest
// interval at which the sender can emit heart-beats, and the interval at
// which it would like to receive them. Zero means "cannot" / "do not want".
type HeartBeat struct {
	Send    time.Duration
	Receive time.Duration
}

// ParseHeartBeat parses a "cx,cy" header value in milliseconds. An empty
// value means heart-beating is disabled.
func ParseHeartBeat(s string) (HeartBeat, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return HeartBeat{}, nil
	}

	sendStr, recvStr, ok := strings.Cut(s, ",")
	if !ok {
		return HeartBeat{}, fmt.Errorf("invalid heart-beat %q", s)
	}
	send, err := strconv.ParseInt(strings.TrimSpace(sendStr), 10, 64)
	if err != nil || send < 0 {
		return HeartBeat{}, fmt.Errorf("invalid heart-beat send value %q", sendStr)
	}
	recv, err := strconv.ParseInt(strings.TrimSpace(recvStr), 10, 64)
	if err != nil || recv < 0 {
		return HeartBeat{}, fmt.Errorf("invalid heart-beat receive value %q", recvStr)
	}

	return HeartBeat{
		Send:    time.Duration(send) * time.Millisecond,
		Receive: time.Duration(recv) * time.Millisecond,
	}, nil
}

// String formats the pair as a heart-beat header value.
func (h HeartBeat) String() string {
	return strconv.FormatInt(h.Send.Milliseconds(), 10) + "," +
		strconv.FormatInt(h.Receive.Milliseconds(), 10)
}

// Negotiate computes the effective intervals from the client's offer and
// the server's CONNECTED reply. send is how often the client must emit
// heart-beats, expect is how often it should hear from the server. A zero
// result disables that direction.
func Negotiate(client, server HeartBeat) (send, expect time.Duration) {
	if client.Send > 0 && server.Receive > 0 {
		send = max(client.Send, server.Receive)
	}
	if client.Receive > 0 && server.Send > 0 {
		expect = max(client.Receive, server.Send)
	}
	return send, expect
}
