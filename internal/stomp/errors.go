package stomp

import "fmt"

// ServerError is the content of an ERROR frame sent by the broker.
type ServerError struct {
	Message string
	Body    string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("stomp server error: %s", e.Message)
	}
	return fmt.Sprintf("stomp server error: %s: %s", e.Message, e.Body)
}

// ServerErrorFromFrame converts an ERROR frame into a *ServerError.
func ServerErrorFromFrame(f *Frame) *ServerError {
	msg := f.Header(HdrMessage)
	if msg == "" {
		msg = "unspecified"
	}
	return &ServerError{Message: msg, Body: string(f.Body)}
}
