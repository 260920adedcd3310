package llm

import "fmt"

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role/content pair in a transcript.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func SystemText(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

func UserText(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

func AssistantText(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// Generation parameters sent with every completion request. They are fixed
// for all backends; per-model tuning lives in the configuration surface.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 2048
)

type EventType string

const (
	EventTextDelta EventType = "text_delta"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// Event is one element of a streamed completion. Text carries the incremental
// delta produced since the previous event, never the accumulated output.
type Event struct {
	Type EventType
	Text string
	Err  error
}

// Stream is a finite, non-restartable sequence of completion events.
// Recv blocks until the next event arrives or the stream is exhausted, in
// which case it returns io.EOF. Close cancels the underlying transport;
// no further events are delivered after it returns.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// BackendError is the single failure type surfaced by backend calls.
// Transport errors, authentication failures and malformed responses all
// collapse into it; retry policy belongs to the caller.
type BackendError struct {
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func backendErrorf(err error, format string, args ...any) *BackendError {
	return &BackendError{Message: fmt.Sprintf(format, args...), Err: err}
}
