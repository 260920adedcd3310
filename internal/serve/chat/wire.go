package chat

import (
	chatcore "github.com/samsaffron/chat-llm/internal/chat"
)

// WireEvent is the JSON envelope sent server->client.
type WireEvent struct {
	Type string `json:"type"`

	// session_ready
	SessionID string                    `json:"session_id,omitempty"`
	Title     string                    `json:"title,omitempty"`
	Model     string                    `json:"model,omitempty"`
	History   []chatcore.DisplayMessage `json:"history,omitempty"`

	// text_delta / message_done
	Text string `json:"text,omitempty"`

	// error
	Message string `json:"message,omitempty"`

	// session_list
	Sessions []chatcore.SessionInfo `json:"sessions,omitempty"`
}

// ClientEvent is the JSON envelope sent client->server.
type ClientEvent struct {
	Type string `json:"type"`

	// message
	Text     string `json:"text,omitempty"`
	Model    string `json:"model,omitempty"`
	Buffered bool   `json:"buffered,omitempty"`

	// switch / delete
	SessionID string `json:"session_id,omitempty"`
}
