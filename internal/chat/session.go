// Package chat owns conversation state: sessions, the session store, and the
// turn coordinator that drives a single request/response cycle against a
// backend while exposing partial output to the caller.
package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samsaffron/chat-llm/internal/llm"
)

// titleRuneLimit caps the auto-derived session title. Longer first messages
// are truncated and marked with an ellipsis.
const titleRuneLimit = 30

// DisplayMessage is one transcript entry as handed to a presentation layer.
type DisplayMessage struct {
	Role    llm.Role `json:"role"`
	Content string   `json:"content"`
}

// Session is the transcript and metadata of one conversation. The first
// message is always the system prompt. All mutation goes through the
// session's own lock so concurrent callers cannot interleave appends.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	title    string
	model    string
	messages []llm.Message
}

func newSession(model, systemPrompt string) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		title:     "New chat " + now.Format("2006-01-02 15:04"),
		model:     model,
		messages:  []llm.Message{llm.SystemText(systemPrompt)},
	}
}

func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// Model returns the backend identifier this session targets.
func (s *Session) Model() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

func (s *Session) SetModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
}

func (s *Session) MessageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// AppendUser appends a user turn. The first user message of a session also
// derives the display title.
func (s *Session) AppendUser(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 1 {
		s.title = deriveTitle(text)
	}
	s.messages = append(s.messages, llm.UserText(text))
}

func (s *Session) AppendAssistant(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, llm.AssistantText(text))
}

// Messages returns a snapshot of the full transcript, system message
// included, for a backend request.
func (s *Session) Messages() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Transcript returns the committed conversation for display: the system
// message is dropped and the rest is reassembled into strictly alternating
// user/assistant pairs. Messages that cannot be paired (an abandoned stream
// leaves a user turn with no assistant reply) are skipped rather than
// reported; display is best-effort.
func (s *Session) Transcript() []DisplayMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []DisplayMessage
	msgs := s.messages[1:]
	for i := 0; i < len(msgs); i++ {
		if msgs[i].Role != llm.RoleUser {
			continue
		}
		if i+1 >= len(msgs) || msgs[i+1].Role != llm.RoleAssistant {
			continue
		}
		out = append(out,
			DisplayMessage{Role: llm.RoleUser, Content: msgs[i].Content},
			DisplayMessage{Role: llm.RoleAssistant, Content: msgs[i+1].Content},
		)
		i++
	}
	return out
}

func deriveTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= titleRuneLimit {
		return text
	}
	return string(runes[:titleRuneLimit]) + "..."
}
