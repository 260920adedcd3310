package llm

import (
	"context"
	"sync"
	"time"
)

// MockTurn is one scripted response from the mock backend.
type MockTurn struct {
	Text   string        // full text for Complete, or emitted as Deltas when unset
	Deltas []string      // exact delta sequence to stream (overrides chunking)
	Delay  time.Duration // optional delay before responding
	Error  error         // fail the turn; a stream emits its Deltas first
}

// MockBackend is a scripted Backend for tests. It replays configured turns
// in order and records every request it receives.
type MockBackend struct {
	turns     []MockTurn
	turnIndex int
	Requests  [][]Message
	mu        sync.Mutex
}

func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// AddTurn appends a scripted turn and returns the backend for chaining.
func (m *MockBackend) AddTurn(t MockTurn) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, t)
	return m
}

func (m *MockBackend) AddTextResponse(text string) *MockBackend {
	return m.AddTurn(MockTurn{Text: text})
}

func (m *MockBackend) AddDeltas(deltas ...string) *MockBackend {
	return m.AddTurn(MockTurn{Deltas: deltas})
}

func (m *MockBackend) AddError(err error) *MockBackend {
	return m.AddTurn(MockTurn{Error: err})
}

func (m *MockBackend) next(messages []Message) (MockTurn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := make([]Message, len(messages))
	copy(snapshot, messages)
	m.Requests = append(m.Requests, snapshot)

	if m.turnIndex >= len(m.turns) {
		return MockTurn{}, backendErrorf(nil, "mock backend: no more turns configured (turn %d of %d)", m.turnIndex, len(m.turns))
	}
	turn := m.turns[m.turnIndex]
	m.turnIndex++
	return turn, nil
}

func (m *MockBackend) Complete(ctx context.Context, messages []Message) (string, error) {
	turn, err := m.next(messages)
	if err != nil {
		return "", err
	}
	if turn.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(turn.Delay):
		}
	}
	if turn.Error != nil {
		return "", turn.Error
	}
	if len(turn.Deltas) > 0 {
		text := ""
		for _, d := range turn.Deltas {
			text += d
		}
		return text, nil
	}
	return turn.Text, nil
}

func (m *MockBackend) Stream(ctx context.Context, messages []Message) (Stream, error) {
	turn, err := m.next(messages)
	if err != nil {
		return nil, err
	}
	return newEventStream(ctx, func(ctx context.Context, ch chan<- Event) error {
		if turn.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(turn.Delay):
			}
		}
		deltas := turn.Deltas
		if len(deltas) == 0 && turn.Text != "" {
			deltas = chunkText(turn.Text, 10)
		}
		for _, delta := range deltas {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ch <- Event{Type: EventTextDelta, Text: delta}:
			}
		}
		// An error turn emits its deltas first, simulating a connection that
		// drops mid-stream.
		if turn.Error != nil {
			return turn.Error
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch <- Event{Type: EventDone}:
		}
		return nil
	}), nil
}

// chunkText splits text into chunks of roughly chunkSize bytes, preferring
// to break after a space.
func chunkText(text string, chunkSize int) []string {
	if len(text) == 0 {
		return nil
	}
	var chunks []string
	for len(text) > 0 {
		if len(text) <= chunkSize {
			chunks = append(chunks, text)
			break
		}
		breakPoint := chunkSize
		for i := chunkSize; i > chunkSize/2; i-- {
			if text[i] == ' ' {
				breakPoint = i + 1
				break
			}
		}
		chunks = append(chunks, text[:breakPoint])
		text = text[breakPoint:]
	}
	return chunks
}
