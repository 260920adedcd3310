package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/samsaffron/chat-llm/internal/config"
	"github.com/samsaffron/chat-llm/internal/llm"
)

// BackendFactory builds the backend client for a resolved model. Tests swap
// in a mock; the default wires the OpenAI-compatible client.
type BackendFactory func(config.ModelConfig) llm.Backend

// TurnRequest is one user submission: the text, the target model identifier,
// and whether the response should be streamed.
type TurnRequest struct {
	Text   string
	Model  string
	Stream bool
}

// TurnResult is one observable state of a turn. Input is always empty,
// signalling to the presentation layer that the submitted text was consumed.
// During streaming, Delta carries the increment since the previous result and
// Transcript includes the in-progress assistant message.
type TurnResult struct {
	Input      string           `json:"input"`
	Delta      string           `json:"delta,omitempty"`
	Transcript []DisplayMessage `json:"transcript"`
}

// TurnReply is the tagged outcome of Submit: exactly one of Result or Stream
// is set. Callers branch on which field is non-nil, never on dynamic types.
type TurnReply struct {
	Result *TurnResult
	Stream *TurnStream
}

// Coordinator drives a turn end-to-end: append the user message, resolve the
// model, invoke the backend, and commit the assistant reply to the session.
type Coordinator struct {
	store    *Store
	registry *config.Config
	backends BackendFactory
}

func NewCoordinator(store *Store, registry *config.Config, backends BackendFactory) *Coordinator {
	if backends == nil {
		backends = func(mc config.ModelConfig) llm.Backend {
			return llm.NewClient(mc.BaseURL, mc.APIKey, mc.Model)
		}
	}
	return &Coordinator{store: store, registry: registry, backends: backends}
}

// Submit runs one turn against the current session. The user message is
// committed before the backend is invoked, so it survives any failure that
// follows. Resolution and credential failures are committed to the
// transcript as an assistant error turn and returned as a single Result,
// even when streaming was requested; the conversation stays usable.
func (c *Coordinator) Submit(ctx context.Context, req TurnRequest) (TurnReply, error) {
	sess := c.store.Current()
	sess.AppendUser(req.Text)

	model := req.Model
	if model == "" {
		model = sess.Model()
	} else {
		sess.SetModel(model)
	}

	mc, err := c.registry.Resolve(model)
	if err == nil {
		err = mc.Credential()
	}
	if err != nil {
		return c.failTurn(sess, err), nil
	}

	backend := c.backends(mc)
	if !req.Stream {
		text, err := backend.Complete(ctx, sess.Messages())
		if err != nil {
			return c.failTurn(sess, err), nil
		}
		sess.AppendAssistant(text)
		return TurnReply{Result: &TurnResult{Transcript: sess.Transcript()}}, nil
	}

	stream, err := backend.Stream(ctx, sess.Messages())
	if err != nil {
		return c.failTurn(sess, err), nil
	}
	return TurnReply{Stream: newTurnStream(sess, req.Text, stream)}, nil
}

// failTurn commits a user-visible error message as the assistant turn so the
// failure is part of the transcript instead of silently dropped.
func (c *Coordinator) failTurn(sess *Session, err error) TurnReply {
	sess.AppendAssistant(fmt.Sprintf("Error: %v", err))
	return TurnReply{Result: &TurnResult{Transcript: sess.Transcript()}}
}

// TurnStream republishes a streamed turn one delta at a time. Each Recv
// pulls the next delta, grows the accumulator, and returns the transcript
// with the in-progress assistant message; this is the suspension point where
// control returns to the caller between increments. On exhaustion the
// accumulated text is committed as the session's permanent assistant message
// and Recv returns io.EOF. A mid-stream backend failure commits whatever was
// accumulated; Close before exhaustion commits nothing.
type TurnStream struct {
	sess      *Session
	stream    llm.Stream
	base      []DisplayMessage
	userText  string
	acc       strings.Builder
	finalized bool
}

func newTurnStream(sess *Session, userText string, stream llm.Stream) *TurnStream {
	// Transcript pairing drops the just-appended user message until its
	// assistant reply is committed, so the committed pairs captured here are
	// exactly the turns preceding this one.
	return &TurnStream{
		sess:     sess,
		stream:   stream,
		base:     sess.Transcript(),
		userText: userText,
	}
}

func (ts *TurnStream) Recv() (TurnResult, error) {
	if ts.finalized {
		return TurnResult{}, io.EOF
	}
	for {
		ev, err := ts.stream.Recv()
		if err == io.EOF {
			ts.finalize()
			return TurnResult{}, io.EOF
		}
		if err != nil {
			// The caller abandoning the turn (Close, or cancelling its
			// context) commits nothing; any other failure keeps the partial
			// output.
			if !errors.Is(err, context.Canceled) {
				ts.finalize()
			}
			return TurnResult{}, err
		}
		switch ev.Type {
		case llm.EventTextDelta:
			ts.acc.WriteString(ev.Text)
			return ts.result(ev.Text), nil
		case llm.EventDone:
			ts.finalize()
			return TurnResult{}, io.EOF
		case llm.EventError:
			// A producer reporting its own cancellation is the caller
			// abandoning the turn, not a backend failure.
			if errors.Is(ev.Err, context.Canceled) {
				return TurnResult{}, ev.Err
			}
			ts.finalize()
			return TurnResult{}, ev.Err
		}
	}
}

// Close cancels the underlying transport. Nothing is committed: the session
// is left with the user message appended and no matching assistant turn,
// which later turns and display pairing tolerate.
func (ts *TurnStream) Close() error {
	return ts.stream.Close()
}

// Text returns the accumulated assistant output so far.
func (ts *TurnStream) Text() string {
	return ts.acc.String()
}

func (ts *TurnStream) finalize() {
	if ts.finalized {
		return
	}
	ts.finalized = true
	// An empty accumulator still commits an empty assistant message so the
	// transcript keeps alternating roles.
	ts.sess.AppendAssistant(ts.acc.String())
	_ = ts.stream.Close()
}

func (ts *TurnStream) result(delta string) TurnResult {
	transcript := make([]DisplayMessage, 0, len(ts.base)+2)
	transcript = append(transcript, ts.base...)
	transcript = append(transcript,
		DisplayMessage{Role: llm.RoleUser, Content: ts.userText},
		DisplayMessage{Role: llm.RoleAssistant, Content: ts.acc.String()},
	)
	return TurnResult{Delta: delta, Transcript: transcript}
}
