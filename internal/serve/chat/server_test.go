package chat

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	chatcore "github.com/samsaffron/chat-llm/internal/chat"
	"github.com/samsaffron/chat-llm/internal/config"
	"github.com/samsaffron/chat-llm/internal/llm"
)

func newTestServer(t *testing.T, backend llm.Backend, token string) (*httptest.Server, *chatcore.Store) {
	t.Helper()
	store := chatcore.NewStore("DeepSeek", "You are a helpful assistant.")
	registry := &config.Config{
		DefaultModel: "DeepSeek",
		Models: map[string]config.ModelConfig{
			"DeepSeek": {APIKey: "sk-test", BaseURL: "https://api.deepseek.com", Model: "deepseek-chat"},
		},
	}
	coord := chatcore.NewCoordinator(store, registry, func(config.ModelConfig) llm.Backend {
		return backend
	})
	srv := NewServer(store, coord, config.ServeConfig{Token: token})
	ts := httptest.NewServer(srv.HTTPHandler())
	t.Cleanup(ts.Close)
	return ts, store
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func dialChat(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, path), nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) WireEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev WireEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev
}

func TestListSessionsAuth(t *testing.T) {
	ts, store := newTestServer(t, llm.NewMockBackend(), "secret")
	store.Create()

	resp, err := http.Get(ts.URL + "/chat/sessions")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/chat/sessions", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get with token: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d, want 200", resp.StatusCode)
	}
}

func TestNewSessionStreamsTurn(t *testing.T) {
	backend := llm.NewMockBackend().AddDeltas("Hello", ", world!")
	ts, store := newTestServer(t, backend, "")

	conn := dialChat(t, ts, "/chat/sessions/new")

	ready := readEvent(t, conn)
	if ready.Type != "session_ready" || ready.SessionID == "" {
		t.Fatalf("expected session_ready, got %+v", ready)
	}

	if err := conn.WriteJSON(ClientEvent{Type: "message", Text: "Hi"}); err != nil {
		t.Fatalf("write message: %v", err)
	}

	var deltas []string
	for {
		ev := readEvent(t, conn)
		switch ev.Type {
		case "text_delta":
			deltas = append(deltas, ev.Text)
			continue
		case "message_done":
			if ev.Text != "Hello, world!" {
				t.Fatalf("final text=%q", ev.Text)
			}
		default:
			t.Fatalf("unexpected event %+v", ev)
		}
		break
	}
	if strings.Join(deltas, "") != "Hello, world!" {
		t.Fatalf("deltas=%v", deltas)
	}

	sess, err := store.Get(ready.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	msgs := sess.Messages()
	if len(msgs) != 3 || msgs[2].Content != "Hello, world!" {
		t.Fatalf("transcript not committed: %+v", msgs)
	}
}

func TestResumeUnknownSession(t *testing.T) {
	ts, _ := newTestServer(t, llm.NewMockBackend(), "")

	resp, err := http.Get(ts.URL + "/chat/sessions/no-such-id")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", resp.StatusCode)
	}
}

func TestResumeSendsHistory(t *testing.T) {
	backend := llm.NewMockBackend()
	ts, store := newTestServer(t, backend, "")

	sess := store.Create()
	sess.AppendUser("Hi")
	sess.AppendAssistant("Hello!")

	conn := dialChat(t, ts, "/chat/sessions/"+sess.ID)

	ready := readEvent(t, conn)
	if ready.Type != "session_ready" || ready.SessionID != sess.ID {
		t.Fatalf("expected session_ready for %s, got %+v", sess.ID, ready)
	}
	if len(ready.History) != 2 || ready.History[1].Content != "Hello!" {
		t.Fatalf("history=%+v", ready.History)
	}
	if cur := store.Current(); cur.ID != sess.ID {
		t.Fatal("resume did not switch the current session")
	}
}

func TestSwitchAndDelete(t *testing.T) {
	backend := llm.NewMockBackend()
	ts, store := newTestServer(t, backend, "")

	first := store.Create()
	second := store.Create()

	conn := dialChat(t, ts, "/chat/sessions/"+second.ID)
	readEvent(t, conn) // session_ready

	if err := conn.WriteJSON(ClientEvent{Type: "switch", SessionID: first.ID}); err != nil {
		t.Fatalf("write switch: %v", err)
	}
	ev := readEvent(t, conn)
	if ev.Type != "session_ready" || ev.SessionID != first.ID {
		t.Fatalf("switch reply=%+v", ev)
	}

	if err := conn.WriteJSON(ClientEvent{Type: "delete", SessionID: first.ID}); err != nil {
		t.Fatalf("write delete: %v", err)
	}
	ev = readEvent(t, conn)
	if ev.Type != "session_ready" {
		t.Fatalf("delete reply=%+v", ev)
	}
	if ev.SessionID == first.ID {
		t.Fatal("deleted session is still current")
	}
	if _, err := store.Get(first.ID); err == nil {
		t.Fatal("deleted session still present")
	}
}

func TestInterruptDiscardsResponse(t *testing.T) {
	backend := llm.NewMockBackend().AddTurn(llm.MockTurn{
		Deltas: []string{"one", "two", "three"},
		Delay:  500 * time.Millisecond,
	})
	ts, store := newTestServer(t, backend, "")

	conn := dialChat(t, ts, "/chat/sessions/new")
	ready := readEvent(t, conn)

	if err := conn.WriteJSON(ClientEvent{Type: "message", Text: "Hi"}); err != nil {
		t.Fatalf("write message: %v", err)
	}
	if err := conn.WriteJSON(ClientEvent{Type: "interrupt"}); err != nil {
		t.Fatalf("write interrupt: %v", err)
	}

	for {
		ev := readEvent(t, conn)
		if ev.Type == "text_delta" {
			t.Fatalf("delta %q delivered after interrupt", ev.Text)
		}
		if ev.Type == "message_done" {
			if ev.Text != "" {
				t.Fatalf("interrupted turn reported text %q", ev.Text)
			}
			break
		}
	}

	sess, err := store.Get(ready.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	// Only system prompt and the user message remain.
	if got := sess.MessageCount(); got != 2 {
		t.Fatalf("message count=%d, want 2", got)
	}
}

func TestBufferedMessage(t *testing.T) {
	backend := llm.NewMockBackend().AddTextResponse("All at once")
	ts, _ := newTestServer(t, backend, "")

	conn := dialChat(t, ts, "/chat/sessions/new")
	readEvent(t, conn) // session_ready

	if err := conn.WriteJSON(ClientEvent{Type: "message", Text: "Hi", Buffered: true}); err != nil {
		t.Fatalf("write message: %v", err)
	}
	ev := readEvent(t, conn)
	if ev.Type != "message_done" || ev.Text != "All at once" {
		t.Fatalf("got %+v, want buffered message_done", ev)
	}
}
