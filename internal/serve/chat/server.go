// Package chat exposes the conversation store over HTTP and WebSocket so a
// remote front-end can drive the same sessions as the local REPL.
package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	chatcore "github.com/samsaffron/chat-llm/internal/chat"
	"github.com/samsaffron/chat-llm/internal/config"
)

// Server serves the chat endpoints. All connections share one store, so a
// switch or delete issued on one connection is visible to every other.
type Server struct {
	store *chatcore.Store
	coord *chatcore.Coordinator
	cfg   config.ServeConfig
	debug bool
}

func NewServer(store *chatcore.Store, coord *chatcore.Coordinator, cfg config.ServeConfig) *Server {
	return &Server{store: store, coord: coord, cfg: cfg}
}

// SetDebug enables request logging to stderr.
func (s *Server) SetDebug(debug bool) {
	s.debug = debug
}

// HTTPHandler returns an http.Handler for the chat endpoints.
func (s *Server) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/sessions", s.auth(s.handleListSessions))
	mux.HandleFunc("/chat/sessions/new", s.auth(s.handleNewSession))
	mux.HandleFunc("/chat/sessions/", s.auth(s.handleSessionSocket))
	return s.loggingMiddleware(mux)
}

// loggingMiddleware logs HTTP requests when debug is enabled.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.debug {
			next.ServeHTTP(w, r)
			return
		}
		fmt.Fprintf(os.Stderr, "[chat-serve] %s %s %s from %s\n",
			time.Now().Format("15:04:05.000"), r.Method, r.URL.Path, r.RemoteAddr)
		wrapped := &responseLogger{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		fmt.Fprintf(os.Stderr, "[chat-serve] %s Response status: %d\n",
			time.Now().Format("15:04:05.000"), wrapped.status)
	})
}

// responseLogger wraps http.ResponseWriter to capture the status code. It
// forwards Hijack so WebSocket upgrades still work under logging.
type responseLogger struct {
	http.ResponseWriter
	status int
}

func (r *responseLogger) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseLogger) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.store.List()})
}

func (s *Server) handleNewSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrade(w, r)
	if err != nil {
		return
	}

	sess := s.store.Create()
	c := &clientConn{conn: conn}
	s.sendSessionReady(c, sess.ID, sess.Title(), sess.Model(), sess.Transcript())
	s.runLoop(c)
}

func (s *Server) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/chat/sessions/")
	id = strings.Trim(id, "/")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	// Look the session up before upgrading so a bad id gets a plain 404.
	sess, err := s.store.Get(id)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	conn, err := s.upgrade(w, r)
	if err != nil {
		return
	}

	if err := s.store.SwitchCurrent(id); err != nil {
		_ = conn.Close()
		return
	}

	c := &clientConn{conn: conn}
	s.sendSessionReady(c, sess.ID, sess.Title(), sess.Model(), sess.Transcript())
	s.runLoop(c)
}

// clientConn wraps one WebSocket connection. The write lock keeps stream
// events from interleaving with control replies; cancelStream aborts the
// in-flight turn when the client interrupts or disconnects.
type clientConn struct {
	conn *websocket.Conn

	mu           sync.Mutex
	writeMu      sync.Mutex
	cancelStream context.CancelFunc
}

func (c *clientConn) write(ev WireEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *clientConn) setCancel(cancel context.CancelFunc) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelStream != nil {
		return false
	}
	c.cancelStream = cancel
	return true
}

func (c *clientConn) clearCancel() {
	c.mu.Lock()
	cancel := c.cancelStream
	c.cancelStream = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *clientConn) interrupt() {
	c.mu.Lock()
	cancel := c.cancelStream
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Server) runLoop(c *clientConn) {
	defer func() {
		c.interrupt()
		_ = c.conn.Close()
	}()

	for {
		var ev ClientEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			return
		}

		switch ev.Type {
		case "message":
			if strings.TrimSpace(ev.Text) == "" {
				continue
			}
			// Register the cancel hook before the turn goroutine starts so
			// an interrupt arriving immediately after cannot miss it.
			ctx, cancel := context.WithCancel(context.Background())
			if !c.setCancel(cancel) {
				cancel()
				s.writeError(c, "a response is already in progress")
				continue
			}
			go s.startTurn(c, ctx, ev)
		case "interrupt":
			c.interrupt()
		case "new":
			sess := s.store.Create()
			s.sendSessionReady(c, sess.ID, sess.Title(), sess.Model(), sess.Transcript())
		case "switch":
			transcript, model, err := s.store.LoadForDisplay(ev.SessionID)
			if err != nil {
				s.writeError(c, err.Error())
				continue
			}
			sess := s.store.Current()
			s.sendSessionReady(c, sess.ID, sess.Title(), model, transcript)
		case "delete":
			s.store.Delete(ev.SessionID)
			sess := s.store.Current()
			s.sendSessionReady(c, sess.ID, sess.Title(), sess.Model(), sess.Transcript())
		case "list":
			_ = c.write(WireEvent{Type: "session_list", Sessions: s.store.List()})
		}
	}
}

func (s *Server) startTurn(c *clientConn, ctx context.Context, ev ClientEvent) {
	defer c.clearCancel()

	reply, err := s.coord.Submit(ctx, chatcore.TurnRequest{
		Text:   ev.Text,
		Model:  ev.Model,
		Stream: !ev.Buffered,
	})
	if err != nil {
		s.writeError(c, err.Error())
		return
	}

	if reply.Result != nil {
		// Buffered completion or a turn that failed before streaming. The
		// assistant message is already committed; ship it whole.
		final := ""
		if n := len(reply.Result.Transcript); n > 0 {
			final = reply.Result.Transcript[n-1].Content
		}
		_ = c.write(WireEvent{Type: "message_done", Text: final})
		return
	}

	stream := reply.Stream
	defer stream.Close()
	for {
		// An interrupt must stop consumption here, before the next Recv can
		// deliver backlogged deltas; nothing is committed for the turn.
		if ctx.Err() != nil {
			_ = c.write(WireEvent{Type: "message_done"})
			return
		}
		res, err := stream.Recv()
		if err == io.EOF {
			_ = c.write(WireEvent{Type: "message_done", Text: stream.Text()})
			return
		}
		if err != nil {
			if errors.Is(err, context.Canceled) {
				_ = c.write(WireEvent{Type: "message_done"})
				return
			}
			s.writeError(c, err.Error())
			_ = c.write(WireEvent{Type: "message_done", Text: stream.Text()})
			return
		}
		_ = c.write(WireEvent{Type: "text_delta", Text: res.Delta})
	}
}

func (s *Server) sendSessionReady(c *clientConn, id, title, model string, history []chatcore.DisplayMessage) {
	_ = c.write(WireEvent{
		Type:      "session_ready",
		SessionID: id,
		Title:     title,
		Model:     model,
		History:   history,
	})
}

func (s *Server) writeError(c *clientConn, message string) {
	_ = c.write(WireEvent{Type: "error", Message: message})
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	token := strings.TrimSpace(s.cfg.Token)
	if token == "" {
		return true
	}
	value := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(value, prefix) {
		return false
	}
	return strings.TrimSpace(strings.TrimPrefix(value, prefix)) == token
}

func (s *Server) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return upgrader.Upgrade(w, r, nil)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
