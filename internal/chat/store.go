package chat

import (
	"errors"
	"sort"
	"sync"
)

// ErrSessionNotFound is returned for operations on an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// SessionInfo is one row of the session picker.
type SessionInfo struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

// Store owns every live session. It is the only component that retains
// session references across calls; state lives for the process lifetime.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]*Session
	currentID    string
	defaultModel string
	systemPrompt string
}

func NewStore(defaultModel, systemPrompt string) *Store {
	return &Store{
		sessions:     make(map[string]*Session),
		defaultModel: defaultModel,
		systemPrompt: systemPrompt,
	}
}

// Create builds a fresh session with the default model selection and a
// single system message, makes it current, and returns it.
func (st *Store) Create() *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.createLocked()
}

func (st *Store) createLocked() *Session {
	sess := newSession(st.defaultModel, st.systemPrompt)
	st.sessions[sess.ID] = sess
	st.currentID = sess.ID
	return sess
}

// Current returns the current session, creating one when none exists. A
// caller that always goes through Current never observes an empty store.
func (st *Store) Current() *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if sess, ok := st.sessions[st.currentID]; ok {
		return sess
	}
	return st.createLocked()
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	sess, ok := st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// SwitchCurrent makes id the current session. On an unknown id the previous
// current session is left untouched.
func (st *Store) SwitchCurrent(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	st.currentID = id
	return nil
}

// Delete removes a session. Deleting the current session immediately creates
// and switches to a replacement so "current" never dangles. An absent id is
// tolerated as a no-op.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return
	}
	delete(st.sessions, id)
	if st.currentID == id {
		st.createLocked()
	}
}

// List returns every session ordered by descending message count, the
// original activity proxy, with creation order breaking ties. The current
// session is flagged Active.
func (st *Store) List() []SessionInfo {
	st.mu.RLock()
	defer st.mu.RUnlock()

	sessions := make([]*Session, 0, len(st.sessions))
	for _, sess := range st.sessions {
		sessions = append(sessions, sess)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		ci, cj := sessions[i].MessageCount(), sessions[j].MessageCount()
		if ci != cj {
			return ci > cj
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, SessionInfo{
			ID:     sess.ID,
			Title:  sess.Title(),
			Active: sess.ID == st.currentID,
		})
	}
	return out
}

// LoadForDisplay switches the current session to id and returns its display
// transcript and model identifier for the presentation layer to repaint.
func (st *Store) LoadForDisplay(id string) ([]DisplayMessage, string, error) {
	st.mu.Lock()
	sess, ok := st.sessions[id]
	if !ok {
		st.mu.Unlock()
		return nil, "", ErrSessionNotFound
	}
	st.currentID = id
	st.mu.Unlock()
	return sess.Transcript(), sess.Model(), nil
}
