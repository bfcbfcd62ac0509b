package agent

import (
	"sync"
	"time"
)

// maxExchanges bounds how many exchanges one session retains
const maxExchanges = 100

// Exchange is one query/answer pair in a session
type Exchange struct {
	Query   string    `json:"query"`
	Answer  string    `json:"answer"`
	Success bool      `json:"success"`
	At      time.Time `json:"at"`
}

// Session holds one user's conversation state and the correlation IDs of
// their in-flight delegations.
type Session struct {
	UserID string

	mu        sync.Mutex
	exchanges []Exchange
	open      map[string]struct{}
}

func newSession(userID string) *Session {
	return &Session{
		UserID: userID,
		open:   make(map[string]struct{}),
	}
}

// Append records a completed exchange, evicting the oldest past the bound
func (s *Session) Append(query, answer string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exchanges = append(s.exchanges, Exchange{
		Query:   query,
		Answer:  answer,
		Success: success,
		At:      time.Now(),
	})
	if len(s.exchanges) > maxExchanges {
		s.exchanges = s.exchanges[len(s.exchanges)-maxExchanges:]
	}
}

// History returns a copy of the session's exchanges, oldest first
func (s *Session) History() []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Exchange, len(s.exchanges))
	copy(out, s.exchanges)
	return out
}

// TrackCorrelation marks a delegation as in flight for this session
func (s *Session) TrackCorrelation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open[id] = struct{}{}
}

// ReleaseCorrelation marks a delegation as settled
func (s *Session) ReleaseCorrelation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, id)
}

// OpenCorrelations returns the correlation IDs still in flight
func (s *Session) OpenCorrelations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.open))
	for id := range s.open {
		out = append(out, id)
	}
	return out
}

// SessionStore tracks sessions by user ID
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty session store
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// Get returns the session for a user, creating it on first use
func (st *SessionStore) Get(userID string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[userID]
	if !ok {
		s = newSession(userID)
		st.sessions[userID] = s
	}
	return s
}

// Remove drops a session and returns it, if present
func (st *SessionStore) Remove(userID string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[userID]
	if ok {
		delete(st.sessions, userID)
	}
	return s, ok
}

// Len returns the number of live sessions
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
