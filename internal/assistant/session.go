package assistant

import (
	"fmt"
	"sync"
	"time"

	"github.com/alegriaw/chi-monthly-report-analyzer/config"
	"github.com/google/uuid"
)

// State is a step of the summary review flow.
type State string

const (
	StateIdle             State = "idle"
	StateSummaryShown     State = "summary-shown"
	StateAwaitingResponse State = "awaiting-response"
	StateResponseShown    State = "response-shown"
)

// ChatTurn is one question and its answer.
type ChatTurn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

// Session tracks one summary, its chat refinements and the state machine
// that orders them. Methods are safe for concurrent use.
type Session struct {
	ID        string
	Data      SummaryData
	CreatedAt time.Time

	mu           sync.Mutex
	state        State
	original     string
	improved     string
	lastResponse string
	pending      string
	resumeState  State
	history      []ChatTurn
	maxKeep      int
	updatedAt    time.Time
}

func newSession(id string, data SummaryData, maxKeep int) *Session {
	now := time.Now()
	return &Session{ID: id, Data: data, CreatedAt: now, updatedAt: now, state: StateIdle, maxKeep: maxKeep}
}

func (s *Session) transition(from []State, to State) error {
	for _, st := range from {
		if s.state == st {
			s.state = to
			s.updatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
}

// ShowSummary records a freshly generated summary.
func (s *Session) ShowSummary(summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transition([]State{StateIdle}, StateSummaryShown); err != nil {
		return err
	}
	s.original = summary
	s.improved = ""
	s.lastResponse = ""
	return nil
}

// Ask marks question as in flight.
func (s *Session) Ask(question string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	if err := s.transition([]State{StateSummaryShown, StateResponseShown}, StateAwaitingResponse); err != nil {
		return err
	}
	s.pending = question
	s.resumeState = prev
	return nil
}

// Respond completes the pending question.
func (s *Session) Respond(answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transition([]State{StateAwaitingResponse}, StateResponseShown); err != nil {
		return err
	}
	s.history = append(s.history, ChatTurn{Question: s.pending, Answer: answer, At: s.updatedAt})
	if len(s.history) > s.maxKeep {
		s.history = s.history[len(s.history)-s.maxKeep:]
	}
	s.lastResponse = answer
	s.pending = ""
	return nil
}

// Fail abandons the pending question and returns to the prior state.
func (s *Session) Fail() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transition([]State{StateAwaitingResponse}, s.resumeState); err != nil {
		return err
	}
	s.pending = ""
	return nil
}

// AdoptResponse makes the last answer the summary in force.
func (s *Session) AdoptResponse() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateResponseShown && s.lastResponse == "" {
		return fmt.Errorf("%w: no response to adopt", ErrInvalidTransition)
	}
	if err := s.transition([]State{StateResponseShown}, StateSummaryShown); err != nil {
		return err
	}
	s.improved = s.lastResponse
	return nil
}

// Revert drops the adopted answer and restores the original summary.
func (s *Session) Revert() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.improved == "" {
		return fmt.Errorf("%w: nothing to revert", ErrInvalidTransition)
	}
	if err := s.transition([]State{StateSummaryShown, StateResponseShown}, StateSummaryShown); err != nil {
		return err
	}
	s.improved = ""
	return nil
}

// Regenerate discards both summaries so a new one can be shown. Chat history
// survives.
func (s *Session) Regenerate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transition([]State{StateIdle, StateSummaryShown, StateResponseShown}, StateIdle); err != nil {
		return err
	}
	s.original, s.improved, s.lastResponse = "", "", ""
	return nil
}

// ClearHistory empties the chat history.
func (s *Session) ClearHistory() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateAwaitingResponse {
		return fmt.Errorf("%w: clear history while awaiting a response", ErrInvalidTransition)
	}
	s.history = nil
	s.updatedAt = time.Now()
	if s.state == StateResponseShown {
		s.state = StateSummaryShown
		s.lastResponse = ""
	}
	return nil
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentSummary is the adopted answer when set, else the original summary.
func (s *Session) CurrentSummary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.improved != "" {
		return s.improved
	}
	return s.original
}

// OriginalSummary is the summary as first generated.
func (s *Session) OriginalSummary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.original
}

// Improved reports whether an answer has been adopted.
func (s *Session) Improved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.improved != ""
}

// LastResponse is the most recent answer.
func (s *Session) LastResponse() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResponse
}

// History returns a copy of the chat history, oldest first.
func (s *Session) History() []ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatTurn(nil), s.history...)
}

func (s *Session) lastUpdate() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// SessionStore is an in-memory store of sessions keyed by UUID. It is not
// persisted and is safe for concurrent access.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	maxKeep  int           // max chat turns kept per session
	ttl      time.Duration // idle sessions older than ttl are pruned
}

// NewSessionStore keeps at most maxKeep turns per session and prunes
// sessions idle longer than ttl (never when ttl <= 0).
func NewSessionStore(maxKeep int, ttl time.Duration) *SessionStore {
	if maxKeep <= 0 {
		maxKeep = config.DefaultChatHistoryKeep
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		maxKeep:  maxKeep,
		ttl:      ttl,
	}
}

// NewSession starts a session for data.
func (s *SessionStore) NewSession(data SummaryData) *Session {
	sess := newSession(uuid.NewString(), data, s.maxKeep)
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// Get looks a session up by ID.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	return sess, ok
}

// Delete drops a session.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Prune removes sessions idle since before now-ttl and returns how many.
func (s *SessionStore) Prune(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastUpdate()) > s.ttl {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}
