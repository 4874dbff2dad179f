package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/passprotect-go/internal/errs"
	"github.com/raphaelgruber/passprotect-go/internal/models"
)

// ErrSessionExpired is returned for turns on a session past its expiry.
var ErrSessionExpired = errors.New("session expired")

// DefaultSessionTTL is the absolute session lifetime.
const DefaultSessionTTL = 8 * time.Hour

// TurnStatus is the outcome of a turn.
type TurnStatus string

const (
	TurnInProgress    TurnStatus = "in_progress"
	TurnCompleted     TurnStatus = "completed"
	TurnBoundExceeded TurnStatus = "bound_exceeded"
	TurnCancelled     TurnStatus = "cancelled"
	TurnFailed        TurnStatus = "failed"
)

// Visible reports whether the turn is replayed to the engine on later turns.
func (s TurnStatus) Visible() bool {
	return s == TurnCompleted || s == TurnBoundExceeded
}

// Turn is one user message and everything it produced.
type Turn struct {
	Index       int
	UserMessage string
	// Messages holds the tool-call requests and results, in order.
	Messages   []models.Message
	Answer     string
	Status     TurnStatus
	Iterations int
	// Steps lists the loop states the turn entered, in order.
	Steps      []State
	Error      string
	StartedAt  time.Time
	EndedAt    time.Time
}

func (t Turn) clone() Turn {
	t.Messages = slices.Clone(t.Messages)
	t.Steps = slices.Clone(t.Steps)
	return t
}

// Session is one conversation owned by an identity. Turns are serialized by
// a context-aware lock and only ever appended.
type Session struct {
	ID        string
	Identity  models.Identity
	CreatedAt time.Time
	ExpiresAt time.Time

	lock chan struct{}

	mu    sync.RWMutex
	turns []Turn
}

// Expired reports whether the session is past its absolute expiry.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Turns returns a copy of the turn record.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	for i, t := range s.turns {
		out[i] = t.clone()
	}
	return out
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() { <-s.lock }

func (s *Session) nextIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

func (s *Session) append(t Turn) {
	s.mu.Lock()
	s.turns = append(s.turns, t.clone())
	s.mu.Unlock()
}

// history flattens the newest maxTurns visible turns into engine messages.
// maxTurns <= 0 means all of them.
func (s *Session) history(maxTurns int) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var visible []Turn
	for i := len(s.turns) - 1; i >= 0; i-- {
		if maxTurns > 0 && len(visible) == maxTurns {
			break
		}
		if s.turns[i].Status.Visible() {
			visible = append(visible, s.turns[i])
		}
	}
	slices.Reverse(visible)

	var out []models.Message
	for _, t := range visible {
		out = append(out, models.Message{Role: models.RoleUser, Content: t.UserMessage})
		out = append(out, t.Messages...)
		out = append(out, models.Message{Role: models.RoleAssistant, Content: t.Answer})
	}
	return out
}

// Store tracks live sessions.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewStore creates a session store. ttl <= 0 uses DefaultSessionTTL.
func NewStore(ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// Create opens a session for identity.
func (st *Store) Create(identity models.Identity) (*Session, error) {
	if !identity.Valid() {
		return nil, fmt.Errorf("create session: %w: identity has no user id", errs.ErrValidation)
	}
	now := st.now()
	s := &Session{
		ID:        uuid.New().String(),
		Identity:  identity,
		CreatedAt: now,
		ExpiresAt: now.Add(st.ttl),
		lock:      make(chan struct{}, 1),
	}

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()

	st.logger.Info("session created", "session_id", s.ID, "user_id", identity.UserID, "expires_at", s.ExpiresAt)
	return s, nil
}

// Get returns the live session id owned by identity. Expired sessions are
// removed and rejected.
func (st *Store) Get(id string, identity models.Identity) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: session %s", errs.ErrNotFound, id)
	}
	if s.Identity != identity {
		return nil, fmt.Errorf("%w: session %s belongs to another identity", errs.ErrPolicy, id)
	}
	if s.Expired(st.now()) {
		st.Remove(id)
		return nil, fmt.Errorf("%w: %w: %s", errs.ErrPolicy, ErrSessionExpired, id)
	}
	return s, nil
}

// Remove forgets a session.
func (st *Store) Remove(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

// Len returns the number of tracked sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep removes every expired session and returns how many it removed.
func (st *Store) Sweep() int {
	now := st.now()
	st.mu.Lock()
	defer st.mu.Unlock()

	removed := 0
	for id, s := range st.sessions {
		if s.Expired(now) {
			delete(st.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		st.logger.Info("expired sessions swept", "removed", removed, "remaining", len(st.sessions))
	}
	return removed
}

// RunSweeper sweeps every interval until ctx is done.
func (st *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.Sweep()
		}
	}
}
