package conversation

import (
	"sync"
	"time"
)

// retentionWindow is how many user turns (counting the current one) stay in
// history after an append. System messages are always retained.
const retentionWindow = 3

// Manager is the serialized owner of per-user conversation state. All reads
// and writes for one user go through the same per-user mutex, so a turn
// counter increment and its history write form a single critical section.
// Different users never contend with each other.
type Manager struct {
	store Store

	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu       sync.Mutex
	lastUsed time.Time
}

func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		locks: make(map[string]*userLock),
	}
}

// withLock executes fn while holding the per-user mutex.
// Concurrent operations for the same user are serialized; different users
// proceed in parallel.
func (m *Manager) withLock(userID string, fn func() error) error {
	m.mu.Lock()
	ul, ok := m.locks[userID]
	if !ok {
		ul = &userLock{}
		m.locks[userID] = ul
	}
	m.mu.Unlock()

	ul.mu.Lock()
	defer ul.mu.Unlock()

	ul.lastUsed = time.Now()
	return fn()
}

// CleanupLocks removes per-user locks not used within maxAge to prevent the
// lock map from growing unboundedly. Conversation state itself is untouched.
func (m *Manager) CleanupLocks(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for userID, ul := range m.locks {
		if now.Sub(ul.lastUsed) > maxAge {
			delete(m.locks, userID)
		}
	}
}

// History returns the user's current history with turn tags stripped.
// Callers must not depend on turn numbers; they are internal to the actor.
func (m *Manager) History(userID string) ([]Message, error) {
	var msgs []Message
	err := m.withLock(userID, func() error {
		st, err := m.store.GetState(userID)
		if err != nil {
			return err
		}
		msgs = stripTurns(st.Messages)
		return nil
	})
	return msgs, err
}

// Append adds one message to the user's history. A user message atomically
// advances the turn counter and is tagged with the new value; any other role
// inherits the current counter. The retention rule is applied afterwards:
// system messages are always kept, everything else only while its turn is
// within the retention window.
func (m *Manager) Append(userID string, msg Message) error {
	return m.withLock(userID, func() error {
		st, err := m.store.GetState(userID)
		if err != nil {
			return err
		}
		m.appendLocked(&st, msg)
		return m.store.SaveState(userID, st)
	})
}

// FetchHistoryAndAppendUser returns the history as it was before the new
// user message, then appends the message. The snapshot deliberately excludes
// the message being appended: the caller adds it to the model prompt itself,
// so returning it here would double it.
func (m *Manager) FetchHistoryAndAppendUser(userID, content string) ([]Message, error) {
	var prior []Message
	err := m.withLock(userID, func() error {
		st, err := m.store.GetState(userID)
		if err != nil {
			return err
		}
		prior = stripTurns(st.Messages)
		m.appendLocked(&st, UserMessage(content))
		return m.store.SaveState(userID, st)
	})
	return prior, err
}

// ClearHistory drops the user's conversation state entirely.
func (m *Manager) ClearHistory(userID string) error {
	return m.withLock(userID, func() error {
		return m.store.DeleteState(userID)
	})
}

func (m *Manager) appendLocked(st *State, msg Message) {
	if msg.Role == RoleUser {
		st.Turn++
	}
	msg.Turn = st.Turn
	st.Messages = append(st.Messages, msg)

	kept := st.Messages[:0]
	for _, kp := range st.Messages {
		if kp.Role == RoleSystem || kp.Turn >= st.Turn-(retentionWindow-1) {
			kept = append(kept, kp)
		}
	}
	st.Messages = kept
}

func stripTurns(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, msg := range msgs {
		msg.Turn = 0
		out[i] = msg
	}
	return out
}
