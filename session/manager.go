package session

import (
	"log/slog"
	"regexp"
	"sync"
)

// DefaultSessionID is the id that always exists and cannot be destroyed
// (spec §4.8), and the id every manager operation defaults to when a
// caller omits session_id (spec §6 "Session-manager API").
const DefaultSessionID = "default"

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Manager is the process-local registry of named sessions (spec §4.8,
// C8), grounded on chazu-maggie's SessionStore: a map guarded by a
// mutex plus a monotonic counter, generalized here to driver-supplied
// string ids rather than server-minted numeric ones, since spec's
// session-manager API names sessions directly rather than handing back
// opaque handles for the session itself (handles stay reserved for
// heap values, per TransferVariable's no-HeapId-escapes rule).
type Manager struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session

	log  *slog.Logger
	ring *ringHandler
}

// NewManager creates a manager and its permanent default session.
func NewManager(cfg Config) *Manager {
	log, ring := newLogger()
	m := &Manager{cfg: cfg, sessions: make(map[string]*Session), log: log, ring: ring}
	m.sessions[DefaultSessionID] = newSession(DefaultSessionID, nil, cfg.Limits.toVMLimits(), cfg.History.Depth, log)
	m.log.Info("manager started", "storage_dir", cfg.Storage.Dir)
	return m
}

// CreateSession registers a new session with the given declared
// external-function names, failing if id is already taken (spec §4.8).
func (m *Manager) CreateSession(id string, externalNames []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		return &AlreadyExistsError{ID: id}
	}
	m.sessions[id] = newSession(id, externalNames, m.cfg.Limits.toVMLimits(), m.cfg.History.Depth, m.log)
	m.log.Info("session created", "id", id, "external_names", len(externalNames))
	return nil
}

// GetSession resolves id, defaulting to the default session when id is
// empty (spec §6 "defaulting to \"default\"").
func (m *Manager) GetSession(id string) (*Session, error) {
	if id == "" {
		id = DefaultSessionID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return s, nil
}

// DestroySession removes a session, refusing to destroy the default
// one (spec §4.8).
func (m *Manager) DestroySession(id string) error {
	if id == DefaultSessionID {
		return &DefaultProtectedError{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return &NotFoundError{ID: id}
	}
	delete(m.sessions, id)
	m.log.Info("session destroyed", "id", id)
	return nil
}

// ListSessions returns every registered session id.
func (m *Manager) ListSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// RecentLogs returns the manager's in-memory log ring (for an inspect
// endpoint, not part of spec's operation list but useful for
// observability without requiring a host to scrape stderr).
func (m *Manager) RecentLogs() []string {
	return m.ring.Recent()
}

// DescribeSession returns a one-line human-readable summary of id, used
// by the same inspect endpoint as RecentLogs.
func (m *Manager) DescribeSession(id string) (string, error) {
	s, err := m.GetSession(id)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.describe(), nil
}

// sessionPairLocked fetches two sessions in a fixed total order by id
// (spec §5 "cross-session operations acquire the two relevant sessions
// in a fixed total order... to prevent cycles"). It does not itself
// lock the sessions' mutexes; callers lock in the order returned.
func (m *Manager) sessionPairLocked(a, b string) (first, second *Session, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sa, ok := m.sessions[a]
	if !ok {
		return nil, nil, &NotFoundError{ID: a}
	}
	sb, ok := m.sessions[b]
	if !ok {
		return nil, nil, &NotFoundError{ID: b}
	}
	if a <= b {
		return sa, sb, nil
	}
	return sb, sa, nil
}

func isValidSessionName(name string) bool {
	return name != "" && validName.MatchString(name)
}
