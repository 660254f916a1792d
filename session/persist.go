package session

import (
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ouros-lang/ouros/heap"
	"github.com/ouros-lang/ouros/vm"
	"github.com/ouros-lang/ouros/wire"
)

// SaveSession serializes sessionID via C7 into the configured storage
// directory (spec §4.8 "save_session", §6 "Persisted state layout").
func (m *Manager) SaveSession(sessionID string) error {
	if !isValidSessionName(sessionID) {
		return &InvalidNameError{Name: sessionID}
	}
	s, err := m.GetSession(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	blob, derr := wire.Dump(s.VM, m.cfg.Storage.Compress)
	s.mu.Unlock()
	if derr != nil {
		return derr
	}
	if err := os.MkdirAll(m.cfg.Storage.Dir, 0o755); err != nil {
		return err
	}
	path := m.cfg.Storage.path(sessionID)
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return err
	}
	m.log.Info("session saved", "id", sessionID, "path", path)
	return nil
}

// LoadSession deserializes a previously-saved file into a live session
// registered under sessionID, failing if that id is already taken (spec
// §4.8 "load_session").
func (m *Manager) LoadSession(sessionID string) error {
	if !isValidSessionName(sessionID) {
		return &InvalidNameError{Name: sessionID}
	}
	m.mu.Lock()
	if _, exists := m.sessions[sessionID]; exists {
		m.mu.Unlock()
		return &AlreadyExistsError{ID: sessionID}
	}
	m.mu.Unlock()

	s, err := m.loadSessionFile(sessionID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[sessionID]; exists {
		return &AlreadyExistsError{ID: sessionID}
	}
	m.sessions[sessionID] = s
	m.log.Info("session loaded", "id", sessionID)
	return nil
}

func (m *Manager) loadSessionFile(sessionID string) (*Session, error) {
	path := m.cfg.Storage.path(sessionID)
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	limits := m.cfg.Limits.toVMLimits()
	restored, err := wire.Load(blob, limits, map[string]heap.Value{})
	if err != nil {
		return nil, err
	}
	vm.InstallBuiltins(restored)
	return &Session{
		ID:         sessionID,
		VM:         restored,
		scriptName: sessionID,
		limits:     limits,
		historyCap: m.cfg.History.Depth,
		log:        m.log,
	}, nil
}

// RestoreAll loads every saved session file found in the configured
// storage directory, concurrently — each file is an independent
// dump/load round trip with no shared state between them, unlike
// call_session/transfer_variable's two-session locking which must stay
// sequential to preserve the fixed-id-order deadlock guarantee (spec
// §5). Sessions that already exist under the same id (e.g. "default")
// are skipped rather than treated as an error.
func (m *Manager) RestoreAll() error {
	entries, err := os.ReadDir(m.cfg.Storage.Dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	const ext = ".ourossession"
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ext))
	}

	loaded := make([]*Session, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			s, err := m.loadSessionFile(id)
			if err != nil {
				m.log.Error("restore failed", "id", id, "error", err.Error())
				return nil // one bad file does not abort the whole restore
			}
			loaded[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range loaded {
		if s == nil {
			continue
		}
		if _, exists := m.sessions[ids[i]]; exists {
			continue
		}
		m.sessions[ids[i]] = s
	}
	return nil
}
