package session

import (
	"github.com/ouros-lang/ouros/heap"
	"github.com/ouros-lang/ouros/vm"
	"github.com/ouros-lang/ouros/wire"
)

// Fork deep-copies source's heap and frame stack into a brand-new session
// registered under newID, sharing nothing thereafter (spec §4.8 "fork").
// The copy goes through the same C7 dump/load round trip EvalVariable
// uses for its disposable forks — it is already the proven-correct way
// to produce an independent VM from a live one.
func (m *Manager) Fork(sourceID, newID string) error {
	if !isValidSessionName(newID) {
		return &InvalidNameError{Name: newID}
	}
	m.mu.Lock()
	if _, exists := m.sessions[newID]; exists {
		m.mu.Unlock()
		return &AlreadyExistsError{ID: newID}
	}
	src, ok := m.sessions[sourceID]
	m.mu.Unlock()
	if !ok {
		return &NotFoundError{ID: sourceID}
	}

	src.mu.Lock()
	blob, err := wire.Dump(src.VM, false)
	externalNames := append([]string(nil), src.externalNames...)
	limits := src.limits
	historyCap := src.historyCap
	src.mu.Unlock()
	if err != nil {
		return err
	}

	forkVM, err := wire.Load(blob, limits, map[string]heap.Value{})
	if err != nil {
		return err
	}
	vm.InstallBuiltins(forkVM)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[newID]; exists {
		return &AlreadyExistsError{ID: newID}
	}
	m.sessions[newID] = &Session{
		ID:            newID,
		VM:            forkVM,
		externalNames: externalNames,
		scriptName:    newID,
		limits:        limits,
		historyCap:    historyCap,
		log:           m.log,
	}
	m.log.Info("session forked", "source", sourceID, "new", newID)
	return nil
}

// Rewind restores the snapshot n entries back in sessionID's history
// (spec §4.8 "rewind(n)"): entries newer than the target are discarded
// along with the target itself, since the restored VM becomes the new
// present and re-snapshotting on the next execute will re-append it.
func (s *Session) Rewind(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.history) {
		return &RewindOutOfRangeError{Requested: n, Available: len(s.history)}
	}
	idx := len(s.history) - n
	blob := s.history[idx]
	s.history = s.history[:idx]

	restored, err := wire.Load(blob, s.limits, map[string]heap.Value{})
	if err != nil {
		return err
	}
	vm.InstallBuiltins(restored)
	s.VM = restored
	return nil
}
