package session

import (
	"golang.org/x/sync/singleflight"

	"github.com/ouros-lang/ouros/compiler"
	"github.com/ouros-lang/ouros/heap"
	"github.com/ouros-lang/ouros/vm"
	"github.com/ouros-lang/ouros/wire"
)

// ListVariables returns every name currently bound in module globals
// (spec §4.8 "list variable").
func (s *Session) ListVariables() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.VM.Globals.Globals))
	for name := range s.VM.Globals.Globals {
		names = append(names, name)
	}
	return names
}

// GetVariable returns the repr of the named global, or
// VariableNotFoundError if unbound (spec §4.8 "get variable").
func (s *Session) GetVariable(name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.VM.Globals.Globals[name]
	if !ok {
		return "", &VariableNotFoundError{Name: name}
	}
	repr, perr := s.VM.Repr(v)
	if perr != nil {
		return "", perr
	}
	return repr, nil
}

// SetVariable binds name directly in module globals (spec §4.8 "set
// variable"), incref'd the same way a STORE_GLOBAL opcode would bind it.
func (s *Session) SetVariable(name string, v heap.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.VM.Globals.Globals[name]; ok {
		decref(s.VM, old)
	}
	incref(s.VM, v)
	s.VM.Globals.Globals[name] = v
}

// DeleteVariable unbinds name from module globals (spec §4.8 "delete
// variable").
func (s *Session) DeleteVariable(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.VM.Globals.Globals[name]
	if !ok {
		return &VariableNotFoundError{Name: name}
	}
	delete(s.VM.Globals.Globals, name)
	decref(s.VM, v)
	return nil
}

// incref/decref mirror the VM's own unexported refcount bookkeeping
// (vm.decref in call.go) for the session package's direct global-map
// mutations, since SetVariable/DeleteVariable bind/unbind outside of any
// STORE_GLOBAL/DELETE_GLOBAL opcode.
func incref(vmv *vm.VM, v heap.Value) {
	if !v.IsInline() {
		vmv.Heap.Incref(v.Id)
	}
}

func decref(vmv *vm.VM, v heap.Value) {
	if !v.IsInline() {
		vmv.Heap.Decref(v.Id)
	}
}

var evalGroup singleflight.Group

// EvalVariable runs code in a disposable forked copy of the session and
// returns the repr of its result, leaving the live session untouched
// (spec §4.8 "the eval variant runs in a forked copy and discards side
// effects"). Concurrent identical evals against the same session (same
// session id + code text) are collapsed onto a single fork via
// singleflight, since each fork is a full heap dump+load round trip and
// nothing about a pure-read eval depends on which concurrent caller
// triggered it.
func (s *Session) EvalVariable(code string) (string, error) {
	key := s.ID + "\x00" + code
	v, err, _ := evalGroup.Do(key, func() (interface{}, error) {
		s.mu.Lock()
		blob, derr := wire.Dump(s.VM, false)
		externalNames := append([]string(nil), s.externalNames...)
		scriptName := s.scriptName
		limits := s.limits
		s.mu.Unlock()
		if derr != nil {
			return "", derr
		}

		forkVM, lerr := wire.Load(blob, limits, map[string]heap.Value{})
		if lerr != nil {
			return "", lerr
		}
		vm.InstallBuiltins(forkVM)

		chunk, cerr := compiler.Compile(code, compiler.CompileOptions{
			ScriptName:    scriptName,
			ExternalNames: externalNames,
		})
		if cerr != nil {
			return "", cerr
		}
		result, perr := forkVM.Run(chunk, nil, nil)
		if perr != nil {
			return "", perr
		}
		repr, perr := forkVM.Repr(result)
		if perr != nil {
			return "", perr
		}
		return repr, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
