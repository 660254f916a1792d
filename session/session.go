package session

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ouros-lang/ouros/compiler"
	"github.com/ouros-lang/ouros/heap"
	"github.com/ouros-lang/ouros/vm"
	"github.com/ouros-lang/ouros/wire"
)

// Outcome is the Execute/Resume/ResumeFutures family's return shape,
// mirroring spec §6's Driver API: a session call always ends in exactly
// one of Complete, an ExternalCall suspension, or a FutureAwait
// suspension, never a partial mix.
type Outcome struct {
	Complete    bool
	Result      string // repr of the return value, valid when Complete
	Call        *vm.ExternalCall
	PendingIDs  []uint64
	Err         *ErrorInfo
}

// ErrorInfo carries a propagated Python exception or host-side breach
// back across the driver boundary as plain data (spec §7): the VM's
// heap-resident exception object does not survive the trip, so it is
// flattened to a class name, message, and repr here.
type ErrorInfo struct {
	ClassName string
	Message   string
	Repr      string
}

// Session is one sandboxed VM instance plus the bookkeeping the manager
// needs around it: the fixed external-name table established at creation
// (spec's compile-against-the-session's-name-table rule), a rewind
// history ring buffer, and a mutex serializing every operation against
// it. A plain mutex is used in place of the teacher's VMWorker
// channel-dispatch goroutine: both give the same single-threaded-access
// guarantee (spec §5), but every Ouros operation here is synchronous and
// returns promptly (a suspension just stops dispatch and hands control
// back), so there is no long-lived worker loop to host.
type Session struct {
	mu   sync.Mutex
	ID   string
	VM   *vm.VM

	externalNames []string
	scriptName    string
	limits        vm.Limits

	history     [][]byte // wire.Dump snapshots, oldest first
	historyCap  int

	log *slog.Logger
}

// newSession creates a fresh VM for id, with the given declared external
// names (spec §6 compile input) and resource limits.
func newSession(id string, externalNames []string, limits vm.Limits, historyCap int, log *slog.Logger) *Session {
	return &Session{
		ID:            id,
		VM:            vm.New(limits),
		externalNames: append([]string(nil), externalNames...),
		scriptName:    id,
		limits:        limits,
		historyCap:    historyCap,
		log:           log,
	}
}

// Execute compiles code against this session's external-name table,
// binds inputs into the module globals, and runs it to completion or
// suspension (spec §4.8 "execute", §6). Once the code compiles, the VM
// state as it was before this call is pushed onto the history ring,
// whether or not the run then succeeds, so rewind can restore the state
// immediately preceding this call.
func (s *Session) Execute(code string, inputs map[string]heap.Value) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	chunk, err := compiler.Compile(code, compiler.CompileOptions{
		ScriptName:    s.scriptName,
		ExternalNames: s.externalNames,
	})
	if err != nil {
		return Outcome{Err: &ErrorInfo{ClassName: "SyntaxError", Message: err.Error()}}
	}

	s.snapshot()
	for name, v := range inputs {
		s.VM.Globals.Globals[name] = v
	}

	result, perr := s.VM.Run(chunk, nil, nil)
	return s.toOutcome(result, perr)
}

// ResumeCall answers a pending ExternalCall suspension (spec §4.6 steps
// 4-5, §6 "resume").
func (s *Session) ResumeCall(result heap.Value) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, perr := s.VM.Resume(result)
	outcome := s.toOutcome(r, perr)
	s.snapshot()
	return outcome
}

// ResumeCallError answers a pending ExternalCall suspension by raising
// an exception at the call site instead of returning a value.
func (s *Session) ResumeCallError(className, message string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, perr := s.VM.ResumeWithException(s.VM.NewExceptionMsg(className, message))
	outcome := s.toOutcome(r, perr)
	s.snapshot()
	return outcome
}

// ResumePending marks the in-flight external call as "the host will
// deliver this later" (spec §4.6 step 4's Pending case).
func (s *Session) ResumePending() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, perr := s.VM.ResumePending()
	outcome := s.toOutcome(r, perr)
	s.snapshot()
	return outcome
}

// ResumeFutures delivers outcomes for previously-pending call ids (spec
// §4.6 step 6, §6 "resume_futures").
func (s *Session) ResumeFutures(outcomes map[uint64]vm.FutureOutcome) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, perr := s.VM.ResumeFutures(outcomes)
	outcome := s.toOutcome(r, perr)
	s.snapshot()
	return outcome
}

func (s *Session) toOutcome(result heap.Value, perr *vm.PyError) Outcome {
	if perr != nil {
		return Outcome{Err: s.errorInfo(perr)}
	}
	switch s.VM.Suspension.Kind {
	case vm.SuspendExternalCall:
		return Outcome{Call: s.VM.Suspension.Call}
	case vm.SuspendFutureAwait:
		return Outcome{PendingIDs: append([]uint64(nil), s.VM.Suspension.PendingIDs...)}
	default:
		repr, rerr := s.VM.Repr(result)
		if rerr != nil {
			return Outcome{Err: s.errorInfo(rerr)}
		}
		return Outcome{Complete: true, Result: repr}
	}
}

func (s *Session) errorInfo(perr *vm.PyError) *ErrorInfo {
	className := "RuntimeError"
	if perr.Value.Kind == heap.KindException {
		if _, obj, err := s.VM.Heap.Read(perr.Value.Id); err == nil && obj.Exception != nil {
			if n, err := s.VM.Heap.ClassName(obj.Exception.Class); err == nil {
				className = n
			}
		}
	}
	repr, _ := s.VM.Repr(perr.Value)
	msg, _ := s.VM.Str(perr.Value)
	if s.log != nil {
		s.log.Warn("exception propagated", "session", s.ID, "class", className)
	}
	return &ErrorInfo{ClassName: className, Message: msg, Repr: repr}
}

// snapshot appends the current VM state to the history ring (spec
// §4.8's rewind, default depth 20, configurable), dropping the oldest
// entry once the ring is full. A snapshot failure is logged, not fatal:
// rewind degrades to "as far back as history actually has", it never
// blocks execute from returning its outcome.
func (s *Session) snapshot() {
	blob, err := wire.Dump(s.VM, false)
	if err != nil {
		if s.log != nil {
			s.log.Error("history snapshot failed", "session", s.ID, "error", err.Error())
		}
		return
	}
	s.history = append(s.history, blob)
	if len(s.history) > s.historyCap {
		s.history = s.history[len(s.history)-s.historyCap:]
	}
}

func (s *Session) describe() string {
	return fmt.Sprintf("session %s (%d external names, %d history entries)", s.ID, len(s.externalNames), len(s.history))
}
