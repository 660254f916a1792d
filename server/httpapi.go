// Package server exposes session.Manager's C8 operations as a remote-tool
// boundary: one JSON-over-HTTP endpoint per manager operation, grounded on
// chazu-maggie's server package (a ServeMux fronting one handler per
// gRPC/Connect service method) but rebuilt on net/http + encoding/json
// instead of connect-rpc/protobuf, per SPEC_FULL.md's dependency decision
// to keep the remote-tool boundary free of a generated-stub toolchain.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ouros-lang/ouros/heap"
	"github.com/ouros-lang/ouros/session"
	"github.com/ouros-lang/ouros/vm"
)

// HTTPAPI is a net/http.Handler wrapping a session.Manager. Every route
// accepts and returns JSON; errors surface as a JSON body with a matching
// non-2xx status rather than a raw connection failure, so a host tool
// never needs a protocol-specific client.
type HTTPAPI struct {
	manager *session.Manager
	mux     *http.ServeMux
	log     *slog.Logger
}

// New builds an HTTPAPI wrapping mgr and registers all of its routes.
func New(mgr *session.Manager, log *slog.Logger) *HTTPAPI {
	if log == nil {
		log = slog.Default()
	}
	a := &HTTPAPI{manager: mgr, mux: http.NewServeMux(), log: log}
	a.routes()
	return a
}

func (a *HTTPAPI) routes() {
	a.mux.HandleFunc("POST /sessions", a.handleCreateSession)
	a.mux.HandleFunc("GET /sessions", a.handleListSessions)
	a.mux.HandleFunc("DELETE /sessions/{id}", a.handleDestroySession)
	a.mux.HandleFunc("GET /sessions/{id}", a.handleDescribeSession)
	a.mux.HandleFunc("POST /sessions/{id}/execute", a.handleExecute)
	a.mux.HandleFunc("POST /sessions/{id}/resume", a.handleResumeCall)
	a.mux.HandleFunc("POST /sessions/{id}/resume-error", a.handleResumeCallError)
	a.mux.HandleFunc("POST /sessions/{id}/resume-pending", a.handleResumePending)
	a.mux.HandleFunc("POST /sessions/{id}/resume-futures", a.handleResumeFutures)
	a.mux.HandleFunc("GET /sessions/{id}/variables", a.handleListVariables)
	a.mux.HandleFunc("GET /sessions/{id}/variables/{name}", a.handleGetVariable)
	a.mux.HandleFunc("DELETE /sessions/{id}/variables/{name}", a.handleDeleteVariable)
	a.mux.HandleFunc("POST /sessions/{id}/variables/{name}/eval", a.handleEvalVariable)
	a.mux.HandleFunc("POST /sessions/{id}/fork", a.handleFork)
	a.mux.HandleFunc("POST /sessions/{id}/rewind", a.handleRewind)
	a.mux.HandleFunc("POST /sessions/{id}/transfer", a.handleTransferVariable)
	a.mux.HandleFunc("POST /sessions/{id}/call", a.handleCallSession)
	a.mux.HandleFunc("GET /sessions/{id}/heap/snapshot", a.handleSnapshotHeap)
	a.mux.HandleFunc("POST /sessions/{id}/save", a.handleSaveSession)
	a.mux.HandleFunc("POST /sessions/{id}/load", a.handleLoadSession)
	a.mux.HandleFunc("GET /logs", a.handleRecentLogs)
}

func (a *HTTPAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.log.Debug("http request", "method", r.Method, "path", r.URL.Path)
	a.mux.ServeHTTP(w, r)
}

// --- request/response shapes -----------------------------------------------

type createSessionRequest struct {
	ID            string   `json:"id"`
	ExternalNames []string `json:"external_names"`
}

type executeRequest struct {
	Code   string         `json:"code"`
	Inputs map[string]any `json:"inputs"`
}

type resumeCallRequest struct {
	Result any `json:"result"`
}

type resumeCallErrorRequest struct {
	ClassName string `json:"class_name"`
	Message   string `json:"message"`
}

type resumeFuturesRequest struct {
	Outcomes map[string]futureOutcomeJSON `json:"outcomes"`
}

type futureOutcomeJSON struct {
	Value     any    `json:"value,omitempty"`
	ClassName string `json:"class_name,omitempty"`
	Message   string `json:"message,omitempty"`
}

type forkRequest struct {
	NewID string `json:"new_id"`
}

type rewindRequest struct {
	N int `json:"n"`
}

type transferRequest struct {
	TargetID   string `json:"target_id"`
	Name       string `json:"name"`
	TargetName string `json:"target_name"`
}

type callSessionRequest struct {
	TargetID  string `json:"target_id"`
	Code      string `json:"code"`
	TargetVar string `json:"target_var"`
}

type outcomeResponse struct {
	Complete   bool               `json:"complete"`
	Result     string             `json:"result,omitempty"`
	Call       *externalCallJSON  `json:"call,omitempty"`
	PendingIDs []uint64           `json:"pending_ids,omitempty"`
	Err        *errorInfoResponse `json:"error,omitempty"`
}

type externalCallJSON struct {
	Name         string         `json:"name"`
	Args         []string       `json:"args"`   // reprs; args carry no JSON-native shape once on the heap
	Kwargs       map[string]any `json:"kwargs,omitempty"`
	CallID       uint64         `json:"call_id"`
	IsOSFunction bool           `json:"is_os_function"`
}

type errorInfoResponse struct {
	ClassName string `json:"class_name"`
	Message   string `json:"message"`
	Repr      string `json:"repr"`
}

func toOutcomeResponse(machine *vm.VM, out session.Outcome) outcomeResponse {
	resp := outcomeResponse{Complete: out.Complete, Result: out.Result, PendingIDs: out.PendingIDs}
	if out.Err != nil {
		resp.Err = &errorInfoResponse{ClassName: out.Err.ClassName, Message: out.Err.Message, Repr: out.Err.Repr}
	}
	if out.Call != nil {
		argReprs := make([]string, len(out.Call.Args))
		for i, v := range out.Call.Args {
			argReprs[i] = reprOrPlaceholder(machine, v)
		}
		var kwargReprs map[string]any
		if len(out.Call.Kwargs) > 0 {
			kwargReprs = make(map[string]any, len(out.Call.Kwargs))
			for name, v := range out.Call.Kwargs {
				kwargReprs[name] = reprOrPlaceholder(machine, v)
			}
		}
		resp.Call = &externalCallJSON{
			Name:         out.Call.Name,
			Args:         argReprs,
			Kwargs:       kwargReprs,
			CallID:       out.Call.CallID,
			IsOSFunction: out.Call.IsOSFunction,
		}
	}
	return resp
}

func reprOrPlaceholder(machine *vm.VM, v heap.Value) string {
	r, perr := machine.Repr(v)
	if perr != nil {
		return "<unreprable>"
	}
	return r
}

// --- handlers ----------------------------------------------------------

func (a *HTTPAPI) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.manager.CreateSession(req.ID, req.ExternalNames); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

func (a *HTTPAPI) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": a.manager.ListSessions()})
}

func (a *HTTPAPI) handleDestroySession(w http.ResponseWriter, r *http.Request) {
	if err := a.manager.DestroySession(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *HTTPAPI) handleDescribeSession(w http.ResponseWriter, r *http.Request) {
	desc, err := a.manager.DescribeSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"description": desc})
}

func (a *HTTPAPI) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := a.manager.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	inputs, err := jsonInputsToValues(s.VM, req.Inputs)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(s.VM, s.Execute(req.Code, inputs)))
}

func (a *HTTPAPI) handleResumeCall(w http.ResponseWriter, r *http.Request) {
	var req resumeCallRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := a.manager.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := jsonToValue(s.VM, req.Result)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(s.VM, s.ResumeCall(result)))
}

func (a *HTTPAPI) handleResumeCallError(w http.ResponseWriter, r *http.Request) {
	var req resumeCallErrorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := a.manager.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(s.VM, s.ResumeCallError(req.ClassName, req.Message)))
}

func (a *HTTPAPI) handleResumePending(w http.ResponseWriter, r *http.Request) {
	s, err := a.manager.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(s.VM, s.ResumePending()))
}

func (a *HTTPAPI) handleResumeFutures(w http.ResponseWriter, r *http.Request) {
	var req resumeFuturesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := a.manager.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	outcomes := make(map[uint64]vm.FutureOutcome, len(req.Outcomes))
	for idStr, fo := range req.Outcomes {
		id, perr := parseCallID(idStr)
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": perr.Error()})
			return
		}
		if fo.ClassName != "" {
			outcomes[id] = vm.FutureOutcome{Exc: s.VM.NewExceptionMsg(fo.ClassName, fo.Message)}
			continue
		}
		val, err := jsonToValue(s.VM, fo.Value)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		outcomes[id] = vm.FutureOutcome{Value: val}
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(s.VM, s.ResumeFutures(outcomes)))
}

func (a *HTTPAPI) handleListVariables(w http.ResponseWriter, r *http.Request) {
	s, err := a.manager.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"variables": s.ListVariables()})
}

func (a *HTTPAPI) handleGetVariable(w http.ResponseWriter, r *http.Request) {
	s, err := a.manager.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	repr, err := s.GetVariable(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"repr": repr})
}

func (a *HTTPAPI) handleDeleteVariable(w http.ResponseWriter, r *http.Request) {
	s, err := a.manager.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.DeleteVariable(r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *HTTPAPI) handleEvalVariable(w http.ResponseWriter, r *http.Request) {
	s, err := a.manager.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	repr, err := s.EvalVariable(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"repr": repr})
}

func (a *HTTPAPI) handleFork(w http.ResponseWriter, r *http.Request) {
	var req forkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.manager.Fork(r.PathValue("id"), req.NewID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.NewID})
}

func (a *HTTPAPI) handleRewind(w http.ResponseWriter, r *http.Request) {
	var req rewindRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := a.manager.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.Rewind(req.N); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *HTTPAPI) handleTransferVariable(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.manager.TransferVariable(r.PathValue("id"), req.TargetID, req.Name, req.TargetName); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *HTTPAPI) handleCallSession(w http.ResponseWriter, r *http.Request) {
	var req callSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	source := r.PathValue("id")
	out := a.manager.CallSession(source, req.TargetID, req.Code, req.TargetVar)
	s, err := a.manager.GetSession(source)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeResponse(s.VM, out))
}

func (a *HTTPAPI) handleSnapshotHeap(w http.ResponseWriter, r *http.Request) {
	s, err := a.manager.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.SnapshotHeap())
}

func (a *HTTPAPI) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	if err := a.manager.SaveSession(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *HTTPAPI) handleLoadSession(w http.ResponseWriter, r *http.Request) {
	if err := a.manager.LoadSession(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *HTTPAPI) handleRecentLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"logs": a.manager.RecentLogs()})
}

// --- plumbing ------------------------------------------------------------

func parseCallID(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func jsonInputsToValues(machine *vm.VM, inputs map[string]any) (map[string]heap.Value, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	out := make(map[string]heap.Value, len(inputs))
	for name, v := range inputs {
		val, err := jsonToValue(machine, v)
		if err != nil {
			return nil, err
		}
		out[name] = val
	}
	return out, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil {
		return true // all request bodies here have JSON-zero-value-compatible defaults
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return true // empty body is fine; every field just stays at its zero value
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a session package error to an HTTP status by concrete
// type (spec's operations surface typed errors; the HTTP boundary
// translates each to the status a REST client expects).
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch err.(type) {
	case *session.NotFoundError, *session.VariableNotFoundError:
		status = http.StatusNotFound
	case *session.AlreadyExistsError:
		status = http.StatusConflict
	case *session.DefaultProtectedError, *session.InvalidNameError,
		*session.RewindOutOfRangeError, *session.UnsupportedTransferError:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
