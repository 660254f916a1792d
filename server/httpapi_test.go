package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ouros-lang/ouros/server"
	"github.com/ouros-lang/ouros/session"
)

func testAPI(t *testing.T) *server.HTTPAPI {
	t.Helper()
	cfg := session.DefaultConfig()
	cfg.Storage.Dir = t.TempDir()
	return server.New(session.NewManager(cfg), nil)
}

func doJSON(t *testing.T, api *server.HTTPAPI, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func TestExecuteOverHTTP(t *testing.T) {
	api := testAPI(t)
	rec, body := doJSON(t, api, http.MethodPost, "/sessions/default/execute", map[string]any{
		"code":   "x * 2 + y",
		"inputs": map[string]any{"x": 5.0, "y": 3.0},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %v", rec.Code, body)
	}
	if body["complete"] != true {
		t.Fatalf("complete = %v, want true", body["complete"])
	}
	if body["result"] != "13" {
		t.Errorf("result = %v, want 13", body["result"])
	}
}

func TestCreateAndDestroySessionOverHTTP(t *testing.T) {
	api := testAPI(t)
	rec, _ := doJSON(t, api, http.MethodPost, "/sessions", map[string]any{"id": "extra"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d", rec.Code)
	}

	listRec, listBody := doJSON(t, api, http.MethodGet, "/sessions", nil)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list status = %d", listRec.Code)
	}
	ids, _ := listBody["sessions"].([]any)
	found := false
	for _, id := range ids {
		if id == "extra" {
			found = true
		}
	}
	if !found {
		t.Errorf("sessions = %v, want to contain extra", ids)
	}

	destroyRec, _ := doJSON(t, api, http.MethodDelete, "/sessions/extra", nil)
	if destroyRec.Code != http.StatusNoContent {
		t.Fatalf("destroy status = %d", destroyRec.Code)
	}
}

func TestDestroyDefaultSessionRejectedOverHTTP(t *testing.T) {
	api := testAPI(t)
	rec, body := doJSON(t, api, http.MethodDelete, "/sessions/default", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %v, want 400", rec.Code, body)
	}
}

func TestGetUnknownSessionReturnsNotFound(t *testing.T) {
	api := testAPI(t)
	rec, _ := doJSON(t, api, http.MethodGet, "/sessions/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestVariableLifecycleOverHTTP(t *testing.T) {
	api := testAPI(t)
	execRec, _ := doJSON(t, api, http.MethodPost, "/sessions/default/execute", map[string]any{"code": "a = 10"})
	if execRec.Code != http.StatusOK {
		t.Fatalf("execute status = %d", execRec.Code)
	}

	getRec, getBody := doJSON(t, api, http.MethodGet, "/sessions/default/variables/a", nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d", getRec.Code)
	}
	if getBody["repr"] != "10" {
		t.Errorf("repr = %v, want 10", getBody["repr"])
	}

	delRec, _ := doJSON(t, api, http.MethodDelete, "/sessions/default/variables/a", nil)
	if delRec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", delRec.Code)
	}

	missingRec, _ := doJSON(t, api, http.MethodGet, "/sessions/default/variables/a", nil)
	if missingRec.Code != http.StatusNotFound {
		t.Fatalf("status after delete = %d, want 404", missingRec.Code)
	}
}

func TestForkOverHTTP(t *testing.T) {
	api := testAPI(t)
	if rec, _ := doJSON(t, api, http.MethodPost, "/sessions/default/execute", map[string]any{"code": "n = 1"}); rec.Code != http.StatusOK {
		t.Fatalf("setup execute failed: %d", rec.Code)
	}

	forkRec, _ := doJSON(t, api, http.MethodPost, "/sessions/default/fork", map[string]any{"new_id": "forked"})
	if forkRec.Code != http.StatusCreated {
		t.Fatalf("fork status = %d", forkRec.Code)
	}

	getRec, getBody := doJSON(t, api, http.MethodGet, "/sessions/forked/variables/n", nil)
	if getRec.Code != http.StatusOK {
		t.Fatalf("forked get status = %d", getRec.Code)
	}
	if getBody["repr"] != "1" {
		t.Errorf("forked n = %v, want 1", getBody["repr"])
	}
}

func TestTransferVariableOverHTTP(t *testing.T) {
	api := testAPI(t)
	doJSON(t, api, http.MethodPost, "/sessions", map[string]any{"id": "src"})
	doJSON(t, api, http.MethodPost, "/sessions", map[string]any{"id": "dst"})
	doJSON(t, api, http.MethodPost, "/sessions/src/execute", map[string]any{"code": "v = 7"})

	rec, _ := doJSON(t, api, http.MethodPost, "/sessions/src/transfer", map[string]any{
		"target_id": "dst", "name": "v", "target_name": "w",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("transfer status = %d", rec.Code)
	}

	getRec, getBody := doJSON(t, api, http.MethodGet, "/sessions/dst/variables/w", nil)
	if getRec.Code != http.StatusOK || getBody["repr"] != "7" {
		t.Fatalf("dst w = %v (status %d), want 7", getBody["repr"], getRec.Code)
	}
}

func TestSnapshotHeapOverHTTP(t *testing.T) {
	api := testAPI(t)
	doJSON(t, api, http.MethodPost, "/sessions/default/execute", map[string]any{"code": "z = 5"})
	rec, body := doJSON(t, api, http.MethodGet, "/sessions/default/heap/snapshot", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	vars, _ := body["Variables"].(map[string]any)
	if vars["z"] != "5" {
		t.Errorf("snapshot variables = %v, want z=5", vars)
	}
}
