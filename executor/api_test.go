package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/flowgate-labs/flowgate-go/internal/artifacts"
	"github.com/flowgate-labs/flowgate-go/internal/authz"
	"github.com/flowgate-labs/flowgate-go/internal/command"
	"github.com/flowgate-labs/flowgate-go/internal/domain"
	"github.com/flowgate-labs/flowgate-go/internal/engine"
	"github.com/flowgate-labs/flowgate-go/internal/platform/auth"
	"github.com/flowgate-labs/flowgate-go/internal/query"
	"github.com/flowgate-labs/flowgate-go/internal/repo/static"
)

const testCatalog = `
projects:
  - id: proj-1
    name: marketing
    permissions:
      alice: [READ, EXECUTE]
      bob: [READ]
    flows:
      - id: daily
        success_emails: [owners@example.com]
        failure_emails: [oncall@example.com]
        jobs:
          - id: extract
            level: 0
            out_nodes: [load]
          - id: load
            level: 1
schedules:
  - project_id: proj-1
    flow_name: daily
    next_run_time: 1700000000000
`

type memArtifacts struct {
	execLogs map[string]string
}

func (m *memArtifacts) ReadExecutionLog(ctx context.Context, executionID string, offset, length int64) (artifacts.Chunk, bool, error) {
	content := m.execLogs[executionID]
	if content == "" || offset >= int64(len(content)) || length <= 0 {
		return artifacts.Chunk{}, false, nil
	}
	end := offset + length
	if end > int64(len(content)) {
		end = int64(len(content))
	}
	data := content[offset:end]
	return artifacts.Chunk{Offset: offset, Length: int64(len(data)), Data: data}, true, nil
}

func (m *memArtifacts) ReadJobLog(ctx context.Context, executionID, jobID string, attempt int, offset, length int64) (artifacts.Chunk, bool, error) {
	return artifacts.Chunk{}, false, nil
}

func (m *memArtifacts) ReadJobMetadata(ctx context.Context, executionID, jobID string, attempt int, offset, length int64) (artifacts.Chunk, bool, error) {
	return artifacts.Chunk{}, false, nil
}

func newTestHandler(t *testing.T) (http.Handler, *engine.InMemory) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	catalog, err := static.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	registry := engine.NewInMemory()

	gate, err := authz.NewGate(catalog)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	queries, err := query.NewService(registry, gate, catalog, catalog)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	dispatcher, err := command.NewDispatcher(registry, gate, catalog, nil, logger)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	reader, err := artifacts.NewService(registry, gate, &memArtifacts{
		execLogs: map[string]string{"exec-1": "log line one\nlog line two\n"},
	})
	if err != nil {
		t.Fatalf("artifacts.NewService: %v", err)
	}

	mux := http.NewServeMux()
	api := newExecutorAPI(logger, queries, dispatcher, reader)
	api.register(mux)

	authenticator := auth.NewDevAuthenticator(auth.Config{
		Mode:       auth.ModeDev,
		DevSubject: "alice",
	})
	return auth.Middleware{
		Logger:        logger,
		Authenticator: authenticator,
	}.Wrap(mux), registry
}

func seedExecution(t *testing.T, registry *engine.InMemory) *domain.Execution {
	t.Helper()
	exec := &domain.Execution{
		ID:         "exec-1",
		ProjectID:  "proj-1",
		FlowID:     "daily",
		SubmitUser: "alice",
		Status:     domain.StatusRunning,
		SubmitTime: 100,
		StartTime:  110,
		UpdateTime: 150,
		Nodes: []*domain.Node{
			{JobID: "extract", Level: 0, Status: domain.StatusSucceeded, StartTime: 110, EndTime: 120, UpdateTime: 120, OutNodes: []string{"load"}},
			{JobID: "load", Level: 1, Status: domain.StatusRunning, StartTime: 130, UpdateTime: 150},
		},
	}
	registry.Add(exec)
	return exec
}

func doRequest(t *testing.T, handler http.Handler, method, target, user string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if user != "" {
		req.Header.Set("X-Flowgate-User", user)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHandleFetchExecution(t *testing.T) {
	handler, registry := newTestHandler(t)
	seedExecution(t, registry)

	rec := doRequest(t, handler, http.MethodGet, "/executions/exec-1", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["execid"] != "exec-1" {
		t.Fatalf("execid=%v, want exec-1", body["execid"])
	}
	nodes, ok := body["nodes"].([]any)
	if !ok || len(nodes) != 2 {
		t.Fatalf("nodes=%v, want 2 entries", body["nodes"])
	}
	edges, ok := body["edges"].([]any)
	if !ok || len(edges) != 1 {
		t.Fatalf("edges=%v, want 1 entry", body["edges"])
	}
}

func TestHandleFetchExecutionNotFound(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/executions/exec-ghost", "alice", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
	body := decodeBody(t, rec)
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "exec-ghost") {
		t.Fatalf("error=%q, want the execution named", msg)
	}
}

func TestHandleFetchExecutionForbidden(t *testing.T) {
	handler, registry := newTestHandler(t)
	seedExecution(t, registry)

	rec := doRequest(t, handler, http.MethodGet, "/executions/exec-1", "eve", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d, want 403 (body=%s)", rec.Code, rec.Body.String())
	}
}

func TestHandleFetchUpdate(t *testing.T) {
	handler, registry := newTestHandler(t)
	seedExecution(t, registry)

	rec := doRequest(t, handler, http.MethodGet, "/executions/exec-1/update?lastUpdateTime=120", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	nodes, _ := body["nodes"].([]any)
	if len(nodes) != 1 {
		t.Fatalf("nodes=%v, want only the node updated after 120", body["nodes"])
	}
	node := nodes[0].(map[string]any)
	if node["id"] != "load" {
		t.Fatalf("node id=%v, want load", node["id"])
	}
	if _, present := node["pastAttempts"]; present {
		t.Fatalf("pastAttempts present for a first-attempt node: %v", node)
	}
}

func TestHandleFetchUpdateBadWatermark(t *testing.T) {
	handler, registry := newTestHandler(t)
	seedExecution(t, registry)

	rec := doRequest(t, handler, http.MethodGet, "/executions/exec-1/update?lastUpdateTime=abc", "alice", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
}

func TestHandleCancel(t *testing.T) {
	handler, registry := newTestHandler(t)
	exec := seedExecution(t, registry)

	rec := doRequest(t, handler, http.MethodPost, "/executions/exec-1/cancel", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
	if exec.Status != domain.StatusKilled {
		t.Fatalf("Status=%q, want killed", exec.Status)
	}
}

func TestHandleCancelRequiresExecute(t *testing.T) {
	handler, registry := newTestHandler(t)
	seedExecution(t, registry)

	rec := doRequest(t, handler, http.MethodPost, "/executions/exec-1/cancel", "bob", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d, want 403 (body=%s)", rec.Code, rec.Body.String())
	}
}

func TestHandleRetryFinishedExecution(t *testing.T) {
	handler, registry := newTestHandler(t)
	exec := seedExecution(t, registry)
	exec.Status = domain.StatusFailed

	rec := doRequest(t, handler, http.MethodPost, "/executions/exec-1/retry", "alice", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status=%d, want 409 (body=%s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	msg, _ := body["error"].(string)
	if !strings.Contains(msg, "already finished") {
		t.Fatalf("error=%q, want already-finished message", msg)
	}
}

func TestHandleSubmit(t *testing.T) {
	handler, registry := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/projects/marketing/flows/daily/executions", "alice",
		`{"failureAction":"cancelImmediately","flowParam":{"date":"2024-01-01"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	execID, _ := body["execid"].(string)
	if execID == "" {
		t.Fatal("execid missing from submit response")
	}
	if body["flow"] != "daily" {
		t.Fatalf("flow=%v, want daily", body["flow"])
	}

	exec, err := registry.GetExecution(context.Background(), execID)
	if err != nil || exec == nil {
		t.Fatalf("GetExecution(%s)=%v,%v", execID, exec, err)
	}
	if exec.Options.FailureAction != domain.FailureActionCancelAll {
		t.Fatalf("FailureAction=%v, want cancel all", exec.Options.FailureAction)
	}
	if len(exec.Options.FailureEmails) != 1 || exec.Options.FailureEmails[0] != "oncall@example.com" {
		t.Fatalf("FailureEmails=%v, want backfilled from flow", exec.Options.FailureEmails)
	}
}

func TestHandleSubmitEmptyBody(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/projects/marketing/flows/daily/executions", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
}

func TestHandleSubmitBadFailureAction(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/projects/marketing/flows/daily/executions", "alice",
		`{"failureAction":"explode"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400 (body=%s)", rec.Code, rec.Body.String())
	}
}

func TestHandleSubmitUnknownFlow(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/projects/marketing/flows/nightly/executions", "alice", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404 (body=%s)", rec.Code, rec.Body.String())
	}
}

func TestHandleFlowInfo(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/projects/marketing/flows/daily/info", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["scheduled"] != float64(1700000000000) {
		t.Fatalf("scheduled=%v, want 1700000000000", body["scheduled"])
	}
}

func TestHandleRunningOmitsEmptyList(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/projects/marketing/flows/daily/running", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if _, present := body["execIds"]; present {
		t.Fatalf("execIds present for an idle flow: %v", body)
	}
}

func TestHandleRunningListsActiveExecutions(t *testing.T) {
	handler, registry := newTestHandler(t)
	seedExecution(t, registry)

	rec := doRequest(t, handler, http.MethodGet, "/projects/marketing/flows/daily/running", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	ids, ok := body["execIds"].([]any)
	if !ok || len(ids) != 1 || ids[0] != "exec-1" {
		t.Fatalf("execIds=%v, want [exec-1]", body["execIds"])
	}
}

func TestHandleExecutionLogPagination(t *testing.T) {
	handler, registry := newTestHandler(t)
	seedExecution(t, registry)

	rec := doRequest(t, handler, http.MethodGet, "/executions/exec-1/logs?offset=0&length=8", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["data"] != "log line" {
		t.Fatalf("data=%v, want first 8 bytes", body["data"])
	}
	if body["length"] != float64(8) {
		t.Fatalf("length=%v, want 8", body["length"])
	}
}

func TestHandleExecutionLogPastEnd(t *testing.T) {
	handler, registry := newTestHandler(t)
	seedExecution(t, registry)

	rec := doRequest(t, handler, http.MethodGet, "/executions/exec-1/logs?offset=5000&length=100", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["offset"] != float64(5000) || body["length"] != float64(0) || body["data"] != "" {
		t.Fatalf("body=%v, want offset echoed with no data", body)
	}
}

func TestHandleJobLogUnknownJob(t *testing.T) {
	handler, registry := newTestHandler(t)
	seedExecution(t, registry)

	rec := doRequest(t, handler, http.MethodGet, "/executions/exec-1/jobs/cleanup/logs?length=10", "alice", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404 (body=%s)", rec.Code, rec.Body.String())
	}
}

func TestHandleExecutionInfo(t *testing.T) {
	handler, registry := newTestHandler(t)
	seedExecution(t, registry)

	rec := doRequest(t, handler, http.MethodGet, "/executions/exec-1/info", "alice", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200 (body=%s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	nodeStatus, ok := body["nodeStatus"].(map[string]any)
	if !ok {
		t.Fatalf("nodeStatus=%v, want a map", body["nodeStatus"])
	}
	if nodeStatus["load"] != "running" {
		t.Fatalf("nodeStatus[load]=%v, want running", nodeStatus["load"])
	}
	if body["failureAction"] != "finishCurrent" {
		t.Fatalf("failureAction=%v, want finishCurrent", body["failureAction"])
	}
}
