package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/flowgate-labs/flowgate-go/internal/artifacts"
	"github.com/flowgate-labs/flowgate-go/internal/command"
	"github.com/flowgate-labs/flowgate-go/internal/domain"
	"github.com/flowgate-labs/flowgate-go/internal/fault"
	"github.com/flowgate-labs/flowgate-go/internal/platform/auth"
	"github.com/flowgate-labs/flowgate-go/internal/query"
	"github.com/flowgate-labs/flowgate-go/internal/state"
)

type executorAPI struct {
	logger     *slog.Logger
	queries    *query.Service
	dispatcher *command.Dispatcher
	reader     *artifacts.Service
}

func newExecutorAPI(logger *slog.Logger, queries *query.Service, dispatcher *command.Dispatcher, reader *artifacts.Service) *executorAPI {
	return &executorAPI{
		logger:     logger,
		queries:    queries,
		dispatcher: dispatcher,
		reader:     reader,
	}
}

func (api *executorAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /executions/{exec_id}", api.handleFetchExecution)
	mux.HandleFunc("GET /executions/{exec_id}/update", api.handleFetchUpdate)
	mux.HandleFunc("GET /executions/{exec_id}/info", api.handleExecutionInfo)
	mux.HandleFunc("GET /executions/{exec_id}/logs", api.handleExecutionLog)
	mux.HandleFunc("GET /executions/{exec_id}/jobs/{job_id}/logs", api.handleJobLog)
	mux.HandleFunc("GET /executions/{exec_id}/jobs/{job_id}/metadata", api.handleJobMetadata)

	mux.HandleFunc("POST /executions/{exec_id}/cancel", api.handleCancel)
	mux.HandleFunc("POST /executions/{exec_id}/pause", api.handlePause)
	mux.HandleFunc("POST /executions/{exec_id}/resume", api.handleResume)
	mux.HandleFunc("POST /executions/{exec_id}/retry", api.handleRetryFailed)

	mux.HandleFunc("POST /projects/{project}/flows/{flow_id}/executions", api.handleSubmit)
	mux.HandleFunc("GET /projects/{project}/flows/{flow_id}/info", api.handleFlowInfo)
	mux.HandleFunc("GET /projects/{project}/flows/{flow_id}/running", api.handleRunning)
}

type snapshotResponse struct {
	ExecID string `json:"execid"`
	state.Snapshot
}

func (api *executorAPI) handleFetchExecution(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		api.writeError(w, r, errors.New("missing identity"))
		return
	}
	execID := r.PathValue("exec_id")

	snapshot, err := api.queries.Fetch(r.Context(), execID, user)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{ExecID: execID, Snapshot: snapshot})
}

type deltaResponse struct {
	ExecID string `json:"execid"`
	state.Delta
}

func (api *executorAPI) handleFetchUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		api.writeError(w, r, errors.New("missing identity"))
		return
	}
	execID := r.PathValue("exec_id")

	watermark, err := queryInt64(r, "lastUpdateTime", -1)
	if err != nil {
		api.writeError(w, r, fault.ClientInput("invalid lastUpdateTime"))
		return
	}

	delta, err := api.queries.FetchUpdate(r.Context(), execID, watermark, user)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deltaResponse{ExecID: execID, Delta: delta})
}

func (api *executorAPI) handleExecutionInfo(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		api.writeError(w, r, errors.New("missing identity"))
		return
	}
	info, err := api.queries.ExecutionInfo(r.Context(), r.PathValue("exec_id"), user)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (api *executorAPI) handleExecutionLog(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		api.writeError(w, r, errors.New("missing identity"))
		return
	}
	offset, length, err := pageParams(r)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	chunk, err := api.reader.ExecutionLog(r.Context(), r.PathValue("exec_id"), user, offset, length)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}

func (api *executorAPI) handleJobLog(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		api.writeError(w, r, errors.New("missing identity"))
		return
	}
	offset, length, err := pageParams(r)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	attempt, err := queryInt(r, "attempt", -1)
	if err != nil {
		api.writeError(w, r, fault.ClientInput("invalid attempt"))
		return
	}
	chunk, err := api.reader.JobLog(r.Context(), r.PathValue("exec_id"), r.PathValue("job_id"), user, attempt, offset, length)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}

func (api *executorAPI) handleJobMetadata(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		api.writeError(w, r, errors.New("missing identity"))
		return
	}
	offset, length, err := pageParams(r)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	attempt, err := queryInt(r, "attempt", -1)
	if err != nil {
		api.writeError(w, r, fault.ClientInput("invalid attempt"))
		return
	}
	chunk, err := api.reader.JobMetadata(r.Context(), r.PathValue("exec_id"), r.PathValue("job_id"), user, attempt, offset, length)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chunk)
}

func (api *executorAPI) handleCancel(w http.ResponseWriter, r *http.Request) {
	api.control(w, r, func(execID, user string) command.Command {
		return command.Cancel{ExecutionID: execID, Actor: user}
	})
}

func (api *executorAPI) handlePause(w http.ResponseWriter, r *http.Request) {
	api.control(w, r, func(execID, user string) command.Command {
		return command.Pause{ExecutionID: execID, Actor: user}
	})
}

func (api *executorAPI) handleResume(w http.ResponseWriter, r *http.Request) {
	api.control(w, r, func(execID, user string) command.Command {
		return command.Resume{ExecutionID: execID, Actor: user}
	})
}

func (api *executorAPI) handleRetryFailed(w http.ResponseWriter, r *http.Request) {
	api.control(w, r, func(execID, user string) command.Command {
		return command.RetryFailed{ExecutionID: execID, Actor: user}
	})
}

func (api *executorAPI) control(w http.ResponseWriter, r *http.Request, build func(execID, user string) command.Command) {
	user, ok := requestUser(r)
	if !ok {
		api.writeError(w, r, errors.New("missing identity"))
		return
	}
	result, err := api.dispatcher.Dispatch(r.Context(), build(r.PathValue("exec_id"), user))
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"execid": result.ExecutionID})
}

type submitRequest struct {
	SuccessEmails         []string          `json:"successEmails"`
	FailureEmails         []string          `json:"failureEmails"`
	SuccessEmailsOverride bool              `json:"successEmailsOverride"`
	FailureEmailsOverride bool              `json:"failureEmailsOverride"`
	FailureAction         string            `json:"failureAction"`
	NotifyFailureFirst    bool              `json:"notifyFailureFirst"`
	NotifyFailureLast     bool              `json:"notifyFailureLast"`
	FlowParameters        map[string]string `json:"flowParam"`
	ConcurrentOption      string            `json:"concurrentOptions"`
	PipelineLevel         int               `json:"pipelineLevel"`
	PipelineExecution     string            `json:"pipelineExecution"`
	QueueLevel            int               `json:"queueLevel"`
	Disabled              []string          `json:"disabled"`
}

type submitResponse struct {
	ExecID  string `json:"execid"`
	Flow    string `json:"flow"`
	Message string `json:"message,omitempty"`
}

func (api *executorAPI) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		api.writeError(w, r, errors.New("missing identity"))
		return
	}

	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, fault.ClientInput("invalid request body"))
		return
	}

	failureAction, err := domain.ParseFailureAction(req.FailureAction)
	if err != nil {
		api.writeError(w, r, fault.ClientInput("invalid failureAction %q", req.FailureAction))
		return
	}

	cmd := command.Submit{
		ProjectName: r.PathValue("project"),
		FlowID:      r.PathValue("flow_id"),
		Actor:       user,
		Options: domain.ExecutionOptions{
			SuccessEmails:         req.SuccessEmails,
			FailureEmails:         req.FailureEmails,
			SuccessEmailsOverride: req.SuccessEmailsOverride,
			FailureEmailsOverride: req.FailureEmailsOverride,
			FailureAction:         failureAction,
			NotifyOnFirstFailure:  req.NotifyFailureFirst,
			NotifyOnLastFailure:   req.NotifyFailureLast,
			FlowParameters:        req.FlowParameters,
			ConcurrentOption:      req.ConcurrentOption,
			PipelineLevel:         req.PipelineLevel,
			PipelineExecutionID:   req.PipelineExecution,
			QueueLevel:            req.QueueLevel,
			DisabledJobs:          req.Disabled,
		},
	}

	result, err := api.dispatcher.Dispatch(r.Context(), cmd)
	if err != nil {
		// A rejected submission still reports the id the engine assigned.
		api.writeErrorWithBody(w, r, err, map[string]any{"execid": result.ExecutionID, "flow": result.FlowID})
		return
	}
	writeJSON(w, http.StatusOK, submitResponse{
		ExecID:  result.ExecutionID,
		Flow:    result.FlowID,
		Message: result.Message,
	})
}

func (api *executorAPI) handleFlowInfo(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		api.writeError(w, r, errors.New("missing identity"))
		return
	}
	info, err := api.queries.FlowInfo(r.Context(), r.PathValue("project"), r.PathValue("flow_id"), user)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type runningResponse struct {
	ExecIDs []string `json:"execIds,omitempty"`
}

func (api *executorAPI) handleRunning(w http.ResponseWriter, r *http.Request) {
	user, ok := requestUser(r)
	if !ok {
		api.writeError(w, r, errors.New("missing identity"))
		return
	}
	ids, err := api.queries.Running(r.Context(), r.PathValue("project"), r.PathValue("flow_id"), user)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, runningResponse{ExecIDs: ids})
}

func requestUser(r *http.Request) (string, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.Subject) == "" {
		return "", false
	}
	return identity.Subject, true
}

func pageParams(r *http.Request) (offset, length int64, err error) {
	offset, err = queryInt64(r, "offset", 0)
	if err != nil {
		return 0, 0, fault.ClientInput("invalid offset")
	}
	length, err = queryInt64(r, "length", 0)
	if err != nil {
		return 0, 0, fault.ClientInput("invalid length")
	}
	if offset < 0 || length < 0 {
		return 0, 0, fault.ClientInput("offset and length must be non-negative")
	}
	return offset, length, nil
}

func queryInt64(r *http.Request, name string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func statusForKind(kind fault.Kind) int {
	switch kind {
	case fault.KindNotFound:
		return http.StatusNotFound
	case fault.KindPermissionDenied:
		return http.StatusForbidden
	case fault.KindPreconditionFailed:
		return http.StatusConflict
	case fault.KindClientInput:
		return http.StatusBadRequest
	case fault.KindEngine:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders every failure as a single "error" message string with
// a status derived from its classification.
func (api *executorAPI) writeError(w http.ResponseWriter, r *http.Request, err error) {
	api.writeErrorWithBody(w, r, err, nil)
}

func (api *executorAPI) writeErrorWithBody(w http.ResponseWriter, r *http.Request, err error, extra map[string]any) {
	kind := fault.KindOf(err)
	status := statusForKind(kind)
	msg := err.Error()
	if kind == fault.KindUnknown {
		api.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		msg = "internal server error"
	}

	body := map[string]any{"error": msg}
	for k, v := range extra {
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		body[k] = v
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

// decodeJSON fills dst from the request body. An empty body is valid and
// leaves dst at its zero value.
func decodeJSON(r *http.Request, dst any) error {
	defer func() { _, _ = io.Copy(io.Discard, r.Body) }()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}
