package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flowgate-labs/flowgate-go/internal/domain"
)

// Client talks to the engine's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("engine base url is required")
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type executionPayload struct {
	ExecutionID string         `json:"execid"`
	ProjectID   string         `json:"projectId"`
	FlowID      string         `json:"flowId"`
	SubmitUser  string         `json:"submitUser"`
	ProxyUsers  []string       `json:"proxyUsers,omitempty"`
	Status      string         `json:"status"`
	SubmitTime  int64          `json:"submitTime"`
	StartTime   int64          `json:"startTime"`
	EndTime     int64          `json:"endTime"`
	UpdateTime  int64          `json:"updateTime"`
	Options     optionsPayload `json:"options"`
	Nodes       []nodePayload  `json:"nodes"`
}

type optionsPayload struct {
	SuccessEmails         []string          `json:"successEmails,omitempty"`
	FailureEmails         []string          `json:"failureEmails,omitempty"`
	SuccessEmailsOverride bool              `json:"successEmailsOverride"`
	FailureEmailsOverride bool              `json:"failureEmailsOverride"`
	FailureAction         string            `json:"failureAction"`
	NotifyOnFirstFailure  bool              `json:"notifyFailureFirst"`
	NotifyOnLastFailure   bool              `json:"notifyFailureLast"`
	FlowParameters        map[string]string `json:"flowParam,omitempty"`
	ConcurrentOption      string            `json:"concurrentOption,omitempty"`
	PipelineLevel         int               `json:"pipelineLevel,omitempty"`
	PipelineExecutionID   string            `json:"pipelineExecution,omitempty"`
	QueueLevel            int               `json:"queueLevel,omitempty"`
	DisabledJobs          []string          `json:"disabled,omitempty"`
}

type nodePayload struct {
	JobID        string           `json:"id"`
	Level        int              `json:"level"`
	Status       string           `json:"status"`
	StartTime    int64            `json:"startTime"`
	EndTime      int64            `json:"endTime"`
	UpdateTime   int64            `json:"updateTime"`
	Attempt      int              `json:"attempt"`
	PastAttempts []domain.Attempt `json:"pastAttempts,omitempty"`
	OutNodes     []string         `json:"outNodes,omitempty"`
}

func (c *Client) GetExecution(ctx context.Context, executionID string) (*domain.Execution, error) {
	var payload executionPayload
	status, err := c.doJSON(ctx, http.MethodGet, "/executions/"+url.PathEscape(executionID), nil, &payload)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("engine returned status %d", status)
	}
	return decodeExecution(payload), nil
}

func (c *Client) GetRunning(ctx context.Context, projectID, flowID string) ([]string, error) {
	q := url.Values{}
	q.Set("project", projectID)
	q.Set("flow", flowID)
	var payload struct {
		ExecutionIDs []string `json:"execIds"`
	}
	status, err := c.doJSON(ctx, http.MethodGet, "/executions/running?"+q.Encode(), nil, &payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("engine returned status %d", status)
	}
	return payload.ExecutionIDs, nil
}

func (c *Client) Submit(ctx context.Context, exec *domain.Execution) (string, error) {
	body := encodeExecution(exec)
	var payload struct {
		ExecutionID string `json:"execid"`
		Message     string `json:"message"`
		Error       string `json:"error"`
	}
	status, err := c.doJSON(ctx, http.MethodPost, "/executions", body, &payload)
	if err != nil {
		return "", err
	}
	if payload.ExecutionID != "" {
		exec.ID = payload.ExecutionID
	}
	if payload.Error != "" {
		return "", errors.New(payload.Error)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", fmt.Errorf("engine returned status %d", status)
	}
	return payload.Message, nil
}

func (c *Client) Cancel(ctx context.Context, exec *domain.Execution, actor string) error {
	return c.command(ctx, exec.ID, "cancel", actor)
}

func (c *Client) Pause(ctx context.Context, exec *domain.Execution, actor string) error {
	return c.command(ctx, exec.ID, "pause", actor)
}

func (c *Client) Resume(ctx context.Context, exec *domain.Execution, actor string) error {
	return c.command(ctx, exec.ID, "resume", actor)
}

func (c *Client) RetryFailures(ctx context.Context, exec *domain.Execution, actor string) error {
	return c.command(ctx, exec.ID, "retry", actor)
}

func (c *Client) command(ctx context.Context, executionID, name, actor string) error {
	body := map[string]string{"actor": actor}
	var payload struct {
		Error string `json:"error"`
	}
	status, err := c.doJSON(ctx, http.MethodPost, "/executions/"+url.PathEscape(executionID)+"/"+name, body, &payload)
	if err != nil {
		return err
	}
	if payload.Error != "" {
		return errors.New(payload.Error)
	}
	if status != http.StatusOK {
		return fmt.Errorf("engine returned status %d", status)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, dst any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if dst != nil && resp.StatusCode != http.StatusNotFound {
		if err := json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(dst); err != nil && err != io.EOF {
			return resp.StatusCode, fmt.Errorf("decode engine response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func decodeExecution(payload executionPayload) *domain.Execution {
	action, _ := domain.ParseFailureAction(payload.Options.FailureAction)
	exec := &domain.Execution{
		ID:         payload.ExecutionID,
		ProjectID:  payload.ProjectID,
		FlowID:     payload.FlowID,
		SubmitUser: payload.SubmitUser,
		ProxyUsers: payload.ProxyUsers,
		Status:     domain.NormalizeStatus(payload.Status),
		SubmitTime: payload.SubmitTime,
		StartTime:  payload.StartTime,
		EndTime:    payload.EndTime,
		UpdateTime: payload.UpdateTime,
		Options: domain.ExecutionOptions{
			SuccessEmails:         payload.Options.SuccessEmails,
			FailureEmails:         payload.Options.FailureEmails,
			SuccessEmailsOverride: payload.Options.SuccessEmailsOverride,
			FailureEmailsOverride: payload.Options.FailureEmailsOverride,
			FailureAction:         action,
			NotifyOnFirstFailure:  payload.Options.NotifyOnFirstFailure,
			NotifyOnLastFailure:   payload.Options.NotifyOnLastFailure,
			FlowParameters:        payload.Options.FlowParameters,
			ConcurrentOption:      payload.Options.ConcurrentOption,
			PipelineLevel:         payload.Options.PipelineLevel,
			PipelineExecutionID:   payload.Options.PipelineExecutionID,
			QueueLevel:            payload.Options.QueueLevel,
			DisabledJobs:          payload.Options.DisabledJobs,
		},
	}
	for _, n := range payload.Nodes {
		node := &domain.Node{
			JobID:      n.JobID,
			Level:      n.Level,
			Status:     domain.NormalizeStatus(n.Status),
			StartTime:  n.StartTime,
			EndTime:    n.EndTime,
			UpdateTime: n.UpdateTime,
			Attempt:    n.Attempt,
			OutNodes:   n.OutNodes,
		}
		for _, attempt := range n.PastAttempts {
			node.PastAttempts = node.PastAttempts.Append(attempt)
		}
		exec.Nodes = append(exec.Nodes, node)
	}
	return exec
}

func encodeExecution(exec *domain.Execution) executionPayload {
	payload := executionPayload{
		ExecutionID: exec.ID,
		ProjectID:   exec.ProjectID,
		FlowID:      exec.FlowID,
		SubmitUser:  exec.SubmitUser,
		ProxyUsers:  exec.ProxyUsers,
		Status:      string(exec.Status),
		SubmitTime:  exec.SubmitTime,
		StartTime:   exec.StartTime,
		EndTime:     exec.EndTime,
		UpdateTime:  exec.UpdateTime,
		Options: optionsPayload{
			SuccessEmails:         exec.Options.SuccessEmails,
			FailureEmails:         exec.Options.FailureEmails,
			SuccessEmailsOverride: exec.Options.SuccessEmailsOverride,
			FailureEmailsOverride: exec.Options.FailureEmailsOverride,
			FailureAction:         exec.Options.FailureAction.Token(),
			NotifyOnFirstFailure:  exec.Options.NotifyOnFirstFailure,
			NotifyOnLastFailure:   exec.Options.NotifyOnLastFailure,
			FlowParameters:        exec.Options.FlowParameters,
			ConcurrentOption:      exec.Options.ConcurrentOption,
			PipelineLevel:         exec.Options.PipelineLevel,
			PipelineExecutionID:   exec.Options.PipelineExecutionID,
			QueueLevel:            exec.Options.QueueLevel,
			DisabledJobs:          exec.Options.DisabledJobs,
		},
	}
	for _, node := range exec.Nodes {
		payload.Nodes = append(payload.Nodes, nodePayload{
			JobID:        node.JobID,
			Level:        node.Level,
			Status:       string(node.Status),
			StartTime:    node.StartTime,
			EndTime:      node.EndTime,
			UpdateTime:   node.UpdateTime,
			Attempt:      node.Attempt,
			PastAttempts: node.PastAttempts.Records(),
			OutNodes:     node.OutNodes,
		})
	}
	return payload
}
