// Package tasks runs access workflows: it resolves what was asked for,
// refuses duplicates of open tasks and otherwise creates a grant or revoke task.
package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"signaccess/internal/access/metrics"
	"signaccess/internal/access/tracer"
	"signaccess/internal/access/transport"
	"signaccess/pkg/platform/audit"
)

// TasksSearchPath is the open-task search endpoint, relative to the tenant URL.
const TasksSearchPath = "api/v1/search/tasks"

// DefaultTaskPath is the path segment of task reference URLs.
const DefaultTaskPath = "task"

// Config holds the task endpoints.
type Config struct {
	GrantEndpoint  string
	RevokeEndpoint string
	// TaskPath is the segment between the tenant URL and a task id in
	// reference URLs. Defaults to DefaultTaskPath.
	TaskPath string
}

// Orchestrator sequences one workflow run: token, entitlement, subject,
// duplicate check, creation. Runs are independent and share only the token
// source.
type Orchestrator struct {
	client    *transport.Client
	tokens    TokenSource
	directory Resolver
	cfg       Config

	verbose atomic.Bool
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	audit   *audit.Logger

	inflight sync.WaitGroup
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer sets the tracer for workflow spans.
func WithTracer(t tracer.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = t
	}
}

// WithAudit records every workflow outcome.
func WithAudit(l *audit.Logger) Option {
	return func(o *Orchestrator) {
		o.audit = l
	}
}

// WithVerbose sets the initial verbose mode.
func WithVerbose(v bool) Option {
	return func(o *Orchestrator) {
		o.verbose.Store(v)
	}
}

// New creates an Orchestrator. Both task endpoints are required.
func New(client *transport.Client, tokens TokenSource, resolver Resolver, cfg Config, opts ...Option) (*Orchestrator, error) {
	if client == nil || tokens == nil || resolver == nil {
		return nil, transport.NewError(transport.CategoryInvalidConfig, "tasks.new", "client, token source and resolver are required", nil)
	}
	if cfg.GrantEndpoint == "" || cfg.RevokeEndpoint == "" {
		return nil, transport.NewError(transport.CategoryInvalidConfig, "tasks.new", "grant and revoke endpoints are required", nil)
	}
	if cfg.TaskPath == "" {
		cfg.TaskPath = DefaultTaskPath
	}
	cfg.TaskPath = strings.Trim(cfg.TaskPath, "/")

	o := &Orchestrator{
		client:    client,
		tokens:    tokens,
		directory: resolver,
		cfg:       cfg,
		logger:    slog.New(slog.DiscardHandler),
		tracer:    tracer.NewNoop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// SetVerbose toggles verbose mode, which adds raw API error bodies to messages.
func (o *Orchestrator) SetVerbose(v bool) {
	o.verbose.Store(v)
}

// Verbose reports whether verbose mode is on.
func (o *Orchestrator) Verbose() bool {
	return o.verbose.Load()
}

// TaskURL returns the reference URL for a task id.
func (o *Orchestrator) TaskURL(id string) string {
	return o.client.BaseURL() + "/" + o.cfg.TaskPath + "/" + url.PathEscape(id)
}

// SearchOpenTasks lists open tasks for the subject and entitlement.
func (o *Orchestrator) SearchOpenTasks(ctx context.Context, token, subjectID, entitlementID string) (found []TaskDescriptor, err error) {
	const op = "search.tasks"
	ctx, span := o.tracer.Start(ctx, tracer.SpanSearchTasks)
	defer func() {
		span.SetAttributes(tracer.Int64(tracer.AttrOpenTasks, int64(len(found))))
		span.End(err)
	}()

	resp, err := o.client.PostJSON(ctx, op, TasksSearchPath, token, taskSearchRequest{
		SubjectIDs:        []string{subjectID},
		AppEntitlementIDs: []string{entitlementID},
		TaskStates:        []string{taskStateOpen},
		PageSize:          searchPageSize,
	})
	if err != nil {
		return nil, err
	}
	out, err := transport.Decode[taskSearchResponse](op, resp)
	if err != nil {
		return nil, err
	}

	found = make([]TaskDescriptor, 0, len(out.List))
	for _, item := range out.List {
		// An open task without an id still blocks creation; it just has no URL.
		desc := TaskDescriptor{
			DisplayName: item.Task.DisplayName,
			Kind:        item.Task.kind(),
		}
		id := string(item.Task.NumericID)
		if id == "" {
			id = string(item.Task.ID)
		}
		if id != "" {
			desc.URL = o.TaskURL(id)
		}
		found = append(found, desc)
	}
	return found, nil
}

// CreateTask submits one task and folds any failure into the result. A 401
// invalidates the cached token once; nothing is retried.
func (o *Orchestrator) CreateTask(ctx context.Context, token string, req TaskRequest) WorkflowResult {
	taskURL, err := o.createTask(ctx, token, req)
	if err != nil {
		return o.failure(ctx, err)
	}
	return WorkflowResult{Success: true, Message: MessageSubmitted, TaskURL: taskURL, Outcome: OutcomeCreated}
}

func (o *Orchestrator) createTask(ctx context.Context, token string, req TaskRequest) (taskURL string, err error) {
	ctx, span := o.tracer.Start(ctx, tracer.SpanCreateTask, tracer.String(tracer.AttrKind, string(req.Kind)))
	defer func() { span.End(err) }()

	var endpoint, op string
	switch req.Kind {
	case KindGrant:
		endpoint, op = o.cfg.GrantEndpoint, "task.grant"
	case KindRevoke:
		endpoint, op = o.cfg.RevokeEndpoint, "task.revoke"
	default:
		return "", transport.NewError(transport.CategoryInvalidConfig, "task.create", "unsupported task kind "+string(req.Kind), nil)
	}

	body := map[string]any{
		"appId":            req.Entitlement.AppID,
		"appEntitlementId": req.Entitlement.EntitlementID,
		req.Subject.Field:  req.Subject.ID,
		"description":      Description(req.Kind, req.Requester.Username),
	}
	if req.Kind == KindGrant {
		data := requestData{Source: requestSource, PlayerName: req.Requester.Username}
		if req.Requester.PlayerID != uuid.Nil {
			data.PlayerUUID = req.Requester.PlayerID.String()
		}
		body["requestData"] = data
	}

	resp, err := o.client.PostJSON(ctx, op, endpoint, token, body)
	if err != nil {
		return "", err
	}

	taskURL, ok := o.extractTaskURL(resp.Body)
	if !ok {
		o.logger.WarnContext(ctx, "task created but response carried no task id",
			"kind", req.Kind,
			"status", resp.StatusCode,
		)
	}
	return taskURL, nil
}

// extractTaskURL reads the task id from a creation response, preferring
// taskView.task.numericId, then taskView.task.id, then the legacy top-level
// id, taskId and task.id.
func (o *Orchestrator) extractTaskURL(body []byte) (string, bool) {
	resp, err := transport.Decode[createTaskResponse]("task.create", &transport.Response{Body: body})
	if err != nil {
		return "", false
	}
	for _, id := range []flexString{
		resp.TaskView.Task.NumericID,
		resp.TaskView.Task.ID,
		resp.ID,
		resp.TaskID,
		resp.Task.ID,
	} {
		if id != "" {
			return o.TaskURL(string(id)), true
		}
	}
	return "", false
}

// RunWorkflow resolves alias and the requester, checks for open tasks and
// creates a task of kind when none exist. Failures are folded into the result.
func (o *Orchestrator) RunWorkflow(ctx context.Context, kind Kind, requester Requester, alias string) (result WorkflowResult) {
	alias = strings.TrimSpace(alias)
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, tracer.SpanWorkflow,
		tracer.String(tracer.AttrKind, string(kind)),
		tracer.String(tracer.AttrAlias, alias),
		tracer.String(tracer.AttrUserHash, tracer.HashUsername(requester.Username)),
	)
	defer func() {
		span.SetAttributes(tracer.String(tracer.AttrOutcome, string(result.Outcome)))
		o.record(ctx, kind, requester, alias, result)
		span.AddEvent(tracer.EventAuditEmitted)
		span.End(nil)

		o.metrics.RecordWorkflow(string(kind), string(result.Outcome))
		o.logger.InfoContext(ctx, "access workflow finished",
			"kind", kind,
			"alias", alias,
			"username", requester.Username,
			"outcome", result.Outcome,
			"task_url", result.TaskURL,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}()

	if kind != KindGrant && kind != KindRevoke {
		return WorkflowResult{Message: fmt.Sprintf("Unknown request kind '%s'", kind), Outcome: OutcomeFailed}
	}
	if alias == "" {
		return WorkflowResult{Message: "Entitlement alias is required", Outcome: OutcomeFailed}
	}
	if strings.TrimSpace(requester.Username) == "" {
		return WorkflowResult{Message: "Username is required", Outcome: OutcomeFailed}
	}

	token, err := o.tokens.GetToken(ctx)
	if err != nil {
		return o.failure(ctx, err)
	}

	ent, err := o.directory.ResolveEntitlement(ctx, token, alias)
	if err != nil {
		if transport.IsCategory(err, transport.CategoryNotFound) {
			return WorkflowResult{Message: fmt.Sprintf("Entitlement '%s' not found", alias), Outcome: OutcomeNotFound}
		}
		return o.failure(ctx, err)
	}

	subject, err := o.directory.ResolveSubject(ctx, token, ent.AppID, requester.Username)
	if err != nil {
		if transport.IsCategory(err, transport.CategoryNotFound) {
			return WorkflowResult{Message: fmt.Sprintf("User '%s' not found", requester.Username), Outcome: OutcomeNotFound}
		}
		return o.failure(ctx, err)
	}

	existing, err := o.SearchOpenTasks(ctx, token, subject.ID, ent.EntitlementID)
	if err != nil {
		return o.failure(ctx, err)
	}
	if len(existing) > 0 {
		return WorkflowResult{
			Message:       duplicateMessage(alias, existing),
			ExistingTasks: existing,
			Outcome:       OutcomeDuplicate,
		}
	}

	return o.CreateTask(ctx, token, TaskRequest{
		Kind:        kind,
		Entitlement: ent,
		Subject:     subject,
		Requester:   requester,
	})
}

func duplicateMessage(alias string, existing []TaskDescriptor) string {
	parts := make([]string, 0, len(existing))
	for _, t := range existing {
		name := t.DisplayName
		if name == "" {
			name = t.URL
		}
		if name == "" {
			name = "unnamed task"
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", name, t.Kind))
	}
	return fmt.Sprintf("An open request for '%s' already exists: %s", alias, strings.Join(parts, ", "))
}

// failure turns a categorized error into a user-facing result.
func (o *Orchestrator) failure(ctx context.Context, err error) WorkflowResult {
	e, _ := transport.AsError(err)

	switch transport.CategoryOf(err) {
	case transport.CategoryAuthentication:
		o.tokens.Invalidate()
		o.logger.WarnContext(ctx, "access service rejected token; cached token invalidated", "error", err)
		return WorkflowResult{Message: MessageAuthFailed, Outcome: OutcomeAuthFailed}

	case transport.CategoryTokenFetch:
		o.logger.WarnContext(ctx, "could not obtain access token", "error", err)
		return WorkflowResult{Message: MessageAuthFailed, Outcome: OutcomeAuthFailed}

	case transport.CategoryAPI:
		msg := fmt.Sprintf("API returned error code %d", e.StatusCode)
		if o.Verbose() && e.Body != "" {
			msg += ": " + e.Body
		}
		o.logger.WarnContext(ctx, "access service returned an error", "error", err)
		return WorkflowResult{Message: msg, Outcome: OutcomeFailed}

	case transport.CategoryBadData:
		o.logger.WarnContext(ctx, "access service response could not be parsed", "error", err)
		return WorkflowResult{Message: MessageBadResponse, Outcome: OutcomeFailed}

	case transport.CategoryInvalidConfig, transport.CategoryMalformedCredential,
		transport.CategoryDecode, transport.CategoryKeyFormat:
		o.logger.ErrorContext(ctx, "access client misconfigured", "error", err)
		return WorkflowResult{Message: MessageMisconfigured, Outcome: OutcomeFailed}

	default:
		o.logger.WarnContext(ctx, "access service unreachable", "error", err)
		return WorkflowResult{Message: MessageNetworkFailed, Outcome: OutcomeFailed}
	}
}

func (o *Orchestrator) record(ctx context.Context, kind Kind, requester Requester, alias string, result WorkflowResult) {
	var action audit.AuditEvent
	switch result.Outcome {
	case OutcomeCreated:
		action = audit.EventTaskCreated
	case OutcomeDuplicate:
		action = audit.EventDuplicateFound
	case OutcomeNotFound:
		action = audit.EventNotFound
	case OutcomeAuthFailed:
		action = audit.EventAuthFailed
	default:
		action = audit.EventRequestFailed
	}

	event := audit.Event{
		Action:   string(action),
		Username: requester.Username,
		Kind:     string(kind),
		Alias:    alias,
		TaskURL:  result.TaskURL,
	}
	if requester.PlayerID != uuid.Nil {
		event.PlayerID = requester.PlayerID.String()
	}
	if !result.Success {
		event.Reason = result.Message
	}
	o.audit.Record(ctx, event)
}
