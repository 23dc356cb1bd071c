package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/surajcodesml/a2a/pkg/audit"
	"github.com/surajcodesml/a2a/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

const (
	cardPath       = "/.well-known/agent.json"
	legacyCardPath = "/.well-known/agentcard"
)

type Handler struct {
	router    chi.Router
	card      *PublishedCard
	store     *TaskStore
	executor  AgentExecutor
	tools     ToolCaller
	auditLog  *audit.Logger
	logger    *slog.Logger
	authToken string
	actor     string
}

type HandlerConfig struct {
	Card      *PublishedCard
	Executor  AgentExecutor
	Store     *TaskStore
	Tools     ToolCaller
	AuditLog  *audit.Logger
	Logger    *slog.Logger
	AuthToken string
	// Actor names this agent in audit entries.
	Actor string
}

func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Store == nil {
		cfg.Store = NewTaskStore()
	}
	h := &Handler{
		card:      cfg.Card,
		store:     cfg.Store,
		executor:  cfg.Executor,
		tools:     cfg.Tools,
		auditLog:  cfg.AuditLog,
		logger:    cfg.Logger,
		authToken: cfg.AuthToken,
		actor:     cfg.Actor,
	}
	h.buildRouter()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) Store() *TaskStore {
	return h.store
}

func (h *Handler) buildRouter() {
	r := chi.NewRouter()
	r.Get(cardPath, h.handleAgentCard)
	r.Get(legacyCardPath, h.handleAgentCard)

	r.Group(func(r chi.Router) {
		if h.authToken != "" {
			r.Use(h.authMiddleware)
		}
		r.Use(idempotencyMiddleware)
		r.Post("/", h.handleJSONRPC)
		r.Post("/a2a", h.handleJSONRPC)
		r.Post("/a2a/messages", h.handleSendMessage)
		r.Post("/a2a/messages:stream", h.handleSendMessageStream)
		r.Get("/a2a/tasks/{id}", h.handleGetTask)
		r.Get("/a2a/tasks", h.handleListTasks)
		r.Post("/a2a/tasks/{id}:cancel", h.handleCancelTask)
	})
	h.router = r
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header || token != h.authToken {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func idempotencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if key := strings.TrimSpace(r.Header.Get(IdempotencyHeader)); key != "" {
			r = r.WithContext(WithIdempotencyKey(r.Context(), key))
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.card.Bytes())
}

func (h *Handler) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, NewJSONRPCError(nil, ErrCodeParse, "parse error"))
		return
	}
	if req.JSONRPC != "2.0" {
		writeJSON(w, http.StatusOK, NewJSONRPCError(req.ID, ErrCodeInvalidReq, "invalid jsonrpc version"))
		return
	}

	ctx := telemetry.ExtractHeaders(r.Context(), r.Header)
	ctx, span := telemetry.StartSpan(ctx, "a2a."+req.Method, attribute.String("rpc.method", req.Method))
	defer span.End()
	r = r.WithContext(ctx)

	status := "ok"
	switch req.Method {
	case MethodMessageSend, MethodTasksSend:
		status = h.rpcSendMessage(w, r, req)
	case MethodMessageStream:
		status = h.rpcStreamMessage(w, r, req)
	case MethodTasksGet:
		status = h.rpcGetTask(w, req)
	case MethodTasksCancel:
		status = h.rpcCancelTask(w, r, req)
	case MethodToolsCall:
		status = h.rpcCallTool(w, r, req)
	default:
		status = "error"
		writeJSON(w, http.StatusOK, NewJSONRPCError(req.ID, ErrCodeNotFound, fmt.Sprintf("method %q not found", req.Method)))
	}

	telemetry.Metrics.RequestsTotal.WithLabelValues(req.Method, status).Inc()
	telemetry.Metrics.RequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
}

func (h *Handler) writeRPCError(w http.ResponseWriter, id any, err error) string {
	writeJSON(w, http.StatusOK, NewJSONRPCError(id, ErrorCode(err), err.Error()))
	return "error"
}

func (h *Handler) rpcSendMessage(w http.ResponseWriter, r *http.Request, req JSONRPCRequest) string {
	var params MessageSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeJSON(w, http.StatusOK, NewJSONRPCError(req.ID, ErrCodeInvalidParams, "invalid params"))
		return "error"
	}

	blocking := params.Configuration == nil || params.Configuration.Blocking
	task, err := h.send(r.Context(), params, blocking)
	if err != nil {
		return h.writeRPCError(w, req.ID, err)
	}
	writeJSON(w, http.StatusOK, NewJSONRPCResponse(req.ID, task))
	return "ok"
}

func (h *Handler) rpcStreamMessage(w http.ResponseWriter, r *http.Request, req JSONRPCRequest) string {
	var params MessageSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeJSON(w, http.StatusOK, NewJSONRPCError(req.ID, ErrCodeInvalidParams, "invalid params"))
		return "error"
	}

	_, queue, err := h.start(r.Context(), params)
	if err != nil {
		return h.writeRPCError(w, req.ID, err)
	}
	h.streamEvents(w, r, queue, func(ev Event) any { return NewJSONRPCResponse(req.ID, ev) })
	return "ok"
}

func (h *Handler) rpcGetTask(w http.ResponseWriter, req JSONRPCRequest) string {
	var params TaskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeJSON(w, http.StatusOK, NewJSONRPCError(req.ID, ErrCodeInvalidParams, "invalid params"))
		return "error"
	}

	task, err := h.store.Get(params.ID)
	if err != nil {
		return h.writeRPCError(w, req.ID, err)
	}
	writeJSON(w, http.StatusOK, NewJSONRPCResponse(req.ID, task))
	return "ok"
}

func (h *Handler) rpcCancelTask(w http.ResponseWriter, r *http.Request, req JSONRPCRequest) string {
	var params TaskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		writeJSON(w, http.StatusOK, NewJSONRPCError(req.ID, ErrCodeInvalidParams, "invalid params"))
		return "error"
	}

	if err := h.cancel(r.Context(), params.ID); err != nil {
		return h.writeRPCError(w, req.ID, err)
	}
	// Unreachable with a conforming executor; report the task as it stands.
	task, _ := h.store.Get(params.ID)
	writeJSON(w, http.StatusOK, NewJSONRPCResponse(req.ID, task))
	return "ok"
}

func (h *Handler) rpcCallTool(w http.ResponseWriter, r *http.Request, req JSONRPCRequest) string {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		writeJSON(w, http.StatusOK, NewJSONRPCError(req.ID, ErrCodeInvalidParams, "invalid params"))
		return "error"
	}
	if h.tools == nil || !h.tools.HasTool(params.Name) {
		writeJSON(w, http.StatusOK, NewJSONRPCError(req.ID, ErrCodeInvalidParams, fmt.Sprintf("unknown tool %q", params.Name)))
		return "error"
	}

	args := params.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	out, err := h.tools.CallTool(r.Context(), params.Name, args)
	if err != nil {
		h.logger.Warn("tool call failed", slog.String("tool", params.Name), slog.String("err", err.Error()))
		writeJSON(w, http.StatusOK, NewJSONRPCResponse(req.ID, ToolCallResult{
			Content: []ToolContent{{Type: "text", Text: err.Error()}},
			IsError: true,
		}))
		return "tool_error"
	}
	writeJSON(w, http.StatusOK, NewJSONRPCResponse(req.ID, ToolCallResult{
		Content: []ToolContent{{Type: "text", Text: out}},
	}))
	return "ok"
}

func (h *Handler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params := MessageSendParams{Message: msg, ID: r.URL.Query().Get("taskId")}
	task, err := h.send(r.Context(), params, true)
	if err != nil {
		writeJSON(w, restStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) handleSendMessageStream(w http.ResponseWriter, r *http.Request) {
	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	params := MessageSendParams{Message: msg, ID: r.URL.Query().Get("taskId")}
	_, queue, err := h.start(r.Context(), params)
	if err != nil {
		writeJSON(w, restStatus(err), map[string]string{"error": err.Error()})
		return
	}
	h.streamEvents(w, r, queue, func(ev Event) any { return ev })
}

func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.List())
}

func (h *Handler) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	if err := h.cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeJSON(w, restStatus(err), map[string]string{"error": err.Error()})
		return
	}
	task, _ := h.store.Get(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, task)
}

// cancel never touches task state: unknown ids are reported as such and
// known ones get whatever the executor says, which is always unsupported.
func (h *Handler) cancel(ctx context.Context, id string) error {
	task, err := h.store.Get(id)
	if err != nil {
		return err
	}
	rc := &RequestContext{TaskID: task.ID, ContextID: task.ContextID, Task: task}
	err = ErrUnsupportedOperation
	if h.executor != nil {
		err = h.executor.Cancel(ctx, rc)
	}
	if err != nil {
		h.auditLogEvent(ctx, audit.EventTaskCancelRejected, task.ID, task.ContextID, string(task.Status.State))
		h.logger.Info("cancel rejected",
			slog.String("task_id", task.ID),
			slog.String("state", string(task.Status.State)),
		)
	}
	return err
}

// send starts the task and, when blocking, waits for its terminal event.
// A non-blocking send returns as soon as the task has been submitted.
func (h *Handler) send(ctx context.Context, params MessageSendParams, blocking bool) (*Task, error) {
	rc, queue, err := h.start(ctx, params)
	if err != nil {
		return nil, err
	}

	for {
		ev, err := queue.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if ev.Final || !blocking {
			break
		}
	}
	return h.store.Get(rc.TaskID)
}

// start validates the request synchronously, then runs the executor on its
// own goroutine. The worker outlives the inbound request: a payment in
// flight cannot be unwound, so a disconnecting caller does not stop it.
func (h *Handler) start(ctx context.Context, params MessageSendParams) (*RequestContext, *EventQueue, error) {
	if h.executor == nil {
		return nil, nil, fmt.Errorf("a2a: no executor configured")
	}
	rc := h.requestContext(ctx, params)
	if err := rc.Validate(); err != nil {
		return nil, nil, err
	}
	if h.store.Exists(rc.TaskID) {
		return nil, nil, ErrTaskExists
	}

	queue := NewEventQueue()
	updater := NewTaskUpdater(h.store, queue, rc.TaskID, rc.ContextID)
	workerCtx := context.WithoutCancel(ctx)

	go h.run(workerCtx, rc, updater, queue)
	return rc, queue, nil
}

func (h *Handler) run(ctx context.Context, rc *RequestContext, u *TaskUpdater, queue *EventQueue) {
	logger := h.logger.With(slog.String("task_id", rc.TaskID), slog.String("context_id", rc.ContextID))
	ctx = telemetry.WithLogger(ctx, logger)
	h.auditLogEvent(ctx, audit.EventTaskNew, rc.TaskID, rc.ContextID, ExtractText(*rc.Message))

	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("a2a: executor panic: %v", p)
			}
		}()
		return h.executor.Execute(ctx, rc, u)
	}()

	if err != nil {
		logger.Error("task execution failed", slog.String("err", err.Error()))
		telemetry.Metrics.ErrorsTotal.WithLabelValues("a2a").Inc()
	}
	if !u.Submitted() {
		// Nothing was created under this id, possibly because another
		// request won the race for it; never touch that task.
		if err == nil {
			err = fmt.Errorf("a2a: executor returned without submitting task %s", rc.TaskID)
		}
		queue.CloseWithError(err)
		return
	}
	if !u.Done() {
		reason := "task ended without a result"
		if err != nil {
			reason = err.Error()
		}
		_ = u.Fail(ctx, reason)
	}
	queue.Close()

	task, getErr := h.store.Get(rc.TaskID)
	if getErr != nil {
		return
	}
	switch task.Status.State {
	case TaskStateCompleted:
		h.auditLogEvent(ctx, audit.EventTaskDone, task.ID, task.ContextID, "")
	case TaskStateFailed:
		reason := ""
		if task.Status.Message != nil {
			reason, _ = FirstText(task.Status.Message.Parts)
		}
		h.auditLogEvent(ctx, audit.EventTaskFail, task.ID, task.ContextID, reason)
	}
}

func (h *Handler) requestContext(ctx context.Context, params MessageSendParams) *RequestContext {
	msg := params.Message
	taskID := msg.TaskID
	if taskID == "" {
		taskID = params.ID
	}
	if taskID == "" {
		taskID = uuid.NewString()
	}
	contextID := msg.ContextID
	if contextID == "" {
		contextID = uuid.NewString()
	}
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.Role == "" {
		msg.Role = RoleUser
	}
	msg.TaskID, msg.ContextID = taskID, contextID

	metadata := msg.Metadata
	if len(params.Metadata) > 0 {
		metadata = make(map[string]any, len(msg.Metadata)+len(params.Metadata))
		for k, v := range params.Metadata {
			metadata[k] = v
		}
		for k, v := range msg.Metadata {
			metadata[k] = v
		}
	}

	if key := IdempotencyKeyFromContext(ctx); key != "" {
		if _, ok := metadata[metadataIdempotencyKey]; !ok {
			withKey := make(map[string]any, len(metadata)+1)
			for k, v := range metadata {
				withKey[k] = v
			}
			withKey[metadataIdempotencyKey] = key
			metadata = withKey
		}
	}

	var m *Message
	if len(msg.Parts) > 0 {
		m = &msg
	}
	return &RequestContext{
		TaskID:    taskID,
		ContextID: contextID,
		Message:   m,
		Metadata:  metadata,
	}
}

func (h *Handler) streamEvents(w http.ResponseWriter, r *http.Request, queue *EventQueue, wrap func(Event) any) {
	flusher, canFlush := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		ev, err := queue.Next(r.Context())
		if err != nil {
			// Client gone or stream done; the worker keeps running either way.
			return
		}
		writeSSE(w, flusher, canFlush, string(ev.Kind), wrap(ev))
		if ev.Final {
			return
		}
	}
}

func (h *Handler) auditLogEvent(ctx context.Context, eventType, taskID, contextID, detail string) {
	if h.auditLog == nil {
		return
	}
	if err := h.auditLog.Log(ctx, eventType, taskID, contextID, h.actor, detail); err != nil {
		h.logger.Warn("audit log write failed", slog.String("event", eventType), slog.String("err", err.Error()))
	}
}

func restStatus(err error) int {
	var pre *PreconditionError
	switch {
	case errors.As(err, &pre):
		return http.StatusBadRequest
	case errors.Is(err, ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTaskExists):
		return http.StatusConflict
	case errors.Is(err, ErrUnsupportedOperation):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// ExtractText joins the message's text parts.
func ExtractText(msg Message) string {
	var parts []string
	for _, p := range msg.Parts {
		if p.Type == PartTypeText && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, canFlush bool, event string, data any) {
	b, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	if canFlush {
		flusher.Flush()
	}
}
