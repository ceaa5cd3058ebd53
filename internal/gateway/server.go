package gateway

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

	"github.com/MEKXH/taskgate/internal/config"
	"github.com/MEKXH/taskgate/internal/dispatch"
	"github.com/MEKXH/taskgate/internal/metrics"
	"github.com/MEKXH/taskgate/internal/tools"
	"github.com/MEKXH/taskgate/internal/version"
	"github.com/google/uuid"
)

const maxRequestBodyBytes = 1 << 20

// Actions is the dispatch surface the gateway exposes.
type Actions interface {
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
	Describe() []dispatch.Info
}

// TaskRunner executes a natural-language task end to end.
type TaskRunner interface {
	Run(ctx context.Context, task string) (string, error)
}

// MetricsSource exposes runtime metrics.
type MetricsSource interface {
	Snapshot() metrics.RuntimeSnapshot
}

// Options wires the gateway to the rest of the service. Tasks and Metrics may
// be nil.
type Options struct {
	Token   string
	Actions Actions
	Tasks   TaskRunner
	Metrics MetricsSource
}

type Server struct {
	cfg        config.GatewayConfig
	opts       Options
	httpServer *http.Server
}

func New(cfg config.GatewayConfig, opts Options) *Server {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := cfg.Port
	if port <= 0 {
		port = 8000
	}

	cfg.Host = host
	cfg.Port = port
	if opts.Token == "" {
		opts.Token = cfg.Token
	}
	return &Server{
		cfg:  cfg,
		opts: opts,
	}
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           NewHandler(s.opts),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("gateway listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type handler struct {
	opts Options
}

func NewHandler(opts Options) http.Handler {
	h := &handler{opts: opts}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.get(func(w http.ResponseWriter, r *http.Request, requestID string) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"request_id": requestID,
		})
	}))
	mux.HandleFunc("/version", h.get(func(w http.ResponseWriter, r *http.Request, requestID string) {
		info := version.Get()
		writeJSON(w, http.StatusOK, map[string]any{
			"version":    info.Version,
			"commit":     info.Commit,
			"go_version": info.GoVersion,
			"request_id": requestID,
		})
	}))
	mux.HandleFunc("/metrics", h.get(h.handleMetrics))
	mux.HandleFunc("/actions", h.get(h.handleListActions))
	mux.HandleFunc("/actions/{name}", h.post(h.handleAction))
	mux.HandleFunc("/filter_csv", h.post(h.handleFilterCSV))
	mux.HandleFunc("/run", h.post(h.handleRun))
	return mux
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, requestID string)

func (h *handler) get(next handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		next(w, r, requestID)
	}
}

func (h *handler) post(next handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodPost {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		if token := strings.TrimSpace(h.opts.Token); token != "" && !isAuthorized(r, token) {
			writeError(w, requestID, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}
		if h.opts.Actions == nil {
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "dispatcher is not configured")
			return
		}
		next(w, r, requestID)
	}
}

func (h *handler) handleMetrics(w http.ResponseWriter, _ *http.Request, requestID string) {
	var snap metrics.RuntimeSnapshot
	if h.opts.Metrics != nil {
		snap = h.opts.Metrics.Snapshot()
	}
	body := map[string]any{
		"metrics":    snap,
		"request_id": requestID,
	}
	if snap.HasData() {
		body["summary"] = map[string]float64{
			"error_ratio":    snap.Dispatch.ErrorRatio(),
			"timeout_ratio":  snap.Dispatch.TimeoutRatio(),
			"avg_latency_ms": snap.Dispatch.AvgLatencyMs(),
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handler) handleListActions(w http.ResponseWriter, _ *http.Request, requestID string) {
	actions := []dispatch.Info{}
	if h.opts.Actions != nil {
		actions = h.opts.Actions.Describe()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"actions":    actions,
		"request_id": requestID,
	})
}

func (h *handler) handleAction(w http.ResponseWriter, r *http.Request, requestID string) {
	params, err := decodeParams(w, r)
	if err != nil {
		writeError(w, requestID, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	name := r.PathValue("name")
	res, err := h.dispatch(r, requestID, dispatch.Request{Name: name, Params: params})
	if err != nil {
		writeDispatchError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"action":     res.Action,
		"result":     res.Payload,
		"request_id": requestID,
	})
}

// handleFilterCSV answers with the bare array of matching rows.
func (h *handler) handleFilterCSV(w http.ResponseWriter, r *http.Request, requestID string) {
	params, err := decodeParams(w, r)
	if err != nil {
		writeError(w, requestID, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	res, err := h.dispatch(r, requestID, dispatch.Request{Name: tools.FilterTabularData, Params: params})
	if err != nil {
		writeDispatchError(w, requestID, err)
		return
	}
	out, ok := res.Payload.(*tools.FilterResult)
	if !ok {
		writeError(w, requestID, http.StatusInternalServerError, "internal_error", "unexpected filter result")
		return
	}
	writeJSON(w, http.StatusOK, out.Rows)
}

func (h *handler) handleRun(w http.ResponseWriter, r *http.Request, requestID string) {
	task := strings.TrimSpace(r.URL.Query().Get("task"))
	if task == "" {
		var body struct {
			Task string `json:"task"`
		}
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		task = strings.TrimSpace(body.Task)
	}
	if task == "" {
		writeError(w, requestID, http.StatusBadRequest, "bad_request", "task is required")
		return
	}
	if h.opts.Tasks == nil {
		writeError(w, requestID, http.StatusServiceUnavailable, "unavailable", "no model provider is configured for task execution")
		return
	}

	ctx := dispatch.WithInvocation(r.Context(), dispatch.Invocation{Source: "gateway-task", RequestID: requestID})
	out, err := h.opts.Tasks.Run(ctx, task)
	if err != nil {
		if _, ok := dispatch.AsError(err); ok {
			writeDispatchError(w, requestID, err)
			return
		}
		slog.Error("gateway task failed", "request_id", requestID, "error", err)
		writeError(w, requestID, http.StatusInternalServerError, "internal_error", "failed to run task")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result":     out,
		"request_id": requestID,
	})
}

func (h *handler) dispatch(r *http.Request, requestID string, req dispatch.Request) (*dispatch.Result, error) {
	ctx := dispatch.WithInvocation(r.Context(), dispatch.Invocation{Source: "gateway", RequestID: requestID})
	return h.opts.Actions.Dispatch(ctx, req)
}

func decodeParams(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	var params map[string]any
	if err := decodeBody(w, r, &params); err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, nil
}

// decodeBody reads one JSON value. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json request: %v", err)
	}
	if dec.More() {
		return fmt.Errorf("invalid json request: trailing data")
	}
	return nil
}

// statusFor maps a dispatch failure kind to an HTTP status.
func statusFor(de *dispatch.Error) int {
	switch de.Kind {
	case dispatch.KindInvalidParameters:
		return http.StatusBadRequest
	case dispatch.KindPolicyViolation:
		return http.StatusForbidden
	case dispatch.KindUnknownAction:
		return http.StatusNotFound
	default:
		if de.Timeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	}
}

func writeDispatchError(w http.ResponseWriter, requestID string, err error) {
	de, ok := dispatch.AsError(err)
	if !ok {
		de = &dispatch.Error{Kind: dispatch.KindActionError, Cause: err}
	}
	body := map[string]any{
		"kind":       string(de.Kind),
		"message":    de.Error(),
		"request_id": requestID,
	}
	if de.Action != "" {
		body["action"] = de.Action
	}
	if de.Param != "" {
		body["param"] = de.Param
	}
	if de.Path != "" {
		body["path"] = de.Path
	}
	if de.Rule != "" {
		body["rule"] = string(de.Rule)
	}
	if de.Timeout {
		body["timeout"] = true
	}
	writeJSON(w, statusFor(de), body)
}

func isAuthorized(r *http.Request, expected string) bool {
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	if got == "" {
		return false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(got, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(got, prefix))
	return token == expected
}

func getRequestID(r *http.Request) string {
	rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if rid != "" {
		return rid
	}
	return uuid.NewString()
}

func writeError(w http.ResponseWriter, requestID string, status int, kind, message string) {
	writeJSON(w, status, map[string]any{
		"kind":       kind,
		"message":    message,
		"request_id": requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
