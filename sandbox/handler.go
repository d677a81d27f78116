package sandbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	gencode "github.com/nevindra/gencode"
)

const (
	maxRequestBodyBytes = 1 << 20 // 1MB
	maxTimeoutSecs      = 300
)

// HandlerOption configures NewHandler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	maxConcurrent int
	logger        *slog.Logger
}

// WithMaxConcurrent bounds simultaneous executions. Requests beyond the
// bound fail fast with 503. Default: 4.
func WithMaxConcurrent(n int) HandlerOption {
	return func(c *handlerConfig) {
		if n > 0 {
			c.maxConcurrent = n
		}
	}
}

// WithHandlerLogger sets the logger for request logging.
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(c *handlerConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewHandler exposes runner as a sandbox service:
//
//	POST /execute  {"execution_id", "code", "timeout"} -> {"succeeded", "text", "kind", ...}
//	GET  /health   -> {"status": "ready"}
//
// Remote is the matching client.
func NewHandler(runner gencode.Runner, opts ...HandlerOption) http.Handler {
	cfg := handlerConfig{maxConcurrent: 4, logger: gencode.NopLogger}
	for _, o := range opts {
		o(&cfg)
	}
	sem := make(chan struct{}, cfg.maxConcurrent)

	mux := http.NewServeMux()
	mux.HandleFunc("/execute", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		handleExecute(sem, runner, cfg.logger, w, r)
	})
	mux.HandleFunc("/health", handleHealth)
	return mux
}

func handleExecute(sem chan struct{}, runner gencode.Runner, logger *slog.Logger, w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req executeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if req.ExecutionID == "" {
		req.ExecutionID = gencode.NewID()
	}

	// Acquire execution slot, failing fast under load.
	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	default:
		writeError(w, http.StatusServiceUnavailable, "server busy: execution capacity reached")
		return
	}

	ctx := r.Context()
	if req.Timeout > 0 {
		timeout := min(req.Timeout, maxTimeoutSecs)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}

	out := runner.Execute(ctx, req.Code)
	logger.Info("sandbox: executed", "execution_id", req.ExecutionID, "kind", out.Kind.String(), "duration", out.Duration)

	writeJSON(w, http.StatusOK, executeResponse{
		ExecutionID: req.ExecutionID,
		Succeeded:   out.Succeeded,
		Text:        out.Text,
		Kind:        out.Kind,
		DurationMS:  out.Duration.Milliseconds(),
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
