package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	gencode "github.com/nevindra/gencode"
)

// responseSlack is added to the execution timeout for the HTTP round trip so
// the service can report its own timeout outcome first.
const responseSlack = 5 * time.Second

// Remote executes code by POSTing it to a sandbox service (see NewHandler and
// cmd/sandbox). Transient failures (5xx, timeouts, refused connections) are
// retried with exponential backoff.
type Remote struct {
	cfg    config
	url    string
	client *http.Client
}

var _ gencode.Runner = (*Remote)(nil)

// NewRemote creates a client for the sandbox service at baseURL
// (e.g. "https://sandbox:9000").
func NewRemote(baseURL string, opts ...Option) *Remote {
	cfg := buildConfig(opts)
	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{}
		if cfg.tlsConfig != nil {
			hc.Transport = &http.Transport{TLSClientConfig: cfg.tlsConfig}
		}
	}
	return &Remote{cfg: cfg, url: strings.TrimRight(baseURL, "/"), client: hc}
}

// Execute sends code to the service. Transport failures are reported as
// OutcomeUnavailable.
func (r *Remote) Execute(ctx context.Context, code string) gencode.ExecutionOutcome {
	id := gencode.NewID()
	start := time.Now()

	timeout := r.cfg.timeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = max(time.Until(dl), 0)
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout+responseSlack)
	defer cancel()

	resp, err := r.doExecute(reqCtx, executeRequest{
		ExecutionID: id,
		Code:        code,
		Timeout:     int(math.Ceil(timeout.Seconds())),
	})

	var out gencode.ExecutionOutcome
	switch {
	case err == nil:
		out = resp.outcome()
	case errors.Is(ctx.Err(), context.Canceled):
		out = gencode.Failure(gencode.OutcomeError, "execution cancelled")
	case reqCtx.Err() != nil:
		out = gencode.Failure(gencode.OutcomeResourceExceeded,
			fmt.Sprintf("execution timed out after %s", timeout.Round(time.Millisecond)))
	default:
		r.cfg.logger.Warn("sandbox: remote execution failed", "id", id, "url", r.url, "error", err)
		out = gencode.Failure(gencode.OutcomeUnavailable, "sandbox unavailable: "+err.Error())
	}
	out.Duration = time.Since(start)
	return out
}

// doExecute POSTs the execution request, retrying transient failures with
// exponential backoff.
func (r *Remote) doExecute(ctx context.Context, execReq executeRequest) (executeResponse, error) {
	body, err := json.Marshal(execReq)
	if err != nil {
		return executeResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	tries := max(r.cfg.maxRetries, 1)
	resp, err := backoff.Retry(ctx, func() (executeResponse, error) {
		resp, err := r.doOnce(ctx, body)
		if err != nil && !isTransient(err) {
			return resp, backoff.Permanent(err)
		}
		return resp, err
	},
		backoff.WithBackOff(&backoff.ExponentialBackOff{
			InitialInterval:     r.cfg.retryDelay,
			RandomizationFactor: 0.2,
			Multiplier:          2,
			MaxInterval:         10 * time.Second,
		}),
		backoff.WithMaxTries(uint(tries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.cfg.logger.Debug("sandbox: retrying", "url", r.url, "wait", wait, "error", err)
		}),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	if err != nil && isTransient(err) && ctx.Err() == nil {
		return executeResponse{}, fmt.Errorf("sandbox unreachable after %d attempts: %w", tries, err)
	}
	return resp, err
}

// doOnce performs a single POST to /execute.
func (r *Remote) doOnce(ctx context.Context, body []byte) (executeResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+"/execute", bytes.NewReader(body))
	if err != nil {
		return executeResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return executeResponse{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return executeResponse{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return executeResponse{}, &serverError{code: resp.StatusCode, body: strings.TrimSpace(string(respBody))}
	}
	if resp.StatusCode != http.StatusOK {
		return executeResponse{}, fmt.Errorf("sandbox returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result executeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return executeResponse{}, fmt.Errorf("parse response: %w", err)
	}
	return result, nil
}

// serverError represents a 5xx response from the sandbox.
type serverError struct {
	code int
	body string
}

func (e *serverError) Error() string {
	return fmt.Sprintf("sandbox returned %d: %s", e.code, e.body)
}

// isTransient reports whether err is a network or server error worth retrying.
func isTransient(err error) bool {
	var se *serverError
	if errors.As(err, &se) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "EOF")
}
