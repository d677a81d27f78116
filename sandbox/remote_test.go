package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gencode "github.com/nevindra/gencode"
)

type runnerFunc func(ctx context.Context, code string) gencode.ExecutionOutcome

func (f runnerFunc) Execute(ctx context.Context, code string) gencode.ExecutionOutcome {
	return f(ctx, code)
}

func TestRemote_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(NewHandler(NewInterpreter()))
	defer srv.Close()
	r := NewRemote(srv.URL + "/")

	out := r.Execute(context.Background(), `print("hello")`)
	assert.True(t, out.Equal(gencode.Success("hello")), "%+v", out)

	out = r.Execute(context.Background(), `print(1/0)`)
	assert.False(t, out.Succeeded)
	assert.Equal(t, gencode.OutcomeError, out.Kind)
	assert.Contains(t, out.Text, "division by zero")

	out = r.Execute(context.Background(), `open("/etc/passwd")`)
	assert.Contains(t, out.Text, "NameError")
}

func TestRemote_TLS(t *testing.T) {
	srv := httptest.NewTLSServer(NewHandler(NewInterpreter()))
	defer srv.Close()

	out := NewRemote(srv.URL, WithHTTPClient(srv.Client())).Execute(context.Background(), `print(2 * 21)`)
	assert.Equal(t, "42", out.Text)

	// Without the test CA the handshake fails and no retry can help.
	out = NewRemote(srv.URL, WithMaxRetries(1)).Execute(context.Background(), `print(1)`)
	assert.Equal(t, gencode.OutcomeUnavailable, out.Kind)
}

func TestRemote_RetriesTransient(t *testing.T) {
	var calls atomic.Int32
	inner := NewHandler(NewInterpreter())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		inner.ServeHTTP(w, r)
	}))
	defer srv.Close()

	out := NewRemote(srv.URL, WithRetryDelay(time.Millisecond)).Execute(context.Background(), `print("ok")`)
	assert.Equal(t, "ok", out.Text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRemote_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	out := NewRemote(srv.URL, WithMaxRetries(3), WithRetryDelay(time.Millisecond)).Execute(context.Background(), `print(1)`)
	assert.Equal(t, gencode.OutcomeUnavailable, out.Kind)
	assert.Contains(t, out.Text, "after 3 attempts")
	assert.Contains(t, out.Text, "503")
	assert.Equal(t, int32(3), calls.Load())
}

func TestRemote_NonTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	out := NewRemote(srv.URL, WithMaxRetries(3)).Execute(context.Background(), `print(1)`)
	assert.Equal(t, gencode.OutcomeUnavailable, out.Kind)
	assert.Contains(t, out.Text, "400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRemote_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out := NewRemote(url, WithRetryDelay(time.Millisecond)).Execute(context.Background(), `print(1)`)
	assert.Equal(t, gencode.OutcomeUnavailable, out.Kind)
	assert.ErrorIs(t, out.Err(), gencode.ErrRunnerUnavailable)
}

func TestHandler_Validation(t *testing.T) {
	h := NewHandler(NewInterpreter())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/execute", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(`{"code": ""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestHandler_Execute(t *testing.T) {
	h := NewHandler(NewInterpreter())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/execute",
		strings.NewReader(`{"execution_id": "abc", "code": "print(1 + 1)", "timeout": 5}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp executeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "abc", resp.ExecutionID)
	assert.True(t, resp.Succeeded)
	assert.Equal(t, "2", resp.Text)
	assert.Equal(t, gencode.OutcomeOK, resp.Kind)
}

func TestHandler_Busy(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	blocking := runnerFunc(func(ctx context.Context, code string) gencode.ExecutionOutcome {
		close(started)
		<-release
		return gencode.Success("")
	})
	h := NewHandler(blocking, WithMaxConcurrent(1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(`{"code": "x"}`)))
	}()
	<-started

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/execute", strings.NewReader(`{"code": "y"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	close(release)
	<-done
}

func TestHandler_TimeoutApplied(t *testing.T) {
	var deadline time.Duration
	h := NewHandler(runnerFunc(func(ctx context.Context, code string) gencode.ExecutionOutcome {
		dl, ok := ctx.Deadline()
		if ok {
			deadline = time.Until(dl)
		}
		return gencode.Success("")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/execute",
		strings.NewReader(`{"code": "x", "timeout": 100000}`)))

	assert.Greater(t, deadline, time.Duration(0))
	assert.LessOrEqual(t, deadline, maxTimeoutSecs*time.Second)
}
