// Package sandbox provides gencode.Runner implementations for executing
// generated code under a capability allow-list.
//
// Interpreter runs a Python-like dialect in-process on an embedded Starlark
// interpreter. Container runs real Python in a locked-down Docker container.
// Remote forwards code to a sandbox service (see Handler and cmd/sandbox).
package sandbox

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	gencode "github.com/nevindra/gencode"
)

// Option configures a runner.
type Option func(*config)

type config struct {
	// Shared options.
	timeout   time.Duration
	maxOutput int
	caps      CapabilitySet
	logger    *slog.Logger

	// Interpreter options.
	maxSteps uint64

	// Container options.
	image     string
	memory    int64 // bytes
	nanoCPUs  int64
	pidsLimit int64
	python    string

	// Remote options.
	maxRetries int // total attempts (1 = no retry)
	retryDelay time.Duration
	tlsConfig  *tls.Config
	httpClient *http.Client
}

func defaultConfig() config {
	return config{
		timeout:    10 * time.Second,
		maxOutput:  64 * 1024, // 64KB
		caps:       DefaultCapabilities,
		logger:     gencode.NopLogger,
		maxSteps:   50_000_000,
		image:      "python:3.12-alpine",
		memory:     128 << 20, // 128MB
		nanoCPUs:   500_000_000,
		pidsLimit:  64,
		python:     "python3",
		maxRetries: 2,
		retryDelay: 500 * time.Millisecond,
	}
}

func buildConfig(opts []Option) config {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// WithTimeout sets the wall-clock limit for a single execution.
// Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxOutput sets the maximum captured output in bytes.
// Output beyond this limit is dropped and a marker appended. Default: 64KB.
func WithMaxOutput(bytes int) Option {
	return func(c *config) { c.maxOutput = bytes }
}

// WithCapabilities replaces the allow-list. Default: DefaultCapabilities.
func WithCapabilities(caps CapabilitySet) Option {
	return func(c *config) { c.caps = caps }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMaxSteps bounds the number of interpreter steps per execution
// (Interpreter only). Zero means unbounded. Default: 50M.
func WithMaxSteps(n uint64) Option {
	return func(c *config) { c.maxSteps = n }
}

// WithImage sets the container image (Container only).
// Default: "python:3.12-alpine".
func WithImage(image string) Option {
	return func(c *config) { c.image = image }
}

// WithMemoryLimit sets the container memory limit in bytes (Container only).
// Default: 128MB.
func WithMemoryLimit(bytes int64) Option {
	return func(c *config) { c.memory = bytes }
}

// WithCPUs sets the container CPU quota, e.g. 0.5 for half a core
// (Container only). Default: 0.5.
func WithCPUs(cpus float64) Option {
	return func(c *config) { c.nanoCPUs = int64(cpus * 1e9) }
}

// WithPidsLimit caps the number of processes in the container
// (Container only). Default: 64.
func WithPidsLimit(n int64) Option {
	return func(c *config) { c.pidsLimit = n }
}

// WithMaxRetries sets the total number of attempts for a remote request.
// 1 means no retry. Default: 2.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		if n < 1 {
			n = 1
		}
		c.maxRetries = n
	}
}

// WithRetryDelay sets the base delay between remote retries. Default: 500ms.
func WithRetryDelay(d time.Duration) Option {
	return func(c *config) { c.retryDelay = d }
}

// WithTLS sets the client TLS configuration for Remote, typically built with
// ClientTLS for mutual TLS.
func WithTLS(cfg *tls.Config) Option {
	return func(c *config) { c.tlsConfig = cfg }
}

// WithHTTPClient sets the HTTP client used by Remote. Overrides WithTLS.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}
