package gencode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

var (
	// ErrResourceExceeded matches execution errors caused by a time, step or
	// memory bound.
	ErrResourceExceeded = errors.New("resource limit exceeded")
	// ErrRunnerUnavailable matches execution errors where the engine could not
	// run the code at all.
	ErrRunnerUnavailable = errors.New("runner unavailable")
)

// Runner executes untrusted, generated code in a restricted environment.
// Implementations control the isolation (in-process interpreter, container,
// remote sandbox service).
//
// Execute never returns a Go error and never panics: every outcome, including
// an engine that could not start, is reported as data in ExecutionOutcome.
type Runner interface {
	Execute(ctx context.Context, code string) ExecutionOutcome
}

// SinkRunner is a Runner that can additionally copy output to a caller-owned
// sink while the code runs (e.g. to stream print output to a terminal).
// The sink is released before ExecuteTo returns; later writes are dropped.
type SinkRunner interface {
	Runner
	ExecuteTo(ctx context.Context, code string, sink OutputSink) ExecutionOutcome
}

// Guide is implemented by runners that accept only a subset of the target
// language. Guidelines describes that subset so it can be added to the
// generation instruction.
type Guide interface {
	Guidelines() string
}

// OutcomeKind classifies an ExecutionOutcome.
type OutcomeKind int

const (
	// OutcomeOK means the code ran to completion.
	OutcomeOK OutcomeKind = iota
	// OutcomeError means the code raised an error (syntax, name, type, runtime).
	OutcomeError
	// OutcomeResourceExceeded means a time, step or memory bound was hit.
	OutcomeResourceExceeded
	// OutcomeUnavailable means the engine could not run the code at all.
	OutcomeUnavailable
)

var outcomeKindNames = map[OutcomeKind]string{
	OutcomeOK:               "ok",
	OutcomeError:            "error",
	OutcomeResourceExceeded: "resource_exceeded",
	OutcomeUnavailable:      "unavailable",
}

func (k OutcomeKind) String() string {
	if s, ok := outcomeKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// MarshalText encodes the kind by name for JSON wire formats.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name. Unknown names decode to OutcomeError.
func (k *OutcomeKind) UnmarshalText(b []byte) error {
	for kind, name := range outcomeKindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	*k = OutcomeError
	return nil
}

// ExecutionOutcome is the result of one execution attempt.
type ExecutionOutcome struct {
	// Succeeded is true when the code ran to completion without raising.
	Succeeded bool `json:"succeeded"`
	// Text is the trimmed standard output on success, or the diagnostic
	// (error description followed by captured error output) on failure.
	Text string `json:"text"`
	// Kind refines the outcome. OutcomeOK iff Succeeded.
	Kind OutcomeKind `json:"kind"`
	// Duration is the wall-clock time spent running the code.
	Duration time.Duration `json:"-"`
}

// Success returns a successful outcome carrying output.
func Success(output string) ExecutionOutcome {
	return ExecutionOutcome{Succeeded: true, Text: output, Kind: OutcomeOK}
}

// Failure returns a failed outcome of the given kind.
func Failure(kind OutcomeKind, diagnostic string) ExecutionOutcome {
	if kind == OutcomeOK {
		kind = OutcomeError
	}
	return ExecutionOutcome{Text: diagnostic, Kind: kind}
}

// Equal reports whether o and p carry the same result. Duration is ignored.
func (o ExecutionOutcome) Equal(p ExecutionOutcome) bool {
	return o.Succeeded == p.Succeeded && o.Text == p.Text && o.Kind == p.Kind
}

// Err returns nil for a successful outcome and an *ExecutionError otherwise.
func (o ExecutionOutcome) Err() error {
	if o.Succeeded {
		return nil
	}
	return &ExecutionError{Outcome: o}
}

// ExecutionError reports a failed execution. The diagnostic stays in Outcome.
type ExecutionError struct {
	Outcome ExecutionOutcome
}

func (e *ExecutionError) Error() string {
	first, _, _ := strings.Cut(e.Outcome.Text, "\n")
	if first == "" {
		return fmt.Sprintf("execution failed (%s)", e.Outcome.Kind)
	}
	return fmt.Sprintf("execution failed (%s): %s", e.Outcome.Kind, first)
}

func (e *ExecutionError) Is(target error) bool {
	switch target {
	case ErrResourceExceeded:
		return e.Outcome.Kind == OutcomeResourceExceeded
	case ErrRunnerUnavailable:
		return e.Outcome.Kind == OutcomeUnavailable
	}
	return false
}

// OutputSink receives the output streams of running code.
type OutputSink interface {
	Stdout() io.Writer
	Stderr() io.Writer
}

// BufferSink is an in-memory OutputSink. It is safe for concurrent use.
// When limit is positive, bytes beyond limit (both streams combined) are
// discarded and Truncated reports true.
type BufferSink struct {
	mu        sync.Mutex
	out       bytes.Buffer
	err       bytes.Buffer
	limit     int
	truncated bool
}

// NewBufferSink returns a BufferSink keeping at most limit bytes (0 = unlimited).
func NewBufferSink(limit int) *BufferSink {
	return &BufferSink{limit: limit}
}

func (s *BufferSink) Stdout() io.Writer { return bufferWriter{s: s, buf: &s.out} }
func (s *BufferSink) Stderr() io.Writer { return bufferWriter{s: s, buf: &s.err} }

// Output returns everything written to Stdout so far.
func (s *BufferSink) Output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.String()
}

// Errors returns everything written to Stderr so far.
func (s *BufferSink) Errors() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err.String()
}

// Truncated reports whether any write was cut at the limit.
func (s *BufferSink) Truncated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.truncated
}

type bufferWriter struct {
	s   *BufferSink
	buf *bytes.Buffer
}

// Write never fails; running code must not observe sink errors.
func (w bufferWriter) Write(p []byte) (int, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	n := len(p)
	if w.s.limit > 0 {
		room := w.s.limit - w.s.out.Len() - w.s.err.Len()
		if room < len(p) {
			w.s.truncated = true
			if room <= 0 {
				return n, nil
			}
			p = p[:room]
		}
	}
	w.buf.Write(p)
	return n, nil
}

// TeeSink returns a sink that duplicates writes to every given sink.
func TeeSink(sinks ...OutputSink) OutputSink {
	outs := make([]io.Writer, len(sinks))
	errs := make([]io.Writer, len(sinks))
	for i, s := range sinks {
		outs[i] = s.Stdout()
		errs[i] = s.Stderr()
	}
	return teeSink{out: io.MultiWriter(outs...), err: io.MultiWriter(errs...)}
}

type teeSink struct {
	out io.Writer
	err io.Writer
}

func (t teeSink) Stdout() io.Writer { return t.out }
func (t teeSink) Stderr() io.Writer { return t.err }

// WriterSink adapts plain writers (e.g. os.Stdout, os.Stderr) to an OutputSink.
func WriterSink(stdout, stderr io.Writer) OutputSink {
	return teeSink{out: stdout, err: stderr}
}
