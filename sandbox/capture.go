package sandbox

import (
	"io"
	"sync"

	gencode "github.com/nevindra/gencode"
)

// truncationMarker is appended to output cut at the configured limit.
const truncationMarker = "\n... (output truncated)"

// capture binds one run's output streams to a sink. After release every write
// is dropped, so code still winding down after cancellation cannot reach the
// caller's sink.
type capture struct {
	mu   sync.Mutex
	sink gencode.OutputSink
}

func bind(sink gencode.OutputSink) *capture {
	return &capture{sink: sink}
}

func (c *capture) Stdout() io.Writer { return captureWriter{c: c, stderr: false} }
func (c *capture) Stderr() io.Writer { return captureWriter{c: c, stderr: true} }

// release detaches the sink. It is safe to call more than once.
func (c *capture) release() {
	c.mu.Lock()
	c.sink = nil
	c.mu.Unlock()
}

type captureWriter struct {
	c      *capture
	stderr bool
}

func (w captureWriter) Write(p []byte) (int, error) {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	if w.c.sink == nil {
		return len(p), nil
	}
	dst := w.c.sink.Stdout()
	if w.stderr {
		dst = w.c.sink.Stderr()
	}
	dst.Write(p)
	return len(p), nil
}
