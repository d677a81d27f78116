package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	gencode "github.com/nevindra/gencode"
)

// cancelGrace is how long a cancelled run may take to stop before it is
// abandoned. Starlark checks cancellation between steps, but a builtin looping
// in Go only notices at its next checkpoint.
const cancelGrace = time.Second

// fileOptions is the accepted dialect: top-level statements, while loops,
// sets and global reassignment. Recursion stays disabled.
var fileOptions = syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// Interpreter executes code in-process on an embedded Starlark interpreter.
// The only names the code can reach are the configured CapabilitySet; there
// is no file, network, process, environment or import access.
//
// Interpreter is safe for concurrent use. Runs with private capture proceed in
// parallel; ExecuteTo runs are serialized.
type Interpreter struct {
	cfg         config
	predeclared starlark.StringDict

	mu sync.Mutex // held for the whole of an ExecuteTo run
}

var (
	_ gencode.SinkRunner = (*Interpreter)(nil)
	_ gencode.Guide      = (*Interpreter)(nil)
)

// NewInterpreter creates an in-process runner.
func NewInterpreter(opts ...Option) *Interpreter {
	cfg := buildConfig(opts)
	predeclared := cfg.caps.copy()
	predeclared[raiseName] = raiseBuiltin
	predeclared.Freeze()
	return &Interpreter{cfg: cfg, predeclared: predeclared}
}

// Capabilities returns the allow-list the interpreter resolves names against.
func (in *Interpreter) Capabilities() CapabilitySet { return in.cfg.caps }

// Execute runs code with a private output capture.
func (in *Interpreter) Execute(ctx context.Context, code string) gencode.ExecutionOutcome {
	return in.run(ctx, code, nil)
}

// ExecuteTo runs code and additionally copies its output to sink while it
// runs. The sink is released before ExecuteTo returns.
func (in *Interpreter) ExecuteTo(ctx context.Context, code string, sink gencode.OutputSink) gencode.ExecutionOutcome {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.run(ctx, code, sink)
}

func (in *Interpreter) run(ctx context.Context, code string, sink gencode.OutputSink) (out gencode.ExecutionOutcome) {
	id := gencode.NewID()
	start := time.Now()
	buf := gencode.NewBufferSink(in.cfg.maxOutput)
	var target gencode.OutputSink = buf
	if sink != nil {
		target = gencode.TeeSink(buf, sink)
	}
	capt := bind(target)

	defer func() {
		capt.release()
		if r := recover(); r != nil {
			in.cfg.logger.Error("sandbox: interpreter panic", "id", id, "panic", r, "stack", string(debug.Stack()))
			out = gencode.Failure(gencode.OutcomeError, fmt.Sprintf("InternalError: %v", r))
		}
		out.Duration = time.Since(start)
		in.cfg.logger.Debug("sandbox: run finished",
			"id", id, "engine", "interpreter", "kind", out.Kind.String(), "duration", out.Duration)
	}()

	err := in.exec(ctx, id, code, capt)
	if err == nil {
		capt.release()
		text := strings.TrimSpace(buf.Output())
		if buf.Truncated() {
			text += truncationMarker
		}
		return gencode.Success(text)
	}

	d := diagnose(err)
	if d.trace != "" {
		io.WriteString(capt.Stderr(), d.trace)
	}
	capt.release()
	var pErr *panicError
	if errors.As(err, &pErr) {
		in.cfg.logger.Error("sandbox: interpreter panic", "id", id, "panic", pErr.value, "stack", string(pErr.stack))
	}
	text := strings.TrimSpace(d.summary + "\n" + buf.Errors())
	if buf.Truncated() {
		text += truncationMarker
	}
	return gencode.Failure(d.kind, text)
}

// exec validates, compiles and runs code on a fresh thread.
func (in *Interpreter) exec(parent context.Context, id, code string, capt *capture) error {
	src := rewriteRaise(code)

	// Resolve against the allow-list only. Compilation below would also accept
	// the interpreter's universe, so this pass is what enforces the capability set.
	opts := fileOptions
	f, err := opts.Parse("main.py", src, 0)
	if err != nil {
		return err
	}
	if err := resolve.File(f, in.predeclared.Has, isConstant); err != nil {
		return err
	}
	f, err = opts.Parse("main.py", src, 0)
	if err != nil {
		return err
	}
	prog, err := starlark.FileProgram(f, in.predeclared.Has)
	if err != nil {
		return err
	}

	timeout := in.cfg.timeout
	if dl, ok := parent.Deadline(); ok && time.Until(dl) < timeout {
		timeout = max(time.Until(dl), 0)
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: id,
		Print: func(_ *starlark.Thread, msg string) {
			io.WriteString(capt.Stdout(), msg+"\n")
		},
	}
	thread.SetLocal(stdoutKey, capt.Stdout())
	thread.SetLocal(stateKey, &runState{ctx: ctx, maxSteps: in.cfg.maxSteps})
	thread.SetLocal(namesKey, in.predeclared)
	var stepsHit atomic.Bool
	if in.cfg.maxSteps > 0 {
		thread.SetMaxExecutionSteps(in.cfg.maxSteps)
		thread.OnMaxSteps = func(t *starlark.Thread) {
			stepsHit.Store(true)
			t.Cancel("too many steps")
		}
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &panicError{value: r, stack: debug.Stack()}
			}
		}()
		_, err := prog.Init(thread, in.predeclared)
		done <- err
	}()

	select {
	case err = <-done:
	case <-ctx.Done():
		thread.Cancel(ctx.Err().Error())
		select {
		case err = <-done:
		case <-time.After(cancelGrace):
			in.cfg.logger.Warn("sandbox: run ignored cancellation, abandoning it", "id", id)
			err = ctx.Err()
		}
	}
	if err == nil {
		return nil
	}

	switch {
	case stepsHit.Load() || errors.Is(err, errStepLimit):
		return &limitError{
			kind: gencode.OutcomeResourceExceeded,
			msg:  fmt.Sprintf("execution exceeded %d steps", in.cfg.maxSteps),
		}
	case parent.Err() != nil && errors.Is(parent.Err(), context.Canceled):
		return &limitError{kind: gencode.OutcomeError, msg: "execution cancelled"}
	case ctx.Err() != nil:
		return &limitError{
			kind: gencode.OutcomeResourceExceeded,
			msg:  fmt.Sprintf("execution timed out after %s", timeout.Round(time.Millisecond)),
		}
	}
	return err
}
