package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	gencode "github.com/nevindra/gencode"
)

// diagnosis is the user-facing account of a failed run.
type diagnosis struct {
	kind    gencode.OutcomeKind
	summary string // "<Category>: <message>"
	trace   string // written to the run's error stream
}

// limitError reports a bound breach or cancellation detected by the engine.
type limitError struct {
	kind gencode.OutcomeKind
	msg  string
}

func (e *limitError) Error() string { return e.msg }

// panicError wraps a panic recovered from the interpreter.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("internal error: %v", e.value) }

// messageCategories maps interpreter error text to an error category. Order
// matters: the first match wins.
var messageCategories = []struct {
	substr   string
	category string
}{
	{"division by zero", "ZeroDivisionError"},
	{"modulo by zero", "ZeroDivisionError"},
	{"called recursively", "RecursionError"},
	{"not in dict", "KeyError"},
	{"out of range", "IndexError"},
	{"has no .", "AttributeError"},
	{"no such field", "AttributeError"},
	{"referenced before assignment", "NameError"},
	{"invalid literal", "ValueError"},
	{"empty sequence", "ValueError"},
	{"cannot convert", "ValueError"},
	{"unknown binary op", "TypeError"},
	{"unsupported", "TypeError"},
	{"not iterable", "TypeError"},
	{"not callable", "TypeError"},
	{"invalid call", "TypeError"},
	{"has no len", "TypeError"},
	{"unhashable", "TypeError"},
	{"missing argument", "TypeError"},
	{"unexpected keyword", "TypeError"},
	{"takes ", "TypeError"},
	{"got ", "TypeError"},
	{"want ", "TypeError"},
	{"must derive from", "TypeError"},
	{"doesn't define", "TypeError"},
	{"must be", "TypeError"},
	{"invalid", "ValueError"},
}

// memoryMessages mark allocations refused by the interpreter.
var memoryMessages = []string{"excessive repeat", "repeat count", "too large", "out of memory"}

func diagnose(err error) diagnosis {
	var (
		limErr   *limitError
		pErr     *panicError
		synErr   syntax.Error
		resErrs  resolve.ErrorList
		evalErr  *starlark.EvalError
		raiseErr *raisedError
	)
	switch {
	case errors.As(err, &limErr):
		return diagnosis{kind: limErr.kind, summary: limErr.msg}
	case errors.As(err, &pErr):
		return diagnosis{kind: gencode.OutcomeError, summary: "InternalError: " + fmt.Sprint(pErr.value)}
	case errors.As(err, &synErr):
		return diagnosis{
			kind:    gencode.OutcomeError,
			summary: fmt.Sprintf("SyntaxError: %s (line %d)", synErr.Msg, synErr.Pos.Line),
		}
	case errors.As(err, &resErrs):
		return diagnoseResolve(resErrs)
	case errors.As(err, &evalErr):
		d := diagnosis{kind: gencode.OutcomeError, trace: evalErr.CallStack.String()}
		if errors.As(err, &raiseErr) {
			d.summary = raiseErr.Error()
			return d
		}
		if errors.As(err, &pErr) {
			d.summary = "InternalError: " + fmt.Sprint(pErr.value)
			return d
		}
		msg := evalErr.Msg
		for _, m := range memoryMessages {
			if strings.Contains(msg, m) {
				d.kind = gencode.OutcomeResourceExceeded
				d.summary = "MemoryError: " + msg
				return d
			}
		}
		d.summary = categorize(msg) + ": " + msg
		return d
	}
	return diagnosis{kind: gencode.OutcomeError, summary: "Error: " + err.Error()}
}

// diagnoseResolve reports every name-resolution error, one per line.
func diagnoseResolve(errs resolve.ErrorList) diagnosis {
	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		if rest, ok := strings.CutPrefix(e.Msg, "undefined: "); ok {
			name, hint, _ := strings.Cut(rest, " ")
			if hint != "" {
				hint = " " + hint
			}
			lines = append(lines, fmt.Sprintf("NameError: name '%s' is not defined%s (line %d)", name, hint, e.Pos.Line))
			continue
		}
		lines = append(lines, fmt.Sprintf("SyntaxError: %s (line %d)", e.Msg, e.Pos.Line))
	}
	return diagnosis{kind: gencode.OutcomeError, summary: strings.Join(lines, "\n")}
}

func categorize(msg string) string {
	for _, mc := range messageCategories {
		if strings.Contains(msg, mc.substr) {
			return mc.category
		}
	}
	return "Error"
}
