package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gencode "github.com/nevindra/gencode"
)

func TestInterpreter_Outcomes(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		ok       bool
		contains []string
		equals   string
	}{
		{name: "print literal", code: `print("hello")`, ok: true, equals: "hello"},
		{name: "print many", code: "print(1, 2.5, True, None)\nprint('a', 'b', sep='-', end='!')", ok: true, equals: "1 2.5 True None\na-b!"},
		{name: "trailing whitespace trimmed", code: `print("  padded  ")`, ok: true, equals: "padded"},
		{name: "no output", code: `x = 1 + 1`, ok: true, equals: ""},
		{name: "loops and functions", code: "def sq(n):\n    return n * n\ntotal = 0\nfor i in range(4):\n    total += sq(i)\nprint(total)", ok: true, equals: "14"},
		{name: "while loop", code: "n = 0\nwhile n < 3:\n    n += 1\nprint(n)", ok: true, equals: "3"},
		{name: "aggregates", code: `print(sum([1, 2, 3]), round(2.5), round(3.14159, 2), abs(-4), min(3, 1), max([2, 9]), len("abc"))`, ok: true, equals: "6 2 3.14 4 1 9 3"},
		{name: "sum start", code: `print(sum([[1], [2]], []))`, ok: true, equals: "[1, 2]"},
		{name: "reflection", code: "print(type(1) == int, type('s') == str, isinstance(True, int), isinstance(1.0, (int, float)))", ok: true, equals: "True True True True"},
		{name: "error categories", code: "e = ValueError('bad', 1)\nprint(isinstance(e, Exception), issubclass(KeyError, Exception), issubclass(KeyError, ValueError), e.args)", ok: true, equals: `True True False ("bad", 1)`},
		{name: "print exception", code: `print(KeyError("missing"))`, ok: true, equals: "missing"},
		{name: "exception type", code: `print(type(TypeError("x")) == TypeError)`, ok: true, equals: "True"},

		{name: "division by zero", code: `print(1/0)`, contains: []string{"ZeroDivisionError", "division by zero"}},
		{name: "modulo by zero", code: `print(1 % 0)`, contains: []string{"ZeroDivisionError"}},
		{name: "unknown name", code: `open("/etc/passwd")`, contains: []string{"NameError", "name 'open' is not defined", "line 1"}},
		{name: "dunder import", code: `__import__("os")`, contains: []string{"NameError", "__import__"}},
		{name: "several unknown names", code: "getattr(1, 'x')\neval('1')", contains: []string{"name 'getattr'", "name 'eval'"}},
		{name: "import statement", code: "import os\nprint(os.getcwd())", contains: []string{"SyntaxError"}},
		{name: "load statement", code: `load("os.star", "path")`},
		{name: "syntax error", code: `print("unclosed`, contains: []string{"SyntaxError", "line 1"}},
		{name: "raise", code: `raise ValueError("bad input")`, contains: []string{"ValueError: bad input"}},
		{name: "raise in function", code: "def check(x):\n    if x < 0:\n        raise KeyError('negative')  # reject\n    return x\ncheck(-1)", contains: []string{"KeyError: negative", "Traceback", "check"}},
		{name: "raise class", code: `raise IndexError`, contains: []string{"IndexError"}},
		{name: "raise message with from", code: `raise ValueError("cannot convert from str")`, contains: []string{"ValueError: cannot convert from str"}},
		{name: "raise inside multiline string", code: "msg = \"\"\"\n  raise it\n\"\"\"\nprint(msg)", ok: true, equals: "raise it"},
		{name: "raise non exception", code: `raise 42`, contains: []string{"TypeError", "must derive from Exception"}},
		{name: "key error", code: `print({"a": 1}["b"])`, contains: []string{"KeyError"}},
		{name: "index error", code: `print([1][5])`, contains: []string{"IndexError"}},
		{name: "attribute error", code: `print("s".nope)`, contains: []string{"AttributeError"}},
		{name: "type error", code: `print(1 + "a")`, contains: []string{"TypeError"}},
		{name: "value error", code: `print(int("abc"))`, contains: []string{"ValueError"}},
		{name: "recursion", code: "def f(n):\n    return f(n - 1)\nf(3)", contains: []string{"RecursionError"}},
		{name: "partial output omitted", code: "print('before')\nprint(1/0)", contains: []string{"ZeroDivisionError"}},
	}

	in := NewInterpreter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := in.Execute(context.Background(), tt.code)
			require.Equal(t, tt.ok, out.Succeeded, "text: %s", out.Text)
			if tt.ok {
				assert.Equal(t, gencode.OutcomeOK, out.Kind)
				assert.Equal(t, tt.equals, out.Text)
				return
			}
			assert.Equal(t, gencode.OutcomeError, out.Kind)
			assert.NotEmpty(t, out.Text)
			for _, want := range tt.contains {
				assert.Contains(t, out.Text, want)
			}
		})
	}
}

func TestInterpreter_FailureOmitsStdout(t *testing.T) {
	out := NewInterpreter().Execute(context.Background(), "print('sentinel-output')\nx = 1/0")
	require.False(t, out.Succeeded)
	assert.NotContains(t, out.Text, "sentinel-output")
	assert.True(t, strings.HasPrefix(out.Text, "ZeroDivisionError: "), out.Text)
}

func TestInterpreter_Timeout(t *testing.T) {
	in := NewInterpreter(WithTimeout(50*time.Millisecond), WithMaxSteps(0))
	start := time.Now()
	out := in.Execute(context.Background(), "while True:\n    pass")

	assert.False(t, out.Succeeded)
	assert.Equal(t, gencode.OutcomeResourceExceeded, out.Kind)
	assert.Contains(t, out.Text, "timed out")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.ErrorIs(t, out.Err(), gencode.ErrResourceExceeded)
}

func TestInterpreter_TimeoutInsideBuiltin(t *testing.T) {
	in := NewInterpreter(WithTimeout(50*time.Millisecond), WithMaxSteps(0))
	out := in.Execute(context.Background(), "print(sum(range(1000000000000)))")

	assert.Equal(t, gencode.OutcomeResourceExceeded, out.Kind, out.Text)
}

func TestInterpreter_StepLimit(t *testing.T) {
	in := NewInterpreter(WithMaxSteps(1000))
	out := in.Execute(context.Background(), "n = 0\nwhile True:\n    n += 1")

	assert.Equal(t, gencode.OutcomeResourceExceeded, out.Kind)
	assert.Contains(t, out.Text, "exceeded 1000 steps")
}

func TestInterpreter_ParentDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	out := NewInterpreter(WithMaxSteps(0)).Execute(ctx, "while True:\n    pass")

	assert.Equal(t, gencode.OutcomeResourceExceeded, out.Kind)
}

func TestInterpreter_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	out := NewInterpreter(WithMaxSteps(0)).Execute(ctx, "while True:\n    pass")

	assert.False(t, out.Succeeded)
	assert.Equal(t, gencode.OutcomeError, out.Kind)
	assert.Contains(t, out.Text, "execution cancelled")
}

func TestInterpreter_OutputTruncated(t *testing.T) {
	out := NewInterpreter(WithMaxOutput(10)).Execute(context.Background(), `print("x" * 100)`)

	require.True(t, out.Succeeded)
	assert.True(t, strings.HasPrefix(out.Text, "xxxxxxxxxx"))
	assert.True(t, strings.HasSuffix(out.Text, truncationMarker))
}

func TestInterpreter_Idempotent(t *testing.T) {
	in := NewInterpreter()
	for _, code := range []string{
		"print([i * i for i in range(5)])",
		"print(1/0)",
		"open('x')",
	} {
		first := in.Execute(context.Background(), code)
		second := in.Execute(context.Background(), code)
		assert.True(t, first.Equal(second), "%q: %+v vs %+v", code, first, second)
	}
}

func TestInterpreter_ConcurrentRunsKeepOutputSeparate(t *testing.T) {
	in := NewInterpreter()
	var wg sync.WaitGroup
	errs := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out := in.Execute(context.Background(), fmt.Sprintf("for _ in range(50):\n    x = 1\nprint(%d)", i))
			if out.Text != fmt.Sprint(i) {
				errs <- fmt.Sprintf("run %d got %q", i, out.Text)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func TestInterpreter_ExecuteTo(t *testing.T) {
	in := NewInterpreter()
	sink := gencode.NewBufferSink(0)

	out := in.ExecuteTo(context.Background(), "print('one')\nprint('two')", sink)
	require.True(t, out.Succeeded)
	assert.Equal(t, "one\ntwo", out.Text)
	assert.Equal(t, "one\ntwo\n", sink.Output())

	out = in.ExecuteTo(context.Background(), "x = [][1]", sink)
	require.False(t, out.Succeeded)
	assert.Contains(t, sink.Errors(), "Traceback")
}

func TestCapture_DropsWritesAfterRelease(t *testing.T) {
	sink := gencode.NewBufferSink(0)
	c := bind(sink)
	w := c.Stdout()
	fmt.Fprint(w, "kept")
	c.release()
	n, err := fmt.Fprint(w, "dropped")

	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, "kept", sink.Output())
}

func TestInterpreter_RestrictedCapabilities(t *testing.T) {
	in := NewInterpreter(WithCapabilities(DefaultCapabilities.Without("print")))
	out := in.Execute(context.Background(), `print("hi")`)
	assert.False(t, out.Succeeded)
	assert.Contains(t, out.Text, "name 'print' is not defined")

	out = NewInterpreter().Execute(context.Background(), `print(sorted([3, 1]))`)
	assert.False(t, out.Succeeded, "sorted is not in the default set")

	out = NewInterpreter(WithCapabilities(ExtendedCapabilities)).Execute(context.Background(), `print(sorted([3, 1]))`)
	assert.True(t, out.Succeeded)
	assert.Equal(t, "[1, 3]", out.Text)
}

func TestInterpreter_TypeRespectsCapabilities(t *testing.T) {
	in := NewInterpreter(WithCapabilities(DefaultCapabilities.Without("str")))
	out := in.Execute(context.Background(), "s = type(\"a\")\nprint(s(42) + \"!\")")
	assert.False(t, out.Succeeded, "type must not hand out a constructor outside the set")

	out = in.Execute(context.Background(), `print(type("a"), type(1) == int)`)
	require.True(t, out.Succeeded, out.Text)
	assert.Equal(t, "string True", out.Text)
}

func TestInterpreter_Guidelines(t *testing.T) {
	g := NewInterpreter().Guidelines()
	assert.Contains(t, g, "print")
	assert.Contains(t, g, "ZeroDivisionError")
	assert.NotContains(t, g, "sorted")
}
