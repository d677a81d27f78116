package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Thread-local keys.
const (
	stdoutKey = "sandbox.stdout"
	stateKey  = "sandbox.state"
	namesKey  = "sandbox.names"
)

// errStepLimit is returned by builtins that exhaust the step budget while
// looping in Go.
var errStepLimit = errors.New("step limit reached")

// runState is attached to every thread so long-running builtins can observe
// cancellation and the step budget.
type runState struct {
	ctx      context.Context
	maxSteps uint64
}

// checkpoint charges one step to the thread. Every 1024 steps it checks the
// context and the step budget.
func checkpoint(thread *starlark.Thread) error {
	thread.Steps++
	if thread.Steps%1024 != 0 {
		return nil
	}
	st, _ := thread.Local(stateKey).(*runState)
	if st == nil {
		return nil
	}
	if err := st.ctx.Err(); err != nil {
		return err
	}
	if st.maxSteps > 0 && thread.Steps >= st.maxSteps {
		return errStepLimit
	}
	return nil
}

// str converts v the way print does: strings unquoted, exceptions as their
// message, everything else by its representation.
func str(v starlark.Value) string {
	switch x := v.(type) {
	case starlark.String:
		return string(x)
	case *exception:
		return x.message()
	}
	return v.String()
}

func builtinPrint(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	sep, end := " ", "\n"
	for _, kv := range kwargs {
		key, _ := starlark.AsString(kv[0])
		if kv[1] == starlark.None {
			continue
		}
		s, ok := kv[1].(starlark.String)
		if !ok {
			return nil, fmt.Errorf("print: %s must be None or a string, not %s", key, kv[1].Type())
		}
		switch key {
		case "sep":
			sep = string(s)
		case "end":
			end = string(s)
		default:
			return nil, fmt.Errorf("print: unexpected keyword argument %s", key)
		}
	}

	var sb strings.Builder
	for i, a := range args {
		if i > 0 {
			sb.WriteString(sep)
		}
		sb.WriteString(str(a))
	}
	sb.WriteString(end)

	if w, ok := thread.Local(stdoutKey).(io.Writer); ok {
		io.WriteString(w, sb.String())
	}
	return starlark.None, nil
}

func builtinSum(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var iterable starlark.Iterable
	var acc starlark.Value = starlark.MakeInt(0)
	if err := starlark.UnpackArgs("sum", args, kwargs, "iterable", &iterable, "start?", &acc); err != nil {
		return nil, err
	}
	if _, ok := acc.(starlark.String); ok {
		return nil, errors.New("sum: can't sum strings")
	}

	iter := iterable.Iterate()
	defer iter.Done()
	var x starlark.Value
	for iter.Next(&x) {
		if err := checkpoint(thread); err != nil {
			return nil, err
		}
		v, err := starlark.Binary(syntax.PLUS, acc, x)
		if err != nil {
			return nil, fmt.Errorf("sum: %v", err)
		}
		acc = v
	}
	return acc, nil
}

func builtinRound(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	var ndigits starlark.Value = starlark.None
	if err := starlark.UnpackArgs("round", args, kwargs, "number", &x, "ndigits?", &ndigits); err != nil {
		return nil, err
	}
	switch x := x.(type) {
	case starlark.Int:
		return x, nil
	case starlark.Float:
		f := float64(x)
		if ndigits == starlark.None {
			return starlark.NumberToInt(starlark.Float(math.RoundToEven(f)))
		}
		var n int
		if err := starlark.AsInt(ndigits, &n); err != nil {
			return nil, fmt.Errorf("round: ndigits: %v", err)
		}
		p := math.Pow(10, float64(n))
		return starlark.Float(math.RoundToEven(f*p) / p), nil
	}
	return nil, fmt.Errorf("round: type %s doesn't define __round__", x.Type())
}

// constructors maps a value's type name to the builtin that constructs it.
var constructors = map[string]string{
	"int":    "int",
	"float":  "float",
	"string": "str",
	"bool":   "bool",
	"list":   "list",
	"dict":   "dict",
	"tuple":  "tuple",
	"set":    "set",
}

func builtinType(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs("type", args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	if e, ok := x.(*exception); ok {
		return e.cat, nil
	}
	if c, ok := allowedConstructor(thread, x.Type()); ok {
		return c, nil
	}
	return starlark.String(x.Type()), nil
}

// allowedConstructor returns the constructor for a value type when the names
// bound for the run include it.
func allowedConstructor(thread *starlark.Thread, typ string) (starlark.Value, bool) {
	name, ok := constructors[typ]
	if !ok {
		return nil, false
	}
	names, _ := thread.Local(namesKey).(starlark.StringDict)
	c, ok := names[name]
	return c, ok
}

func builtinIsInstance(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x, cls starlark.Value
	if err := starlark.UnpackPositionalArgs("isinstance", args, kwargs, 2, &x, &cls); err != nil {
		return nil, err
	}
	ok, err := instanceOf(x, cls)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(ok), nil
}

func instanceOf(x, cls starlark.Value) (bool, error) {
	switch c := cls.(type) {
	case starlark.Tuple:
		for _, elem := range c {
			if ok, err := instanceOf(x, elem); err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case *category:
		e, ok := x.(*exception)
		return ok && e.cat.descends(c), nil
	case *starlark.Builtin:
		if !isConstructor(c) {
			break
		}
		if c.Name() == "int" && x.Type() == "bool" {
			return true, nil
		}
		return constructors[x.Type()] == c.Name(), nil
	}
	return false, fmt.Errorf("isinstance: arg 2 must be a type or tuple of types, not %s", cls.Type())
}

func builtinIsSubclass(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var sub, cls starlark.Value
	if err := starlark.UnpackPositionalArgs("issubclass", args, kwargs, 2, &sub, &cls); err != nil {
		return nil, err
	}
	ok, err := subclassOf(sub, cls)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(ok), nil
}

func subclassOf(sub, cls starlark.Value) (bool, error) {
	if t, ok := cls.(starlark.Tuple); ok {
		for _, elem := range t {
			if ok, err := subclassOf(sub, elem); err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	}
	switch s := sub.(type) {
	case *category:
		c, ok := cls.(*category)
		return ok && s.descends(c), nil
	case *starlark.Builtin:
		if isConstructor(s) {
			c, ok := cls.(*starlark.Builtin)
			if !ok {
				return false, nil
			}
			return c == s || (s.Name() == "bool" && c.Name() == "int" && isConstructor(c)), nil
		}
	}
	return false, fmt.Errorf("issubclass: arg 1 must be a class, not %s", sub.Type())
}

func isConstructor(b *starlark.Builtin) bool {
	for _, name := range constructors {
		if name == b.Name() {
			return starlark.Universe[name] == b
		}
	}
	return false
}
