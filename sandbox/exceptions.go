package sandbox

import (
	"fmt"

	"go.starlark.net/starlark"
)

// category is a callable error class. Calling it builds an exception value
// that can be raised, printed or inspected with isinstance.
type category struct {
	name   string
	parent *category
}

var (
	_ starlark.Callable = (*category)(nil)
	_ starlark.HasAttrs = (*exception)(nil)
)

var catException = &category{name: "Exception"}

// categories lists every builtin error category. Exception is the root.
var categories = []*category{
	catException,
	{name: "ValueError", parent: catException},
	{name: "TypeError", parent: catException},
	{name: "KeyError", parent: catException},
	{name: "IndexError", parent: catException},
	{name: "AttributeError", parent: catException},
	{name: "NameError", parent: catException},
	{name: "SyntaxError", parent: catException},
	{name: "ZeroDivisionError", parent: catException},
}

func (c *category) String() string        { return "<class '" + c.name + "'>" }
func (c *category) Type() string          { return "type" }
func (c *category) Freeze()               {}
func (c *category) Truth() starlark.Bool  { return starlark.True }
func (c *category) Hash() (uint32, error) { return starlark.String(c.name).Hash() }
func (c *category) Name() string          { return c.name }

func (c *category) CallInternal(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s() takes no keyword arguments", c.name)
	}
	return &exception{cat: c, args: args}, nil
}

// descends reports whether c is of or derives from p.
func (c *category) descends(p *category) bool {
	for x := c; x != nil; x = x.parent {
		if x == p {
			return true
		}
	}
	return false
}

// exception is an instance of an error category.
type exception struct {
	cat  *category
	args starlark.Tuple
}

func (e *exception) String() string        { return e.message() }
func (e *exception) Type() string          { return e.cat.name }
func (e *exception) Freeze()               { e.args.Freeze() }
func (e *exception) Truth() starlark.Bool  { return starlark.True }
func (e *exception) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", e.cat.name) }

func (e *exception) Attr(name string) (starlark.Value, error) {
	if name == "args" {
		return e.args, nil
	}
	return nil, nil
}

func (e *exception) AttrNames() []string { return []string{"args"} }

func (e *exception) message() string {
	switch len(e.args) {
	case 0:
		return ""
	case 1:
		return str(e.args[0])
	}
	return e.args.String()
}

// raisedError carries an exception out of the interpreter. It surfaces as the
// cause of the *starlark.EvalError returned by the run.
type raisedError struct {
	exc *exception
}

func (e *raisedError) Error() string {
	if msg := e.exc.message(); msg != "" {
		return e.exc.cat.name + ": " + msg
	}
	return e.exc.cat.name
}

// raiseName is the internal builtin the dialect rewrites raise statements to.
const raiseName = "__raise__"

var raiseBuiltin = starlark.NewBuiltin(raiseName, func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs("raise", args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case *exception:
		return nil, &raisedError{exc: x}
	case *category:
		return nil, &raisedError{exc: &exception{cat: x}}
	}
	return nil, fmt.Errorf("exceptions must derive from Exception, not %s", v.Type())
})
