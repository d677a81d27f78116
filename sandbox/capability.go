package sandbox

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
)

// CapabilitySet is an immutable allow-list of the names executed code may
// reference. Anything outside the set fails name resolution before the first
// statement runs. The zero value allows nothing.
type CapabilitySet struct {
	values starlark.StringDict
}

var (
	// universeNames are taken unchanged from the interpreter's standard library.
	universeNames = []string{"str", "int", "float", "bool", "list", "dict", "tuple", "set", "range", "len", "min", "max", "abs"}
	// pureNames are side-effect-free helpers offered by ExtendedCapabilities.
	pureNames = []string{"sorted", "enumerate", "zip", "reversed", "any", "all", "repr", "chr", "ord"}
)

// DefaultCapabilities is the process-wide allow-list: output, type
// constructors, numeric and aggregate helpers, reflection and the builtin
// error categories. No file, process, network, import or environment access.
var DefaultCapabilities = newCapabilitySet(defaultEntries())

// ExtendedCapabilities is DefaultCapabilities plus pure iteration and
// formatting helpers (sorted, enumerate, zip, ...).
var ExtendedCapabilities = DefaultCapabilities.With(pureNames...)

func defaultEntries() starlark.StringDict {
	d := starlark.StringDict{
		"print":      starlark.NewBuiltin("print", builtinPrint),
		"sum":        starlark.NewBuiltin("sum", builtinSum),
		"round":      starlark.NewBuiltin("round", builtinRound),
		"type":       starlark.NewBuiltin("type", builtinType),
		"isinstance": starlark.NewBuiltin("isinstance", builtinIsInstance),
		"issubclass": starlark.NewBuiltin("issubclass", builtinIsSubclass),
	}
	for _, name := range universeNames {
		d[name] = starlark.Universe[name]
	}
	for _, c := range categories {
		d[c.name] = c
	}
	return d
}

func newCapabilitySet(values starlark.StringDict) CapabilitySet {
	for name, v := range values {
		if v == nil {
			panic(fmt.Sprintf("sandbox: capability %q has no implementation", name))
		}
		v.Freeze()
	}
	return CapabilitySet{values: values}
}

// Names returns the allowed names in sorted order.
func (c CapabilitySet) Names() []string {
	return c.values.Keys()
}

// Has reports whether name is allowed.
func (c CapabilitySet) Has(name string) bool {
	return c.values.Has(name)
}

// Len returns the number of allowed names.
func (c CapabilitySet) Len() int { return len(c.values) }

// With returns a new set that also allows the named primitives of the
// interpreter's standard library. Unknown names panic: an allow-list must only
// ever name things that exist.
func (c CapabilitySet) With(names ...string) CapabilitySet {
	values := c.copy()
	for _, name := range names {
		if _, ok := values[name]; ok {
			continue
		}
		v, ok := starlark.Universe[name]
		if !ok || isConstant(name) {
			panic(fmt.Sprintf("sandbox: unknown primitive %q", name))
		}
		values[name] = v
	}
	return newCapabilitySet(values)
}

// Without returns a new set with the given names removed.
func (c CapabilitySet) Without(names ...string) CapabilitySet {
	values := c.copy()
	for _, name := range names {
		delete(values, name)
	}
	return CapabilitySet{values: values}
}

// ErrorCategories returns the names of the error categories in the set.
func (c CapabilitySet) ErrorCategories() []string {
	var out []string
	for name, v := range c.values {
		if _, ok := v.(*category); ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func (c CapabilitySet) copy() starlark.StringDict {
	values := make(starlark.StringDict, len(c.values))
	for k, v := range c.values {
		values[k] = v
	}
	return values
}

// ParseCapabilities builds a set from a profile name ("default" or
// "extended") plus extra primitive names.
func ParseCapabilities(profile string, extra []string) (CapabilitySet, error) {
	var base CapabilitySet
	switch profile {
	case "", "default":
		base = DefaultCapabilities
	case "extended":
		base = ExtendedCapabilities
	default:
		return CapabilitySet{}, fmt.Errorf("sandbox: unknown capability profile %q", profile)
	}
	for _, name := range extra {
		if base.Has(name) {
			continue
		}
		if _, ok := starlark.Universe[name]; !ok || isConstant(name) {
			return CapabilitySet{}, fmt.Errorf("sandbox: unknown primitive %q", name)
		}
	}
	return base.With(extra...), nil
}

// isConstant reports the literal constants every program may use. They are
// not capabilities.
func isConstant(name string) bool {
	return name == "True" || name == "False" || name == "None"
}
