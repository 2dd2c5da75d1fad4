package lua

import "fmt"

// Value is any Lua value: nil, bool, int64, float64, string, *Table,
// *Closure, *GoClosure, *Coroutine or *Userdata. Primitive Go types
// carry Lua's value semantics directly; the pointer types carry
// reference identity the way the teacher's types.go treats *table,
// *luaClosure and *userData.
type Value interface{}

// Type is the tag returned by TypeName; it mirrors the teacher's
// typeNames table in tag_methods.go but is exported since callers of
// the host bridge need to branch on it.
type Type int

const (
	TypeNil Type = iota
	TypeBoolean
	TypeNumber
	TypeString
	TypeTable
	TypeFunction
	TypeThread
	TypeUserdata
)

func (t Type) String() string {
	switch t {
	case TypeNil:
		return "nil"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeTable:
		return "table"
	case TypeFunction:
		return "function"
	case TypeThread:
		return "thread"
	case TypeUserdata:
		return "userdata"
	}
	return "unknown"
}

// TypeNameOf returns the Lua type name for v, one of the eight
// strings spec.md §8 requires typeName to produce.
func TypeNameOf(v Value) string { return TypeOf(v).String() }

// TypeOf classifies v the way the teacher's debugValue switch does,
// but returns the Type tag instead of a debug string.
func TypeOf(v Value) Type {
	switch v.(type) {
	case nil:
		return TypeNil
	case bool:
		return TypeBoolean
	case int64, float64:
		return TypeNumber
	case string:
		return TypeString
	case *Table:
		return TypeTable
	case *Closure, *GoClosure:
		return TypeFunction
	case *Coroutine:
		return TypeThread
	case *Userdata:
		return TypeUserdata
	}
	panic(fmt.Sprintf("lua: value of unknown Go type %T", v))
}

// IsFalse reports whether v is Lua-falsy: nil or false, exactly as
// the teacher's isFalse in types.go defines it (every other value,
// including 0 and "", is truthy).
func IsFalse(v Value) bool {
	if v == nil {
		return true
	}
	b, isBool := v.(bool)
	return isBool && !b
}

// IsTruthy is the complement of IsFalse.
func IsTruthy(v Value) bool { return !IsFalse(v) }

// Closure is an interpreted Lua function: an AST function body plus
// the boxes it captured at creation and the _ENV binding in effect
// where it was defined (§3 invariants: "each Function literal has its
// own _ENV binding resolved at closure creation").
type Closure struct {
	gcHeader
	proto    *FunctionExpr
	upvalues []*Box
	env      *Box
	name     string

	// chunkSource holds the original Lua source text, set only on the
	// closure Load produces for a freshly parsed main chunk. string.dump
	// (dump.go) requires it; ordinary nested closures never populate it
	// and so cannot be dumped, mirroring real Lua's refusal to dump a
	// closure with upvalues.
	chunkSource string
}

// GoClosure is a builtin exposed through the host bridge (§4.9). It
// plays the role of the teacher's goFunction/goClosure pair in
// types.go, but takes and returns plain Value slices instead of
// operating on an implicit C-style stack.
type GoClosure struct {
	name      string
	fn        GoFunction
	yieldable bool
}

// GoFunction is the signature every builtin and host callback
// implements (§4.9).
type GoFunction func(i *Interp, args []Value) ([]Value, error)

// Userdata is a host-owned opaque value (§3). It mirrors the
// teacher's userData{metaTable, env, data} in types.go.
type Userdata struct {
	gcHeader
	metaTable *Table
	env       *Table
	Data      interface{}
}

// ToStringValue renders a string or number the way Lua's concat and
// default tostring do for those two types: strings pass through,
// numbers use NumberToString's %.14g-equivalent formatting. Values
// that need __tostring dispatch go through the basic library's
// tostring builtin instead (value.go intentionally stays Interp-free).
func ToStringValue(v Value) string {
	switch x := v.(type) {
	case string:
		return x
	case int64, float64:
		return NumberToString(x)
	}
	return debugValue(v)
}

// rawEqual implements raw (metamethod-free) equality, used for table
// key identity, == on non-table/non-userdata pairs, and as the
// fallback when no __eq applies. Follows the teacher's
// integer/float numeric equality in numeric.go's Eq.
func rawEqual(a, b Value) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case int64:
		switch y := b.(type) {
		case int64:
			return x == y
		case float64:
			return float64(x) == y
		}
		return false
	case float64:
		switch y := b.(type) {
		case int64:
			return x == float64(y)
		case float64:
			return x == y
		}
		return false
	case string:
		y, ok := b.(string)
		return ok && x == y
	default:
		return a == b
	}
}

// isValidKey reports whether v may be used as a table key: neither
// Nil nor NaN, per §3's invariant.
func isValidKey(v Value) (Value, bool) {
	if v == nil {
		return nil, false
	}
	if f, ok := v.(float64); ok {
		if f != f { // NaN
			return nil, false
		}
		// Lua normalizes float keys with an exact integer value to
		// the integer representation, so t[1] and t[1.0] are the
		// same entry (PUC-Rio lvm.c's luaV_finishget does the same).
		if i, exact := floatToInteger(f); exact {
			return i, true
		}
	}
	return v, true
}
