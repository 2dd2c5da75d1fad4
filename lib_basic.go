package lua

import (
	"fmt"
	"strconv"
)

// yieldableBasicFuncs are the basic-library builtins that call back
// into a Lua function argument without acting as a C-call boundary
// (§4.7): yielding across pcall/xpcall resumes the protected call in
// place, same as real Lua since 5.2's yieldable pcall. Every other
// builtin except coroutine.yield itself (lib_coroutine.go) defaults
// to non-yieldable, so e.g. table.sort's comparator (lib_table.go)
// cannot yield through it.
var yieldableBasicFuncs = map[string]bool{
	"pcall":  true,
	"xpcall": true,
}

// OpenLibs registers every standard-library table this interpreter
// ships (§1's "most of the standard library beyond the evaluator's
// own dependencies" is explicitly out of scope; this wires exactly
// the basic functions plus string/table/math/utf8/coroutine, mirroring
// the teacher's luaopen_base/luaopen_* wiring in interp.go's NewInterp).
func OpenLibs(i *Interp) {
	for name, fn := range basicLibrary {
		i.globals.RawSet(name, &GoClosure{name: name, fn: fn, yieldable: yieldableBasicFuncs[name]})
	}
	i.globals.RawSet("_G", i.globals)
	i.globals.RawSet("_VERSION", "Lua 5.4")
	i.globals.RawSet("math", OpenMath(i))
	i.globals.RawSet("table", OpenTable(i))
	i.globals.RawSet("string", OpenString(i))
	i.globals.RawSet("utf8", OpenUTF8(i))
	i.globals.RawSet("coroutine", OpenCoroutine(i))
}

// tostringValue implements the default tostring() dispatch: consult
// __tostring, then __name, then fall back to debugValue's type:addr
// rendering (§4.10's error/print path and string.format's %s both
// route through this).
func (i *Interp) tostringValue(v Value) string {
	if mm := i.GetMetamethod(v, evToString); mm != nil {
		results, err := i.call(mm, []Value{v})
		if err == nil && len(results) > 0 {
			if s, ok := results[0].(string); ok {
				return s
			}
		}
	}
	if t, ok := v.(*Table); ok {
		if mt := i.getMetatable(t); mt != nil {
			if name, ok := mt.RawGet("__name").(string); ok {
				return name + ": " + debugValue(v)[len(TypeNameOf(v))+2:]
			}
		}
	}
	return debugValue(v)
}

var basicLibrary = map[string]GoFunction{
	"type": func(i *Interp, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return nil, newRuntimeError("bad argument #1 to 'type' (value expected)")
		}
		return []Value{TypeNameOf(args[0])}, nil
	},
	"tostring": func(i *Interp, args []Value) ([]Value, error) {
		return []Value{i.tostringValue(get(args, 0))}, nil
	},
	"tonumber": func(i *Interp, args []Value) ([]Value, error) {
		if len(args) >= 2 && args[1] != nil {
			base, ok := ToInteger(args[1])
			if !ok {
				return nil, newRuntimeError("bad argument #2 to 'tonumber' (number expected)")
			}
			s, ok := args[0].(string)
			if !ok {
				return nil, newRuntimeError("bad argument #1 to 'tonumber' (string expected, got %s)", TypeNameOf(args[0]))
			}
			n, err := strconv.ParseInt(trimSpaceASCII(s), int(base), 64)
			if err != nil {
				return []Value{nil}, nil
			}
			return []Value{n}, nil
		}
		v, ok := ToNumber(get(args, 0))
		if !ok {
			return []Value{nil}, nil
		}
		return []Value{v}, nil
	},
	"pairs": func(i *Interp, args []Value) ([]Value, error) {
		t, err := checkTableArg(args, 0, "pairs")
		if err != nil {
			return nil, err
		}
		if mm := i.GetMetamethod(t, "__pairs"); mm != nil {
			return i.call(mm, []Value{t})
		}
		return []Value{&GoClosure{name: "next", fn: basicLibrary["next"]}, t, nil}, nil
	},
	"ipairs": func(i *Interp, args []Value) ([]Value, error) {
		t, err := checkTableArg(args, 0, "ipairs")
		if err != nil {
			return nil, err
		}
		iter := func(ii *Interp, iargs []Value) ([]Value, error) {
			tt := iargs[0].(*Table)
			n, _ := ToInteger(iargs[1])
			n++
			v := tt.RawGet(n)
			if v == nil {
				return []Value{nil}, nil
			}
			return []Value{n, v}, nil
		}
		return []Value{&GoClosure{name: "ipairs iterator", fn: iter}, t, int64(0)}, nil
	},
	"next": func(i *Interp, args []Value) ([]Value, error) {
		t, err := checkTableArg(args, 0, "next")
		if err != nil {
			return nil, err
		}
		k, v, ok := t.Next(get(args, 1))
		if !ok {
			return nil, newRuntimeError("invalid key to 'next'")
		}
		if k == nil {
			return []Value{nil}, nil
		}
		return []Value{k, v}, nil
	},
	"rawget": func(i *Interp, args []Value) ([]Value, error) {
		t, err := checkTableArg(args, 0, "rawget")
		if err != nil {
			return nil, err
		}
		return []Value{t.RawGet(get(args, 1))}, nil
	},
	"rawset": func(i *Interp, args []Value) ([]Value, error) {
		t, err := checkTableArg(args, 0, "rawset")
		if err != nil {
			return nil, err
		}
		if err := t.RawSet(get(args, 1), get(args, 2)); err != nil {
			return nil, err
		}
		return []Value{t}, nil
	},
	"rawequal": func(i *Interp, args []Value) ([]Value, error) {
		return []Value{rawEqual(get(args, 0), get(args, 1))}, nil
	},
	"rawlen": func(i *Interp, args []Value) ([]Value, error) {
		switch v := get(args, 0).(type) {
		case *Table:
			return []Value{v.RawLen()}, nil
		case string:
			return []Value{int64(len(v))}, nil
		}
		return nil, newRuntimeError("table or string expected")
	},
	"setmetatable": func(i *Interp, args []Value) ([]Value, error) {
		t, err := checkTableArg(args, 0, "setmetatable")
		if err != nil {
			return nil, err
		}
		var mt *Table
		if v := get(args, 1); v != nil {
			m, ok := v.(*Table)
			if !ok {
				return nil, newRuntimeError("bad argument #2 to 'setmetatable' (nil or table expected)")
			}
			mt = m
		}
		if err := i.SetMetatable(t, mt); err != nil {
			return nil, err
		}
		return []Value{t}, nil
	},
	"getmetatable": func(i *Interp, args []Value) ([]Value, error) {
		return []Value{i.GetMetatableForRead(get(args, 0))}, nil
	},
	"select": func(i *Interp, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return nil, newRuntimeError("bad argument #1 to 'select' (number expected, got no value)")
		}
		if s, ok := args[0].(string); ok && s == "#" {
			return []Value{int64(len(args) - 1)}, nil
		}
		n, ok := ToInteger(args[0])
		if !ok {
			return nil, newRuntimeError("bad argument #1 to 'select' (number expected)")
		}
		rest := args[1:]
		if n < 0 {
			n = int64(len(rest)) + n + 1
		}
		if n < 1 {
			return nil, newRuntimeError("bad argument #1 to 'select' (index out of range)")
		}
		if int(n) > len(rest) {
			return nil, nil
		}
		return rest[n-1:], nil
	},
	"pcall": func(i *Interp, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return nil, newRuntimeError("bad argument #1 to 'pcall' (value expected)")
		}
		ok, results, errValue := i.PCall(args[0], args[1:])
		if !ok {
			return []Value{false, errValue}, nil
		}
		return append([]Value{true}, results...), nil
	},
	"xpcall": func(i *Interp, args []Value) ([]Value, error) {
		if len(args) < 2 {
			return nil, newRuntimeError("bad argument #2 to 'xpcall' (value expected)")
		}
		ok, results, handled := i.XPCall(args[0], args[1], args[2:])
		if !ok {
			return []Value{false, handled}, nil
		}
		return append([]Value{true}, results...), nil
	},
	"error": func(i *Interp, args []Value) ([]Value, error) {
		level := int64(1)
		if len(args) > 1 {
			if n, ok := ToInteger(args[1]); ok {
				level = n
			}
		}
		return nil, i.raiseError(get(args, 0), int(level))
	},
	"assert": func(i *Interp, args []Value) ([]Value, error) {
		return Assert(args)
	},
	"print": func(i *Interp, args []Value) ([]Value, error) {
		out := ""
		for idx, a := range args {
			if idx > 0 {
				out += "\t"
			}
			out += i.tostringValue(a)
		}
		fmt.Println(out)
		return nil, nil
	},
	"collectgarbage": func(i *Interp, args []Value) ([]Value, error) {
		opt := "collect"
		if len(args) > 0 {
			if s, ok := args[0].(string); ok {
				opt = s
			}
		}
		var n int
		if len(args) > 1 {
			if iv, ok := ToInteger(args[1]); ok {
				n = int(iv)
			}
		}
		v, err := i.CollectGarbage(opt, n)
		if err != nil {
			return nil, err
		}
		return []Value{v}, nil
	},
	"load": func(i *Interp, args []Value) ([]Value, error) {
		src, ok := get(args, 0).(string)
		if !ok {
			return []Value{nil, "load: only string chunks are supported"}, nil
		}
		source := "=(load)"
		if s, ok := get(args, 1).(string); ok {
			source = s
		}
		fn, err := i.Load(src, source)
		if err != nil {
			return []Value{nil, err.Error()}, nil
		}
		return []Value{fn}, nil
	},
}

func trimSpaceASCII(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t' || s[start] == '\n' || s[start] == '\r') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t' || s[end-1] == '\n' || s[end-1] == '\r') {
		end--
	}
	return s[start:end]
}
