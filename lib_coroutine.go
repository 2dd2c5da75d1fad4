package lua

// coroutine.* library (§4.7). Thin GoFunction wrappers over the
// scheduler in coroutine.go, grounded the same way call.go's pcall
// wraps error.go's PCall: the mechanism already exists as an Interp
// method, this file only exposes it under the standard library name.

var coroutineLibrary = map[string]GoFunction{
	"create": func(i *Interp, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return nil, newRuntimeError("bad argument #1 to 'create' (function expected)")
		}
		return []Value{i.NewCoroutine(args[0])}, nil
	},
	"resume": func(i *Interp, args []Value) ([]Value, error) {
		co, ok := get(args, 0).(*Coroutine)
		if !ok {
			return nil, newRuntimeError("bad argument #1 to 'resume' (coroutine expected)")
		}
		ok2, results := i.Resume(co, args[1:])
		return append([]Value{ok2}, results...), nil
	},
	"yield": func(i *Interp, args []Value) ([]Value, error) {
		return i.Yield(args)
	},
	"status": func(i *Interp, args []Value) ([]Value, error) {
		co, ok := get(args, 0).(*Coroutine)
		if !ok {
			return nil, newRuntimeError("bad argument #1 to 'status' (coroutine expected)")
		}
		return []Value{co.Status()}, nil
	},
	"isyieldable": func(i *Interp, args []Value) ([]Value, error) {
		return []Value{i.IsYieldable()}, nil
	},
	"running": func(i *Interp, args []Value) ([]Value, error) {
		co, isMain := i.Running()
		return []Value{co, isMain}, nil
	},
	"wrap": func(i *Interp, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return nil, newRuntimeError("bad argument #1 to 'wrap' (function expected)")
		}
		co := i.NewCoroutine(args[0])
		wrapped := func(ii *Interp, wargs []Value) ([]Value, error) {
			ok, results := ii.Resume(co, wargs)
			if !ok {
				errVal := get(results, 0)
				if s, isStr := errVal.(string); isStr {
					return nil, &LuaError{Value: s}
				}
				return nil, &LuaError{Value: errVal}
			}
			return results, nil
		}
		return []Value{&GoClosure{name: "coroutine.wrap", fn: wrapped}}, nil
	},
	"close": func(i *Interp, args []Value) ([]Value, error) {
		co, ok := get(args, 0).(*Coroutine)
		if !ok {
			return nil, newRuntimeError("bad argument #1 to 'close' (coroutine expected)")
		}
		ok2, err := i.Close(co)
		if err != nil {
			return []Value{ok2, errorValue(err)}, nil
		}
		return []Value{ok2}, nil
	},
}

// OpenCoroutine implements the coroutine table's registration.
func OpenCoroutine(i *Interp) *Table {
	t := i.NewTable()
	for name, fn := range coroutineLibrary {
		t.RawSet(name, &GoClosure{name: "coroutine." + name, fn: fn, yieldable: name == "yield"})
	}
	return t
}
