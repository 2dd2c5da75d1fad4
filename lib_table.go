package lua

// table.* library: thin GoFunction wrappers over the pure-Go helpers
// table.go already implements (tableInsert/tableRemove/tableConcat/
// tableSort/tableMove), mirroring how the teacher's table.go wired
// those same algorithms to its RegistryFunction table.

func checkTableArg(args []Value, idx int, fname string) (*Table, error) {
	if idx >= len(args) {
		return nil, newRuntimeError("bad argument #%d to '%s' (table expected, got no value)", idx+1, fname)
	}
	t, ok := args[idx].(*Table)
	if !ok {
		return nil, newRuntimeError("bad argument #%d to '%s' (table expected, got %s)", idx+1, fname, TypeNameOf(args[idx]))
	}
	return t, nil
}

var tableLibrary = map[string]GoFunction{
	"insert": func(i *Interp, args []Value) ([]Value, error) {
		t, err := checkTableArg(args, 0, "insert")
		if err != nil {
			return nil, err
		}
		if err := tableInsert(t, args[1:]); err != nil {
			return nil, err
		}
		return nil, nil
	},
	"remove": func(i *Interp, args []Value) ([]Value, error) {
		t, err := checkTableArg(args, 0, "remove")
		if err != nil {
			return nil, err
		}
		var pos int64
		posGiven := len(args) > 1
		if posGiven {
			p, ok := ToInteger(args[1])
			if !ok {
				return nil, newRuntimeError("bad argument #2 to 'remove' (number expected)")
			}
			pos = p
		}
		v, err := tableRemove(t, pos, posGiven)
		if err != nil {
			return nil, err
		}
		return []Value{v}, nil
	},
	"concat": func(i *Interp, args []Value) ([]Value, error) {
		t, err := checkTableArg(args, 0, "concat")
		if err != nil {
			return nil, err
		}
		sep := ""
		if len(args) > 1 && args[1] != nil {
			s, ok := toStringForConcat(args[1])
			if !ok {
				return nil, newRuntimeError("bad argument #2 to 'concat' (string expected)")
			}
			sep = s
		}
		from := int64(1)
		if len(args) > 2 {
			f, ok := ToInteger(args[2])
			if !ok {
				return nil, newRuntimeError("bad argument #3 to 'concat' (number expected)")
			}
			from = f
		}
		to := t.RawLen()
		if len(args) > 3 {
			tt, ok := ToInteger(args[3])
			if !ok {
				return nil, newRuntimeError("bad argument #4 to 'concat' (number expected)")
			}
			to = tt
		}
		s, err := tableConcat(t, sep, from, to)
		if err != nil {
			return nil, err
		}
		return []Value{s}, nil
	},
	"sort": func(i *Interp, args []Value) ([]Value, error) {
		t, err := checkTableArg(args, 0, "sort")
		if err != nil {
			return nil, err
		}
		var cmp Value
		if len(args) > 1 {
			cmp = args[1]
		}
		less := func(a, b Value) (bool, error) {
			if cmp != nil {
				results, err := i.call(cmp, []Value{a, b})
				if err != nil {
					return false, err
				}
				return IsTruthy(first(results)), nil
			}
			ok, handled := Lt(a, b)
			if handled {
				return ok, nil
			}
			v, isHandled, err := i.lessMetamethod(evLt, a, b)
			if isHandled {
				return IsTruthy(v), err
			}
			return false, newRuntimeError("attempt to compare two %s values", TypeNameOf(a))
		}
		if err := tableSort(t, t.RawLen(), less); err != nil {
			return nil, err
		}
		return nil, nil
	},
	"move": func(i *Interp, args []Value) ([]Value, error) {
		a1, err := checkTableArg(args, 0, "move")
		if err != nil {
			return nil, err
		}
		f, ok1 := ToInteger(get(args, 1))
		e, ok2 := ToInteger(get(args, 2))
		t, ok3 := ToInteger(get(args, 3))
		if !ok1 || !ok2 || !ok3 {
			return nil, newRuntimeError("bad argument to 'move' (number expected)")
		}
		a2 := a1
		if len(args) > 4 && args[4] != nil {
			a2, err = checkTableArg(args, 4, "move")
			if err != nil {
				return nil, err
			}
		}
		if err := tableMove(a1, f, e, t, a2); err != nil {
			return nil, err
		}
		return []Value{a2}, nil
	},
	"pack": func(i *Interp, args []Value) ([]Value, error) {
		t := i.NewTable()
		for idx, a := range args {
			t.RawSet(int64(idx+1), a)
		}
		t.RawSet("n", int64(len(args)))
		return []Value{t}, nil
	},
	"unpack": func(i *Interp, args []Value) ([]Value, error) {
		return tableUnpack(args)
	},
}

func tableUnpack(args []Value) ([]Value, error) {
	t, err := checkTableArg(args, 0, "unpack")
	if err != nil {
		return nil, err
	}
	from := int64(1)
	if len(args) > 1 && args[1] != nil {
		f, ok := ToInteger(args[1])
		if !ok {
			return nil, newRuntimeError("bad argument #2 to 'unpack' (number expected)")
		}
		from = f
	}
	to := t.RawLen()
	if len(args) > 2 && args[2] != nil {
		tt, ok := ToInteger(args[2])
		if !ok {
			return nil, newRuntimeError("bad argument #3 to 'unpack' (number expected)")
		}
		to = tt
	}
	if from > to {
		return nil, nil
	}
	out := make([]Value, 0, to-from+1)
	for idx := from; idx <= to; idx++ {
		out = append(out, t.RawGet(idx))
	}
	return out, nil
}

// OpenTable implements the table library's registration.
func OpenTable(i *Interp) *Table {
	t := i.NewTable()
	for name, fn := range tableLibrary {
		t.RawSet(name, &GoClosure{name: "table." + name, fn: fn})
	}
	return t
}
