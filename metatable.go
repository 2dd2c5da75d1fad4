package lua

// Metamethod event names (§4.3), grounded directly on the teacher's
// tag_methods.go eventNames table, extended with __close and __name
// which spec.md additionally names.
const (
	evIndex     = "__index"
	evNewIndex  = "__newindex"
	evGC        = "__gc"
	evMode      = "__mode"
	evLen       = "__len"
	evEq        = "__eq"
	evAdd       = "__add"
	evSub       = "__sub"
	evMul       = "__mul"
	evMod       = "__mod"
	evPow       = "__pow"
	evDiv       = "__div"
	evIDiv      = "__idiv"
	evBAnd      = "__band"
	evBOr       = "__bor"
	evBXor      = "__bxor"
	evShl       = "__shl"
	evShr       = "__shr"
	evUnm       = "__unm"
	evBNot      = "__bnot"
	evLt        = "__lt"
	evLe        = "__le"
	evConcat    = "__concat"
	evCall      = "__call"
	evToString  = "__tostring"
	evMetatable = "__metatable"
	evClose     = "__close"
	evName      = "__name"
)

// getMetatable returns v's metatable regardless of value kind, the
// way the teacher's tagMethodByObject in tag_methods.go unified the
// table/userdata/primitive cases.
func (i *Interp) getMetatable(v Value) *Table {
	switch x := v.(type) {
	case *Table:
		return x.metaTable
	case *Userdata:
		return x.metaTable
	case string:
		return i.stringMeta
	default:
		return nil
	}
}

// GetMetamethod implements §4.3 get_metamethod(name).
func (i *Interp) GetMetamethod(v Value, event string) Value {
	mt := i.getMetatable(v)
	if mt == nil {
		return nil
	}
	return mt.RawGet(event)
}

// SetMetatable implements §4.3 set_metatable, honoring a protected
// __metatable field (only tables/userdata can carry one in this
// implementation, matching the teacher's restriction to *table/*userData).
func (i *Interp) SetMetatable(v Value, mt *Table) error {
	switch x := v.(type) {
	case *Table:
		if x.metaTable != nil && x.metaTable.RawGet(evMetatable) != nil {
			return &LuaError{Value: "cannot change a protected metatable"}
		}
		x.metaTable = mt
		i.refreshWeakMode(x)
		x.finalizer = mt.rawGetOrNil(evGC)
		return nil
	case *Userdata:
		if x.metaTable != nil && x.metaTable.RawGet(evMetatable) != nil {
			return &LuaError{Value: "cannot change a protected metatable"}
		}
		x.metaTable = mt
		x.finalizer = mt.rawGetOrNil(evGC)
		return nil
	default:
		return &LuaError{Value: "cannot set metatable for a " + TypeNameOf(v) + " value"}
	}
}

// GetMetatableForRead implements §4.3 metatable/get_metatable: returns
// the __metatable field instead of the real table when one is set.
func (i *Interp) GetMetatableForRead(v Value) Value {
	mt := i.getMetatable(v)
	if mt == nil {
		return nil
	}
	if protected := mt.RawGet(evMetatable); protected != nil {
		return protected
	}
	return mt
}

const maxIndexDepth = 100

// index implements §4.3's __index dispatch: a function receives
// (t, key); a table is probed recursively (depth-limited to detect
// cycles, §4.3 "must terminate on cycles by detection").
func (i *Interp) index(t Value, key Value) (Value, error) {
	for depth := 0; depth < maxIndexDepth; depth++ {
		if tbl, ok := t.(*Table); ok {
			if v := tbl.RawGet(key); v != nil {
				return v, nil
			}
			h := i.GetMetamethod(t, evIndex)
			if h == nil {
				return nil, nil
			}
			if isCallable(h) {
				results, err := i.call(h, []Value{t, key})
				if err != nil {
					return nil, err
				}
				return first(results), nil
			}
			t = h
			continue
		}
		h := i.GetMetamethod(t, evIndex)
		if h == nil {
			return nil, &LuaError{Value: "attempt to index a " + TypeNameOf(t) + " value"}
		}
		if isCallable(h) {
			results, err := i.call(h, []Value{t, key})
			if err != nil {
				return nil, err
			}
			return first(results), nil
		}
		t = h
	}
	return nil, &LuaError{Value: "'__index' chain too long; possible loop"}
}

// newIndex implements §4.3's __newindex dispatch, consulted only when
// the key is absent from the raw table (§4.6 assignment semantics).
func (i *Interp) newIndex(t Value, key, value Value) error {
	for depth := 0; depth < maxIndexDepth; depth++ {
		if tbl, ok := t.(*Table); ok {
			if tbl.RawGet(key) != nil {
				return tbl.RawSet(key, value)
			}
			h := i.GetMetamethod(t, evNewIndex)
			if h == nil {
				return tbl.RawSet(key, value)
			}
			if isCallable(h) {
				_, err := i.call(h, []Value{t, key, value})
				return err
			}
			t = h
			continue
		}
		h := i.GetMetamethod(t, evNewIndex)
		if h == nil {
			return &LuaError{Value: "attempt to index a " + TypeNameOf(t) + " value"}
		}
		if isCallable(h) {
			_, err := i.call(h, []Value{t, key, value})
			return err
		}
		t = h
	}
	return &LuaError{Value: "'__newindex' chain too long; possible loop"}
}

func isCallable(v Value) bool {
	switch v.(type) {
	case *Closure, *GoClosure:
		return true
	}
	return false
}

// arithMetamethod dispatches a binary arithmetic/bitwise/concat
// metamethod, consulted only when the primitive rule fails (§4.3
// "consulted only when the primitive rule fails").
func (i *Interp) arithMetamethod(event string, a, b Value) (Value, bool, error) {
	h := i.GetMetamethod(a, event)
	if h == nil {
		h = i.GetMetamethod(b, event)
	}
	if h == nil {
		return nil, false, nil
	}
	results, err := i.call(h, []Value{a, b})
	if err != nil {
		return nil, true, err
	}
	return first(results), true, nil
}

func (i *Interp) unaryMetamethod(event string, a Value) (Value, bool, error) {
	h := i.GetMetamethod(a, event)
	if h == nil {
		return nil, false, nil
	}
	results, err := i.call(h, []Value{a, a})
	if err != nil {
		return nil, true, err
	}
	return first(results), true, nil
}

// eqMetamethod implements §4.3: __eq is consulted only when both
// operands are tables or both are full userdata and are not raw-equal;
// the metamethod may be present on either operand.
func (i *Interp) eqMetamethod(a, b Value) (bool, error) {
	if rawEqual(a, b) {
		return true, nil
	}
	ta, aok := a.(*Table)
	tb, bok := b.(*Table)
	if aok && bok {
		h := ta.metaTable.rawGetOrNil(evEq)
		if h == nil && tb.metaTable != nil {
			h = tb.metaTable.RawGet(evEq)
		}
		if h == nil {
			return false, nil
		}
		results, err := i.call(h, []Value{a, b})
		if err != nil {
			return false, err
		}
		return IsTruthy(first(results)), nil
	}
	ua, aok := a.(*Userdata)
	ub, bok := b.(*Userdata)
	if aok && bok {
		h := i.GetMetamethod(ua, evEq)
		if h == nil {
			h = i.GetMetamethod(ub, evEq)
		}
		if h == nil {
			return false, nil
		}
		results, err := i.call(h, []Value{a, b})
		if err != nil {
			return false, err
		}
		return IsTruthy(first(results)), nil
	}
	return false, nil
}

func (t *Table) rawGetOrNil(key string) Value {
	if t == nil {
		return nil
	}
	return t.RawGet(key)
}

// lessMetamethod dispatches __lt/__le when the primitive rule fails.
func (i *Interp) lessMetamethod(event string, a, b Value) (bool, bool, error) {
	h := i.GetMetamethod(a, event)
	if h == nil {
		h = i.GetMetamethod(b, event)
	}
	if h == nil {
		return false, false, nil
	}
	results, err := i.call(h, []Value{a, b})
	if err != nil {
		return false, true, err
	}
	return IsTruthy(first(results)), true, nil
}

// lenMetamethod dispatches __len, consulted when the primitive rule
// (string byte length, table raw length) fails — i.e. for values that
// are not strings or tables, or tables that define __len explicitly.
func (i *Interp) lenMetamethod(a Value) (Value, bool, error) {
	h := i.GetMetamethod(a, evLen)
	if h == nil {
		return nil, false, nil
	}
	results, err := i.call(h, []Value{a})
	if err != nil {
		return nil, true, err
	}
	return first(results), true, nil
}

func first(vs []Value) Value {
	if len(vs) == 0 {
		return nil
	}
	return vs[0]
}
