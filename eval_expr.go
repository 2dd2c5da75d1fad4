package lua

import "fmt"

// evalExprList implements §4.5's explist rule: every expression but
// the last is truncated to one value; the last spreads if it is a
// raw call or vararg expression (isMultiValueExpr).
func (i *Interp) evalExprList(co *Coroutine, fr *callFrame, scope *Scope, exprs []Expr) ([]Value, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	var out []Value
	for idx, e := range exprs[:len(exprs)-1] {
		_ = idx
		v, err := i.evalExpr(co, fr, scope, e)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	last := exprs[len(exprs)-1]
	if isMultiValueExpr(last) {
		vs, err := i.evalMulti(co, fr, scope, last)
		if err != nil {
			return nil, err
		}
		out = append(out, vs...)
		return out, nil
	}
	v, err := i.evalExpr(co, fr, scope, last)
	if err != nil {
		return nil, err
	}
	out = append(out, v)
	return out, nil
}

// evalMulti evaluates an expression that may yield more than one
// value (a call, method call, or "..."), for use in tail position of
// an explist or table constructor.
func (i *Interp) evalMulti(co *Coroutine, fr *callFrame, scope *Scope, e Expr) ([]Value, error) {
	switch x := e.(type) {
	case *CallExpr:
		fn, args, err := i.evalCallTarget(co, fr, scope, x)
		if err != nil {
			return nil, err
		}
		return i.call(fn, args)
	case *MethodCallExpr:
		fn, args, err := i.evalMethodCallTarget(co, fr, scope, x)
		if err != nil {
			return nil, err
		}
		return i.call(fn, args)
	case *VarargExpr:
		return fr.varargs, nil
	default:
		v, err := i.evalExpr(co, fr, scope, e)
		if err != nil {
			return nil, err
		}
		return []Value{v}, nil
	}
}

func (i *Interp) evalCallTarget(co *Coroutine, fr *callFrame, scope *Scope, x *CallExpr) (Value, []Value, error) {
	fn, err := i.evalExpr(co, fr, scope, x.Fn)
	if err != nil {
		return nil, nil, err
	}
	args, err := i.evalExprList(co, fr, scope, x.Args)
	if err != nil {
		return nil, nil, err
	}
	return fn, args, nil
}

func (i *Interp) evalMethodCallTarget(co *Coroutine, fr *callFrame, scope *Scope, x *MethodCallExpr) (Value, []Value, error) {
	obj, err := i.evalExpr(co, fr, scope, x.Object)
	if err != nil {
		return nil, nil, err
	}
	fn, err := i.index(obj, x.Method)
	if err != nil {
		return nil, nil, err
	}
	args, err := i.evalExprList(co, fr, scope, x.Args)
	if err != nil {
		return nil, nil, err
	}
	full := make([]Value, 0, len(args)+1)
	full = append(full, obj)
	full = append(full, args...)
	return fn, full, nil
}

// evalExpr evaluates e to exactly one value, truncating a call's or
// vararg's extra results per §4.5.
func (i *Interp) evalExpr(co *Coroutine, fr *callFrame, scope *Scope, e Expr) (Value, error) {
	switch x := e.(type) {
	case *NilExpr:
		return nil, nil
	case *TrueExpr:
		return true, nil
	case *FalseExpr:
		return false, nil
	case *NumberExpr:
		return x.Value, nil
	case *StringExpr:
		return i.intern(x.Value), nil
	case *VarargExpr:
		if len(fr.varargs) == 0 {
			return nil, nil
		}
		return fr.varargs[0], nil
	case *IdentExpr:
		if b, ok := scope.lookup(x.Name); ok {
			return b.value, nil
		}
		env := scope.envBox()
		return i.index(env.value, x.Name)
	case *IndexExpr:
		tv, err := i.evalExpr(co, fr, scope, x.Target)
		if err != nil {
			return nil, err
		}
		kv, err := i.evalExpr(co, fr, scope, x.Key)
		if err != nil {
			return nil, err
		}
		fr.line = x.Pos()
		return i.index(tv, kv)
	case *GroupedExpr:
		return i.evalExpr(co, fr, scope, x.Inner)
	case *CallExpr:
		vs, err := i.evalMulti(co, fr, scope, x)
		if err != nil {
			return nil, err
		}
		return first(vs), nil
	case *MethodCallExpr:
		vs, err := i.evalMulti(co, fr, scope, x)
		if err != nil {
			return nil, err
		}
		return first(vs), nil
	case *FunctionExpr:
		return i.makeClosure(scope, x), nil
	case *TableExpr:
		return i.evalTableExpr(co, fr, scope, x)
	case *UnaryExpr:
		return i.evalUnary(co, fr, scope, x)
	case *BinaryExpr:
		return i.evalBinary(co, fr, scope, x)
	}
	return nil, fmt.Errorf("internal: unhandled expression %T", e)
}

func (i *Interp) evalTableExpr(co *Coroutine, fr *callFrame, scope *Scope, x *TableExpr) (Value, error) {
	t := i.NewTable()
	arrayIdx := int64(1)
	for idx, field := range x.Fields {
		if field.Key != nil {
			kv, err := i.evalExpr(co, fr, scope, field.Key)
			if err != nil {
				return nil, err
			}
			vv, err := i.evalExpr(co, fr, scope, field.Value)
			if err != nil {
				return nil, err
			}
			if err := t.RawSet(kv, vv); err != nil {
				return nil, err
			}
			continue
		}
		if idx == len(x.Fields)-1 && isMultiValueExpr(field.Value) {
			vs, err := i.evalMulti(co, fr, scope, field.Value)
			if err != nil {
				return nil, err
			}
			for _, v := range vs {
				if err := t.RawSet(arrayIdx, v); err != nil {
					return nil, err
				}
				arrayIdx++
			}
			continue
		}
		vv, err := i.evalExpr(co, fr, scope, field.Value)
		if err != nil {
			return nil, err
		}
		if err := t.RawSet(arrayIdx, vv); err != nil {
			return nil, err
		}
		arrayIdx++
	}
	return t, nil
}

func (i *Interp) evalUnary(co *Coroutine, fr *callFrame, scope *Scope, x *UnaryExpr) (Value, error) {
	v, err := i.evalExpr(co, fr, scope, x.Operand)
	if err != nil {
		return nil, err
	}
	fr.line = x.Pos()
	switch x.Op {
	case "not":
		return IsFalse(v), nil
	case "-":
		if r, ok := Unm(v); ok {
			return r, nil
		}
		if r, handled, err := i.unaryMetamethod(evUnm, v); handled {
			return r, err
		}
		return nil, newRuntimeError("attempt to perform arithmetic on a %s value", TypeNameOf(v))
	case "#":
		if s, ok := v.(string); ok {
			return int64(len(s)), nil
		}
		if r, handled, err := i.lenMetamethod(v); handled {
			return r, err
		}
		if t, ok := v.(*Table); ok {
			return t.RawLen(), nil
		}
		return nil, newRuntimeError("attempt to get length of a %s value", TypeNameOf(v))
	case "~":
		if r, ok := Bnot(v); ok {
			return r, nil
		}
		if r, handled, err := i.unaryMetamethod(evBNot, v); handled {
			return r, err
		}
		return nil, newRuntimeError("attempt to perform bitwise operation on a %s value", TypeNameOf(v))
	}
	return nil, fmt.Errorf("internal: unknown unary operator %q", x.Op)
}

func (i *Interp) evalBinary(co *Coroutine, fr *callFrame, scope *Scope, x *BinaryExpr) (Value, error) {
	if x.Op == "and" {
		l, err := i.evalExpr(co, fr, scope, x.Left)
		if err != nil {
			return nil, err
		}
		if IsFalse(l) {
			return l, nil
		}
		return i.evalExpr(co, fr, scope, x.Right)
	}
	if x.Op == "or" {
		l, err := i.evalExpr(co, fr, scope, x.Left)
		if err != nil {
			return nil, err
		}
		if IsTruthy(l) {
			return l, nil
		}
		return i.evalExpr(co, fr, scope, x.Right)
	}

	l, err := i.evalExpr(co, fr, scope, x.Left)
	if err != nil {
		return nil, err
	}
	r, err := i.evalExpr(co, fr, scope, x.Right)
	if err != nil {
		return nil, err
	}
	fr.line = x.Pos()

	switch x.Op {
	case "+":
		return i.arith(evAdd, l, r, Add)
	case "-":
		return i.arith(evSub, l, r, Sub)
	case "*":
		return i.arith(evMul, l, r, Mul)
	case "/":
		return i.arith(evDiv, l, r, Div)
	case "^":
		return i.arith(evPow, l, r, Pow)
	case "//":
		return i.arithErr(evIDiv, l, r, FloorDiv)
	case "%":
		return i.arithErr(evMod, l, r, Mod)
	case "&":
		return i.bitwise(evBAnd, l, r, Band)
	case "|":
		return i.bitwise(evBOr, l, r, Bor)
	case "~":
		return i.bitwise(evBXor, l, r, Bxor)
	case "<<":
		return i.bitwise(evShl, l, r, Shl)
	case ">>":
		return i.bitwise(evShr, l, r, Shr)
	case "..":
		return i.concat(l, r)
	case "==":
		ok, err := i.eqMetamethod(l, r)
		return ok, err
	case "~=":
		ok, err := i.eqMetamethod(l, r)
		return !ok, err
	case "<":
		return i.compare(evLt, l, r, Lt)
	case "<=":
		return i.compare(evLe, l, r, Le)
	case ">":
		return i.compare(evLt, r, l, Lt)
	case ">=":
		return i.compare(evLe, r, l, Le)
	}
	return nil, fmt.Errorf("internal: unknown binary operator %q", x.Op)
}

func (i *Interp) arith(event string, a, b Value, prim func(a, b Value) (Value, bool)) (Value, error) {
	if v, ok := prim(a, b); ok {
		return v, nil
	}
	if v, handled, err := i.arithMetamethod(event, a, b); handled {
		return v, err
	}
	return nil, newRuntimeError("attempt to perform arithmetic on a %s value", TypeNameOf(pickNonNumber(a, b)))
}

func (i *Interp) arithErr(event string, a, b Value, prim func(a, b Value) (Value, error)) (Value, error) {
	v, err := prim(a, b)
	if err == nil {
		return v, nil
	}
	if dz, ok := err.(*divideByZeroError); ok {
		return nil, &LuaError{Value: dz.msg} // never falls back to a metamethod, per §4.1
	}
	if v2, handled, merr := i.arithMetamethod(event, a, b); handled {
		return v2, merr
	}
	return nil, err
}

func (i *Interp) bitwise(event string, a, b Value, prim func(a, b Value) (Value, bool)) (Value, error) {
	if v, ok := prim(a, b); ok {
		return v, nil
	}
	if v, handled, err := i.arithMetamethod(event, a, b); handled {
		return v, err
	}
	if _, aNum := ToNumber(a); aNum {
		if _, bNum := ToNumber(b); bNum {
			return nil, newRuntimeError("number has no integer representation")
		}
	}
	return nil, newRuntimeError("attempt to perform bitwise operation on a %s value", TypeNameOf(pickNonNumber(a, b)))
}

func (i *Interp) compare(event string, a, b Value, prim func(a, b Value) (bool, bool)) (Value, error) {
	if v, ok := prim(a, b); ok {
		return v, nil
	}
	if v, handled, err := i.lessMetamethod(event, a, b); handled {
		return v, err
	}
	return nil, newRuntimeError("attempt to compare %s with %s", TypeNameOf(a), TypeNameOf(b))
}

// concat implements §4.3/§4.6: numbers and strings concatenate
// directly; anything else consults __concat on either operand.
func (i *Interp) concat(a, b Value) (Value, error) {
	as, aok := toStringForConcat(a)
	bs, bok := toStringForConcat(b)
	if aok && bok {
		return as + bs, nil
	}
	if v, handled, err := i.arithMetamethod(evConcat, a, b); handled {
		return v, err
	}
	bad := a
	if aok {
		bad = b
	}
	return nil, newRuntimeError("attempt to concatenate a %s value", TypeNameOf(bad))
}
