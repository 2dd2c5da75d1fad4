package lua

import "fmt"

// Tree-walking evaluator (§4.6): dispatches directly on the ast.go
// node types built by parser.go, one Go call per AST node the way a
// conventional recursive-descent interpreter works — no bytecode, no
// VM dispatch loop, per spec.md's explicit mandate that this
// implementation walk the AST.

// ctrlKind tags what a statement's execution produced: fall off the
// end normally, break out of the innermost loop, return values from
// the enclosing function, or a pending goto searching for its label.
type ctrlKind int

const (
	ctrlNone ctrlKind = iota
	ctrlBreak
	ctrlReturn
	ctrlGoto
)

type ctrl struct {
	kind   ctrlKind
	values []Value
	label  string
	tail   *tailCallSignal
}

var noneCtrl = ctrl{kind: ctrlNone}

// execClosure runs cl's body against args, implementing §4.6 function
// call semantics: extra arguments are dropped, missing parameters
// bind Nil, and a vararg function's "..." captures the remainder.
func (i *Interp) execClosure(co *Coroutine, cl *Closure, args []Value) (results []Value, tail *tailCallSignal, err error) {
	fr := &callFrame{closure: cl, source: cl.proto.Source, name: cl.proto.Name, line: cl.proto.Pos()}
	scope := openScope(nil)
	envBox := &Box{value: cl.env.value}
	scope.names["_ENV"] = envBox
	scope.order = append(scope.order, "_ENV")
	fr.locals = append(fr.locals, envBox)

	for idx, up := range cl.upvalues {
		name := cl.proto.upvalNames(idx)
		scope.names[name] = up
	}

	for idx, pname := range cl.proto.Params {
		var v Value
		if idx < len(args) {
			v = args[idx]
		}
		b := scope.declare(pname, AttrNone, v)
		fr.locals = append(fr.locals, b)
	}
	if cl.proto.IsVararg && len(args) > len(cl.proto.Params) {
		fr.varargs = append([]Value(nil), args[len(cl.proto.Params):]...)
	}

	co.frames = append(co.frames, fr)
	defer func() { co.frames = co.frames[:len(co.frames)-1] }()

	c, cerr := i.execBlock(co, fr, scope, cl.proto.Body)
	if cerr != nil {
		return nil, nil, cerr
	}
	switch c.kind {
	case ctrlReturn:
		return c.values, c.tail, nil
	case ctrlGoto:
		return nil, nil, newRuntimeError("no visible label '%s' for goto", c.label)
	default:
		return nil, nil, nil
	}
}

// upvalNames returns the name of the free variable that entry idx of
// a Closure's upvalues was captured from, as recorded in
// upvalNamesList by makeClosure (below) when the closure was created;
// execClosure uses it to bind each captured Box under its name.
func (fn *FunctionExpr) upvalNames(idx int) string { return fn.upvalNamesList[idx] }

func (i *Interp) execBlock(co *Coroutine, fr *callFrame, parent *Scope, block *Block) (ctrl, error) {
	scope := openScope(parent)
	outer := fr.scope
	fr.scope = scope
	defer func() { fr.scope = outer }()
	for idx := 0; idx < len(block.Stmts); idx++ {
		c, err := i.execStmt(co, fr, scope, block.Stmts[idx])
		if err != nil {
			if cerr := i.closeScope(scope, err); cerr != nil {
				err = cerr
			}
			return noneCtrl, err
		}
		if c.kind == ctrlGoto {
			if target, ok := findLabel(block, c.label); ok {
				if cerr := i.closeScope(scope, nil); cerr != nil {
					return noneCtrl, cerr
				}
				scope = openScope(parent)
				fr.scope = scope
				idx = target // the loop's idx++ resumes just past the label
				continue
			}
		}
		if c.kind != ctrlNone {
			if cerr := i.closeScope(scope, nil); cerr != nil {
				return noneCtrl, cerr
			}
			return c, nil
		}
	}
	if err := i.closeScope(scope, nil); err != nil {
		return noneCtrl, err
	}
	return noneCtrl, nil
}

func findLabel(block *Block, label string) (int, bool) {
	for idx, s := range block.Stmts {
		if l, ok := s.(*LabelStmt); ok && l.Name == label {
			return idx, true
		}
	}
	return 0, false
}

func (i *Interp) execStmt(co *Coroutine, fr *callFrame, scope *Scope, stmt Stmt) (ctrl, error) {
	fr.line = stmt.Pos()
	switch s := stmt.(type) {
	case *LocalStmt:
		vals, err := i.evalExprList(co, fr, scope, s.Exprs)
		if err != nil {
			return noneCtrl, err
		}
		for idx, name := range s.Names {
			var v Value
			if idx < len(vals) {
				v = vals[idx]
			}
			attr := AttrNone
			if idx < len(s.Attributes) {
				attr = s.Attributes[idx]
			}
			scope.declare(name, attr, v)
		}
		return noneCtrl, nil

	case *AssignStmt:
		vals, err := i.evalExprList(co, fr, scope, s.Exprs)
		if err != nil {
			return noneCtrl, err
		}
		for idx, target := range s.Targets {
			var v Value
			if idx < len(vals) {
				v = vals[idx]
			}
			if err := i.assign(co, fr, scope, target, v); err != nil {
				return noneCtrl, err
			}
		}
		return noneCtrl, nil

	case *CallStmt:
		_, err := i.evalMulti(co, fr, scope, s.Call)
		return noneCtrl, err

	case *DoStmt:
		return i.execBlock(co, fr, scope, s.Body)

	case *IfStmt:
		condVal, err := i.evalExpr(co, fr, scope, s.Cond)
		if err != nil {
			return noneCtrl, err
		}
		if IsTruthy(condVal) {
			return i.execBlock(co, fr, scope, s.Then)
		}
		switch e := s.Else.(type) {
		case nil:
			return noneCtrl, nil
		case *IfStmt:
			return i.execStmt(co, fr, scope, e)
		case *Block:
			return i.execBlock(co, fr, scope, e)
		}
		return noneCtrl, nil

	case *WhileStmt:
		for {
			condVal, err := i.evalExpr(co, fr, scope, s.Cond)
			if err != nil {
				return noneCtrl, err
			}
			if !IsTruthy(condVal) {
				return noneCtrl, nil
			}
			c, err := i.execBlock(co, fr, scope, s.Body)
			if err != nil {
				return noneCtrl, err
			}
			switch c.kind {
			case ctrlBreak:
				return noneCtrl, nil
			case ctrlReturn, ctrlGoto:
				return c, nil
			}
		}

	case *RepeatStmt:
		for {
			// repeat's until-condition sees the body's locals (§4.6),
			// so the body block is opened here rather than delegated
			// to execBlock, which would close the scope first.
			bodyScope := openScope(scope)
			brk := false
			var result ctrl
			for idx := 0; idx < len(s.Body.Stmts); idx++ {
				c, err := i.execStmt(co, fr, bodyScope, s.Body.Stmts[idx])
				if err != nil {
					i.closeScope(bodyScope, err)
					return noneCtrl, err
				}
				if c.kind == ctrlGoto {
					if target, ok := findLabel(s.Body, c.label); ok {
						idx = target // the loop's idx++ resumes just past the label
						continue
					}
				}
				if c.kind != ctrlNone {
					result = c
					brk = true
					break
				}
			}
			if brk {
				if result.kind == ctrlBreak {
					i.closeScope(bodyScope, nil)
					return noneCtrl, nil
				}
				i.closeScope(bodyScope, nil)
				return result, nil
			}
			condVal, err := i.evalExpr(co, fr, bodyScope, s.Cond)
			if cerr := i.closeScope(bodyScope, err); cerr != nil {
				err = cerr
			}
			if err != nil {
				return noneCtrl, err
			}
			if IsTruthy(condVal) {
				return noneCtrl, nil
			}
		}

	case *NumericForStmt:
		return i.execNumericFor(co, fr, scope, s)

	case *GenericForStmt:
		return i.execGenericFor(co, fr, scope, s)

	case *FunctionDeclStmt:
		fn := i.makeClosure(scope, s.Fn)
		return noneCtrl, i.assign(co, fr, scope, s.Target, fn)

	case *LocalFunctionStmt:
		// The local is declared before the function body is closed
		// over it, so a local function can call itself (§4.6).
		box := scope.declare(s.Name, AttrNone, nil)
		fn := i.makeClosure(scope, s.Fn)
		box.value = fn
		return noneCtrl, nil

	case *ReturnStmt:
		if len(s.Exprs) == 1 {
			if callExpr, ok := s.Exprs[0].(*CallExpr); ok {
				fnVal, args, err := i.evalCallTarget(co, fr, scope, callExpr)
				if err != nil {
					return noneCtrl, err
				}
				return ctrl{kind: ctrlReturn, tail: &tailCallSignal{fn: fnVal, args: args}}, nil
			}
			if mcExpr, ok := s.Exprs[0].(*MethodCallExpr); ok {
				fnVal, args, err := i.evalMethodCallTarget(co, fr, scope, mcExpr)
				if err != nil {
					return noneCtrl, err
				}
				return ctrl{kind: ctrlReturn, tail: &tailCallSignal{fn: fnVal, args: args}}, nil
			}
		}
		vals, err := i.evalExprList(co, fr, scope, s.Exprs)
		if err != nil {
			return noneCtrl, err
		}
		return ctrl{kind: ctrlReturn, values: vals}, nil

	case *BreakStmt:
		return ctrl{kind: ctrlBreak}, nil

	case *GotoStmt:
		return ctrl{kind: ctrlGoto, label: s.Label}, nil

	case *LabelStmt:
		return noneCtrl, nil
	}
	return noneCtrl, fmt.Errorf("internal: unhandled statement %T", stmt)
}

func (i *Interp) execNumericFor(co *Coroutine, fr *callFrame, scope *Scope, s *NumericForStmt) (ctrl, error) {
	startV, err := i.evalExpr(co, fr, scope, s.Start)
	if err != nil {
		return noneCtrl, err
	}
	limitV, err := i.evalExpr(co, fr, scope, s.Limit)
	if err != nil {
		return noneCtrl, err
	}
	var stepV Value = int64(1)
	if s.Step != nil {
		stepV, err = i.evalExpr(co, fr, scope, s.Step)
		if err != nil {
			return noneCtrl, err
		}
	}
	startN, ok1 := ToNumber(startV)
	stepN, ok2 := ToNumber(stepV)
	if !ok1 || !ok2 {
		return noneCtrl, newRuntimeError("'for' initial value must be a number")
	}
	if si, isInt := startN.(int64); isInt {
		if sti, isInt2 := stepN.(int64); isInt2 {
			if sti == 0 {
				return noneCtrl, newRuntimeError("'for' step is zero")
			}
			limit, ok := forLimit(limitV, sti)
			if !ok {
				if _, isNum := ToNumber(limitV); !isNum {
					return noneCtrl, newRuntimeError("'for' limit must be a number")
				}
			}
			for v := si; (sti > 0 && v <= limit) || (sti < 0 && v >= limit); v += sti {
				c, err := i.runForBody(co, fr, scope, s.Var, v, s.Body)
				if err != nil || c.kind != ctrlNone {
					return c, err
				}
				// overflow guard: if adding sti would wrap past the
				// int64 range in the direction of travel, stop (§4.6
				// "a wrapping integer loop variable must not loop
				// forever").
				if sti > 0 && v > maxInt64-sti {
					break
				}
				if sti < 0 && v < minInt64-sti {
					break
				}
			}
			return noneCtrl, nil
		}
	}
	sf, _ := toFloatValue(startN)
	stf, _ := toFloatValue(stepN)
	if stf == 0 {
		return noneCtrl, newRuntimeError("'for' step is zero")
	}
	lf, ok := toFloatValue(limitV)
	if !ok {
		ln, lok := ToNumber(limitV)
		if !lok {
			return noneCtrl, newRuntimeError("'for' limit must be a number")
		}
		lf, _ = toFloatValue(ln)
	}
	for v := sf; (stf > 0 && v <= lf) || (stf < 0 && v >= lf); v += stf {
		c, err := i.runForBody(co, fr, scope, s.Var, v, s.Body)
		if err != nil || c.kind != ctrlNone {
			return c, err
		}
	}
	return noneCtrl, nil
}

func (i *Interp) runForBody(co *Coroutine, fr *callFrame, parent *Scope, varName string, v Value, body *Block) (ctrl, error) {
	loopScope := openScope(parent)
	loopScope.declare(varName, AttrConst, v)
	c, err := i.execBlock(co, fr, loopScope, body)
	if err != nil {
		return noneCtrl, err
	}
	if c.kind == ctrlBreak {
		return ctrl{kind: ctrlNone}, nil
	}
	if c.kind == ctrlReturn || c.kind == ctrlGoto {
		return c, nil
	}
	return noneCtrl, nil
}

func (i *Interp) execGenericFor(co *Coroutine, fr *callFrame, scope *Scope, s *GenericForStmt) (ctrl, error) {
	vals, err := i.evalExprList(co, fr, scope, s.Exprs)
	if err != nil {
		return noneCtrl, err
	}
	iterFn := get(vals, 0)
	state := get(vals, 1)
	control := get(vals, 2)

	// vals[3], the fourth control value, is to-be-closed for the
	// duration of the loop (§4.6): `for ... in iter, state, ctrl, closer
	// do` runs closer's __close on every exit path, same as a <close>
	// local declared around the whole loop.
	closerScope := openScope(scope)
	closerScope.declare("(for closing value)", AttrClose, get(vals, 3))
	finish := func(c ctrl, err error) (ctrl, error) {
		return c, i.closeScope(closerScope, err)
	}

	for {
		results, err := i.call(iterFn, []Value{state, control})
		if err != nil {
			return finish(noneCtrl, err)
		}
		if len(results) == 0 || results[0] == nil {
			return finish(noneCtrl, nil)
		}
		control = results[0]
		loopScope := openScope(closerScope)
		for idx, name := range s.Names {
			var v Value
			if idx < len(results) {
				v = results[idx]
			}
			loopScope.declare(name, AttrNone, v)
		}
		c, err := i.execBlock(co, fr, loopScope, s.Body)
		if err != nil {
			return finish(noneCtrl, err)
		}
		switch c.kind {
		case ctrlBreak:
			return finish(noneCtrl, nil)
		case ctrlReturn, ctrlGoto:
			return finish(c, nil)
		}
	}
}

func get(vals []Value, idx int) Value {
	if idx < len(vals) {
		return vals[idx]
	}
	return nil
}

// assign implements one target of an assignment statement / for-loop
// binding: a bare name resolves through the scope chain, falling back
// to _ENV[name] = v for globals (§4.4 "unresolved names rewrite to
// _ENV[name]"); an index target dispatches through __newindex.
func (i *Interp) assign(co *Coroutine, fr *callFrame, scope *Scope, target Expr, v Value) error {
	switch t := target.(type) {
	case *IdentExpr:
		if b, ok := scope.lookup(t.Name); ok {
			if b.attr == AttrConst || b.attr == AttrClose {
				return newRuntimeError("attempt to assign to const variable '%s'", t.Name)
			}
			b.value = v
			return nil
		}
		env := scope.envBox()
		return i.newIndex(env.value, t.Name, v)
	case *IndexExpr:
		tv, err := i.evalExpr(co, fr, scope, t.Target)
		if err != nil {
			return err
		}
		kv, err := i.evalExpr(co, fr, scope, t.Key)
		if err != nil {
			return err
		}
		return i.newIndex(tv, kv, v)
	}
	return newRuntimeError("invalid assignment target")
}

// makeClosure implements §4.4's closure-creation rule: captures the
// boxes of every free variable visible in scope at creation time
// (including _ENV), giving Lua's upvalue-sharing semantics directly
// through shared *Box pointers rather than a copy-in/copy-out scheme.
func (i *Interp) makeClosure(scope *Scope, fn *FunctionExpr) *Closure {
	names, boxes := collectFreeVars(scope, fn)
	fn.upvalNamesList = names
	cl := &Closure{proto: fn, upvalues: boxes, env: scope.envBox(), name: fn.Name}
	i.gc.register(cl)
	return cl
}

// collectFreeVars walks fn's body collecting every identifier that is
// not one of its own parameters/locals, resolving each against the
// defining scope to capture its live Box. This is the AST-walking
// counterpart to a bytecode compiler's upvalue table.
func collectFreeVars(scope *Scope, fn *FunctionExpr) ([]string, []*Box) {
	bound := map[string]bool{"_ENV": false}
	for _, p := range fn.Params {
		bound[p] = true
	}
	seen := map[string]bool{}
	var names []string
	var boxes []*Box
	var walkBlock func(b *Block, locals map[string]bool)
	var walkStmt func(s Stmt, locals map[string]bool)
	var walkExpr func(e Expr, locals map[string]bool)

	capture := func(name string, locals map[string]bool) {
		if locals[name] || seen[name] {
			return
		}
		if b, ok := scope.lookup(name); ok {
			seen[name] = true
			names = append(names, name)
			boxes = append(boxes, b)
		}
	}

	walkExpr = func(e Expr, locals map[string]bool) {
		switch x := e.(type) {
		case *IdentExpr:
			capture(x.Name, locals)
		case *IndexExpr:
			walkExpr(x.Target, locals)
			walkExpr(x.Key, locals)
		case *BinaryExpr:
			walkExpr(x.Left, locals)
			walkExpr(x.Right, locals)
		case *UnaryExpr:
			walkExpr(x.Operand, locals)
		case *GroupedExpr:
			walkExpr(x.Inner, locals)
		case *CallExpr:
			walkExpr(x.Fn, locals)
			for _, a := range x.Args {
				walkExpr(a, locals)
			}
		case *MethodCallExpr:
			walkExpr(x.Object, locals)
			for _, a := range x.Args {
				walkExpr(a, locals)
			}
		case *FunctionExpr:
			inner := map[string]bool{}
			for k := range locals {
				inner[k] = true
			}
			for _, p := range x.Params {
				inner[p] = true
			}
			if x.Body != nil {
				walkBlock(x.Body, inner)
			}
		case *TableExpr:
			for _, f := range x.Fields {
				if f.Key != nil {
					walkExpr(f.Key, locals)
				}
				walkExpr(f.Value, locals)
			}
		}
	}

	walkStmt = func(s Stmt, locals map[string]bool) {
		switch x := s.(type) {
		case *LocalStmt:
			for _, e := range x.Exprs {
				walkExpr(e, locals)
			}
			for _, n := range x.Names {
				locals[n] = true
			}
		case *AssignStmt:
			for _, t := range x.Targets {
				walkExpr(t, locals)
			}
			for _, e := range x.Exprs {
				walkExpr(e, locals)
			}
		case *CallStmt:
			walkExpr(x.Call, locals)
		case *DoStmt:
			inner := cloneSet(locals)
			walkBlock(x.Body, inner)
		case *IfStmt:
			walkExpr(x.Cond, locals)
			walkBlock(x.Then, cloneSet(locals))
			if x.Else != nil {
				switch e := x.Else.(type) {
				case *IfStmt:
					walkStmt(e, locals)
				case *Block:
					walkBlock(e, cloneSet(locals))
				}
			}
		case *WhileStmt:
			walkExpr(x.Cond, locals)
			walkBlock(x.Body, cloneSet(locals))
		case *RepeatStmt:
			inner := cloneSet(locals)
			walkBlock(x.Body, inner)
			walkExpr(x.Cond, inner)
		case *NumericForStmt:
			walkExpr(x.Start, locals)
			walkExpr(x.Limit, locals)
			if x.Step != nil {
				walkExpr(x.Step, locals)
			}
			inner := cloneSet(locals)
			inner[x.Var] = true
			walkBlock(x.Body, inner)
		case *GenericForStmt:
			for _, e := range x.Exprs {
				walkExpr(e, locals)
			}
			inner := cloneSet(locals)
			for _, n := range x.Names {
				inner[n] = true
			}
			walkBlock(x.Body, inner)
		case *FunctionDeclStmt:
			walkExpr(x.Target, locals)
			walkExpr(x.Fn, locals)
		case *LocalFunctionStmt:
			locals[x.Name] = true
			walkExpr(x.Fn, locals)
		case *ReturnStmt:
			for _, e := range x.Exprs {
				walkExpr(e, locals)
			}
		}
	}

	walkBlock = func(b *Block, locals map[string]bool) {
		for _, s := range b.Stmts {
			walkStmt(s, locals)
		}
	}

	initial := map[string]bool{}
	for k := range bound {
		initial[k] = bound[k]
	}
	if fn.Body != nil {
		walkBlock(fn.Body, initial)
	}
	capture("_ENV", map[string]bool{})
	return names, boxes
}

func cloneSet(m map[string]bool) map[string]bool {
	n := make(map[string]bool, len(m))
	for k, v := range m {
		n[k] = v
	}
	return n
}
