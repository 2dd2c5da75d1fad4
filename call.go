package lua

// tailCallSignal is returned internally by the evaluator's statement
// executor to implement §4.6 tail-call elimination: a `return f(...)`
// in tail position unwinds the current activation before invoking f,
// rather than growing the Go call stack. call() loops on this signal
// instead of recursing.
type tailCallSignal struct {
	fn   Value
	args []Value
}

// call implements §4.9/§4.6's function invocation, dispatching on the
// callee's kind and iterating on tail calls so a chain of proper tail
// calls runs in constant Go-stack space (§4.6 invariant, §8 scenario).
func (i *Interp) call(fn Value, args []Value) ([]Value, error) {
	co := i.current
	depth := 0
	for {
		switch f := fn.(type) {
		case *GoClosure:
			i.callDepth++
			if i.callDepth > i.config.MaxCallDepth {
				i.callDepth--
				return nil, &LuaError{Value: "stack overflow"}
			}
			if !f.yieldable {
				co.nonYieldableDepth++
			}
			results, err := f.fn(i, args)
			if !f.yieldable {
				co.nonYieldableDepth--
			}
			i.callDepth--
			return results, err

		case *Closure:
			i.callDepth++
			if i.callDepth > i.config.MaxCallDepth {
				i.callDepth--
				return nil, &LuaError{Value: "stack overflow"}
			}
			results, tail, err := i.execClosure(co, f, args)
			i.callDepth--
			if err != nil {
				return nil, err
			}
			if tail != nil {
				fn, args = tail.fn, tail.args
				depth++
				continue
			}
			return results, nil

		default:
			h := i.GetMetamethod(fn, evCall)
			if h == nil {
				return nil, &LuaError{Value: "attempt to call a " + TypeNameOf(fn) + " value"}
			}
			newArgs := make([]Value, 0, len(args)+1)
			newArgs = append(newArgs, fn)
			newArgs = append(newArgs, args...)
			fn, args = h, newArgs
			continue
		}
	}
}

// protectedCall implements the shared machinery behind pcall/xpcall
// (§4.6): run fn, and on a thrown error, optionally run the message
// handler before the frame that raised is gone, then return the
// error as a value instead of propagating it.
func (i *Interp) protectedCall(fn Value, args []Value, handler Value) (results []Value, err error) {
	co := i.current
	savedFrames := len(co.frames)
	savedDepth := i.callDepth

	defer func() {
		if r := recover(); r != nil {
			le, ok := r.(*LuaError)
			if !ok {
				le = &LuaError{Value: fmtPanic(r)}
			}
			err = i.finishProtectedError(co, le, handler, savedFrames, savedDepth)
			results = nil
		}
	}()

	results, callErr := i.call(fn, args)
	if callErr != nil {
		le, ok := callErr.(*LuaError)
		if !ok {
			le = &LuaError{Value: callErr.Error()}
		}
		return nil, i.finishProtectedError(co, le, handler, savedFrames, savedDepth)
	}
	return results, nil
}

func (i *Interp) finishProtectedError(co *Coroutine, le *LuaError, handler Value, savedFrames, savedDepth int) error {
	if handler != nil {
		handled, herr := i.call(handler, []Value{le.Value})
		if herr != nil {
			le = &LuaError{Value: errorValue(herr)}
		} else {
			le = &LuaError{Value: first(handled)}
		}
	}
	if len(co.frames) > savedFrames {
		co.frames = co.frames[:savedFrames]
	}
	i.callDepth = savedDepth
	return le
}

func fmtPanic(r interface{}) string {
	if s, ok := r.(string); ok {
		return s
	}
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return "unknown error"
}
