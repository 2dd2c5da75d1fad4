package lua

import "fmt"

// Coroutine status (§4.7).
type coStatus int

const (
	coSuspended coStatus = iota
	coRunning
	coNormal // resumed another coroutine, waiting for it to finish/yield
	coDead
)

func (s coStatus) String() string {
	switch s {
	case coSuspended:
		return "suspended"
	case coRunning:
		return "running"
	case coNormal:
		return "normal"
	case coDead:
		return "dead"
	}
	return "dead"
}

// callFrame is one activation record on a coroutine's Lua call stack,
// tracked for tracebacks (§4.10) and as GC roots (§4.8 root set: "every
// live coroutine's stack"). Kept distinct from error.go's exported
// Frame, which is the flattened snapshot handed to host code.
type callFrame struct {
	closure  *Closure
	scope    *Scope
	locals   []*Box // the _ENV and parameter boxes of this activation, for GC rooting; block locals are reached through scope
	pending  []Value
	source   string
	line     int
	name     string
	tailCall bool
	varargs  []Value
}

// resumeMsg/yieldMsg carry values across the goroutine boundary that
// backs each coroutine (§4.7: "a cooperative scheduler... each
// coroutine its own Go goroutine with channel-based handoff so that
// only one ever runs Lua code at a time").
type resumeMsg struct {
	args []Value
}

type yieldMsg struct {
	values []Value
	err    error
	done   bool
}

// Coroutine is a Lua thread (§4.7). fn is nil for the interpreter's
// main coroutine, which never has a backing goroutine of its own —
// it runs directly on the Go goroutine that called NewInterp/DoString.
type Coroutine struct {
	gcHeader

	interp *Interp
	fn     Value // the function the coroutine runs; nil for main
	status coStatus

	frames []*callFrame

	// nonYieldableDepth counts GoClosure frames currently on this
	// coroutine's call stack that were not declared yieldable (§4.7,
	// §4.9): a nonzero depth means coroutine.yield must fail, the same
	// boundary real Lua enforces around plain C functions.
	nonYieldableDepth int

	resumeCh chan resumeMsg
	yieldCh  chan yieldMsg
	started  bool

	resumer *Coroutine // who resumed this one, for status "normal" bookkeeping
}

func newCoroutine(i *Interp, fn Value) *Coroutine {
	return &Coroutine{
		interp:   i,
		fn:       fn,
		status:   coSuspended,
		resumeCh: make(chan resumeMsg),
		yieldCh:  make(chan yieldMsg),
	}
}

// NewCoroutine implements §4.7 coroutine.create.
func (i *Interp) NewCoroutine(fn Value) *Coroutine {
	co := newCoroutine(i, fn)
	i.gc.register(co)
	i.coroutines = append(i.coroutines, co)
	return co
}

// Status implements §4.7 coroutine.status.
func (co *Coroutine) Status() string { return co.status.String() }

// Resume implements §4.7 coroutine.resume: transfers control to co,
// blocking the caller until co yields, returns, or errors. Only one
// coroutine runs at a time; the caller's own coroutine becomes
// "normal" for the duration.
func (i *Interp) Resume(co *Coroutine, args []Value) (ok bool, results []Value) {
	if co.status == coDead {
		return false, []Value{"cannot resume dead coroutine"}
	}
	if co.status != coSuspended {
		return false, []Value{"cannot resume non-suspended coroutine"}
	}

	caller := i.current
	caller.status = coNormal
	co.resumer = caller
	co.status = coRunning
	i.current = co
	i.logger.Debug("coroutine resume", "thread", debugPointerCoroutine(co))

	if !co.started {
		co.started = true
		go i.runCoroutine(co, args)
	} else {
		co.resumeCh <- resumeMsg{args: args}
	}

	msg := <-co.yieldCh

	i.current = caller
	caller.status = coRunning

	if msg.done {
		co.status = coDead
	} else if msg.err != nil {
		co.status = coDead
	} else {
		co.status = coSuspended
	}
	i.logger.Debug("coroutine resume returned", "thread", debugPointerCoroutine(co), "status", co.status.String())

	if msg.err != nil {
		return false, []Value{errorValue(msg.err)}
	}
	return true, msg.values
}

// runCoroutine is the goroutine body backing a non-main coroutine. It
// calls the coroutine's function and reports completion/error over
// yieldCh exactly like a yield, distinguished by done=true.
func (i *Interp) runCoroutine(co *Coroutine, args []Value) {
	results, err := i.call(co.fn, args)
	co.yieldCh <- yieldMsg{values: results, err: err, done: true}
}

// Yield implements §4.7 coroutine.yield, callable only from within the
// goroutine backing the currently running (non-main) coroutine.
func (i *Interp) Yield(values []Value) ([]Value, error) {
	co := i.current
	if co == i.main {
		return nil, &LuaError{Value: "attempt to yield from outside a coroutine"}
	}
	if co.nonYieldableDepth > 0 {
		return nil, &LuaError{Value: "attempt to yield across a C-call boundary"}
	}
	co.yieldCh <- yieldMsg{values: values}
	msg := <-co.resumeCh
	return msg.args, nil
}

// IsYieldable implements §4.7 coroutine.isyieldable.
func (i *Interp) IsYieldable() bool { return i.current != i.main }

// Running implements §4.7 coroutine.running.
func (i *Interp) Running() (*Coroutine, bool) {
	return i.current, i.current == i.main
}

// debugPointerCoroutine renders a thread value's identity for
// tostring, mirroring debugPointer's table/function formatting.
func debugPointerCoroutine(co *Coroutine) string {
	return fmt.Sprintf("thread: %p", co)
}

// Close implements §4.7 coroutine.close: forces a suspended coroutine
// to dead, synchronously running any to-be-closed variables live in
// its suspended scope chain (innermost frame and scope first, per
// env.go's closeScope ordering) before returning. A running or normal
// coroutine cannot be closed; a dead one is a no-op success.
func (i *Interp) Close(co *Coroutine) (bool, error) {
	switch co.status {
	case coDead:
		return true, nil
	case coRunning, coNormal:
		return false, &LuaError{Value: "cannot close a " + co.status.String() + " coroutine"}
	}
	var pending error
	for idx := len(co.frames) - 1; idx >= 0; idx-- {
		for sc := co.frames[idx].scope; sc != nil; sc = sc.parent {
			pending = i.closeScope(sc, pending)
		}
	}
	co.status = coDead
	co.frames = nil
	if pending != nil {
		return false, pending
	}
	return true, nil
}
