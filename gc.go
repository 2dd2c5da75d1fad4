package lua

import (
	"fmt"
	"sync"

	hclog "github.com/hashicorp/go-hclog"
	multierror "github.com/hashicorp/go-multierror"
)

// Garbage collector (§4.8): generational mark-and-sweep with Lua 5.4
// weak-table semantics. Go already reclaims memory on our behalf, so
// this collector does not free host memory itself; instead it
// maintains the *logical* Lua reachability graph spec.md requires —
// weak-table clearing, ephemeron convergence, and once-only finalizer
// resurrection — the one part of Lua's GC contract Go's own collector
// cannot give us for free. No pack repo ships a weak-reference/
// finalization-ordering library (Go's runtime.SetFinalizer does not
// expose the ephemeron/resurrection ordering spec.md §4.8 demands), so
// this component is necessarily built on top of plain Go data
// structures — see DESIGN.md for the standard-library justification.

type gcColor uint8

const (
	gcWhite gcColor = iota
	gcGray
	gcBlack
)

type gcGen uint8

const (
	gcYoung gcGen = iota
	gcOld
)

// gcHeader is embedded in every heap-tracked object (Table, Closure,
// Coroutine, Userdata). It plays the identity/bookkeeping role
// the teacher's pointer-typed *table/*luaClosure/*userData already
// got for free from Go's allocator; we add the fields the logical GC
// needs on top. Boxes carry no header and are not registered with the
// collector; their values are traced through the frames, scopes and
// closures that hold them.
type gcHeader struct {
	gen        gcGen
	color      gcColor
	id         uint64
	finalized  bool
	zombie     bool // queued for finalization, awaiting the resurrection cycle
	finalizer  Value
	weakMode   string // "" (strong), "k", "v", "kv" — only meaningful on *Table
}

// gcObject is anything the collector can trace and sweep.
type gcObject interface {
	header() *gcHeader
}

func (t *Table) header() *gcHeader     { return &t.gcHeader }
func (c *Closure) header() *gcHeader   { return &c.gcHeader }
func (c *Coroutine) header() *gcHeader { return &c.gcHeader }
func (u *Userdata) header() *gcHeader  { return &u.gcHeader }

// GC is the collector state, one per Interp (§4.8 "a single mutable
// root... the GC, string intern pool, and type metatables hang off
// this root" — design note in spec.md §9).
type GC struct {
	mu         sync.Mutex
	young      []gcObject
	old        []gcObject
	nextID     uint64
	pauseMul   int // collectgarbage("setpause") equivalent, percent
	stepMul    int // collectgarbage("setstepmul") equivalent, percent
	stopped    bool
	allocBytes int64
	threshold  int64
	logger     hclog.Logger
}

func newGC(logger hclog.Logger) *GC {
	return &GC{pauseMul: 200, stepMul: 100, threshold: 1 << 20, logger: logger}
}

func (gc *GC) register(o gcObject) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	gc.nextID++
	h := o.header()
	h.id = gc.nextID
	h.gen = gcYoung
	gc.young = append(gc.young, o)
}

// NewTable allocates and registers a table with the collector.
func (i *Interp) NewTable() *Table {
	t := NewTable()
	i.gc.register(t)
	return t
}

// NewUserdata allocates and registers a userdata value.
func (i *Interp) NewUserdata(data interface{}) *Userdata {
	u := &Userdata{Data: data}
	i.gc.register(u)
	return u
}

// accountAlloc adds n to the allocation counter and reports whether
// the counter has reached the collection threshold. No allocation site
// calls it, so cycles run only when collectgarbage, MinorGC or MajorGC
// is invoked explicitly.
func (gc *GC) accountAlloc(n int64) (shouldMinor bool) {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	if gc.stopped {
		return false
	}
	gc.allocBytes += n
	return gc.allocBytes >= gc.threshold
}

// rootSet is supplied by the Interp at collection time (§4.8 Root
// set): the global table, every live coroutine's stack, the string
// intern table, and any host pins.
type rootSet struct {
	roots []Value
}

func (i *Interp) buildRootSet() rootSet {
	rs := rootSet{}
	rs.roots = append(rs.roots, i.globals)
	for _, co := range i.coroutines {
		for _, fr := range co.frames {
			for _, b := range fr.locals {
				rs.roots = append(rs.roots, b.value)
			}
			// Walk the frame's currently live scope chain (innermost
			// block scope outward to the function's param/_ENV scope):
			// only bindings still in lexical scope at the point the
			// frame is suspended are roots, so a <close>/local that
			// already went out of scope in an inner block can be
			// collected even while the function is still running
			// (§8 scenario 4/6 rely on this: locals of a finished `do`
			// block must stop being roots once that block exits).
			for sc := fr.scope; sc != nil; sc = sc.parent {
				for _, b := range sc.names {
					rs.roots = append(rs.roots, b.value)
				}
			}
			rs.roots = append(rs.roots, fr.pending...)
		}
	}
	for _, pin := range i.pins {
		rs.roots = append(rs.roots, pin)
	}
	return rs
}

// MinorGC runs a minor cycle (§4.8): old generation is conservatively
// treated as all-roots (in lieu of a write barrier), young objects are
// traced and swept, survivors promote. Minor cycles never clear weak
// tables or run finalizers.
func (i *Interp) MinorGC() {
	gc := i.gc
	gc.mu.Lock()
	defer gc.mu.Unlock()

	marked := make(map[gcObject]bool, len(gc.young))
	var mark func(v Value)
	mark = func(v Value) {
		o, ok := asGCObject(v)
		if !ok || marked[o] {
			return
		}
		marked[o] = true
		traceChildren(v, mark)
	}
	for _, o := range gc.old {
		marked[o] = true
		traceChildren(gcObjectValue(o), mark)
	}
	for _, v := range i.buildRootSet().roots {
		mark(v)
	}

	var survivors []gcObject
	for _, o := range gc.young {
		h := o.header()
		if marked[o] {
			h.gen = gcOld
			gc.old = append(gc.old, o)
			continue
		}
		if h.finalizer != nil && !h.finalized {
			survivors = append(survivors, o) // resurrect one extra cycle
			continue
		}
		// unreachable, non-finalizable: drop. Go's own GC reclaims
		// the memory once nothing else references it.
	}
	gc.young = survivors
	gc.allocBytes = 0
	i.gc.logger.Debug("minor gc complete", "young_survivors", len(survivors), "old", len(gc.old))
}

// MajorGC runs a full major cycle in the strict phase order of §4.8:
// mark, ephemeron convergence, separate finalizables, clear weak
// entries, sweep, run finalizers.
func (i *Interp) MajorGC() error {
	gc := i.gc
	gc.mu.Lock()

	marked := make(map[gcObject]bool)
	ephemerons := make(map[*Table]bool)
	weakValues := make(map[*Table]bool)
	allWeak := make(map[*Table]bool)

	var mark func(v Value)
	mark = func(v Value) {
		o, ok := asGCObject(v)
		if !ok || marked[o] {
			return
		}
		marked[o] = true
		if t, isTable := v.(*Table); isTable {
			switch t.weakMode {
			case "v":
				// Weak values: keys (and array-part integer indices,
				// which are never collectible themselves) stay
				// strong; values are left for the clearing phase.
				weakValues[t] = true
				for k := range t.hash {
					mark(k)
				}
				return
			case "k":
				// Weak keys: nothing is marked from this table yet;
				// ephemeron convergence below marks values whose
				// keys turn out reachable some other way.
				ephemerons[t] = true
				return
			case "kv":
				allWeak[t] = true
				return
			}
		}
		traceChildren(v, mark)
	}

	for _, v := range i.buildRootSet().roots {
		mark(v)
	}

	// Ephemeron convergence (§4.8 step 2): repeat until a pass adds
	// nothing new. Array-part entries have implicit positive-integer
	// keys, which are never heap objects and so are always "reachable"
	// for the purpose of a weak-key table — only hash-part keys can
	// make an ephemeron entry die.
	for changed := true; changed; {
		changed = false
		for t := range ephemerons {
			for k, v := range t.hash {
				if o, ok := asGCObject(k); ok && !marked[o] {
					continue
				}
				if vo, ok := asGCObject(v); ok && !marked[vo] {
					mark(v)
					changed = true
				}
			}
			for _, v := range t.array {
				if vo, ok := asGCObject(v); ok && !marked[vo] {
					mark(v)
					changed = true
				}
			}
		}
	}

	// Separate finalizables (§4.8 step 3): anything with a finalizer
	// that is still unmarked is queued and re-marked so its finalizer
	// sees a live graph.
	var toFinalize []gcObject
	visitAll := func(fn func(o gcObject)) {
		for _, o := range gc.young {
			fn(o)
		}
		for _, o := range gc.old {
			fn(o)
		}
	}
	visitAll(func(o gcObject) {
		h := o.header()
		if !marked[o] && h.finalizer != nil && !h.finalized {
			toFinalize = append(toFinalize, o)
		}
	})
	for _, o := range toFinalize {
		marked[o] = true
		traceChildren(gcObjectValue(o), mark)
	}

	// Clear weak entries (§4.8 step 4).
	for t := range weakValues {
		for k, v := range t.hash {
			if vo, ok := asGCObject(v); ok && !marked[vo] {
				delete(t.hash, k)
			}
		}
		for idx, v := range t.array {
			if vo, ok := asGCObject(v); ok && !marked[vo] {
				t.array[idx] = nil
			}
		}
	}
	for t := range ephemerons {
		for k := range t.hash {
			if ko, ok := asGCObject(k); ok && !marked[ko] {
				delete(t.hash, k)
			}
		}
	}
	for t := range allWeak {
		for k, v := range t.hash {
			ko, kIsObj := asGCObject(k)
			vo, vIsObj := asGCObject(v)
			if (kIsObj && !marked[ko]) || (vIsObj && !marked[vo]) {
				delete(t.hash, k)
			}
		}
	}

	// Sweep (§4.8 step 5).
	var survivingYoung, survivingOld []gcObject
	visitAll(func(o gcObject) {
		h := o.header()
		if marked[o] {
			if h.gen == gcYoung {
				survivingYoung = append(survivingYoung, o)
			} else {
				survivingOld = append(survivingOld, o)
			}
		}
	})
	for _, o := range toFinalize {
		o.header().zombie = true
	}
	gc.young = append(survivingYoung, toFinalize...)
	gc.old = survivingOld
	for _, o := range gc.young {
		o.header().color = gcWhite
	}
	for _, o := range gc.old {
		o.header().color = gcWhite
	}
	gc.allocBytes = 0
	gc.mu.Unlock()

	// Run finalizers (§4.8 step 6): reverse registration order,
	// errors reported but suppressed, aggregated via multierror so a
	// run with several failing finalizers still reports every one of
	// them (ambient-stack decision, SPEC_FULL.md §2).
	var errs *multierror.Error
	for idx := len(toFinalize) - 1; idx >= 0; idx-- {
		o := toFinalize[idx]
		h := o.header()
		if h.finalized {
			continue
		}
		h.finalized = true
		if err := i.runFinalizer(o); err != nil {
			errs = multierror.Append(errs, err)
			i.gc.logger.Warn("finalizer error", "error", err)
		}
	}
	if errs != nil {
		return errs.ErrorOrNil()
	}
	return nil
}

func (i *Interp) runFinalizer(o gcObject) error {
	h := o.header()
	if h.finalizer == nil {
		return nil
	}
	_, err := i.call(h.finalizer, []Value{gcObjectValue(o)})
	return err
}

func asGCObject(v Value) (gcObject, bool) {
	switch x := v.(type) {
	case *Table:
		return x, true
	case *Closure:
		return x, true
	case *Coroutine:
		return x, true
	case *Userdata:
		return x, true
	}
	return nil, false
}

func gcObjectValue(o gcObject) Value {
	switch x := o.(type) {
	case *Table:
		return x
	case *Closure:
		return x
	case *Coroutine:
		return x
	case *Userdata:
		return x
	}
	return nil
}

// traceChildren visits every Value directly reachable from v and
// calls mark on it, implementing the "strong references" half of
// §4.8 step 1 for the non-weak case.
func traceChildren(v Value, mark func(Value)) {
	switch x := v.(type) {
	case *Table:
		for _, e := range x.array {
			mark(e)
		}
		for k, e := range x.hash {
			mark(k)
			mark(e)
		}
		if x.metaTable != nil {
			mark(x.metaTable)
		}
	case *Closure:
		for _, up := range x.upvalues {
			mark(up.value)
		}
		if x.env != nil {
			mark(x.env.value)
		}
	case *Coroutine:
		for _, fr := range x.frames {
			for _, b := range fr.locals {
				mark(b.value)
			}
			for sc := fr.scope; sc != nil; sc = sc.parent {
				for _, b := range sc.names {
					mark(b.value)
				}
			}
			for _, p := range fr.pending {
				mark(p)
			}
		}
	case *Userdata:
		if x.metaTable != nil {
			mark(x.metaTable)
		}
		if x.env != nil {
			mark(x.env)
		}
	}
}

// refreshWeakMode installs t's __mode-derived weak classification (§4.8
// step 1); called whenever a table's metatable changes so the next
// major cycle picks up the right bucket.
func (i *Interp) refreshWeakMode(t *Table) {
	if t.metaTable == nil {
		t.weakMode = ""
		return
	}
	mode, _ := t.metaTable.RawGet(evMode).(string)
	hasK := containsByte(mode, 'k')
	hasV := containsByte(mode, 'v')
	switch {
	case hasK && hasV:
		t.weakMode = "kv"
	case hasK:
		t.weakMode = "k"
	case hasV:
		t.weakMode = "v"
	default:
		t.weakMode = ""
	}
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}

func debugPointer(v Value) string {
	return fmt.Sprintf("%p", v)
}

// CollectGarbage implements the collectgarbage() controls named in
// §4.8: "collect", "stop", "restart", "step", "count", "setpause",
// "setstepmul".
func (i *Interp) CollectGarbage(option string, arg int) (Value, error) {
	switch option {
	case "", "collect":
		if err := i.MajorGC(); err != nil {
			return nil, err
		}
		return int64(0), nil
	case "stop":
		i.gc.mu.Lock()
		i.gc.stopped = true
		i.gc.mu.Unlock()
		return int64(0), nil
	case "restart":
		i.gc.mu.Lock()
		i.gc.stopped = false
		i.gc.mu.Unlock()
		return int64(0), nil
	case "step":
		i.MinorGC()
		return false, nil
	case "count":
		i.gc.mu.Lock()
		defer i.gc.mu.Unlock()
		return float64(i.estimateBytes()) / 1024.0, nil
	case "setpause":
		i.gc.mu.Lock()
		old := i.gc.pauseMul
		i.gc.pauseMul = arg
		i.gc.mu.Unlock()
		return int64(old), nil
	case "setstepmul":
		i.gc.mu.Lock()
		old := i.gc.stepMul
		i.gc.stepMul = arg
		i.gc.mu.Unlock()
		return int64(old), nil
	case "isrunning":
		i.gc.mu.Lock()
		defer i.gc.mu.Unlock()
		return !i.gc.stopped, nil
	default:
		return nil, &LuaError{Value: "bad argument #1 to 'collectgarbage' (invalid option '" + option + "')"}
	}
}

// estimateBytes is a rough per-object byte estimate (tables, closures
// and coroutines only), not a precise accounting (Open Question 3 in
// SPEC_FULL.md). collectgarbage("count") reports it divided by 1024,
// in kilobytes, as real Lua's count option does.
func (i *Interp) estimateBytes() int64 {
	var total int64
	count := func(o gcObject) {
		switch x := gcObjectValue(o).(type) {
		case *Table:
			total += int64(40 + 16*len(x.array) + 48*len(x.hash))
		case *Closure:
			total += int64(64 + 8*len(x.upvalues))
		case *Coroutine:
			total += 256
		}
	}
	for _, o := range i.gc.young {
		count(o)
	}
	for _, o := range i.gc.old {
		count(o)
	}
	return total
}
