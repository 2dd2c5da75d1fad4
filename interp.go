package lua

import (
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

// Config collects the ambient tunables SPEC_FULL.md's AMBIENT STACK
// section calls for: GC pacing, recursion guards, and the logger,
// mirroring the teacher's settable-at-construction fields (the
// teacher exposes these as State-level knobs rather than a separate
// struct; this groups them the way hashicorp-nomad's agent.Config
// groups a subsystem's tunables).
type Config struct {
	// Logger receives structured debug/trace output from the GC and
	// the coroutine scheduler. Defaults to a discarding logger when
	// nil.
	Logger hclog.Logger

	// MaxCallDepth bounds Go-stack recursion through the tree-walking
	// evaluator (§4.6 "a recursion-depth guard... raises a Lua error
	// rather than overflowing the host stack"). Zero means the
	// default of 200, matching PUC-Rio's LUAI_MAXCCALLS order of
	// magnitude.
	MaxCallDepth int

	// MaxPatternDepth bounds the pattern matcher's recursive descent
	// (§4.11 edge case: "pathological patterns must not overflow the
	// host stack").
	MaxPatternDepth int

	// GCPausePercent/GCStepMulPercent seed the GC's pacing, overridable
	// at runtime via collectgarbage("setpause"/"setstepmul") (§4.8).
	GCPausePercent   int
	GCStepMulPercent int
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = hclog.NewNullLogger()
	}
	if c.MaxCallDepth == 0 {
		c.MaxCallDepth = 200
	}
	if c.MaxPatternDepth == 0 {
		c.MaxPatternDepth = 200
	}
	if c.GCPausePercent == 0 {
		c.GCPausePercent = 200
	}
	if c.GCStepMulPercent == 0 {
		c.GCStepMulPercent = 100
	}
	return c
}

// Interp is the single mutable root every evaluator/builtin/GC method
// hangs off (§9 design note): the global table, the GC, the string
// intern pool and metatable, the live coroutine registry, and any
// host-side pins. It plays the role the teacher's *State plays for
// go-lua, generalized from one C-style register stack to the
// AST-walking model SPEC_FULL.md specifies.
type Interp struct {
	config Config
	gc     *GC
	logger hclog.Logger

	globals *Table

	// stringMeta is the shared metatable every string value sees
	// through getMetatable, carrying __index = the string library
	// table (§4.9's "strings route method calls through a shared
	// metatable").
	stringMeta *Table

	// stringIntern holds short strings (<=40 bytes, §3 invariant) so
	// that equal short strings compare via the same Go string header
	// as real Lua does at the object-identity level for the purposes
	// of table-key hashing; Go string comparison is already by value,
	// so this exists only to bound memory the way PUC-Rio's string
	// table does, not for correctness.
	stringIntern map[string]string

	coroutines []*Coroutine
	main       *Coroutine
	current    *Coroutine

	// pins are host-held values that must be treated as GC roots even
	// though nothing in globals/coroutines references them (§4.8 root
	// set: "any host pins").
	pins []Value

	callDepth int
}

// NewInterp constructs a fresh interpreter with an empty global table
// populated by the standard library subset SPEC_FULL.md carries
// (basic, string, table, math, utf8, coroutine — §1 Non-goals excludes
// the rest).
func NewInterp(cfg Config) *Interp {
	cfg = cfg.withDefaults()
	i := &Interp{
		config:       cfg,
		logger:       cfg.Logger,
		stringIntern: make(map[string]string, 256),
	}
	i.gc = newGC(cfg.Logger)
	i.gc.pauseMul = cfg.GCPausePercent
	i.gc.stepMul = cfg.GCStepMulPercent

	i.globals = NewTable()
	i.gc.register(i.globals)

	i.stringMeta = NewTable()
	i.gc.register(i.stringMeta)

	i.main = newCoroutine(i, nil)
	i.main.status = coRunning
	i.gc.register(i.main)
	i.coroutines = append(i.coroutines, i.main)
	i.current = i.main

	OpenLibs(i)
	return i
}

// currentCoroutine returns the coroutine presently running Lua code
// (§4.7: "exactly one coroutine is ever running").
func (i *Interp) currentCoroutine() *Coroutine {
	return i.current
}

// Pin registers v as a GC root independent of globals/coroutine
// stacks, for host code holding a reference across calls.
func (i *Interp) Pin(v Value) {
	i.pins = append(i.pins, v)
}

// Unpin removes the first pin equal to v, by identity for reference
// types.
func (i *Interp) Unpin(v Value) {
	for idx, p := range i.pins {
		if p == v {
			i.pins = append(i.pins[:idx], i.pins[idx+1:]...)
			return
		}
	}
}

// Globals returns the interpreter's global table (_G).
func (i *Interp) Globals() *Table { return i.globals }

// SetGlobal and GetGlobal implement §4.9's host-bridge convenience
// accessors, bypassing _ENV rewriting since the host always means the
// real global table.
func (i *Interp) SetGlobal(name string, v Value) {
	_ = i.globals.RawSet(name, v)
}

func (i *Interp) GetGlobal(name string) Value {
	return i.globals.RawGet(name)
}

// Register implements §6's host bridge "register named callables":
// expose a Go function under a global name so Lua code can call it
// like any builtin.
func (i *Interp) Register(name string, fn GoFunction) {
	i.SetGlobal(name, &GoClosure{name: name, fn: fn})
}

// intern returns the canonical Go string for short Lua strings, the
// in-memory counterpart to PUC-Rio's short-string table (§3: "strings
// up to 40 bytes are interned").
func (i *Interp) intern(s string) string {
	if len(s) > 40 {
		return s
	}
	if existing, ok := i.stringIntern[s]; ok {
		return existing
	}
	i.stringIntern[s] = s
	return s
}

// Call is the host-bridge entry point (§4.9): invoke a Lua-visible
// function value with the given arguments from Go code, outside any
// pcall scope (errors propagate as a Go error).
func (i *Interp) Call(fn Value, args ...Value) ([]Value, error) {
	return i.call(fn, args)
}

// DoString parses and runs src as the body of a vararg-accepting main
// chunk named source, the load()-then-call path §4.9 describes.
func (i *Interp) DoString(src, source string) ([]Value, error) {
	fn, err := i.Load(src, source)
	if err != nil {
		return nil, err
	}
	return i.call(fn, nil)
}

// DoFile loads and runs a chunk from disk. File/module resolution
// beyond this single-file convenience is out of scope (§1 Non-goals:
// "file/module resolver").
func (i *Interp) DoFile(path string) ([]Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LuaError{Value: err.Error()}
	}
	return i.DoString(string(data), path)
}

// Load implements §4.9 load: compiles src into a callable closure
// without running it, closing over a fresh _ENV bound to the global
// table (§4.4: "the _ENV of the main chunk is a local bound to _G").
func (i *Interp) Load(src, source string) (v Value, err error) {
	if IsDumped(src) {
		return Undump(i, src)
	}
	defer func() {
		if r := recover(); r != nil {
			if le, ok := r.(*LuaError); ok {
				err = le
				return
			}
			panic(r)
		}
	}()
	block, perr := parseChunk(src, source)
	if perr != nil {
		return nil, perr
	}
	envBox := &Box{value: i.globals}
	fn := &FunctionExpr{Params: nil, IsVararg: true, Body: block, Name: "main chunk", Source: source}
	cl := &Closure{proto: fn, env: envBox, chunkSource: src}
	i.gc.register(cl)
	return cl, nil
}
