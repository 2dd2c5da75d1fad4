package lua

import (
	"testing"
)

// runLuaReturn runs src as a chunk and returns its return values,
// failing the test on any error. Adapted from the teacher's
// vm_test.go testString helper, retargeted from the register VM's
// testStringHelper to Interp.DoString.
func runLuaReturn(t *testing.T, src string) []Value {
	t.Helper()
	i := NewInterp(Config{})
	results, err := i.DoString(src, "=(test)")
	if err != nil {
		t.Fatalf("unexpected error running %q: %v", src, err)
	}
	return results
}

func runLuaError(t *testing.T, src string) error {
	t.Helper()
	i := NewInterp(Config{})
	_, err := i.DoString(src, "=(test)")
	if err == nil {
		t.Fatalf("expected error running %q, got none", src)
	}
	return err
}

func asInt64(t *testing.T, v Value) int64 {
	t.Helper()
	i, ok := v.(int64)
	if !ok {
		t.Fatalf("expected int64, got %T (%v)", v, v)
	}
	return i
}

// §8 scenario 1: reassigning _ENV changes globals from that point on
// without disturbing already-resolved locals.
func TestEnvRebinding(t *testing.T) {
	results := runLuaReturn(t, `
		local x = 10
		_ENV = setmetatable({}, {__index=_G})
		x = 20
		return rawget(_ENV, "x"), x
	`)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0] != nil {
		t.Errorf("rawget(_ENV,'x') = %v, want nil", results[0])
	}
	if asInt64(t, results[1]) != 20 {
		t.Errorf("x = %v, want 20", results[1])
	}
}

// §8 scenario 2: closures sharing an upvalue observe each other's
// mutations.
func TestClosureUpvalueSharing(t *testing.T) {
	results := runLuaReturn(t, `
		local function mk()
			local n = 0
			return function() n = n + 1; return n end
		end
		local f = mk()
		return f(), f(), f()
	`)
	want := []int64{1, 2, 3}
	for idx, w := range want {
		if got := asInt64(t, results[idx]); got != w {
			t.Errorf("call %d = %d, want %d", idx+1, got, w)
		}
	}
}

// §8 scenario 3: deep tail recursion must not grow the Go call stack
// in proportion to depth.
func TestTailCallElimination(t *testing.T) {
	results := runLuaReturn(t, `
		local function d(n)
			if n > 0 then
				return d(n - 1)
			else
				return 101
			end
		end
		return d(100000)
	`)
	if got := asInt64(t, results[0]); got != 101 {
		t.Errorf("d(100000) = %d, want 101", got)
	}
}

// §8 scenario 5: pattern capture position reporting.
func TestPatternFindPositions(t *testing.T) {
	results := runLuaReturn(t, `return string.find("hello", "l+")`)
	if asInt64(t, results[0]) != 3 || asInt64(t, results[1]) != 4 {
		t.Errorf("find = %v, %v, want 3, 4", results[0], results[1])
	}
}

// §8 scenario 7: __newindex fires only for absent keys.
func TestNewIndexOnlyForAbsentKeys(t *testing.T) {
	results := runLuaReturn(t, `
		local called = 0
		local t = setmetatable({x=1}, {__newindex=function(_,_,_) called=called+1 end})
		t.x = 2
		t.y = 3
		return t.x, called
	`)
	if asInt64(t, results[0]) != 2 {
		t.Errorf("t.x = %v, want 2", results[0])
	}
	if asInt64(t, results[1]) != 1 {
		t.Errorf("called = %v, want 1", results[1])
	}
}

// §8 scenario 8: the numeric for-loop integer overflow guard stops
// exactly at the point where the next control value would overflow,
// rather than wrapping.
func TestForLoopOverflowGuard(t *testing.T) {
	results := runLuaReturn(t, `
		local count = 0
		for i = math.maxinteger - 1, math.maxinteger do
			count = count + 1
		end
		return count
	`)
	if got := asInt64(t, results[0]); got != 2 {
		t.Errorf("iterations = %d, want 2", got)
	}
}

func TestIntegerFloatDistinction(t *testing.T) {
	results := runLuaReturn(t, `
		return 1 == 1.0, math.type(1), math.type(1.0), 7 // 2, 7 / 2
	`)
	if results[0] != true {
		t.Errorf("1 == 1.0 = %v, want true", results[0])
	}
	if results[1] != "integer" {
		t.Errorf("math.type(1) = %v, want integer", results[1])
	}
	if results[2] != "float" {
		t.Errorf("math.type(1.0) = %v, want float", results[2])
	}
	if asInt64(t, results[3]) != 3 {
		t.Errorf("7 // 2 = %v, want 3", results[3])
	}
	if f, ok := results[4].(float64); !ok || f != 3.5 {
		t.Errorf("7 / 2 = %v, want 3.5", results[4])
	}
}

func TestConstAttributeRejectsReassignment(t *testing.T) {
	runLuaError(t, `
		local x <const> = 1
		x = 2
	`)
}

func TestToBeClosedRunsOnScopeExit(t *testing.T) {
	results := runLuaReturn(t, `
		local log = {}
		do
			local function mkCloser(tag)
				return setmetatable({}, {__close=function() table.insert(log, tag) end})
			end
			local a <close> = mkCloser("a")
			local b <close> = mkCloser("b")
		end
		return log[1], log[2]
	`)
	if results[0] != "b" || results[1] != "a" {
		t.Errorf("close order = %v, %v, want b, a", results[0], results[1])
	}
}

func TestPcallCapturesError(t *testing.T) {
	results := runLuaReturn(t, `
		local ok, err = pcall(function() error("boom") end)
		return ok, err
	`)
	if results[0] != false {
		t.Errorf("ok = %v, want false", results[0])
	}
	s, ok := results[1].(string)
	if !ok {
		t.Fatalf("err = %T, want string", results[1])
	}
	if !containsSubstring(s, "boom") {
		t.Errorf("err = %q, want to contain 'boom'", s)
	}
}

func containsSubstring(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestGenericForIteratesTable(t *testing.T) {
	results := runLuaReturn(t, `
		local sum = 0
		for k, v in pairs({1, 2, 3}) do
			sum = sum + v
		end
		return sum
	`)
	if asInt64(t, results[0]) != 6 {
		t.Errorf("sum = %v, want 6", results[0])
	}
}

func TestStringDumpLoadRoundTrip(t *testing.T) {
	i := NewInterp(Config{})
	fn, err := i.Load(`return 41 + 1`, "=(chunk)")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	dumpFn := i.GetGlobal("string").(*Table).RawGet("dump").(*GoClosure)
	dumped, err := dumpFn.fn(i, []Value{fn})
	if err != nil {
		t.Fatalf("string.dump: %v", err)
	}
	data, ok := dumped[0].(string)
	if !ok {
		t.Fatalf("dump result = %T, want string", dumped[0])
	}
	reloaded, err := i.Load(data, "=(reloaded)")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	results, err := i.Call(reloaded)
	if err != nil {
		t.Fatalf("call reloaded: %v", err)
	}
	if asInt64(t, results[0]) != 42 {
		t.Errorf("reloaded() = %v, want 42", results[0])
	}
}

func TestHostBridgeRegisterAndCall(t *testing.T) {
	i := NewInterp(Config{})
	i.Register("double", func(i *Interp, args []Value) ([]Value, error) {
		n := args[0].(int64)
		return []Value{n * 2}, nil
	})
	results, err := i.DoString(`return double(21)`, "=(test)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if asInt64(t, results[0]) != 42 {
		t.Errorf("double(21) = %v, want 42", results[0])
	}
}
