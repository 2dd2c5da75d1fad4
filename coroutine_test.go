package lua

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoroutineResumeYieldRoundTrip(t *testing.T) {
	results := runLuaReturn(t, `
		local co = coroutine.create(function(a, b)
			local c = coroutine.yield(a + b)
			return c * 2
		end)
		local ok1, v1 = coroutine.resume(co, 3, 4)
		local ok2, v2 = coroutine.resume(co, 10)
		return ok1, v1, ok2, v2, coroutine.status(co)
	`)
	require.Len(t, results, 5)
	require.Equal(t, true, results[0])
	require.Equal(t, int64(7), results[1])
	require.Equal(t, true, results[2])
	require.Equal(t, int64(20), results[3])
	require.Equal(t, "dead", results[4])
}

func TestCoroutineStatusTransitions(t *testing.T) {
	results := runLuaReturn(t, `
		local outer
		local inner = coroutine.create(function()
			return coroutine.status(outer)
		end)
		outer = coroutine.create(function()
			local ok, innerStatus = coroutine.resume(inner)
			return innerStatus
		end)
		local ok, statusDuringResume = coroutine.resume(outer)
		return ok, statusDuringResume, coroutine.status(outer), coroutine.status(inner)
	`)
	require.Len(t, results, 4)
	require.Equal(t, true, results[0])
	require.Equal(t, "normal", results[1])
	require.Equal(t, "dead", results[2])
	require.Equal(t, "dead", results[3])
}

func TestCoroutineWrapPropagatesError(t *testing.T) {
	err := runLuaError(t, `
		local f = coroutine.wrap(function() error("wrapped boom") end)
		f()
	`)
	require.Contains(t, err.Error(), "wrapped boom")
}

func TestCoroutineResumeDeadReturnsFalse(t *testing.T) {
	results := runLuaReturn(t, `
		local co = coroutine.create(function() return 1 end)
		coroutine.resume(co)
		local ok, msg = coroutine.resume(co)
		return ok, msg
	`)
	require.Equal(t, false, results[0])
	require.Contains(t, results[1].(string), "dead")
}

// §4.7 close: running to-be-closed variables in a suspended
// coroutine's live scopes, synchronously, exactly once.
func TestCoroutineCloseRunsToBeClosed(t *testing.T) {
	results := runLuaReturn(t, `
		local closed = false
		local co = coroutine.create(function()
			local guard <close> = setmetatable({}, {__close=function() closed = true end})
			coroutine.yield()
		end)
		coroutine.resume(co)
		local ok = coroutine.close(co)
		return ok, closed, coroutine.status(co)
	`)
	require.Equal(t, true, results[0])
	require.Equal(t, true, results[1])
	require.Equal(t, "dead", results[2])
}

func TestIsYieldableOutsideCoroutine(t *testing.T) {
	results := runLuaReturn(t, `return coroutine.isyieldable()`)
	require.Equal(t, false, results[0])
}
