package lua

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// §8 scenario 4: a weak-values table loses its entry once the value is
// reachable only through it.
func TestWeakValuesTableClearsEntry(t *testing.T) {
	results := runLuaReturn(t, `
		local w = setmetatable({}, {__mode="v"})
		w[1] = {}
		collectgarbage("collect")
		return w[1]
	`)
	require.Len(t, results, 1)
	require.Nil(t, results[0])
}

// §8 scenario 6: an ephemeron table's entry survives while the key is
// reachable some other way, and is cleared once it is not.
func TestEphemeronTableTracksKeyLiveness(t *testing.T) {
	results := runLuaReturn(t, `
		local w = setmetatable({}, {__mode="k"})
		local stillLive
		do
			local k = {}
			w[k] = "live"
			collectgarbage("collect")
			stillLive = w[k]
		end
		collectgarbage("collect")
		local n = 0
		for _ in pairs(w) do n = n + 1 end
		return stillLive, n
	`)
	require.Len(t, results, 2)
	require.Equal(t, "live", results[0])
	require.Equal(t, int64(0), results[1])
}

// An all-weak ("kv") table clears entries whose key or value is
// otherwise unreachable.
func TestAllWeakTableClearsBothSides(t *testing.T) {
	results := runLuaReturn(t, `
		local w = setmetatable({}, {__mode="kv"})
		do
			local k, v = {}, {}
			w[k] = v
			collectgarbage("collect")
		end
		collectgarbage("collect")
		local n = 0
		for _ in pairs(w) do n = n + 1 end
		return n
	`)
	require.Len(t, results, 1)
	require.Equal(t, int64(0), results[0])
}

// Finalizer resurrection: an object with __gc survives the cycle in
// which it is first found unreachable, then is actually collected (and
// finalized exactly once) on a later cycle.
func TestFinalizerRunsOnce(t *testing.T) {
	i := NewInterp(Config{})
	_, err := i.DoString(`
		finalizeCount = 0
		local function mk()
			return setmetatable({}, {__gc=function() finalizeCount = finalizeCount + 1 end})
		end
		do
			local obj = mk()
		end
		collectgarbage("collect")
		collectgarbage("collect")
	`, "=(test)")
	require.NoError(t, err)
	count := i.GetGlobal("finalizeCount")
	require.Equal(t, int64(1), count)
}

func TestCollectGarbageStopAndRestart(t *testing.T) {
	i := NewInterp(Config{})
	_, err := i.CollectGarbage("stop", 0)
	require.NoError(t, err)
	running, err := i.CollectGarbage("isrunning", 0)
	require.NoError(t, err)
	require.Equal(t, false, running)
	_, err = i.CollectGarbage("restart", 0)
	require.NoError(t, err)
	running, err = i.CollectGarbage("isrunning", 0)
	require.NoError(t, err)
	require.Equal(t, true, running)
}
