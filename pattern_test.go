package lua

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPatternCaptures(t *testing.T) {
	results := runLuaReturn(t, `
		local y, m, d = string.match("2026-07-31", "(%d+)-(%d+)-(%d+)")
		return y, m, d
	`)
	require.Equal(t, []Value{"2026", "07", "31"}, results)
}

func TestPatternPositionCapture(t *testing.T) {
	results := runLuaReturn(t, `return string.match("hello world", "()world")`)
	require.Equal(t, int64(7), results[0])
}

func TestPatternBalancedMatch(t *testing.T) {
	results := runLuaReturn(t, `return string.match("(foo (bar) baz)", "%b()")`)
	require.Equal(t, "(foo (bar) baz)", results[0])
}

func TestPatternFrontierAnchor(t *testing.T) {
	results := runLuaReturn(t, `
		local count = 0
		for _ in string.gmatch("THE (quick) fox JUMPS", "%f[%u]%u+") do
			count = count + 1
		end
		return count
	`)
	require.Equal(t, int64(2), results[0])
}

func TestGsubWithFunctionReplacement(t *testing.T) {
	results := runLuaReturn(t, `
		return (string.gsub("hello world", "%w+", function(w) return w:upper() end))
	`)
	require.Equal(t, "HELLO WORLD", results[0])
}

func TestGsubWithTableReplacement(t *testing.T) {
	results := runLuaReturn(t, `
		local subs = {["$name"]="Lua", ["$year"]="2026"}
		return (string.gsub("hi $name, it is $year", "%$%w+", subs))
	`)
	require.Equal(t, "hi Lua, it is 2026", results[0])
}

func TestGmatchEmptyMatchAdvancesOneByte(t *testing.T) {
	results := runLuaReturn(t, `
		local count = 0
		for _ in string.gmatch("abc", "") do
			count = count + 1
		end
		return count
	`)
	require.Equal(t, int64(4), results[0])
}

func TestStringFormat(t *testing.T) {
	results := runLuaReturn(t, `return string.format("%d-%s-%.2f", 7, "x", 3.14159)`)
	require.Equal(t, "7-x-3.14", results[0])
}
