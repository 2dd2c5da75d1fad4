package lua

import (
	"math"
	"strconv"
	"strings"
)

// Numeric kernel (§4.1). Grounded on the teacher's arith/toInteger/
// toFloat/forLimit helpers in types.go, expanded to the full operator
// set spec.md names and restructured to return (Value, error) instead
// of panicking through the teacher's Errorf(l, ...) stack-unwind path.

const (
	maxInt64     = int64(1<<63 - 1)
	minInt64     = int64(-1 << 63)
	pow2_63Float = float64(1 << 63)
)

func isInteger(v Value) bool { _, ok := v.(int64); return ok }
func isFloat(v Value) bool   { _, ok := v.(float64); return ok }

func isNumber(v Value) bool {
	switch v.(type) {
	case int64, float64:
		return true
	}
	return false
}

// toFloatValue converts a Lua number (not a string) to float64.
func toFloatValue(v Value) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// floatToInteger converts f to int64 when f is finite, in range, and
// has no fractional part — the teacher's floatToInteger in types.go.
func floatToInteger(f float64) (int64, bool) {
	if f != f || f >= pow2_63Float || f < -pow2_63Float {
		return 0, false
	}
	i := int64(f)
	if float64(i) == f {
		return i, true
	}
	return 0, false
}

// ToInteger implements §4.1 tointeger: integer as-is, float iff exact
// and in range, string iff it parses to an integer.
func ToInteger(v Value) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return floatToInteger(n)
	case string:
		if i, f, isInt, ok := parseNumber(n); ok {
			if isInt {
				return i, true
			}
			return floatToInteger(f)
		}
	}
	return 0, false
}

// ToFloat implements §4.1 tonumber's float half: numbers convert
// directly, strings are parsed (decimal, hex, hex-float).
func ToFloat(v Value) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case string:
		if i, f, isInt, ok := parseNumber(n); ok {
			if isInt {
				return float64(i), true
			}
			return f, true
		}
	}
	return 0, false
}

// ToNumber implements §4.1 tonumber in full: integer first, then
// float, matching Lua's own preference for preserving integer-ness.
func ToNumber(v Value) (Value, bool) {
	switch n := v.(type) {
	case int64, float64:
		return n, true
	case string:
		if i, f, isInt, ok := parseNumber(n); ok {
			if isInt {
				return i, true
			}
			return f, true
		}
	}
	return nil, false
}

// parseNumber parses decimal integers/floats, hex integers (0x...),
// and hex floats (0x1.8p3), with optional surrounding whitespace and
// sign, per §4.1.
func parseNumber(s string) (i int64, f float64, isInt bool, ok bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return
	}
	neg := false
	rest := t
	if rest[0] == '+' || rest[0] == '-' {
		neg = rest[0] == '-'
		rest = rest[1:]
	}
	if rest == "" {
		return
	}
	lower := strings.ToLower(rest)
	if strings.HasPrefix(lower, "0x") {
		body := rest[2:]
		if body == "" {
			return
		}
		if !strings.ContainsAny(body, ".pP") {
			// Hex integer: Lua wraps on overflow rather than failing.
			var acc uint64
			for _, c := range body {
				d, okd := hexDigit(byte(c))
				if !okd {
					return
				}
				acc = acc*16 + uint64(d)
			}
			iv := int64(acc)
			if neg {
				iv = -iv
			}
			return iv, 0, true, true
		}
		fv, okf := strconv.ParseFloat(rest, 64)
		if !okf {
			return
		}
		if neg {
			fv = -fv
		}
		return 0, fv, false, true
	}
	// Decimal: prefer integer when there's no '.', exponent, inf/nan.
	if !strings.ContainsAny(rest, ".eEnN") {
		iv, err := strconv.ParseInt(rest, 10, 64)
		if err == nil {
			if neg {
				iv = -iv
			}
			return iv, 0, true, true
		}
		// Falls through to float on overflow, matching Lua's
		// behavior of accepting digit strings too large for int64
		// as a float literal.
	}
	fv, err := strconv.ParseFloat(rest, 64)
	if err != nil || math.IsInf(fv, 0) || math.IsNaN(fv) {
		return
	}
	if neg {
		fv = -fv
	}
	return 0, fv, false, true
}

func hexDigit(c byte) (int, bool) {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0'), true
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10, true
	}
	return 0, false
}

// NumberToString implements §4.1 tostring for numbers: "%.14g" for
// floats (the teacher's numberToString), "%d" for integers, with
// Lua's float-looking-like-an-integer suffix (e.g. "1.0" not "1").
func NumberToString(v Value) string {
	switch n := v.(type) {
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		if math.IsInf(n, 1) {
			return "inf"
		}
		if math.IsInf(n, -1) {
			return "-inf"
		}
		if n != n {
			return "nan"
		}
		s := strconv.FormatFloat(n, 'g', 14, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		return s
	}
	return ""
}

// divideByZeroError marks FloorDiv/Mod's integer-division-by-zero
// case, which §4.1 says always raises rather than falling back to a
// metamethod (unlike every other arithmetic failure).
type divideByZeroError struct{ msg string }

func (e *divideByZeroError) Error() string { return e.msg }

func arithErrorOperand(v Value) error {
	return &LuaError{Value: "attempt to perform arithmetic on a " + TypeNameOf(v) + " value"}
}

// arithNumeric coerces both operands to numbers the way Lua's
// primitive arithmetic does (including string coercion), returning
// ok=false when either operand does not coerce; it consults no
// metamethods.
func arithNumeric(a, b Value) (av, bv Value, ok bool) {
	an, aok := ToNumber(a)
	bn, bok := ToNumber(b)
	if !aok || !bok {
		return nil, nil, false
	}
	return an, bn, true
}

// Add implements §4.1 add: integer+integer wraps modulo 2^64 (Lua
// 5.4 wrap-around semantics), any float operand promotes to float.
func Add(a, b Value) (Value, bool) {
	if ai, aok := a.(int64); aok {
		if bi, bok := b.(int64); bok {
			return ai + bi, true
		}
	}
	av, bv, ok := arithNumeric(a, b)
	if !ok {
		return nil, false
	}
	if ai, aok := av.(int64); aok {
		if bi, bok := bv.(int64); bok {
			return ai + bi, true
		}
	}
	af, _ := toFloatValue(av)
	bf, _ := toFloatValue(bv)
	return af + bf, true
}

func Sub(a, b Value) (Value, bool) {
	if ai, aok := a.(int64); aok {
		if bi, bok := b.(int64); bok {
			return ai - bi, true
		}
	}
	av, bv, ok := arithNumeric(a, b)
	if !ok {
		return nil, false
	}
	if ai, aok := av.(int64); aok {
		if bi, bok := bv.(int64); bok {
			return ai - bi, true
		}
	}
	af, _ := toFloatValue(av)
	bf, _ := toFloatValue(bv)
	return af - bf, true
}

func Mul(a, b Value) (Value, bool) {
	if ai, aok := a.(int64); aok {
		if bi, bok := b.(int64); bok {
			return ai * bi, true
		}
	}
	av, bv, ok := arithNumeric(a, b)
	if !ok {
		return nil, false
	}
	if ai, aok := av.(int64); aok {
		if bi, bok := bv.(int64); bok {
			return ai * bi, true
		}
	}
	af, _ := toFloatValue(av)
	bf, _ := toFloatValue(bv)
	return af * bf, true
}

// Div always yields a float (§3 invariant): "/" never preserves
// integers, even for integer operands.
func Div(a, b Value) (Value, bool) {
	av, bv, ok := arithNumeric(a, b)
	if !ok {
		return nil, false
	}
	af, _ := toFloatValue(av)
	bf, _ := toFloatValue(bv)
	return af / bf, true
}

// Pow always yields a float, matching the teacher's arith(OpPow, ...)
// special-case for base-10 (a Go math.Pow precision workaround) kept
// verbatim because it is a real, narrow correctness fix, not scaffolding.
func Pow(a, b Value) (Value, bool) {
	av, bv, ok := arithNumeric(a, b)
	if !ok {
		return nil, false
	}
	af, _ := toFloatValue(av)
	bf, _ := toFloatValue(bv)
	if af == 10.0 && float64(int(bf)) == bf {
		return math.Pow10(int(bf)), true
	}
	return math.Pow(af, bf), true
}

// FloorDiv implements §4.1 floordiv: integer result (floor toward
// -inf) when both operands are integers, dividing by zero raises;
// float operands produce IEEE ±inf/NaN instead of raising.
func FloorDiv(a, b Value) (Value, error) {
	if ai, aok := a.(int64); aok {
		if bi, bok := b.(int64); bok {
			if bi == 0 {
				return nil, &divideByZeroError{msg: "attempt to perform 'n//0'"}
			}
			q := ai / bi
			if (ai%bi != 0) && ((ai < 0) != (bi < 0)) {
				q--
			}
			return q, nil
		}
	}
	av, bv, ok := arithNumeric(a, b)
	if !ok {
		return nil, arithErrorOperand(pickNonNumber(a, b))
	}
	if ai, aok := av.(int64); aok {
		if bi, bok := bv.(int64); bok {
			if bi == 0 {
				return nil, &divideByZeroError{msg: "attempt to perform 'n//0'"}
			}
			q := ai / bi
			if (ai%bi != 0) && ((ai < 0) != (bi < 0)) {
				q--
			}
			return q, nil
		}
	}
	af, _ := toFloatValue(av)
	bf, _ := toFloatValue(bv)
	return math.Floor(af / bf), nil
}

// Mod implements §4.1: mod(a,b) = a - floordiv(a,b)*b, sign follows
// the divisor.
func Mod(a, b Value) (Value, error) {
	if ai, aok := a.(int64); aok {
		if bi, bok := b.(int64); bok {
			if bi == 0 {
				return nil, &divideByZeroError{msg: "attempt to perform 'n%0'"}
			}
			r := ai % bi
			if r != 0 && (r < 0) != (bi < 0) {
				r += bi
			}
			return r, nil
		}
	}
	av, bv, ok := arithNumeric(a, b)
	if !ok {
		return nil, arithErrorOperand(pickNonNumber(a, b))
	}
	if ai, aok := av.(int64); aok {
		if bi, bok := bv.(int64); bok {
			if bi == 0 {
				return nil, &divideByZeroError{msg: "attempt to perform 'n%0'"}
			}
			r := ai % bi
			if r != 0 && (r < 0) != (bi < 0) {
				r += bi
			}
			return r, nil
		}
	}
	af, _ := toFloatValue(av)
	bf, _ := toFloatValue(bv)
	r := math.Mod(af, bf)
	if r != 0 && (r < 0) != (bf < 0) {
		r += bf
	}
	return r, nil
}

func Unm(a Value) (Value, bool) {
	switch n := a.(type) {
	case int64:
		return -n, true
	case float64:
		return -n, true
	}
	if f, ok := ToNumber(a); ok {
		return Unm(f)
	}
	return nil, false
}

func pickNonNumber(a, b Value) Value {
	if !isNumber(a) {
		if _, ok := ToNumber(a); !ok {
			return a
		}
	}
	return b
}

// toIntegerStrict is used by the bitwise operators: conversion must
// be exact, fractional floats are rejected (§4.1 "fractional floats
// fail").
func toIntegerStrict(v Value) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return floatToInteger(n)
	case string:
		return ToInteger(v)
	}
	return 0, false
}

func Band(a, b Value) (Value, bool) {
	ai, aok := toIntegerStrict(a)
	bi, bok := toIntegerStrict(b)
	if !aok || !bok {
		return nil, false
	}
	return ai & bi, true
}

func Bor(a, b Value) (Value, bool) {
	ai, aok := toIntegerStrict(a)
	bi, bok := toIntegerStrict(b)
	if !aok || !bok {
		return nil, false
	}
	return ai | bi, true
}

func Bxor(a, b Value) (Value, bool) {
	ai, aok := toIntegerStrict(a)
	bi, bok := toIntegerStrict(b)
	if !aok || !bok {
		return nil, false
	}
	return ai ^ bi, true
}

func Bnot(a Value) (Value, bool) {
	ai, ok := toIntegerStrict(a)
	if !ok {
		return nil, false
	}
	return ^ai, true
}

// Shl/Shr implement §4.1: shift counts are modulo 64, negative shift
// reverses direction.
func Shl(a, b Value) (Value, bool) {
	ai, aok := toIntegerStrict(a)
	bi, bok := toIntegerStrict(b)
	if !aok || !bok {
		return nil, false
	}
	return shiftLeft(ai, bi), true
}

func Shr(a, b Value) (Value, bool) {
	ai, aok := toIntegerStrict(a)
	bi, bok := toIntegerStrict(b)
	if !aok || !bok {
		return nil, false
	}
	return shiftLeft(ai, -bi), true
}

func shiftLeft(a, n int64) int64 {
	if n >= 0 {
		return int64(uint64(a) << uint(n%64))
	}
	return int64(uint64(a) >> uint((-n)%64))
}

// Eq compares integers and floats by mathematical value so that
// 1 == 1.0 (§4.1 "eq compares integer/float by mathematical value").
func Eq(a, b Value) bool { return rawEqual(a, b) }

// Lt/Le implement §4.1's ordering for two numbers or two strings (the
// latter by byte comparison); they never silently coerce strings to
// numbers, so mixed operands report not-handled.
func Lt(a, b Value) (bool, bool) {
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return as < bs, true
		}
		return false, false
	}
	af, aok := toFloatValue(a)
	bf, bok := toFloatValue(b)
	if !aok || !bok {
		return false, false
	}
	if ai, aiok := a.(int64); aiok {
		if bi, biok := b.(int64); biok {
			return ai < bi, true
		}
	}
	return af < bf, true
}

func Le(a, b Value) (bool, bool) {
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return as <= bs, true
		}
		return false, false
	}
	af, aok := toFloatValue(a)
	bf, bok := toFloatValue(b)
	if !aok || !bok {
		return false, false
	}
	if ai, aiok := a.(int64); aiok {
		if bi, biok := b.(int64); biok {
			return ai <= bi, true
		}
	}
	return af <= bf, true
}

// forLimit implements the numeric-for integer-loop limit adjustment
// from §4.6. A float limit that is out of int64 range clamps to
// math.maxinteger/mininteger (Lua 5.3/5.4 semantics); an in-range but
// non-integral limit is floored (ascending loop) or ceiled (descending
// loop) instead, so e.g. `for i=1,3.5 do` runs 3 times rather than
// snapping the limit to the int64 extreme and overflow-guarding out
// near 2^63 iterations.
func forLimit(limitVal Value, step int64) (int64, bool) {
	switch limit := limitVal.(type) {
	case int64:
		return limit, true
	case float64:
		if limit != limit { // NaN: caller's comparison never holds, loop never runs
			if step > 0 {
				return minInt64, true
			}
			return maxInt64, true
		}
		if step > 0 {
			if limit >= pow2_63Float {
				return maxInt64, true
			}
			if limit < -pow2_63Float {
				return minInt64, true
			}
			return int64(math.Floor(limit)), true
		}
		if limit <= -pow2_63Float {
			return minInt64, true
		}
		if limit >= pow2_63Float {
			return maxInt64, true
		}
		return int64(math.Ceil(limit)), true
	}
	return 0, false
}
