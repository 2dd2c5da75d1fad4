package lua

import (
	"math"
	"math/rand"
)

// math.* library (§1: carried as part of the evaluator-adjacent
// standard-library subset). Adapted from the teacher's math.go
// mathLibrary table: same per-function behavior (integer-preserving
// abs/ceil/floor/fmod/modf/min/max, Lua 5.3's tointeger/type/ult), but
// driven through GoFunction's (args []Value) -> ([]Value, error)
// convention instead of an implicit C-style register stack.

const radiansPerDegree = math.Pi / 180.0

func argNumber(args []Value, idx int, fname string) (float64, error) {
	if idx >= len(args) {
		return 0, newRuntimeError("bad argument #%d to '%s' (number expected, got no value)", idx+1, fname)
	}
	if f, ok := ToFloat(args[idx]); ok {
		return f, nil
	}
	return 0, newRuntimeError("bad argument #%d to '%s' (number expected, got %s)", idx+1, fname, TypeNameOf(args[idx]))
}

func mathUnaryOp(name string, f func(float64) float64) GoFunction {
	return func(i *Interp, args []Value) ([]Value, error) {
		x, err := argNumber(args, 0, name)
		if err != nil {
			return nil, err
		}
		return []Value{f(x)}, nil
	}
}

func mathBinaryOp(name string, f func(float64, float64) float64) GoFunction {
	return func(i *Interp, args []Value) ([]Value, error) {
		x, err := argNumber(args, 0, name)
		if err != nil {
			return nil, err
		}
		y, err := argNumber(args, 1, name)
		if err != nil {
			return nil, err
		}
		return []Value{f(x, y)}, nil
	}
}

// floatToIntIfExact mirrors the teacher's ceil/floor/modf integer-
// preservation trick: an exact, in-range float result becomes an
// int64 Value, matching Lua 5.3+'s math library return types.
func floatToIntIfExact(f float64) Value {
	if i := int64(f); float64(i) == f && f >= float64(math.MinInt64) && f <= float64(math.MaxInt64) {
		return i
	}
	return f
}

func mathReduce(name string, isMax bool) GoFunction {
	return func(i *Interp, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return nil, newRuntimeError("bad argument #1 to '%s' (value expected)", name)
		}
		allInt := true
		var intResult int64
		var floatResult float64
		for idx, a := range args {
			if ai, ok := a.(int64); ok && allInt {
				if idx == 0 {
					intResult = ai
				} else if (isMax && ai > intResult) || (!isMax && ai < intResult) {
					intResult = ai
				}
				continue
			}
			f, ok := ToFloat(a)
			if !ok {
				return nil, newRuntimeError("bad argument #%d to '%s' (number expected, got %s)", idx+1, name, TypeNameOf(a))
			}
			if allInt {
				floatResult = float64(intResult)
				allInt = false
			}
			if idx == 0 {
				floatResult = f
			} else if (isMax && f > floatResult) || (!isMax && f < floatResult) {
				floatResult = f
			}
		}
		if allInt {
			return []Value{intResult}, nil
		}
		return []Value{floatResult}, nil
	}
}

var mathLibrary = map[string]GoFunction{
	"abs": func(i *Interp, args []Value) ([]Value, error) {
		if len(args) > 0 {
			if n, ok := args[0].(int64); ok {
				if n < 0 {
					n = -n
				}
				return []Value{n}, nil
			}
		}
		x, err := argNumber(args, 0, "abs")
		if err != nil {
			return nil, err
		}
		return []Value{math.Abs(x)}, nil
	},
	"acos":  mathUnaryOp("acos", math.Acos),
	"asin":  mathUnaryOp("asin", math.Asin),
	"atan2": mathBinaryOp("atan2", math.Atan2),
	"atan": func(i *Interp, args []Value) ([]Value, error) {
		y, err := argNumber(args, 0, "atan")
		if err != nil {
			return nil, err
		}
		if len(args) < 2 || args[1] == nil {
			return []Value{math.Atan(y)}, nil
		}
		x, err := argNumber(args, 1, "atan")
		if err != nil {
			return nil, err
		}
		return []Value{math.Atan2(y, x)}, nil
	},
	"ceil": func(i *Interp, args []Value) ([]Value, error) {
		x, err := argNumber(args, 0, "ceil")
		if err != nil {
			return nil, err
		}
		return []Value{floatToIntIfExact(math.Ceil(x))}, nil
	},
	"cosh": mathUnaryOp("cosh", math.Cosh),
	"cos":  mathUnaryOp("cos", math.Cos),
	"deg":  mathUnaryOp("deg", func(x float64) float64 { return x / radiansPerDegree }),
	"exp":  mathUnaryOp("exp", math.Exp),
	"floor": func(i *Interp, args []Value) ([]Value, error) {
		if len(args) > 0 {
			if n, ok := args[0].(int64); ok {
				return []Value{n}, nil
			}
		}
		x, err := argNumber(args, 0, "floor")
		if err != nil {
			return nil, err
		}
		return []Value{floatToIntIfExact(math.Floor(x))}, nil
	},
	"fmod": func(i *Interp, args []Value) ([]Value, error) {
		if len(args) >= 2 {
			if xi, ok := args[0].(int64); ok {
				if yi, ok := args[1].(int64); ok {
					if yi == 0 {
						return nil, newRuntimeError("bad argument #2 to 'fmod' (zero)")
					}
					return []Value{xi % yi}, nil
				}
			}
		}
		x, err := argNumber(args, 0, "fmod")
		if err != nil {
			return nil, err
		}
		y, err := argNumber(args, 1, "fmod")
		if err != nil {
			return nil, err
		}
		return []Value{math.Mod(x, y)}, nil
	},
	"frexp": func(i *Interp, args []Value) ([]Value, error) {
		x, err := argNumber(args, 0, "frexp")
		if err != nil {
			return nil, err
		}
		f, e := math.Frexp(x)
		return []Value{f, int64(e)}, nil
	},
	"ldexp": func(i *Interp, args []Value) ([]Value, error) {
		x, err := argNumber(args, 0, "ldexp")
		if err != nil {
			return nil, err
		}
		e, err := argNumber(args, 1, "ldexp")
		if err != nil {
			return nil, err
		}
		return []Value{math.Ldexp(x, int(e))}, nil
	},
	"log": func(i *Interp, args []Value) ([]Value, error) {
		x, err := argNumber(args, 0, "log")
		if err != nil {
			return nil, err
		}
		if len(args) < 2 || args[1] == nil {
			return []Value{math.Log(x)}, nil
		}
		base, err := argNumber(args, 1, "log")
		if err != nil {
			return nil, err
		}
		if base == 10.0 {
			return []Value{math.Log10(x)}, nil
		}
		if base == 2.0 {
			return []Value{math.Log2(x)}, nil
		}
		return []Value{math.Log(x) / math.Log(base)}, nil
	},
	"max": mathReduce("max", true),
	"min": mathReduce("min", false),
	"modf": func(i *Interp, args []Value) ([]Value, error) {
		n, err := argNumber(args, 0, "modf")
		if err != nil {
			return nil, err
		}
		if math.IsInf(n, 0) {
			return []Value{n, 0.0}, nil
		}
		ip, fp := math.Modf(n)
		return []Value{floatToIntIfExact(ip), fp}, nil
	},
	"pow": mathBinaryOp("pow", math.Pow),
	"rad": mathUnaryOp("rad", func(x float64) float64 { return x * radiansPerDegree }),
	"random": func(i *Interp, args []Value) ([]Value, error) {
		randRange := func(lo, u int64) (int64, bool) {
			if lo == u {
				return lo, true
			}
			rangeLow := uint64(lo - math.MinInt64)
			rangeHigh := uint64(u - math.MinInt64)
			rangeSize := rangeHigh - rangeLow + 1
			if rangeSize == 0 {
				return 0, false
			}
			const maxRange = uint64(1) << 63
			if rangeSize > maxRange {
				return 0, false
			}
			r := rand.Uint64() % rangeSize
			return int64(r+rangeLow) + math.MinInt64, true
		}
		switch len(args) {
		case 0:
			return []Value{rand.Float64()}, nil
		case 1:
			u, ok := ToInteger(args[0])
			if !ok {
				return nil, newRuntimeError("bad argument #1 to 'random' (number expected)")
			}
			if u < 1 {
				return nil, newRuntimeError("bad argument #1 to 'random' (interval is empty)")
			}
			r, ok := randRange(1, u)
			if !ok {
				return nil, newRuntimeError("bad argument #1 to 'random' (interval too large)")
			}
			return []Value{r}, nil
		default:
			lo, ok1 := ToInteger(args[0])
			u, ok2 := ToInteger(args[1])
			if !ok1 || !ok2 {
				return nil, newRuntimeError("bad argument to 'random' (number expected)")
			}
			if lo > u {
				return nil, newRuntimeError("bad argument #2 to 'random' (interval is empty)")
			}
			r, ok := randRange(lo, u)
			if !ok {
				return nil, newRuntimeError("bad argument #2 to 'random' (interval too large)")
			}
			return []Value{r}, nil
		}
	},
	"randomseed": func(i *Interp, args []Value) ([]Value, error) {
		if len(args) > 0 {
			if n, ok := ToInteger(args[0]); ok {
				rand.Seed(n)
			}
		}
		rand.Float64()
		return nil, nil
	},
	"sinh": mathUnaryOp("sinh", math.Sinh),
	"sin":  mathUnaryOp("sin", math.Sin),
	"sqrt": mathUnaryOp("sqrt", math.Sqrt),
	"tanh": mathUnaryOp("tanh", math.Tanh),
	"tan":  mathUnaryOp("tan", math.Tan),
	"tointeger": func(i *Interp, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return []Value{nil}, nil
		}
		switch v := args[0].(type) {
		case int64:
			return []Value{v}, nil
		case float64:
			if n, ok := floatToInteger(v); ok {
				return []Value{n}, nil
			}
		}
		return []Value{nil}, nil
	},
	"type": func(i *Interp, args []Value) ([]Value, error) {
		if len(args) == 0 {
			return []Value{nil}, nil
		}
		switch args[0].(type) {
		case int64:
			return []Value{"integer"}, nil
		case float64:
			return []Value{"float"}, nil
		}
		return []Value{nil}, nil
	},
	"ult": func(i *Interp, args []Value) ([]Value, error) {
		a, ok1 := ToInteger(get(args, 0))
		b, ok2 := ToInteger(get(args, 1))
		if !ok1 || !ok2 {
			return nil, newRuntimeError("bad argument to 'ult' (number has no integer representation)")
		}
		return []Value{uint64(a) < uint64(b)}, nil
	},
}

// OpenMath implements the math table's registration, following the
// teacher's MathOpen but populating a plain *Table instead of pushing
// fields onto a C-style stack.
func OpenMath(i *Interp) *Table {
	t := i.NewTable()
	for name, fn := range mathLibrary {
		t.RawSet(name, &GoClosure{name: "math." + name, fn: fn})
	}
	t.RawSet("pi", math.Pi)
	t.RawSet("huge", math.Inf(1))
	t.RawSet("maxinteger", int64(math.MaxInt64))
	t.RawSet("mininteger", int64(math.MinInt64))
	return t
}
