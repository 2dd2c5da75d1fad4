package lua

import (
	"fmt"
	"strconv"
	"strings"
)

// string.* library (§4.11 supplies the pattern engine; this file
// wires it, plus the rest of Lua's string builtins, into GoClosures).
// Adapted from the teacher's string.go RegistryFunction table; the
// pattern-heavy entries (find/match/gmatch/gsub) are rebuilt on top
// of pattern.go's matchState instead of findHelper/gmatchAux's
// upvalue-on-the-C-stack bookkeeping, since closures here are
// ordinary Go closures capturing plain Go state.

func checkStringArg(args []Value, idx int, fname string) (string, error) {
	if idx >= len(args) {
		return "", newRuntimeError("bad argument #%d to '%s' (string expected, got no value)", idx+1, fname)
	}
	switch v := args[idx].(type) {
	case string:
		return v, nil
	case int64, float64:
		return NumberToString(v), nil
	}
	return "", newRuntimeError("bad argument #%d to '%s' (string expected, got %s)", idx+1, fname, TypeNameOf(args[idx]))
}

func optInt(args []Value, idx int, def int64) int64 {
	if idx >= len(args) || args[idx] == nil {
		return def
	}
	if n, ok := ToInteger(args[idx]); ok {
		return n
	}
	return def
}

var stringLibrary = map[string]GoFunction{
	"len": func(i *Interp, args []Value) ([]Value, error) {
		s, err := checkStringArg(args, 0, "len")
		if err != nil {
			return nil, err
		}
		return []Value{int64(len(s))}, nil
	},
	"sub": func(i *Interp, args []Value) ([]Value, error) {
		s, err := checkStringArg(args, 0, "sub")
		if err != nil {
			return nil, err
		}
		l := len(s)
		start := relativePosition(int(optInt(args, 1, 1)), l)
		if start < 1 {
			start = 1
		}
		end := relativePosition(int(optInt(args, 2, -1)), l)
		if end > l {
			end = l
		}
		if start > end {
			return []Value{""}, nil
		}
		return []Value{s[start-1 : end]}, nil
	},
	"upper": func(i *Interp, args []Value) ([]Value, error) {
		s, err := checkStringArg(args, 0, "upper")
		if err != nil {
			return nil, err
		}
		return []Value{strings.ToUpper(s)}, nil
	},
	"lower": func(i *Interp, args []Value) ([]Value, error) {
		s, err := checkStringArg(args, 0, "lower")
		if err != nil {
			return nil, err
		}
		return []Value{strings.ToLower(s)}, nil
	},
	"rep": func(i *Interp, args []Value) ([]Value, error) {
		s, err := checkStringArg(args, 0, "rep")
		if err != nil {
			return nil, err
		}
		n := optInt(args, 1, 0)
		if n <= 0 {
			return []Value{""}, nil
		}
		sep := ""
		if len(args) > 2 {
			sep, err = checkStringArg(args, 2, "rep")
			if err != nil {
				return nil, err
			}
		}
		parts := make([]string, n)
		for idx := range parts {
			parts[idx] = s
		}
		return []Value{strings.Join(parts, sep)}, nil
	},
	"reverse": func(i *Interp, args []Value) ([]Value, error) {
		s, err := checkStringArg(args, 0, "reverse")
		if err != nil {
			return nil, err
		}
		b := []byte(s)
		for l, r := 0, len(b)-1; l < r; l, r = l+1, r-1 {
			b[l], b[r] = b[r], b[l]
		}
		return []Value{string(b)}, nil
	},
	"byte": func(i *Interp, args []Value) ([]Value, error) {
		s, err := checkStringArg(args, 0, "byte")
		if err != nil {
			return nil, err
		}
		l := len(s)
		start := relativePosition(int(optInt(args, 1, 1)), l)
		end := relativePosition(int(optInt(args, 2, int64(start))), l)
		if start < 1 {
			start = 1
		}
		if end > l {
			end = l
		}
		var out []Value
		for idx := start; idx <= end; idx++ {
			out = append(out, int64(s[idx-1]))
		}
		return out, nil
	},
	"char": func(i *Interp, args []Value) ([]Value, error) {
		b := make([]byte, len(args))
		for idx, a := range args {
			n, ok := ToInteger(a)
			if !ok || n < 0 || n > 255 {
				return nil, newRuntimeError("bad argument #%d to 'char' (value out of range)", idx+1)
			}
			b[idx] = byte(n)
		}
		return []Value{string(b)}, nil
	},
	"format": func(i *Interp, args []Value) ([]Value, error) {
		return stringFormat(i, args)
	},
	"find": func(i *Interp, args []Value) ([]Value, error) {
		return stringFind(i, args, true)
	},
	"match": func(i *Interp, args []Value) ([]Value, error) {
		return stringFind(i, args, false)
	},
	"gmatch": func(i *Interp, args []Value) ([]Value, error) {
		s, err := checkStringArg(args, 0, "gmatch")
		if err != nil {
			return nil, err
		}
		p, err := checkStringArg(args, 1, "gmatch")
		if err != nil {
			return nil, err
		}
		anchor := len(p) > 0 && p[0] == '^'
		pp := p
		if anchor {
			pp = p[1:]
		}
		pos := 0
		lastMatch := -1
		iter := func(ii *Interp, iargs []Value) ([]Value, error) {
			for pos <= len(s) {
				ms := newMatchState(s, pp, ii.config.MaxPatternDepth)
				end, ok := ms.match(pos, 0)
				if ms.err != nil {
					return nil, ms.err
				}
				if ok && end != lastMatch {
					caps, err := ms.pushCaptures(pos, end)
					if err != nil {
						return nil, err
					}
					lastMatch = end
					if end == pos {
						pos++
					} else {
						pos = end
					}
					return caps, nil
				}
				pos++
				if anchor {
					break
				}
			}
			return []Value{nil}, nil
		}
		return []Value{&GoClosure{name: "gmatch iterator", fn: iter}}, nil
	},
	"gsub": func(i *Interp, args []Value) ([]Value, error) {
		return stringGsub(i, args)
	},
	"dump": func(i *Interp, args []Value) ([]Value, error) {
		cl, ok := get(args, 0).(*Closure)
		if !ok {
			return nil, newRuntimeError("bad argument #1 to 'dump' (function expected)")
		}
		s, err := Dump(cl)
		if err != nil {
			return nil, err
		}
		return []Value{s}, nil
	},
}

// OpenString implements the string library's registration, including
// the shared per-string metatable (§4.9: "strings route method calls
// through a shared metatable") so that ("x"):upper() works.
func OpenString(i *Interp) *Table {
	t := i.NewTable()
	for name, fn := range stringLibrary {
		t.RawSet(name, &GoClosure{name: "string." + name, fn: fn})
	}
	i.stringMeta.RawSet(evIndex, t)
	return t
}

func stringFind(i *Interp, args []Value, isFind bool) ([]Value, error) {
	fname := "match"
	if isFind {
		fname = "find"
	}
	s, err := checkStringArg(args, 0, fname)
	if err != nil {
		return nil, err
	}
	p, err := checkStringArg(args, 1, fname)
	if err != nil {
		return nil, err
	}
	init := relativePosition(int(optInt(args, 2, 1)), len(s))
	if init < 1 {
		init = 1
	} else if init > len(s)+1 {
		return []Value{nil}, nil
	}

	plain := isFind && len(args) > 3 && IsTruthy(args[3])
	if isFind && (plain || noSpecials(p)) {
		idx := strings.Index(s[init-1:], p)
		if idx < 0 {
			return []Value{nil}, nil
		}
		start := idx + init
		return []Value{int64(start), int64(start + len(p) - 1)}, nil
	}

	start, end, ms, ok, err := patternFind(i.config.MaxPatternDepth, s, p, init-1)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Value{nil}, nil
	}
	if isFind {
		caps, err := capturesOnly(ms, start, end)
		if err != nil {
			return nil, err
		}
		out := []Value{int64(start + 1), int64(end)}
		return append(out, caps...), nil
	}
	caps, err := ms.pushCaptures(start, end)
	if err != nil {
		return nil, err
	}
	return caps, nil
}

// capturesOnly returns find's extra capture results (empty when the
// pattern has no explicit captures, since find's first two results
// are always the match bounds rather than the whole match).
func capturesOnly(ms *matchState, sstart, send int) ([]Value, error) {
	if ms.numCaptures == 0 {
		return nil, nil
	}
	return ms.pushCaptures(sstart, send)
}

func stringGsub(i *Interp, args []Value) ([]Value, error) {
	s, err := checkStringArg(args, 0, "gsub")
	if err != nil {
		return nil, err
	}
	p, err := checkStringArg(args, 1, "gsub")
	if err != nil {
		return nil, err
	}
	if len(args) < 3 {
		return nil, newRuntimeError("bad argument #3 to 'gsub' (string/function/table expected)")
	}
	repl := args[2]
	maxRepl := optInt(args, 3, int64(len(s)+1))

	anchor := len(p) > 0 && p[0] == '^'
	pp := p
	if anchor {
		pp = p[1:]
	}

	var b strings.Builder
	n := int64(0)
	spos := 0
	lastMatch := -1

	for n < maxRepl && spos <= len(s) {
		ms := newMatchState(s, pp, i.config.MaxPatternDepth)
		end, ok := ms.match(spos, 0)
		if ms.err != nil {
			return nil, ms.err
		}
		if ok && end != lastMatch {
			if err := addReplace(i, ms, &b, s, spos, end, repl); err != nil {
				return nil, err
			}
			n++
			lastMatch = end
			if end > spos {
				spos = end
			} else {
				if spos < len(s) {
					b.WriteByte(s[spos])
				}
				spos++
			}
		} else {
			if spos < len(s) {
				b.WriteByte(s[spos])
			}
			spos++
		}
		if anchor {
			break
		}
	}
	if spos < len(s) {
		b.WriteString(s[spos:])
	}
	return []Value{b.String(), n}, nil
}

func addReplace(i *Interp, ms *matchState, b *strings.Builder, s string, sstart, send int, repl Value) error {
	switch r := repl.(type) {
	case string, int64, float64:
		rs := ToStringValue(r)
		for idx := 0; idx < len(rs); idx++ {
			if rs[idx] != '%' {
				b.WriteByte(rs[idx])
				continue
			}
			idx++
			if idx >= len(rs) {
				return newRuntimeError("invalid use of '%%' in replacement string")
			}
			switch {
			case rs[idx] == '%':
				b.WriteByte('%')
			case rs[idx] == '0':
				b.WriteString(s[sstart:send])
			case rs[idx] >= '1' && rs[idx] <= '9':
				v, err := ms.oneCapture(int(rs[idx]-'1'), sstart, send)
				if err != nil {
					return err
				}
				b.WriteString(ToStringValue(v))
			default:
				return newRuntimeError("invalid use of '%%' in replacement string")
			}
		}
		return nil
	case *Table:
		key, err := ms.oneCapture(0, sstart, send)
		if err != nil {
			return err
		}
		v := r.RawGet(key)
		if IsFalse(v) {
			b.WriteString(s[sstart:send])
			return nil
		}
		sv, ok := toStringForConcat(v)
		if !ok {
			return newRuntimeError("invalid replacement value (a %s)", TypeNameOf(v))
		}
		b.WriteString(sv)
		return nil
	case *Closure, *GoClosure:
		caps, err := ms.pushCaptures(sstart, send)
		if err != nil {
			return err
		}
		results, err := i.call(r, caps)
		if err != nil {
			return err
		}
		v := first(results)
		if IsFalse(v) {
			b.WriteString(s[sstart:send])
			return nil
		}
		sv, ok := toStringForConcat(v)
		if !ok {
			return newRuntimeError("invalid replacement value (a %s)", TypeNameOf(v))
		}
		b.WriteString(sv)
		return nil
	}
	return newRuntimeError("bad argument #3 to 'gsub' (string/function/table expected)")
}

// stringFormat implements string.format (§4.11 edge case coverage),
// adapted from the teacher's formatHelper: %d/%i/%u/%o/%x/%X/%c/%s/
// %q/%f/%e/%E/%g/%G/%% with width/precision/flags passed straight
// through to Go's fmt, since Go's verb syntax is a superset of C's
// for the numeric/string cases Lua format uses.
func stringFormat(i *Interp, args []Value) ([]Value, error) {
	f, err := checkStringArg(args, 0, "format")
	if err != nil {
		return nil, err
	}
	var out strings.Builder
	argIdx := 1
	for p := 0; p < len(f); p++ {
		if f[p] != '%' {
			out.WriteByte(f[p])
			continue
		}
		start := p
		p++
		if p < len(f) && f[p] == '%' {
			out.WriteByte('%')
			continue
		}
		for p < len(f) && strings.ContainsRune("-+ #0", rune(f[p])) {
			p++
		}
		for p < len(f) && f[p] >= '0' && f[p] <= '9' {
			p++
		}
		if p < len(f) && f[p] == '.' {
			p++
			for p < len(f) && f[p] >= '0' && f[p] <= '9' {
				p++
			}
		}
		if p >= len(f) {
			return nil, newRuntimeError("invalid conversion to 'format'")
		}
		verb := f[p]
		spec := f[start : p+1]
		nextArg := func() (Value, error) {
			if argIdx >= len(args) {
				return nil, newRuntimeError("bad argument #%d to 'format' (no value)", argIdx+1)
			}
			v := args[argIdx]
			argIdx++
			return v, nil
		}
		switch verb {
		case 'd', 'i':
			v, err := nextArg()
			if err != nil {
				return nil, err
			}
			n, ok := ToInteger(v)
			if !ok {
				return nil, newRuntimeError("bad argument #%d to 'format' (number expected, got %s)", argIdx, TypeNameOf(v))
			}
			out.WriteString(fmt.Sprintf(spec[:len(spec)-1]+"d", n))
		case 'u':
			v, err := nextArg()
			if err != nil {
				return nil, err
			}
			n, _ := ToInteger(v)
			out.WriteString(fmt.Sprintf(spec[:len(spec)-1]+"d", uint64(n)))
		case 'o':
			v, err := nextArg()
			if err != nil {
				return nil, err
			}
			n, _ := ToInteger(v)
			out.WriteString(fmt.Sprintf(spec, n))
		case 'x', 'X':
			v, err := nextArg()
			if err != nil {
				return nil, err
			}
			n, _ := ToInteger(v)
			out.WriteString(fmt.Sprintf(spec, uint64(n)))
		case 'c':
			v, err := nextArg()
			if err != nil {
				return nil, err
			}
			n, _ := ToInteger(v)
			out.WriteByte(byte(n))
		case 'f', 'F', 'e', 'E', 'g', 'G':
			v, err := nextArg()
			if err != nil {
				return nil, err
			}
			fv, ok := ToFloat(v)
			if !ok {
				return nil, newRuntimeError("bad argument #%d to 'format' (number expected, got %s)", argIdx, TypeNameOf(v))
			}
			out.WriteString(fmt.Sprintf(spec, fv))
		case 's':
			v, err := nextArg()
			if err != nil {
				return nil, err
			}
			sv := i.tostringValue(v)
			out.WriteString(fmt.Sprintf(spec, sv))
		case 'q':
			v, err := nextArg()
			if err != nil {
				return nil, err
			}
			out.WriteString(quoteLua(v))
		default:
			return nil, newRuntimeError("invalid conversion '%%%c' to 'format'", verb)
		}
	}
	return []Value{out.String()}, nil
}

// quoteLua implements %q: a string round-trips through load(), with
// \n and \r as letter escapes and other control characters as decimal
// escapes, padded to three digits when a digit follows the way
// PUC-Rio's str_format does.
func quoteLua(v Value) string {
	s, ok := v.(string)
	if !ok {
		return ToStringValue(v)
	}
	var b strings.Builder
	b.WriteByte('"')
	for idx := 0; idx < len(s); idx++ {
		c := s[idx]
		switch {
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '\n':
			b.WriteString("\\n")
		case c == '\r':
			b.WriteString("\\r")
		case (c < 32 || c == 127) && idx+1 < len(s) && s[idx+1] >= '0' && s[idx+1] <= '9':
			b.WriteString(fmt.Sprintf("\\%03d", c))
		case c == 0:
			b.WriteString("\\0")
		case c < 32 || c == 127:
			b.WriteString("\\")
			b.WriteString(strconv.Itoa(int(c)))
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
