package lua

import "unicode/utf8"

// utf8.* library, adapted from the teacher's utf8.go RegistryFunction
// table: same decodeUTF8/utf8PosRelative position arithmetic, rebuilt
// on the GoFunction convention instead of a State stack.

func decodeUTF8(s string, pos int) (rune, int, bool) {
	if pos < 1 || pos > len(s) {
		return 0, 0, false
	}
	r, size := utf8.DecodeRuneInString(s[pos-1:])
	if r == utf8.RuneError && size <= 1 {
		return 0, 0, false
	}
	return r, size, true
}

func utf8PosRelative(pos, length int) int {
	if pos >= 0 {
		return pos
	}
	if -pos > length {
		return 0
	}
	return length + pos + 1
}

func isContinuationByte(b byte) bool { return b&0xC0 == 0x80 }

var utf8Library = map[string]GoFunction{
	"char": func(i *Interp, args []Value) ([]Value, error) {
		buf := make([]byte, 0, len(args)*4)
		for idx, a := range args {
			code, ok := ToInteger(a)
			if !ok || code < 0 || code > 0x10FFFF {
				return nil, newRuntimeError("bad argument #%d to 'char' (value out of range)", idx+1)
			}
			var tmp [4]byte
			size := utf8.EncodeRune(tmp[:], rune(code))
			buf = append(buf, tmp[:size]...)
		}
		return []Value{string(buf)}, nil
	},
	"codepoint": func(i *Interp, args []Value) ([]Value, error) {
		s, err := checkStringArg(args, 0, "codepoint")
		if err != nil {
			return nil, err
		}
		from := utf8PosRelative(int(optInt(args, 1, 1)), len(s))
		to := utf8PosRelative(int(optInt(args, 2, int64(from))), len(s))
		if from > to {
			return nil, nil
		}
		if from < 1 || from > len(s) {
			return nil, newRuntimeError("bad argument #2 to 'codepoint' (out of range)")
		}
		if to > len(s) {
			return nil, newRuntimeError("bad argument #3 to 'codepoint' (out of range)")
		}
		var out []Value
		pos := from
		for pos <= to {
			r, size, ok := decodeUTF8(s, pos)
			if !ok {
				return nil, newRuntimeError("invalid UTF-8 code")
			}
			out = append(out, int64(r))
			pos += size
		}
		return out, nil
	},
	"len": func(i *Interp, args []Value) ([]Value, error) {
		s, err := checkStringArg(args, 0, "len")
		if err != nil {
			return nil, err
		}
		from := utf8PosRelative(int(optInt(args, 1, 1)), len(s))
		to := utf8PosRelative(int(optInt(args, 2, int64(len(s)))), len(s))
		if from < 1 {
			from = 1
		}
		if to > len(s) {
			to = len(s)
		}
		if from > to {
			return []Value{int64(0)}, nil
		}
		count := int64(0)
		pos := from
		for pos <= to {
			r, size, ok := decodeUTF8(s, pos)
			if !ok || r == utf8.RuneError {
				return []Value{nil, int64(pos)}, nil
			}
			count++
			pos += size
		}
		return []Value{count}, nil
	},
	"offset": func(i *Interp, args []Value) ([]Value, error) {
		s, err := checkStringArg(args, 0, "offset")
		if err != nil {
			return nil, err
		}
		n, ok := ToInteger(get(args, 1))
		if !ok {
			return nil, newRuntimeError("bad argument #2 to 'offset' (number expected)")
		}
		var def int64 = 1
		if n < 0 {
			def = int64(len(s) + 1)
		}
		pos := int(optInt(args, 2, def))
		if pos < 0 {
			pos = len(s) + 1 + pos
		}
		if pos < 1 || pos > len(s)+1 {
			return nil, newRuntimeError("bad argument #3 to 'offset' (position out of range)")
		}
		if n != 0 && pos <= len(s) && isContinuationByte(s[pos-1]) {
			return nil, newRuntimeError("bad argument #3 to 'offset' (initial position is a continuation byte)")
		}
		if n == 0 {
			for pos > 1 && pos <= len(s) && isContinuationByte(s[pos-1]) {
				pos--
			}
			return []Value{int64(pos)}, nil
		}
		if n > 0 {
			n--
			for n > 0 && pos <= len(s) {
				_, size, ok := decodeUTF8(s, pos)
				if !ok {
					return []Value{nil}, nil
				}
				pos += size
				n--
			}
			if pos > len(s)+1 {
				return []Value{nil}, nil
			}
			return []Value{int64(pos)}, nil
		}
		for n < 0 && pos > 1 {
			pos--
			for pos > 1 && isContinuationByte(s[pos-1]) {
				pos--
			}
			n++
		}
		if n < 0 {
			return []Value{nil}, nil
		}
		return []Value{int64(pos)}, nil
	},
	"codes": func(i *Interp, args []Value) ([]Value, error) {
		s, err := checkStringArg(args, 0, "codes")
		if err != nil {
			return nil, err
		}
		iter := func(ii *Interp, iargs []Value) ([]Value, error) {
			str := iargs[0].(string)
			prevPos, _ := ToInteger(iargs[1])
			var nextPos int
			if prevPos == 0 {
				nextPos = 1
			} else {
				_, size, ok := decodeUTF8(str, int(prevPos))
				if !ok {
					return nil, newRuntimeError("invalid UTF-8 code")
				}
				nextPos = int(prevPos) + size
			}
			if nextPos > len(str) {
				return nil, nil
			}
			r, _, ok := decodeUTF8(str, nextPos)
			if !ok {
				return nil, newRuntimeError("invalid UTF-8 code")
			}
			return []Value{int64(nextPos), int64(r)}, nil
		}
		return []Value{&GoClosure{name: "utf8.codes iterator", fn: iter}, s, int64(0)}, nil
	},
}

const utf8CharPattern = "[\x00-\x7F\xC2-\xF4][\x80-\xBF]*"

// OpenUTF8 implements the utf8 table's registration.
func OpenUTF8(i *Interp) *Table {
	t := i.NewTable()
	for name, fn := range utf8Library {
		t.RawSet(name, &GoClosure{name: "utf8." + name, fn: fn})
	}
	t.RawSet("charpattern", utf8CharPattern)
	return t
}
