package lua

import "sort"

// Table is a Lua table: a single keyspace that stores small positive-
// integer keys in a dense array part and everything else in a hash
// part, the way the teacher's *table kept an array/hash split while
// presenting callers with one logical mapping (types.go's debugValue
// switch walked both parts of a *table as a single entity; §3 requires
// "array-like keys may be represented specially but must behave as a
// single keyspace").
type Table struct {
	gcHeader
	array     []Value // array[i] holds key i+1
	hash      map[Value]Value
	metaTable *Table
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{hash: make(map[Value]Value)}
}

// RawGet implements §4.3 raw_get: a Nil key read returns Nil rather
// than erroring (§3 invariant).
func (t *Table) RawGet(key Value) Value {
	k, ok := isValidKey(key)
	if !ok {
		return nil
	}
	if i, isInt := k.(int64); isInt && i >= 1 && int(i) <= len(t.array) {
		return t.array[i-1]
	}
	return t.hash[k]
}

// RawSet implements §4.3 raw_set. Assigning Nil to a key removes it
// (§3 "raw_set(t,k,Nil) is equivalent to removing k"); assigning Nil
// or NaN as a key is an error (§3/§7 convention error).
func (t *Table) RawSet(key, value Value) error {
	k, ok := isValidKey(key)
	if !ok {
		return &LuaError{Value: "table index is nil or NaN"}
	}
	if i, isInt := k.(int64); isInt && i >= 1 {
		idx := int(i)
		if idx <= len(t.array) {
			t.array[idx-1] = value
			return nil
		}
		if idx == len(t.array)+1 && value != nil {
			t.array = append(t.array, value)
			t.migrateFromHash()
			return nil
		}
	}
	if value == nil {
		delete(t.hash, k)
		return nil
	}
	t.hash[k] = value
	return nil
}

// migrateFromHash pulls any contiguous integer keys that now follow
// the array part out of the hash, keeping the array part dense the
// way a real Lua table implementation amortizes array growth.
func (t *Table) migrateFromHash() {
	for {
		next := int64(len(t.array) + 1)
		v, ok := t.hash[next]
		if !ok {
			return
		}
		t.array = append(t.array, v)
		delete(t.hash, next)
	}
}

// RawLen implements §4.3 raw_len / the `#` operator's primitive rule:
// a border of the sequence part. Holes in the array part (nil
// entries) make the border implementation-defined, matching real Lua.
func (t *Table) RawLen() int64 {
	n := len(t.array)
	for n > 0 && t.array[n-1] == nil {
		n--
	}
	if n == len(t.array) {
		for {
			if _, ok := t.hash[int64(n+1)]; !ok {
				break
			}
			n++
		}
	}
	return int64(n)
}

// Next implements the iteration `next` relies on. Lua never promises
// an order, but a Go map's randomized iteration would make successive
// `pairs` loops over the same unmodified table disagree with each
// other, so array keys are visited in order and hash keys in a
// stable, sorted-by-encoding order.
func (t *Table) Next(key Value) (Value, Value, bool) {
	if key == nil {
		for i, v := range t.array {
			if v != nil {
				return int64(i + 1), v, true
			}
		}
		return t.firstHashEntry()
	}
	k, _ := isValidKey(key)
	if i, isInt := k.(int64); isInt && i >= 1 && int(i) <= len(t.array) {
		for j := int(i); j < len(t.array); j++ {
			if t.array[j] != nil {
				return int64(j + 1), t.array[j], true
			}
		}
		return t.firstHashEntry()
	}
	keys := t.sortedHashKeys()
	for idx, hk := range keys {
		if rawEqual(hk, k) {
			if idx+1 < len(keys) {
				nk := keys[idx+1]
				return nk, t.hash[nk], true
			}
			return nil, nil, true
		}
	}
	return nil, nil, false
}

func (t *Table) firstHashEntry() (Value, Value, bool) {
	keys := t.sortedHashKeys()
	if len(keys) == 0 {
		return nil, nil, true
	}
	return keys[0], t.hash[keys[0]], true
}

func (t *Table) sortedHashKeys() []Value {
	keys := make([]Value, 0, len(t.hash))
	for k := range t.hash {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return hashKeyOrder(keys[i]) < hashKeyOrder(keys[j]) })
	return keys
}

func hashKeyOrder(v Value) string {
	switch x := v.(type) {
	case string:
		return "s" + x
	case int64:
		return "n" + NumberToString(x)
	case float64:
		return "n" + NumberToString(x)
	case bool:
		if x {
			return "b1"
		}
		return "b0"
	default:
		return "p" + debugPointer(v)
	}
}

// Insert/Remove/Concat/Sort/Move below implement table.* (§2 builtin-
// function interface's standard-library carve-out), grounded on the
// teacher's table.go library, rewritten from the push/pop stack
// convention onto direct *Table/[]Value operations.

func tableInsert(t *Table, args []Value) error {
	n := t.RawLen()
	switch len(args) {
	case 1:
		return t.RawSet(n+1, args[0])
	case 2:
		pos, ok := ToInteger(args[0])
		if !ok || pos < 1 || pos > n+1 {
			return &LuaError{Value: "bad argument #2 to 'insert' (position out of bounds)"}
		}
		for i := n + 1; i > pos; i-- {
			if err := t.RawSet(i, t.RawGet(i-1)); err != nil {
				return err
			}
		}
		return t.RawSet(pos, args[1])
	default:
		return &LuaError{Value: "wrong number of arguments to 'insert'"}
	}
}

func tableRemove(t *Table, pos int64, posGiven bool) (Value, error) {
	n := t.RawLen()
	if !posGiven {
		pos = n
	}
	if n == 0 && (pos == 0 || pos == n) {
		return nil, nil
	}
	if posGiven && (pos < 1 || pos > n+1) {
		return nil, &LuaError{Value: "bad argument #1 to 'remove' (position out of bounds)"}
	}
	v := t.RawGet(pos)
	for ; pos < n; pos++ {
		if err := t.RawSet(pos, t.RawGet(pos+1)); err != nil {
			return nil, err
		}
	}
	if err := t.RawSet(pos, nil); err != nil {
		return nil, err
	}
	return v, nil
}

func tableConcat(t *Table, sep string, i, j int64) (string, error) {
	var b []byte
	for ; i <= j; i++ {
		v := t.RawGet(i)
		s, ok := toStringForConcat(v)
		if !ok {
			return "", &LuaError{Value: "invalid value (" + TypeNameOf(v) + ") at index " + NumberToString(i) + " in table for 'concat'"}
		}
		b = append(b, s...)
		if i < j {
			b = append(b, sep...)
		}
	}
	return string(b), nil
}

func toStringForConcat(v Value) (string, bool) {
	switch v.(type) {
	case string, int64, float64:
		return ToStringValue(v), true
	}
	return "", false
}

// tableSort sorts the sequence part of t in place using less, the
// way the teacher's sortHelper drove sort.Sort from Lua-level
// comparisons in table.go (there via stack pushes, here via a direct
// Go comparison func).
func tableSort(t *Table, n int64, less func(a, b Value) (bool, error)) error {
	var sortErr error
	s := &tableSortHelper{t: t, n: int(n), less: less, err: &sortErr}
	sort.Stable(s)
	return sortErr
}

type tableSortHelper struct {
	t    *Table
	n    int
	less func(a, b Value) (bool, error)
	err  *error
}

func (s *tableSortHelper) Len() int { return s.n }
func (s *tableSortHelper) Swap(i, j int) {
	vi, vj := s.t.RawGet(int64(i+1)), s.t.RawGet(int64(j+1))
	s.t.RawSet(int64(i+1), vj)
	s.t.RawSet(int64(j+1), vi)
}
func (s *tableSortHelper) Less(i, j int) bool {
	if *s.err != nil {
		return false
	}
	ok, err := s.less(s.t.RawGet(int64(i+1)), s.t.RawGet(int64(j+1)))
	if err != nil {
		*s.err = err
		return false
	}
	return ok
}

// tableMove implements table.move (Lua 5.3+), preserved from the
// teacher's overlap-aware forward/backward copy in table.go.
func tableMove(a1 *Table, f, e, t int64, a2 *Table) error {
	if e < f {
		return nil
	}
	n := e - f + 1
	sameTable := a1 == a2
	get := func(idx int64) Value { return a1.RawGet(idx) }
	set := func(idx int64, v Value) error { return a2.RawSet(idx, v) }
	if t > e || t <= f || !sameTable {
		for i := int64(0); i < n; i++ {
			if err := set(t+i, get(f+i)); err != nil {
				return err
			}
		}
	} else {
		for i := n - 1; i >= 0; i-- {
			if err := set(t+i, get(f+i)); err != nil {
				return err
			}
		}
	}
	return nil
}
