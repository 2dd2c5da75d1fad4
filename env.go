package lua

// Environment (§4.4): a lexical scope chain of named bindings
// ("boxes"). A Box is a mutable cell shared between closures that
// capture the same local, giving Lua's upvalue-sharing semantics
// (§3 invariant, §8 scenario 2).
type Box struct {
	value Value
	attr  Attribute
}

// Attribute is a local variable's declaration attribute (§4.4):
// <const> freezes it after declaration, <close> schedules its
// __close metamethod on scope exit.
type Attribute int

const (
	AttrNone Attribute = iota
	AttrConst
	AttrClose
)

// Scope is one lexical level (§4.4 open_scope/close_scope). Scopes
// form a parent-linked chain; lookup walks innermost-to-outermost.
type Scope struct {
	parent  *Scope
	names   map[string]*Box
	order   []string // declaration order, for close-on-exit handling
	closers []*Box   // <close>-attributed boxes declared directly in this scope, in declaration order
}

// openScope implements §4.4 open_scope.
func openScope(parent *Scope) *Scope {
	return &Scope{parent: parent, names: make(map[string]*Box)}
}

// declare implements §4.4 declare(name, attribute, value): introduces
// a fresh box, shadowing any outer binding of the same name.
func (s *Scope) declare(name string, attr Attribute, value Value) *Box {
	b := &Box{value: value, attr: attr}
	s.names[name] = b
	s.order = append(s.order, name)
	if attr == AttrClose {
		s.closers = append(s.closers, b)
	}
	return b
}

// lookup implements §4.4 lookup(name): walk scopes from innermost; if
// not found, the reference is global (resolved via _ENV by the
// caller, per §4.4's compile-time-rewrite note).
func (s *Scope) lookup(name string) (*Box, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if b, ok := sc.names[name]; ok {
			return b, true
		}
	}
	return nil, false
}

// envBox returns the nearest _ENV binding in scope. Every chunk has
// one by construction (§4.4: "_ENV of the main chunk is a local bound
// to _G").
func (s *Scope) envBox() *Box {
	b, _ := s.lookup("_ENV")
	return b
}

// closeScope implements §4.4 close_scope: runs __close on every
// <close>-attributed box declared directly in this scope, in reverse
// declaration order (§5: "guarantees the __close metamethod runs
// exactly once on every exit path"). pending is a pre-existing error
// already unwinding through this scope, if any; a __close error is
// chained onto it per §7.
func (i *Interp) closeScope(s *Scope, pending error) error {
	for idx := len(s.closers) - 1; idx >= 0; idx-- {
		b := s.closers[idx]
		if b.value == nil || b.value == false {
			continue // §4.4: a <close> var may be nil/false, meaning "nothing to close"
		}
		h := i.GetMetamethod(b.value, evClose)
		if h == nil {
			if pending == nil {
				pending = &LuaError{Value: "variable has a 'close' attribute but does not have a '__close' metamethod"}
			}
			continue
		}
		var errArg Value
		if le, ok := pending.(*LuaError); ok {
			errArg = le.Value
		}
		if _, err := i.call(h, []Value{b.value, errArg}); err != nil {
			pending = chainError(pending, err)
		}
	}
	return pending
}

// chainError implements §5/§7: "errors thrown by __close are chained
// into the original error if one was already pending."
func chainError(pending, next error) error {
	if pending == nil {
		return next
	}
	if next == nil {
		return pending
	}
	return &LuaError{Value: debugValue(errorValue(pending)) + " (and during closing: " + next.Error() + ")"}
}
