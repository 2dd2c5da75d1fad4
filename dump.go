package lua

import (
	"bytes"

	msgpack "github.com/hashicorp/go-msgpack/v2/codec"
)

// string.dump (§6 "dumped-closure facility"). The teacher's dump.go
// serialized compiled bytecode with encoding/binary; this evaluator
// has no bytecode, so the wire format carries the closure's original
// source text instead, msgpack-encoded the way the rest of this
// package's ambient stack favors a real serialization library over a
// hand-rolled one. A luaDumpMagic prefix lets load() tell a dumped
// chunk apart from plain source text, the same role PUC-Rio's
// "\x1bLua" signature byte plays.
const luaDumpMagic = "\x00LUADUMP1"

type dumpedChunk struct {
	Source string `codec:"source"`
	Name   string `codec:"name"`
}

var msgpackHandle = &msgpack.MsgpackHandle{}

// Dump implements string.dump: only the closure Load produced for a
// freshly parsed main chunk (no upvalues, chunkSource populated) can
// be dumped, mirroring real Lua's refusal to dump a closure with
// upvalues.
func Dump(cl *Closure) (string, error) {
	if cl.chunkSource == "" || len(cl.upvalues) > 0 {
		return "", newRuntimeError("unable to dump given function")
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf, msgpackHandle)
	if err := enc.Encode(dumpedChunk{Source: cl.chunkSource, Name: cl.proto.Name}); err != nil {
		return "", newRuntimeError("unable to dump given function: %s", err)
	}
	return luaDumpMagic + buf.String(), nil
}
