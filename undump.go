package lua

import (
	"bytes"
	"strings"

	msgpack "github.com/hashicorp/go-msgpack/v2/codec"
)

// Undump is the load() counterpart to Dump (§6 "dumped-closure
// facility"). It recognizes the luaDumpMagic prefix dump.go writes,
// decodes the embedded source with the same msgpack handle, and
// compiles it the way Load compiles plain source text. Anything
// without the magic prefix is not a dumped chunk; the caller (Load)
// falls back to treating it as source.
func Undump(i *Interp, data string) (Value, error) {
	if !strings.HasPrefix(data, luaDumpMagic) {
		return nil, newRuntimeError("attempt to undump a non-dumped chunk")
	}
	rest := data[len(luaDumpMagic):]
	dec := msgpack.NewDecoder(bytes.NewReader([]byte(rest)), msgpackHandle)
	var chunk dumpedChunk
	if err := dec.Decode(&chunk); err != nil {
		return nil, newRuntimeError("unable to undump given chunk: %s", err)
	}
	name := chunk.Name
	if name == "" {
		name = "=(load)"
	}
	return i.Load(chunk.Source, name)
}

// IsDumped reports whether data carries the string.dump wire format,
// the test Load uses to decide between parsing source and undumping.
func IsDumped(data string) bool {
	return strings.HasPrefix(data, luaDumpMagic)
}
