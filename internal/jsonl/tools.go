package jsonl

import (
	"os/exec"
)

// toolNames lists the external stream decompressors preferred for reads.
var toolNames = map[Kind]string{
	KindGzip:  "zcat",
	KindBzip2: "bzcat",
	KindXZ:    "xzcat",
	KindZstd:  "zstdcat",
}

// Tools records which external decompressors are available. It is resolved
// once at process start and never changes afterwards; the zero value has no
// tools, which forces in-process decoding.
type Tools struct {
	paths map[Kind]string
}

// LookPathFunc resolves a binary name to a path.
type LookPathFunc func(file string) (string, error)

// DetectTools probes the PATH for every supported decompressor.
func DetectTools() Tools {
	return DetectToolsWith(exec.LookPath)
}

// DetectToolsWith probes using a caller-supplied lookup, which lets tests pin
// the capability record.
func DetectToolsWith(lookPath LookPathFunc) Tools {
	paths := make(map[Kind]string, len(toolNames))
	for kind, name := range toolNames {
		if p, err := lookPath(name); err == nil && p != "" {
			paths[kind] = p
		}
	}
	return Tools{paths: paths}
}

// For returns the decompressor binary for kind, if one was found.
func (t Tools) For(kind Kind) (string, bool) {
	p, ok := t.paths[kind]
	return p, ok
}

// Available lists the tool names that were detected, for logging.
func (t Tools) Available() []string {
	out := make([]string, 0, len(t.paths))
	for _, kind := range []Kind{KindGzip, KindBzip2, KindXZ, KindZstd} {
		if _, ok := t.paths[kind]; ok {
			out = append(out, toolNames[kind])
		}
	}
	return out
}
