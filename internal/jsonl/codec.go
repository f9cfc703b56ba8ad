// Package jsonl implements the append-only JSON-lines record store shared by
// every pipeline stage. A store is a single file holding one JSON object per
// line, optionally under exactly one whole-file compression codec.
package jsonl

import (
	stdbzip2 "compress/bzip2"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// ErrInvalidCodec reports an impossible codec selection.
var ErrInvalidCodec = errors.New("invalid codec")

// Kind names a compression scheme.
type Kind int

// Supported compression schemes. KindNone stores plain text lines.
const (
	KindNone Kind = iota
	KindGzip
	KindBzip2
	KindXZ
	KindZstd
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindGzip:
		return "gzip"
	case KindBzip2:
		return "bzip2"
	case KindXZ:
		return "xz"
	case KindZstd:
		return "zstd"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a configuration string onto a Kind.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "", "none":
		return KindNone, nil
	case "gzip", "gz":
		return KindGzip, nil
	case "bzip2", "bzip", "bz2":
		return KindBzip2, nil
	case "xz", "lzma":
		return KindXZ, nil
	case "zstd", "zst":
		return KindZstd, nil
	default:
		return KindNone, fmt.Errorf("%w: unknown compression %q", ErrInvalidCodec, name)
	}
}

// Codec is the compression applied to a store. The zero value is an
// uncompressed store. Level 0 selects the scheme's default level.
type Codec struct {
	Kind  Kind
	Level int
}

// DefaultLevel mirrors the historical dataset files, which were written at
// maximum gzip/bzip2 compression.
const DefaultLevel = 9

// None returns the uncompressed codec.
func None() Codec { return Codec{Kind: KindNone} }

// Gzip returns a gzip codec at the given level.
func Gzip(level int) Codec { return Codec{Kind: KindGzip, Level: level} }

// Bzip2 returns a bzip2 codec at the given level.
func Bzip2(level int) Codec { return Codec{Kind: KindBzip2, Level: level} }

// XZ returns an xz codec. xz has no tunable level here.
func XZ() Codec { return Codec{Kind: KindXZ} }

// Zstd returns a zstd codec at the given level (1-22).
func Zstd(level int) Codec { return Codec{Kind: KindZstd, Level: level} }

// FromFlags builds a Codec from mutually exclusive CLI switches. Selecting
// more than one scheme is a configuration error.
func FromFlags(useGzip, useBzip2, useXZ, useZstd bool, level int) (Codec, error) {
	selected := make([]Kind, 0, 1)
	for kind, on := range map[Kind]bool{
		KindGzip:  useGzip,
		KindBzip2: useBzip2,
		KindXZ:    useXZ,
		KindZstd:  useZstd,
	} {
		if on {
			selected = append(selected, kind)
		}
	}
	switch len(selected) {
	case 0:
		return None(), nil
	case 1:
		c := Codec{Kind: selected[0], Level: level}
		return c, c.Validate()
	default:
		return Codec{}, fmt.Errorf("%w: only one compression scheme may be selected", ErrInvalidCodec)
	}
}

// Validate checks the kind and level combination.
func (c Codec) Validate() error {
	switch c.Kind {
	case KindNone, KindXZ:
		return nil
	case KindGzip, KindBzip2:
		if c.Level < 0 || c.Level > 9 {
			return fmt.Errorf("%w: %s level must be within 0-9, got %d", ErrInvalidCodec, c.Kind, c.Level)
		}
		return nil
	case KindZstd:
		if c.Level < 0 || c.Level > 22 {
			return fmt.Errorf("%w: zstd level must be within 0-22, got %d", ErrInvalidCodec, c.Level)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidCodec, int(c.Kind))
	}
}

// String renders the codec for logs.
func (c Codec) String() string {
	if c.Kind == KindNone || c.Kind == KindXZ || c.Level == 0 {
		return c.Kind.String()
	}
	return fmt.Sprintf("%s:%d", c.Kind, c.Level)
}

// Compressed reports whether the codec applies any compression.
func (c Codec) Compressed() bool {
	return c.Kind != KindNone
}

// Extension returns the conventional file suffix for the codec.
func (c Codec) Extension() string {
	switch c.Kind {
	case KindGzip:
		return ".gz"
	case KindBzip2:
		return ".bz2"
	case KindXZ:
		return ".xz"
	case KindZstd:
		return ".zst"
	default:
		return ""
	}
}

// KindFromPath infers the codec kind from a store file name. ok is false
// when the name carries no recognizable suffix.
func KindFromPath(path string) (kind Kind, ok bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return KindGzip, true
	case ".bz2":
		return KindBzip2, true
	case ".xz":
		return KindXZ, true
	case ".zst":
		return KindZstd, true
	case ".jsonl", ".json":
		return KindNone, true
	default:
		return KindNone, false
	}
}

func (c Codec) level(def int) int {
	if c.Level == 0 {
		return def
	}
	return c.Level
}

// newWriter starts a new compressed member on w. Closing the returned writer
// finishes the member but never closes w.
func (c Codec) newWriter(w io.Writer) (io.WriteCloser, error) {
	switch c.Kind {
	case KindNone:
		return nopWriteCloser{w}, nil
	case KindGzip:
		zw, err := gzip.NewWriterLevel(w, c.level(DefaultLevel))
		if err != nil {
			return nil, fmt.Errorf("gzip writer: %w", err)
		}
		return zw, nil
	case KindBzip2:
		bw, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: c.level(DefaultLevel)})
		if err != nil {
			return nil, fmt.Errorf("bzip2 writer: %w", err)
		}
		return bw, nil
	case KindXZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("xz writer: %w", err)
		}
		return xw, nil
	case KindZstd:
		opts := []zstd.EOption{zstd.WithEncoderConcurrency(1)}
		if c.Level > 0 {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.Level)))
		}
		zw, err := zstd.NewWriter(w, opts...)
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		return zw, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidCodec, int(c.Kind))
	}
}

// newReader decodes every concatenated member of r in order.
func (c Codec) newReader(r io.Reader) (io.ReadCloser, error) {
	switch c.Kind {
	case KindNone:
		return io.NopCloser(r), nil
	case KindGzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return zr, nil
	case KindBzip2:
		return io.NopCloser(stdbzip2.NewReader(r)), nil
	case KindXZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		return io.NopCloser(xr), nil
	case KindZstd:
		zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidCodec, int(c.Kind))
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
