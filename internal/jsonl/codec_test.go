package jsonl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFlags(t *testing.T) {
	t.Parallel()

	c, err := FromFlags(false, false, false, false, 0)
	require.NoError(t, err)
	assert.Equal(t, None(), c)

	c, err = FromFlags(true, false, false, false, 5)
	require.NoError(t, err)
	assert.Equal(t, Gzip(5), c)

	c, err = FromFlags(false, false, true, false, 0)
	require.NoError(t, err)
	assert.Equal(t, KindXZ, c.Kind)

	_, err = FromFlags(true, true, false, false, 0)
	require.ErrorIs(t, err, ErrInvalidCodec)

	_, err = FromFlags(false, true, false, false, 10)
	require.ErrorIs(t, err, ErrInvalidCodec)
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]Kind{
		"":      KindNone,
		"none":  KindNone,
		"gzip":  KindGzip,
		"bz2":   KindBzip2,
		"xz":    KindXZ,
		"zstd":  KindZstd,
		"bzip2": KindBzip2,
	} {
		got, err := ParseKind(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
	_, err := ParseKind("brotli")
	require.ErrorIs(t, err, ErrInvalidCodec)
}

func TestCodecStringAndExtension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "gzip", Gzip(0).String())
	assert.Equal(t, "gzip:9", Gzip(9).String())
	assert.Equal(t, "xz", XZ().String())
	assert.Equal(t, ".zst", Zstd(0).Extension())
	assert.Equal(t, "", None().Extension())
	assert.False(t, None().Compressed())
	assert.True(t, Bzip2(0).Compressed())
}

func TestDetectToolsWith(t *testing.T) {
	t.Parallel()

	tools := DetectToolsWith(func(name string) (string, error) {
		if name == "zcat" || name == "xzcat" {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("not found")
	})
	p, ok := tools.For(KindGzip)
	assert.True(t, ok)
	assert.Equal(t, "/usr/bin/zcat", p)
	_, ok = tools.For(KindBzip2)
	assert.False(t, ok)
	assert.Equal(t, []string{"zcat", "xzcat"}, tools.Available())

	_, ok = Tools{}.For(KindGzip)
	assert.False(t, ok)
}

func TestKindFromPath(t *testing.T) {
	t.Parallel()

	for path, want := range map[string]Kind{
		"dataset.jsonl.gz":  KindGzip,
		"archive.jsonl.BZ2": KindBzip2,
		"a.jsonl.xz":        KindXZ,
		"a.jsonl.zst":       KindZstd,
		"plain.jsonl":       KindNone,
	} {
		got, ok := KindFromPath(path)
		assert.True(t, ok, path)
		assert.Equal(t, want, got, path)
	}
	_, ok := KindFromPath("archive.dat")
	assert.False(t, ok)
}
