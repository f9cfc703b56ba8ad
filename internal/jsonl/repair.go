package jsonl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"go.uber.org/zap"
)

// memberMagic holds the leading bytes of every member written under a kind.
var memberMagic = map[Kind][]byte{
	KindGzip:  {0x1f, 0x8b, 0x08},
	KindBzip2: []byte("BZh"),
	KindXZ:    {0xfd, '7', 'z', 'X', 'Z', 0x00},
	KindZstd:  {0x28, 0xb5, 0x2f, 0xfd},
}

// repairTailLocked makes the file safe to append to. A compressed store is
// cut back to the end of its last complete member; a plain store gets a
// closing newline when its last line is torn. Callers hold s.mu.
func (s *Store) repairTailLocked() error {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", s.path, err)
	}
	size := info.Size()
	if size == 0 {
		return nil
	}
	if !s.codec.Compressed() {
		return s.terminateLastLine(size)
	}

	end, err := s.lastMemberEnd(size)
	if err != nil {
		return err
	}
	if end == size {
		return nil
	}
	if err := os.Truncate(s.path, end); err != nil {
		return fmt.Errorf("drop damaged tail of %s: %w", s.path, err)
	}
	s.logger.Warn("Dropped damaged tail before appending",
		zap.Int64("kept_bytes", end),
		zap.Int64("dropped_bytes", size-end))
	return nil
}

func (s *Store) terminateLastLine(size int64) error {
	// #nosec G304 -- store paths come from operator configuration.
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		_ = f.Close()
		return fmt.Errorf("read tail of %s: %w", s.path, err)
	}
	if last[0] == '\n' {
		return f.Close()
	}
	if _, err := f.Write([]byte{'\n'}); err != nil {
		_ = f.Close()
		return fmt.Errorf("terminate last line of %s: %w", s.path, err)
	}
	s.logger.Warn("Terminated torn last line before appending")
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.path, err)
	}
	return nil
}

// lastMemberEnd returns the largest offset at which the file splits into
// complete members followed by damage. Candidate offsets are member starts,
// including a member cut inside its own magic bytes.
func (s *Store) lastMemberEnd(size int64) (int64, error) {
	// #nosec G304 -- store paths come from operator configuration.
	f, err := os.Open(s.path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()

	ok, err := s.decodesCleanly(f, size)
	if err != nil || ok {
		return size, err
	}
	starts, err := memberStarts(f, size, memberMagic[s.codec.Kind])
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", s.path, err)
	}
	if len(starts) == 0 || starts[0] != 0 {
		return 0, fmt.Errorf("%w: %s does not start with a %s member", ErrInvalidCodec, s.path, s.codec.Kind)
	}
	for i := len(starts) - 1; i > 0; i-- {
		ok, err := s.decodesCleanly(f, starts[i])
		if err != nil {
			return 0, err
		}
		if ok {
			return starts[i], nil
		}
	}
	return 0, nil
}

// decodesCleanly reports whether the first n bytes decode to the end
// without error.
func (s *Store) decodesCleanly(r io.ReaderAt, n int64) (bool, error) {
	dec, err := s.codec.newReader(io.NewSectionReader(r, 0, n))
	if err != nil {
		if isStorageError(err) {
			return false, fmt.Errorf("read %s: %w", s.path, err)
		}
		return false, nil
	}
	_, copyErr := io.Copy(io.Discard, dec)
	closeErr := dec.Close()
	if isStorageError(copyErr) {
		return false, fmt.Errorf("read %s: %w", s.path, copyErr)
	}
	return copyErr == nil && closeErr == nil, nil
}

// memberStarts lists every offset where magic begins, in ascending order,
// followed by offsets where the file ends inside a partial magic.
func memberStarts(r io.ReaderAt, size int64, magic []byte) ([]int64, error) {
	const window = 1 << 20
	var starts []int64
	buf := make([]byte, window+len(magic)-1)
	for off := int64(0); off < size; off += window {
		n, err := r.ReadAt(buf, off)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		chunk := buf[:n]
		for i := 0; i < len(chunk); {
			j := bytes.Index(chunk[i:], magic)
			if j < 0 || i+j >= window {
				break
			}
			starts = append(starts, off+int64(i+j))
			i += j + 1
		}
	}

	tailLen := min(size, int64(len(magic)-1))
	tail := make([]byte, tailLen)
	if _, err := r.ReadAt(tail, size-tailLen); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	for i := range tail {
		if bytes.HasPrefix(magic, tail[i:]) {
			starts = append(starts, size-tailLen+int64(i))
		}
	}
	return starts, nil
}
