package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// ReadStats summarizes one pass over a store.
type ReadStats struct {
	// Lines counts every line seen, decodable or not.
	Lines int
	// Records counts lines that decoded successfully.
	Records int
	// Malformed holds the zero-based indices of lines that failed to decode.
	Malformed []int
	// Truncated is set when the compressed stream ended mid-member, which
	// happens when a writer was killed before finishing its batch.
	Truncated bool
}

// Each streams raw lines to fn. Every call reopens the file, so a store can
// be read any number of times. An error returned by fn stops the read and
// is returned unchanged.
func (s *Store) Each(ctx context.Context, fn func(line int, raw []byte) error) (ReadStats, error) {
	var stats ReadStats
	err := s.scan(ctx, &stats, fn)
	return stats, err
}

// Count returns the number of lines without holding them in memory.
func (s *Store) Count(ctx context.Context) (int, error) {
	stats, err := s.Each(ctx, func(int, []byte) error { return nil })
	return stats.Lines, err
}

// Decode streams decoded records to fn. Lines that fail to decode are
// skipped, logged once with their index, and collected in ReadStats.
func Decode[T any](ctx context.Context, s *Store, fn func(T) error) (ReadStats, error) {
	var stats ReadStats
	err := s.scan(ctx, &stats, func(idx int, raw []byte) error {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			stats.Malformed = append(stats.Malformed, idx)
			s.logger.Warn("Decoding error; skipping line", zap.Int("line", idx), zap.Error(err))
			return nil
		}
		stats.Records++
		return fn(v)
	})
	return stats, err
}

// ReadAll decodes the whole store into memory.
func ReadAll[T any](ctx context.Context, s *Store) ([]T, ReadStats, error) {
	var out []T
	stats, err := Decode(ctx, s, func(v T) error {
		out = append(out, v)
		return nil
	})
	return out, stats, err
}

func (s *Store) scan(ctx context.Context, stats *ReadStats, fn func(int, []byte) error) error {
	rc, err := s.openReader(ctx)
	if err != nil {
		if errors.Is(err, errEmptyStore) {
			return nil
		}
		if errors.Is(err, errTruncatedHeader) {
			stats.Truncated = true
			s.logger.Warn("Store ends inside a compressed header; treating as truncated")
			return nil
		}
		return err
	}

	readErr := s.readLines(ctx, rc, stats, fn)
	closeErr := rc.Close()
	if readErr != nil {
		return readErr
	}
	if closeErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("read %s: %w", s.path, ctxErr)
		}
		var toolErr *toolExitError
		if errors.As(closeErr, &toolErr) {
			stats.Truncated = true
			s.logger.Warn("External decompressor reported a damaged tail", zap.Error(closeErr))
			return nil
		}
		return closeErr
	}
	if s.codec.Compressed() && !stats.Truncated {
		s.mu.Lock()
		s.tailChecked = true
		s.mu.Unlock()
	}
	return nil
}

func (s *Store) readLines(ctx context.Context, r io.Reader, stats *ReadStats, fn func(int, []byte) error) error {
	br := bufio.NewReaderSize(r, 1<<20)
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("read %s: %w", s.path, err)
		}
		line, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			if s.codec.Compressed() && !isStorageError(err) {
				stats.Truncated = true
				s.logger.Warn("Compressed stream ended unexpectedly; keeping records read so far",
					zap.Int("lines", stats.Lines), zap.Error(err))
				return nil
			}
			return fmt.Errorf("read %s: %w", s.path, err)
		}
		if len(line) > 0 {
			idx := stats.Lines
			stats.Lines++
			if fnErr := fn(idx, trimEOL(line)); fnErr != nil {
				return fnErr
			}
		}
		if err != nil {
			return nil
		}
	}
}

var (
	errEmptyStore      = errors.New("empty store")
	errTruncatedHeader = errors.New("truncated header")
)

func (s *Store) openReader(ctx context.Context) (io.ReadCloser, error) {
	if err := s.Flush(); err != nil {
		return nil, err
	}
	// #nosec G304 -- store paths come from operator configuration.
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errEmptyStore
		}
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", s.path, err)
	}
	if info.Size() == 0 {
		_ = f.Close()
		return nil, errEmptyStore
	}

	if s.fast && s.codec.Compressed() {
		if tool, ok := s.tools.For(s.codec.Kind); ok {
			return startTool(ctx, tool, f)
		}
	}

	dec, err := s.codec.newReader(f)
	if err != nil {
		_ = f.Close()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, errTruncatedHeader
		}
		return nil, fmt.Errorf("open decoder for %s: %w", s.path, err)
	}
	return &decodedFile{ReadCloser: dec, file: f}, nil
}

type decodedFile struct {
	io.ReadCloser
	file *os.File
}

func (d *decodedFile) Close() error {
	decErr := d.ReadCloser.Close()
	fileErr := d.file.Close()
	return errors.Join(decErr, fileErr)
}

type toolExitError struct {
	tool   string
	stderr string
	err    error
}

func (e *toolExitError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.tool, e.err, strings.TrimSpace(e.stderr))
}

func (e *toolExitError) Unwrap() error { return e.err }

type toolReader struct {
	io.ReadCloser
	cmd    *exec.Cmd
	file   *os.File
	stderr *bytes.Buffer
}

func startTool(ctx context.Context, tool string, f *os.File) (io.ReadCloser, error) {
	// #nosec G204 -- tool path comes from the detected capability record.
	cmd := exec.CommandContext(ctx, tool)
	cmd.Stdin = f
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("pipe %s: %w", tool, err)
	}
	if err := cmd.Start(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("start %s: %w", tool, err)
	}
	return &toolReader{ReadCloser: stdout, cmd: cmd, file: f, stderr: stderr}, nil
}

func (t *toolReader) Close() error {
	// Drain so the tool never blocks on a full pipe before exiting.
	_, _ = io.Copy(io.Discard, t.ReadCloser)
	waitErr := t.cmd.Wait()
	fileErr := t.file.Close()
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &toolExitError{tool: t.cmd.Path, stderr: t.stderr.String(), err: waitErr}
		}
		return fmt.Errorf("wait %s: %w", t.cmd.Path, waitErr)
	}
	return fileErr
}

func isStorageError(err error) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr)
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}
