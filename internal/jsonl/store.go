package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Store is a handle on one JSON-lines file. Reads and appends are never
// interleaved on the same open file: starting a read finishes any pending
// append member first, and the next append reopens the file in append mode.
//
// Each flushed append batch is written as its own compressed member, so a
// process killed mid-batch leaves one truncated member at the tail. Reads
// surface that as ReadStats.Truncated rather than failing, and the first
// append of a handle cuts the damaged member off so later batches stay
// readable. A torn last line of a plain store is closed with a newline
// instead and reads back as one malformed line.
type Store struct {
	path   string
	codec  Codec
	tools  Tools
	fast   bool
	logger *zap.Logger

	mu sync.Mutex
	// tailChecked is set once the file is known to end on a member boundary.
	tailChecked bool
	file        *os.File
	enc         io.WriteCloser
	buf         *bufio.Writer
}

// Option configures a Store.
type Option func(*Store)

// WithTools injects the external decompressor capability record.
func WithTools(t Tools) Option {
	return func(s *Store) { s.tools = t }
}

// WithFastRead toggles the external decompressor fast path (default on).
func WithFastRead(enabled bool) Option {
	return func(s *Store) { s.fast = enabled }
}

// WithLogger sets the logger used to report malformed lines.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open returns a handle on path. No file is touched until the first read or
// append; a missing file reads as an empty store.
func Open(path string, codec Codec, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is required")
	}
	if err := codec.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		path:   path,
		codec:  codec,
		fast:   true,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("store", path), zap.Stringer("codec", codec))
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Codec returns the active codec.
func (s *Store) Codec() Codec { return s.codec }

// Exists reports whether the backing file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// AppendOne serializes v as one line and appends it. For compressed stores
// the line joins the currently open member until Flush or Close.
func (s *Store) AppendOne(v any) error {
	line, err := marshalLine(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openAppendLocked(); err != nil {
		return err
	}
	if _, err := s.buf.Write(line); err != nil {
		return fmt.Errorf("append to %s: %w", s.path, err)
	}
	return nil
}

// AppendMany appends every record and flushes, making the batch durable as
// one unit. Records are marshalled before the file is touched, so an encoding
// failure appends nothing.
func AppendMany[T any](s *Store, records []T) error {
	if len(records) == 0 {
		return nil
	}
	lines, err := marshalAll(records)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openAppendLocked(); err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := s.buf.Write(line); err != nil {
			return fmt.Errorf("append to %s: %w", s.path, err)
		}
	}
	return s.closeWriterLocked()
}

// Overwrite replaces the store content with records. The new content is
// written to a sibling temporary file and renamed into place, so readers see
// either the old or the new content.
func Overwrite[T any](s *Store, records []T) error {
	lines, err := marshalAll(records)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.closeWriterLocked(); err != nil {
		return err
	}
	if err := ensureDir(s.path); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", s.path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	enc, err := s.codec.newWriter(tmp)
	if err != nil {
		cleanup()
		return err
	}
	bw := bufio.NewWriter(enc)
	for _, line := range lines {
		if _, err := bw.Write(line); err != nil {
			cleanup()
			return fmt.Errorf("write temp for %s: %w", s.path, err)
		}
	}
	if err := bw.Flush(); err != nil {
		cleanup()
		return fmt.Errorf("flush temp for %s: %w", s.path, err)
	}
	if err := enc.Close(); err != nil {
		cleanup()
		return fmt.Errorf("finish temp for %s: %w", s.path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp for %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", s.path, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	s.tailChecked = true
	return nil
}

// Flush finishes the open append member and syncs it to disk.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeWriterLocked()
}

// Close flushes any pending appends and releases the file.
func (s *Store) Close() error {
	return s.Flush()
}

func (s *Store) openAppendLocked() error {
	if s.file != nil {
		return nil
	}
	if err := ensureDir(s.path); err != nil {
		return err
	}
	if !s.tailChecked {
		if err := s.repairTailLocked(); err != nil {
			return err
		}
		s.tailChecked = true
	}
	// #nosec G304 -- store paths come from operator configuration.
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open %s for append: %w", s.path, err)
	}
	enc, err := s.codec.newWriter(f)
	if err != nil {
		_ = f.Close()
		return err
	}
	s.file = f
	s.enc = enc
	s.buf = bufio.NewWriterSize(enc, 64*1024)
	return nil
}

func (s *Store) closeWriterLocked() error {
	if s.file == nil {
		return nil
	}
	f := s.file
	s.file = nil
	var errs []error
	if err := s.buf.Flush(); err != nil {
		errs = append(errs, fmt.Errorf("flush %s: %w", s.path, err))
	}
	if err := s.enc.Close(); err != nil {
		errs = append(errs, fmt.Errorf("finish member in %s: %w", s.path, err))
	}
	if err := f.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("sync %s: %w", s.path, err))
	}
	if err := f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", s.path, err))
	}
	s.enc = nil
	s.buf = nil
	return errors.Join(errs...)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create store dir %s: %w", dir, err)
	}
	return nil
}

func marshalLine(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return buf.Bytes(), nil
}

func marshalAll[T any](records []T) ([][]byte, error) {
	lines := make([][]byte, 0, len(records))
	for i := range records {
		line, err := marshalLine(records[i])
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}
