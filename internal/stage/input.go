package stage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/JakeFAU/newsroom-builder/internal/jsonl"
	"github.com/JakeFAU/newsroom-builder/internal/reduce"
)

const maxURLLine = 1 << 20

// LoadURLs reads one identifier per line, trimming whitespace. Blank lines
// are kept as empty strings; the reducer drops them.
func LoadURLs(path string) ([]string, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied input list.
	if err != nil {
		return nil, fmt.Errorf("open url list: %w", err)
	}
	defer func() { _ = f.Close() }()

	var urls []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxURLLine)
	for sc.Scan() {
		urls = append(urls, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read url list %s: %w", path, err)
	}
	return urls, nil
}

// requested loads identifiers from a URL list or, failing that, a thin store.
func requested(ctx context.Context, urlsPath string, thin *jsonl.Store) ([]string, error) {
	switch {
	case urlsPath != "":
		return LoadURLs(urlsPath)
	case thin != nil:
		if !thin.Exists() {
			return nil, fmt.Errorf("thin dataset %s does not exist", thin.Path())
		}
		ids, _, err := reduce.Identifiers(ctx, thin, nil)
		return ids, err
	default:
		return nil, errors.New("either a url list or a thin dataset is required")
	}
}
