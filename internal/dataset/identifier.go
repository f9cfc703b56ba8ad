package dataset

import (
	"errors"
	"strings"
)

// SnapshotMarker separates the archive timestamp from the original URL in a
// raw-content archive identifier, e.g.
// http://web.archive.org/web/20160101120000id_/http://example.com/story.
const SnapshotMarker = "id_/"

// ErrNotArchiveIdentifier is returned when an identifier lacks the snapshot marker.
var ErrNotArchiveIdentifier = errors.New("identifier has no snapshot marker")

// ParseArchive splits an archive identifier into its timestamp segment and
// the original page URL.
func ParseArchive(identifier string) (timestamp string, original string, err error) {
	idx := strings.Index(identifier, SnapshotMarker)
	if idx < 0 {
		return "", "", ErrNotArchiveIdentifier
	}
	prefix := identifier[:idx]
	timestamp = prefix[strings.LastIndex(prefix, "/")+1:]

	last := strings.LastIndex(identifier, SnapshotMarker)
	original = identifier[last+len(SnapshotMarker):]
	return timestamp, original, nil
}

// TruncateTimestamp shortens the timestamp segment of an archive identifier
// to at most digits characters. Values below one are clamped to one.
// Identifiers without a snapshot marker are returned unchanged.
func TruncateTimestamp(identifier string, digits int) string {
	digits = max(1, digits)
	before, after, found := strings.Cut(identifier, SnapshotMarker)
	if !found {
		return identifier
	}
	cut := strings.LastIndex(before, "/") + 1
	root, stamp := before[:cut], before[cut:]
	if len(stamp) > digits {
		stamp = stamp[:digits]
	}
	return root + stamp + SnapshotMarker + after
}
