package reduce

import "github.com/JakeFAU/newsroom-builder/internal/dataset"

// ExactnessMap maps truncated identifiers back to the original identifier
// they stand for. When several originals truncate to the same key, the one
// appearing last in input order wins.
type ExactnessMap struct {
	digits    int
	originals map[string]string
	keys      []string
}

// Truncate shortens the timestamp of identifier to digits (minimum one).
func Truncate(identifier string, digits int) string {
	return dataset.TruncateTimestamp(identifier, digits)
}

// BuildExactnessMap truncates every identifier in todo.
func BuildExactnessMap(todo []string, digits int) *ExactnessMap {
	m := &ExactnessMap{
		digits:    max(1, digits),
		originals: make(map[string]string, len(todo)),
	}
	for _, id := range todo {
		key := Truncate(id, m.digits)
		if _, ok := m.originals[key]; !ok {
			m.keys = append(m.keys, key)
		}
		m.originals[key] = id
	}
	return m
}

// Keys returns the truncated identifiers to fetch, in first-seen order.
func (m *ExactnessMap) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Resolve returns the original identifier for a truncated one.
func (m *ExactnessMap) Resolve(truncated string) (string, bool) {
	id, ok := m.originals[truncated]
	return id, ok
}

// Digits returns the effective truncation factor.
func (m *ExactnessMap) Digits() int { return m.digits }

// Len returns the number of truncated keys.
func (m *ExactnessMap) Len() int { return len(m.keys) }
