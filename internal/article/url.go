package article

import (
	"net/url"
	"strings"
)

// NormalizeURL collapses repeated slashes, drops the query, fragment and an
// explicit :80 port, and percent-escapes the path.
func NormalizeURL(raw string) string {
	cleaned := strings.ReplaceAll(raw, "://", "\x00")
	cleaned = strings.ReplaceAll(cleaned, "//", "/")
	cleaned = strings.ReplaceAll(cleaned, "\x00", "://")

	u, err := url.Parse(cleaned)
	if err != nil {
		return cleaned
	}
	host := strings.TrimSuffix(u.Host, ":80")

	var b strings.Builder
	if u.Scheme != "" {
		b.WriteString(u.Scheme)
		b.WriteString(":")
	}
	if u.Scheme != "" || host != "" {
		b.WriteString("//")
		if u.User != nil {
			b.WriteString(u.User.String())
			b.WriteString("@")
		}
		b.WriteString(host)
	}
	b.WriteString(quotePath(u.EscapedPath()))
	return b.String()
}

// SameDomain reports whether two URLs share a host (including port).
func SameDomain(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return ua.Host == ub.Host
}

// quotePath escapes every byte except unreserved characters, '/' and '%'.
// Existing escapes are kept as they are.
func quotePath(p string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(p))
	for i := 0; i < len(p); i++ {
		c := p[i]
		if isUnreserved(c) || c == '/' || c == '%' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	default:
		return false
	}
}
