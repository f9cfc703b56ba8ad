// Package fragments measures how extractive a summary is relative to its
// article by matching shared token runs.
package fragments

import (
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]+(?:['’][\p{L}]+)*|[^\s\p{L}\p{N}_]`)

// Tokenize lowercases s and splits it into word and punctuation tokens.
func Tokenize(s string) []string {
	return tokenPattern.FindAllString(strings.ToLower(s), -1)
}

// Match is a shared run of tokens.
type Match struct {
	SummaryStart int
	TextStart    int
	Length       int
}

// Fragments holds the greedy matching of a summary against its text.
type Fragments struct {
	Summary []string
	Text    []string
	Matches []Match
}

// New tokenizes both sides and computes the matches.
func New(summary, text string) *Fragments {
	return FromTokens(Tokenize(summary), Tokenize(text))
}

// FromTokens computes matches for pre-tokenized input.
func FromTokens(summary, text []string) *Fragments {
	return &Fragments{Summary: summary, Text: text, Matches: match(summary, text)}
}

// match walks the summary and, at each position, takes the longest run
// shared with the text. Matched summary tokens are consumed.
func match(a, b []string) []Match {
	var matches []Match
	for aStart := 0; aStart < len(a); {
		best := Match{}
		for bStart := 0; bStart < len(b); {
			if a[aStart] != b[bStart] {
				bStart++
				continue
			}
			aEnd, bEnd := aStart, bStart
			for aEnd < len(a) && bEnd < len(b) && a[aEnd] == b[bEnd] {
				aEnd++
				bEnd++
			}
			if n := aEnd - aStart; n > best.Length {
				best = Match{SummaryStart: aStart, TextStart: bStart, Length: n}
			}
			bStart = bEnd
		}
		if best.Length > 0 {
			matches = append(matches, best)
			aStart += best.Length
			continue
		}
		aStart++
	}
	return matches
}

// Coverage is the share of summary tokens inside a shared fragment.
func (f *Fragments) Coverage() float64 {
	if len(f.Summary) == 0 {
		return 0
	}
	total := 0
	for _, m := range f.Matches {
		total += m.Length
	}
	return float64(total) / float64(len(f.Summary))
}

// Density is the mean squared fragment length per summary token.
func (f *Fragments) Density() float64 {
	if len(f.Summary) == 0 {
		return 0
	}
	total := 0
	for _, m := range f.Matches {
		total += m.Length * m.Length
	}
	return float64(total) / float64(len(f.Summary))
}

// Compression is the ratio of text length to summary length.
func (f *Fragments) Compression() float64 {
	if len(f.Summary) == 0 {
		return 0
	}
	return float64(len(f.Text)) / float64(len(f.Summary))
}

// Strings returns the matched fragments as text.
func (f *Fragments) Strings() []string {
	out := make([]string, 0, len(f.Matches))
	for _, m := range f.Matches {
		out = append(out, strings.Join(f.Summary[m.SummaryStart:m.SummaryStart+m.Length], " "))
	}
	return out
}

// Calculator implements dataset.Metrics.
type Calculator struct{}

// Compute returns density, coverage and compression for a summary/text pair.
func (Calculator) Compute(summary, text string) (density, coverage, compression float64) {
	f := New(summary, text)
	return f.Density(), f.Coverage(), f.Compression()
}
