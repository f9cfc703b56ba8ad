package dataset

import "context"

// Extractor turns a raw archive page into a dataset record. Implementations
// must not panic; any failure is reported as a nil record.
type Extractor interface {
	Process(page ArchiveRecord) *Record
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(page ArchiveRecord) *Record

// Process calls f(page).
func (f ExtractorFunc) Process(page ArchiveRecord) *Record {
	return f(page)
}

// Metrics computes the three difficulty metrics for a summary/text pair. It
// is a pure function of its inputs.
type Metrics interface {
	Compute(summary, text string) (density, coverage, compression float64)
}

// MetricsFunc adapts a function to the Metrics interface.
type MetricsFunc func(summary, text string) (float64, float64, float64)

// Compute calls f(summary, text).
func (f MetricsFunc) Compute(summary, text string) (float64, float64, float64) {
	return f(summary, text)
}

// Publisher pushes run notifications to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}
