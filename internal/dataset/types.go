// Package dataset defines the records that flow through the newsroom build
// pipeline and the capabilities the pipeline consumes.
package dataset

// ArchiveRecord is one fetched archive page as persisted in the archive store.
type ArchiveRecord struct {
	// Archive is the archive-qualified URL; it is the dedup key of the store.
	Archive string `json:"archive,omitempty"`
	// URL is the legacy identifier key written by older downloaders.
	URL  string `json:"url,omitempty"`
	HTML string `json:"html"`
	// ExactnessFactor is the number of timestamp digits kept when the page
	// was fetched through a truncated identifier. It holds the effective
	// count after clamping to at least 1, so a run asked for 0 digits
	// records 1; stores from older downloaders hold the requested value.
	ExactnessFactor int `json:"exactness_factor,omitempty"`
	// ExactnessArchive is the truncated identifier actually fetched.
	ExactnessArchive string `json:"exactness_archive,omitempty"`
}

// Identifier returns the provenance identifier of the record.
func (r ArchiveRecord) Identifier() string {
	if r.Archive != "" {
		return r.Archive
	}
	return r.URL
}

// Record is one enriched article of the final dataset.
type Record struct {
	URL     string  `json:"url"`
	Archive string  `json:"archive"`
	Date    string  `json:"date"`
	Title   string  `json:"title"`
	Text    *string `json:"text"`
	Summary *string `json:"summary"`

	Density     *float64 `json:"density,omitempty"`
	Coverage    *float64 `json:"coverage,omitempty"`
	Compression *float64 `json:"compression,omitempty"`

	DensityBin     string `json:"density_bin,omitempty"`
	CoverageBin    string `json:"coverage_bin,omitempty"`
	CompressionBin string `json:"compression_bin,omitempty"`
}

// Identifier returns the archive identifier the record was derived from.
func (r Record) Identifier() string {
	if r.Archive != "" {
		return r.Archive
	}
	return r.URL
}

// HasMetricInput reports whether both text and summary are present, which is
// required before metrics and bins may be assigned.
func (r Record) HasMetricInput() bool {
	return r.Text != nil && r.Summary != nil
}

// SetMetrics stores the three difficulty metrics on the record.
func (r *Record) SetMetrics(density, coverage, compression float64) {
	r.Density = &density
	r.Coverage = &coverage
	r.Compression = &compression
}

// Provenance decodes only the identifier fields of any stored record. The
// reducer uses it to diff stores without materializing page bodies.
type Provenance struct {
	Archive string `json:"archive"`
	URL     string `json:"url"`
}

// Identifier returns the archive key, falling back to the legacy url key.
func (p Provenance) Identifier() string {
	if p.Archive != "" {
		return p.Archive
	}
	return p.URL
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}
