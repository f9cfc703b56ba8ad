package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"archive identifier", "http://web.archive.org/web/20160101id_/http://example.com/a", "web.archive.org"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	assert.NotNil(t, fetchAttemptsTotal)
	assert.NotNil(t, recordsTotal)
	assert.NotNil(t, stageProgress)
}

func TestObserveFetchAttempt(t *testing.T) {
	Init()
	before := testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("attempt.test", OutcomeSuccess))
	bytesBefore := testutil.ToFloat64(fetchBytesTotal.WithLabelValues("attempt.test"))

	ObserveFetchAttempt("https://attempt.test/a", OutcomeSuccess, 128)
	ObserveFetchAttempt("https://attempt.test/b", OutcomeSuccess, 0)

	assert.InDelta(t, before+2, testutil.ToFloat64(fetchAttemptsTotal.WithLabelValues("attempt.test", OutcomeSuccess)), 1e-9)
	assert.InDelta(t, bytesBefore+128, testutil.ToFloat64(fetchBytesTotal.WithLabelValues("attempt.test")), 1e-9)
}

func TestObserveRecordsIgnoresNonPositive(t *testing.T) {
	Init()
	before := testutil.ToFloat64(recordsTotal.WithLabelValues("unit", "ok"))
	ObserveRecords("unit", "ok", 0)
	ObserveRecords("unit", "ok", -3)
	ObserveRecords("unit", "ok", 4)
	assert.InDelta(t, before+4, testutil.ToFloat64(recordsTotal.WithLabelValues("unit", "ok")), 1e-9)
}

func TestSetProgress(t *testing.T) {
	SetProgress("progress-unit", 10, 7, 2)
	assert.InDelta(t, 10.0, testutil.ToFloat64(stageProgress.WithLabelValues("progress-unit", "total")), 1e-9)
	assert.InDelta(t, 7.0, testutil.ToFloat64(stageProgress.WithLabelValues("progress-unit", "done")), 1e-9)
	assert.InDelta(t, 2.0, testutil.ToFloat64(stageProgress.WithLabelValues("progress-unit", "failed")), 1e-9)
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
