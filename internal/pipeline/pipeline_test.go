package pipeline

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/newsroom-builder/internal/binning"
	"github.com/JakeFAU/newsroom-builder/internal/dataset"
	"github.com/JakeFAU/newsroom-builder/internal/jsonl"
	"github.com/JakeFAU/newsroom-builder/internal/reduce"
)

func archiveID(i int) string {
	return fmt.Sprintf("http://web.archive.org/web/20160101000000id_/http://example.com/%d", i)
}

func indexOf(id string) int {
	n, _ := strconv.Atoi(id[strings.LastIndex(id, "/")+1:])
	return n
}

// fakeExtractor drops multiples of 5 and leaves the summary empty on multiples of 3.
func fakeExtractor(page dataset.ArchiveRecord) *dataset.Record {
	i := indexOf(page.Identifier())
	if i%5 == 0 {
		return nil
	}
	rec := &dataset.Record{Archive: page.Identifier(), Text: dataset.StringPtr(page.HTML)}
	if i%3 != 0 {
		rec.Summary = dataset.StringPtr("summary")
	}
	return rec
}

var fixedMetrics = dataset.MetricsFunc(func(string, string) (float64, float64, float64) {
	return 2, 0.9, 40
})

func setup(t *testing.T, n int) (in, out *jsonl.Store, ids []string) {
	t.Helper()
	dir := t.TempDir()
	in, err := jsonl.Open(filepath.Join(dir, "archive.jsonl.gz"), jsonl.Gzip(0))
	require.NoError(t, err)
	out, err = jsonl.Open(filepath.Join(dir, "dataset.jsonl.gz"), jsonl.Gzip(0))
	require.NoError(t, err)

	records := make([]dataset.ArchiveRecord, n)
	ids = make([]string, n)
	for i := range records {
		ids[i] = archiveID(i + 1)
		records[i] = dataset.ArchiveRecord{Archive: ids[i], HTML: "text " + ids[i]}
	}
	require.NoError(t, jsonl.AppendMany(in, records))
	return in, out, ids
}

func readDataset(t *testing.T, out *jsonl.Store) []dataset.Record {
	t.Helper()
	recs, _, err := jsonl.ReadAll[dataset.Record](context.Background(), out)
	require.NoError(t, err)
	return recs
}

type counter struct{ done, failed atomic.Int64 }

func (c *counter) Add(done, failed int) {
	c.done.Add(int64(done))
	c.failed.Add(int64(failed))
}

func TestRunTransformsAndBins(t *testing.T) {
	t.Parallel()

	in, out, ids := setup(t, 25)
	prog := &counter{}
	p, err := New(Config{ChunkSize: 10, Workers: 3}, dataset.ExtractorFunc(fakeExtractor), fixedMetrics,
		binning.DefaultScheme(), WithProgress(prog))
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), in, out, ids)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Chunks)
	assert.Equal(t, 20, summary.Written)
	assert.Equal(t, 5, summary.Dropped)
	assert.Equal(t, int64(20), prog.done.Load())
	assert.Equal(t, int64(5), prog.failed.Load())

	recs := readDataset(t, out)
	require.Len(t, recs, 20)
	for _, r := range recs {
		i := indexOf(r.Archive)
		assert.NotZero(t, i%5)
		if i%3 == 0 {
			assert.Nil(t, r.Summary)
			assert.Nil(t, r.Density)
			assert.Empty(t, r.DensityBin)
			continue
		}
		require.NotNil(t, r.Density)
		assert.InDelta(t, 2.0, *r.Density, 1e-9)
		assert.Equal(t, "mixed", r.DensityBin)
		assert.Equal(t, "medium", r.CoverageBin)
		assert.Equal(t, "high", r.CompressionBin)
	}
}

// TestChunkCrashResume cancels during the second of three chunks and reruns.
func TestChunkCrashResume(t *testing.T) {
	t.Parallel()

	in, out, ids := setup(t, 30)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cancelling := dataset.ExtractorFunc(func(page dataset.ArchiveRecord) *dataset.Record {
		if indexOf(page.Identifier()) == 15 {
			cancel()
		}
		return &dataset.Record{Archive: page.Identifier(), Text: dataset.StringPtr("t")}
	})
	p, err := New(Config{ChunkSize: 10, Workers: 4}, cancelling, fixedMetrics, binning.DefaultScheme())
	require.NoError(t, err)

	summary, err := p.Run(ctx, in, out, ids)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.Chunks)
	require.Len(t, readDataset(t, out), 10)

	// Rerun: the reducer leaves exactly the two uncommitted chunks.
	done, _, err := reduce.Done(context.Background(), out, nil)
	require.NoError(t, err)
	todo, _ := reduce.Subtract(ids, done)
	require.Len(t, todo, 20)

	plain := dataset.ExtractorFunc(func(page dataset.ArchiveRecord) *dataset.Record {
		return &dataset.Record{Archive: page.Identifier(), Text: dataset.StringPtr("t")}
	})
	p, err = New(Config{ChunkSize: 10, Workers: 4}, plain, fixedMetrics, binning.DefaultScheme())
	require.NoError(t, err)
	summary, err = p.Run(context.Background(), in, out, todo)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Chunks)

	recs := readDataset(t, out)
	require.Len(t, recs, 30)
	got := make([]string, 0, len(recs))
	for _, r := range recs {
		got = append(got, r.Archive)
	}
	want := append([]string(nil), ids...)
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)
}

func TestRunSkipsIdentifiersOutsideTodoAndDuplicates(t *testing.T) {
	t.Parallel()

	in, out, ids := setup(t, 6)
	require.NoError(t, jsonl.AppendMany(in, []dataset.ArchiveRecord{{Archive: ids[1], HTML: "again"}}))

	var calls atomic.Int32
	extractor := dataset.ExtractorFunc(func(page dataset.ArchiveRecord) *dataset.Record {
		calls.Add(1)
		return &dataset.Record{Archive: page.Identifier()}
	})
	p, err := New(Config{ChunkSize: 4, Workers: 2}, extractor, fixedMetrics, binning.DefaultScheme())
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), in, out, []string{ids[1], ids[3]})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, summary.Written)
	assert.Equal(t, 1, summary.Chunks)
}

func TestRunIsolatesPanics(t *testing.T) {
	t.Parallel()

	in, out, ids := setup(t, 8)
	extractor := dataset.ExtractorFunc(func(page dataset.ArchiveRecord) *dataset.Record {
		if indexOf(page.Identifier()) == 4 {
			panic("bad page")
		}
		return &dataset.Record{Archive: page.Identifier(), Text: dataset.StringPtr("t"), Summary: dataset.StringPtr("s")}
	})
	unitMetrics := dataset.MetricsFunc(func(string, string) (float64, float64, float64) {
		return 1, 1, 1
	})
	p, err := New(Config{ChunkSize: 3, Workers: 2}, extractor, unitMetrics, binning.DefaultScheme())
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), in, out, ids)
	require.NoError(t, err)
	assert.Equal(t, 7, summary.Written)
	assert.Equal(t, 1, summary.Dropped)
	assert.Len(t, readDataset(t, out), 7)
}

func TestRunKeepsSiblingsOfNonFiniteMetrics(t *testing.T) {
	t.Parallel()

	in, out, ids := setup(t, 10)
	extractor := dataset.ExtractorFunc(func(page dataset.ArchiveRecord) *dataset.Record {
		return &dataset.Record{Archive: page.Identifier(), Text: dataset.StringPtr(page.HTML), Summary: dataset.StringPtr("s")}
	})
	badMetrics := dataset.MetricsFunc(func(_, text string) (float64, float64, float64) {
		switch {
		case strings.HasSuffix(text, "/2"):
			return math.NaN(), 0.5, 10
		case strings.HasSuffix(text, "/7"):
			return 2, 0.5, math.Inf(1)
		}
		return 2, 0.5, 10
	})
	p, err := New(Config{ChunkSize: 4, Workers: 2}, extractor, badMetrics, binning.DefaultScheme())
	require.NoError(t, err)

	summary, err := p.Run(context.Background(), in, out, ids)
	require.NoError(t, err)
	assert.Equal(t, 10, summary.Written)
	assert.Zero(t, summary.Dropped)

	recs := readDataset(t, out)
	require.Len(t, recs, 10)
	for _, rec := range recs {
		switch indexOf(rec.Archive) {
		case 2, 7:
			assert.Nil(t, rec.Density, rec.Archive)
			assert.Nil(t, rec.Compression, rec.Archive)
			assert.Empty(t, rec.DensityBin, rec.Archive)
			assert.NotNil(t, rec.Summary, rec.Archive)
		default:
			require.NotNil(t, rec.Density, rec.Archive)
			assert.InDelta(t, 2.0, *rec.Density, 1e-9)
			assert.NotEmpty(t, rec.DensityBin, rec.Archive)
		}
	}
}

func TestRunEmptyTodo(t *testing.T) {
	t.Parallel()

	in, out, _ := setup(t, 3)
	p, err := New(DefaultConfig(), dataset.ExtractorFunc(fakeExtractor), fixedMetrics, binning.DefaultScheme())
	require.NoError(t, err)
	summary, err := p.Run(context.Background(), in, out, nil)
	require.NoError(t, err)
	assert.Zero(t, summary.Chunks)
	assert.False(t, out.Exists())
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(Config{ChunkSize: 0, Workers: 1}, dataset.ExtractorFunc(fakeExtractor), fixedMetrics, binning.DefaultScheme())
	require.Error(t, err)
	_, err = New(Config{ChunkSize: 1, Workers: 0}, dataset.ExtractorFunc(fakeExtractor), fixedMetrics, binning.DefaultScheme())
	require.Error(t, err)
	_, err = New(DefaultConfig(), nil, fixedMetrics, binning.DefaultScheme())
	require.Error(t, err)
	require.NoError(t, DefaultConfig().Validate())
}
