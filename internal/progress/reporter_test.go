package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSink struct {
	mu    sync.Mutex
	snaps []Snapshot
	err   error
}

func (s *stubSink) Report(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return s.err
}

func (s *stubSink) Snapshots() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Snapshot(nil), s.snaps...)
}

func TestReporterPeriodicSnapshots(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	r := NewReporter(Config{Stage: "scrape", Total: 10, Interval: 10 * time.Millisecond}, sink)
	r.Add(3, 1)

	require.Eventually(t, func() bool {
		snaps := sink.Snapshots()
		return len(snaps) > 0 && snaps[len(snaps)-1].Handled() == 4
	}, time.Second, 5*time.Millisecond)

	final, err := r.Close(context.Background())
	require.NoError(t, err)
	assert.True(t, final.Final)
	assert.Equal(t, "scrape", final.Stage)
	assert.Equal(t, 3, final.Done)
	assert.Equal(t, 1, final.Failed)

	snaps := sink.Snapshots()
	assert.True(t, snaps[len(snaps)-1].Final)
}

func TestReporterConcurrentAdds(t *testing.T) {
	t.Parallel()

	r := NewReporter(Config{Interval: time.Hour})
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				r.Add(1, 0)
			}
		}()
	}
	wg.Wait()
	r.SetTotal(5000)

	snap, err := r.Close(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5000, snap.Done)
	assert.InDelta(t, 100.0, snap.Percent(), 1e-9)
}

func TestReporterCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	sink := &stubSink{err: errors.New("sink down")}
	r := NewReporter(Config{Interval: time.Hour}, sink, nil)
	_, err := r.Close(context.Background())
	require.NoError(t, err)
	_, err = r.Close(context.Background())
	require.NoError(t, err)
	assert.Len(t, sink.Snapshots(), 2)
}

func TestNilReporterIsSafe(t *testing.T) {
	t.Parallel()

	var r *Reporter
	r.Add(1, 1)
	r.SetTotal(3)
	assert.Equal(t, Snapshot{}, r.Snapshot())
	_, err := r.Close(context.Background())
	require.NoError(t, err)
}

func TestSnapshotMath(t *testing.T) {
	t.Parallel()

	s := Snapshot{Total: 0, Done: 5, Failed: 5, Elapsed: 2 * time.Second}
	assert.Zero(t, s.Percent())
	assert.InDelta(t, 5.0, s.Rate(), 1e-9)
	assert.Zero(t, Snapshot{}.Rate())

	s.Total = 40
	assert.InDelta(t, 25.0, s.Percent(), 1e-9)
}
