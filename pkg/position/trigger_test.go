package position

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"cicerone/pkg/model"
)

func sample(lat, lng float64) model.PositionSample {
	return model.PositionSample{Lat: lat, Lng: lng, Timestamp: time.Now()}
}

func TestHandlePositionStateGating(t *testing.T) {
	var fetches int32
	tr := NewTrigger(TriggerConfig{},
		func(string) bool { return false },
		func(context.Context, string, model.PositionSample, uint64) {
			atomic.AddInt32(&fetches, 1)
		})

	assert.False(t, tr.HandlePosition(context.Background(), "t1", sample(10, 20)))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&fetches))
}

func TestHandlePositionAtMostOneInFlight(t *testing.T) {
	release := make(chan struct{})
	var fetches int32
	tr := NewTrigger(TriggerConfig{},
		func(string) bool { return true },
		func(context.Context, string, model.PositionSample, uint64) {
			atomic.AddInt32(&fetches, 1)
			<-release
		})

	assert.True(t, tr.HandlePosition(context.Background(), "t1", sample(10, 20)))
	// Far enough to pass movement gating, but the first fetch is still out
	assert.False(t, tr.HandlePosition(context.Background(), "t1", sample(11, 21)))

	close(release)
	assert.Eventually(t, func() bool {
		return tr.HandlePosition(context.Background(), "t1", sample(12, 22))
	}, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&fetches) == 2 }, time.Second, 10*time.Millisecond)
}

func TestHandlePositionMovementGating(t *testing.T) {
	done := make(chan uint64, 4)
	tr := NewTrigger(TriggerConfig{MinMoveMeters: 25, CellResolution: 10},
		func(string) bool { return true },
		func(_ context.Context, _ string, _ model.PositionSample, seq uint64) {
			done <- seq
		})

	assert.True(t, tr.HandlePosition(context.Background(), "t1", sample(52.52000, 13.40500)))
	<-done

	// A couple of meters away: same cell, below threshold
	assert.False(t, tr.HandlePosition(context.Background(), "t1", sample(52.52001, 13.40501)))

	// A few hundred meters away passes
	assert.Eventually(t, func() bool {
		return tr.HandlePosition(context.Background(), "t1", sample(52.52500, 13.41000))
	}, time.Second, 10*time.Millisecond)
	<-done
}

func TestAdvanceIgnoresMovementGate(t *testing.T) {
	done := make(chan uint64, 4)
	canFetch := atomic.Bool{}
	canFetch.Store(true)
	tr := NewTrigger(TriggerConfig{MinMoveMeters: 25, CellResolution: 10},
		func(string) bool { return canFetch.Load() },
		func(_ context.Context, _ string, _ model.PositionSample, seq uint64) {
			done <- seq
		})

	assert.True(t, tr.HandlePosition(context.Background(), "t1", sample(52.52000, 13.40500)))
	<-done

	// A stationary GPS update is dropped, an explicit advance is not
	assert.False(t, tr.HandlePosition(context.Background(), "t1", sample(52.52000, 13.40500)))
	assert.Eventually(t, func() bool {
		return tr.Advance(context.Background(), "t1", sample(52.52000, 13.40500))
	}, time.Second, 10*time.Millisecond)
	<-done

	// The state gate still applies to advances
	canFetch.Store(false)
	assert.False(t, tr.Advance(context.Background(), "t1", sample(52.52000, 13.40500)))
}

func TestAdvanceRespectsInFlightGuard(t *testing.T) {
	release := make(chan struct{})
	tr := NewTrigger(TriggerConfig{},
		func(string) bool { return true },
		func(context.Context, string, model.PositionSample, uint64) { <-release })
	defer close(release)

	assert.True(t, tr.Advance(context.Background(), "t1", sample(10, 20)))
	assert.False(t, tr.Advance(context.Background(), "t1", sample(10, 20)))
}

func TestHandlePositionToursIndependent(t *testing.T) {
	release := make(chan struct{})
	tr := NewTrigger(TriggerConfig{},
		func(string) bool { return true },
		func(context.Context, string, model.PositionSample, uint64) { <-release })
	defer close(release)

	assert.True(t, tr.HandlePosition(context.Background(), "t1", sample(10, 20)))
	assert.True(t, tr.HandlePosition(context.Background(), "t2", sample(10, 20)))
}

func TestCommitStaleAfterReset(t *testing.T) {
	seqs := make(chan uint64, 1)
	tr := NewTrigger(TriggerConfig{},
		func(string) bool { return true },
		func(_ context.Context, _ string, _ model.PositionSample, seq uint64) {
			seqs <- seq
		})

	assert.True(t, tr.HandlePosition(context.Background(), "t1", sample(10, 20)))
	seq := <-seqs

	assert.True(t, tr.Commit("t1", seq))

	tr.Reset("t1")
	assert.False(t, tr.Commit("t1", seq), "reset must invalidate outstanding seqs")

	// The same spot triggers again after a reset
	assert.Eventually(t, func() bool {
		return tr.HandlePosition(context.Background(), "t1", sample(10, 20))
	}, time.Second, 10*time.Millisecond)
	newSeq := <-seqs
	assert.True(t, tr.Commit("t1", newSeq))
}

func TestFeed(t *testing.T) {
	f := NewFeed()

	_, ok := f.Latest()
	assert.False(t, ok)

	ch, cancel := f.Subscribe()
	defer cancel()

	f.Publish(sample(10, 20))

	select {
	case s := <-ch:
		assert.Equal(t, 10.0, s.Lat)
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the sample")
	}

	latest, ok := f.Latest()
	assert.True(t, ok)
	assert.Equal(t, 20.0, latest.Lng)
}

func TestFeedUnsubscribe(t *testing.T) {
	f := NewFeed()
	ch, cancel := f.Subscribe()
	cancel()
	cancel() // double cancel is safe

	_, open := <-ch
	assert.False(t, open)

	f.Publish(sample(1, 2)) // must not panic on closed channel
}

type flakySource struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (f *flakySource) Current(context.Context) (model.PositionSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return model.PositionSample{}, err
		}
	}
	return sample(10, 20), nil
}

func TestAcquirerRetries(t *testing.T) {
	src := &flakySource{errs: []error{ErrNoPosition, ErrNoPosition, nil}}
	a := NewAcquirer(src, 3, time.Millisecond)

	s, err := a.Acquire(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 10.0, s.Lat)
	assert.Equal(t, 3, src.calls)
}

func TestAcquirerExhaustsRetries(t *testing.T) {
	src := &flakySource{errs: []error{ErrNoPosition, ErrNoPosition, ErrNoPosition}}
	a := NewAcquirer(src, 3, time.Millisecond)

	_, err := a.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrNoPosition)
	assert.Equal(t, 3, src.calls)
}

func TestAcquirerPermissionDeniedTerminal(t *testing.T) {
	src := &flakySource{errs: []error{ErrPermissionDenied}}
	a := NewAcquirer(src, 3, time.Millisecond)

	_, err := a.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, 1, src.calls, "permission denial must not retry")
}
