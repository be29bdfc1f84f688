// Package position handles position intake and decides when a position
// change warrants fetching new narration.
package position

import (
	"sync"

	"cicerone/pkg/model"
)

// Feed fans position samples out to subscribers and remembers the latest
// one. Samples come from the browser GPS bridge or manual placement; both
// go through the same pipe.
type Feed struct {
	mu     sync.RWMutex
	subs   map[int]chan model.PositionSample
	nextID int
	latest *model.PositionSample
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan model.PositionSample)}
}

// Publish delivers a sample to all subscribers. Slow subscribers miss
// samples instead of blocking the publisher.
func (f *Feed) Publish(s model.PositionSample) {
	f.mu.Lock()
	f.latest = &s
	for _, ch := range f.subs {
		select {
		case ch <- s:
		default:
		}
	}
	f.mu.Unlock()
}

// Subscribe registers a new subscriber. Call the returned cancel func to
// unsubscribe.
func (f *Feed) Subscribe() (<-chan model.PositionSample, func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	ch := make(chan model.PositionSample, 16)
	f.subs[id] = ch
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// Latest returns the most recent sample, if any.
func (f *Feed) Latest() (model.PositionSample, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.latest == nil {
		return model.PositionSample{}, false
	}
	return *f.latest, true
}
