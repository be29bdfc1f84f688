package position

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cicerone/pkg/model"
)

// ErrPermissionDenied means the position source refused access. It is
// terminal for an acquisition attempt and never retried.
var ErrPermissionDenied = errors.New("position: permission denied")

// ErrNoPosition means no sample is available yet.
var ErrNoPosition = errors.New("position: no sample available")

// Source produces one-shot position readings.
type Source interface {
	Current(ctx context.Context) (model.PositionSample, error)
}

// Acquirer wraps a Source with bounded retries.
type Acquirer struct {
	source     Source
	retries    int
	retryDelay time.Duration
}

// NewAcquirer creates an acquirer. retries is the total number of attempts.
func NewAcquirer(source Source, retries int, retryDelay time.Duration) *Acquirer {
	if retries <= 0 {
		retries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &Acquirer{source: source, retries: retries, retryDelay: retryDelay}
}

// Acquire attempts to read a position, retrying transient failures.
// A permission denial aborts immediately.
func (a *Acquirer) Acquire(ctx context.Context) (model.PositionSample, error) {
	var lastErr error
	for attempt := 1; attempt <= a.retries; attempt++ {
		s, err := a.source.Current(ctx)
		if err == nil {
			return s, nil
		}
		if errors.Is(err, ErrPermissionDenied) {
			return model.PositionSample{}, err
		}
		lastErr = err
		slog.Debug("Position: acquisition failed", "attempt", attempt, "error", err)

		if attempt == a.retries {
			break
		}
		select {
		case <-time.After(a.retryDelay):
		case <-ctx.Done():
			return model.PositionSample{}, ctx.Err()
		}
	}
	return model.PositionSample{}, lastErr
}

// FeedSource adapts a Feed's latest sample as a one-shot Source.
type FeedSource struct {
	Feed *Feed
}

func (f FeedSource) Current(_ context.Context) (model.PositionSample, error) {
	s, ok := f.Feed.Latest()
	if !ok {
		return model.PositionSample{}, ErrNoPosition
	}
	return s, nil
}
