package position

import (
	"context"
	"log/slog"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/uber/h3-go/v4"

	"cicerone/pkg/model"
)

// FetchFunc performs the actual record fetch. It runs on its own goroutine
// and must call Trigger.Commit with the given seq before applying the
// result, so results that a reset made stale get dropped.
type FetchFunc func(ctx context.Context, tourID string, sample model.PositionSample, seq uint64)

// TriggerConfig tunes the movement gating.
type TriggerConfig struct {
	// MinMoveMeters drops updates closer than this to the last fetch point.
	MinMoveMeters float64
	// CellResolution is the H3 resolution for same-cell deduplication.
	CellResolution int
}

type tourGate struct {
	inflight bool
	seq      uint64
	stale    uint64 // seqs at or below this are discarded on Commit
	hasLast  bool
	last     orb.Point
	lastCell h3.Cell
	hasCell  bool
}

// Trigger decides, per position update, whether to request the next
// narration record. It guarantees at most one in-flight fetch per tour and
// drops updates that have not moved far enough to matter.
type Trigger struct {
	cfg      TriggerConfig
	canFetch func(tourID string) bool
	fetch    FetchFunc

	mu    sync.Mutex
	gates map[string]*tourGate
}

// NewTrigger creates a trigger. canFetch consults the tour's state machine;
// fetch performs the record request.
func NewTrigger(cfg TriggerConfig, canFetch func(tourID string) bool, fetch FetchFunc) *Trigger {
	if cfg.MinMoveMeters <= 0 {
		cfg.MinMoveMeters = 25
	}
	if cfg.CellResolution <= 0 {
		cfg.CellResolution = 10
	}
	return &Trigger{
		cfg:      cfg,
		canFetch: canFetch,
		fetch:    fetch,
		gates:    make(map[string]*tourGate),
	}
}

// HandlePosition evaluates one position update for a tour. Returns true if
// a fetch was started.
func (t *Trigger) HandlePosition(ctx context.Context, tourID string, s model.PositionSample) bool {
	return t.handle(ctx, tourID, s, false)
}

// Advance starts a fetch regardless of how far the position moved. The
// state and in-flight gates still apply. Used for explicit user-driven
// advances, where a stationary listener asking for the next record must
// not be dropped.
func (t *Trigger) Advance(ctx context.Context, tourID string, s model.PositionSample) bool {
	return t.handle(ctx, tourID, s, true)
}

func (t *Trigger) handle(ctx context.Context, tourID string, s model.PositionSample, force bool) bool {
	if !t.canFetch(tourID) {
		return false
	}

	pt := orb.Point{s.Lng, s.Lat}
	cell, cellOK := cellFor(s, t.cfg.CellResolution)

	t.mu.Lock()
	g, ok := t.gates[tourID]
	if !ok {
		g = &tourGate{}
		t.gates[tourID] = g
	}

	if g.inflight {
		t.mu.Unlock()
		return false
	}

	if !force && g.hasLast {
		dist := geo.Distance(g.last, pt)
		if dist < t.cfg.MinMoveMeters {
			t.mu.Unlock()
			slog.Debug("Position: update below movement threshold", "tour", tourID, "distance_m", dist)
			return false
		}
		if cellOK && g.hasCell && g.lastCell == cell {
			t.mu.Unlock()
			slog.Debug("Position: update within the same cell", "tour", tourID, "cell", cell)
			return false
		}
	}

	g.inflight = true
	g.seq++
	seq := g.seq
	g.last = pt
	g.hasLast = true
	g.lastCell = cell
	g.hasCell = cellOK
	t.mu.Unlock()

	go func() {
		defer t.clearInflight(tourID)
		t.fetch(ctx, tourID, s, seq)
	}()
	return true
}

func (t *Trigger) clearInflight(tourID string) {
	t.mu.Lock()
	if g, ok := t.gates[tourID]; ok {
		g.inflight = false
	}
	t.mu.Unlock()
}

// Commit reports whether a fetch result with the given seq is still
// current. A reset in the meantime makes it stale.
func (t *Trigger) Commit(tourID string, seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.gates[tourID]
	if !ok {
		return false
	}
	return seq > g.stale
}

// Reset invalidates outstanding fetches for a tour and forgets its movement
// history, so the next update always triggers.
func (t *Trigger) Reset(tourID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if g, ok := t.gates[tourID]; ok {
		g.stale = g.seq
		g.hasLast = false
		g.hasCell = false
	}
}

func cellFor(s model.PositionSample, res int) (h3.Cell, bool) {
	cell, err := h3.LatLngToCell(h3.NewLatLng(s.Lat, s.Lng), res)
	if err != nil {
		return 0, false
	}
	return cell, true
}
