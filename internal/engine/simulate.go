package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/softbio/fallcapture/internal/types"
)

// Simulation errors
var (
	ErrUnknownDirection = errors.New("unknown fall direction")
	ErrGridTooSmall     = errors.New("grid too small to simulate a fall")
)

const (
	simStandingPressure = 0.4
	simImpactPressure   = 0.9
	simQuietProbability = 0.05
	simPeakProbability  = 0.95
	simTailProbability  = 0.6
	minSimulatedGrid    = 3
)

// SimulateEvent synthesizes, analyzes and archives a fall toward d without
// touching the live ring buffer or capture window
func (e *Engine) SimulateEvent(d types.Direction) (*types.CaptureRecord, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDirection, d)
	}
	rows, cols := e.cfg.GridRows, e.cfg.GridCols
	if rows < minSimulatedGrid || cols < minSimulatedGrid {
		return nil, fmt.Errorf("%w: %dx%d", ErrGridTooSmall, rows, cols)
	}

	quiet := 2 * e.cfg.Analysis.PreWindow
	if quiet < 1 {
		quiet = 1
	}
	fall := 2 * e.cfg.Analysis.PostWindow
	if fall < 1 {
		fall = 1
	}

	rate := e.cfg.BaseFrameRate
	if rate <= 0 {
		rate = 1
	}
	step := time.Duration(float64(time.Second) / rate)
	now := e.clock.Now()
	start := now.Add(-step * time.Duration(quiet+fall))

	rec := &types.CaptureRecord{
		ID:           e.newID(),
		CreatedAt:    now,
		FallDetected: true,
		Simulated:    true,
		Frames:       make([]types.Frame, 0, quiet+fall),
	}

	standing := standingGrid(rows, cols)
	impact := impactGrid(rows, cols, d)
	for i := 0; i < quiet+fall; i++ {
		f := types.Frame{Timestamp: start.Add(step * time.Duration(i))}
		switch {
		case i < quiet:
			f.Grid = copyGrid(standing)
			f.FallProbability = simQuietProbability
		case i == quiet:
			f.Grid = copyGrid(impact)
			f.FallProbability = simPeakProbability
			f.FallDetected = true
		default:
			f.Grid = copyGrid(impact)
			f.FallProbability = simTailProbability
		}
		if f.FallProbability > rec.MaxFallProbability {
			rec.MaxFallProbability = f.FallProbability
		}
		rec.Frames = append(rec.Frames, f)
	}

	a, err := e.analyzer.Analyze(rec)
	if err != nil || a == nil {
		e.logger.Errorw("simulated record analysis failed", "id", rec.ID, "error", err)
		a = types.EmptyAnalysis()
	}
	rec.Analysis = a

	e.logger.Infow("simulated fall archived", "id", rec.ID, "direction", d, "type", a.Type)
	e.archiveRecord(rec)
	return rec, nil
}

// center returns the one or two indices straddling the middle of n cells
func center(n int) (lo, hi int) {
	return (n - 1) / 2, n / 2
}

func standingGrid(rows, cols int) [][]float64 {
	g := emptyGrid(rows, cols)
	r0, r1 := center(rows)
	c0, c1 := center(cols)
	fill(g, r0, r1, c0, c1, simStandingPressure)
	return g
}

// impactGrid places the pressure blob against the grid edge in direction d.
// Rows grow forward and columns grow to the right.
func impactGrid(rows, cols int, d types.Direction) [][]float64 {
	g := emptyGrid(rows, cols)
	r0, r1 := center(rows)
	c0, c1 := center(cols)

	switch d {
	case types.DirectionForward:
		r0, r1 = rows-2, rows-1
	case types.DirectionBackward:
		r0, r1 = 0, 1
	case types.DirectionRight:
		c0, c1 = cols-2, cols-1
	case types.DirectionLeft:
		c0, c1 = 0, 1
	}
	fill(g, r0, r1, c0, c1, simImpactPressure)
	return g
}

func emptyGrid(rows, cols int) [][]float64 {
	g := make([][]float64, rows)
	for r := range g {
		g[r] = make([]float64, cols)
	}
	return g
}

func fill(g [][]float64, r0, r1, c0, c1 int, v float64) {
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			g[r][c] = v
		}
	}
}

func copyGrid(g [][]float64) [][]float64 {
	out := make([][]float64, len(g))
	for i, row := range g {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
