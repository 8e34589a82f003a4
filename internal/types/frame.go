// Package types holds the data model shared by capture, analysis, archive and playback.
package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Frame validation errors. Frames failing validation are rejected at the
// ingestion boundary and never reach the ring buffer or an open capture.
var (
	ErrGridShape         = errors.New("grid dimensions do not match deployment")
	ErrNegativeTimestamp = errors.New("timestamp precedes the epoch")
	ErrProbabilityRange  = errors.New("fall probability outside [0,1]")
	ErrNegativePressure  = errors.New("pressure reading is negative or not finite")
	ErrOutOfOrder        = errors.New("timestamp older than previous frame")
)

// Frame is one sampled instant of the floor pressure grid. Frames are
// immutable once accepted by the engine.
type Frame struct {
	Grid            [][]float64     `json:"grid"`
	Timestamp       time.Time       `json:"timestamp"`
	FallProbability float64         `json:"fallProbability"`
	FallDetected    bool            `json:"fallDetected,omitempty"`
	Balance         *BalanceSummary `json:"balanceMetrics,omitempty"`
	Gait            *GaitSummary    `json:"gaitMetrics,omitempty"`
}

// BalanceSummary is the live sway summary computed upstream by the analytics pipeline
type BalanceSummary struct {
	SwayPathCm      float64 `json:"swayPathCm"`
	SwayVelocityCmS float64 `json:"swayVelocityCmS"`
	SwayAreaCm2     float64 `json:"swayAreaCm2"`
}

// GaitSummary is the live gait summary computed upstream by the analytics pipeline
type GaitSummary struct {
	CadenceSpm       float64 `json:"cadenceSpm"`
	StepTimeS        float64 `json:"stepTimeS"`
	DoubleSupportPct float64 `json:"doubleSupportPct"`
}

// Rows returns the number of grid rows
func (f *Frame) Rows() int {
	return len(f.Grid)
}

// Cols returns the number of grid columns, taken from the first row
func (f *Frame) Cols() int {
	if len(f.Grid) == 0 {
		return 0
	}
	return len(f.Grid[0])
}

// Validate checks the frame against the deployment grid shape
func (f *Frame) Validate(rows, cols int) error {
	if len(f.Grid) != rows {
		return fmt.Errorf("%w: got %d rows, want %d", ErrGridShape, len(f.Grid), rows)
	}
	for r, row := range f.Grid {
		if len(row) != cols {
			return fmt.Errorf("%w: row %d has %d cols, want %d", ErrGridShape, r, len(row), cols)
		}
		for c, v := range row {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: cell (%d,%d) = %v", ErrNegativePressure, r, c, v)
			}
		}
	}
	if f.Timestamp.Before(time.Unix(0, 0)) {
		return fmt.Errorf("%w: %v", ErrNegativeTimestamp, f.Timestamp)
	}
	if math.IsNaN(f.FallProbability) || f.FallProbability < 0 || f.FallProbability > 1 {
		return fmt.Errorf("%w: %v", ErrProbabilityRange, f.FallProbability)
	}
	return nil
}

// Clone returns a deep copy of the frame so callers cannot mutate accepted data
func (f Frame) Clone() Frame {
	out := f
	out.Grid = make([][]float64, len(f.Grid))
	for i, row := range f.Grid {
		out.Grid[i] = append([]float64(nil), row...)
	}
	if f.Balance != nil {
		b := *f.Balance
		out.Balance = &b
	}
	if f.Gait != nil {
		g := *f.Gait
		out.Gait = &g
	}
	return out
}
