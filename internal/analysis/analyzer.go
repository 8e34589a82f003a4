// Package analysis derives a biomechanical fall analysis from a sealed
// capture window: center-of-pressure trajectory, impact points, fall
// direction and type, and approximate body-part impacts. Everything here is
// a pure function of the input record.
package analysis

import (
	"errors"
	"fmt"
	"math"

	"github.com/softbio/fallcapture/internal/constants"
	"github.com/softbio/fallcapture/internal/types"
)

// Analysis errors
var (
	ErrNoFrames     = errors.New("capture record has no frames")
	ErrRaggedWindow = errors.New("capture frames have inconsistent grid dimensions")
)

// Config holds the analyzer tunables
type Config struct {
	ImpactThreshold float64
	PreWindow       int
	PostWindow      int
}

// DefaultConfig returns the stock analyzer tunables
func DefaultConfig() Config {
	return Config{
		ImpactThreshold: constants.DefaultImpactThreshold,
		PreWindow:       constants.DefaultPreWindow,
		PostWindow:      constants.DefaultPostWindow,
	}
}

// Analyzer implements capture.Analyzer
type Analyzer struct {
	cfg     Config
	metrics MetricsEstimator
}

// New creates an analyzer. A nil estimator selects PlaceholderEstimator.
func New(cfg Config, metrics MetricsEstimator) *Analyzer {
	if metrics == nil {
		metrics = PlaceholderEstimator{}
	}
	return &Analyzer{cfg: cfg, metrics: metrics}
}

// Analyze computes a fresh Analysis for rec. rec is not modified.
func (a *Analyzer) Analyze(rec *types.CaptureRecord) (*types.Analysis, error) {
	if rec == nil || len(rec.Frames) == 0 {
		return nil, ErrNoFrames
	}
	if err := checkShape(rec.Frames); err != nil {
		return nil, err
	}

	fallIndex := FallIndex(rec.Frames)
	pre, post := SplitWindow(rec.Frames, fallIndex, a.cfg.PreWindow, a.cfg.PostWindow)

	direction := InferDirection(pre, post)
	impacts := ImpactPoints(post, a.cfg.ImpactThreshold)
	velocity, balance := a.metrics.Estimate(Window{Pre: pre, Post: post})

	startFrame := rec.Frames[fallIndex]
	if len(pre) > 0 {
		startFrame = pre[0]
	}
	endFrame := rec.Frames[len(rec.Frames)-1]
	if len(post) > 0 {
		endFrame = post[len(post)-1]
	}

	return &types.Analysis{
		Type:               ClassifyFall(direction),
		BodyImpactSequence: MapBodyParts(direction, impacts),
		Trajectory: types.Trajectory{
			Direction:    direction,
			Start:        CenterOfPressure(startFrame.Grid),
			End:          CenterOfPressure(endFrame.Grid),
			ImpactPoints: impacts,
			Velocity:     velocity,
		},
		BalanceMetrics:   balance,
		FallIndex:        fallIndex,
		MetricsEstimator: a.metrics.Name(),
	}, nil
}

// FallIndex returns the index of the first frame with the highest fall probability
func FallIndex(frames []types.Frame) int {
	best := 0
	for i, f := range frames {
		if f.FallProbability > frames[best].FallProbability {
			best = i
		}
	}
	return best
}

// SplitWindow returns up to preN frames immediately before fallIndex and up
// to postN frames starting at fallIndex
func SplitWindow(frames []types.Frame, fallIndex, preN, postN int) (pre, post []types.Frame) {
	start := fallIndex - preN
	if start < 0 {
		start = 0
	}
	end := fallIndex + postN
	if end > len(frames) {
		end = len(frames)
	}
	return frames[start:fallIndex], frames[fallIndex:end]
}

// InferDirection compares the CoP of the first pre-fall frame with the first
// post-fall frame. The axis with the larger displacement decides; ties and
// empty windows resolve to forward.
func InferDirection(pre, post []types.Frame) types.Direction {
	if len(pre) == 0 || len(post) == 0 {
		return types.DirectionForward
	}

	from := CenterOfPressure(pre[0].Grid)
	to := CenterOfPressure(post[0].Grid)
	dx := to.X - from.X
	dz := to.Z - from.Z

	if math.Abs(dx) > math.Abs(dz) {
		if dx > 0 {
			return types.DirectionRight
		}
		return types.DirectionLeft
	}
	if dz < 0 {
		return types.DirectionBackward
	}
	return types.DirectionForward
}

// ImpactPoints takes the per-cell maximum over frames and returns, in
// row-major order, every cell above threshold
func ImpactPoints(frames []types.Frame, threshold float64) []types.Point3D {
	points := []types.Point3D{}
	if len(frames) == 0 {
		return points
	}

	rows, cols := frames[0].Rows(), frames[0].Cols()
	peak := make([][]float64, rows)
	for r := range peak {
		peak[r] = make([]float64, cols)
	}
	for _, f := range frames {
		for r, row := range f.Grid {
			for c, v := range row {
				if v > peak[r][c] {
					peak[r][c] = v
				}
			}
		}
	}

	for r, row := range peak {
		for c, v := range row {
			if v > threshold {
				points = append(points, cellPosition(r, c, rows, cols))
			}
		}
	}
	return points
}

func checkShape(frames []types.Frame) error {
	rows, cols := frames[0].Rows(), frames[0].Cols()
	for i, f := range frames {
		if f.Rows() != rows {
			return fmt.Errorf("%w: frame %d has %d rows, want %d", ErrRaggedWindow, i, f.Rows(), rows)
		}
		for _, row := range f.Grid {
			if len(row) != cols {
				return fmt.Errorf("%w: frame %d has a row of %d cols, want %d", ErrRaggedWindow, i, len(row), cols)
			}
		}
	}
	return nil
}
