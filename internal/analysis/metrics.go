package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/softbio/fallcapture/internal/types"
)

// Placeholder scalars reported by PlaceholderEstimator. They are not derived
// from the captured data.
const (
	PlaceholderVelocity  = 1.2
	PlaceholderStability = 0.35
	PlaceholderAsymmetry = 0.15
)

// Window is the slice of a capture the estimators look at
type Window struct {
	Pre  []types.Frame
	Post []types.Frame
}

// MetricsEstimator computes the fall velocity and pre-fall balance metrics.
// Implementations must be pure.
type MetricsEstimator interface {
	Name() string
	Estimate(w Window) (velocity float64, balance types.BalanceMetrics)
}

// PlaceholderEstimator returns fixed values regardless of input
type PlaceholderEstimator struct{}

// Name identifies the estimator in the analysis
func (PlaceholderEstimator) Name() string { return "placeholder" }

// Estimate returns the placeholder scalars
func (PlaceholderEstimator) Estimate(Window) (float64, types.BalanceMetrics) {
	return PlaceholderVelocity, types.BalanceMetrics{
		PreFailStability: PlaceholderStability,
		AsymmetryIndex:   PlaceholderAsymmetry,
	}
}

// SwayEstimator derives metrics from center-of-pressure sway and left/right
// load split. Velocity is CoP path length per second over the post window;
// stability falls linearly to zero as pre-window sway velocity reaches
// VelocityThreshold; asymmetry is the mean |left-right| load share.
type SwayEstimator struct {
	VelocityThreshold float64
}

// Name identifies the estimator in the analysis
func (SwayEstimator) Name() string { return "sway" }

// Estimate computes sway-based metrics
func (s SwayEstimator) Estimate(w Window) (float64, types.BalanceMetrics) {
	velocity := swayVelocity(w.Post)

	stability := 1.0
	if s.VelocityThreshold > 0 {
		stability = 1 - swayVelocity(w.Pre)/s.VelocityThreshold
		stability = math.Max(0, math.Min(1, stability))
	}

	return velocity, types.BalanceMetrics{
		PreFailStability: stability,
		AsymmetryIndex:   loadAsymmetry(w.Pre),
	}
}

// swayVelocity is the CoP path length divided by the elapsed seconds
func swayVelocity(frames []types.Frame) float64 {
	if len(frames) < 2 {
		return 0
	}

	var path float64
	prev := CenterOfPressure(frames[0].Grid)
	for _, f := range frames[1:] {
		cur := CenterOfPressure(f.Grid)
		path += floats.Distance([]float64{prev.X, prev.Z}, []float64{cur.X, cur.Z}, 2)
		prev = cur
	}

	span := frames[len(frames)-1].Timestamp.Sub(frames[0].Timestamp).Seconds()
	if span <= 0 {
		return 0
	}
	return path / span
}

// loadAsymmetry averages |left-right| / total pressure over frames with load
func loadAsymmetry(frames []types.Frame) float64 {
	var shares []float64
	for _, f := range frames {
		var left, right float64
		for _, row := range f.Grid {
			half := len(row) / 2
			left += floats.Sum(row[:half])
			right += floats.Sum(row[half:])
		}
		total := left + right
		if total <= 0 {
			continue
		}
		shares = append(shares, math.Abs(left-right)/total)
	}
	if len(shares) == 0 {
		return 0
	}
	return stat.Mean(shares, nil)
}
