package types

import "time"

// Direction is the inferred direction of a fall
type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
	DirectionLeft     Direction = "left"
	DirectionRight    Direction = "right"
)

// Directions lists every direction, in the order used by the simulator
var Directions = []Direction{DirectionForward, DirectionBackward, DirectionLeft, DirectionRight}

// Valid reports whether d is one of the four fall directions
func (d Direction) Valid() bool {
	switch d {
	case DirectionForward, DirectionBackward, DirectionLeft, DirectionRight:
		return true
	}
	return false
}

// FallType is the coarse classification of a fall
type FallType string

const (
	FallTypeTrip     FallType = "trip"
	FallTypeSlip     FallType = "slip"
	FallTypeSideway  FallType = "sideway-fall"
	FallTypeCollapse FallType = "collapse"
	FallTypeUnknown  FallType = "unknown"
)

// Point3D is a position in grid-relative units. The floor is the y=0 plane;
// x runs along grid columns and z along grid rows, both centered on the grid.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// BodyImpact labels an impact point with an approximate body part. The label
// is a positional heuristic, not an anatomical measurement.
type BodyImpact struct {
	Part     string  `json:"part"`
	Position Point3D `json:"position"`
}

// Trajectory describes the motion of the center of pressure through the fall
type Trajectory struct {
	Direction    Direction `json:"direction"`
	Start        Point3D   `json:"start"`
	End          Point3D   `json:"end"`
	ImpactPoints []Point3D `json:"impactPoints"`
	Velocity     float64   `json:"velocity"`
}

// BalanceMetrics summarizes balance just before the fall
type BalanceMetrics struct {
	PreFailStability float64 `json:"preFailStability"`
	AsymmetryIndex   float64 `json:"asymmetryIndex"`
}

// Analysis is derived once from a sealed CaptureRecord and never mutated.
// Re-analysis produces a new value.
type Analysis struct {
	Type               FallType       `json:"type"`
	BodyImpactSequence []BodyImpact   `json:"bodyImpactSequence"`
	Trajectory         Trajectory     `json:"trajectory"`
	BalanceMetrics     BalanceMetrics `json:"balanceMetrics"`
	FallIndex          int            `json:"fallIndex"`
	MetricsEstimator   string         `json:"metricsEstimator,omitempty"`
}

// EmptyAnalysis is attached to a record whose analysis failed
func EmptyAnalysis() *Analysis {
	return &Analysis{
		Type:               FallTypeUnknown,
		BodyImpactSequence: []BodyImpact{},
		Trajectory: Trajectory{
			ImpactPoints: []Point3D{},
		},
	}
}

// CaptureRecord is a frozen pre/post-event window. Once sealed it is owned by
// the archive and immutable; Frames is chronological with no gaps.
type CaptureRecord struct {
	ID                 string    `json:"id"`
	CreatedAt          time.Time `json:"createdAt"`
	Frames             []Frame   `json:"frames"`
	FallDetected       bool      `json:"fallDetected"`
	MaxFallProbability float64   `json:"maxFallProbability"`
	Analysis           *Analysis `json:"analysis,omitempty"`
	Simulated          bool      `json:"simulated,omitempty"`
}

// Summary is the frame-less view of a record used in listings
type Summary struct {
	ID                 string    `json:"id"`
	CreatedAt          time.Time `json:"createdAt"`
	FrameCount         int       `json:"frameCount"`
	FallDetected       bool      `json:"fallDetected"`
	MaxFallProbability float64   `json:"maxFallProbability"`
	Type               FallType  `json:"type"`
	Direction          Direction `json:"direction,omitempty"`
	Simulated          bool      `json:"simulated,omitempty"`
}

// Summarize returns the listing view of r
func (r *CaptureRecord) Summarize() Summary {
	s := Summary{
		ID:                 r.ID,
		CreatedAt:          r.CreatedAt,
		FrameCount:         len(r.Frames),
		FallDetected:       r.FallDetected,
		MaxFallProbability: r.MaxFallProbability,
		Type:               FallTypeUnknown,
		Simulated:          r.Simulated,
	}
	if r.Analysis != nil {
		s.Type = r.Analysis.Type
		s.Direction = r.Analysis.Trajectory.Direction
	}
	return s
}
