package analysis

import "github.com/softbio/fallcapture/internal/types"

// Body-part labels are assigned by position in the impact list. This is a
// heuristic label, not an anatomical measurement.
var bodyPartVocabulary = map[types.Direction][]string{
	types.DirectionForward:  {"face", "chest", "hands", "knees"},
	types.DirectionBackward: {"head", "upper-back", "hips", "elbows"},
	types.DirectionLeft:     {"left-shoulder", "left-hip", "left-arm", "left-knee"},
	types.DirectionRight:    {"right-shoulder", "right-hip", "right-arm", "right-knee"},
}

var fallTypeByDirection = map[types.Direction]types.FallType{
	types.DirectionForward:  types.FallTypeTrip,
	types.DirectionBackward: types.FallTypeSlip,
	types.DirectionLeft:     types.FallTypeSideway,
	types.DirectionRight:    types.FallTypeSideway,
}

// ClassifyFall maps a direction to a coarse fall type
func ClassifyFall(d types.Direction) types.FallType {
	if t, ok := fallTypeByDirection[d]; ok {
		return t
	}
	return types.FallTypeCollapse
}

// MapBodyParts labels impact points in order. Points past the end of the
// vocabulary are dropped. With no impact points the generic layout for the
// direction is labeled instead.
func MapBodyParts(d types.Direction, impacts []types.Point3D) []types.BodyImpact {
	vocab := bodyPartVocabulary[d]
	if len(impacts) == 0 {
		impacts = genericLayout(d, len(vocab))
	}

	out := make([]types.BodyImpact, 0, len(vocab))
	for i, p := range impacts {
		if i >= len(vocab) {
			break
		}
		out = append(out, types.BodyImpact{Part: vocab[i], Position: p})
	}
	return out
}

// genericLayout spaces n points along the fall direction, farthest first
func genericLayout(d types.Direction, n int) []types.Point3D {
	var ux, uz float64
	switch d {
	case types.DirectionForward:
		uz = 1
	case types.DirectionBackward:
		uz = -1
	case types.DirectionLeft:
		ux = -1
	case types.DirectionRight:
		ux = 1
	}

	points := make([]types.Point3D, n)
	for i := range points {
		dist := 0.75 * float64(n-i)
		points[i] = types.Point3D{X: ux * dist, Z: uz * dist}
	}
	return points
}
