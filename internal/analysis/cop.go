package analysis

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/softbio/fallcapture/internal/types"
)

// CenterOfPressure returns the pressure-weighted centroid of grid in
// grid-center-relative cell units on the y=0 plane. An all-zero grid yields
// the geometric center (the origin).
func CenterOfPressure(grid [][]float64) types.Point3D {
	rows := len(grid)
	if rows == 0 {
		return types.Point3D{}
	}
	cols := len(grid[0])

	xs := make([]float64, 0, rows*cols)
	zs := make([]float64, 0, rows*cols)
	weights := make([]float64, 0, rows*cols)
	for r, row := range grid {
		for c, v := range row {
			xs = append(xs, float64(c))
			zs = append(zs, float64(r))
			weights = append(weights, v)
		}
	}

	if floats.Sum(weights) <= 0 {
		return types.Point3D{}
	}

	return types.Point3D{
		X: stat.Mean(xs, weights) - centerOffset(cols),
		Z: stat.Mean(zs, weights) - centerOffset(rows),
	}
}

// cellPosition maps a grid cell to grid-center-relative coordinates
func cellPosition(r, c, rows, cols int) types.Point3D {
	return types.Point3D{
		X: float64(c) - centerOffset(cols),
		Z: float64(r) - centerOffset(rows),
	}
}

func centerOffset(n int) float64 {
	return float64(n-1) / 2
}
