package recordformat

import (
	"testing"
	"time"

	"github.com/softbio/fallcapture/internal/types"
)

func sampleRecord() *types.CaptureRecord {
	base := time.Date(2026, 3, 4, 10, 0, 0, 125_000_000, time.UTC)
	return &types.CaptureRecord{
		ID:                 "evt-1",
		CreatedAt:          base,
		FallDetected:       true,
		MaxFallProbability: 0.93,
		Frames: []types.Frame{
			{
				Grid:            [][]float64{{0, 0.25}, {0.5, 1}},
				Timestamp:       base.Add(-time.Second),
				FallProbability: 0.1,
				Balance:         &types.BalanceSummary{SwayPathCm: 12.5, SwayVelocityCmS: 1.1, SwayAreaCm2: 3},
			},
			{
				Grid:            [][]float64{{0.9, 0}, {0, 0.8}},
				Timestamp:       base,
				FallProbability: 0.93,
				FallDetected:    true,
				Gait:            &types.GaitSummary{CadenceSpm: 96, StepTimeS: 0.62, DoubleSupportPct: 24},
			},
		},
		Analysis: &types.Analysis{
			Type: types.FallTypeSlip,
			BodyImpactSequence: []types.BodyImpact{
				{Part: "head", Position: types.Point3D{X: -0.5, Z: -0.5}},
			},
			Trajectory: types.Trajectory{
				Direction:    types.DirectionBackward,
				Start:        types.Point3D{X: 0.1, Z: 0.2},
				End:          types.Point3D{X: -0.4, Z: -0.5},
				ImpactPoints: []types.Point3D{{X: -0.5, Z: -0.5}, {X: 0.5, Z: 0.5}},
				Velocity:     1.2,
			},
			BalanceMetrics:   types.BalanceMetrics{PreFailStability: 0.35, AsymmetryIndex: 0.15},
			FallIndex:        1,
			MetricsEstimator: "placeholder",
		},
		Simulated: true,
	}
}

func TestRoundTrip(t *testing.T) {
	for _, f := range []Format{MsgPack, JSON} {
		t.Run(string(f), func(t *testing.T) {
			want := sampleRecord()
			data, err := Encode(f, want)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(f, data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			if got.ID != want.ID || !got.CreatedAt.Equal(want.CreatedAt) {
				t.Errorf("identity = %s@%v, want %s@%v", got.ID, got.CreatedAt, want.ID, want.CreatedAt)
			}
			if got.FallDetected != want.FallDetected || got.MaxFallProbability != want.MaxFallProbability || got.Simulated != want.Simulated {
				t.Errorf("flags = %+v", got)
			}

			if len(got.Frames) != len(want.Frames) {
				t.Fatalf("got %d frames, want %d", len(got.Frames), len(want.Frames))
			}
			for i := range want.Frames {
				g, w := got.Frames[i], want.Frames[i]
				if !g.Timestamp.Equal(w.Timestamp) {
					t.Errorf("frame %d timestamp = %v, want %v", i, g.Timestamp, w.Timestamp)
				}
				if g.FallProbability != w.FallProbability || g.FallDetected != w.FallDetected {
					t.Errorf("frame %d probability/flag mismatch", i)
				}
				for r := range w.Grid {
					for c := range w.Grid[r] {
						if g.Grid[r][c] != w.Grid[r][c] {
							t.Errorf("frame %d cell (%d,%d) = %v, want %v", i, r, c, g.Grid[r][c], w.Grid[r][c])
						}
					}
				}
			}
			if got.Frames[0].Balance == nil || *got.Frames[0].Balance != *want.Frames[0].Balance {
				t.Errorf("balance summary = %+v", got.Frames[0].Balance)
			}
			if got.Frames[1].Gait == nil || *got.Frames[1].Gait != *want.Frames[1].Gait {
				t.Errorf("gait summary = %+v", got.Frames[1].Gait)
			}

			ga, wa := got.Analysis, want.Analysis
			if ga == nil {
				t.Fatal("analysis lost")
			}
			if ga.Type != wa.Type || ga.FallIndex != wa.FallIndex || ga.MetricsEstimator != wa.MetricsEstimator {
				t.Errorf("analysis header = %+v", ga)
			}
			if ga.BalanceMetrics != wa.BalanceMetrics {
				t.Errorf("balance metrics = %+v", ga.BalanceMetrics)
			}
			if len(ga.BodyImpactSequence) != 1 || ga.BodyImpactSequence[0] != wa.BodyImpactSequence[0] {
				t.Errorf("body impacts = %+v", ga.BodyImpactSequence)
			}
			tr := ga.Trajectory
			if tr.Direction != wa.Trajectory.Direction || tr.Start != wa.Trajectory.Start || tr.End != wa.Trajectory.End || tr.Velocity != wa.Trajectory.Velocity {
				t.Errorf("trajectory = %+v", tr)
			}
			if len(tr.ImpactPoints) != 2 || tr.ImpactPoints[1] != wa.Trajectory.ImpactPoints[1] {
				t.Errorf("impact points = %+v", tr.ImpactPoints)
			}
		})
	}
}

func TestUnknownFormat(t *testing.T) {
	if _, err := Encode("xml", sampleRecord()); err == nil {
		t.Error("Encode accepted an unknown format")
	}
	if _, err := Decode("xml", nil); err == nil {
		t.Error("Decode accepted an unknown format")
	}
}
