package database

import (
	"time"

	"github.com/softbio/fallcapture/internal/types"
)

// FallEvent is one sealed capture record in the fall_events table. The
// summary columns are queryable; Payload holds the full msgpack record.
// created_at is part of the key because hypertable unique indexes must
// include the partitioning column.
type FallEvent struct {
	RecordID           string    `gorm:"primaryKey;column:record_id"`
	CreatedAt          time.Time `gorm:"primaryKey;column:created_at;not null"`
	FrameCount         int       `gorm:"column:frame_count;not null"`
	FallType           string    `gorm:"column:fall_type;not null"`
	Direction          string    `gorm:"column:direction"`
	MaxFallProbability float64   `gorm:"column:max_fall_probability"`
	Velocity           float64   `gorm:"column:velocity"`
	PreFailStability   float64   `gorm:"column:pre_fail_stability"`
	AsymmetryIndex     float64   `gorm:"column:asymmetry_index"`
	ImpactCount        int       `gorm:"column:impact_count"`
	Simulated          bool      `gorm:"column:simulated;default:false"`
	Payload            []byte    `gorm:"column:payload"`
}

// TableName overrides the gorm default table name
func (FallEvent) TableName() string {
	return "fall_events"
}

// NewFallEvent flattens rec into a row
func NewFallEvent(rec *types.CaptureRecord, payload []byte) FallEvent {
	sum := rec.Summarize()
	ev := FallEvent{
		RecordID:           sum.ID,
		CreatedAt:          sum.CreatedAt,
		FrameCount:         sum.FrameCount,
		FallType:           string(sum.Type),
		Direction:          string(sum.Direction),
		MaxFallProbability: sum.MaxFallProbability,
		Simulated:          sum.Simulated,
		Payload:            payload,
	}
	if a := rec.Analysis; a != nil {
		ev.Velocity = a.Trajectory.Velocity
		ev.PreFailStability = a.BalanceMetrics.PreFailStability
		ev.AsymmetryIndex = a.BalanceMetrics.AsymmetryIndex
		ev.ImpactCount = len(a.Trajectory.ImpactPoints)
	}
	return ev
}
