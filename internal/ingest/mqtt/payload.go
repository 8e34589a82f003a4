package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/softbio/fallcapture/internal/types"
)

// Payload is the wire form of one frame on the ingest topic. Timestamp is
// milliseconds since the Unix epoch.
type Payload struct {
	Grid            [][]float64           `json:"grid"`
	Timestamp       int64                 `json:"timestamp"`
	FallProbability float64               `json:"fallProbability"`
	FallDetected    bool                  `json:"fallDetected,omitempty"`
	BalanceMetrics  *types.BalanceSummary `json:"balanceMetrics,omitempty"`
	GaitMetrics     *types.GaitSummary    `json:"gaitMetrics,omitempty"`
}

// DecodeFrame parses a JSON payload into a frame. Shape and range checks are
// left to the engine.
func DecodeFrame(data []byte) (types.Frame, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return types.Frame{}, fmt.Errorf("decoding frame payload: %w", err)
	}
	if p.Grid == nil {
		return types.Frame{}, fmt.Errorf("decoding frame payload: missing grid")
	}
	return types.Frame{
		Grid:            p.Grid,
		Timestamp:       time.UnixMilli(p.Timestamp),
		FallProbability: p.FallProbability,
		FallDetected:    p.FallDetected,
		Balance:         p.BalanceMetrics,
		Gait:            p.GaitMetrics,
	}, nil
}

// EncodeFrame is the inverse of DecodeFrame
func EncodeFrame(f types.Frame) ([]byte, error) {
	return json.Marshal(Payload{
		Grid:            f.Grid,
		Timestamp:       f.Timestamp.UnixMilli(),
		FallProbability: f.FallProbability,
		FallDetected:    f.FallDetected,
		BalanceMetrics:  f.Balance,
		GaitMetrics:     f.Gait,
	})
}
