package managers

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/softbio/fallcapture/internal/engine"
	"github.com/softbio/fallcapture/internal/types"
	"github.com/softbio/fallcapture/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRecord(id string) *types.CaptureRecord {
	ts := time.UnixMilli(1_700_000_000_000).UTC()
	return &types.CaptureRecord{
		ID:        id,
		CreatedAt: ts,
		Frames: []types.Frame{
			{Grid: [][]float64{{0, 0.2}, {0.9, 0}}, Timestamp: ts, FallProbability: 0.8},
		},
		FallDetected:       true,
		MaxFallProbability: 0.8,
		Analysis:           types.EmptyAnalysis(),
	}
}

func TestStorageManagerPersistsEnqueuedRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	sc := config.StorageData{
		SQLite: &config.SQLiteData{Path: filepath.Join(t.TempDir(), "events.db")},
	}
	sm, err := NewStorageManager(ctx, &wg, sc, nil)
	require.NoError(t, err)
	defer func() {
		cancel()
		wg.Wait()
		sm.Close()
	}()

	require.Len(t, sm.Engines, 1)
	assert.Equal(t, "sqlite", sm.Engines[0].Name)
	require.NotNil(t, sm.Loader())

	sm.Enqueue(testRecord("evt-1"))
	sm.Enqueue(testRecord("evt-2"))

	require.Eventually(t, func() bool {
		recs, err := sm.Loader().LoadAll(ctx)
		return err == nil && len(recs) == 2
	}, 5*time.Second, 20*time.Millisecond)

	recs, err := sm.Loader().LoadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "evt-1", recs[0].ID)
	assert.Equal(t, "evt-2", recs[1].ID)
}

func TestStorageManagerWithoutBackends(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	sm, err := NewStorageManager(ctx, &wg, config.StorageData{}, nil)
	require.NoError(t, err)

	assert.Empty(t, sm.Engines)
	assert.Nil(t, sm.Loader())
	for i := 0; i < 3*distributorBuffer; i++ {
		sm.Enqueue(testRecord("evt"))
	}

	cancel()
	wg.Wait()
}

func TestStorageManagerEnqueueNeverBlocks(t *testing.T) {
	sm := &StorageManager{
		RecordDistributor: make(chan *types.CaptureRecord, 1),
		logger:            zap.NewNop().Sugar(),
	}

	sm.Enqueue(testRecord("evt-1"))
	sm.Enqueue(testRecord("evt-2"))

	require.Len(t, sm.RecordDistributor, 1)
	assert.Equal(t, "evt-1", (<-sm.RecordDistributor).ID)
}

func TestAddEngineUnknown(t *testing.T) {
	sm := &StorageManager{logger: zap.NewNop().Sugar()}
	err := sm.AddEngine(context.Background(), &sync.WaitGroup{}, "influxdb", config.StorageData{})
	assert.Error(t, err)
}

func TestNewControllerManager(t *testing.T) {
	eng := engine.New(engine.DefaultConfig())

	tests := []struct {
		name    string
		cc      []config.ControllerData
		wantErr bool
	}{
		{"none", nil, false},
		{"rest", []config.ControllerData{{Type: "rest", RESTServer: &config.RESTServerData{Port: 18080}}}, false},
		{"rest without section", []config.ControllerData{{Type: "restserver"}}, false},
		{"unknown", []config.ControllerData{{Type: "aerisweather"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm, err := NewControllerManager(context.Background(), &sync.WaitGroup{}, tt.cc, eng, nil, nil, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, cm)
		})
	}
}

func TestIngestManager(t *testing.T) {
	eng := engine.New(engine.DefaultConfig())

	_, err := NewIngestManager(context.Background(), &sync.WaitGroup{}, config.IngestData{}, nil, nil)
	assert.Error(t, err)

	im, err := NewIngestManager(context.Background(), &sync.WaitGroup{}, config.IngestData{}, eng, nil)
	require.NoError(t, err)
	assert.Empty(t, im.sources)
	im.StartSources()
	assert.Empty(t, im.IngestStats())

	im, err = NewIngestManager(context.Background(), &sync.WaitGroup{}, config.IngestData{
		MQTT: &config.MQTTData{Broker: "tcp://127.0.0.1:1883", Topic: "sensors/floor/frames"},
	}, eng, nil)
	require.NoError(t, err)
	assert.Contains(t, im.sources, "mqtt")
	assert.Equal(t, map[string]types.IngestStats{"mqtt": {}}, im.IngestStats())
}
