package config

import (
	"fmt"

	"github.com/softbio/fallcapture/internal/constants"
)

// Supported metrics estimators
const (
	EstimatorPlaceholder = "placeholder"
	EstimatorSway        = "sway"
)

const (
	defaultRedisStream  = "fall-events"
	defaultMQTTTopic    = "sensors/floor/frames"
	defaultMQTTClientID = "fallcapture"
	defaultRESTPort     = 8080
	controllerTypeREST  = "rest"
)

// ApplyDefaults fills every unset tunable with its stock value
func (c *ConfigData) ApplyDefaults() {
	e := &c.Engine
	if e.GridRows == 0 {
		e.GridRows = constants.DefaultGridRows
	}
	if e.GridCols == 0 {
		e.GridCols = constants.DefaultGridCols
	}
	if e.BufferCapacity == 0 {
		e.BufferCapacity = constants.DefaultBufferCapacity
	}
	if e.PostCaptureDuration == 0 {
		e.PostCaptureDuration = constants.DefaultPostCaptureDuration
	}
	if e.BaseFrameRate == 0 {
		e.BaseFrameRate = constants.DefaultBaseFrameRate
	}
	if e.TriggerProbability == 0 {
		e.TriggerProbability = constants.DefaultTriggerProbability
	}
	if e.SweepInterval == 0 {
		e.SweepInterval = constants.DefaultSweepInterval
	}

	a := &c.Analysis
	if a.ImpactThreshold == 0 {
		a.ImpactThreshold = constants.DefaultImpactThreshold
	}
	if a.PreWindow == 0 {
		a.PreWindow = constants.DefaultPreWindow
	}
	if a.PostWindow == 0 {
		a.PostWindow = constants.DefaultPostWindow
	}
	if a.MetricsEstimator == "" {
		a.MetricsEstimator = EstimatorPlaceholder
	}
	if a.StabilityVelocityThreshold == 0 {
		a.StabilityVelocityThreshold = constants.DefaultStabilityVelocityThreshold
	}

	if m := c.Ingest.MQTT; m != nil {
		if m.Topic == "" {
			m.Topic = defaultMQTTTopic
		}
		if m.ClientID == "" {
			m.ClientID = defaultMQTTClientID
		}
	}

	if r := c.Storage.Redis; r != nil && r.Stream == "" {
		r.Stream = defaultRedisStream
	}

	for i := range c.Controllers {
		if rs := c.Controllers[i].RESTServer; rs != nil && rs.Port == 0 {
			rs.Port = defaultRESTPort
		}
	}
}

// Validate reports the first invalid setting
func (c *ConfigData) Validate() error {
	e := c.Engine
	if e.GridRows < 1 || e.GridCols < 1 {
		return fmt.Errorf("engine grid must be at least 1x1, got %dx%d", e.GridRows, e.GridCols)
	}
	if e.BufferCapacity < 1 {
		return fmt.Errorf("engine buffer-capacity must be positive, got %d", e.BufferCapacity)
	}
	if e.PostCaptureDuration <= 0 {
		return fmt.Errorf("engine post-capture-duration must be positive, got %v", e.PostCaptureDuration)
	}
	if e.BaseFrameRate <= 0 {
		return fmt.Errorf("engine base-frame-rate must be positive, got %v", e.BaseFrameRate)
	}
	if e.TriggerProbability <= 0 || e.TriggerProbability > 1 {
		return fmt.Errorf("engine trigger-probability must be in (0,1], got %v", e.TriggerProbability)
	}
	if e.SweepInterval <= 0 {
		return fmt.Errorf("engine sweep-interval must be positive, got %v", e.SweepInterval)
	}

	a := c.Analysis
	if a.ImpactThreshold < 0 {
		return fmt.Errorf("analysis impact-threshold must not be negative, got %v", a.ImpactThreshold)
	}
	if a.PreWindow < 1 || a.PostWindow < 1 {
		return fmt.Errorf("analysis windows must be positive, got pre=%d post=%d", a.PreWindow, a.PostWindow)
	}
	switch a.MetricsEstimator {
	case EstimatorPlaceholder, EstimatorSway:
	default:
		return fmt.Errorf("unknown metrics-estimator %q", a.MetricsEstimator)
	}

	if m := c.Ingest.MQTT; m != nil {
		if m.Broker == "" {
			return fmt.Errorf("ingest mqtt broker is required")
		}
		if m.QoS > 2 {
			return fmt.Errorf("ingest mqtt qos must be 0, 1 or 2, got %d", m.QoS)
		}
	}

	if s := c.Storage.SQLite; s != nil && s.Path == "" {
		return fmt.Errorf("storage sqlite path is required")
	}
	if ts := c.Storage.TimescaleDB; ts != nil && ts.ConnectionString == "" {
		return fmt.Errorf("storage timescaledb connection-string is required")
	}
	if r := c.Storage.Redis; r != nil && r.Addr == "" {
		return fmt.Errorf("storage redis addr is required")
	}
	if c.Storage.RestoreOnStart && c.Storage.SQLite == nil {
		return fmt.Errorf("storage restore-on-start requires the sqlite backend")
	}

	for i, ctl := range c.Controllers {
		if ctl.Type != controllerTypeREST {
			return fmt.Errorf("controller %d: unknown type %q", i, ctl.Type)
		}
		rs := ctl.RESTServer
		if rs == nil {
			return fmt.Errorf("controller %d: rest section is required", i)
		}
		if rs.Port < 1 || rs.Port > 65535 {
			return fmt.Errorf("controller %d: invalid port %d", i, rs.Port)
		}
		if (rs.Cert == "") != (rs.Key == "") {
			return fmt.Errorf("controller %d: cert and key must be set together", i)
		}
	}
	return nil
}
