package config

import "time"

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetEngineConfig() (*EngineData, error)
	GetStorageConfig() (*StorageData, error)
	GetControllers() ([]ControllerData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Engine      EngineData       `json:"engine"`
	Analysis    AnalysisData     `json:"analysis"`
	Ingest      IngestData       `json:"ingest,omitempty"`
	Storage     StorageData      `json:"storage,omitempty"`
	Controllers []ControllerData `json:"controllers,omitempty"`
}

// EngineData holds the capture and playback tunables for one deployment
type EngineData struct {
	GridRows            int           `json:"grid_rows"`
	GridCols            int           `json:"grid_cols"`
	BufferCapacity      int           `json:"buffer_capacity"`
	PostCaptureDuration time.Duration `json:"post_capture_duration"`
	BaseFrameRate       float64       `json:"base_frame_rate"`
	TriggerProbability  float64       `json:"trigger_probability"`
	SweepInterval       time.Duration `json:"sweep_interval"`
}

// AnalysisData holds the fall analyzer tunables
type AnalysisData struct {
	ImpactThreshold            float64 `json:"impact_threshold"`
	PreWindow                  int     `json:"pre_window"`
	PostWindow                 int     `json:"post_window"`
	MetricsEstimator           string  `json:"metrics_estimator,omitempty"`
	StabilityVelocityThreshold float64 `json:"stability_velocity_threshold,omitempty"`
}

// IngestData holds the configuration for frame sources
type IngestData struct {
	MQTT *MQTTData `json:"mqtt,omitempty"`
}

// MQTTData configures the MQTT frame consumer
type MQTTData struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Topic    string `json:"topic"`
	QoS      byte   `json:"qos,omitempty"`
}

// StorageData holds the configuration for the sealed-record storage backends
type StorageData struct {
	SQLite         *SQLiteData      `json:"sqlite,omitempty"`
	TimescaleDB    *TimescaleDBData `json:"timescaledb,omitempty"`
	Redis          *RedisData       `json:"redis,omitempty"`
	RestoreOnStart bool             `json:"restore_on_start,omitempty"`
}

// ControllerData holds the configuration for various controller backends
type ControllerData struct {
	Type       string          `json:"type,omitempty"`
	RESTServer *RESTServerData `json:"rest,omitempty"`
}

// Storage backend configuration structs
type SQLiteData struct {
	Path string `json:"path"`
}

type TimescaleDBData struct {
	ConnectionString string `json:"connection_string"`
}

type RedisData struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Stream   string `json:"stream,omitempty"`
}

// Controller configuration structs
type RESTServerData struct {
	Cert       string `json:"cert,omitempty"`
	Key        string `json:"key,omitempty"`
	Port       int    `json:"port,omitempty"`
	ListenAddr string `json:"listen_addr,omitempty"`
	EnableCORS bool   `json:"enable_cors,omitempty"`
}
