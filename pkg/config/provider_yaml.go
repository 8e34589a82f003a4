package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file. Defaults are
// applied to unset fields and the result is validated.
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	config, err := ParseYAML(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", y.filename, err)
	}

	y.config = config
	return config, nil
}

// ParseYAML converts a YAML document into a defaulted, validated ConfigData
func ParseYAML(data []byte) (*ConfigData, error) {
	// Load into temporary struct with YAML tags
	var yamlConfig struct {
		Engine      EngineYAML       `yaml:"engine,omitempty"`
		Analysis    AnalysisYAML     `yaml:"analysis,omitempty"`
		Ingest      IngestYAML       `yaml:"ingest,omitempty"`
		Storage     StorageYAML      `yaml:"storage,omitempty"`
		Controllers []ControllerYAML `yaml:"controllers,omitempty"`
	}

	if err := yaml.Unmarshal(data, &yamlConfig); err != nil {
		return nil, err
	}

	postCapture, err := parseDuration("engine.post-capture-duration", yamlConfig.Engine.PostCaptureDuration)
	if err != nil {
		return nil, err
	}
	sweep, err := parseDuration("engine.sweep-interval", yamlConfig.Engine.SweepInterval)
	if err != nil {
		return nil, err
	}

	// Convert to our internal format
	config := &ConfigData{
		Engine: EngineData{
			GridRows:            yamlConfig.Engine.GridRows,
			GridCols:            yamlConfig.Engine.GridCols,
			BufferCapacity:      yamlConfig.Engine.BufferCapacity,
			PostCaptureDuration: postCapture,
			BaseFrameRate:       yamlConfig.Engine.BaseFrameRate,
			TriggerProbability:  yamlConfig.Engine.TriggerProbability,
			SweepInterval:       sweep,
		},
		Analysis: AnalysisData{
			ImpactThreshold:            yamlConfig.Analysis.ImpactThreshold,
			PreWindow:                  yamlConfig.Analysis.PreWindow,
			PostWindow:                 yamlConfig.Analysis.PostWindow,
			MetricsEstimator:           yamlConfig.Analysis.MetricsEstimator,
			StabilityVelocityThreshold: yamlConfig.Analysis.StabilityVelocityThreshold,
		},
		Controllers: make([]ControllerData, len(yamlConfig.Controllers)),
	}

	// Convert ingest
	if m := yamlConfig.Ingest.MQTT; m != nil {
		config.Ingest.MQTT = &MQTTData{
			Broker:   m.Broker,
			ClientID: m.ClientID,
			Username: m.Username,
			Password: m.Password,
			Topic:    m.Topic,
			QoS:      m.QoS,
		}
	}

	// Convert storage
	config.Storage = StorageData{RestoreOnStart: yamlConfig.Storage.RestoreOnStart}
	if yamlConfig.Storage.SQLite != nil {
		config.Storage.SQLite = &SQLiteData{
			Path: yamlConfig.Storage.SQLite.Path,
		}
	}
	if yamlConfig.Storage.TimescaleDB != nil {
		config.Storage.TimescaleDB = &TimescaleDBData{
			ConnectionString: yamlConfig.Storage.TimescaleDB.ConnectionString,
		}
	}
	if yamlConfig.Storage.Redis != nil {
		config.Storage.Redis = &RedisData{
			Addr:     yamlConfig.Storage.Redis.Addr,
			Password: yamlConfig.Storage.Redis.Password,
			DB:       yamlConfig.Storage.Redis.DB,
			Stream:   yamlConfig.Storage.Redis.Stream,
		}
	}

	// Convert controllers
	for i, controller := range yamlConfig.Controllers {
		config.Controllers[i] = ControllerData{
			Type: controller.Type,
		}

		if controller.RESTServer != nil {
			config.Controllers[i].RESTServer = &RESTServerData{
				Cert:       controller.RESTServer.Cert,
				Key:        controller.RESTServer.Key,
				Port:       controller.RESTServer.Port,
				ListenAddr: controller.RESTServer.ListenAddr,
				EnableCORS: controller.RESTServer.EnableCORS,
			}
		}
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func parseDuration(key, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// GetEngineConfig returns engine configuration
func (y *YAMLProvider) GetEngineConfig() (*EngineData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.Engine, nil
}

// GetStorageConfig returns storage configuration
func (y *YAMLProvider) GetStorageConfig() (*StorageData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.Storage, nil
}

// GetControllers returns controller configurations
func (y *YAMLProvider) GetControllers() ([]ControllerData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return y.config.Controllers, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with proper YAML tags
type EngineYAML struct {
	GridRows            int     `yaml:"grid-rows,omitempty"`
	GridCols            int     `yaml:"grid-cols,omitempty"`
	BufferCapacity      int     `yaml:"buffer-capacity,omitempty"`
	PostCaptureDuration string  `yaml:"post-capture-duration,omitempty"`
	BaseFrameRate       float64 `yaml:"base-frame-rate,omitempty"`
	TriggerProbability  float64 `yaml:"trigger-probability,omitempty"`
	SweepInterval       string  `yaml:"sweep-interval,omitempty"`
}

type AnalysisYAML struct {
	ImpactThreshold            float64 `yaml:"impact-threshold,omitempty"`
	PreWindow                  int     `yaml:"pre-window,omitempty"`
	PostWindow                 int     `yaml:"post-window,omitempty"`
	MetricsEstimator           string  `yaml:"metrics-estimator,omitempty"`
	StabilityVelocityThreshold float64 `yaml:"stability-velocity-threshold,omitempty"`
}

type IngestYAML struct {
	MQTT *MQTTYAML `yaml:"mqtt,omitempty"`
}

type MQTTYAML struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client-id,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Topic    string `yaml:"topic,omitempty"`
	QoS      byte   `yaml:"qos,omitempty"`
}

type StorageYAML struct {
	SQLite         *SQLiteYAML      `yaml:"sqlite,omitempty"`
	TimescaleDB    *TimescaleDBYAML `yaml:"timescaledb,omitempty"`
	Redis          *RedisYAML       `yaml:"redis,omitempty"`
	RestoreOnStart bool             `yaml:"restore-on-start,omitempty"`
}

type SQLiteYAML struct {
	Path string `yaml:"path"`
}

type TimescaleDBYAML struct {
	ConnectionString string `yaml:"connection-string"`
}

type RedisYAML struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Stream   string `yaml:"stream,omitempty"`
}

type ControllerYAML struct {
	Type       string          `yaml:"type,omitempty"`
	RESTServer *RESTServerYAML `yaml:"rest,omitempty"`
}

type RESTServerYAML struct {
	Cert       string `yaml:"cert,omitempty"`
	Key        string `yaml:"key,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	ListenAddr string `yaml:"listen-addr,omitempty"`
	EnableCORS bool   `yaml:"enable-cors,omitempty"`
}
