package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the system-wide settings coordinator. Sections map one-to-one
// onto the components they configure.
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Cache     *CacheConfig     `json:"cache"`
	Metrics   *MetricsConfig   `json:"metrics"`
	Push      *PushConfig      `json:"push"`
}

// DatabaseConfig locates the activity-log SQLite database.
type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// HTTPConfig configures the admin and WebSocket HTTP server.
type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

// WebSocketConfig configures live client connections.
type WebSocketConfig struct {
	HeartbeatInterval     time.Duration `json:"heartbeat_interval"`
	HeartbeatTimeout      time.Duration `json:"heartbeat_timeout"`
	WriteTimeout          time.Duration `json:"write_timeout"`
	BufferSize            int           `json:"buffer_size"`
	MaxConnectionsPerUser int           `json:"max_connections_per_user"`
	SweepInterval         time.Duration `json:"sweep_interval"`
}

// CacheConfig configures the Redis snapshot cache.
type CacheConfig struct {
	Addr        string        `json:"addr"`
	Password    string        `json:"password"`
	DB          int           `json:"db"`
	KeyPrefix   string        `json:"key_prefix"`
	SnapshotTTL time.Duration `json:"snapshot_ttl"`
}

// MetricsConfig carries the metrics engine's windows and thresholds. The
// threshold values are empirically chosen defaults; they are configuration,
// not hard-coded behavior, and update_config may change them at runtime.
type MetricsConfig struct {
	SpeedWindow        time.Duration `json:"speed_window"`
	TrendMinSamples    int           `json:"trend_min_samples"`
	TrendDelta         float64       `json:"trend_delta"`
	AccuracyMaxSamples int           `json:"accuracy_max_samples"`
	RecentWindow       int           `json:"recent_window"`
	AccuracyTrendMin   int           `json:"accuracy_trend_min"`
	AccuracyDropDelta  float64       `json:"accuracy_drop_delta"`
	ConsecutiveMissMax int           `json:"consecutive_miss_max"`
	PaceAheadFactor    float64       `json:"pace_ahead_factor"`
	PaceBehindFactor   float64       `json:"pace_behind_factor"`
	EngagementWindow   time.Duration `json:"engagement_window"`
	HighRatePerMin     float64       `json:"high_rate_per_min"`
	MediumRatePerMin   float64       `json:"medium_rate_per_min"`
	ActiveWithin       time.Duration `json:"active_within"`
	DifficultyWindow   time.Duration `json:"difficulty_window"`
	DifficultySamples  int           `json:"difficulty_samples"`
	EasyAccuracy       float64       `json:"easy_accuracy"`
	EasyMaxTime        float64       `json:"easy_max_time"` // seconds
	HardAccuracy       float64       `json:"hard_accuracy"`
	HardMinTime        float64       `json:"hard_min_time"` // seconds
	BaselineLookback   int           `json:"baseline_lookback_days"`
	HistoryRetention   time.Duration `json:"history_retention"`
}

// PushConfig configures the per-session push loop.
type PushConfig struct {
	Interval time.Duration `json:"interval"`
}

// DefaultConfig returns production defaults. Threshold values come from the
// platform's tuning of the original monitoring pipeline.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./classpulse.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			HeartbeatInterval:     30 * time.Second,
			HeartbeatTimeout:      5 * time.Minute,
			WriteTimeout:          10 * time.Second,
			BufferSize:            100,
			MaxConnectionsPerUser: 5,
			SweepInterval:         time.Minute,
		},
		Cache: &CacheConfig{
			Addr:        "localhost:6379",
			KeyPrefix:   "classpulse:metrics:",
			SnapshotTTL: 5 * time.Minute,
		},
		Metrics: &MetricsConfig{
			SpeedWindow:        60 * time.Second,
			TrendMinSamples:    5,
			TrendDelta:         0.10,
			AccuracyMaxSamples: 20,
			RecentWindow:       10,
			AccuracyTrendMin:   20,
			AccuracyDropDelta:  0.15,
			ConsecutiveMissMax: 5,
			PaceAheadFactor:    1.10,
			PaceBehindFactor:   0.80,
			EngagementWindow:   10 * time.Minute,
			HighRatePerMin:     2.0,
			MediumRatePerMin:   1.0,
			ActiveWithin:       5 * time.Minute,
			DifficultyWindow:   time.Hour,
			DifficultySamples:  20,
			EasyAccuracy:       0.85,
			EasyMaxTime:        90,
			HardAccuracy:       0.60,
			HardMinTime:        180,
			BaselineLookback:   30,
			HistoryRetention:   30 * time.Minute,
		},
		Push: &PushConfig{
			Interval: time.Second,
		},
	}
}

// Validate checks configuration consistency before component initialization.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP timeouts must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.HeartbeatInterval <= 0 {
		return fmt.Errorf("WebSocket heartbeat interval must be positive")
	}
	if c.WebSocket.HeartbeatTimeout <= c.WebSocket.HeartbeatInterval {
		return fmt.Errorf("WebSocket heartbeat timeout must exceed the heartbeat interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxConnectionsPerUser <= 0 {
		return fmt.Errorf("WebSocket per-learner connection limit must be positive")
	}
	if c.WebSocket.SweepInterval <= 0 {
		return fmt.Errorf("WebSocket sweep interval must be positive")
	}

	if c.Cache == nil {
		return fmt.Errorf("cache configuration is required")
	}
	if c.Cache.Addr == "" {
		return fmt.Errorf("cache address cannot be empty")
	}
	if c.Cache.SnapshotTTL <= 0 {
		return fmt.Errorf("cache snapshot TTL must be positive")
	}

	if c.Metrics == nil {
		return fmt.Errorf("metrics configuration is required")
	}
	if c.Metrics.SpeedWindow <= 0 || c.Metrics.EngagementWindow <= 0 || c.Metrics.DifficultyWindow <= 0 {
		return fmt.Errorf("metrics windows must be positive")
	}
	if c.Metrics.TrendDelta <= 0 || c.Metrics.TrendDelta >= 1 {
		return fmt.Errorf("trend delta must be in (0,1)")
	}
	if c.Metrics.AccuracyDropDelta <= 0 || c.Metrics.AccuracyDropDelta >= 1 {
		return fmt.Errorf("accuracy drop delta must be in (0,1)")
	}
	if c.Metrics.ConsecutiveMissMax <= 0 {
		return fmt.Errorf("consecutive miss threshold must be positive")
	}
	if c.Metrics.PaceAheadFactor <= c.Metrics.PaceBehindFactor {
		return fmt.Errorf("pace ahead factor must exceed pace behind factor")
	}
	if c.Metrics.HistoryRetention <= 0 {
		return fmt.Errorf("history retention must be positive")
	}

	if c.Push == nil {
		return fmt.Errorf("push configuration is required")
	}
	if c.Push.Interval <= 0 {
		return fmt.Errorf("push interval must be positive")
	}

	return nil
}

// LoadFromEnv builds configuration from defaults overridden by PULSE_*
// environment variables. Unparseable values fall back silently.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("PULSE_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("PULSE_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if dbPath := os.Getenv("PULSE_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if dbTimeout := os.Getenv("PULSE_DATABASE_TIMEOUT"); dbTimeout != "" {
		if timeout, err := time.ParseDuration(dbTimeout); err == nil {
			config.Database.Timeout = timeout
		}
	}

	if addr := os.Getenv("PULSE_REDIS_ADDR"); addr != "" {
		config.Cache.Addr = addr
	}
	if password := os.Getenv("PULSE_REDIS_PASSWORD"); password != "" {
		config.Cache.Password = password
	}
	if db := os.Getenv("PULSE_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			config.Cache.DB = n
		}
	}
	if ttl := os.Getenv("PULSE_SNAPSHOT_TTL"); ttl != "" {
		if d, err := time.ParseDuration(ttl); err == nil {
			config.Cache.SnapshotTTL = d
		}
	}

	if interval := os.Getenv("PULSE_HEARTBEAT_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.WebSocket.HeartbeatInterval = d
		}
	}
	if timeout := os.Getenv("PULSE_HEARTBEAT_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.WebSocket.HeartbeatTimeout = d
		}
	}
	if maxConns := os.Getenv("PULSE_MAX_CONNECTIONS_PER_LEARNER"); maxConns != "" {
		if n, err := strconv.Atoi(maxConns); err == nil {
			config.WebSocket.MaxConnectionsPerUser = n
		}
	}

	if interval := os.Getenv("PULSE_PUSH_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Push.Interval = d
		}
	}
	if threshold := os.Getenv("PULSE_CONSECUTIVE_MISS_MAX"); threshold != "" {
		if n, err := strconv.Atoi(threshold); err == nil {
			config.Metrics.ConsecutiveMissMax = n
		}
	}
	if delta := os.Getenv("PULSE_ACCURACY_DROP_DELTA"); delta != "" {
		if f, err := strconv.ParseFloat(delta, 64); err == nil {
			config.Metrics.AccuracyDropDelta = f
		}
	}

	return config
}

// fileConfig mirrors Config with string durations for JSON parsing.
type fileConfig struct {
	Database *struct {
		Path    string `json:"path"`
		Timeout string `json:"timeout"`
	} `json:"database"`
	HTTP *struct {
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
		Host         string `json:"host"`
	} `json:"http"`
	WebSocket *struct {
		HeartbeatInterval     string `json:"heartbeat_interval"`
		HeartbeatTimeout      string `json:"heartbeat_timeout"`
		WriteTimeout          string `json:"write_timeout"`
		BufferSize            int    `json:"buffer_size"`
		MaxConnectionsPerUser int    `json:"max_connections_per_user"`
	} `json:"websocket"`
	Cache *struct {
		Addr        string `json:"addr"`
		Password    string `json:"password"`
		DB          int    `json:"db"`
		KeyPrefix   string `json:"key_prefix"`
		SnapshotTTL string `json:"snapshot_ttl"`
	} `json:"cache"`
	Metrics *struct {
		SpeedWindow        string  `json:"speed_window"`
		TrendMinSamples    int     `json:"trend_min_samples"`
		TrendDelta         float64 `json:"trend_delta"`
		AccuracyMaxSamples int     `json:"accuracy_max_samples"`
		RecentWindow       int     `json:"recent_window"`
		AccuracyTrendMin   int     `json:"accuracy_trend_min"`
		AccuracyDropDelta  float64 `json:"accuracy_drop_delta"`
		ConsecutiveMissMax int     `json:"consecutive_miss_max"`
		PaceAheadFactor    float64 `json:"pace_ahead_factor"`
		PaceBehindFactor   float64 `json:"pace_behind_factor"`
		EngagementWindow   string  `json:"engagement_window"`
		HighRatePerMin     float64 `json:"high_rate_per_min"`
		MediumRatePerMin   float64 `json:"medium_rate_per_min"`
		ActiveWithin       string  `json:"active_within"`
		DifficultyWindow   string  `json:"difficulty_window"`
		DifficultySamples  int     `json:"difficulty_samples"`
		EasyAccuracy       float64 `json:"easy_accuracy"`
		EasyMaxTime        float64 `json:"easy_max_time"`
		HardAccuracy       float64 `json:"hard_accuracy"`
		HardMinTime        float64 `json:"hard_min_time"`
		BaselineLookback   int     `json:"baseline_lookback_days"`
		HistoryRetention   string  `json:"history_retention"`
	} `json:"metrics"`
	Push *struct {
		Interval string `json:"interval"`
	} `json:"push"`
}

// LoadFromFile reads JSON configuration, overlaying defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if fc.Database != nil {
		if fc.Database.Path != "" {
			config.Database.Path = fc.Database.Path
		}
		if d, err := time.ParseDuration(fc.Database.Timeout); err == nil {
			config.Database.Timeout = d
		}
	}
	if fc.HTTP != nil {
		if fc.HTTP.Port > 0 {
			config.HTTP.Port = fc.HTTP.Port
		}
		if fc.HTTP.Host != "" {
			config.HTTP.Host = fc.HTTP.Host
		}
		if d, err := time.ParseDuration(fc.HTTP.ReadTimeout); err == nil {
			config.HTTP.ReadTimeout = d
		}
		if d, err := time.ParseDuration(fc.HTTP.WriteTimeout); err == nil {
			config.HTTP.WriteTimeout = d
		}
	}
	if fc.WebSocket != nil {
		if fc.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = fc.WebSocket.BufferSize
		}
		if fc.WebSocket.MaxConnectionsPerUser > 0 {
			config.WebSocket.MaxConnectionsPerUser = fc.WebSocket.MaxConnectionsPerUser
		}
		if d, err := time.ParseDuration(fc.WebSocket.HeartbeatInterval); err == nil {
			config.WebSocket.HeartbeatInterval = d
		}
		if d, err := time.ParseDuration(fc.WebSocket.HeartbeatTimeout); err == nil {
			config.WebSocket.HeartbeatTimeout = d
		}
		if d, err := time.ParseDuration(fc.WebSocket.WriteTimeout); err == nil {
			config.WebSocket.WriteTimeout = d
		}
	}
	if fc.Cache != nil {
		if fc.Cache.Addr != "" {
			config.Cache.Addr = fc.Cache.Addr
		}
		if fc.Cache.Password != "" {
			config.Cache.Password = fc.Cache.Password
		}
		if fc.Cache.DB > 0 {
			config.Cache.DB = fc.Cache.DB
		}
		if fc.Cache.KeyPrefix != "" {
			config.Cache.KeyPrefix = fc.Cache.KeyPrefix
		}
		if d, err := time.ParseDuration(fc.Cache.SnapshotTTL); err == nil {
			config.Cache.SnapshotTTL = d
		}
	}
	if fc.Metrics != nil {
		m := config.Metrics
		if d, err := time.ParseDuration(fc.Metrics.SpeedWindow); err == nil {
			m.SpeedWindow = d
		}
		if fc.Metrics.TrendMinSamples > 0 {
			m.TrendMinSamples = fc.Metrics.TrendMinSamples
		}
		if fc.Metrics.TrendDelta > 0 {
			m.TrendDelta = fc.Metrics.TrendDelta
		}
		if fc.Metrics.AccuracyMaxSamples > 0 {
			m.AccuracyMaxSamples = fc.Metrics.AccuracyMaxSamples
		}
		if fc.Metrics.RecentWindow > 0 {
			m.RecentWindow = fc.Metrics.RecentWindow
		}
		if fc.Metrics.AccuracyTrendMin > 0 {
			m.AccuracyTrendMin = fc.Metrics.AccuracyTrendMin
		}
		if fc.Metrics.AccuracyDropDelta > 0 {
			m.AccuracyDropDelta = fc.Metrics.AccuracyDropDelta
		}
		if fc.Metrics.ConsecutiveMissMax > 0 {
			m.ConsecutiveMissMax = fc.Metrics.ConsecutiveMissMax
		}
		if fc.Metrics.PaceAheadFactor > 0 {
			m.PaceAheadFactor = fc.Metrics.PaceAheadFactor
		}
		if fc.Metrics.PaceBehindFactor > 0 {
			m.PaceBehindFactor = fc.Metrics.PaceBehindFactor
		}
		if d, err := time.ParseDuration(fc.Metrics.EngagementWindow); err == nil {
			m.EngagementWindow = d
		}
		if fc.Metrics.HighRatePerMin > 0 {
			m.HighRatePerMin = fc.Metrics.HighRatePerMin
		}
		if fc.Metrics.MediumRatePerMin > 0 {
			m.MediumRatePerMin = fc.Metrics.MediumRatePerMin
		}
		if d, err := time.ParseDuration(fc.Metrics.ActiveWithin); err == nil {
			m.ActiveWithin = d
		}
		if d, err := time.ParseDuration(fc.Metrics.DifficultyWindow); err == nil {
			m.DifficultyWindow = d
		}
		if fc.Metrics.DifficultySamples > 0 {
			m.DifficultySamples = fc.Metrics.DifficultySamples
		}
		if fc.Metrics.EasyAccuracy > 0 {
			m.EasyAccuracy = fc.Metrics.EasyAccuracy
		}
		if fc.Metrics.EasyMaxTime > 0 {
			m.EasyMaxTime = fc.Metrics.EasyMaxTime
		}
		if fc.Metrics.HardAccuracy > 0 {
			m.HardAccuracy = fc.Metrics.HardAccuracy
		}
		if fc.Metrics.HardMinTime > 0 {
			m.HardMinTime = fc.Metrics.HardMinTime
		}
		if fc.Metrics.BaselineLookback > 0 {
			m.BaselineLookback = fc.Metrics.BaselineLookback
		}
		if d, err := time.ParseDuration(fc.Metrics.HistoryRetention); err == nil {
			m.HistoryRetention = d
		}
	}
	if fc.Push != nil {
		if d, err := time.ParseDuration(fc.Push.Interval); err == nil {
			config.Push.Interval = d
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment >
// defaults. File errors are ignored so environment and defaults still apply.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}
