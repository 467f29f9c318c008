package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"
)

// Config holds the configuration for the presence engine process
type Config struct {
	// MQTT configuration
	MQTTBroker   string
	MQTTPort     int
	MQTTUser     string
	MQTTPassword string
	MQTTClientID string

	// Redis configuration
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Service configuration
	ServiceName string
	HealthPort  int
	LogLevel    string

	// Storage configuration
	StorePath         string
	BackupDir         string
	BackupIntervalHrs int

	// Engine scheduling
	DecayTickSec        int
	AnalysisIntervalSec int

	// Geographic location for sun-derived sleep windows
	Latitude  float64
	Longitude float64

	// Area layout file (YAML)
	AreasFile string

	// Learning configuration
	HistoryWindowDays     int
	MotionTimeoutSec      int
	OccupiedCacheTTLMin   int
	MinCorrelationSamples int

	// Retention windows (days), each tier independent
	RawIntervalRetentionDays     int
	DailyAggregateRetentionDays  int
	WeeklyAggregateRetentionDays int
	RawNumericRetentionDays      int
	HourlyNumericRetentionDays   int
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		MQTTBroker:    "localhost",
		MQTTPort:      1883,
		MQTTUser:      "",
		MQTTPassword:  "",
		MQTTClientID:  "",
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,
		ServiceName:   "presence-agent",
		HealthPort:    8080,
		LogLevel:      "info",
		StorePath:     "presence.db",
		BackupDir:     "backups",
		BackupIntervalHrs: 24,
		DecayTickSec:        10,
		AnalysisIntervalSec: 3600,
		// Helsinki coordinates
		Latitude:  60.1695,
		Longitude: 24.9354,
		AreasFile: "areas.yaml",
		HistoryWindowDays:     30,
		MotionTimeoutSec:      300,
		OccupiedCacheTTLMin:   60,
		MinCorrelationSamples: 10,
		RawIntervalRetentionDays:     10,
		DailyAggregateRetentionDays:  60,
		WeeklyAggregateRetentionDays: 365,
		RawNumericRetentionDays:      10,
		HourlyNumericRetentionDays:   60,
	}
}

// LoadFromEnv loads configuration from environment variables with PRESENCE_ prefix
func (c *Config) LoadFromEnv() {
	// MQTT configuration
	if v := os.Getenv("PRESENCE_MQTT_BROKER"); v != "" {
		c.MQTTBroker = v
	}
	if v := os.Getenv("PRESENCE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.MQTTPort = port
		}
	}
	if v := os.Getenv("PRESENCE_MQTT_USER"); v != "" {
		c.MQTTUser = v
	}
	if v := os.Getenv("PRESENCE_MQTT_PASSWORD"); v != "" {
		c.MQTTPassword = v
	}
	if v := os.Getenv("PRESENCE_MQTT_CLIENT_ID"); v != "" {
		c.MQTTClientID = v
	}

	// Redis configuration
	if v := os.Getenv("PRESENCE_REDIS_HOST"); v != "" {
		c.RedisHost = v
	}
	if v := os.Getenv("PRESENCE_REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.RedisPort = port
		}
	}
	if v := os.Getenv("PRESENCE_REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("PRESENCE_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.RedisDB = db
		}
	}

	// Service configuration
	if v := os.Getenv("PRESENCE_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("PRESENCE_HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HealthPort = port
		}
	}
	if v := os.Getenv("PRESENCE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}

	// Storage configuration
	if v := os.Getenv("PRESENCE_STORE_PATH"); v != "" {
		c.StorePath = v
	}
	if v := os.Getenv("PRESENCE_BACKUP_DIR"); v != "" {
		c.BackupDir = v
	}
	if v := os.Getenv("PRESENCE_BACKUP_INTERVAL_HOURS"); v != "" {
		if hrs, err := strconv.Atoi(v); err == nil {
			c.BackupIntervalHrs = hrs
		}
	}

	// Engine scheduling
	if v := os.Getenv("PRESENCE_DECAY_TICK_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			c.DecayTickSec = sec
		}
	}
	if v := os.Getenv("PRESENCE_ANALYSIS_INTERVAL_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			c.AnalysisIntervalSec = sec
		}
	}

	// Geographic location
	if v := os.Getenv("PRESENCE_LATITUDE"); v != "" {
		if lat, err := strconv.ParseFloat(v, 64); err == nil {
			c.Latitude = lat
		}
	}
	if v := os.Getenv("PRESENCE_LONGITUDE"); v != "" {
		if lon, err := strconv.ParseFloat(v, 64); err == nil {
			c.Longitude = lon
		}
	}

	if v := os.Getenv("PRESENCE_AREAS_FILE"); v != "" {
		c.AreasFile = v
	}

	// Learning configuration
	if v := os.Getenv("PRESENCE_HISTORY_WINDOW_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			c.HistoryWindowDays = days
		}
	}
	if v := os.Getenv("PRESENCE_MOTION_TIMEOUT_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil {
			c.MotionTimeoutSec = sec
		}
	}
	if v := os.Getenv("PRESENCE_OCCUPIED_CACHE_TTL_MIN"); v != "" {
		if min, err := strconv.Atoi(v); err == nil {
			c.OccupiedCacheTTLMin = min
		}
	}
	if v := os.Getenv("PRESENCE_MIN_CORRELATION_SAMPLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MinCorrelationSamples = n
		}
	}

	// Retention windows
	if v := os.Getenv("PRESENCE_RAW_INTERVAL_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			c.RawIntervalRetentionDays = days
		}
	}
	if v := os.Getenv("PRESENCE_DAILY_AGGREGATE_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			c.DailyAggregateRetentionDays = days
		}
	}
	if v := os.Getenv("PRESENCE_WEEKLY_AGGREGATE_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			c.WeeklyAggregateRetentionDays = days
		}
	}
	if v := os.Getenv("PRESENCE_RAW_NUMERIC_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			c.RawNumericRetentionDays = days
		}
	}
	if v := os.Getenv("PRESENCE_HOURLY_NUMERIC_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			c.HourlyNumericRetentionDays = days
		}
	}
}

// LoadFromFlags parses command-line flags and overrides config values
func (c *Config) LoadFromFlags() {
	// MQTT flags
	pflag.StringVar(&c.MQTTBroker, "mqtt-broker", c.MQTTBroker, "MQTT broker hostname")
	pflag.IntVar(&c.MQTTPort, "mqtt-port", c.MQTTPort, "MQTT broker port")
	pflag.StringVar(&c.MQTTUser, "mqtt-user", c.MQTTUser, "MQTT username")
	pflag.StringVar(&c.MQTTPassword, "mqtt-password", c.MQTTPassword, "MQTT password")
	pflag.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "MQTT client ID")

	// Redis flags
	pflag.StringVar(&c.RedisHost, "redis-host", c.RedisHost, "Redis hostname")
	pflag.IntVar(&c.RedisPort, "redis-port", c.RedisPort, "Redis port")
	pflag.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	pflag.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")

	// Service flags
	pflag.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	pflag.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health check HTTP port")
	pflag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")

	// Storage flags
	pflag.StringVar(&c.StorePath, "store-path", c.StorePath, "SQLite store path")
	pflag.StringVar(&c.BackupDir, "backup-dir", c.BackupDir, "Store backup directory")
	pflag.IntVar(&c.BackupIntervalHrs, "backup-interval-hours", c.BackupIntervalHrs, "Store backup interval in hours")

	// Engine scheduling flags
	pflag.IntVar(&c.DecayTickSec, "decay-tick", c.DecayTickSec, "Decay recomputation tick in seconds")
	pflag.IntVar(&c.AnalysisIntervalSec, "analysis-interval", c.AnalysisIntervalSec, "Full analysis cycle interval in seconds")

	// Location flags
	pflag.Float64Var(&c.Latitude, "latitude", c.Latitude, "Geographic latitude for sun calculations")
	pflag.Float64Var(&c.Longitude, "longitude", c.Longitude, "Geographic longitude for sun calculations")

	pflag.StringVar(&c.AreasFile, "areas-file", c.AreasFile, "Area layout YAML file")

	// Learning flags
	pflag.IntVar(&c.HistoryWindowDays, "history-window-days", c.HistoryWindowDays, "Historical window for likelihood learning in days")
	pflag.IntVar(&c.MotionTimeoutSec, "motion-timeout", c.MotionTimeoutSec, "Motion timeout extension in seconds")
	pflag.IntVar(&c.OccupiedCacheTTLMin, "occupied-cache-ttl", c.OccupiedCacheTTLMin, "Occupied interval cache TTL in minutes")
	pflag.IntVar(&c.MinCorrelationSamples, "min-correlation-samples", c.MinCorrelationSamples, "Minimum samples for numeric correlation")

	// Retention flags
	pflag.IntVar(&c.RawIntervalRetentionDays, "raw-interval-retention-days", c.RawIntervalRetentionDays, "Raw interval retention in days")
	pflag.IntVar(&c.DailyAggregateRetentionDays, "daily-aggregate-retention-days", c.DailyAggregateRetentionDays, "Daily aggregate retention in days")
	pflag.IntVar(&c.WeeklyAggregateRetentionDays, "weekly-aggregate-retention-days", c.WeeklyAggregateRetentionDays, "Weekly aggregate retention in days")
	pflag.IntVar(&c.RawNumericRetentionDays, "raw-numeric-retention-days", c.RawNumericRetentionDays, "Raw numeric sample retention in days")
	pflag.IntVar(&c.HourlyNumericRetentionDays, "hourly-numeric-retention-days", c.HourlyNumericRetentionDays, "Hourly numeric aggregate retention in days")

	pflag.Parse()
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT broker is required")
	}
	if c.MQTTPort <= 0 || c.MQTTPort > 65535 {
		return fmt.Errorf("MQTT port must be between 1 and 65535")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("Redis host is required")
	}
	if c.RedisPort <= 0 || c.RedisPort > 65535 {
		return fmt.Errorf("Redis port must be between 1 and 65535")
	}
	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("Health port must be between 1 and 65535")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("Service name is required")
	}
	if c.StorePath == "" {
		return fmt.Errorf("Store path is required")
	}
	if c.DecayTickSec <= 0 {
		return fmt.Errorf("Decay tick must be positive")
	}
	if c.AnalysisIntervalSec <= 0 {
		return fmt.Errorf("Analysis interval must be positive")
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// MQTTAddress returns the full MQTT broker address
func (c *Config) MQTTAddress() string {
	return fmt.Sprintf("tcp://%s:%d", c.MQTTBroker, c.MQTTPort)
}

// RedisAddress returns the full Redis address
func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}
