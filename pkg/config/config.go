package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Detection  DetectionConfig  `mapstructure:"detection"`
	RuleEngine RuleEngineConfig `mapstructure:"rule_engine"`
	Admission  AdmissionConfig  `mapstructure:"admission"`
	Reputation ReputationConfig `mapstructure:"reputation"`
	Notifier   NotifierConfig   `mapstructure:"notifier"`
}

type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	MetricsPort    int    `mapstructure:"metrics_port"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TLS      bool   `mapstructure:"tls"`
}

type RateLimitConfig struct {
	Limit         int64 `mapstructure:"limit"`
	BurstSize     int64 `mapstructure:"burst_size"`
	WindowSeconds int   `mapstructure:"window_seconds"`
}

func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

type DetectionConfig struct {
	ConnectionRateThreshold     int64   `mapstructure:"connection_rate_threshold"`
	ConnectionRateWindowSeconds int     `mapstructure:"connection_rate_window_seconds"`
	RequestRateThreshold        int64   `mapstructure:"request_rate_threshold"`
	RequestRateWindowSeconds    int     `mapstructure:"request_rate_window_seconds"`
	TrafficVolumeThresholdBytes int64   `mapstructure:"traffic_volume_threshold_bytes"`
	TrafficVolumeWindowSeconds  int     `mapstructure:"traffic_volume_window_seconds"`
	AnomalyThreshold            float64 `mapstructure:"anomaly_threshold"`
	AnomalyWindowSeconds        int     `mapstructure:"anomaly_window_seconds"`
}

type RuleEngineConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	DefaultPriority       int    `mapstructure:"default_priority"`
	RulesFile             string `mapstructure:"rules_file"`
	RescanIntervalSeconds int    `mapstructure:"rescan_interval_seconds"`
}

func (c RuleEngineConfig) RescanInterval() time.Duration {
	return time.Duration(c.RescanIntervalSeconds) * time.Second
}

type AdmissionConfig struct {
	FailOpen bool `mapstructure:"fail_open"`
}

type ReputationConfig struct {
	URL            string `mapstructure:"url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

func (c ReputationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type NotifierConfig struct {
	EventsPerSecond float64 `mapstructure:"events_per_second"`
}

var globalConfig Config

func Load(configPath string) error {
	if err := loadConfigFile(configPath, "config", &globalConfig); err != nil {
		return fmt.Errorf("⚠️ Warning: Could not load main config file: %v", err)
	}

	setDefaultValues()

	return nil
}

func loadConfigFile(configPath, fileName string, out interface{}) error {
	viper.SetConfigName(fileName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("config file %s.yaml not found, using only environment variables", fileName)
		}
		return fmt.Errorf("error reading config file %s.yaml: %w", fileName, err)
	}

	if err := viper.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to unmarshal %s config: %w", fileName, err)
	}

	return nil
}

// setDefaultValues fills anything the file and environment left unset. The
// thresholds match the protection profile the service ships with.
func setDefaultValues() {
	if globalConfig.Server.Port == 0 {
		globalConfig.Server.Port = 8080
	}
	if globalConfig.Server.MetricsPort == 0 {
		globalConfig.Server.MetricsPort = 9090
	}
	if globalConfig.Redis.Host == "" {
		globalConfig.Redis.Host = "localhost"
	}
	if globalConfig.Redis.Port == 0 {
		globalConfig.Redis.Port = 6379
	}
	if globalConfig.RateLimit.Limit == 0 {
		globalConfig.RateLimit.Limit = 100
	}
	if globalConfig.RateLimit.BurstSize == 0 {
		globalConfig.RateLimit.BurstSize = 200
	}
	if globalConfig.RateLimit.WindowSeconds == 0 {
		globalConfig.RateLimit.WindowSeconds = 60
	}
	if globalConfig.Detection.ConnectionRateThreshold == 0 {
		globalConfig.Detection.ConnectionRateThreshold = 100
	}
	if globalConfig.Detection.ConnectionRateWindowSeconds == 0 {
		globalConfig.Detection.ConnectionRateWindowSeconds = 60
	}
	if globalConfig.Detection.RequestRateThreshold == 0 {
		globalConfig.Detection.RequestRateThreshold = 1000
	}
	if globalConfig.Detection.RequestRateWindowSeconds == 0 {
		globalConfig.Detection.RequestRateWindowSeconds = 60
	}
	if globalConfig.Detection.TrafficVolumeThresholdBytes == 0 {
		globalConfig.Detection.TrafficVolumeThresholdBytes = 10 * 1024 * 1024
	}
	if globalConfig.Detection.TrafficVolumeWindowSeconds == 0 {
		globalConfig.Detection.TrafficVolumeWindowSeconds = 60
	}
	if globalConfig.Detection.AnomalyThreshold == 0 {
		globalConfig.Detection.AnomalyThreshold = 3.0
	}
	if globalConfig.Detection.AnomalyWindowSeconds == 0 {
		globalConfig.Detection.AnomalyWindowSeconds = 300
	}
	if globalConfig.RuleEngine.DefaultPriority == 0 {
		globalConfig.RuleEngine.DefaultPriority = 100
	}
	if globalConfig.RuleEngine.RescanIntervalSeconds == 0 {
		globalConfig.RuleEngine.RescanIntervalSeconds = 5
	}
	if globalConfig.Reputation.TimeoutSeconds == 0 {
		globalConfig.Reputation.TimeoutSeconds = 2
	}
	if globalConfig.Notifier.EventsPerSecond == 0 {
		globalConfig.Notifier.EventsPerSecond = 1
	}
}

func GetConfig() *Config {
	return &globalConfig
}
