package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Kibana   KibanaConfig
	Slack    SlackConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	Pipeline PipelineConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
	RateLimit    int
}

// KibanaConfig points at the Agent Builder instance that hosts the
// reasoning providers and the workflow webhooks.
type KibanaConfig struct {
	URL    string
	APIKey string
}

type SlackConfig struct {
	WebhookURL string
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type PipelineConfig struct {
	AutoResolveThreshold   float64
	EscalateThreshold      float64
	CriticQualityThreshold float64
	MaxSolverAttempts      int
	AgentTimeoutSec        int
	SideEffectTimeoutSec   int
	GhostAlertDedupSec     int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/supportiq")

	viper.SetEnvPrefix("SUPPORTIQ")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Pipeline.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	return &config, nil
}

// Validate rejects threshold bands that overlap incorrectly. A misordered
// band makes the routing decision ambiguous, so it must fail at load time
// rather than at decision time.
func (p PipelineConfig) Validate() error {
	if p.AutoResolveThreshold < 0 || p.AutoResolveThreshold > 1 {
		return fmt.Errorf("autoResolveThreshold must be in [0,1], got %v", p.AutoResolveThreshold)
	}
	if p.EscalateThreshold < 0 || p.EscalateThreshold > 1 {
		return fmt.Errorf("escalateThreshold must be in [0,1], got %v", p.EscalateThreshold)
	}
	if p.CriticQualityThreshold < 0 || p.CriticQualityThreshold > 1 {
		return fmt.Errorf("criticQualityThreshold must be in [0,1], got %v", p.CriticQualityThreshold)
	}
	if p.EscalateThreshold > p.AutoResolveThreshold {
		return fmt.Errorf("escalateThreshold (%v) must not exceed autoResolveThreshold (%v)",
			p.EscalateThreshold, p.AutoResolveThreshold)
	}
	if p.MaxSolverAttempts < 1 {
		return fmt.Errorf("maxSolverAttempts must be at least 1, got %d", p.MaxSolverAttempts)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 1048576)
	viper.SetDefault("server.rateLimit", 120)

	viper.SetDefault("kibana.url", "http://localhost:5601")

	viper.SetDefault("sqlite.path", "./data/supportiq.db")

	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("pipeline.autoResolveThreshold", 0.90)
	viper.SetDefault("pipeline.escalateThreshold", 0.65)
	viper.SetDefault("pipeline.criticQualityThreshold", 0.75)
	viper.SetDefault("pipeline.maxSolverAttempts", 3)
	viper.SetDefault("pipeline.agentTimeoutSec", 120)
	viper.SetDefault("pipeline.sideEffectTimeoutSec", 5)
	viper.SetDefault("pipeline.ghostAlertDedupSec", 0)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
