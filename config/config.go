package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the course generation system
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Quality   QualityConfig   `mapstructure:"quality"`
	Research  ResearchConfig  `mapstructure:"research"`
	Media     MediaConfig     `mapstructure:"media"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug             bool          `mapstructure:"debug"`
	LogLevel          string        `mapstructure:"log_level"`
	MaxProcessingTime time.Duration `mapstructure:"max_processing_time"`
	DefaultTimeout    time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	JWTSecret string `mapstructure:"jwt_secret"`
	AsyncRuns bool   `mapstructure:"async_runs"`
}

// LLMConfig contains LLM provider configurations
type LLMConfig struct {
	Providers map[string]LLMProviderConfig `mapstructure:"providers"`
	Routing   LLMRoutingConfig             `mapstructure:"routing"`
}

// LLMProviderConfig represents a single LLM provider configuration
type LLMProviderConfig struct {
	Type       string              `mapstructure:"type"` // openai, compatible endpoints
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Models     map[string]LLMModel `mapstructure:"models"`
	MaxRetries int                 `mapstructure:"max_retries"`
	Timeout    time.Duration       `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig defines which model handles each pipeline stage
type LLMRoutingConfig struct {
	Planning   string `mapstructure:"planning"`
	Research   string `mapstructure:"research"`
	Content    string `mapstructure:"content"`
	Assessment string `mapstructure:"assessment"`
	Speech     string `mapstructure:"speech"`
	Fallback   string `mapstructure:"fallback"`
}

// AgentsConfig contains agent loop settings
type AgentsConfig struct {
	MaxConcurrentAgents int           `mapstructure:"max_concurrent_agents"`
	AgentTimeout        time.Duration `mapstructure:"agent_timeout"`
	MaxTurns            int           `mapstructure:"max_turns"`
	MaxRepeatedCalls    int           `mapstructure:"max_repeated_calls"`
}

func (a AgentsConfig) Normalize() AgentsConfig {
	if a.MaxConcurrentAgents <= 0 {
		a.MaxConcurrentAgents = 4
	}
	if a.AgentTimeout <= 0 {
		a.AgentTimeout = 5 * time.Minute
	}
	if a.MaxTurns <= 0 {
		a.MaxTurns = 10
	}
	if a.MaxRepeatedCalls <= 0 {
		a.MaxRepeatedCalls = 2
	}
	return a
}

// QualityConfig controls the assessment rubric
type QualityConfig struct {
	PassThreshold   float64 `mapstructure:"pass_threshold"`
	MaxEnhancements int     `mapstructure:"max_enhancements"`
}

func (q QualityConfig) Normalize() QualityConfig {
	if q.PassThreshold <= 0 {
		q.PassThreshold = 7.5
	}
	if q.MaxEnhancements <= 0 {
		q.MaxEnhancements = 1
	}
	return q
}

// ResearchConfig contains web search and fetch settings
type ResearchConfig struct {
	SerperAPIKey   string        `mapstructure:"serper_api_key"`
	BraveAPIKey    string        `mapstructure:"brave_api_key"`
	TavilyAPIKey   string        `mapstructure:"tavily_api_key"`
	MaxResults     int           `mapstructure:"max_results"`
	MaxFetchBytes  int64         `mapstructure:"max_fetch_bytes"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	EnableHeadless bool          `mapstructure:"enable_headless"`
}

func (r ResearchConfig) Normalize() ResearchConfig {
	if r.MaxResults <= 0 {
		r.MaxResults = 8
	}
	if r.MaxFetchBytes <= 0 {
		r.MaxFetchBytes = 2 << 20
	}
	if r.FetchTimeout <= 0 {
		r.FetchTimeout = 20 * time.Second
	}
	return r
}

// MediaConfig contains narration/TTS settings
type MediaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	Voice   string `mapstructure:"voice"`
}

func (m MediaConfig) Normalize() MediaConfig {
	if strings.TrimSpace(m.Dir) == "" {
		m.Dir = "./media"
	}
	if strings.TrimSpace(m.Voice) == "" {
		m.Voice = "alloy"
	}
	return m
}

// QueueConfig contains Redis Streams settings
type QueueConfig struct {
	Stream        string `mapstructure:"stream"`
	ConsumerGroup string `mapstructure:"consumer_group"`
	MaxLenApprox  int64  `mapstructure:"max_len_approx"`
}

func (q QueueConfig) Normalize() QueueConfig {
	if strings.TrimSpace(q.Stream) == "" {
		q.Stream = "coursegen.runs"
	}
	if strings.TrimSpace(q.ConsumerGroup) == "" {
		q.ConsumerGroup = "coursegen-workers"
	}
	return q
}

// SchedulerConfig controls periodic course refresh
type SchedulerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	ScanInterval time.Duration `mapstructure:"scan_interval"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
}

func (s SchedulerConfig) Normalize() SchedulerConfig {
	if s.ScanInterval <= 0 {
		s.ScanInterval = time.Minute
	}
	if s.LockTTL <= 0 {
		s.LockTTL = 10 * time.Minute
	}
	return s
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	File     FileConfig     `mapstructure:"file"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// FileConfig contains file storage settings
type FileConfig struct {
	DataDir string `mapstructure:"data_dir"`
	LogDir  string `mapstructure:"log_dir"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CostTracking bool   `mapstructure:"cost_tracking"`
	LogFile      string `mapstructure:"log_file"`
}

// LoadConfig loads config from file, with COURSEGEN_* env overrides
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.max_processing_time", "30m")
	viper.SetDefault("general.default_timeout", "60s")
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("server.async_runs", true)
	viper.SetDefault("quality.pass_threshold", 7.5)
	viper.SetDefault("quality.max_enhancements", 1)
	viper.SetDefault("telemetry.cost_tracking", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("COURSEGEN")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config

	if err = viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.Agents = config.Agents.Normalize()
	config.Quality = config.Quality.Normalize()
	config.Research = config.Research.Normalize()
	config.Media = config.Media.Normalize()
	config.Queue = config.Queue.Normalize()
	config.Scheduler = config.Scheduler.Normalize()

	if err := config.Storage.Redis.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	return &config
}
