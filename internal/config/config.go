// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Engine() EngineConfig
	Store() StoreConfig
	Hub() HubConfig
	Policy() PolicyConfig
	Corpus() CorpusConfig
}

// Config holds the entire application configuration. Private fields
// enforce access through the Interface's getter methods.
type Config struct {
	logger LoggerConfig
	engine EngineConfig
	store  StoreConfig
	hub    HubConfig
	policy PolicyConfig
	corpus CorpusConfig
}

func (c *Config) Logger() LoggerConfig { return c.logger }
func (c *Config) Engine() EngineConfig { return c.engine }
func (c *Config) Store() StoreConfig   { return c.store }
func (c *Config) Hub() HubConfig       { return c.hub }
func (c *Config) Policy() PolicyConfig { return c.policy }
func (c *Config) Corpus() CorpusConfig { return c.corpus }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// EngineConfig configures the solidification transaction.
type EngineConfig struct {
	// MaxFiles is the default blast-radius file limit applied when a gene
	// does not declare its own.
	MaxFiles int `mapstructure:"max_files" yaml:"max_files"`
	// MaxLines is the blast-radius line bound used for broadcast eligibility.
	MaxLines int `mapstructure:"max_lines" yaml:"max_lines"`
	// CommandTimeout bounds each validation command and each git subprocess.
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	// StateFile is the prior-cycle state document consumed at the start of
	// each solidify call.
	StateFile string `mapstructure:"state_file" yaml:"state_file"`
	// RepoRoot is the working tree the engine measures and may revert.
	RepoRoot string `mapstructure:"repo_root" yaml:"repo_root"`
	// PublishDrain is how long the transaction waits for the fire-and-forget
	// publish goroutine before returning with publish marked as attempted.
	PublishDrain time.Duration `mapstructure:"publish_drain" yaml:"publish_drain"`
}

// StoreConfig selects and configures the asset store backend.
type StoreConfig struct {
	// Type is "file" or "postgres". Empty defaults to "file".
	Type     string         `mapstructure:"type" yaml:"type"`
	DataDir  string         `mapstructure:"data_dir" yaml:"data_dir"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig holds the connection details for the postgres backend.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"-"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// ConnString assembles a pgx connection string.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// HubConfig configures the collaborator hub endpoint and publish gates.
type HubConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	NodeID  string `mapstructure:"node_id" yaml:"node_id"`
	// AutoPublish enables broadcasting eligible capsules after a commit.
	AutoPublish bool `mapstructure:"auto_publish" yaml:"auto_publish"`
	// Visibility must be "public" for a bundle to leave the node.
	Visibility      string        `mapstructure:"visibility" yaml:"visibility"`
	MinPublishScore float64       `mapstructure:"min_publish_score" yaml:"min_publish_score"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	// RequestsPerSecond caps outbound hub traffic.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// PolicyConfig extends the built-in counted-path policy. The hardcoded
// defaults always apply; these entries are additive.
type PolicyConfig struct {
	IgnorePrefixes  []string `mapstructure:"ignore_prefixes" yaml:"ignore_prefixes"`
	IgnoreNames     []string `mapstructure:"ignore_names" yaml:"ignore_names"`
	CountPrefixes   []string `mapstructure:"count_prefixes" yaml:"count_prefixes"`
	CountExtensions []string `mapstructure:"count_extensions" yaml:"count_extensions"`
}

// CorpusConfig names the four text sources fed to the signal extractor.
type CorpusConfig struct {
	SessionTranscript string `mapstructure:"session_transcript" yaml:"session_transcript"`
	DailyLog          string `mapstructure:"daily_log" yaml:"daily_log"`
	MemorySnippet     string `mapstructure:"memory_snippet" yaml:"memory_snippet"`
	UserSnippet       string `mapstructure:"user_snippet" yaml:"user_snippet"`
}

// raw mirrors Config with exported fields so viper can unmarshal into it.
type raw struct {
	Logger LoggerConfig `mapstructure:"logger"`
	Engine EngineConfig `mapstructure:"engine"`
	Store  StoreConfig  `mapstructure:"store"`
	Hub    HubConfig    `mapstructure:"hub"`
	Policy PolicyConfig `mapstructure:"policy"`
	Corpus CorpusConfig `mapstructure:"corpus"`
}

// Load reads the config file (if any) and environment variables and
// returns a fully defaulted Config. A missing config file is not an
// error; the hardcoded defaults apply.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("CRUCIBLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}

	var r raw
	if err := v.Unmarshal(&r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &Config{
		logger: r.Logger,
		engine: r.Engine,
		store:  r.Store,
		hub:    r.Hub,
		policy: r.Policy,
		corpus: r.Corpus,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "crucible-cli")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("engine.max_files", 8)
	v.SetDefault("engine.max_lines", 400)
	v.SetDefault("engine.command_timeout", 60*time.Second)
	v.SetDefault("engine.state_file", ".crucible/state.json")
	v.SetDefault("engine.repo_root", ".")
	v.SetDefault("engine.publish_drain", 250*time.Millisecond)

	v.SetDefault("store.type", "file")
	v.SetDefault("store.data_dir", ".crucible")
	v.SetDefault("store.postgres.port", 5432)
	v.SetDefault("store.postgres.sslmode", "disable")

	v.SetDefault("hub.visibility", "private")
	v.SetDefault("hub.min_publish_score", 0.7)
	v.SetDefault("hub.request_timeout", 10*time.Second)
	v.SetDefault("hub.requests_per_second", 2.0)

	v.SetDefault("corpus.session_transcript", ".crucible/session.log")
	v.SetDefault("corpus.daily_log", ".crucible/daily.log")
	v.SetDefault("corpus.memory_snippet", ".crucible/memory.md")
	v.SetDefault("corpus.user_snippet", ".crucible/user.md")
}
