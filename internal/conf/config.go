package conf

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/imageguard/imageguard-backend/internal/entitlement"
	"github.com/imageguard/imageguard-backend/internal/imagesearch/types"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Log       LogConfig
	Crypto    CryptoConfig
	Search    SearchConfig
	Providers []types.ProviderConfig
	Plans     []entitlement.Plan
	Retention RetentionConfig
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

type LogConfig struct {
	Level            string        `mapstructure:"level"`
	Format           string        `mapstructure:"format"`
	Output           string        `mapstructure:"output"`
	File             FileLogConfig `mapstructure:"file"`
	EnableCaller     bool          `mapstructure:"enablecaller"`
	EnableStacktrace bool          `mapstructure:"enablestacktrace"`
}

type FileLogConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"maxsize"`
	MaxAge     int    `mapstructure:"maxage"`
	MaxBackups int    `mapstructure:"maxbackups"`
	Compress   bool   `mapstructure:"compress"`
}

type CryptoConfig struct {
	// MasterKey is the server-held secret all artifact keys derive from.
	// Loaded once at startup, never mutated at runtime.
	MasterKey string `mapstructure:"master_key"`
}

type SearchConfig struct {
	// GlobalTimeout is the wall-clock budget shared by all providers of
	// one search.
	GlobalTimeout time.Duration `mapstructure:"global_timeout"`
}

type RetentionConfig struct {
	// Schedule is a cron expression for the retention sweep.
	Schedule string `mapstructure:"schedule"`
	// BatchSize caps deletions per tier per sweep.
	BatchSize int `mapstructure:"batch_size"`
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// PlanTable converts the configured plan list into the lookup map the
// entitlement service consumes. Empty config falls back to the defaults.
func (c *Config) PlanTable() map[types.PlanTier]entitlement.Plan {
	if len(c.Plans) == 0 {
		return nil
	}
	table := make(map[types.PlanTier]entitlement.Plan, len(c.Plans))
	for _, p := range c.Plans {
		table[p.Tier] = p
	}
	return table
}
