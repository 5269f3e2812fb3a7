package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lk2023060901/american-chronicle/internal/chronam/types"
	"github.com/lk2023060901/american-chronicle/internal/pkg/logger"
	"github.com/lk2023060901/american-chronicle/internal/pkg/workerpool"
)

const envPrefix = "CHRONAM"

type Config struct {
	Archive types.ArchiveConfig `mapstructure:"archive"`
	Pool    workerpool.Config   `mapstructure:"pool"`
	Log     logger.Config       `mapstructure:"log"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	return &Config{
		Archive: types.DefaultArchiveConfig(),
		Pool:    *workerpool.DefaultConfig(),
		Log:     *logger.DefaultConfig(),
	}
}

// LoadConfig reads path (YAML, TOML or JSON by extension) on top of the
// defaults. An empty path loads defaults and environment only.
// Environment variables override file values, e.g. CHRONAM_ARCHIVE_BASE_URL.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if err := c.Archive.Validate(); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if c.Pool.Workers <= 0 {
		return fmt.Errorf("pool: workers must be greater than 0")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can resolve it
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("archive.base_url", d.Archive.BaseURL)
	v.SetDefault("archive.search_path", d.Archive.SearchPath)
	v.SetDefault("archive.page_size", d.Archive.PageSize)
	v.SetDefault("archive.timeout", d.Archive.Timeout)
	v.SetDefault("archive.user_agent", d.Archive.UserAgent)
	v.SetDefault("archive.download_dir", d.Archive.DownloadDir)

	v.SetDefault("pool.workers", d.Pool.Workers)
	v.SetDefault("pool.queue_size", d.Pool.QueueSize)
	v.SetDefault("pool.enable_priority", d.Pool.EnablePriority)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("log.enablecaller", d.Log.EnableCaller)
	v.SetDefault("log.enablestacktrace", d.Log.EnableStacktrace)
	v.SetDefault("log.file.filename", d.Log.File.Filename)
	v.SetDefault("log.file.maxsize", d.Log.File.MaxSize)
	v.SetDefault("log.file.maxage", d.Log.File.MaxAge)
	v.SetDefault("log.file.maxbackups", d.Log.File.MaxBackups)
	v.SetDefault("log.file.compress", d.Log.File.Compress)
}

// Timeout returns the archive request timeout, defaulting to 30s
func (c *Config) Timeout() time.Duration {
	if c.Archive.Timeout <= 0 {
		return 30 * time.Second
	}
	return c.Archive.Timeout
}
