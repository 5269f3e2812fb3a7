package types

import (
	"net/url"
	"time"
)

const (
	DefaultBaseURL    = "https://chroniclingamerica.loc.gov"
	DefaultSearchPath = "/search/pages/results/"
	DefaultPageSize   = 20
)

// ArchiveConfig represents archive endpoint configuration
type ArchiveConfig struct {
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	SearchPath string `mapstructure:"search_path" yaml:"search_path"`
	PageSize   int    `mapstructure:"page_size" yaml:"page_size"`

	// Optional settings
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent   string        `mapstructure:"user_agent" yaml:"user_agent"`
	DownloadDir string        `mapstructure:"download_dir" yaml:"download_dir"`
}

// DefaultArchiveConfig returns the public Chronicling America endpoint
func DefaultArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		BaseURL:     DefaultBaseURL,
		SearchPath:  DefaultSearchPath,
		PageSize:    DefaultPageSize,
		Timeout:     30 * time.Second,
		UserAgent:   "AmericanChronicle/1.0",
		DownloadDir: "downloads",
	}
}

// Validate validates the archive configuration
func (c *ArchiveConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ErrInvalidBaseURL
	}
	if c.PageSize <= 0 {
		return ErrInvalidPageSize
	}
	return nil
}
