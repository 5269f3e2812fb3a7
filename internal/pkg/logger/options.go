package logger

// Option modifies a logger configuration
type Option func(*Config)

func WithLevel(level string) Option {
	return func(c *Config) { c.Level = level }
}

func WithFormat(format string) Option {
	return func(c *Config) { c.Format = format }
}

func WithOutput(output string) Option {
	return func(c *Config) { c.Output = output }
}

func WithFilename(filename string) Option {
	return func(c *Config) { c.File.Filename = filename }
}

func WithCaller(enabled bool) Option {
	return func(c *Config) { c.EnableCaller = enabled }
}

func WithStacktrace(enabled bool) Option {
	return func(c *Config) { c.EnableStacktrace = enabled }
}

// NewWithOptions creates a logger from the defaults plus opts
func NewWithOptions(opts ...Option) (*Logger, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return New(cfg)
}

// Development returns a debug-level colored console logger
func Development() (*Logger, error) {
	return NewWithOptions(
		WithLevel("debug"),
		WithFormat("console"),
		WithOutput("console"),
		WithCaller(true),
		WithStacktrace(true),
	)
}

// Production returns an info-level JSON logger writing to a rotated file
func Production(filename string) (*Logger, error) {
	return NewWithOptions(
		WithLevel("info"),
		WithFormat("json"),
		WithOutput("file"),
		WithFilename(filename),
		WithCaller(true),
		WithStacktrace(true),
	)
}
