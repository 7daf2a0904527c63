package internal

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	configPath string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithConfigPath sets the path the configuration was loaded from. When
// non-empty, the file is watched at runtime and the log level is reapplied
// on change.
func WithConfigPath(path string) Option {
	return func(a *application) {
		a.configPath = path
	}
}
