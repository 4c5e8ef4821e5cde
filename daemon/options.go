package daemon

import "log/slog"

// Config holds daemon client configuration.
type Config struct {
	Logger      *slog.Logger
	Env         map[string]string
	FlutterPath string
	Dir         string
	ExtraArgs   []string
}

func defaultConfig() Config {
	return Config{FlutterPath: "flutter"}
}

// Option is a functional option for configuring a Client.
type Option func(*Config)

// WithFlutterPath sets the flutter executable.
func WithFlutterPath(path string) Option {
	return func(c *Config) {
		if path != "" {
			c.FlutterPath = path
		}
	}
}

// WithDir sets the working directory of the daemon process.
func WithDir(dir string) Option {
	return func(c *Config) { c.Dir = dir }
}

// WithEnv sets additional environment variables for the daemon process.
func WithEnv(env map[string]string) Option {
	return func(c *Config) { c.Env = env }
}

// WithExtraArgs appends arguments after `flutter daemon`.
func WithExtraArgs(args ...string) Option {
	return func(c *Config) { c.ExtraArgs = args }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
