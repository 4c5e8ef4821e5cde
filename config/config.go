// Package config loads per-project flx settings from .flx.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bazelment/yoloswe/flx/runner"
)

const (
	// FileName is the config file looked up in the project root.
	FileName = ".flx.yaml"

	// PubspecName marks a Flutter project root.
	PubspecName = "pubspec.yaml"

	DefaultDebounce    = 300 * time.Millisecond
	DefaultCallTimeout = 30 * time.Second
	DefaultLogLines    = 1000
)

// ErrNoProject is returned by FindProjectRoot when no pubspec.yaml exists in
// dir or any parent.
var ErrNoProject = errors.New("no pubspec.yaml found")

// Config is the contents of .flx.yaml.
type Config struct {
	DartDefines map[string]string `yaml:"dart_defines,omitempty" json:"dart_defines,omitempty" jsonschema:"description=Values passed as --dart-define"`
	FlutterPath string            `yaml:"flutter_path,omitempty" json:"flutter_path,omitempty" jsonschema:"description=Flutter executable,default=flutter"`
	Device      string            `yaml:"device,omitempty" json:"device,omitempty" jsonschema:"description=Default device id"`
	Target      string            `yaml:"target,omitempty" json:"target,omitempty" jsonschema:"description=Entry point,example=lib/main.dart"`
	Mode        string            `yaml:"mode,omitempty" json:"mode,omitempty" jsonschema:"enum=debug,enum=profile,enum=release,default=debug"`
	Flavor      string            `yaml:"flavor,omitempty" json:"flavor,omitempty"`
	RunArgs     []string          `yaml:"run_args,omitempty" json:"run_args,omitempty" jsonschema:"description=Extra arguments for flutter run"`
	Watch       WatchConfig       `yaml:"watch,omitempty" json:"watch,omitempty"`
	CallTimeout Duration          `yaml:"call_timeout,omitempty" json:"call_timeout,omitempty" jsonschema:"description=Bound on interactive requests"`
	LogLines    int               `yaml:"log_lines,omitempty" json:"log_lines,omitempty" jsonschema:"minimum=1,description=Log lines kept per session"`
}

// WatchConfig controls reload on save.
type WatchConfig struct {
	Paths    []string `yaml:"paths,omitempty" json:"paths,omitempty" jsonschema:"description=Directories watched relative to the project root"`
	Debounce Duration `yaml:"debounce,omitempty" json:"debounce,omitempty"`
	Enabled  bool     `yaml:"reload_on_save" json:"reload_on_save"`
}

// Default returns the settings used when no file exists.
func Default() *Config {
	return &Config{
		FlutterPath: "flutter",
		Mode:        string(runner.ModeDebug),
		CallTimeout: Duration(DefaultCallTimeout),
		LogLines:    DefaultLogLines,
		Watch: WatchConfig{
			Paths:    []string{"lib"},
			Debounce: Duration(DefaultDebounce),
		},
	}
}

// Load reads .flx.yaml from projectDir. Returns the default config if the
// file doesn't exist.
func Load(projectDir string) (*Config, error) {
	path := filepath.Join(projectDir, FileName)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a config document and fills unset fields with defaults.
func Parse(data []byte) (*Config, error) {
	config := Default()
	config.Watch.Paths = nil
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", FileName, err)
	}
	if config.FlutterPath == "" {
		config.FlutterPath = "flutter"
	}
	if config.Mode == "" {
		config.Mode = string(runner.ModeDebug)
	}
	if len(config.Watch.Paths) == 0 {
		config.Watch.Paths = []string{"lib"}
	}
	if config.Watch.Debounce <= 0 {
		config.Watch.Debounce = Duration(DefaultDebounce)
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = Duration(DefaultCallTimeout)
	}
	if config.LogLines <= 0 {
		config.LogLines = DefaultLogLines
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks field values.
func (c *Config) Validate() error {
	if _, ok := runner.ParseMode(c.Mode); !ok {
		return fmt.Errorf("invalid mode %q: want debug, profile or release", c.Mode)
	}
	return nil
}

// RunOptions converts the config into run client defaults for projectDir.
func (c *Config) RunOptions(projectDir string) runner.Options {
	mode, _ := runner.ParseMode(c.Mode)
	return runner.Options{
		FlutterPath: c.FlutterPath,
		ProjectDir:  projectDir,
		DeviceID:    c.Device,
		Target:      c.Target,
		Flavor:      c.Flavor,
		Mode:        mode,
		DartDefines: c.DartDefines,
		ExtraArgs:   c.RunArgs,
	}
}

// WatchDirs returns the watch paths resolved against projectDir.
func (c *Config) WatchDirs(projectDir string) []string {
	dirs := make([]string, 0, len(c.Watch.Paths))
	for _, p := range c.Watch.Paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(projectDir, p)
		}
		dirs = append(dirs, p)
	}
	return dirs
}

// FindProjectRoot walks up from dir to the nearest directory holding a
// pubspec.yaml.
func FindProjectRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, PubspecName)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNoProject
		}
		dir = parent
	}
}
