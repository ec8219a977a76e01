// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/ping-inventory/ping/lib/logging"
)

// EnvironmentVariable names the variable consulted by ResolvePath when
// no --config flag is given.
const EnvironmentVariable = "PING_CONFIG"

// DefaultPath is used when neither the flag nor the environment
// variable is set.
const DefaultPath = "config.yaml"

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Child kinds.
const (
	// KindAPI re-executes the ping binary as an API worker.
	KindAPI = "api"
	// KindCommand runs an arbitrary program.
	KindCommand = "command"
)

// Config is the complete ping configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	// PIDFile is where the master records its process id.
	PIDFile string `yaml:"pidfile"`

	// Socket, when set, is a unix socket the API worker listens on in
	// addition to its TCP port. The CLI removes it alongside a stale
	// pid file.
	Socket string `yaml:"socket"`

	// StateFile holds the master's CBOR snapshot of its children.
	StateFile string `yaml:"state_file"`

	// WatchConfig makes the master reload when this file changes.
	WatchConfig bool `yaml:"watch_config"`

	Log        LogConfig        `yaml:"log"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Datastore  DatastoreConfig  `yaml:"datastore"`

	// Children lists the supervised processes in start and drain
	// order.
	Children []ChildConfig `yaml:"children"`

	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`

	// Path is the absolute path the configuration was loaded from.
	Path string `yaml:"-"`
}

// LogConfig configures the log sinks.
type LogConfig struct {
	// Level is one of TRACE, DEBUG, INFO, SUCCESS, WARNING, ERROR,
	// CRITICAL.
	Level string `yaml:"level"`
	// File receives every record at or above Level.
	File string `yaml:"file"`
	// Error receives ERROR and above.
	Error string `yaml:"error"`
}

// SupervisorConfig tunes the master control loop.
type SupervisorConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	DrainTimeout time.Duration `yaml:"drain_timeout"`
	// KillAfterAttempts sends SIGKILL to a child still alive after
	// this many graceful drain attempts. Zero never escalates.
	KillAfterAttempts int `yaml:"kill_after_attempts"`
}

// DatastoreConfig points the API worker at its SQLite database.
type DatastoreConfig struct {
	// Path is the database file. Empty disables the datastore check.
	Path     string `yaml:"path"`
	PoolSize int    `yaml:"pool_size"`
}

// ChildConfig describes one supervised child.
type ChildConfig struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`

	// Bind and Port apply to KindAPI.
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`

	// Command and Args apply to KindCommand.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`

	// Env entries (KEY=value) are appended to the master's
	// environment.
	Env []string `yaml:"env"`

	// Dir is the working directory. Empty inherits the master's.
	Dir string `yaml:"dir"`
}

// Equal reports whether two child configurations would start the same
// process.
func (c ChildConfig) Equal(other ChildConfig) bool {
	return c.Name == other.Name &&
		c.Kind == other.Kind &&
		c.Bind == other.Bind &&
		c.Port == other.Port &&
		c.Command == other.Command &&
		slices.Equal(c.Args, other.Args) &&
		slices.Equal(c.Env, other.Env) &&
		c.Dir == other.Dir
}

// Overrides holds the fields an environment section may replace.
// Empty strings and zero durations leave the base value in place;
// a non-nil Children replaces the whole list.
type Overrides struct {
	PIDFile     string            `yaml:"pidfile"`
	Socket      string            `yaml:"socket"`
	StateFile   string            `yaml:"state_file"`
	WatchConfig *bool             `yaml:"watch_config"`
	Log         *LogConfig        `yaml:"log"`
	Supervisor  *SupervisorConfig `yaml:"supervisor"`
	Datastore   *DatastoreConfig  `yaml:"datastore"`
	Children    []ChildConfig     `yaml:"children"`
}

// DefaultChild is the child configured when children is omitted.
func DefaultChild() ChildConfig {
	return ChildConfig{Name: "api", Kind: KindAPI, Bind: "127.0.0.1", Port: 8000}
}

// Default returns the configuration used as the base before a file is
// decoded over it.
func Default() *Config {
	return &Config{
		Environment: Development,
		PIDFile:     "ping.pid",
		StateFile:   "ping.state",
		Log: LogConfig{
			Level: "DEBUG",
			File:  "logs/ping.log",
			Error: "logs/ping-error.log",
		},
		Supervisor: SupervisorConfig{
			TickInterval: time.Second,
			DrainTimeout: time.Second,
		},
		Datastore: DatastoreConfig{PoolSize: 4},
	}
}

// ResolvePath picks the configuration file: flagValue if set, else
// PING_CONFIG, else DefaultPath.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if value := os.Getenv(EnvironmentVariable); value != "" {
		return value
	}
	return DefaultPath
}

// LoadFile reads, normalizes and validates the configuration at path.
func LoadFile(path string) (*Config, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving configuration path %s: %w", path, err)
	}
	data, err := os.ReadFile(absolute)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data, filepath.Ext(absolute))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg.finish(absolute)
}

// Load resolves the configuration path from flagValue and loads it.
// When neither the flag nor PING_CONFIG names a file and DefaultPath
// does not exist, the defaults are used, resolved against the current
// directory.
func Load(flagValue string) (*Config, error) {
	path := ResolvePath(flagValue)
	cfg, err := LoadFile(path)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return cfg, err
	}
	if flagValue != "" || os.Getenv(EnvironmentVariable) != "" {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	absolute, absErr := filepath.Abs(path)
	if absErr != nil {
		return nil, fmt.Errorf("resolving configuration path %s: %w", path, absErr)
	}
	return Default().finish(absolute)
}

func (c *Config) finish(absolute string) (*Config, error) {
	c.Path = absolute
	c.applyEnvironmentOverrides()
	if len(c.Children) == 0 {
		c.Children = []ChildConfig{DefaultChild()}
	}
	c.expandPaths(filepath.Dir(absolute))

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Exists reports whether the configuration was read from a file rather
// than taken from the defaults.
func (c *Config) Exists() bool {
	_, err := os.Stat(c.Path)
	return err == nil
}

// Parse decodes data over Default without applying overrides, path
// resolution or validation. extension selects the JSON-with-comments
// preprocessor for ".json" and ".jsonc".
func Parse(data []byte, extension string) (*Config, error) {
	switch strings.ToLower(extension) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	// Decode to a node first so key spelling can be normalized before
	// the strict decode.
	var document yaml.Node
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	cfg := Default()
	if document.Kind == 0 {
		return cfg, nil
	}
	normalizeKeys(&document)

	normalized, err := yaml.Marshal(&document)
	if err != nil {
		return nil, fmt.Errorf("re-encoding configuration: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(normalized))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	return cfg, nil
}

// normalizeKeys rewrites every mapping key to lower case with dashes
// replaced by underscores.
func normalizeKeys(node *yaml.Node) {
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			if key.Kind == yaml.ScalarNode {
				key.Value = strings.ToLower(strings.ReplaceAll(key.Value, "-", "_"))
			}
		}
	}
	for _, child := range node.Content {
		normalizeKeys(child)
	}
}

// applyEnvironmentOverrides applies the section for c.Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.PIDFile != "" {
		c.PIDFile = overrides.PIDFile
	}
	if overrides.Socket != "" {
		c.Socket = overrides.Socket
	}
	if overrides.StateFile != "" {
		c.StateFile = overrides.StateFile
	}
	if overrides.WatchConfig != nil {
		c.WatchConfig = *overrides.WatchConfig
	}
	if overrides.Log != nil {
		if overrides.Log.Level != "" {
			c.Log.Level = overrides.Log.Level
		}
		if overrides.Log.File != "" {
			c.Log.File = overrides.Log.File
		}
		if overrides.Log.Error != "" {
			c.Log.Error = overrides.Log.Error
		}
	}
	if overrides.Supervisor != nil {
		if overrides.Supervisor.TickInterval != 0 {
			c.Supervisor.TickInterval = overrides.Supervisor.TickInterval
		}
		if overrides.Supervisor.DrainTimeout != 0 {
			c.Supervisor.DrainTimeout = overrides.Supervisor.DrainTimeout
		}
		if overrides.Supervisor.KillAfterAttempts != 0 {
			c.Supervisor.KillAfterAttempts = overrides.Supervisor.KillAfterAttempts
		}
	}
	if overrides.Datastore != nil {
		if overrides.Datastore.Path != "" {
			c.Datastore.Path = overrides.Datastore.Path
		}
		if overrides.Datastore.PoolSize != 0 {
			c.Datastore.PoolSize = overrides.Datastore.PoolSize
		}
	}
	if overrides.Children != nil {
		c.Children = overrides.Children
	}
}

// expandPaths expands variables in every path field and makes relative
// paths absolute against directory.
func (c *Config) expandPaths(directory string) {
	vars := map[string]string{
		"CONFIG_DIR": directory,
		"HOME":       os.Getenv("HOME"),
	}
	resolve := func(path string) string {
		path = expandVars(path, vars)
		if path == "" || filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(directory, path)
	}

	c.PIDFile = resolve(c.PIDFile)
	c.Socket = resolve(c.Socket)
	c.StateFile = resolve(c.StateFile)
	c.Log.File = resolve(c.Log.File)
	c.Log.Error = resolve(c.Log.Error)
	c.Datastore.Path = resolve(c.Datastore.Path)
	for i := range c.Children {
		c.Children[i].Dir = resolve(c.Children[i].Dir)
		// Bare program names are looked up in PATH; only explicit
		// relative paths are anchored to the configuration directory.
		command := expandVars(c.Children[i].Command, vars)
		if strings.Contains(command, "/") {
			command = resolve(command)
		}
		c.Children[i].Command = command
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, consulting
// vars before the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Environment {
	case Development, Staging, Production:
	default:
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}
	if c.PIDFile == "" {
		errs = append(errs, errors.New("pidfile is required"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.File == "" {
		errs = append(errs, errors.New("log.file is required"))
	}
	if c.Log.Error == "" {
		errs = append(errs, errors.New("log.error is required"))
	}
	if c.Supervisor.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("supervisor.tick_interval must be positive, got %s", c.Supervisor.TickInterval))
	}
	if c.Supervisor.DrainTimeout <= 0 {
		errs = append(errs, fmt.Errorf("supervisor.drain_timeout must be positive, got %s", c.Supervisor.DrainTimeout))
	}
	if c.Supervisor.KillAfterAttempts < 0 {
		errs = append(errs, fmt.Errorf("supervisor.kill_after_attempts must not be negative, got %d", c.Supervisor.KillAfterAttempts))
	}
	if c.Datastore.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("datastore.pool_size must be at least 1, got %d", c.Datastore.PoolSize))
	}

	apiChildren := 0
	seen := make(map[string]bool)
	for i, child := range c.Children {
		prefix := fmt.Sprintf("children[%d]", i)
		if child.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name is required", prefix))
		} else if seen[child.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate name %q", prefix, child.Name))
		}
		seen[child.Name] = true

		switch child.Kind {
		case KindAPI:
			apiChildren++
			if child.Bind == "" {
				errs = append(errs, fmt.Errorf("%s: bind is required for kind %q", prefix, KindAPI))
			}
			if child.Port < 1 || child.Port > 65535 {
				errs = append(errs, fmt.Errorf("%s: port must be between 1 and 65535, got %d", prefix, child.Port))
			}
		case KindCommand:
			if child.Command == "" {
				errs = append(errs, fmt.Errorf("%s: command is required for kind %q", prefix, KindCommand))
			}
		default:
			errs = append(errs, fmt.Errorf("%s: kind must be %q or %q, got %q", prefix, KindAPI, KindCommand, child.Kind))
		}
		for _, entry := range child.Env {
			if !strings.Contains(entry, "=") {
				errs = append(errs, fmt.Errorf("%s: env entry %q is not KEY=value", prefix, entry))
			}
		}
	}

	// The socket path is handed to every api child; two workers cannot
	// both listen on it.
	if c.Socket != "" && apiChildren > 1 {
		errs = append(errs, fmt.Errorf("socket is set but %d api children are configured; at most one may use it", apiChildren))
	}

	return errors.Join(errs...)
}

// EnsureDirectories creates the parent directories of the pid file,
// state file and socket.
func (c *Config) EnsureDirectories() error {
	for _, path := range []string{c.PIDFile, c.StateFile, c.Socket} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", path, err)
		}
	}
	return nil
}
