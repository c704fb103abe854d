// Package config provides Viper-based configuration loading for the stagehand daemon.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// LibraryConfig locates the content assets loaded at boot.
type LibraryConfig struct {
	// Root is the content directory all other paths are relative to.
	Root string `mapstructure:"root"`
	// ListsDir holds the action-list YAML files.
	ListsDir string `mapstructure:"lists_dir"`
	// StagesDir holds the stage YAML files.
	StagesDir string `mapstructure:"stages_dir"`
	// VarsFile declares the global variable board defaults.
	VarsFile string `mapstructure:"vars_file"`
	// LuaDir holds the Lua hook scripts. Empty disables scripting.
	LuaDir string `mapstructure:"lua_dir"`
}

// ListsPath returns the absolute lists directory.
func (l LibraryConfig) ListsPath() string { return filepath.Join(l.Root, l.ListsDir) }

// StagesPath returns the absolute stages directory.
func (l LibraryConfig) StagesPath() string { return filepath.Join(l.Root, l.StagesDir) }

// VarsPath returns the absolute variable defaults file.
func (l LibraryConfig) VarsPath() string { return filepath.Join(l.Root, l.VarsFile) }

// LuaPath returns the absolute Lua hook directory, or "" when scripting is off.
func (l LibraryConfig) LuaPath() string {
	if l.LuaDir == "" {
		return ""
	}
	return filepath.Join(l.Root, l.LuaDir)
}

// DirectorConfig holds execution engine tuning.
type DirectorConfig struct {
	// TickInterval is the wall-clock period of one engine tick.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// ChainBudget caps how many zero-wait actions one branch chains per tick.
	ChainBudget int `mapstructure:"chain_budget"`
	// MaxBranches caps the live parallel branches of a single run.
	MaxBranches int `mapstructure:"max_branches"`
	// MaxRuns caps the number of tracked runs, finished ones included.
	MaxRuns int `mapstructure:"max_runs"`
	// MaxNesting caps how deep list.run actions may nest.
	MaxNesting int `mapstructure:"max_nesting"`
	// RetainFinished is how long terminal runs stay queryable. Negative keeps them forever.
	RetainFinished time.Duration `mapstructure:"retain_finished"`
	// ExprTimeout bounds a single check.expr evaluation.
	ExprTimeout time.Duration `mapstructure:"expr_timeout"`
	// LuaInstructionLimit bounds one lua.hook call. Zero means the sandbox default.
	LuaInstructionLimit int `mapstructure:"lua_instruction_limit"`
	// Seed fixes the random source for check.random. Zero draws a crypto seed.
	Seed int64 `mapstructure:"seed"`
	// Autostart lists the action lists started when the daemon boots.
	Autostart []string `mapstructure:"autostart"`
}

// ConsoleConfig holds the operator console acceptor settings.
type ConsoleConfig struct {
	// Enabled switches the TCP console on.
	Enabled bool `mapstructure:"enabled"`
	// Host is the bind address for the console listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the console listener.
	Port int `mapstructure:"port"`
	// ReadTimeout is the per-read timeout for console connections.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-write timeout for console connections.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// IdleTimeout is the duration of inactivity after which a warning is sent.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// IdleGracePeriod is the additional duration after IdleTimeout before disconnecting.
	IdleGracePeriod time.Duration `mapstructure:"idle_grace_period"`
	// PasswordHash is the bcrypt hash console logins must match. Empty disables auth.
	PasswordHash string `mapstructure:"password_hash"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (c ConsoleConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FeedConfig holds the WebSocket event feed settings.
type FeedConfig struct {
	// Enabled switches the feed endpoint on.
	Enabled bool `mapstructure:"enabled"`
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// Path is the URL path served, e.g. "/feed".
	Path string `mapstructure:"path"`
	// WriteTimeout is the per-message write deadline.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// Buffer is the per-client event buffer; slow clients past it are dropped.
	Buffer int `mapstructure:"buffer"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (f FeedConfig) Addr() string {
	return fmt.Sprintf("%s:%d", f.Host, f.Port)
}

// DatabaseConfig holds PostgreSQL connection settings for the run archive.
type DatabaseConfig struct {
	// Enabled switches the archive on. Off, runs live only in memory.
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// WriteTimeout bounds a single archive write.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// Config is the top-level application configuration.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Library  LibraryConfig  `mapstructure:"library"`
	Director DirectorConfig `mapstructure:"director"`
	Console  ConsoleConfig  `mapstructure:"console"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Database DatabaseConfig `mapstructure:"database"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLibrary(c.Library); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateDirector(c.Director); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateConsole(c.Console); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateFeed(c.Feed); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateDatabase(c.Database); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateLibrary(l LibraryConfig) error {
	var errs []string
	if l.Root == "" {
		errs = append(errs, "library.root must not be empty")
	}
	if l.ListsDir == "" {
		errs = append(errs, "library.lists_dir must not be empty")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateDirector(d DirectorConfig) error {
	var errs []string
	if d.TickInterval <= 0 {
		errs = append(errs, fmt.Sprintf("director.tick_interval must be positive, got %s", d.TickInterval))
	}
	if d.ChainBudget < 1 {
		errs = append(errs, fmt.Sprintf("director.chain_budget must be >= 1, got %d", d.ChainBudget))
	}
	if d.MaxBranches < 1 {
		errs = append(errs, fmt.Sprintf("director.max_branches must be >= 1, got %d", d.MaxBranches))
	}
	if d.MaxRuns < 1 {
		errs = append(errs, fmt.Sprintf("director.max_runs must be >= 1, got %d", d.MaxRuns))
	}
	if d.MaxNesting < 1 {
		errs = append(errs, fmt.Sprintf("director.max_nesting must be >= 1, got %d", d.MaxNesting))
	}
	if d.ExprTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("director.expr_timeout must be positive, got %s", d.ExprTimeout))
	}
	if d.LuaInstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("director.lua_instruction_limit must be >= 0, got %d", d.LuaInstructionLimit))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateConsole(c ConsoleConfig) error {
	if !c.Enabled {
		return nil
	}
	var errs []string
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("console.port must be 1-65535, got %d", c.Port))
	}
	if c.ReadTimeout < 0 {
		errs = append(errs, "console.read_timeout must not be negative")
	}
	if c.WriteTimeout < 0 {
		errs = append(errs, "console.write_timeout must not be negative")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateFeed(f FeedConfig) error {
	if !f.Enabled {
		return nil
	}
	var errs []string
	if f.Port < 1 || f.Port > 65535 {
		errs = append(errs, fmt.Sprintf("feed.port must be 1-65535, got %d", f.Port))
	}
	if !strings.HasPrefix(f.Path, "/") {
		errs = append(errs, fmt.Sprintf("feed.path must start with /, got %q", f.Path))
	}
	if f.Buffer < 1 {
		errs = append(errs, fmt.Sprintf("feed.buffer must be >= 1, got %d", f.Buffer))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	if !d.Enabled {
		return nil
	}
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with STAGEHAND_ prefix
	v.SetEnvPrefix("STAGEHAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("library.root", "content")
	v.SetDefault("library.lists_dir", "lists")
	v.SetDefault("library.stages_dir", "stages")
	v.SetDefault("library.vars_file", "vars.yaml")
	v.SetDefault("library.lua_dir", "")

	v.SetDefault("director.tick_interval", "100ms")
	v.SetDefault("director.chain_budget", 256)
	v.SetDefault("director.max_branches", 64)
	v.SetDefault("director.max_runs", 128)
	v.SetDefault("director.max_nesting", 8)
	v.SetDefault("director.retain_finished", "5m")
	v.SetDefault("director.expr_timeout", "100ms")
	v.SetDefault("director.lua_instruction_limit", 0)
	v.SetDefault("director.seed", 0)

	v.SetDefault("console.enabled", true)
	v.SetDefault("console.host", "127.0.0.1")
	v.SetDefault("console.port", 4004)
	v.SetDefault("console.read_timeout", "5m")
	v.SetDefault("console.write_timeout", "30s")
	v.SetDefault("console.idle_timeout", "5m")
	v.SetDefault("console.idle_grace_period", "1m")

	v.SetDefault("feed.enabled", false)
	v.SetDefault("feed.host", "127.0.0.1")
	v.SetDefault("feed.port", 8787)
	v.SetDefault("feed.path", "/feed")
	v.SetDefault("feed.write_timeout", "10s")
	v.SetDefault("feed.buffer", 256)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "stagehand")
	v.SetDefault("database.password", "stagehand")
	v.SetDefault("database.name", "stagehand")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.write_timeout", "3s")
}
