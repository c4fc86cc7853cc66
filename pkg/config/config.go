// Package config holds the run configuration for funcdoctor.
//
// Values are layered: built-in defaults, then the user configuration file
// under the XDG config directory, then the project or explicitly named
// configuration file, then FUNC_DOCTOR_* environment variables. A Config is
// an ordinary value handed to whatever needs it.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"github.com/sirupsen/logrus"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "FUNC_DOCTOR_"

	// LogLevelAlias is an additional variable honored for the log level.
	LogLevelAlias = "AZURE_FUNCTIONS_DOCTOR_LOG_LEVEL"

	// ProjectFile is looked up in the project directory.
	ProjectFile = ".funcdoctor.toml"

	// UserFile is looked up under the XDG config directories.
	UserFile = "funcdoctor/config.toml"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the complete run configuration.
type Config struct {
	LogLevel             string `toml:"log_level"`
	LogFormat            string `toml:"log_format"`
	MaxFileSizeMB        int    `toml:"max_file_size_mb"`
	SearchTimeoutSeconds int    `toml:"search_timeout_seconds"`
	OutputWidth          int    `toml:"output_width"`
	CustomRules          string `toml:"custom_rules"`
	EnableColors         bool   `toml:"enable_colors"`
	ParallelExecution    bool   `toml:"parallel_execution"`
	Python               string `toml:"python"`

	// Sources lists the files that were applied, in order.
	Sources []string `toml:"-"`

	// Warnings collects ignored environment values and similar problems
	// found before a logger exists.
	Warnings []string `toml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:             "warning",
		LogFormat:            FormatText,
		MaxFileSizeMB:        10,
		SearchTimeoutSeconds: 30,
		OutputWidth:          120,
		EnableColors:         true,
	}
}

// Validate reports the first invalid value.
func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log_level: %w", err)
	}
	if c.LogFormat != FormatText && c.LogFormat != FormatJSON {
		return fmt.Errorf("config: log_format must be %q or %q, got %q", FormatText, FormatJSON, c.LogFormat)
	}
	if c.MaxFileSizeMB <= 0 {
		return fmt.Errorf("config: max_file_size_mb must be positive, got %d", c.MaxFileSizeMB)
	}
	if c.SearchTimeoutSeconds <= 0 {
		return fmt.Errorf("config: search_timeout_seconds must be positive, got %d", c.SearchTimeoutSeconds)
	}
	if c.OutputWidth <= 0 {
		return fmt.Errorf("config: output_width must be positive, got %d", c.OutputWidth)
	}
	return nil
}

// MaxFileSize returns the file size limit in bytes.
func (c Config) MaxFileSize() int64 {
	return int64(c.MaxFileSizeMB) << 20
}

// SearchTimeout returns the deadline for a whole diagnostic run.
func (c Config) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutSeconds) * time.Second
}

// CustomRulesPath returns the custom rules document, or "" when none is
// configured or the configured file does not exist.
func (c *Config) CustomRulesPath() string {
	if c.CustomRules == "" {
		return ""
	}
	if _, err := os.Stat(c.CustomRules); err != nil {
		c.warnf("custom rules path does not exist: %s", c.CustomRules)
		return ""
	}
	return c.CustomRules
}

// NewLogger returns a logger writing to w at the configured level and format.
func (c Config) NewLogger(w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if c.LogFormat == FormatJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	return logger
}

// Load builds the configuration for a run against projectDir. file, when
// set, names a configuration file that must exist and replaces the project
// file lookup.
func Load(file, projectDir string) (Config, error) {
	user, err := xdg.SearchConfigFile(UserFile)
	if err != nil {
		user = ""
	}
	return load(user, file, projectDir, os.LookupEnv)
}

func load(userFile, file, projectDir string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if userFile != "" {
		if err := cfg.decodeFile(userFile); err != nil {
			return Config{}, err
		}
	}

	switch {
	case file != "":
		if err := cfg.decodeFile(file); err != nil {
			return Config{}, err
		}
	case projectDir != "":
		candidate := filepath.Join(projectDir, ProjectFile)
		if _, err := os.Stat(candidate); err == nil {
			if err := cfg.decodeFile(candidate); err != nil {
				return Config{}, err
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: stat %q: %w", candidate, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg.applyEnv(lookup)
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		c.warnf("%s: unknown keys ignored: %s", path, strings.Join(keys, ", "))
	}
	c.Sources = append(c.Sources, path)
	return nil
}

// applyEnv overrides fields from the environment. A value that does not
// parse, or that would make the configuration invalid, is ignored with a
// warning.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string, check func(string) error) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		if check != nil {
			if err := check(v); err != nil {
				c.warnf("invalid value for %s: %q", key, v)
				return
			}
		}
		*dst = v
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			c.warnf("invalid integer value for %s: %q", key, v)
			return
		}
		*dst = n
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			*dst = parseBool(v)
		}
	}

	checkLevel := func(v string) error {
		_, err := logrus.ParseLevel(v)
		return err
	}
	checkFormat := func(v string) error {
		if v != FormatText && v != FormatJSON {
			return fmt.Errorf("unknown format")
		}
		return nil
	}

	str(LogLevelAlias, &c.LogLevel, checkLevel)
	str(EnvPrefix+"LOG_LEVEL", &c.LogLevel, checkLevel)
	str(EnvPrefix+"LOG_FORMAT", &c.LogFormat, checkFormat)
	num(EnvPrefix+"MAX_FILE_SIZE_MB", &c.MaxFileSizeMB)
	num(EnvPrefix+"SEARCH_TIMEOUT_SECONDS", &c.SearchTimeoutSeconds)
	num(EnvPrefix+"OUTPUT_WIDTH", &c.OutputWidth)
	str(EnvPrefix+"CUSTOM_RULES", &c.CustomRules, nil)
	flag(EnvPrefix+"ENABLE_COLORS", &c.EnableColors)
	flag(EnvPrefix+"PARALLEL_EXECUTION", &c.ParallelExecution)
	str(EnvPrefix+"PYTHON", &c.Python, nil)
}

func (c *Config) warnf(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// parseBool accepts true, 1, yes and on in any case; everything else is false.
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
