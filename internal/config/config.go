// Package config handles avmdis.toml settings and their environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/invopop/jsonschema"
)

// DefaultFile is read from the working directory when no path is given.
const DefaultFile = "avmdis.toml"

// Config represents configuration for the avmdis tool
type Config struct {
	Debug    bool   `toml:"debug" json:"debug" jsonschema:"title=Debug,description=Enable debug logging"`
	LogLevel string `toml:"log-level" json:"logLevel,omitempty" jsonschema:"title=Log Level,enum=debug,enum=info,enum=warn,enum=error"`
	LogFile  string `toml:"log-file" json:"logFile,omitempty" jsonschema:"title=Log File,description=Write logs here instead of stderr"`
	// Names is a pool names file (.json or text) used to resolve indices.
	Names string `toml:"names" json:"names,omitempty" jsonschema:"title=Names File,description=Constant pool names file used to resolve indices"`
	DB    string `toml:"db" json:"db,omitempty" jsonschema:"title=Database,description=SQLite file written by the export command"`
	// Base is the virtual address of the first dump byte, as text so hex survives TOML.
	Base    string `toml:"base" json:"base,omitempty" jsonschema:"title=Base Address,description=Virtual address of the first byte of the dump"`
	NoColor bool   `toml:"no-color" json:"noColor" jsonschema:"title=No Color,description=Disable listing colorization"`
	Format  string `toml:"format" json:"format,omitempty" jsonschema:"title=Export Format,enum=json,enum=cbor,default=json"`

	Detect Detect `toml:"detect" json:"detect"`

	// Path is the file the config was read from, if any.
	Path string `toml:"-" json:"-"`
}

// Detect configures the xref detector chain.
type Detect struct {
	Crypto     bool              `toml:"crypto" json:"crypto" jsonschema:"description=Tag references to cipher and hash helpers,default=true"`
	Unresolved bool              `toml:"unresolved" json:"unresolved" jsonschema:"description=Tag references the names file does not cover,default=true"`
	Patterns   map[string]string `toml:"patterns" json:"patterns,omitempty" jsonschema:"description=Extra tag name to regular expression pairs"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Format:   "json",
		Detect:   Detect{Crypto: true, Unresolved: true},
	}
}

// Load reads path, or DefaultFile when path is empty and that file exists,
// then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
		cfg.Path = path
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("AVMDIS_DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AVMDIS_DEBUG: %w", err)
		}
		c.Debug = b
	}
	if v, ok := os.LookupEnv("AVMDIS_NO_COLOR"); ok {
		c.NoColor = v != "" && v != "0" && !strings.EqualFold(v, "false")
	}
	if v := os.Getenv("AVMDIS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("AVMDIS_NAMES"); v != "" {
		c.Names = v
	}
	if v := os.Getenv("AVMDIS_DB"); v != "" {
		c.DB = v
	}
	if v := os.Getenv("AVMDIS_BASE"); v != "" {
		c.Base = v
	}
	return nil
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log-level %q: want debug, info, warn or error", c.LogLevel)
	}
	switch c.Format {
	case "", "json", "cbor":
	default:
		return fmt.Errorf("format %q: want json or cbor", c.Format)
	}
	if c.Base != "" {
		if _, err := strconv.ParseUint(strings.TrimSpace(c.Base), 0, 64); err != nil {
			return fmt.Errorf("base %q: %w", c.Base, err)
		}
	}
	return nil
}

// BaseAddress returns the parsed base address, zero when unset.
func (c *Config) BaseAddress() uint64 {
	v, _ := strconv.ParseUint(strings.TrimSpace(c.Base), 0, 64)
	return v
}

// Schema returns the JSON schema describing Config.
func Schema() ([]byte, error) {
	reflector := new(jsonschema.Reflector)
	bts, err := json.MarshalIndent(reflector.Reflect(&Config{}), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return bts, nil
}
