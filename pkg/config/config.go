// Package config loads and validates the flashgrep configuration file,
// layering defaults, the on-disk config.json, and FLASHGREP_* environment
// overrides via koanf. Unknown keys found in the file survive a
// load-then-save round trip; invalid values fail fast with the offending
// key named.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/flashgrep/flashgrep/pkg/chunk"
)

// StateDirName is the fixed state-directory name at a repository root.
const StateDirName = ".flashgrep"

// EnvPrefix is the prefix for environment-variable overrides.
const EnvPrefix = "FLASHGREP_"

// DefaultMCPPort is the default TCP loopback port for the request envelope.
const DefaultMCPPort = 7777

// DefaultMaxFileSize is the default per-file size gate, in bytes (2 MiB).
const DefaultMaxFileSize = 2 * 1024 * 1024

// Config is the flashgrep configuration file's recognized fields.
type Config struct {
	Version            string   `koanf:"version" json:"version"`
	MCPPort            int      `koanf:"mcp_port" json:"mcp_port"`
	UseUnixSocket      bool     `koanf:"use_unix_socket" json:"use_unix_socket"`
	SocketPath         string   `koanf:"socket_path" json:"socket_path"`
	MaxFileSize        int64    `koanf:"max_file_size" json:"max_file_size"`
	MaxChunkLines      int      `koanf:"max_chunk_lines" json:"max_chunk_lines"`
	Extensions         []string `koanf:"extensions" json:"extensions"`
	IgnoredDirs        []string `koanf:"ignored_dirs" json:"ignored_dirs"`
	DebounceMS         int      `koanf:"debounce_ms" json:"debounce_ms"`
	EnableInitialIndex bool     `koanf:"enable_initial_index" json:"enable_initial_index"`
	ProgressInterval   int      `koanf:"progress_interval" json:"progress_interval"`
	IndexStatePath     string   `koanf:"index_state_path" json:"index_state_path"`

	// raw carries every loaded key, including ones this struct doesn't
	// recognize, so Save can round-trip them unchanged.
	raw map[string]interface{}
}

func defaultUseUnixSocket() bool {
	return useUnixSocketDefault
}

// defaults returns the layered-config base, grounded on
// original_source/src/config/mod.rs's default_* functions plus the
// progress_interval/enable_initial_index/index_state_path fields this
// implementation adds.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"version":              "1",
		"mcp_port":             DefaultMCPPort,
		"use_unix_socket":      defaultUseUnixSocket(),
		"socket_path":          ".flashgrep/mcp.sock",
		"max_file_size":        DefaultMaxFileSize,
		"max_chunk_lines":      chunk.MaxChunkLines,
		"extensions":           []string{"go", "rs", "js", "ts", "jsx", "tsx", "py", "sol", "json", "md", "yaml", "yml", "toml"},
		"ignored_dirs":         []string{".git", "node_modules", "target", "dist", "build", "vendor", StateDirName},
		"debounce_ms":          500,
		"enable_initial_index": true,
		"progress_interval":    100,
		"index_state_path":     "filestate.json",
	}
}

// Load builds a Config by layering defaults, the file at path (if it
// exists), then FLASHGREP_* environment overrides, in that order. An
// invalid value fails with the offending key named.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: loading defaults: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: stat %s: %w", path, err)
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envTransform,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("config: reading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	cfg.raw = k.All()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// listKeys are config keys whose environment-variable form is a
// comma-separated list rather than a scalar.
var listKeys = map[string]bool{
	"extensions":   true,
	"ignored_dirs": true,
}

// boolKeys/intKeys name keys whose environment-variable string must be
// parsed before koanf's loosely-typed decoder sees it, so a malformed
// override fails at load time with the key named rather than silently
// stringifying into the wrong field.
var boolKeys = map[string]bool{
	"use_unix_socket":      true,
	"enable_initial_index": true,
}

var intKeys = map[string]bool{
	"mcp_port":          true,
	"max_file_size":     true,
	"max_chunk_lines":   true,
	"debounce_ms":       true,
	"progress_interval": true,
}

func envTransform(k, v string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(k, EnvPrefix))

	switch {
	case listKeys[key]:
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return key, parts
	case boolKeys[key]:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return key, v // left as a string; decoding it into the bool field fails in Load
		}
		return key, b
	case intKeys[key]:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return key, v
		}
		return key, n
	default:
		return key, v
	}
}

// validate checks the constraints §6 calls out, returning an error that
// names the offending key.
func (c *Config) validate() error {
	switch {
	case c.Version == "":
		return fmt.Errorf("config: invalid value for %q: must not be empty", "version")
	case c.MCPPort < 1 || c.MCPPort > 65535:
		return fmt.Errorf("config: invalid value for %q: %d is not a valid TCP port", "mcp_port", c.MCPPort)
	case c.MaxFileSize <= 0:
		return fmt.Errorf("config: invalid value for %q: must be positive, got %d", "max_file_size", c.MaxFileSize)
	case c.MaxChunkLines <= 0:
		return fmt.Errorf("config: invalid value for %q: must be positive, got %d", "max_chunk_lines", c.MaxChunkLines)
	case c.DebounceMS < 0:
		return fmt.Errorf("config: invalid value for %q: must not be negative, got %d", "debounce_ms", c.DebounceMS)
	case c.ProgressInterval <= 0:
		return fmt.Errorf("config: invalid value for %q: must be positive, got %d", "progress_interval", c.ProgressInterval)
	case c.IndexStatePath == "":
		return fmt.Errorf("config: invalid value for %q: must not be empty", "index_state_path")
	case c.SocketPath == "" && c.UseUnixSocket:
		return fmt.Errorf("config: invalid value for %q: required when use_unix_socket is true", "socket_path")
	}
	return nil
}

// Save writes the config back to path, preserving any unknown keys that
// were present when it was loaded. Writes are atomic via temp-then-rename.
func (c *Config) Save(path string) error {
	merged := make(map[string]interface{}, len(c.raw)+12)
	for k, v := range c.raw {
		merged[k] = v
	}
	merged["version"] = c.Version
	merged["mcp_port"] = c.MCPPort
	merged["use_unix_socket"] = c.UseUnixSocket
	merged["socket_path"] = c.SocketPath
	merged["max_file_size"] = c.MaxFileSize
	merged["max_chunk_lines"] = c.MaxChunkLines
	merged["extensions"] = c.Extensions
	merged["ignored_dirs"] = c.IgnoredDirs
	merged["debounce_ms"] = c.DebounceMS
	merged["enable_initial_index"] = c.EnableInitialIndex
	merged["progress_interval"] = c.ProgressInterval
	merged["index_state_path"] = c.IndexStatePath

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(merged, "."), nil); err != nil {
		return err
	}
	data, err := k.Marshal(json.Parser())
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ExtensionSet returns Extensions as a lookup set keyed by bare (undotted,
// lowercased) extension, matching the glob/scanner extension-match
// convention of accepting both dotted and undotted forms.
func (c *Config) ExtensionSet() map[string]bool {
	set := make(map[string]bool, len(c.Extensions))
	for _, ext := range c.Extensions {
		ext = strings.ToLower(strings.TrimPrefix(ext, "."))
		set[ext] = true
	}
	return set
}

// IgnoredDirSet returns IgnoredDirs as a lookup set.
func (c *Config) IgnoredDirSet() map[string]bool {
	set := make(map[string]bool, len(c.IgnoredDirs))
	for _, d := range c.IgnoredDirs {
		set[d] = true
	}
	return set
}
