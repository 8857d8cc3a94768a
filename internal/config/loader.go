package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// checkConfigFilePermissions returns an error if a config file grants any
// permission to group or others, which makes Load fail. Config files can
// contain key file paths and bootstrap peer topology.
func checkConfigFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // file access errors are handled by the caller
	}
	mode := info.Mode().Perm()
	if mode&0077 != 0 {
		return fmt.Errorf("config file %s has overly permissive mode %04o; expected 0600 — fix with: chmod 600 %s", path, mode, path)
	}
	return nil
}

// Load reads and validates a Config from a YAML file at path, filling
// unset fields with defaults and resolving human-readable duration and
// byte-size strings.
func Load(path string) (*Config, error) {
	if err := checkConfigFilePermissions(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Version > CurrentConfigVersion {
		return nil, fmt.Errorf("%w: version %d is newer than supported version %d; please upgrade linkd", ErrConfigVersionTooNew, cfg.Version, CurrentConfigVersion)
	}

	if cfg.Replication.FetchLimitBase != "" {
		n, err := ParseDataSize(cfg.Replication.FetchLimitBase)
		if err != nil {
			return nil, fmt.Errorf("replication.fetch_limit_base: %w", err)
		}
		cfg.Replication.FetchLimitBytes = n
	}

	return &cfg, nil
}

// Validate checks that a loaded Config satisfies the runtime's minimum
// requirements.
func Validate(cfg *Config) error {
	if cfg.Identity.KeyFile == "" {
		return fmt.Errorf("identity.key_file is required")
	}
	if cfg.Transport.ListenAddress == "" {
		return fmt.Errorf("transport.listen_address is required")
	}
	if cfg.Membership.MaxActive <= 0 {
		return fmt.Errorf("membership.max_active must be positive")
	}
	if cfg.Membership.MaxPassive <= 0 {
		return fmt.Errorf("membership.max_passive must be positive")
	}
	if cfg.Storage.Root == "" {
		return fmt.Errorf("storage.root is required")
	}
	if cfg.Replication.FetchLimitBytes <= 0 {
		return fmt.Errorf("replication.fetch_limit_base must resolve to a positive byte count")
	}
	if cfg.RPC.RequestSocket == "" {
		return fmt.Errorf("rpc.request_socket is required")
	}
	return nil
}

// FindConfigFile searches for a linkd config file in standard locations.
// Search order: explicitPath (if given), ./linkd.yaml,
// ~/.config/linkd/config.yaml, /etc/linkd/config.yaml.
func FindConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, explicitPath)
		}
		return explicitPath, nil
	}

	searchPaths := []string{"linkd.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(home, ".config", "linkd", "config.yaml"))
	}
	searchPaths = append(searchPaths, filepath.Join("/etc", "linkd", "config.yaml"))

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w; searched:\n  %s", ErrConfigNotFound, strings.Join(searchPaths, "\n  "))
}

// ResolveConfigPaths resolves relative file paths in the config to be
// relative to the config file's directory.
func ResolveConfigPaths(cfg *Config, configDir string) {
	if cfg.Identity.KeyFile != "" && !filepath.IsAbs(cfg.Identity.KeyFile) {
		cfg.Identity.KeyFile = filepath.Join(configDir, cfg.Identity.KeyFile)
	}
	if cfg.Storage.Root != "" && !filepath.IsAbs(cfg.Storage.Root) {
		cfg.Storage.Root = filepath.Join(configDir, cfg.Storage.Root)
	}
	if cfg.RPC.RequestSocket != "" && !filepath.IsAbs(cfg.RPC.RequestSocket) {
		cfg.RPC.RequestSocket = filepath.Join(configDir, cfg.RPC.RequestSocket)
	}
	if cfg.RPC.EventSocket != "" && !filepath.IsAbs(cfg.RPC.EventSocket) {
		cfg.RPC.EventSocket = filepath.Join(configDir, cfg.RPC.EventSocket)
	}
}

// DefaultConfigDir returns the default linkd config directory
// (~/.config/linkd).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "linkd"), nil
}

// ParseDataSize parses a human-readable data size string (e.g. "128KB",
// "64MB", "1GB") and returns the value in bytes. Supported suffixes: B,
// KB, MB, GB (case-insensitive).
func ParseDataSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty data size")
	}

	s = strings.ToUpper(s)
	var multiplier int64 = 1
	var numStr string

	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1024 * 1024
		numStr = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1024
		numStr = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		numStr = strings.TrimSuffix(s, "B")
	default:
		numStr = s
	}

	numStr = strings.TrimSpace(numStr)
	val, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid data size %q: %w", s, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("data size must be non-negative: %s", s)
	}
	return val * multiplier, nil
}
