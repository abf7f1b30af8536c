// Package config assembles the application configuration from
// layered sources: defaults < config file < environment < flags.
// Core packages never read the environment themselves; everything
// is resolved here once and threaded in explicitly.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kmladek/agentsessions/internal/provider"
)

// Config holds all application configuration.
type Config struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	DataDir         string        `json:"data_dir"`
	CacheDir        string        `json:"cache_dir"`
	DisableCache    bool          `json:"disable_disk_cache"`
	RefreshInterval time.Duration `json:"-"`
	LogFile         string        `json:"log_file,omitempty"`

	ClaudeHome string `json:"claude_home,omitempty"`
	CodexHome  string `json:"codex_home,omitempty"`
	GeminiHome string `json:"gemini_home,omitempty"`

	// home is kept so ProviderRoots can expand registry-relative
	// extra roots.
	home string
}

// Default returns a Config with default values.
func Default() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("determining home directory: %w", err)
	}
	return Config{
		Host:            "127.0.0.1",
		Port:            8636,
		DataDir:         filepath.Join(home, ".agentsessions"),
		CacheDir:        defaultCacheDir(home),
		RefreshInterval: 5 * time.Second,
		home:            home,
	}, nil
}

func defaultCacheDir(home string) string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "agent-sessions")
	}
	return filepath.Join(home, ".cache", "agent-sessions")
}

// Load builds a Config by layering defaults, the config file, the
// environment, and explicitly set flags. The FlagSet must already
// be parsed by the caller.
func Load(fs *flag.FlagSet) (Config, error) {
	cfg, err := Default()
	if err != nil {
		return cfg, err
	}
	if err := cfg.loadFile(); err != nil {
		return cfg, fmt.Errorf("loading config file: %w", err)
	}
	cfg.loadEnv()
	cfg.applyFlags(fs)
	return cfg, nil
}

func (c *Config) configPath() string {
	return filepath.Join(c.DataDir, "config.json")
}

func (c *Config) loadFile() error {
	data, err := os.ReadFile(c.configPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var file struct {
		Host            string `json:"host"`
		Port            int    `json:"port"`
		CacheDir        string `json:"cache_dir"`
		DisableCache    *bool  `json:"disable_disk_cache"`
		RefreshInterval string `json:"refresh_interval"`
		LogFile         string `json:"log_file"`
		ClaudeHome      string `json:"claude_home"`
		CodexHome       string `json:"codex_home"`
		GeminiHome      string `json:"gemini_home"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if file.Host != "" {
		c.Host = file.Host
	}
	if file.Port != 0 {
		c.Port = file.Port
	}
	if file.CacheDir != "" {
		c.CacheDir = file.CacheDir
	}
	if file.DisableCache != nil {
		c.DisableCache = *file.DisableCache
	}
	if file.RefreshInterval != "" {
		d, err := time.ParseDuration(file.RefreshInterval)
		if err != nil {
			return fmt.Errorf("parsing refresh_interval: %w", err)
		}
		c.RefreshInterval = d
	}
	if file.LogFile != "" {
		c.LogFile = file.LogFile
	}
	if file.ClaudeHome != "" {
		c.ClaudeHome = file.ClaudeHome
	}
	if file.CodexHome != "" {
		c.CodexHome = file.CodexHome
	}
	if file.GeminiHome != "" {
		c.GeminiHome = file.GeminiHome
	}
	return nil
}

func (c *Config) loadEnv() {
	if v := os.Getenv("CLAUDE_HOME"); v != "" {
		c.ClaudeHome = v
	}
	if v := os.Getenv("CODEX_HOME"); v != "" {
		c.CodexHome = v
	}
	if v := os.Getenv("GEMINI_HOME"); v != "" {
		c.GeminiHome = v
	}
	if v := os.Getenv("AGENT_SESSIONS_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("AGENT_SESSIONS_CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if envTrue("AGENT_SESSIONS_DISABLE_DISK_CACHE") {
		c.DisableCache = true
	}
	if v := os.Getenv("AGENT_SESSIONS_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RefreshInterval = d
		} else if secs, err := strconv.ParseFloat(v, 64); err == nil {
			c.RefreshInterval = time.Duration(secs * float64(time.Second))
		}
	}
	if v := os.Getenv("AGENT_SESSIONS_LOG_FILE"); v != "" {
		c.LogFile = v
	}
}

func envTrue(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// RegisterFlags registers serve flags on fs. The caller must call
// fs.Parse before passing fs to Load.
func RegisterFlags(fs *flag.FlagSet) {
	fs.String("host", "127.0.0.1", "Host to bind to")
	fs.Int("port", 8636, "Port to listen on")
	fs.String("cache-dir", "", "Disk cache directory")
	fs.Bool("no-disk-cache", false, "Disable the disk cache")
	fs.Duration("refresh-interval", 5*time.Second,
		"Interval between background refreshes (0 disables)")
	fs.String("log-file", "", "Log to a rotating file instead of stderr")
}

// applyFlags copies explicitly-set flags from fs into c.
func (c *Config) applyFlags(fs *flag.FlagSet) {
	if fs == nil {
		return
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			c.Host = f.Value.String()
		case "port":
			c.Port, _ = strconv.Atoi(f.Value.String())
		case "cache-dir":
			c.CacheDir = f.Value.String()
		case "no-disk-cache":
			c.DisableCache = f.Value.String() == "true"
		case "refresh-interval":
			c.RefreshInterval, _ = time.ParseDuration(f.Value.String())
		case "log-file":
			c.LogFile = f.Value.String()
		}
	})
}

// ProviderRoots resolves the scan roots for every registered
// provider. An explicit home override replaces the default root;
// registry extra roots are always appended so OS-specific locations
// stay covered.
func (c *Config) ProviderRoots() map[string][]string {
	overrides := map[string]string{
		provider.IDClaude: c.ClaudeHome,
		provider.IDCodex:  c.CodexHome,
		provider.IDGemini: c.GeminiHome,
	}

	roots := make(map[string][]string, len(provider.Registry))
	for _, def := range provider.Registry {
		var dirs []string
		if override := overrides[def.ID]; override != "" {
			dirs = append(dirs, override)
		} else {
			dirs = append(dirs, filepath.Join(c.home, def.HomeSubdir))
		}
		for _, extra := range def.ExtraRoots {
			dirs = append(dirs, filepath.Join(c.home, extra))
		}
		roots[def.ID] = dirs
	}
	return roots
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
