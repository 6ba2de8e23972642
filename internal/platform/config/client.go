package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Client is the terminal client's configuration: a YAML file overlaid by
// command line flags.
type Client struct {
	API      API    `yaml:"api"`
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`
	// Open is the navigation target to start at; flag only.
	Open string `yaml:"-"`
}

type API struct {
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// DefaultClient returns the built-in client settings.
func DefaultClient() Client {
	return Client{
		API: API{
			BaseURL:   "http://localhost:8080",
			Timeout:   30 * time.Second,
			UserAgent: "certctl",
		},
		DataDir:  defaultDataDir(),
		LogLevel: "info",
		Open:     "/",
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "certctl")
	}
	return ".certctl"
}

// DefaultClientConfigPath is where LoadClient looks when no path is given.
func DefaultClientConfigPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}

// LoadClient reads path over the defaults. A missing file is not an error.
func LoadClient(path string) (Client, error) {
	cfg := DefaultClient()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Client{}, fmt.Errorf("read client config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Client{}, fmt.Errorf("parse client config %s: %w", path, err)
	}
	return cfg, nil
}

// ClientFlags are the global flags shared by every certctl subcommand.
type ClientFlags struct {
	fs         *pflag.FlagSet
	ConfigPath string
	APIURL     string
	DataDir    string
	Open       string
	LogLevel   string
}

// RegisterClientFlags adds the global flags to fs.
func RegisterClientFlags(fs *pflag.FlagSet) *ClientFlags {
	f := &ClientFlags{fs: fs}
	fs.StringVar(&f.ConfigPath, "config", DefaultClientConfigPath(), "path to the YAML config file")
	fs.StringVar(&f.APIURL, "api", "", "certificate backend base URL")
	fs.StringVar(&f.DataDir, "data-dir", "", "directory for the session database and logs")
	fs.StringVar(&f.Open, "open", "", "navigation target to open, e.g. \"/?success=true\"")
	fs.StringVar(&f.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	return f
}

// Apply overlays the flags that were set explicitly onto cfg.
func (f *ClientFlags) Apply(cfg *Client) {
	if f.fs.Changed("api") {
		cfg.API.BaseURL = f.APIURL
	}
	if f.fs.Changed("data-dir") {
		cfg.DataDir = f.DataDir
	}
	if f.fs.Changed("open") {
		cfg.Open = f.Open
	}
	if f.fs.Changed("log-level") {
		cfg.LogLevel = f.LogLevel
	}
}

// DatabasePath is the SQLite file backing local storage.
func (c Client) DatabasePath() string {
	return filepath.Join(c.DataDir, "storage.db")
}

// LogPath is the client's log file.
func (c Client) LogPath() string {
	return filepath.Join(c.DataDir, "certctl.log")
}
