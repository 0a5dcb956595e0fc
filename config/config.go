// Package config resolves the settings of the command line tools. Values
// come from, in increasing precedence: built-in defaults, the YAML config
// file, a .env file, environment variables and command line flags.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Christopher-Hayes/mutter-desktop/internal/common"
	"github.com/Christopher-Hayes/mutter-desktop/socket"
	"github.com/goccy/go-yaml"
)

// Transports understood by Transport.
const (
	TransportDBus   = "dbus"
	TransportSocket = "socket"
)

// Config holds every setting of the desktop tools.
type Config struct {
	Transport      string            `yaml:"transport"`
	SocketPath     string            `yaml:"socket"`
	Timeout        string            `yaml:"timeout"`
	Postgres       string            `yaml:"postgres"`
	Webhook        string            `yaml:"webhook"`
	WebhookHeaders map[string]string `yaml:"webhook_headers"`
	WebhookTimeout string            `yaml:"webhook_timeout"`
	Debug          bool              `yaml:"debug"`
	Verbose        bool              `yaml:"verbose"`
}

var _ io.ReaderFrom = (*Config)(nil)

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Transport:  TransportDBus,
		SocketPath: socket.DefaultPath(),
	}
}

// DefaultPath returns ~/.config/mutter-desktop/config.yaml, or a relative
// path when the user config directory is unknown.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "mutter-desktop.yaml"
	}
	return filepath.Join(dir, "mutter-desktop", "config.yaml")
}

// Load returns the defaults overlaid with the file at path. A missing file
// is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if _, err := cfg.ReadFrom(f); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ReadFrom overlays the YAML document read from r onto cfg.
func (cfg *Config) ReadFrom(r io.Reader) (int64, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return int64(len(b)), fmt.Errorf("unable to read: %w", err)
	}
	return int64(len(b)), yaml.Unmarshal(b, cfg)
}

// ApplyEnv overrides settings with the environment variables that are set.
func (cfg *Config) ApplyEnv() {
	if v := os.Getenv(common.EnvTransport); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv(common.EnvSocket); v != "" {
		cfg.SocketPath = v
	}
	if v := os.Getenv(common.EnvPostgres); v != "" {
		cfg.Postgres = v
	}
	if v := os.Getenv(common.EnvWebhook); v != "" {
		cfg.Webhook = v
	}
}

// RequestTimeout parses Timeout. Zero means requests wait indefinitely.
func (cfg Config) RequestTimeout() (time.Duration, error) {
	return parseTimeout("timeout", cfg.Timeout)
}

// WebhookRequestTimeout parses WebhookTimeout. Zero keeps the webhook
// client's default.
func (cfg Config) WebhookRequestTimeout() (time.Duration, error) {
	return parseTimeout("webhook_timeout", cfg.WebhookTimeout)
}

func parseTimeout(name, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %v", name, d)
	}
	return d, nil
}

// Validate checks critical configuration before connecting
func (cfg Config) Validate() error {
	switch cfg.Transport {
	case TransportDBus:
		if os.Getenv("WAYLAND_DISPLAY") == "" && os.Getenv("DISPLAY") == "" {
			return fmt.Errorf("no graphical display found (neither WAYLAND_DISPLAY nor DISPLAY set)\nMake sure you're running this in a graphical session, or use --transport socket")
		}
	case TransportSocket:
		if cfg.SocketPath == "" {
			return fmt.Errorf("socket transport selected but no socket path configured")
		}
	default:
		return fmt.Errorf("unknown transport %q (want %q or %q)", cfg.Transport, TransportDBus, TransportSocket)
	}

	if _, err := cfg.RequestTimeout(); err != nil {
		return err
	}
	if _, err := cfg.WebhookRequestTimeout(); err != nil {
		return err
	}

	if cfg.Webhook != "" && !strings.HasPrefix(cfg.Webhook, "http://") && !strings.HasPrefix(cfg.Webhook, "https://") {
		return fmt.Errorf("webhook URL must start with http:// or https://, got %q", cfg.Webhook)
	}
	return nil
}

// LoadEnvFile loads environment variables from a .env file. Variables
// already present in the environment are left alone.
func LoadEnvFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Split on first '=' sign
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		if _, ok := os.LookupEnv(key); ok {
			continue
		}
		os.Setenv(key, value)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}
