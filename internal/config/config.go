package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHost          = "50.97.175.138"
	DefaultPort          = 1330
	DefaultClientVersion = "1871"

	EnvHost     = "WORDBIZ_HOST"
	EnvPort     = "WORDBIZ_PORT"
	EnvUsername = "WORDBIZ_USERNAME"
	EnvPassword = "WORDBIZ_PASSWORD"
)

var (
	ErrUnsupportedFormat = errors.New("config: unsupported file format")
	ErrMissingHost       = errors.New("config: missing host")
	ErrInvalidPort       = errors.New("config: invalid port")
	ErrMissingUsername   = errors.New("config: missing username")
	ErrInvalidDuration   = errors.New("config: invalid duration")
	ErrInvalidRetry      = errors.New("config: invalid retry multiplier")
)

// File is the on-disk client configuration. host, port, username and password
// are the keys the legacy JSON config carried; the rest are optional tuning.
type File struct {
	Host              string `toml:"host" yaml:"host" json:"host"`
	Port              int    `toml:"port" yaml:"port" json:"port"`
	Username          string `toml:"username" yaml:"username" json:"username"`
	Password          string `toml:"password" yaml:"password" json:"password"`
	ClientVersion     string `toml:"client_version" yaml:"client_version" json:"client_version"`
	IncrementSequence bool   `toml:"increment_sequence" yaml:"increment_sequence" json:"increment_sequence"`

	RetryInterval    string  `toml:"retry_interval" yaml:"retry_interval" json:"retry_interval"`
	RetryMultiplier  float64 `toml:"retry_multiplier" yaml:"retry_multiplier" json:"retry_multiplier"`
	RetryMaxInterval string  `toml:"retry_max_interval" yaml:"retry_max_interval" json:"retry_max_interval"`
	ConnectTimeout   string  `toml:"connect_timeout" yaml:"connect_timeout" json:"connect_timeout"`
	ReadTimeout      string  `toml:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	ReplyTimeout     string  `toml:"reply_timeout" yaml:"reply_timeout" json:"reply_timeout"`
	WriteTimeout     string  `toml:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	MaxReplyBytes    int     `toml:"max_reply_bytes" yaml:"max_reply_bytes" json:"max_reply_bytes"`

	SecurityMode          string `toml:"security_mode" yaml:"security_mode" json:"security_mode"`
	TLSEnabled            bool   `toml:"tls_enabled" yaml:"tls_enabled" json:"tls_enabled"`
	TLSMutual             bool   `toml:"tls_mutual" yaml:"tls_mutual" json:"tls_mutual"`
	TLSCAFile             string `toml:"tls_ca_file" yaml:"tls_ca_file" json:"tls_ca_file"`
	TLSCertFile           string `toml:"tls_cert_file" yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile            string `toml:"tls_key_file" yaml:"tls_key_file" json:"tls_key_file"`
	TLSServerName         string `toml:"tls_server_name" yaml:"tls_server_name" json:"tls_server_name"`
	TLSInsecureSkipVerify bool   `toml:"tls_insecure_skip_verify" yaml:"tls_insecure_skip_verify" json:"tls_insecure_skip_verify"`

	AdminListenAddr  string   `toml:"admin_listen_addr" yaml:"admin_listen_addr" json:"admin_listen_addr"`
	AdminCorsOrigins []string `toml:"admin_cors_origins" yaml:"admin_cors_origins" json:"admin_cors_origins"`
	AdminToken       string   `toml:"admin_token" yaml:"admin_token" json:"admin_token"`
	LogLevel         string   `toml:"log_level" yaml:"log_level" json:"log_level"`
	LogFile          string   `toml:"log_file" yaml:"log_file" json:"log_file"`
}

// Default is the configuration used for every key a file leaves out.
func Default() File {
	return File{
		Host:             DefaultHost,
		Port:             DefaultPort,
		ClientVersion:    DefaultClientVersion,
		RetryInterval:    "1s",
		RetryMultiplier:  1,
		RetryMaxInterval: "30s",
		ConnectTimeout:   "2s",
		ReadTimeout:      "10ms",
		ReplyTimeout:     "1s",
		WriteTimeout:     "2s",
		MaxReplyBytes:    4096,
		SecurityMode:     "development",
	}
}

// LoadFile decodes path over the defaults, applies env overrides and
// validates. The decoder follows the extension: .toml, .yaml/.yml or .json.
func LoadFile(path string) (File, error) {
	cfg, err := DecodeFile(path)
	if err != nil {
		return File{}, err
	}
	ApplyEnv(&cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return File{}, err
	}
	return cfg, nil
}

// DecodeFile reads path over the defaults without env overrides or validation.
func DecodeFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg := Default()
	if err := decode(formatOf(path), data, &cfg); err != nil {
		return File{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return cfg, nil
}

func formatOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func decode(format string, data []byte, out *File) error {
	switch format {
	case "toml":
		_, err := toml.Decode(string(data), out)
		return err
	case "yaml", "yml":
		return yaml.Unmarshal(data, out)
	case "json":
		return json.Unmarshal(data, out)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// ApplyEnv overlays WORDBIZ_* variables. lookup is os.LookupEnv outside tests.
func ApplyEnv(cfg *File, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvHost); ok && strings.TrimSpace(v) != "" {
		cfg.Host = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPort); ok && strings.TrimSpace(v) != "" {
		if port, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.Port = port
		} else {
			cfg.Port = -1
		}
	}
	if v, ok := lookup(EnvUsername); ok && strings.TrimSpace(v) != "" {
		cfg.Username = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvPassword); ok && v != "" {
		cfg.Password = v
	}
}

// Validate checks what the client cannot run without. An empty password is
// allowed here; the CLI prompts for it.
func (c File) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return ErrMissingHost
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if strings.TrimSpace(c.Username) == "" {
		return ErrMissingUsername
	}
	if c.RetryMultiplier < 1 {
		return fmt.Errorf("%w: %v", ErrInvalidRetry, c.RetryMultiplier)
	}
	for name, raw := range c.durations() {
		if _, err := parsePositive(name, raw); err != nil {
			return err
		}
	}
	return nil
}

func (c File) durations() map[string]string {
	return map[string]string{
		"retry_interval":     c.RetryInterval,
		"retry_max_interval": c.RetryMaxInterval,
		"connect_timeout":    c.ConnectTimeout,
		"read_timeout":       c.ReadTimeout,
		"reply_timeout":      c.ReplyTimeout,
		"write_timeout":      c.WriteTimeout,
	}
}

func parsePositive(name, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %v", ErrInvalidDuration, name, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s=%q must be positive", ErrInvalidDuration, name, raw)
	}
	return d, nil
}
