package config

import (
	"encoding/json"
	"fmt"
	"os"

	gotoml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Template renders the defaults in the requested format with placeholder
// credentials.
func Template(format string) ([]byte, error) {
	cfg := Default()
	cfg.Username = "your-username"
	cfg.Password = "your-password"

	switch format {
	case "toml":
		return gotoml.Marshal(cfg)
	case "yaml", "yml":
		return yaml.Marshal(cfg)
	case "json":
		return json.MarshalIndent(cfg, "", "  ")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// WriteTemplate writes a starter config; the format follows the extension.
func WriteTemplate(path string, overwrite bool) error {
	out, err := Template(formatOf(path))
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, out, 0o600)
}
