package chatclient

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config carries client settings loadable from a yaml file. Flags
// override file values, file values override defaults.
type Config struct {
	// ServerURL is the service root, e.g. http://localhost:8000.
	ServerURL string `yaml:"server_url"`
	// WebsocketURL overrides the derived ws endpoint when set.
	WebsocketURL string `yaml:"websocket_url,omitempty"`
	Username     string `yaml:"username,omitempty"`
	Email        string `yaml:"email,omitempty"`
	// Conversation is the id of the conversation to activate at startup.
	Conversation string `yaml:"conversation,omitempty"`
	LogLevel     string `yaml:"log_level,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:8000",
		LogLevel:  "info",
	}
}

// DefaultConfigPath resolves ~/.config/omnichat/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve home directory")
	}
	return filepath.Join(home, ".config", "omnichat", "config.yaml"), nil
}

// LoadConfig reads a yaml config file over the defaults. A missing file
// is not an error; a malformed one is.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// ResolveWebsocketURL derives the ws endpoint from the server URL unless
// an explicit override is configured.
func (c Config) ResolveWebsocketURL() string {
	if c.WebsocketURL != "" {
		return c.WebsocketURL
	}
	u := c.ServerURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return strings.TrimRight(u, "/") + "/ws"
}
