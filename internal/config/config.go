package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config holds the ground station configuration.
type Config struct {
	// Broker connection settings
	Broker BrokerConfig `yaml:"broker"`

	// Operator HTTP/WebSocket gateway
	HTTP HTTPConfig `yaml:"http"`

	// Logging
	Log LogConfig `yaml:"log"`

	// Cap on history entries and progress samples; 0 keeps everything.
	HistoryLimit int `yaml:"history_limit"`
}

// BrokerConfig contains the MQTT connection settings.
type BrokerConfig struct {
	// Broker protocol, address and port, e.g. tcp://localhost:1883
	URL string `yaml:"url"`

	// MQTT client identifier
	ClientID string `yaml:"client_id"`

	// Plain credentials; ignored when a private key is set
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Path to an RSA private key; when set the password is a signed JWT
	PrivateKey string `yaml:"private_key"`

	// JWT audience claim
	Audience string `yaml:"audience"`
}

// HTTPConfig contains the operator gateway settings.
type HTTPConfig struct {
	// Listen address, e.g. :8080
	Listen string `yaml:"listen"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Broker: BrokerConfig{
			URL:      "tcp://localhost:1883",
			ClientID: "groundlink",
		},
		HTTP: HTTPConfig{Listen: ":8080"},
		Log:  LogConfig{Level: "info"},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config")
	}
	return cfg, nil
}
