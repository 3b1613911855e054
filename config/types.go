// Package config loads client configuration from defaults, an optional YAML
// file, and environment variables, in increasing order of priority.
package config

import (
	"time"

	"github.com/quillsearch/quill-go/transport"
)

// Config is the full client configuration.
type Config struct {
	// Nodes lists the base URLs of the cluster nodes.
	Nodes []string `koanf:"nodes" json:"nodes" yaml:"nodes"`
	// Timeout bounds each physical attempt.
	Timeout time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout"`
	// MaxRetries is how many additional nodes to try after a transport
	// failure.
	MaxRetries int `koanf:"maxretries" json:"maxretries" yaml:"maxretries"`
	// RevivalDelay is how long a dead node is avoided before re-entering
	// normal selection.
	RevivalDelay time.Duration `koanf:"revivaldelay" json:"revivaldelay" yaml:"revivaldelay"`

	Auth AuthConfig `koanf:"auth" json:"auth" yaml:"auth"`
	Log  LogConfig  `koanf:"log" json:"log" yaml:"log"`
}

// AuthConfig holds optional basic-auth credentials.
type AuthConfig struct {
	Username string `koanf:"username" json:"username" yaml:"username"`
	Password string `koanf:"password" json:"password" yaml:"password"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty"`
}

// Transport converts the loaded configuration into a transport.Config.
func (c *Config) Transport() transport.Config {
	cfg := transport.Config{
		Nodes:        c.Nodes,
		Timeout:      c.Timeout,
		MaxRetries:   c.MaxRetries,
		RevivalDelay: c.RevivalDelay,
	}
	if c.Auth.Username != "" || c.Auth.Password != "" {
		cfg.BasicAuth = &transport.BasicAuth{
			Username: c.Auth.Username,
			Password: c.Auth.Password,
		}
	}
	return cfg
}
