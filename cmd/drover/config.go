package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/drover/cloak"
)

// config is the top-level drover configuration.
type config struct {
	Listen    string        `yaml:"listen"`
	Database  string        `yaml:"database"`
	ExportDir string        `yaml:"export_dir"`
	Browser   browserConfig `yaml:"browser"`
	Cloak     cloakConfig   `yaml:"cloak"`
}

// browserConfig controls Chrome lifecycle.
type browserConfig struct {
	Remote     string        `yaml:"remote"` // websocket URL of an external Chrome
	Headful    bool          `yaml:"headful"`
	NavTimeout time.Duration `yaml:"nav_timeout"`
}

// cloakConfig seeds the identity pool and delay policy. Values stored
// in the database take precedence after the first admin change.
type cloakConfig struct {
	UserAgents []string          `yaml:"user_agents"`
	Proxies    []cloak.Proxy     `yaml:"proxies"`
	Delay      cloak.DelayPolicy `yaml:"delay"`
}

// loadConfig reads a YAML configuration file. An empty path returns
// the defaults.
func loadConfig(path string) (*config, error) {
	var cfg config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8077"
	}
	if c.Database == "" {
		c.Database = "drover.db"
	}
	if c.ExportDir == "" {
		c.ExportDir = "exports"
	}
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
}
