package easymodel

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the datasources known to an application, keyed by name.
//
//	datasources:
//	  default:
//	    driver: mysql
//	    host: 127.0.0.1
//	    port: 3306
//	    login: root
//	    database: app
//	    encoding: utf8mb4
//	    prefix: app_
type Config struct {
	Datasources map[string]DatasourceConfig `yaml:"datasources"`
}

// DatasourceConfig describes one database connection.
type DatasourceConfig struct {
	// Name is filled from the key of the datasource in Config.
	Name          string        `yaml:"-"`
	Driver        string        `yaml:"driver"`
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Login         string        `yaml:"login"`
	Username      string        `yaml:"user"`
	Password      string        `yaml:"password"`
	Database      string        `yaml:"database"`
	Encoding      string        `yaml:"encoding"`
	Prefix        string        `yaml:"prefix"`
	DSN           string        `yaml:"dsn"`
	Schema        string        `yaml:"schema"`
	Persistent    bool          `yaml:"persistent"`
	MaxOpenConns  int           `yaml:"max_open_conns"`
	SlowThreshold time.Duration `yaml:"slow_threshold"`
}

// User returns the login name, falling back to the user key.
func (c DatasourceConfig) User() string {
	if c.Login != "" {
		return c.Login
	}
	return c.Username
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("easymodel: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML configuration document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("easymodel: parse config: %w", err)
	}
	for name, ds := range cfg.Datasources {
		if ds.Driver == "" {
			return nil, fmt.Errorf("easymodel: datasource %q: driver is required", name)
		}
		ds.Name = name
		cfg.Datasources[name] = ds
	}
	return &cfg, nil
}

// Datasource returns the configuration registered under name.
func (c *Config) Datasource(name string) (DatasourceConfig, bool) {
	ds, ok := c.Datasources[name]
	return ds, ok
}

// Names returns the sorted datasource names.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Datasources))
	for name := range c.Datasources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
