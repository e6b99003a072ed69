package config

import (
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ClientConfig holds configuration for the inference client.
type ClientConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Model          string        `yaml:"model"`
	LogLevel       string        `yaml:"log_level"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	StatusAddr     string        `yaml:"status_addr"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ClientID       string        `yaml:"client_id"`
	ConfigFile     string        `yaml:"-"`
}

// Defaults populates the struct from environment variables, falling back to
// built-in values. Flag binding happens in the command layer on top of this.
func (c *ClientConfig) Defaults() {
	c.Host = getEnv("MLCLIENT_HOST", "localhost")
	if p, err := strconv.Atoi(getEnv("MLCLIENT_PORT", "55555")); err == nil {
		c.Port = p
	} else {
		c.Port = 55555
	}
	c.Model = getEnv("MLCLIENT_MODEL", "")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.MetricsAddr = getEnv("METRICS_ADDR", "")
	c.StatusAddr = getEnv("STATUS_ADDR", "")
	if d, err := time.ParseDuration(getEnv("DIAL_TIMEOUT", "10s")); err == nil {
		c.DialTimeout = d
	} else {
		c.DialTimeout = 10 * time.Second
	}
	if d, err := time.ParseDuration(getEnv("REQUEST_TIMEOUT", "5m")); err == nil {
		c.RequestTimeout = d
	} else {
		c.RequestTimeout = 5 * time.Minute
	}
	c.ClientID = getEnv("CLIENT_ID", uuid.NewString())
	c.ConfigFile = getEnv("CONFIG_FILE", "")
}

// LoadFile populates the config from a YAML file. Fields absent from the
// file keep their current values.
func (c *ClientConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
