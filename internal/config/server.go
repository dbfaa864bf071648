package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvServerHost            = "TALLY_SERVER_HOST"
	EnvServerPort            = "TALLY_SERVER_PORT"
	EnvServerReadTimeout     = "TALLY_SERVER_READ_TIMEOUT"
	EnvServerWriteTimeout    = "TALLY_SERVER_WRITE_TIMEOUT"
	EnvServerShutdownTimeout = "TALLY_SERVER_SHUTDOWN_TIMEOUT"
)

// ServerConfig holds HTTP server parameters. Timeouts are duration strings.
type ServerConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	ReadTimeout     string `toml:"read_timeout"`
	WriteTimeout    string `toml:"write_timeout"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ReadTimeoutDuration returns ReadTimeout as a time.Duration.
func (c *ServerConfig) ReadTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ReadTimeout)
	return d
}

// WriteTimeoutDuration returns WriteTimeout as a time.Duration.
func (c *ServerConfig) WriteTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.WriteTimeout)
	return d
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *ServerConfig) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Finalize applies defaults, environment overrides, and validation.
func (c *ServerConfig) Finalize() error {
	applyDefault(&c.Host, "0.0.0.0")
	if c.Port == 0 {
		c.Port = 8080
	}
	applyDefault(&c.ReadTimeout, "1m")
	applyDefault(&c.WriteTimeout, "15m")
	applyDefault(&c.ShutdownTimeout, "30s")

	applyEnv(EnvServerHost, &c.Host)
	if v := os.Getenv(EnvServerPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	applyEnv(EnvServerReadTimeout, &c.ReadTimeout)
	applyEnv(EnvServerWriteTimeout, &c.WriteTimeout)
	applyEnv(EnvServerShutdownTimeout, &c.ShutdownTimeout)

	return c.validate()
}

// Merge overwrites set fields from overlay.
func (c *ServerConfig) Merge(overlay *ServerConfig) {
	applyOverlay(&c.Host, overlay.Host)
	if overlay.Port != 0 {
		c.Port = overlay.Port
	}
	applyOverlay(&c.ReadTimeout, overlay.ReadTimeout)
	applyOverlay(&c.WriteTimeout, overlay.WriteTimeout)
	applyOverlay(&c.ShutdownTimeout, overlay.ShutdownTimeout)
}

func (c *ServerConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for name, value := range map[string]string{
		"read_timeout":     c.ReadTimeout,
		"write_timeout":    c.WriteTimeout,
		"shutdown_timeout": c.ShutdownTimeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

func applyDefault(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func applyOverlay(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func applyEnv(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}
