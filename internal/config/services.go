package config

import (
	"fmt"
	"os"
	"time"
)

// Environment variable names for external service endpoints.
const (
	EnvExtractionURL  = "TALLY_EXTRACTION_URL"
	EnvEnhancementURL = "TALLY_ENHANCEMENT_URL"
	EnvExportURL      = "TALLY_EXPORT_URL"
)

// ServiceConfig holds the endpoint and timeout for one external service.
type ServiceConfig struct {
	BaseURL string `toml:"base_url"`
	Timeout string `toml:"timeout"`
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *ServiceConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// ServicesConfig holds the external collaborators the workflow depends on:
// the extraction model, the optional enhancement service, and the export
// destination.
type ServicesConfig struct {
	Extraction  ServiceConfig `toml:"extraction"`
	Enhancement ServiceConfig `toml:"enhancement"`
	Export      ServiceConfig `toml:"export"`
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *ServicesConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *ServicesConfig) Merge(overlay *ServicesConfig) {
	mergeService(&c.Extraction, &overlay.Extraction)
	mergeService(&c.Enhancement, &overlay.Enhancement)
	mergeService(&c.Export, &overlay.Export)
}

func mergeService(dst, src *ServiceConfig) {
	if src.BaseURL != "" {
		dst.BaseURL = src.BaseURL
	}
	if src.Timeout != "" {
		dst.Timeout = src.Timeout
	}
}

func (c *ServicesConfig) loadDefaults() {
	if c.Extraction.Timeout == "" {
		c.Extraction.Timeout = "2m"
	}
	if c.Enhancement.Timeout == "" {
		c.Enhancement.Timeout = "30s"
	}
	if c.Export.Timeout == "" {
		c.Export.Timeout = "1m"
	}
}

func (c *ServicesConfig) loadEnv() {
	if v := os.Getenv(EnvExtractionURL); v != "" {
		c.Extraction.BaseURL = v
	}
	if v := os.Getenv(EnvEnhancementURL); v != "" {
		c.Enhancement.BaseURL = v
	}
	if v := os.Getenv(EnvExportURL); v != "" {
		c.Export.BaseURL = v
	}
}

func (c *ServicesConfig) validate() error {
	for name, svc := range map[string]*ServiceConfig{
		"extraction":  &c.Extraction,
		"enhancement": &c.Enhancement,
		"export":      &c.Export,
	} {
		if _, err := time.ParseDuration(svc.Timeout); err != nil {
			return fmt.Errorf("%s: invalid timeout: %w", name, err)
		}
	}
	return nil
}
