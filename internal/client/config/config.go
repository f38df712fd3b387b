// Package config holds the settings of the chunked upload client.
package config

import "time"

// Config holds runtime settings for the upload client.
//
// Fields:
//   - ServerURL: base URL of the chunkvault HTTP API.
//   - ChunkSize: bytes per chunk; must stay below the server's limit.
//   - Parallelism: chunks in flight at once.
//   - Retries: extra attempts per request on network errors and 5xx.
//   - RequestTimeout: per request; reconstruction of big files needs more.
//   - GymSlug, GymName, TargetFolder: routing metadata sent with each chunk.
type Config struct {
	ServerURL      string
	ChunkSize      int64
	Parallelism    int
	Retries        uint64
	RequestTimeout time.Duration

	GymSlug      string
	GymName      string
	TargetFolder string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.ChunkSize = 8 << 20
	c.Parallelism = 4
	c.Retries = 3
	c.RequestTimeout = 10 * time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// a JSON file (if present) and command-line flags (if present). Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
