package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/chunkvault/internal/flagx"
	"github.com/dmitrijs2005/chunkvault/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
type JsonConfig struct {
	ServerURL      string         `json:"server_url"`
	ChunkSize      int64          `json:"chunk_size"`
	Parallelism    int            `json:"parallelism"`
	Retries        *uint64        `json:"retries"`
	RequestTimeout timex.Duration `json:"request_timeout"`
	GymSlug        string         `json:"gym_slug"`
	GymName        string         `json:"gym_name"`
	TargetFolder   string         `json:"target_folder"`
}

// parseJson overlays Config with the non-zero values of the file named by
// -c/-config. It panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigFileFlag(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerURL != "" {
		cfg.ServerURL = jc.ServerURL
	}
	if jc.ChunkSize > 0 {
		cfg.ChunkSize = jc.ChunkSize
	}
	if jc.Parallelism > 0 {
		cfg.Parallelism = jc.Parallelism
	}
	if jc.Retries != nil {
		cfg.Retries = *jc.Retries
	}
	if jc.RequestTimeout.Duration > 0 {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.GymSlug != "" {
		cfg.GymSlug = jc.GymSlug
	}
	if jc.GymName != "" {
		cfg.GymName = jc.GymName
	}
	if jc.TargetFolder != "" {
		cfg.TargetFolder = jc.TargetFolder
	}
}
