package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/chunkvault/internal/flagx"
	"github.com/dmitrijs2005/chunkvault/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. Only fields present
// in the file override the current values.
type FileConfig struct {
	EndpointAddrHTTP    string         `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	DatabaseDSN         string         `json:"database_dsn" yaml:"database_dsn"`
	LogLevel            string         `json:"log_level" yaml:"log_level"`
	LogFormat           string         `json:"log_format" yaml:"log_format"`
	AllowedOrigins      []string       `json:"allowed_origins" yaml:"allowed_origins"`
	ShutdownTimeout     timex.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxChunkSize        int64          `json:"max_chunk_size" yaml:"max_chunk_size"`
	DownloadParallelism *int           `json:"download_parallelism" yaml:"download_parallelism"`

	BlobBackend      string `json:"blob_backend" yaml:"blob_backend"`
	ChunkPrefix      string `json:"chunk_prefix" yaml:"chunk_prefix"`
	ChunkCompression *bool  `json:"chunk_compression" yaml:"chunk_compression"`
	S3RootUser       string `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword   string `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket         string `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region         string `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint   string `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	GCSBucket        string `json:"gcs_bucket" yaml:"gcs_bucket"`
	GCSCredentials   string `json:"gcs_credentials" yaml:"gcs_credentials"`
	FSRoot           string `json:"fs_root" yaml:"fs_root"`

	DriveCredentialsFile string         `json:"drive_credentials_file" yaml:"drive_credentials_file"`
	DriveRootFolderID    string         `json:"drive_root_folder_id" yaml:"drive_root_folder_id"`
	FallbackThreshold    int64          `json:"fallback_threshold" yaml:"fallback_threshold"`
	SinkUploadTimeout    timex.Duration `json:"sink_upload_timeout" yaml:"sink_upload_timeout"`
	SinkRateLimit        int64          `json:"sink_rate_limit" yaml:"sink_rate_limit"`
	HandoffLease         *bool          `json:"handoff_lease" yaml:"handoff_lease"`
	HandoffLeaseTTL      timex.Duration `json:"handoff_lease_ttl" yaml:"handoff_lease_ttl"`
	MemoryHeadroom       uint64         `json:"memory_headroom" yaml:"memory_headroom"`
	WebhookURL           string         `json:"webhook_url" yaml:"webhook_url"`

	SessionRetention timex.Duration `json:"session_retention" yaml:"session_retention"`
	SweepSchedule    string         `json:"sweep_schedule" yaml:"sweep_schedule"`
}

// parseFile overlays values from the config file named by -c/-config in args.
// The format follows the extension: .yaml/.yml is YAML, anything else JSON.
func parseFile(config *Config, args []string) {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	fc, err := decodeFile(path, data)
	if err != nil {
		panic(err)
	}

	fc.apply(config)
}

func decodeFile(path string, data []byte) (*FileConfig, error) {
	fc := &FileConfig{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, fc); err != nil {
			return nil, fmt.Errorf("parse yaml config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, fc); err != nil {
			return nil, fmt.Errorf("parse json config %s: %w", path, err)
		}
	}
	return fc, nil
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.EndpointAddrHTTP, fc.EndpointAddrHTTP)
	setString(&c.DatabaseDSN, fc.DatabaseDSN)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFormat, fc.LogFormat)
	if len(fc.AllowedOrigins) > 0 {
		c.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.ShutdownTimeout.Duration > 0 {
		c.ShutdownTimeout = fc.ShutdownTimeout.Duration
	}
	if fc.MaxChunkSize > 0 {
		c.MaxChunkSize = fc.MaxChunkSize
	}
	if fc.DownloadParallelism != nil {
		c.DownloadParallelism = *fc.DownloadParallelism
	}

	setString(&c.BlobBackend, fc.BlobBackend)
	setString(&c.ChunkPrefix, fc.ChunkPrefix)
	if fc.ChunkCompression != nil {
		c.ChunkCompression = *fc.ChunkCompression
	}
	setString(&c.S3RootUser, fc.S3RootUser)
	setString(&c.S3RootPassword, fc.S3RootPassword)
	setString(&c.S3Bucket, fc.S3Bucket)
	setString(&c.S3Region, fc.S3Region)
	setString(&c.S3BaseEndpoint, fc.S3BaseEndpoint)
	setString(&c.GCSBucket, fc.GCSBucket)
	setString(&c.FSRoot, fc.FSRoot)
	setString(&c.GCSCredentials, fc.GCSCredentials)

	setString(&c.DriveCredentialsFile, fc.DriveCredentialsFile)
	setString(&c.DriveRootFolderID, fc.DriveRootFolderID)
	if fc.FallbackThreshold > 0 {
		c.FallbackThreshold = fc.FallbackThreshold
	}
	if fc.SinkUploadTimeout.Duration > 0 {
		c.SinkUploadTimeout = fc.SinkUploadTimeout.Duration
	}
	if fc.SinkRateLimit > 0 {
		c.SinkRateLimit = fc.SinkRateLimit
	}
	if fc.HandoffLease != nil {
		c.HandoffLease = *fc.HandoffLease
	}
	if fc.HandoffLeaseTTL.Duration > 0 {
		c.HandoffLeaseTTL = fc.HandoffLeaseTTL.Duration
	}
	if fc.MemoryHeadroom > 0 {
		c.MemoryHeadroom = fc.MemoryHeadroom
	}
	setString(&c.WebhookURL, fc.WebhookURL)

	if fc.SessionRetention.Duration > 0 {
		c.SessionRetention = fc.SessionRetention.Duration
	}
	setString(&c.SweepSchedule, fc.SweepSchedule)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
