package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "CHUNKVAULT_"

// parseEnv loads an optional .env file from the working directory and then
// overlays CHUNKVAULT_* variables. Variables already set in the process
// environment win over .env entries.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	lookupString("HTTP_ADDR", &config.EndpointAddrHTTP)
	lookupString("DATABASE_DSN", &config.DatabaseDSN)
	lookupString("LOG_LEVEL", &config.LogLevel)
	lookupString("LOG_FORMAT", &config.LogFormat)
	if v, ok := os.LookupEnv(envPrefix + "ALLOWED_ORIGINS"); ok && v != "" {
		config.AllowedOrigins = splitList(v)
	}

	lookupInt("DOWNLOAD_PARALLELISM", &config.DownloadParallelism)

	lookupString("BLOB_BACKEND", &config.BlobBackend)
	lookupString("CHUNK_PREFIX", &config.ChunkPrefix)
	lookupBool("CHUNK_COMPRESSION", &config.ChunkCompression)
	lookupString("S3_ROOT_USER", &config.S3RootUser)
	lookupString("S3_ROOT_PASSWORD", &config.S3RootPassword)
	lookupString("S3_BUCKET", &config.S3Bucket)
	lookupString("S3_REGION", &config.S3Region)
	lookupString("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
	lookupString("GCS_BUCKET", &config.GCSBucket)
	lookupString("GCS_CREDENTIALS", &config.GCSCredentials)
	lookupString("FS_ROOT", &config.FSRoot)

	lookupString("DRIVE_CREDENTIALS_FILE", &config.DriveCredentialsFile)
	lookupString("DRIVE_ROOT_FOLDER_ID", &config.DriveRootFolderID)
	lookupInt64("FALLBACK_THRESHOLD", &config.FallbackThreshold)
	lookupDuration("SINK_UPLOAD_TIMEOUT", &config.SinkUploadTimeout)
	lookupInt64("SINK_RATE_LIMIT", &config.SinkRateLimit)
	lookupBool("HANDOFF_LEASE", &config.HandoffLease)
	lookupDuration("HANDOFF_LEASE_TTL", &config.HandoffLeaseTTL)
	lookupString("WEBHOOK_URL", &config.WebhookURL)

	lookupDuration("SESSION_RETENTION", &config.SessionRetention)
	lookupString("SWEEP_SCHEDULE", &config.SweepSchedule)
}

func lookupString(key string, dst *string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		*dst = v
	}
}

func lookupBool(key string, dst *bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		panic(fmt.Errorf("%s%s: %w", envPrefix, key, err))
	}
	*dst = b
}

func lookupInt64(key string, dst *int64) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		panic(fmt.Errorf("%s%s: %w", envPrefix, key, err))
	}
	*dst = n
}

func lookupInt(key string, dst *int) {
	n := int64(*dst)
	lookupInt64(key, &n)
	*dst = int(n)
}

func lookupDuration(key string, dst *time.Duration) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(fmt.Errorf("%s%s: %w", envPrefix, key, err))
	}
	*dst = d
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
