package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/chunkvault/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string     HTTP bind address (e.g. ":8080")
//	-d string     PostgreSQL DSN
//	-k string     blob backend: s3, gcs or fs
//	-u string     S3 root user
//	-p string     S3 root password
//	-b string     S3 bucket
//	-g string     S3 region
//	-e string     S3 base endpoint
//	-f string     Drive root folder id
//	-r duration   session retention (e.g. "24h")
//	-w string     sweep cron schedule (e.g. "@every 1h")
//	-l string     log level
//
// Only these flags are parsed, so -c/-config and other components' flags are ignored.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-k", "-u", "-p", "-b", "-g", "-e", "-f", "-r", "-w", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.BlobBackend, "k", config.BlobBackend, "blob backend (s3|gcs|fs)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	fs.StringVar(&config.DriveRootFolderID, "f", config.DriveRootFolderID, "Drive root folder id")
	fs.DurationVar(&config.SessionRetention, "r", config.SessionRetention, "session retention window")
	fs.StringVar(&config.SweepSchedule, "w", config.SweepSchedule, "sweep cron schedule")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
