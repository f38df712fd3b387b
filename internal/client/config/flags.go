package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/chunkvault/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string    server base URL
//	-s int       chunk size in bytes
//	-p int       parallel chunk uploads
//	-r int       retries per request
//	-t duration  request timeout
//	-g string    gym slug
//	-n string    gym name
//	-f string    target folder id
//
// Positional arguments (the files to upload) are left for the caller.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-s", "-p", "-r", "-t", "-g", "-n", "-f"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "server base URL")
	fs.Int64Var(&cfg.ChunkSize, "s", cfg.ChunkSize, "chunk size in bytes")
	fs.IntVar(&cfg.Parallelism, "p", cfg.Parallelism, "parallel chunk uploads")
	fs.Uint64Var(&cfg.Retries, "r", cfg.Retries, "retries per request")
	fs.DurationVar(&cfg.RequestTimeout, "t", cfg.RequestTimeout, "request timeout")
	fs.StringVar(&cfg.GymSlug, "g", cfg.GymSlug, "gym slug")
	fs.StringVar(&cfg.GymName, "n", cfg.GymName, "gym name")
	fs.StringVar(&cfg.TargetFolder, "f", cfg.TargetFolder, "target folder id")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
