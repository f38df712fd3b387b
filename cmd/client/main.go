// Command client uploads local files to a chunkvault server in chunks.
//
//	client [-a url] [-s chunk-size] [-p parallel] [-g gym-slug] file...
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/chunkvault/internal/client/config"
	"github.com/dmitrijs2005/chunkvault/internal/client/uploader"
	"github.com/dmitrijs2005/chunkvault/internal/flagx"
	"github.com/dmitrijs2005/chunkvault/internal/logging"
)

var valueFlags = []string{"-a", "-s", "-p", "-r", "-t", "-g", "-n", "-f", "-c", "-config"}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	files := flagx.Positional(os.Args[1:], valueFlags)
	if len(files) == 0 {
		log.Fatalf("usage: %s [flags] file...", os.Args[0])
	}

	logger := logging.NewSlogLogger(logging.NewLogger("info", "text", os.Stderr))
	up := uploader.New(cfg, logger)

	failed := 0
	for _, path := range files {
		fh, err := up.UploadFile(ctx, path)
		if err != nil {
			logger.Error(ctx, "upload failed", "file", path, "error", err)
			failed++
			continue
		}
		status := "uploaded"
		if fh.Deduped {
			status = "already present"
		}
		fmt.Printf("%s: %s as %s (%d bytes, sha256 %s)\n", path, status, fh.FileID, fh.Size, fh.Checksum)
	}

	if failed > 0 {
		os.Exit(1)
	}
}
