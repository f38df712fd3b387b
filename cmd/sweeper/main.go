// Command sweeper runs one retention sweep and exits. It is meant for
// deployments that schedule cleanup externally instead of in the server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/chunkvault/internal/server"
	"github.com/dmitrijs2005/chunkvault/internal/server/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()

	n, err := server.SweepOnce(ctx, cfg, cfg.SessionRetention)
	if err != nil {
		log.Printf("sweep failed: %v", err)
		os.Exit(1)
	}
	log.Printf("sweep removed %d session(s)", n)
}
