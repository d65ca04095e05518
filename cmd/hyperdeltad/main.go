// Command hyperdeltad opens an Instance and keeps it open until
// interrupted: parse flags, open the backing stores, print a status line,
// block on a signal, shut down cleanly.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"hyperdelta.dev/engine"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := hyperdelta.DefaultConfig()

	fs := flag.NewFlagSet("hyperdeltad", flag.ContinueOnError)
	fs.SetOutput(stderr)

	dataDir := fs.String("datadir", "", "data directory (enables persistent storage)")
	cacheSize := fs.Int("cache-size", defaults.CacheSize, "bounded HyperView cache capacity")
	subQueue := fs.Int("subscription-queue-size", defaults.SubscriptionQueueSize, "per-subscription pending queue capacity")
	systemID := fs.String("system-id", "", "override the generated/stored system id")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := defaults
	cfg.CacheSize = *cacheSize
	cfg.SubscriptionQueueSize = *subQueue
	cfg.SystemID = *systemID
	if *dataDir != "" {
		cfg.Storage = hyperdelta.StoragePersistent
		cfg.DataDir = *dataDir
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			fmt.Fprintf(stderr, "datadir create failed: %v\n", err)
			return 2
		}
	}

	inst, err := hyperdelta.Open(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "open failed: %v\n", err)
		return 2
	}
	defer inst.Close()

	fmt.Fprintf(stdout, "hyperdeltad: system_id=%s storage=%s cache_size=%d\n", inst.SystemID(), cfg.Storage, cfg.CacheSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(stdout, "hyperdeltad running")
	<-ctx.Done()
	fmt.Fprintln(stdout, "hyperdeltad stopped")
	return 0
}
