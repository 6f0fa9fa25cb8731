// Command simulate exercises a running rolloffd instance end to end.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/okian/rolloff/internal/simulate"
	"github.com/okian/rolloff/pkg/logger"
)

// Default simulation parameters.
const (
	defaultCollections = 10
	defaultGroupSize   = 3
	defaultOwners      = 2
	defaultTimeout     = 60 * time.Second
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9090", "Base URL of the rolloff daemon")
		collections = flag.Int("collections", defaultCollections, "Number of collections to seed")
		groupSize   = flag.Int("group", defaultGroupSize, "Tied entities per collection")
		owners      = flag.Int("owners", defaultOwners, "Remote owner clients answering draws")
		timeout     = flag.Duration("timeout", defaultTimeout, "Overall simulation timeout")
		seed        = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cfg := &simulate.Config{
		BaseURL:     *baseURL,
		Collections: *collections,
		GroupSize:   *groupSize,
		Owners:      *owners,
		Timeout:     *timeout,
		Seed:        *seed,
	}
	if err := simulate.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
