// Command streamcheck takes one snapshot from every camera listed in the
// camera file and logs which ones answered.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Asteroidea-tn/streamcheck/pkg/checkenv"
	"github.com/Asteroidea-tn/streamcheck/pkg/checker"
	"github.com/Asteroidea-tn/streamcheck/pkg/snapshot"
	"github.com/Asteroidea-tn/streamcheck/pkg/snapshot/cvsource"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg checker.Config
	if err := checkenv.Load(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	opener, err := newOpener(cfg.Capture.Backend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	code := checker.Execute(ctx, cfg, opener, os.Stdout, nil)
	cancel()
	os.Exit(code)
}

// newOpener selects the media backend named by MEDIA_BACKEND.
func newOpener(backend string) (snapshot.Opener, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "gocv", "opencv":
		return cvsource.New(), nil
	case "ffmpeg":
		return snapshot.NewFFmpegOpener(), nil
	default:
		return nil, fmt.Errorf("unsupported media backend: %s", backend)
	}
}
