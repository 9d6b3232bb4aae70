// Package checker walks the camera registry and snapshots each camera in turn.
package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/Asteroidea-tn/streamcheck/pkg/registry"
	"github.com/Asteroidea-tn/streamcheck/pkg/snapshot"
)

// Capturer takes one snapshot per call.
type Capturer interface {
	EnsureOutputDir() error
	Capture(ctx context.Context, name, url string) (string, error)
}

type RunOptions struct {
	CameraFile string
	LogFile    string // reported in the summary only
	OutputDir  string // reported in the summary only
	Pause      time.Duration
}

// Summary counts the outcome of one pass.
type Summary struct {
	Checked   int
	Captured  int
	Failed    int
	Snapshots []string
}

type Runner struct {
	opts     RunOptions
	capturer Capturer
	clock    snapshot.Clock
	logger   zerolog.Logger
	out      io.Writer
	loadOpts []registry.Option
}

func NewRunner(opts RunOptions, capturer Capturer, clock snapshot.Clock, logger zerolog.Logger, out io.Writer, loadOpts ...registry.Option) *Runner {
	if clock == nil {
		clock = snapshot.RealClock()
	}
	return &Runner{
		opts:     opts,
		capturer: capturer,
		clock:    clock,
		logger:   logger,
		out:      out,
		loadOpts: loadOpts,
	}
}

// VerifyCameraFile reports registry.ErrNotFound when path does not exist.
func VerifyCameraFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %w", registry.ErrNotFound, err)
		}
		return fmt.Errorf("stat camera file: %w", err)
	}
	return nil
}

// Run checks every camera once, strictly one after another, pausing between
// cameras. Per-camera failures are counted, not returned; only a missing
// camera file, a snapshot write error or ctx ending stop the pass.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	if err := VerifyCameraFile(r.opts.CameraFile); err != nil {
		return sum, err
	}
	if err := r.capturer.EnsureOutputDir(); err != nil {
		return sum, fmt.Errorf("create output directory: %w", err)
	}

	reg, err := registry.Load(r.opts.CameraFile, r.logger, r.loadOpts...)
	if err != nil {
		return sum, err
	}

	fmt.Fprintln(r.out, "Checking camera connections...")
	fmt.Fprintln(r.out)

	for _, cam := range reg.Cameras() {
		fmt.Fprintf(r.out, "Checking %s...\n", cam.Name)
		sum.Checked++

		path, err := r.capturer.Capture(ctx, cam.Name, cam.URL)
		switch {
		case err == nil:
			sum.Captured++
			sum.Snapshots = append(sum.Snapshots, path)
		case errors.Is(err, snapshot.ErrConnectFailed), errors.Is(err, snapshot.ErrNoFrame):
			sum.Failed++
		default:
			return sum, err
		}

		if err := r.clock.Sleep(ctx, r.opts.Pause); err != nil {
			return sum, err
		}
	}

	r.logger.Debug().
		Int("checked", sum.Checked).
		Int("captured", sum.Captured).
		Int("failed", sum.Failed).
		Msg("Check run complete")

	fmt.Fprintln(r.out)
	fmt.Fprintf(r.out, "All cameras checked! (%d ok, %d failed)\n", sum.Captured, sum.Failed)
	fmt.Fprintf(r.out, "Log saved to: %s\n", r.opts.LogFile)
	fmt.Fprintf(r.out, "Snapshots saved in: %s/\n", r.opts.OutputDir)
	return sum, nil
}
