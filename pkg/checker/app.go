package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/Asteroidea-tn/streamcheck/pkg/checklog"
	"github.com/Asteroidea-tn/streamcheck/pkg/registry"
	"github.com/Asteroidea-tn/streamcheck/pkg/snapshot"
	"github.com/Asteroidea-tn/streamcheck/pkg/urlcrypt"
)

// Config is filled from the environment (and .env) by checkenv.Load.
// The defaults are the paths an operator runs with when nothing is set.
type Config struct {
	CameraFile string `env:"CAMERA_FILE,camera_urls.txt"`
	LogFile    string `env:"LOG_FILE,simple_stream_log.txt"`
	OutputDir  string `env:"OUTPUT_DIR,output"`
	URLKey     string `env:"STREAMCHECK_URL_KEY,"`

	Log struct {
		Level      string `env:"LOG_LEVEL,info"`
		Console    bool   `env:"LOG_CONSOLE,false"`
		MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB,100"`
		MaxBackups int    `env:"LOG_MAX_BACKUPS,3"`
		RunBanner  bool   `env:"LOG_RUN_BANNER,false"`
	}

	Capture struct {
		Backend     string        `env:"MEDIA_BACKEND,gocv"`
		MaxWait     time.Duration `env:"MAX_WAIT,10s"`
		ReadTimeout time.Duration `env:"READ_TIMEOUT,5s"`
		Pause       time.Duration `env:"CAMERA_PAUSE,1s"`
	}
}

// DefaultConfig returns the configuration used when no variables are set.
func DefaultConfig() Config {
	var cfg Config
	cfg.CameraFile = "camera_urls.txt"
	cfg.LogFile = "simple_stream_log.txt"
	cfg.OutputDir = "output"
	cfg.Log.Level = "info"
	cfg.Log.MaxSizeMB = 100
	cfg.Log.MaxBackups = 3
	cfg.Capture.Backend = "gocv"
	cfg.Capture.MaxWait = 10 * time.Second
	cfg.Capture.ReadTimeout = 5 * time.Second
	cfg.Capture.Pause = time.Second
	return cfg
}

// Execute performs one full check pass and returns the process exit code:
// 0 when the pass completed (whatever the per-camera results), 1 otherwise.
// A nil clock means the wall clock.
func Execute(ctx context.Context, cfg Config, opener snapshot.Opener, stdout io.Writer, clock snapshot.Clock) int {
	if err := VerifyCameraFile(cfg.CameraFile); err != nil {
		fmt.Fprintf(stdout, "Error: '%s' not found.\n", cfg.CameraFile)
		return 1
	}
	if clock == nil {
		clock = snapshot.RealClock()
	}

	var loadOpts []registry.Option
	if cfg.URLKey != "" {
		svc, err := urlcrypt.NewServiceFromHex(cfg.URLKey)
		if err != nil {
			fmt.Fprintf(stdout, "Error: STREAMCHECK_URL_KEY: %v\n", err)
			return 1
		}
		loadOpts = append(loadOpts, registry.WithUnsealer(svc))
	}

	sink, err := checklog.New(checklog.Config{
		LogLevel:    cfg.Log.Level,
		LogFileName: cfg.LogFile,
		Console:     cfg.Log.Console,
		MaxFileSize: cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		RunBanner:   cfg.Log.RunBanner,
		RunID:       uuid.NewString(),
	})
	if err != nil {
		fmt.Fprintf(stdout, "Error: %v\n", err)
		return 1
	}
	defer sink.Close()

	opts := snapshot.DefaultOptions(cfg.OutputDir)
	opts.MaxWait = cfg.Capture.MaxWait
	opts.ReadTimeout = cfg.Capture.ReadTimeout
	capturer := snapshot.NewSnapshotService(opts, opener, sink.Logger, snapshot.WithClock(clock))

	runner := NewRunner(RunOptions{
		CameraFile: cfg.CameraFile,
		LogFile:    cfg.LogFile,
		OutputDir:  cfg.OutputDir,
		Pause:      cfg.Capture.Pause,
	}, capturer, clock, sink.Logger, stdout, loadOpts...)

	if _, err := runner.Run(ctx); err != nil {
		switch {
		case errors.Is(err, registry.ErrNotFound):
			fmt.Fprintf(stdout, "Error: '%s' not found.\n", cfg.CameraFile)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			fmt.Fprintln(stdout, "Check interrupted.")
		default:
			sink.Logger.Error().Err(err).Msg("Check run aborted")
			fmt.Fprintf(stdout, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}
