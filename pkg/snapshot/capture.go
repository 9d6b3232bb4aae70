package snapshot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// TimestampLayout is the time part of snapshot file names.
const TimestampLayout = "20060102_150405"

// Encoder persists a frame to path.
type Encoder interface {
	Encode(path string, img image.Image) error
}

// JPEGEncoder writes frames as JPEG files.
type JPEGEncoder struct {
	Quality int
}

func (e JPEGEncoder) Encode(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	quality := e.Quality
	if quality <= 0 {
		quality = jpeg.DefaultQuality
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

type SnapshotService struct {
	opts    Options
	opener  Opener
	clock   Clock
	encoder Encoder
	logger  zerolog.Logger
}

type ServiceOption func(*SnapshotService)

// WithClock replaces the wall clock.
func WithClock(c Clock) ServiceOption {
	return func(s *SnapshotService) { s.clock = c }
}

// WithEncoder replaces the JPEG file encoder.
func WithEncoder(e Encoder) ServiceOption {
	return func(s *SnapshotService) { s.encoder = e }
}

func NewSnapshotService(opts Options, opener Opener, logger zerolog.Logger, options ...ServiceOption) *SnapshotService {
	if opts.ReadAttempts <= 0 {
		opts.ReadAttempts = 1
	}
	s := &SnapshotService{
		opts:    opts,
		opener:  opener,
		clock:   RealClock(),
		encoder: JPEGEncoder{Quality: 95},
		logger:  logger,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// EnsureOutputDir creates the output directory and its parents if needed.
func (s *SnapshotService) EnsureOutputDir() error {
	return os.MkdirAll(s.opts.OutputDir, 0o755)
}

// FileName returns the snapshot file name for a camera at time t.
func FileName(name string, t time.Time) string {
	return fmt.Sprintf("%s_%s.jpg", name, t.Format(TimestampLayout))
}

// Capture connects to url, grabs one frame and saves it under the output
// directory. It returns the saved path. Connection and read failures are
// logged and reported as ErrConnectFailed or ErrNoFrame; write failures
// come back wrapped in ErrWriteFailed.
func (s *SnapshotService) Capture(ctx context.Context, name, url string) (string, error) {
	calledAt := s.clock.Now()
	log := s.logger.With().Str("camera", name).Str("url", RedactURL(url)).Logger()

	stream, attempts, err := s.connect(ctx, url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		log.Warn().Int("attempts", attempts).AnErr("cause", err).Msg("Connection failed")
		return "", ErrConnectFailed
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			log.Debug().Err(cerr).Msg("Closing stream failed")
		}
	}()

	img, reads, err := s.readFrame(ctx, stream)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		log.Warn().Int("reads", reads).Msg("Connected but no valid frame")
		return "", ErrNoFrame
	}

	outFile := filepath.Join(s.opts.OutputDir, FileName(name, calledAt))
	if err := s.encoder.Encode(outFile, img); err != nil {
		return "", fmt.Errorf("%w %s: %w", ErrWriteFailed, outFile, err)
	}

	log.Info().Str("snapshot", outFile).Msg("Connected")
	return outFile, nil
}

// RedactURL hides the password of a URL with credentials so it can be logged.
// Values that do not parse are returned unchanged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}

// connect opens the stream, retrying every PollInterval until MaxWait has
// elapsed since the first attempt. Each attempt only gets what is left of
// the budget, never less than one PollInterval.
func (s *SnapshotService) connect(ctx context.Context, url string) (Stream, int, error) {
	start := s.clock.Now()
	attempts := 0
	for {
		attempts++
		remaining := s.opts.MaxWait - s.clock.Now().Sub(start)
		if remaining < s.opts.PollInterval {
			remaining = s.opts.PollInterval
		}
		stream, err := s.openOnce(ctx, url, remaining)
		if err == nil {
			return stream, attempts, nil
		}
		if ctx.Err() != nil {
			return nil, attempts, ctx.Err()
		}
		if s.clock.Now().Sub(start) >= s.opts.MaxWait {
			return nil, attempts, err
		}
		if err := s.clock.Sleep(ctx, s.opts.PollInterval); err != nil {
			return nil, attempts, err
		}
	}
}

func (s *SnapshotService) openOnce(ctx context.Context, url string, timeout time.Duration) (Stream, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	stream, err := s.opener.Open(ctx, url)
	if err == nil && stream == nil {
		err = errors.New("opener returned no stream")
	}
	return stream, err
}

// readFrame tries up to ReadAttempts reads, ReadInterval apart, and returns
// the first non-empty frame.
func (s *SnapshotService) readFrame(ctx context.Context, stream Stream) (image.Image, int, error) {
	var lastErr error
	for i := 0; i < s.opts.ReadAttempts; i++ {
		if i > 0 {
			if err := s.clock.Sleep(ctx, s.opts.ReadInterval); err != nil {
				return nil, i, err
			}
		}
		img, err := s.readOnce(ctx, stream)
		if err == nil && !isEmpty(img) {
			return img, i + 1, nil
		}
		if err == nil {
			err = ErrEmptyFrame
		}
		lastErr = err
	}
	return nil, s.opts.ReadAttempts, lastErr
}

func (s *SnapshotService) readOnce(ctx context.Context, stream Stream) (image.Image, error) {
	if s.opts.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.ReadTimeout)
		defer cancel()
	}
	return stream.ReadFrame(ctx)
}

func isEmpty(img image.Image) bool {
	return img == nil || img.Bounds().Empty()
}
