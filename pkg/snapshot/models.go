package snapshot

import (
	"context"
	"errors"
	"image"
	"time"
)

var (
	// ErrConnectFailed means the stream never opened within the wait budget.
	ErrConnectFailed = errors.New("connection failed")
	// ErrNoFrame means the stream opened but every read came back empty.
	ErrNoFrame = errors.New("connected but no valid frame")
	// ErrWriteFailed wraps I/O errors while saving a snapshot. It is the only
	// capture error a caller should treat as fatal.
	ErrWriteFailed = errors.New("write snapshot")
	// ErrEmptyFrame is returned by streams when a read yields no image.
	ErrEmptyFrame = errors.New("empty frame")
)

// =========== SNAPSHOT MODELS ========

type Options struct {
	OutputDir    string
	MaxWait      time.Duration // connect budget
	PollInterval time.Duration // delay between open attempts
	ReadAttempts int
	ReadInterval time.Duration // delay between read attempts
	ReadTimeout  time.Duration // bound on a single read; 0 disables it
}

// DefaultOptions mirrors the behaviour operators expect: 10s to connect,
// polled every second, then five reads half a second apart.
func DefaultOptions(outputDir string) Options {
	return Options{
		OutputDir:    outputDir,
		MaxWait:      10 * time.Second,
		PollInterval: time.Second,
		ReadAttempts: 5,
		ReadInterval: 500 * time.Millisecond,
		ReadTimeout:  5 * time.Second,
	}
}

// Opener opens a media stream for a URL. A non-nil error means the stream
// is not open (yet); the capturer decides whether to retry.
type Opener interface {
	Open(ctx context.Context, url string) (Stream, error)
}

// Stream is an opened media source.
type Stream interface {
	// ReadFrame returns the next decoded frame. A nil image or
	// ErrEmptyFrame means no valid frame was available.
	ReadFrame(ctx context.Context) (image.Image, error)
	Close() error
}

// Clock abstracts time so retry loops can be driven without real delays.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

// RealClock returns the wall clock.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
