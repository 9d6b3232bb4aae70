// Package cvsource opens camera streams through OpenCV's VideoCapture.
package cvsource

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/Asteroidea-tn/streamcheck/pkg/snapshot"
)

// ErrReadBusy is returned when an earlier timed-out read is still running
// inside OpenCV and the capture cannot be used yet.
var ErrReadBusy = errors.New("previous read still in progress")

// Opener opens URLs with gocv.OpenVideoCaptureWithAPI.
type Opener struct {
	API gocv.VideoCaptureAPI
}

// New returns an opener using the FFmpeg capture backend.
func New() Opener {
	return Opener{API: gocv.VideoCaptureFFmpeg}
}

type openResult struct {
	vc  *gocv.VideoCapture
	err error
}

// Open blocks in OpenCV until the device opens or fails. If ctx ends first
// the open is abandoned and its capture released once OpenCV returns.
func (o Opener) Open(ctx context.Context, url string) (snapshot.Stream, error) {
	done := make(chan openResult, 1)
	go func() {
		vc, err := gocv.OpenVideoCaptureWithAPI(url, o.API)
		if err == nil && !vc.IsOpened() {
			err = fmt.Errorf("capture not opened: %s", url)
		}
		if err != nil && vc != nil {
			vc.Close()
			vc = nil
		}
		done <- openResult{vc: vc, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return &stream{vc: r.vc}, nil
	case <-ctx.Done():
		go func() {
			if r := <-done; r.vc != nil {
				r.vc.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// stream guards the capture so Close never races an in-flight Read.
type stream struct {
	mu      sync.Mutex
	vc      *gocv.VideoCapture
	reading bool
	closed  bool
}

func (s *stream) ReadFrame(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("stream closed")
	}
	if s.reading {
		s.mu.Unlock()
		return nil, ErrReadBusy
	}
	s.reading = true
	s.mu.Unlock()

	type readResult struct {
		img image.Image
		err error
	}
	done := make(chan readResult, 1)
	go func() {
		mat := gocv.NewMat()
		defer mat.Close()

		var r readResult
		if ok := s.vc.Read(&mat); !ok || mat.Empty() {
			r.err = snapshot.ErrEmptyFrame
		} else {
			r.img, r.err = mat.ToImage()
		}
		s.finishRead()
		done <- r
	}()

	select {
	case r := <-done:
		return r.img, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *stream) finishRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading = false
	if s.closed {
		s.vc.Close()
	}
}

// Close releases the capture, or hands that job to a read still running.
func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.reading {
		return nil
	}
	return s.vc.Close()
}
