package webrtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
)

// FileSource plays an IVF file in a loop.
type FileSource struct {
	path     string
	mime     string
	interval time.Duration
}

// NewFileSource checks the IVF header of the file.
func NewFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	_, header, err := ivfreader.NewWith(f)
	if err != nil {
		return nil, fmt.Errorf("ivf %v: %w", path, err)
	}
	var mime string
	switch header.FourCC {
	case "VP80":
		mime = webrtc.MimeTypeVP8
	case "VP90":
		mime = webrtc.MimeTypeVP9
	default:
		return nil, fmt.Errorf("ivf %v: unsupported fourcc %q", path, header.FourCC)
	}
	interval := time.Second / 30
	if header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
		interval = time.Duration(float64(time.Second) *
			float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator))
	}
	return &FileSource{path: path, mime: mime, interval: interval}, nil
}

func (s *FileSource) MimeType() string { return s.mime }

func (s *FileSource) Run(ctx context.Context, write func(media.Sample) error) error {
	for {
		if err := s.play(ctx, write); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

// play sends the file once.
func (s *FileSource) play(ctx context.Context, write func(media.Sample) error) error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	ivf, _, err := ivfreader.NewWith(f)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	frames := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		frame, _, err := ivf.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			if frames == 0 {
				return fmt.Errorf("ivf %v: no frames", s.path)
			}
			return nil
		}
		if err != nil {
			return err
		}
		frames++
		if err = write(media.Sample{Data: frame, Duration: s.interval}); err != nil {
			return err
		}
	}
}
