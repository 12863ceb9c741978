// Package recorder writes a loopback capture session to a WAV file.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Raikerian/go-loopback/internal/config"
	"github.com/Raikerian/go-loopback/pkg/audio"
	"github.com/Raikerian/go-loopback/pkg/loopback"
)

// chunkBacklog bounds how many delivered buffers may wait for the disk.
const chunkBacklog = 256

// StopReason says why a recording ended.
type StopReason int

const (
	StopRequested StopReason = iota
	StopMaxDuration
	StopSilence
	StopCaptureError
)

func (r StopReason) String() string {
	switch r {
	case StopRequested:
		return "requested"
	case StopMaxDuration:
		return "max duration"
	case StopSilence:
		return "silence"
	case StopCaptureError:
		return "capture error"
	default:
		return "unknown"
	}
}

// Job describes one recording.
type Job struct {
	// DeviceID selects the render endpoint; empty uses the OS default.
	DeviceID string
	// Path is the output file. Empty generates a timestamped name in the
	// configured output directory.
	Path string
	// MaxDuration overrides the configured limit when positive.
	MaxDuration time.Duration
}

// Result summarizes a finished recording.
type Result struct {
	Path     string
	Format   audio.Format
	Bytes    int64
	Duration time.Duration
	Reason   StopReason
	Stats    loopback.Stats
}

// Service records loopback audio to disk.
type Service struct {
	logger   *zap.Logger
	cfg      config.RecorderConfig
	capturer *loopback.Capturer
}

// NewServiceParams holds dependencies for NewService.
type NewServiceParams struct {
	fx.In
	Cfg      *config.Config
	Logger   *zap.Logger
	Capturer *loopback.Capturer
}

// NewService creates a recorder bound to the shared capturer.
func NewService(params NewServiceParams) *Service {
	return &Service{
		logger:   params.Logger.Named("recorder"),
		cfg:      params.Cfg.Recorder,
		capturer: params.Capturer,
	}
}

// Record captures until ctx is done, the maximum duration elapses, the
// silence timeout fires, or the capture stream fails. The WAV file is
// finalized in every case once capture has started. A runtime capture
// failure is returned together with the partial result.
func (s *Service) Record(ctx context.Context, job Job) (*Result, error) {
	chunks := make(chan []byte, chunkBacklog)
	faults := make(chan error, 1)
	done := make(chan struct{})

	cb := loopback.Callbacks{
		OnFrames: func(buf []byte) {
			select {
			case chunks <- bytes.Clone(buf):
			case <-done:
			}
		},
		OnError: func(err error) {
			select {
			case faults <- err:
			default:
			}
		},
	}

	if err := s.capturer.Start(job.DeviceID, cb); err != nil {
		return nil, fmt.Errorf("start capture: %w", err)
	}

	var once bool
	stop := func() error {
		if once {
			return nil
		}
		once = true
		close(done)
		return s.capturer.Stop()
	}
	defer func() { _ = stop() }()

	format, _ := s.capturer.Format()
	path, err := s.outputPath(job.Path)
	if err != nil {
		return nil, err
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	wav, err := audio.NewWAVWriter(file, format)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("write wav header: %w", err), file.Close())
	}

	s.logger.Info("Recording started",
		zap.String("path", path),
		zap.String("device_id", job.DeviceID),
		zap.Stringer("format", format))

	started := time.Now()
	reason, runErr := s.loop(ctx, job, format, wav, chunks, faults)

	stopErr := stop()
	// frames delivered before the stop are still written
drain:
	for {
		select {
		case buf := <-chunks:
			if _, err := wav.Write(buf); err != nil && runErr == nil {
				runErr = fmt.Errorf("write wav data: %w", err)
			}
		default:
			break drain
		}
	}

	closeErr := multierr.Combine(wav.Close(), file.Close())
	result := &Result{
		Path:     path,
		Format:   format,
		Bytes:    wav.Written(),
		Duration: time.Since(started),
		Reason:   reason,
		Stats:    s.capturer.Stats(),
	}

	s.logger.Info("Recording finished",
		zap.String("path", path),
		zap.Stringer("reason", reason),
		zap.Int64("bytes", result.Bytes),
		zap.Duration("audio", format.Duration(int(result.Bytes))),
		zap.Uint64("dropped", result.Stats.Dropped))

	if stopErr != nil {
		s.logger.Warn("Failed to stop capture cleanly", zap.Error(stopErr))
	}
	return result, multierr.Combine(runErr, closeErr)
}

func (s *Service) loop(
	ctx context.Context,
	job Job,
	format audio.Format,
	wav *audio.WAVWriter,
	chunks <-chan []byte,
	faults <-chan error,
) (StopReason, error) {
	maxDuration := s.cfg.MaxDuration.Std()
	if job.MaxDuration > 0 {
		maxDuration = job.MaxDuration
	}
	var maxC <-chan time.Time
	if maxDuration > 0 {
		t := time.NewTimer(maxDuration)
		defer t.Stop()
		maxC = t.C
	}

	silenceTimeout := s.cfg.SilenceTimeout.Std()
	silence := newSilenceDetector(format, s.cfg.SilenceThreshold, silenceTimeout)
	defer silence.stop()

	for {
		select {
		case <-ctx.Done():
			return StopRequested, nil
		case <-maxC:
			return StopMaxDuration, nil
		case <-silence.C():
			s.logger.Info("No audio above threshold, stopping",
				zap.Duration("silence_timeout", silenceTimeout),
				zap.Float64("threshold", s.cfg.SilenceThreshold))
			return StopSilence, nil
		case err := <-faults:
			s.logger.Error("Capture failed during recording", zap.Error(err))
			return StopCaptureError, err
		case buf := <-chunks:
			if _, err := wav.Write(buf); err != nil {
				return StopCaptureError, fmt.Errorf("write wav data: %w", err)
			}
			silence.observe(buf)
		}
	}
}

func (s *Service) outputPath(path string) (string, error) {
	if path == "" {
		path = filepath.Join(s.cfg.OutputDir,
			fmt.Sprintf("loopback_%s.wav", time.Now().Format("20060102_150405")))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return path, nil
}

// IsCaptureFailure reports whether err ended a recording because the
// capture stream failed at runtime.
func IsCaptureFailure(err error) bool {
	var rce *loopback.RuntimeCaptureError
	return errors.As(err, &rce)
}
