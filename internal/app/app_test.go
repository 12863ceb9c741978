package app_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Raikerian/go-loopback/internal/app"
	"github.com/Raikerian/go-loopback/internal/capture"
	"github.com/Raikerian/go-loopback/internal/config"
	"github.com/Raikerian/go-loopback/internal/recorder"
	"github.com/Raikerian/go-loopback/pkg/audio"
	"github.com/Raikerian/go-loopback/pkg/loopback/loopbacktest"
)

func newApp(t *testing.T, job recorder.Job, f *loopbacktest.Factory) *app.Application {
	t.Helper()
	cfg := config.Default()
	cfg.Recorder.OutputDir = t.TempDir()
	platform := f.Platform(loopbacktest.StaticDirectory{})

	a := app.New(
		fx.Supply(cfg, &platform, job),
		fx.Provide(func() *zap.Logger { return zaptest.NewLogger(t) }),
		capture.Module,
		recorder.Module,
		fx.NopLogger,
	)
	require.NoError(t, a.Err())
	return a
}

func TestApplicationShutsDownWhenRecordingEnds(t *testing.T) {
	f := loopbacktest.NewFactory(audio.NewFormat(48000, 2, audio.EncodingFloat32)).
		SetSource(loopbacktest.Sine(audio.NewFormat(48000, 2, audio.EncodingFloat32), 440, 5*time.Millisecond))
	out := filepath.Join(t.TempDir(), "out.wav")
	a := newApp(t, recorder.Job{Path: out, MaxDuration: 50 * time.Millisecond}, f)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Start(ctx))

	select {
	case sig := <-a.Done():
		assert.Zero(t, sig.ExitCode)
	case <-ctx.Done():
		t.Fatal("application did not shut down after the recording ended")
	}
	require.NoError(t, a.Stop(ctx))

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(58))
	assert.NoError(t, f.Balanced())
}

func TestApplicationStopInterruptsRecording(t *testing.T) {
	f := loopbacktest.NewFactory(audio.NewFormat(48000, 2, audio.EncodingInt16))
	out := filepath.Join(t.TempDir(), "out.wav")
	a := newApp(t, recorder.Job{Path: out}, f)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Start(ctx))
	require.Eventually(t, func() bool { return f.Live() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, a.Stop(ctx))
	assert.Zero(t, f.Live())
	assert.NoError(t, f.Balanced())

	_, err := os.Stat(out)
	assert.NoError(t, err, "interrupted recording is still finalized")
}

func TestApplicationReportsStartFailure(t *testing.T) {
	f := loopbacktest.NewFactory(audio.NewFormat(48000, 2, audio.EncodingFloat32)).
		SetFailAt(loopbacktest.StageConnect)
	a := newApp(t, recorder.Job{}, f)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Start(ctx))

	select {
	case sig := <-a.Done():
		assert.Equal(t, 1, sig.ExitCode)
	case <-ctx.Done():
		t.Fatal("application did not shut down after the start failure")
	}
	require.NoError(t, a.Stop(ctx))
}
