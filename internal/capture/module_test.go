package capture_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/Raikerian/go-loopback/internal/capture"
	"github.com/Raikerian/go-loopback/internal/config"
	"github.com/Raikerian/go-loopback/pkg/audio"
	"github.com/Raikerian/go-loopback/pkg/loopback"
	"github.com/Raikerian/go-loopback/pkg/loopback/loopbacktest"
)

func TestModuleClosesCapturerOnStop(t *testing.T) {
	factory := loopbacktest.NewFactory(audio.NewFormat(48000, 2, audio.EncodingFloat32))
	platform := factory.Platform(loopbacktest.StaticDirectory{})

	var c *loopback.Capturer
	app := fxtest.New(t,
		fx.Supply(config.Default(), zaptest.NewLogger(t), &platform),
		capture.Module,
		fx.Populate(&c),
	)
	app.RequireStart()

	require.NotNil(t, c)
	require.NoError(t, c.Start("", loopback.Callbacks{}))
	assert.Equal(t, loopback.StateCapturing, c.State())

	app.RequireStop()

	assert.Equal(t, loopback.StateIdle, c.State())
	assert.Zero(t, factory.Live())
	assert.NoError(t, factory.Balanced())
	assert.ErrorIs(t, c.Start("", loopback.Callbacks{}), loopback.ErrClosed)
}

func TestModuleUsesCaptureConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Capture.ApplicationName = "meeting-recorder"

	var got loopback.Options
	factory := loopbacktest.NewFactory(audio.NewFormat(48000, 2, audio.EncodingFloat32))
	platform := factory.Platform(loopbacktest.StaticDirectory{})
	newBackend := platform.NewBackend
	platform.NewBackend = func(l *zap.Logger, opts loopback.Options) loopback.Backend {
		got = opts
		return newBackend(l, opts)
	}

	var c *loopback.Capturer
	app := fxtest.New(t,
		fx.Supply(cfg, zaptest.NewLogger(t), &platform),
		capture.Module,
		fx.Populate(&c),
	)
	app.RequireStart()
	defer app.RequireStop()

	require.NoError(t, c.Start("", loopback.Callbacks{}))
	require.NoError(t, c.Stop())
	assert.Equal(t, "meeting-recorder", got.ApplicationName)
	assert.Equal(t, loopback.DefaultRingCapacity, got.RingCapacity)
}
