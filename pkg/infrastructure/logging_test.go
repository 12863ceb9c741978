package infrastructure_test

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Raikerian/go-loopback/pkg/infrastructure"
)

func observed(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

func TestFxLoggerAdapterLevels(t *testing.T) {
	hookErr := errors.New("device busy")

	tests := map[string]struct {
		event   fxevent.Event
		level   zapcore.Level
		message string
	}{
		"hook executing": {
			event:   &fxevent.OnStartExecuting{FunctionName: "capture.Start", CallerName: "app"},
			level:   zap.DebugLevel,
			message: "OnStart hook executing",
		},
		"hook failed": {
			event:   &fxevent.OnStartExecuted{FunctionName: "capture.Start", CallerName: "app", Err: hookErr},
			level:   zap.ErrorLevel,
			message: "OnStart hook failed",
		},
		"stop hook ok": {
			event:   &fxevent.OnStopExecuted{FunctionName: "capture.Close", CallerName: "app"},
			level:   zap.DebugLevel,
			message: "OnStop hook executed",
		},
		"provided": {
			event:   &fxevent.Provided{ConstructorName: "loopback.New", OutputTypeNames: []string{"*loopback.Capturer"}},
			level:   zap.DebugLevel,
			message: "Provided",
		},
		"provide failed": {
			event:   &fxevent.Provided{ConstructorName: "loopback.New", Err: hookErr},
			level:   zap.ErrorLevel,
			message: "Provide failed",
		},
		"supply failed": {
			event:   &fxevent.Supplied{TypeName: "string", Err: hookErr},
			level:   zap.ErrorLevel,
			message: "Supply failed",
		},
		"invoke failed": {
			event:   &fxevent.Invoked{FunctionName: "record", Err: hookErr},
			level:   zap.ErrorLevel,
			message: "Invoke failed",
		},
		"stopping": {
			event:   &fxevent.Stopping{Signal: os.Interrupt},
			level:   zap.InfoLevel,
			message: "Received signal",
		},
		"started": {
			event:   &fxevent.Started{},
			level:   zap.InfoLevel,
			message: "Started",
		},
		"rollback": {
			event:   &fxevent.RollingBack{StartErr: hookErr},
			level:   zap.ErrorLevel,
			message: "Start failed, rolling back",
		},
		"logger init failed": {
			event:   &fxevent.LoggerInitialized{ConstructorName: "NewFxLoggerAdapter", Err: hookErr},
			level:   zap.ErrorLevel,
			message: "Custom logger initialization failed",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			logger, logs := observed(zap.DebugLevel)
			infrastructure.NewFxLoggerAdapter(logger).LogEvent(tt.event)

			entries := logs.AllUntimed()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.level, entries[0].Level)
			assert.Equal(t, tt.message, entries[0].Message)
			assert.Equal(t, "fx", entries[0].LoggerName)
		})
	}
}

func TestFxLoggerAdapterSuccessfulInvokeIsQuiet(t *testing.T) {
	logger, logs := observed(zap.DebugLevel)
	infrastructure.NewFxLoggerAdapter(logger).LogEvent(&fxevent.Invoked{FunctionName: "record"})
	assert.Zero(t, logs.Len())
}

func TestFxPrinter(t *testing.T) {
	logger, logs := observed(zap.InfoLevel)
	infrastructure.NewFxPrinter(logger).Printf("capturing from %s", "speakers")

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, "capturing from speakers", entries[0].Message)
}

func TestFxIntegration(t *testing.T) {
	logger, logs := observed(zap.DebugLevel)

	app := fxtest.New(t,
		fx.WithLogger(infrastructure.NewFxLoggerAdapter),
		fx.Supply(logger),
		fx.Invoke(func(*zap.Logger) {}),
	)
	app.RequireStart()
	app.RequireStop()

	assert.NotZero(t, logs.FilterMessage("Started").Len())
	assert.NotZero(t, logs.FilterMessage("Stopped").Len())
}
