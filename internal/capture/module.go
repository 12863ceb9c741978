// Package capture provides the loopback capturer to the Fx graph.
package capture

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-loopback/internal/config"
	"github.com/Raikerian/go-loopback/pkg/loopback"
)

// Module provides *loopback.Capturer.
var Module = fx.Module("capture",
	fx.Provide(NewCapturer),
)

// NewCapturerParams holds dependencies for NewCapturer.
type NewCapturerParams struct {
	fx.In
	Cfg    *config.Config
	Logger *zap.Logger
	LC     fx.Lifecycle

	// Platform overrides the host audio stack when supplied.
	Platform *loopback.Platform `optional:"true"`
}

// NewCapturer creates the capturer and closes it when the application stops,
// so an active session always runs its Stopping sequence on shutdown.
func NewCapturer(params NewCapturerParams) *loopback.Capturer {
	opts := params.Cfg.CaptureOptions()

	var c *loopback.Capturer
	if params.Platform != nil {
		c = loopback.NewWithPlatform(params.Logger, opts, *params.Platform)
	} else {
		c = loopback.New(params.Logger, opts)
	}

	params.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := c.Close(); err != nil {
				params.Logger.Warn("Failed to close capturer", zap.Error(err))
				return err
			}
			return nil
		},
	})

	return c
}
