// Package app provides the main application structure and lifecycle management.
package app

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Raikerian/go-loopback/internal/recorder"
)

// Application represents the main application with its lifecycle.
type Application struct {
	app *fx.App
}

// New creates a new Application with the provided modules and options. The
// graph must supply a recorder.Job describing what to record.
func New(modules ...fx.Option) *Application {
	options := append(modules, fx.Invoke(registerLifecycleHooks))

	return &Application{
		app: fx.New(options...),
	}
}

// Err reports a construction error from the dependency graph.
func (a *Application) Err() error {
	return a.app.Err()
}

// Run starts the application and blocks until the recording finishes or a
// signal arrives. It exits the process with a non-zero code on failure.
func (a *Application) Run() {
	a.app.Run()
}

// Start starts the application without blocking.
func (a *Application) Start(ctx context.Context) error {
	return a.app.Start(ctx)
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	return a.app.Stop(ctx)
}

// Done is closed when the application has been asked to shut down.
func (a *Application) Done() <-chan fx.ShutdownSignal {
	return a.app.Wait()
}

type lifecycleParams struct {
	fx.In
	LC         fx.Lifecycle
	Shutdowner fx.Shutdowner
	Logger     *zap.Logger
	Recorder   *recorder.Service
	Job        recorder.Job
}

// registerLifecycleHooks runs the recording in the background between
// OnStart and OnStop and shuts the application down when it ends.
func registerLifecycleHooks(p lifecycleParams) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	p.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			p.Logger.Info("Starting application")

			wg.Add(1)
			go func() {
				defer wg.Done()

				code := 0
				res, err := p.Recorder.Record(ctx, p.Job)
				switch {
				case err != nil && res == nil:
					p.Logger.Error("Recording could not start", zap.Error(err))
					code = 1
				case err != nil:
					p.Logger.Error("Recording ended with error", zap.String("path", res.Path), zap.Error(err))
					code = 1
				default:
					p.Logger.Info("Recording saved",
						zap.String("path", res.Path),
						zap.Stringer("reason", res.Reason),
						zap.Duration("elapsed", res.Duration))
				}

				if ctx.Err() != nil {
					return
				}
				if err := p.Shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
					p.Logger.Error("Failed to request shutdown", zap.Error(err))
				}
			}()

			p.Logger.Info("Application started successfully")
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			p.Logger.Info("Stopping application")
			cancel()

			finished := make(chan struct{})
			go func() {
				wg.Wait()
				close(finished)
			}()

			select {
			case <-finished:
				p.Logger.Info("Application stopped successfully")
				return nil
			case <-stopCtx.Done():
				return errors.Join(errors.New("recording did not finish before shutdown deadline"), stopCtx.Err())
			}
		},
	})
}
