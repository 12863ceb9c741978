// Package infrastructure routes the fx container's own events through zap.
package infrastructure

import (
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// FxLoggerAdapter implements fxevent.Logger and fx.Printer on top of zap.
// Wiring chatter is logged at Debug so it stays out of a normal recording
// session; failures and lifecycle transitions are Info or Error.
type FxLoggerAdapter struct {
	logger *zap.Logger
}

// NewFxLoggerAdapter returns an fxevent.Logger for fx.WithLogger.
func NewFxLoggerAdapter(logger *zap.Logger) fxevent.Logger {
	return &FxLoggerAdapter{logger: logger.Named("fx")}
}

// NewFxPrinter returns an fx.Printer backed by logger.
func NewFxPrinter(logger *zap.Logger) fx.Printer {
	return &FxLoggerAdapter{logger: logger.Named("fx")}
}

// LogEvent implements fxevent.Logger.
func (a *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		a.logger.Debug("OnStart hook executing",
			zap.String("callee", e.FunctionName),
			zap.String("caller", e.CallerName))
	case *fxevent.OnStartExecuted:
		a.hookResult("OnStart", e.FunctionName, e.CallerName, e.Runtime.String(), e.Err)
	case *fxevent.OnStopExecuting:
		a.logger.Debug("OnStop hook executing",
			zap.String("callee", e.FunctionName),
			zap.String("caller", e.CallerName))
	case *fxevent.OnStopExecuted:
		a.hookResult("OnStop", e.FunctionName, e.CallerName, e.Runtime.String(), e.Err)
	case *fxevent.Supplied:
		if e.Err != nil {
			a.logger.Error("Supply failed", zap.String("type", e.TypeName), zap.Error(e.Err))
			return
		}
		a.logger.Debug("Supplied", zap.String("type", e.TypeName), zap.String("module", e.ModuleName))
	case *fxevent.Provided:
		if e.Err != nil {
			a.logger.Error("Provide failed", zap.String("constructor", e.ConstructorName), zap.Error(e.Err))
			return
		}
		a.logger.Debug("Provided",
			zap.String("constructor", e.ConstructorName),
			zap.Strings("types", e.OutputTypeNames),
			zap.String("module", e.ModuleName))
	case *fxevent.Invoking:
		a.logger.Debug("Invoking", zap.String("function", e.FunctionName))
	case *fxevent.Invoked:
		if e.Err != nil {
			a.logger.Error("Invoke failed",
				zap.String("function", e.FunctionName),
				zap.String("stack", e.Trace),
				zap.Error(e.Err))
		}
	case *fxevent.Stopping:
		a.logger.Info("Received signal", zap.String("signal", e.Signal.String()))
	case *fxevent.Stopped:
		a.simple("Stopped", e.Err)
	case *fxevent.RollingBack:
		a.logger.Error("Start failed, rolling back", zap.Error(e.StartErr))
	case *fxevent.RolledBack:
		a.simple("Rolled back", e.Err)
	case *fxevent.Started:
		a.simple("Started", e.Err)
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			a.logger.Error("Custom logger initialization failed", zap.Error(e.Err))
			return
		}
		a.logger.Debug("Initialized custom fxevent.Logger", zap.String("constructor", e.ConstructorName))
	default:
		a.logger.Debug("Unhandled fx event", zap.String("event", fmt.Sprintf("%T", event)))
	}
}

// Printf implements fx.Printer.
func (a *FxLoggerAdapter) Printf(format string, args ...any) {
	a.logger.Sugar().Infof(format, args...)
}

func (a *FxLoggerAdapter) hookResult(hook, callee, caller, runtime string, err error) {
	if err != nil {
		a.logger.Error(hook+" hook failed",
			zap.String("callee", callee),
			zap.String("caller", caller),
			zap.Error(err))
		return
	}
	a.logger.Debug(hook+" hook executed",
		zap.String("callee", callee),
		zap.String("caller", caller),
		zap.String("runtime", runtime))
}

func (a *FxLoggerAdapter) simple(msg string, err error) {
	if err != nil {
		a.logger.Error(msg, zap.Error(err))
		return
	}
	a.logger.Info(msg)
}
