package middleware

import (
	"time"

	"go.uber.org/zap"

	"github.com/euclio/msgpackrpc/dispatch"
	"github.com/euclio/msgpackrpc/value"
)

type loggingDispatcher struct {
	dispatch.Dispatcher
	logger *zap.Logger
}

// Logging records the method, duration, and any error of every Dispatch
// call through logger.
func Logging(logger *zap.Logger) Middleware {
	return func(next dispatch.Dispatcher) dispatch.Dispatcher {
		return &loggingDispatcher{Dispatcher: next, logger: logger}
	}
}

func (d *loggingDispatcher) Dispatch(method string, params []value.Value) (value.Value, error) {
	start := time.Now()
	result, err := d.Dispatcher.Dispatch(method, params)
	d.logger.Info("dispatch",
		zap.String("method", method),
		zap.Duration("duration", time.Since(start)),
		zap.Error(err))
	return result, err
}

func (d *loggingDispatcher) Clone() dispatch.Dispatcher {
	return &loggingDispatcher{Dispatcher: d.Dispatcher.Clone(), logger: d.logger}
}
