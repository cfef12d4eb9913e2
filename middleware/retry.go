package middleware

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/euclio/msgpackrpc/dispatch"
	"github.com/euclio/msgpackrpc/value"
)

type retryDispatcher struct {
	dispatch.Dispatcher
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

// Retry re-runs a failed Dispatch call up to maxRetries times, with
// exponential backoff starting at baseDelay, but only for errors that look
// transient: the error's message contains "timeout" or "connection refused",
// whatever the error's type (a HandlerError included). Any other error is
// returned immediately, unretried.
func Retry(maxRetries int, baseDelay time.Duration, logger *zap.Logger) Middleware {
	return func(next dispatch.Dispatcher) dispatch.Dispatcher {
		return &retryDispatcher{Dispatcher: next, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
	}
}

func (d *retryDispatcher) Dispatch(method string, params []value.Value) (value.Value, error) {
	result, err := d.Dispatcher.Dispatch(method, params)
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		if err == nil || !isRetryable(err) {
			return result, err
		}
		d.logger.Info("retrying dispatch",
			zap.String("method", method),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		time.Sleep(d.baseDelay * time.Duration(1<<attempt))
		result, err = d.Dispatcher.Dispatch(method, params)
	}
	return result, err
}

func (d *retryDispatcher) Clone() dispatch.Dispatcher {
	return &retryDispatcher{
		Dispatcher: d.Dispatcher.Clone(),
		maxRetries: d.maxRetries,
		baseDelay:  d.baseDelay,
		logger:     d.logger,
	}
}

func isRetryable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "connection refused")
}
