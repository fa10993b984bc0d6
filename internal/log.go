package internal

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5/middleware"
)

var _logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	ReportCaller:    false,
})

// SetVerbose toggles debug-level logging, mirroring the teacher's
// logconfig.Verbose flag.
func SetVerbose(v bool) {
	if v {
		_logger.SetLevel(log.DebugLevel)
		return
	}
	_logger.SetLevel(log.InfoLevel)
}

// Log returns a logger scoped to the request id found on ctx, if any. Call
// sites use it the same way throughout this package: Log(ctx).Warn(...).
func Log(ctx context.Context) *log.Logger {
	if id, ok := ctx.Value(middleware.RequestIDKey).(string); ok && id != "" {
		return _logger.With("request_id", id)
	}
	return _logger
}
