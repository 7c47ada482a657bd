package telemetry

import (
	"io"
	"sync"

	"newsletter-go/internal/logging"
)

var (
	initOnce   sync.Once
	initLogger *logging.ContextLogger
)

// Init configures the process-wide log sink. Only the first call has any
// effect; every caller, including ones racing the first, gets the same logger.
func Init(serviceName, level string, out io.Writer) *logging.ContextLogger {
	initOnce.Do(func() {
		initLogger = logging.New(serviceName, level, out)
	})
	return initLogger
}
