package log

import (
	"github.com/rs/zerolog"
)

// NewNopLogger returns a logger that discards every entry. Like the
// default logger it can be reconfigured with OverrideWithNewLogger.
func NewNopLogger() Logger {
	return &defaultLogger{
		Logger: zerolog.Nop(),
	}
}
