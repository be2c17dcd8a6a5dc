package logging

import "go.uber.org/zap"

type Logger = zap.SugaredLogger

// New builds the process-wide logger. Verbose switches to the development
// encoder with debug level enabled.
func New(verbose bool) *Logger {
	var l *zap.Logger
	if verbose {
		l, _ = zap.NewDevelopment()
	} else {
		l, _ = zap.NewProduction()
	}
	return l.Sugar()
}
