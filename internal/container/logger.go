package container

import (
	"go.uber.org/zap"

	"github.com/garyjia/logistics-console/internal/application/dispatcher"
	"github.com/garyjia/logistics-console/internal/application/service"
)

// zapLogger adapts zap to the key/value loggers of the application layer
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewServiceLogger wraps logger for the application services
func NewServiceLogger(logger *zap.Logger) service.Logger {
	return zapLogger{s: logger.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l zapLogger) Debug(msg string, keysAndValues ...interface{}) { l.s.Debugw(msg, keysAndValues...) }
func (l zapLogger) Info(msg string, keysAndValues ...interface{})  { l.s.Infow(msg, keysAndValues...) }
func (l zapLogger) Warn(msg string, keysAndValues ...interface{})  { l.s.Warnw(msg, keysAndValues...) }
func (l zapLogger) Error(msg string, keysAndValues ...interface{}) { l.s.Errorw(msg, keysAndValues...) }

var (
	_ service.Logger    = zapLogger{}
	_ dispatcher.Logger = zapLogger{}
)
