package scale

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger denotes the printf-style log interface used by the scale and its backends
type Logger interface {
	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
}

var _ Logger = (*zap.SugaredLogger)(nil)

// NullLogger denotes a logger discarding all messages
type NullLogger struct{}

func (l *NullLogger) Error(args ...interface{})                 {}
func (l *NullLogger) Errorf(format string, args ...interface{}) {}
func (l *NullLogger) Warn(args ...interface{})                  {}
func (l *NullLogger) Warnf(format string, args ...interface{})  {}
func (l *NullLogger) Info(args ...interface{})                  {}
func (l *NullLogger) Infof(format string, args ...interface{})  {}
func (l *NullLogger) Debug(args ...interface{})                 {}
func (l *NullLogger) Debugf(format string, args ...interface{}) {}

// NewDefaultLogger instantiates the console logger of the scale tools. Timestamps are
// ISO8601, caller annotations are only emitted in debug mode
func NewDefaultLogger(debug bool) (*zap.SugaredLogger, error) {
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if debug {
		logCfg.Level.SetLevel(zap.DebugLevel)
	}
	logCfg.DisableStacktrace = true
	logCfg.DisableCaller = !debug
	logCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapLogger, err := logCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate logger: %w", err)
	}

	return zapLogger.Sugar().Named("loadscale"), nil
}

////////////////////////////////////////////////////////////////////////////////

// scaleLogger tags all messages of a structured logger with the scale identifier
func scaleLogger(logger Logger, id ID) Logger {
	if zl, ok := logger.(*zap.SugaredLogger); ok {
		return zl.With("scale", id.String())
	}
	return logger
}
