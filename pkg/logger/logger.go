package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// l stays a no-op until InitLogger runs so that library consumers which never
// configure logging stay silent.
var l = zap.NewNop()

func InitLogger(env string) {
	var cfg zap.Config

	switch env {
	case "prod":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "time"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	case "test":
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	default:
		cfg = zap.NewDevelopmentConfig()
	}

	logger, err := cfg.Build(zap.AddCaller(), zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}

	l = logger
}

// L returns the underlying logger for callers that need With or Named.
func L() *zap.Logger {
	return l
}

// Replace swaps the package logger and returns a func restoring the previous
// one. Meant for tests capturing log output.
func Replace(z *zap.Logger) (restore func()) {
	prev := l
	l = z
	return func() { l = prev }
}

func Info(msg string, fields ...zap.Field) {
	l.Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	l.Error(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	l.Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	l.Warn(msg, fields...)
}

func Sync() error {
	return l.Sync()
}
