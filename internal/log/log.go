// Package log is the application logger. Messages are printf style; the ctx variants
// add the execution key of the command chain the message belongs to.
package log

import (
	"context"
	"fmt"

	"github.com/pbinitiative/zenorchestrator/internal/appcontext"
	"github.com/pbinitiative/zenorchestrator/internal/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger = zap.NewNop().Sugar()

// Init builds the logger for the current profile: JSON for PROD, colored console otherwise.
func Init() {
	var conf zap.Config
	switch profile.Current {
	case profile.PROD:
		conf = zap.NewProductionConfig()
	case profile.TEST:
		conf = zap.NewDevelopmentConfig()
		conf.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	default:
		conf = zap.NewDevelopmentConfig()
		conf.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	built, err := conf.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %s", err))
	}
	logger = built.Sugar()
}

// Logger exposes the underlying zap logger, e.g. to bridge other logging libraries.
func Logger() *zap.Logger {
	return logger.Desugar()
}

func Sync() {
	_ = logger.Sync()
}

func Info(format string, args ...any) {
	logger.Infof(format, args...)
}

func Warn(format string, args ...any) {
	logger.Warnf(format, args...)
}

func Error(format string, args ...any) {
	logger.Errorf(format, args...)
}

func Debug(format string, args ...any) {
	logger.Debugf(format, args...)
}

func Infof(ctx context.Context, format string, args ...any) {
	withContext(ctx).Infof(format, args...)
}

func Warnf(ctx context.Context, format string, args ...any) {
	withContext(ctx).Warnf(format, args...)
}

func Errorf(ctx context.Context, format string, args ...any) {
	withContext(ctx).Errorf(format, args...)
}

func Debugf(ctx context.Context, format string, args ...any) {
	withContext(ctx).Debugf(format, args...)
}

func withContext(ctx context.Context) *zap.SugaredLogger {
	if key, ok := appcontext.GetExecutionContext(ctx); ok {
		return logger.With("executionKey", key)
	}
	return logger
}
