// Package logger provides opinionated logging construction for MuninDB.
//
// Library packages take a *zap.Logger and treat nil as "stay quiet"; this
// package builds the loggers the CLI and tests hand them, plus an adapter
// so the embedded Badger store logs through zap instead of its own stock
// logger.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger writing to stderr. Debug widens the level
// from Info to Debug.
func New(debug bool) *zap.Logger {
	return NewWithWriters(debug, os.Stderr)
}

// NewWithWriters builds a console logger over arbitrary writers, for tests
// and log capture.
func NewWithWriters(debug bool, writers ...io.Writer) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	if len(writers) == 0 {
		writers = []io.Writer{os.Stderr}
	}

	syncers := make([]zapcore.WriteSyncer, 0, len(writers))
	for _, writer := range writers {
		syncers = append(syncers, zapcore.AddSync(writer))
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(syncers...),
		level,
	)

	return zap.New(core, zap.AddCaller())
}

// Nop returns a logger that discards everything. The default for embedded
// library use.
func Nop() *zap.Logger {
	return zap.NewNop()
}
