package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ZapLogger struct {
	sugarLogger *zap.SugaredLogger
	rotator     *SequentialRotator
}

var _ Logger = (*ZapLogger)(nil)

// NewZapLogger creates a logger writing to stdout and, unless ConsoleOnly is set,
// to a daily file under <LogDir>/logs/<process>.
func NewZapLogger(config LoggerConfig) (*ZapLogger, error) {
	level := zap.NewAtomicLevelAt(getLogLevel(config.IsDevelopment))

	consoleEncoderConfig := zap.NewDevelopmentEncoderConfig()
	consoleEncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(TimeFormat)
	if config.IsDevelopment {
		consoleEncoderConfig.EncodeLevel = customColorLevelEncoder
	}
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig), zapcore.Lock(os.Stdout), level),
	}

	var rotator *SequentialRotator
	if !config.ConsoleOnly {
		baseDir := config.LogDir
		if baseDir == "" {
			baseDir = GetBaseDataDir()
		}
		logDir := filepath.Join(baseDir, LogsDir, string(config.ProcessName))
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		logPath := filepath.Join(logDir, time.Now().Format(LogFileFormat))
		rotator = NewSequentialRotator(logPath, DefaultMaxSizeMB, DefaultMaxAgeDays, DefaultMaxBackups)

		fileEncoderConfig := zap.NewProductionEncoderConfig()
		fileEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderConfig), zapcore.AddSync(rotator), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1)).
		With(zap.String("process", string(config.ProcessName)))

	return &ZapLogger{
		sugarLogger: logger.Sugar(),
		rotator:     rotator,
	}, nil
}

func (z *ZapLogger) Debug(msg string, tags ...interface{}) {
	z.sugarLogger.Debugw(msg, tags...)
}

func (z *ZapLogger) Info(msg string, tags ...interface{}) {
	z.sugarLogger.Infow(msg, tags...)
}

func (z *ZapLogger) Warn(msg string, tags ...interface{}) {
	z.sugarLogger.Warnw(msg, tags...)
}

func (z *ZapLogger) Error(msg string, tags ...interface{}) {
	z.sugarLogger.Errorw(msg, tags...)
}

func (z *ZapLogger) Fatal(msg string, tags ...interface{}) {
	z.sugarLogger.Fatalw(msg, tags...)
}

func (z *ZapLogger) Debugf(template string, args ...interface{}) {
	z.sugarLogger.Debugf(template, args...)
}

func (z *ZapLogger) Infof(template string, args ...interface{}) {
	z.sugarLogger.Infof(template, args...)
}

func (z *ZapLogger) Warnf(template string, args ...interface{}) {
	z.sugarLogger.Warnf(template, args...)
}

func (z *ZapLogger) Errorf(template string, args ...interface{}) {
	z.sugarLogger.Errorf(template, args...)
}

func (z *ZapLogger) Fatalf(template string, args ...interface{}) {
	z.sugarLogger.Fatalf(template, args...)
}

func (z *ZapLogger) With(tags ...interface{}) Logger {
	return &ZapLogger{
		sugarLogger: z.sugarLogger.With(tags...),
		rotator:     z.rotator,
	}
}

// Shutdown flushes buffered entries and closes the file sink.
func (z *ZapLogger) Shutdown() {
	// Sync on stdout fails on some platforms; nothing useful to do about it here.
	_ = z.sugarLogger.Sync()
	if z.rotator != nil {
		_ = z.rotator.Close()
	}
}
