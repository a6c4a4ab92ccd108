package logging

import (
	"os"

	"go.uber.org/zap/zapcore"
)

const (
	BaseDataDir   = "data"
	LogsDir       = "logs"
	LogFileFormat = "2006-01-02.log"
	TimeFormat    = "2006-01-02 15:04:05"

	// DataDirEnv overrides BaseDataDir when set.
	DataDirEnv = "OXX_DATA_DIR"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorPurple = "\033[35m"
)

// ProcessName names the log directory of a process
type ProcessName string

const (
	ServerProcess ProcessName = "oxx-server"
	CLIProcess    ProcessName = "oxxctl"
	TestProcess   ProcessName = "test"
)

// Default rotation limits for the daily log file.
const (
	DefaultMaxSizeMB  = 50
	DefaultMaxAgeDays = 14
	DefaultMaxBackups = 10
)

type LoggerConfig struct {
	LogDir        string
	ProcessName   ProcessName
	IsDevelopment bool
	// ConsoleOnly disables the file sink, used by the CLI.
	ConsoleOnly bool
}

func NewDefaultConfig(processName ProcessName) LoggerConfig {
	return LoggerConfig{
		LogDir:        GetBaseDataDir(),
		ProcessName:   processName,
		IsDevelopment: true,
	}
}

// GetBaseDataDir returns the directory logs are written under.
func GetBaseDataDir() string {
	if dir, ok := os.LookupEnv(DataDirEnv); ok && dir != "" {
		return dir
	}
	return BaseDataDir
}

func getLogLevel(isDevelopment bool) zapcore.Level {
	if isDevelopment {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

func customColorLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var color string
	switch level {
	case zapcore.DebugLevel:
		color = colorBlue
	case zapcore.InfoLevel:
		color = colorGreen
	case zapcore.WarnLevel:
		color = colorYellow
	case zapcore.ErrorLevel:
		color = colorRed
	default:
		color = colorPurple
	}
	enc.AppendString(color + level.CapitalString() + colorReset)
}
