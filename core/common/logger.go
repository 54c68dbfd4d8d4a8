package common

import (
	"fmt"
	"github.com/lni/dragonboat/v4/logger"
	"log"
	"os"
	"strings"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboat's logger.ILogger)
// --------------------------------------------------------------------------

// kvlinkLogger implements the ILogger interface with custom formatting
type kvlinkLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *kvlinkLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *kvlinkLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *kvlinkLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *kvlinkLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *kvlinkLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *kvlinkLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

// log formats and writes a log message. this internal helper is used by the public methods
func (l *kvlinkLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-15s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger returns a named logger with the custom kvlink format
func CreateLogger(pkgName string) logger.ILogger {
	// Create standard logger with custom flags
	stdLogger := log.New(os.Stdout, "", log.Ldate|log.Ltime)

	return &kvlinkLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: stdLogger,
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// parseLogLevel converts a string level to logger.LogLevel
func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG
	case "", "info":
		return logger.INFO
	case "warning", "warn":
		return logger.WARNING
	case "error":
		return logger.ERROR
	default:
		panic(fmt.Sprintf("invalid log level: %s. must be one of debug, info, warn, error", level))
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// InitLoggers installs the kvlink logger factory and configures the level of
// every named logger used by the core packages.
func InitLoggers(logLevel string) {
	// Set as the global logger factory
	logger.SetLoggerFactory(CreateLogger)

	// Configure the core loggers
	level := parseLogLevel(logLevel)
	logger.GetLogger("transport").SetLevel(level)
	logger.GetLogger("pool").SetLevel(level)
	logger.GetLogger("router").SetLevel(level)
	logger.GetLogger("dispatch").SetLevel(level)
	logger.GetLogger("client").SetLevel(level)
	logger.GetLogger("bridge").SetLevel(level)
	logger.GetLogger("stubnode").SetLevel(level)
}
