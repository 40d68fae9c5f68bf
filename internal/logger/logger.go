package logger

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger levels
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
	FatalLevel = "fatal"
	PanicLevel = "panic"
)

// Logger is our application logger.
type Logger struct {
	*logrus.Logger
	serviceName string
}

// Fields represents structured logging fields.
type Fields map[string]interface{}

var defaultLogger *Logger

// Config holds logger configuration.
type Config struct {
	Level       string
	Format      string // json or text
	ServiceName string
	Environment string

	EnableFile bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days

	EnableConsole bool

	DefaultFields Fields
}

// Init initializes the global logger.
func Init(config Config) error {
	l := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	l.SetLevel(level)

	switch config.Format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
				logrus.FieldKeyFunc:  "caller",
			},
		})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	if config.EnableFile && config.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		fileWriter := &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   true,
		}

		if config.EnableConsole {
			l.SetOutput(os.Stdout)
			l.AddHook(&FileHook{writer: fileWriter})
		} else {
			l.SetOutput(fileWriter)
		}
	} else if config.EnableConsole {
		l.SetOutput(os.Stdout)
	}

	defaultFields := logrus.Fields{
		"service":     config.ServiceName,
		"environment": config.Environment,
		"version":     os.Getenv("APP_VERSION"),
	}
	for k, v := range config.DefaultFields {
		defaultFields[k] = v
	}

	defaultLogger = &Logger{
		Logger:      l,
		serviceName: config.ServiceName,
	}
	defaultLogger.Logger = defaultLogger.Logger.WithFields(defaultFields).Logger

	return nil
}

// GetLogger returns the default logger instance, initializing a fallback
// console logger on first use if Init was never called.
func GetLogger() *Logger {
	if defaultLogger == nil {
		if err := Init(Config{
			Level:         InfoLevel,
			Format:        "text",
			ServiceName:   "matchmaking",
			Environment:   "development",
			EnableConsole: true,
		}); err != nil {
			log.Printf("failed to initialize fallback logger: %v", err)
		}
	}
	return defaultLogger
}

// WithFields creates a logger entry with additional fields.
func (l *Logger) WithFields(fields Fields) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields(fields))
}

// WithContext creates a logger entry carrying common request-scoped values.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithContext(ctx)

	if requestID := ctx.Value("request_id"); requestID != nil {
		entry = entry.WithField("request_id", requestID)
	}
	if userID := ctx.Value("user_id"); userID != nil {
		entry = entry.WithField("user_id", userID)
	}

	return entry
}

// LogHTTPRequest logs an admin HTTP request/response pair.
func (l *Logger) LogHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	fields := Fields{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
		"type":        "http_request",
	}

	entry := l.WithFields(fields)
	message := fmt.Sprintf("%s %s - %d (%dms)", method, path, statusCode, duration.Milliseconds())

	switch {
	case statusCode >= 500:
		entry.Error(message)
	case statusCode >= 400:
		entry.Warn(message)
	default:
		entry.Info(message)
	}
}

// LogDBOperation logs a penalty/session-log storage operation.
func (l *Logger) LogDBOperation(operation, table string, duration time.Duration, err error) {
	fields := Fields{
		"operation":   operation,
		"table":       table,
		"duration_ms": duration.Milliseconds(),
		"type":        "db_operation",
	}

	entry := l.WithFields(fields)
	if err != nil {
		entry.WithError(err).Error(fmt.Sprintf("DB %s on %s failed", operation, table))
	} else {
		entry.Debug(fmt.Sprintf("DB %s on %s completed", operation, table))
	}
}

// LogMatchEvent logs a matchmaking lifecycle event (proposal, accept,
// decline, timeout, finalize).
func (l *Logger) LogMatchEvent(event, matchID string, details Fields) {
	fields := Fields{
		"event":    event,
		"match_id": matchID,
		"type":     "match_event",
	}
	for k, v := range details {
		fields[k] = v
	}
	l.WithFields(fields).Info(fmt.Sprintf("match event: %s", event))
}

// LogTickSummary logs the outcome of a single matcher tick.
func (l *Logger) LogTickSummary(waiting, paired int, duration time.Duration) {
	l.WithFields(Fields{
		"waiting":     waiting,
		"paired":      paired,
		"duration_ms": duration.Milliseconds(),
		"type":        "tick_summary",
	}).Debug("matcher tick completed")
}

// LogRemoteCall logs an outbound call to the Game or Users service,
// including whether the result was a synthesized fallback.
func (l *Logger) LogRemoteCall(service, operation string, duration time.Duration, fallback bool, err error) {
	fields := Fields{
		"service":     service,
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
		"fallback":    fallback,
		"type":        "remote_call",
	}

	entry := l.WithFields(fields)
	switch {
	case err != nil:
		entry.WithError(err).Error(fmt.Sprintf("%s.%s failed", service, operation))
	case fallback:
		entry.Warn(fmt.Sprintf("%s.%s returned fallback outcome", service, operation))
	default:
		entry.Debug(fmt.Sprintf("%s.%s completed", service, operation))
	}
}

// FileHook writes log entries to a rotated file.
type FileHook struct {
	writer *lumberjack.Logger
}

func (hook *FileHook) Fire(entry *logrus.Entry) error {
	line, err := entry.Bytes()
	if err != nil {
		return err
	}
	_, err = hook.writer.Write(line)
	return err
}

func (hook *FileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Package-level convenience helpers around the default logger.

func Debug(msg string, fields ...Fields) {
	GetLogger().Logger.WithFields(mergeFields(fields...)).Debug(msg)
}

func Info(msg string, fields ...Fields) {
	GetLogger().Logger.WithFields(mergeFields(fields...)).Info(msg)
}

func Warn(msg string, fields ...Fields) {
	GetLogger().Logger.WithFields(mergeFields(fields...)).Warn(msg)
}

func Error(msg string, err error, fields ...Fields) {
	entry := GetLogger().Logger.WithFields(mergeFields(fields...))
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(msg)
}

func mergeFields(fieldSlices ...Fields) logrus.Fields {
	result := make(logrus.Fields)
	for _, fields := range fieldSlices {
		for k, v := range fields {
			result[k] = v
		}
	}
	return result
}
