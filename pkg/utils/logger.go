package utils

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions параметры ротации файла логов
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger структура логгера поверх logrus
type Logger struct {
	entry *logrus.Entry
}

type ctxKey string

// RequestIDKey ключ контекста для идентификатора запроса
const RequestIDKey ctxKey = "request_id"

// NewLogger создает новый логгер
func NewLogger(level, format string) *Logger {
	return NewLoggerWithFile(level, format, nil)
}

// NewLoggerWithFile создает логгер, дублирующий вывод в ротируемый файл
func NewLoggerWithFile(level, format string, file *FileOptions) *Logger {
	base := logrus.New()

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	if format == "json" {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stdout
	if file != nil && file.Path != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
		})
	}
	base.SetOutput(out)

	// Информация о вызывающем коде только в debug
	base.SetReportCaller(lvl >= logrus.DebugLevel)

	return &Logger{entry: logrus.NewEntry(base)}
}

// WithField добавляет поле к логгеру
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithFields добавляет несколько полей к логгеру
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

// WithContext добавляет идентификатор запроса из контекста
func (l *Logger) WithContext(ctx context.Context) *Logger {
	entry := l.entry.WithContext(ctx)
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		entry = entry.WithField("request_id", id)
	}
	return &Logger{entry: entry}
}

// Entry возвращает logrus.Entry для библиотек, принимающих его напрямую
func (l *Logger) Entry() *logrus.Entry {
	return l.entry
}

// Debug логирует сообщение уровня debug
func (l *Logger) Debug(msg string) { l.entry.Debug(msg) }

// Debugf логирует форматированное сообщение уровня debug
func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

// Info логирует сообщение уровня info
func (l *Logger) Info(msg string) { l.entry.Info(msg) }

// Infof логирует форматированное сообщение уровня info
func (l *Logger) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

// Warn логирует сообщение уровня warn
func (l *Logger) Warn(msg string) { l.entry.Warn(msg) }

// Warnf логирует форматированное сообщение уровня warn
func (l *Logger) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

// Error логирует сообщение уровня error
func (l *Logger) Error(msg string) { l.entry.Error(msg) }

// Errorf логирует форматированное сообщение уровня error
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// Fatal логирует сообщение уровня fatal и завершает программу
func (l *Logger) Fatal(msg string) { l.entry.Fatal(msg) }

// Fatalf логирует форматированное сообщение уровня fatal и завершает программу
func (l *Logger) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

var defaultLogger = NewLogger("info", "text")

// DefaultLogger возвращает логгер по умолчанию
func DefaultLogger() *Logger {
	return defaultLogger
}

// SetDefaultLogger устанавливает логгер по умолчанию
func SetDefaultLogger(logger *Logger) {
	if logger != nil {
		defaultLogger = logger
	}
}

// Info логирует сообщение уровня info логгером по умолчанию
func Info(msg string) {
	defaultLogger.Info(msg)
}

// Warn логирует сообщение уровня warn логгером по умолчанию
func Warn(msg string) {
	defaultLogger.Warn(msg)
}

// Error логирует сообщение уровня error логгером по умолчанию
func Error(msg string) {
	defaultLogger.Error(msg)
}
