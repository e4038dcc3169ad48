package api

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// LogLevel 日志级别
type LogLevel int

const (
	LogError LogLevel = iota
	LogWarn
	LogInfo
	LogDebug
)

// String 返回日志级别字符串
func (l LogLevel) String() string {
	switch l {
	case LogError:
		return "ERROR"
	case LogWarn:
		return "WARN"
	case LogInfo:
		return "INFO"
	case LogDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel 解析日志级别字符串（不区分大小写）
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LogError, nil
	case "warn", "warning":
		return LogWarn, nil
	case "", "info":
		return LogInfo, nil
	case "debug":
		return LogDebug, nil
	default:
		return LogInfo, fmt.Errorf("unknown log level: %q", s)
	}
}

func (l LogLevel) zerologLevel() zerolog.Level {
	switch l {
	case LogError:
		return zerolog.ErrorLevel
	case LogWarn:
		return zerolog.WarnLevel
	case LogDebug:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// Logger 日志接口
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	SetLevel(level LogLevel)
	GetLevel() LogLevel
}

// StackLogger is implemented by loggers that can attach a captured call
// stack to a warning as a structured field.
type StackLogger interface {
	WarnStack(stack []string, format string, args ...interface{})
}

// WarnWithStack logs a warning carrying stack. Loggers without StackLogger
// get the frames appended to the message.
func WarnWithStack(logger Logger, stack []string, format string, args ...interface{}) {
	if sl, ok := logger.(StackLogger); ok {
		sl.WarnStack(stack, format, args...)
		return
	}
	if len(stack) == 0 {
		logger.Warn(format, args...)
		return
	}
	logger.Warn(format+"\n%s", append(args, strings.Join(stack, "\n"))...)
}

// DefaultLogger 默认日志实现，底层使用 zerolog
type DefaultLogger struct {
	level LogLevel
	mu    sync.Mutex
	zl    zerolog.Logger
}

// NewDefaultLogger 创建默认日志（文本格式，输出到 stdout）
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	return NewLogger(level, "text", os.Stdout)
}

// NewDefaultLoggerWithOutput 创建带输出的默认日志（JSON 格式）
func NewDefaultLoggerWithOutput(level LogLevel, output io.Writer) *DefaultLogger {
	return NewLogger(level, "json", output)
}

// NewLogger 按格式创建日志: "json" 输出 JSON 行, 其它输出无颜色的文本
func NewLogger(level LogLevel, format string, output io.Writer) *DefaultLogger {
	if output == nil {
		output = os.Stdout
	}
	if format != "json" {
		output = zerolog.ConsoleWriter{Out: output, NoColor: true, TimeFormat: "2006-01-02 15:04:05"}
	}
	zl := zerolog.New(output).With().Timestamp().Logger().Level(level.zerologLevel())
	return &DefaultLogger{
		level: level,
		zl:    zl,
	}
}

// SetLevel 设置日志级别
func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.zl = l.zl.Level(level.zerologLevel())
}

// GetLevel 获取日志级别
func (l *DefaultLogger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// Debug 输出 DEBUG 级别日志
func (l *DefaultLogger) Debug(format string, args ...interface{}) {
	zl := l.logger()
	zl.Debug().Msgf(format, args...)
}

// Info 输出 INFO 级别日志
func (l *DefaultLogger) Info(format string, args ...interface{}) {
	zl := l.logger()
	zl.Info().Msgf(format, args...)
}

// Warn 输出 WARN 级别日志
func (l *DefaultLogger) Warn(format string, args ...interface{}) {
	zl := l.logger()
	zl.Warn().Msgf(format, args...)
}

// Error 输出 ERROR 级别日志
func (l *DefaultLogger) Error(format string, args ...interface{}) {
	zl := l.logger()
	zl.Error().Msgf(format, args...)
}

// WarnStack 输出带调用堆栈的 WARN 级别日志
func (l *DefaultLogger) WarnStack(stack []string, format string, args ...interface{}) {
	zl := l.logger()
	zl.Warn().Strs("stack", stack).Msgf(format, args...)
}

func (l *DefaultLogger) logger() zerolog.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.zl
}

// NoOpLogger 空日志实现（用于禁用日志）
type NoOpLogger struct{}

// NewNoOpLogger 创建空日志
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(format string, args ...interface{}) {}
func (l *NoOpLogger) Info(format string, args ...interface{})  {}
func (l *NoOpLogger) Warn(format string, args ...interface{})  {}
func (l *NoOpLogger) Error(format string, args ...interface{}) {}
func (l *NoOpLogger) SetLevel(level LogLevel)                  {}
func (l *NoOpLogger) GetLevel() LogLevel                       { return LogInfo }
