// Package logger writes request-scoped log lines of the form
// "[level] request_id=... operation=... ...".
package logger

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var minLevel atomic.Int32

func init() { minLevel.Store(int32(LevelInfo)) }

// ParseLevel accepts debug, info, warn/warning and error. Unknown names map
// to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel drops every line below l, process-wide.
func SetLevel(l Level) { minLevel.Store(int32(l)) }

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

type requestIDKey struct{}

// WithRequestID returns a context carrying the request ID.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, rid)
}

// RequestID extracts the request ID from a context, or "" when absent.
func RequestID(ctx context.Context) string {
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		return rid
	}
	return ""
}

type Logger struct {
	requestID string
}

// New binds a logger to the request in ctx. Work with no request in scope
// logs as request_id=background.
func New(ctx context.Context) *Logger {
	requestID := "background"
	if ctx != nil {
		if rid := RequestID(ctx); rid != "" {
			requestID = rid
		}
	}
	return &Logger{requestID: requestID}
}

func (l *Logger) emit(level Level, operation, msg string) {
	if int32(level) < minLevel.Load() {
		return
	}
	log.Printf("[%s] request_id=%s operation=%s %s", level, l.requestID, operation, msg)
}

func (l *Logger) LogError(operation string, err error) {
	l.emit(LevelError, operation, fmt.Sprintf("error=%v", err))
}

func (l *Logger) LogErrorf(operation string, format string, args ...interface{}) {
	l.emit(LevelError, operation, fmt.Sprintf(format, args...))
}

func (l *Logger) LogInfo(operation string, message string) {
	l.emit(LevelInfo, operation, "message="+message)
}

func (l *Logger) LogInfof(operation string, format string, args ...interface{}) {
	l.emit(LevelInfo, operation, fmt.Sprintf(format, args...))
}

func (l *Logger) LogWarn(operation string, message string) {
	l.emit(LevelWarn, operation, "message="+message)
}

func (l *Logger) LogWarnf(operation string, format string, args ...interface{}) {
	l.emit(LevelWarn, operation, fmt.Sprintf(format, args...))
}

func (l *Logger) LogDebugf(operation string, format string, args ...interface{}) {
	l.emit(LevelDebug, operation, fmt.Sprintf(format, args...))
}
