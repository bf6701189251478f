// Package logger provides structured logging for lorastudio.
// Messages are key/value pairs on top of zap's SugaredLogger. Debug
// messages are only emitted when verbose mode is enabled via --verbose.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap SugaredLogger with key/value sanitisation.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

var (
	mu     sync.RWMutex
	mode   = "development"
	output io.Writer = os.Stderr
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	std    = build(mode, output)
)

// New creates a standalone logger. Mode "prod"/"production" emits JSON,
// anything else emits zap's development console format.
func New(m string, w io.Writer) *Logger {
	return &Logger{SugaredLogger: newCore(m, w, zap.NewAtomicLevelAt(zapcore.DebugLevel))}
}

func build(m string, w io.Writer) *Logger {
	return &Logger{SugaredLogger: newCore(m, w, level)}
}

func newCore(m string, w io.Writer, lvl zap.AtomicLevel) *zap.SugaredLogger {
	var encCfg zapcore.EncoderConfig
	var enc zapcore.Encoder
	switch strings.ToLower(m) {
	case "prod", "production":
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		encCfg = zap.NewDevelopmentEncoderConfig()
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), lvl)
	return zap.New(core).Sugar()
}

// Init configures the package logger. Called once by the CLI root command.
func Init(m string, verbose bool) {
	mu.Lock()
	defer mu.Unlock()
	mode = m
	std = build(mode, output)
	setLevel(verbose)
}

// SetVerbose enables or disables debug output.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	setLevel(v)
}

func setLevel(v bool) {
	if v {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.InfoLevel)
	}
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	return level.Enabled(zapcore.DebugLevel)
}

// SetOutput sets the output writer for the package logger.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	std = build(mode, output)
}

// L returns the package logger.
func L() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

// Sync flushes buffered entries.
func Sync() {
	L().Sync()
}

// Debug logs a message if verbose mode is enabled.
func Debug(msg string, keysAndValues ...any) { L().Debug(msg, keysAndValues...) }

// Info logs an informational message.
func Info(msg string, keysAndValues ...any) { L().Info(msg, keysAndValues...) }

// Warn logs a warning.
func Warn(msg string, keysAndValues ...any) { L().Warn(msg, keysAndValues...) }

// Error logs an error.
func Error(msg string, keysAndValues ...any) { L().Error(msg, keysAndValues...) }

// With returns a child of the package logger carrying keysAndValues.
func With(keysAndValues ...any) *Logger { return L().With(keysAndValues...) }

// Section logs a section header if verbose mode is enabled.
func Section(name string) {
	L().Debug(fmt.Sprintf("=== %s ===", name))
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...any) {
	l.SugaredLogger.Debugw(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Info(msg string, keysAndValues ...any) {
	l.SugaredLogger.Infow(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Warn(msg string, keysAndValues ...any) {
	l.SugaredLogger.Warnw(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Error(msg string, keysAndValues ...any) {
	l.SugaredLogger.Errorw(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(sanitizeKVs(keysAndValues)...)}
}

func sanitizeKVs(kv []any) []any {
	if len(kv) == 0 {
		return kv
	}
	out := make([]any, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		key := strings.TrimSpace(strings.ToLower(toString(kv[i])))
		out = append(out, toString(kv[i]), sanitizeValue(key, kv[i+1]))
	}
	return out
}

func sanitizeValue(key string, val any) any {
	if isRedactKey(key) {
		return "[REDACTED]"
	}
	if m, ok := val.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = sanitizeValue(strings.ToLower(k), v)
		}
		return out
	}
	return val
}

// isRedactKey covers credentials and detected PII previews.
func isRedactKey(key string) bool {
	switch {
	case strings.Contains(key, "token"),
		strings.Contains(key, "password"),
		strings.Contains(key, "secret"),
		strings.Contains(key, "api_key"),
		strings.Contains(key, "email"),
		strings.Contains(key, "pii_value"):
		return true
	default:
		return false
	}
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
