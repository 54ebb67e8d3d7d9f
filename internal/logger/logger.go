// Package logger provides leveled, field-structured logging for texguard.
// Entries go to a rotating log file and, optionally, to a console writer.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Level orders log entries by severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a case-insensitive level name to a Level.
// Unknown names yield LevelInfo and false.
func ParseLevel(name string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, true
	case "info", "":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	default:
		return LevelInfo, false
	}
}

// Field is one key=value pair attached to an entry.
type Field struct {
	Key   string
	Value interface{}
}

func String(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Strings joins values with commas.
func Strings(key string, values []string) Field {
	return Field{Key: key, Value: strings.Join(values, ",")}
}

// Err records err under the "error" key; a nil error renders as <nil>.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, err error, fields ...Field)
	SetLevel(level Level)
	Close() error
}

// Config selects the outputs of a DefaultLogger.
type Config struct {
	// LogFilePath is the log file; empty disables file output.
	LogFilePath string
	// MaxFileSize triggers rotation once the file would grow past it. Zero
	// disables rotation.
	MaxFileSize int64
	// MaxBackups is how many rotated files (path.1 .. path.N) are kept.
	MaxBackups int
	Level      Level
	// Console receives a copy of every entry when non-nil.
	Console io.Writer
}

// DefaultLogger writes plain-text entries to a file and a console writer.
type DefaultLogger struct {
	config   Config
	mu       sync.Mutex
	level    Level
	file     *os.File
	fileSize int64
}

const timeLayout = "2006-01-02 15:04:05.000"

// NewDefaultLogger opens the configured outputs. A nil config logs INFO and
// above to stderr only.
func NewDefaultLogger(config *Config) (*DefaultLogger, error) {
	if config == nil {
		config = &Config{Level: LevelInfo, Console: os.Stderr}
	}
	l := &DefaultLogger{config: *config, level: config.Level}

	if path := config.LogFilePath; path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		if err := l.openFile(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *DefaultLogger) openFile() error {
	file, err := os.OpenFile(l.config.LogFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	l.file = file
	l.fileSize = info.Size()
	return nil
}

func (l *DefaultLogger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, nil, fields) }

func (l *DefaultLogger) Info(msg string, fields ...Field) { l.log(LevelInfo, msg, nil, fields) }

func (l *DefaultLogger) Warn(msg string, fields ...Field) { l.log(LevelWarn, msg, nil, fields) }

func (l *DefaultLogger) Error(msg string, err error, fields ...Field) {
	l.log(LevelError, msg, err, fields)
}

func (l *DefaultLogger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// Close releases the log file. Console output keeps working afterwards.
func (l *DefaultLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *DefaultLogger) log(level Level, msg string, err error, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}
	entry := []byte(formatEntry(time.Now(), level, msg, err, fields))

	if l.file != nil {
		if l.config.MaxFileSize > 0 && l.fileSize+int64(len(entry)) > l.config.MaxFileSize {
			if rerr := l.rotate(); rerr != nil {
				fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", rerr)
			}
		}
		if l.file != nil {
			n, _ := l.file.Write(entry)
			l.fileSize += int64(n)
		}
	}
	if l.config.Console != nil {
		l.config.Console.Write(entry)
	}
}

// formatEntry renders "<time> [LEVEL] msg error="..." key=value ...".
// Values holding spaces, quotes or line breaks are quoted so every entry
// stays on one line.
func formatEntry(now time.Time, level Level, msg string, err error, fields []Field) string {
	var sb strings.Builder
	sb.WriteString(now.Format(timeLayout))
	sb.WriteString(" [")
	sb.WriteString(level.String())
	sb.WriteString("] ")
	sb.WriteString(msg)

	if err != nil {
		sb.WriteString(" error=")
		sb.WriteString(strconv.Quote(err.Error()))
	}
	for _, f := range fields {
		sb.WriteByte(' ')
		sb.WriteString(f.Key)
		sb.WriteByte('=')
		sb.WriteString(formatValue(f.Value))
	}
	sb.WriteByte('\n')
	return sb.String()
}

func formatValue(v interface{}) string {
	s := fmt.Sprint(v)
	if strings.ContainsAny(s, " \t\r\n\"") {
		return strconv.Quote(s)
	}
	return s
}

// rotate shifts path.N to path.N+1, moves the live file to path.1 and
// reopens path. Backups past MaxBackups are removed.
func (l *DefaultLogger) rotate() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	path := l.config.LogFilePath
	backup := func(i int) string { return path + "." + strconv.Itoa(i) }
	for i := l.config.MaxBackups - 1; i >= 1; i-- {
		os.Rename(backup(i), backup(i+1))
	}
	if _, err := os.Stat(path); err == nil {
		os.Rename(path, backup(1))
	}
	os.Remove(backup(l.config.MaxBackups + 1))

	return l.openFile()
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger
)

// Init replaces the package-level logger, closing the previous one.
func Init(config *Config) error {
	l, err := NewDefaultLogger(config)
	if err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger != nil {
		globalLogger.Close()
	}
	globalLogger = l
	return nil
}

// GetLogger returns the package-level logger, or a logger that drops
// everything when Init has not been called.
func GetLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()

	if globalLogger == nil {
		return noopLogger{}
	}
	return globalLogger
}

// Close closes and clears the package-level logger.
func Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalLogger == nil {
		return nil
	}
	err := globalLogger.Close()
	globalLogger = nil
	return err
}

func Debug(msg string, fields ...Field) { GetLogger().Debug(msg, fields...) }

func Info(msg string, fields ...Field) { GetLogger().Info(msg, fields...) }

func Warn(msg string, fields ...Field) { GetLogger().Warn(msg, fields...) }

func Error(msg string, err error, fields ...Field) { GetLogger().Error(msg, err, fields...) }

type noopLogger struct{}

func (noopLogger) Debug(string, ...Field)        {}
func (noopLogger) Info(string, ...Field)         {}
func (noopLogger) Warn(string, ...Field)         {}
func (noopLogger) Error(string, error, ...Field) {}
func (noopLogger) SetLevel(Level)                {}
func (noopLogger) Close() error                  { return nil }
