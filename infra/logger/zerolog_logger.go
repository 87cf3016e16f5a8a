package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

var (
	settingsMu sync.RWMutex
	level      string
	format     string
	fileOut    io.Writer
)

// Configure sets the level and format ("json" or "console") of loggers
// created afterwards. Empty values fall back to LOG_LEVEL and APP_ENV.
func Configure(lvl, f string) {
	settingsMu.Lock()
	level, format = lvl, f
	settingsMu.Unlock()
}

// FileOptions configures the rotating JSON log file written next to stdout.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// SetFile makes loggers created afterwards also write JSON lines to a
// rotating file. The returned closer releases the file.
func SetFile(opts FileOptions) (io.Closer, error) {
	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	lj := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
	}
	settingsMu.Lock()
	fileOut = lj
	settingsMu.Unlock()
	return closerFunc(func() error {
		settingsMu.Lock()
		if fileOut == lj {
			fileOut = nil
		}
		settingsMu.Unlock()
		return lj.Close()
	}), nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func settings() (string, string) {
	settingsMu.RLock()
	lvl, f := level, format
	settingsMu.RUnlock()
	if lvl == "" {
		lvl = os.Getenv("LOG_LEVEL")
	}
	if f == "" && strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
		f = "console"
	}
	return lvl, f
}

// NewZerologLogger creates a ZerologLogger writing to stdout. APP_ENV=dev
// switches to a human readable console format.
func NewZerologLogger(component string) Logger {
	lvl, f := settings()
	var out io.Writer = os.Stdout
	if f == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	settingsMu.RLock()
	if fileOut != nil {
		out = zerolog.MultiLevelWriter(out, fileOut)
	}
	settingsMu.RUnlock()
	return NewWithWriter(out, component, lvl)
}

// NewWithWriter builds a logger on an arbitrary writer. An empty or unknown
// level defaults to info.
func NewWithWriter(w io.Writer, component, level string) *ZerologLogger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	z := zerolog.New(w).Level(lvl).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	l.log.Debug().Fields(fields).Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}

func (l *ZerologLogger) Errorw(msg string, err error, fields map[string]any) {
	l.log.Error().Err(err).Fields(fields).Msg(msg)
}
