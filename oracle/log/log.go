package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	customLog logger
	mu        sync.RWMutex
)

type logger struct {
	out  io.Writer
	base zerolog.Logger
	dir  string
}

func init() {
	InitLogger()
}

// InitLogger writes human readable output to stdout at debug level.
func InitLogger() {
	mu.Lock()
	defer mu.Unlock()

	out := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
	customLog = logger{
		out:  out,
		base: newLogger(out),
		dir:  "",
	}
}

// InitJSONLogger writes one JSON object per line to w.
func InitJSONLogger(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	customLog = logger{out: w, base: newLogger(w)}
}

// ResetLogger redirects all output to a per-process file under <home>/logs.
func ResetLogger(home string) {
	dir := filepath.Join(home, "logs")
	if home == "" {
		osHome, err := os.UserHomeDir()
		if err != nil {
			Fatalf("Failed to get user home directory: %v", err)
		}
		dir = filepath.Join(osHome, ".ondemand", "logs")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		Fatalf("Failed to create log directory %s: %v", dir, err)
	}

	name := fmt.Sprintf("%s.%d.log", filepath.Base(os.Args[0]), os.Getpid())
	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		Fatalf("Failed to create log file: %v", err)
	}

	Infof("From now on, all logs will be written to %s", path)

	mu.Lock()
	defer mu.Unlock()
	customLog = logger{
		out:  file,
		base: newLogger(file).Level(customLog.base.GetLevel()),
		dir:  dir,
	}
}

// SetLevel accepts zerolog level names (debug, info, warn, error).
func SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	mu.Lock()
	defer mu.Unlock()
	customLog.base = customLog.base.Level(lvl)

	return nil
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()

	return zerolog.New(customLog.out).
		Level(customLog.base.GetLevel()).
		With().Timestamp().Caller().Str("component", name).
		Logger()
}

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().CallerWithSkipFrameCount(3).Logger()
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()

	l := customLog.base
	return &l
}

func Debug(v ...any) {
	current().Debug().Msg(fmt.Sprint(v...))
}

func Debugf(format string, v ...any) {
	current().Debug().Msgf(format, v...)
}

func Info(v ...any) {
	current().Info().Msg(fmt.Sprint(v...))
}

func Infof(format string, v ...any) {
	current().Info().Msgf(format, v...)
}

func Warnf(format string, v ...any) {
	current().Warn().Msgf(format, v...)
}

func Error(v ...any) {
	current().Error().Msg(fmt.Sprint(v...))
}

func Errorf(format string, v ...any) {
	current().Error().Msgf(format, v...)
}

func Fatal(v ...any) {
	current().Fatal().Msg(fmt.Sprint(v...))
}

func Fatalf(format string, v ...any) {
	current().Fatal().Msgf(format, v...)
}
