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

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Options configures a Logger.
type Options struct {
	// Level is one of debug, info, warn, error (case-insensitive).
	Level string
	// Format is "console" (default) or "json".
	Format string
	// Writer overrides stdout as the console destination.
	Writer io.Writer
	// Dir, if set, additionally appends to a daily file sync_YYYYMMDD.log.
	Dir string
	// NoTimestamp drops the time field; used by tests.
	NoTimestamp bool
}

// Logger writes leveled lines with key/value pairs. The zero value is not
// usable; build one with New or use Default.
type Logger struct {
	zl   zerolog.Logger
	file *os.File
}

var (
	defaultLogger *Logger
	defaultOnce   sync.Once
)

// Default returns a console logger on stderr for process bootstrap, before
// configuration is available.
func Default() *Logger {
	defaultOnce.Do(func() {
		defaultLogger, _ = New(Options{Writer: os.Stderr})
	})
	return defaultLogger
}

// New builds a Logger. The only error source is opening the log file.
func New(opt Options) (*Logger, error) {
	var console io.Writer = os.Stdout
	if opt.Writer != nil {
		console = opt.Writer
	}

	l := &Logger{}

	var out io.Writer
	if strings.EqualFold(opt.Format, "json") {
		out = console
	} else {
		cw := zerolog.ConsoleWriter{Out: console, TimeFormat: time.DateTime, NoColor: opt.Writer != nil}
		if opt.NoTimestamp {
			cw.PartsExclude = []string{zerolog.TimestampFieldName}
		}
		out = cw
	}

	if opt.Dir != "" {
		f, err := openDailyFile(opt.Dir, time.Now())
		if err != nil {
			return nil, err
		}
		l.file = f
		// The file always receives JSON lines.
		out = zerolog.MultiLevelWriter(out, f)
	}

	ctx := zerolog.New(out).Level(ParseLevel(opt.Level).toZerolog()).With()
	if !opt.NoTimestamp {
		ctx = ctx.Timestamp()
	}
	l.zl = ctx.Logger()
	return l, nil
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Close releases the daily log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// With returns a child logger that always carries the given pairs.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{zl: l.zl.With().Fields(pairs(kv)).Logger()}
}

func (l *Logger) Debug(msg string, kv ...any) {
	l.zl.Debug().Fields(pairs(kv)).Msg(msg)
}

func (l *Logger) Info(msg string, kv ...any) {
	l.zl.Info().Fields(pairs(kv)).Msg(msg)
}

func (l *Logger) Warn(msg string, kv ...any) {
	l.zl.Warn().Fields(pairs(kv)).Msg(msg)
}

func (l *Logger) Error(msg string, err error, kv ...any) {
	l.zl.Error().Err(err).Fields(pairs(kv)).Msg(msg)
}

// ParseLevel maps a config string to a Level; unknown values mean info.
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

func (lv Level) toZerolog() zerolog.Level {
	switch lv {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// pairs turns key, value, key, value ... into a field map. Non-string keys
// are skipped and a trailing odd value is ignored.
func pairs(kv []any) map[string]any {
	if len(kv) < 2 {
		return nil
	}
	out := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		out[key] = safeValue(kv[i+1])
	}
	return out
}

func safeValue(v any) any {
	switch t := v.(type) {
	case string, bool, int, int64, float64, time.Time, time.Duration, nil:
		return t
	case error:
		return t.Error()
	case fmt.Stringer:
		return t.String()
	default:
		return v
	}
}

func openDailyFile(dir string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	name := filepath.Join(dir, now.Format("sync_20060102.log"))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
