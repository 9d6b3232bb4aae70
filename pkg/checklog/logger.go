package checklog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// TimeFormat is the timestamp layout of every log line.
const TimeFormat = "2006-01-02 15:04:05"

var setupOnce sync.Once

type Config struct {
	LogLevel    string
	LogFileName string
	Console     bool
	MaxFileSize int // megabytes before lumberjack rotates the file
	MaxBackups  int
	RunID       string
	RunBanner   bool // box banner ahead of the first entry of each run
}

// Sink owns the log file behind a logger. Close it once the run is over.
type Sink struct {
	Logger zerolog.Logger
	file   *lumberjack.Logger
}

// Close flushes and closes the underlying log file.
func (s *Sink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// =============================
// Console Writer
// =============================

// ConsoleWriterWithLevel wraps zerolog.ConsoleWriter to satisfy the LevelWriter interface.
type ConsoleWriterWithLevel struct {
	zerolog.ConsoleWriter
}

// WriteLevel must return len(p): ConsoleWriter rewrites the entry and reports
// the rewritten length, which zerolog treats as a short write.
func (c ConsoleWriterWithLevel) WriteLevel(_ zerolog.Level, p []byte) (int, error) {
	_, err := c.ConsoleWriter.Write(p)
	return len(p), err
}

// =============================
// File Writer
// =============================

// FileWriterWithLevel turns zerolog JSON entries into
// "ts | LEVEL | message | k=v" lines before they reach Out.
type FileWriterWithLevel struct {
	Out io.Writer
}

func (f FileWriterWithLevel) Write(p []byte) (int, error) {
	return f.WriteLevel(zerolog.NoLevel, p)
}

// WriteLevel implements zerolog.LevelWriter. Unparseable entries are written raw.
func (f FileWriterWithLevel) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	formatted, err := formatLogEntry(level, p)
	if err != nil {
		return f.Out.Write(p)
	}
	_, err = io.WriteString(f.Out, formatted)
	return len(p), err
}

// =============================
// Formatting Helpers
// =============================

func formatLogEntry(level zerolog.Level, p []byte) (string, error) {
	var entry map[string]interface{}
	if err := json.Unmarshal(p, &entry); err != nil {
		return "", err
	}

	timestamp, _ := entry[zerolog.TimestampFieldName].(string)
	message, _ := entry[zerolog.MessageFieldName].(string)
	if level == zerolog.NoLevel {
		if lvl, ok := entry[zerolog.LevelFieldName].(string); ok {
			level, _ = zerolog.ParseLevel(lvl)
		}
	}

	line := fmt.Sprintf("%s | %s | %s", timestamp, LevelName(level), message)
	if extras := collectExtraFields(entry); len(extras) > 0 {
		line += " | " + strings.Join(extras, " ")
	}
	return line + "\n", nil
}

// LevelName renders a zerolog level the way the log file spells it.
func LevelName(level zerolog.Level) string {
	switch level {
	case zerolog.WarnLevel:
		return "WARNING"
	case zerolog.NoLevel:
		return "-"
	default:
		return strings.ToUpper(level.String())
	}
}

// collectExtraFields returns sorted key=value pairs for non-standard fields.
func collectExtraFields(entry map[string]interface{}) []string {
	standard := map[string]bool{
		zerolog.TimestampFieldName: true,
		zerolog.MessageFieldName:   true,
		zerolog.LevelFieldName:     true,
		zerolog.CallerFieldName:    true,
	}
	var extras []string
	for k, v := range entry {
		if !standard[k] {
			extras = append(extras, fmt.Sprintf("%s=%v", k, v))
		}
	}
	sort.Strings(extras)
	return extras
}

// =============================
// Run Separator
// =============================

// writeRunSeparator writes a box banner marking the start of a run.
func writeRunSeparator(w io.Writer, runID string, now time.Time) {
	line1 := fmt.Sprintf("  Started : %s", now.Format(TimeFormat))
	line2 := fmt.Sprintf("  Run     : %s", runID)

	width := 50
	for _, l := range []string{line1, line2} {
		if len(l)+4 > width {
			width = len(l) + 4
		}
	}

	top := "┌" + strings.Repeat("─", width) + "┐"
	mid := "│" + fmt.Sprintf("%-*s", width, "  ▶  STREAM CHECK STARTED") + "│"
	div := "├" + strings.Repeat("─", width) + "┤"
	row1 := "│" + fmt.Sprintf("%-*s", width, line1) + "│"
	row2 := "│" + fmt.Sprintf("%-*s", width, line2) + "│"
	bottom := "└" + strings.Repeat("─", width) + "┘"

	_, _ = fmt.Fprintf(w, "\n%s\n%s\n%s\n%s\n%s\n%s\n\n", top, mid, div, row1, row2, bottom)
}

// =============================
// Constructors
// =============================

func setupGlobals() {
	setupOnce.Do(func() {
		zerolog.TimeFieldFormat = TimeFormat
		zerolog.TimestampFunc = func() time.Time {
			return time.Now().Local()
		}
	})
}

// NewWithWriter builds a logger that writes formatted lines to w only.
func NewWithWriter(w io.Writer, level string) zerolog.Logger {
	setupGlobals()
	return zerolog.New(FileWriterWithLevel{Out: w}).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// New opens the append-only log file and returns a sink whose logger writes
// to it and, if cfg.Console is set, to stderr.
func New(cfg Config) (*Sink, error) {
	setupGlobals()

	if dir := filepath.Dir(cfg.LogFileName); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = 100
	}
	lj := &lumberjack.Logger{
		Filename:   cfg.LogFileName,
		MaxSize:    maxSize,
		MaxBackups: cfg.MaxBackups,
	}
	if cfg.RunBanner {
		writeRunSeparator(lj, cfg.RunID, time.Now())
	}

	writers := []io.Writer{FileWriterWithLevel{Out: lj}}
	if cfg.Console {
		writers = append(writers, buildConsoleWriter())
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.LogLevel)).
		With().
		Timestamp().
		Logger()

	logger.Debug().Str("run", cfg.RunID).Msg("Run started")

	return &Sink{Logger: logger, file: lj}, nil
}

func buildConsoleWriter() ConsoleWriterWithLevel {
	return ConsoleWriterWithLevel{
		ConsoleWriter: zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: TimeFormat,
		},
	}
}

// ParseLevel maps "debug", "warn", ... to a zerolog level, falling back to info.
func ParseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}
