// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: debug.go - cold-path diagnostics on stderr
//
// Purpose:
//   - Reports setup, layout and shutdown information for a run.
//   - Backed by a zap logger; stdout stays reserved for the event protocol.
//
// Notes:
//   - DropMessage / DropError are the short forms used across the tree.
//   - Init swaps the process logger; until then a production logger is used.
//
// ⚠️ Never invoke in spin loops - use only for setup and failure diagnostics.
// ─────────────────────────────────────────────────────────────────────────────

package debug

import (
	"io"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config defines logger configuration.
type Config struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	OutputPaths []string

	// Output, when set, receives every entry and replaces OutputPaths.
	Output io.Writer
}

// DefaultConfig writes JSON at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:       "info",
		Development: false,
		OutputPaths: []string{"stderr"},
	}
}

var current atomic.Pointer[zap.Logger]

func init() {
	l, err := New(DefaultConfig())
	if err != nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

// New builds a zap logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if cfg.Output != nil {
		return newWriter(cfg, level), nil
	}
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stderr"}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          encodingFormat(cfg.Development),
		EncoderConfig:     encoderConfig(cfg.Development),
		OutputPaths:       cfg.OutputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !cfg.Development,
	}
	return zapCfg.Build()
}

// newWriter mirrors zap.Config.Build for a caller-supplied writer.
func newWriter(cfg Config, level zapcore.Level) *zap.Logger {
	ws := zapcore.Lock(zapcore.AddSync(cfg.Output))

	var enc zapcore.Encoder
	if cfg.Development {
		enc = zapcore.NewConsoleEncoder(encoderConfig(true))
	} else {
		enc = zapcore.NewJSONEncoder(encoderConfig(false))
	}

	opts := []zap.Option{zap.ErrorOutput(ws), zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development(), zap.AddStacktrace(zapcore.WarnLevel))
	}
	return zap.New(zapcore.NewCore(enc, ws, zap.NewAtomicLevelAt(level)), opts...)
}

// Init replaces the process logger and returns it.
func Init(cfg Config) (*zap.Logger, error) {
	l, err := New(cfg)
	if err != nil {
		return nil, err
	}
	Use(l)
	return l, nil
}

// Use installs l as the process logger.
func Use(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

// L returns the process logger.
func L() *zap.Logger {
	return current.Load()
}

// Sync flushes the process logger. Errors from syncing a terminal are
// ignored.
func Sync() {
	_ = current.Load().Sync()
}

// DropError logs err under prefix. A nil err logs the prefix alone as a
// warning.
func DropError(prefix string, err error) {
	if err != nil {
		current.Load().Error(prefix, zap.Error(err))
		return
	}
	current.Load().Warn(prefix)
}

// DropMessage logs an informational message under prefix.
func DropMessage(prefix, message string) {
	current.Load().Info(message, zap.String("component", prefix))
}

func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

func encodingFormat(development bool) string {
	if development {
		return "console"
	}
	return "json"
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		return zapcore.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}
	}
	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}
