// internal/logger/logger.go
//
// Structured JSON logger (Zap + Lumberjack).
//
// Context
// -------
// The forms server writes submission outcomes, security rejections, and
// conditional-engine warnings to one JSON log per day under
// `<dir>/YYYY-MM-DD.log`.  When running in an interactive TTY we tee the same
// events, colorized, to stdout.  Rotation, compression, and retention are
// handled by Lumberjack.
//
// Request-scoped loggers travel in context.Context so the submission pipeline
// can tag every line with the form ID without threading a logger through
// each helper.
//
// Usage
// -----
//
//	log, err := logger.New(cfg.Log.Dir, cfg.Log.Tee)
//	ctx = logger.WithContext(ctx, log.With("form", id))
//	logger.FromContext(ctx).Warnw("circular dependency", "field", f)
//
// Notes
// -----
// • Zap core uses ISO-8601 timestamps and lowercase levels.
// • Oxford commas, two spaces after periods.
package logger

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a *zap.SugaredLogger that writes JSON to dir/YYYY-MM-DD.log.
// When tee == true, a console core is also attached.  The logger is
// installed as the process-wide default via zap.ReplaceGlobals.
func New(dir string, tee bool) (*zap.SugaredLogger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	fileSink := &lumberjack.Logger{
		Filename:   filepath.Join(dir, time.Now().Format("2006-01-02")+".log"),
		MaxSize:    50, // MB
		MaxBackups: 7,
		MaxAge:     14, // days
		Compress:   true,
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:      "ts",
		LevelKey:     "level",
		MessageKey:   "msg",
		CallerKey:    "caller",
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeLevel:  zapcore.LowercaseLevelEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(fileSink), zap.InfoLevel),
	}
	if tee {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.AddSync(os.Stdout),
			zap.InfoLevel,
		))
	}

	z := zap.New(
		zapcore.NewTee(cores...),
		zap.ErrorOutput(zapcore.AddSync(fileSink)),
	).Sugar()

	zap.ReplaceGlobals(z.Desugar())

	z.Infow("logger online", "dir", dir, "tee", tee)
	return z, nil
}

type ctxKey struct{}

// WithContext stores l in ctx.  A nil logger leaves ctx untouched.
func WithContext(ctx context.Context, l *zap.SugaredLogger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored by WithContext, or the global
// sugared logger when none is present.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.SugaredLogger); ok {
			return l
		}
	}
	return zap.S()
}
