// Package logging constructs the single *zap.Logger shared by every
// component via constructor injection, per spec.md §9's "module-level
// singletons -> constructor-injected handles" design note. Grounded on
// uhyunpark-hyperlicked's use of go.uber.org/zap for ambient structured
// logging.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func zapWriter() *os.File { return os.Stdout }

// Config selects the logger's verbosity and encoding.
type Config struct {
	Level  string // debug | info | warn | error
	Format string // json | console
}

// New builds a *zap.Logger per cfg. Callers own its lifetime and should
// defer logger.Sync() at shutdown.
func New(cfg Config) (*zap.Logger, error) {
	level := parseLevel(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(zapWriter())), level)
	return zap.New(core, zap.AddCaller()), nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
