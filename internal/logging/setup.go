// ABOUTME: Structured logger setup using zap.
// ABOUTME: Installs the process-wide logger used through zap.L() and zap.S().

package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the global logger
type Options struct {
	Level    string // debug, info, warn, error
	Encoding string // console or json
	Verbose  bool   // development encoder config with caller and stack traces
}

// Encoder returns the zap encoder for the configured encoding.
func (opts Options) Encoder() (zapcore.Encoder, error) {
	switch opts.Encoding {
	case "json":
		if opts.Verbose {
			return zapcore.NewJSONEncoder(zap.NewDevelopmentEncoderConfig()), nil
		}
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), nil
	case "console", "":
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		return zapcore.NewConsoleEncoder(cfg), nil
	default:
		return nil, fmt.Errorf("unknown log encoding %q", opts.Encoding)
	}
}

// NewLogger builds a logger writing to stderr.
func (opts Options) NewLogger() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %w", err)
		}
		level = lvl
	}
	enc, err := opts.Encoder()
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)
	zapOpts := []zap.Option{zap.ErrorOutput(zapcore.Lock(os.Stderr))}
	if opts.Verbose {
		zapOpts = append(zapOpts, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return zap.New(core, zapOpts...), nil
}

// Setup installs the logger globally and returns a function restoring the previous one.
func Setup(opts Options) (func(), error) {
	logger, err := opts.NewLogger()
	if err != nil {
		return nil, err
	}
	undo := zap.ReplaceGlobals(logger)
	return func() {
		logger.Sync()
		undo()
	}, nil
}
