package observability

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a sugared zap logger whose level can be changed at runtime,
// e.g. after a config reload.
type Logger struct {
	*zap.SugaredLogger
	level zap.AtomicLevel
}

// ParseLevel maps debug|info|warn|error to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger creates a JSON logger with the given level writing to output
// ("stdout", "stderr" or a file path).
func NewLogger(level, output string) *Logger {
	if output == "" {
		output = "stdout"
	}
	atom := zap.NewAtomicLevelAt(ParseLevel(level))

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.LowercaseLevelEncoder

	cfg := zap.Config{
		Level:       atom,
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding:         "json",
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		// Fallback to a basic logger if configuration fails
		fallback, _ := zap.NewProduction()
		return &Logger{SugaredLogger: fallback.Sugar(), level: zap.NewAtomicLevel()}
	}
	return &Logger{SugaredLogger: logger.Sugar(), level: atom}
}

// SetLevel changes the level of this logger and everything derived from it.
func (l *Logger) SetLevel(level string) {
	l.level.SetLevel(ParseLevel(level))
}

// Level returns the current level name.
func (l *Logger) Level() string {
	return l.level.Level().String()
}
