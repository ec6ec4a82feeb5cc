// Package logging builds the zap logger the runtime's subsystems
// report through when the host does not install its own.
package logging

import (
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level and encoding of the fallback logger. It is
// read from TELEMETRY_LOG_* environment variables.
type Config struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"` // json or console
}

// New builds a logger from the given configuration.
func New(cfg Config) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Encoding:          cfg.Format,
		EncoderConfig:     encoderConfig(cfg.Format),
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     true,
		DisableStacktrace: true,
	}
	return zapCfg.Build()
}

// FromEnvironment builds a logger from TELEMETRY_LOG_* variables.
// Unusable settings fall back to a no-op logger rather than failing
// runtime construction.
func FromEnvironment() *zap.Logger {
	var cfg Config
	if err := envconfig.Process("telemetry_log", &cfg); err != nil {
		return zap.NewNop()
	}
	logger, err := New(cfg)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func encoderConfig(format string) zapcore.EncoderConfig {
	enc := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	if format == "console" {
		enc.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return enc
}
