package utils

import (
	"log"

	"carelink/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Global logger instance
var Logger *zap.Logger

// InitializeLogger sets up the logging configuration
func InitializeLogger() {
	var cfg zap.Config

	if config.IsProduction() {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	// LOG_LEVEL overrides the environment default when it parses.
	if config.AppConfig.LogLevel != "" {
		if lvl, err := zapcore.ParseLevel(config.AppConfig.LogLevel); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		} else {
			log.Printf("Ignoring invalid LOG_LEVEL %q", config.AppConfig.LogLevel)
		}
	}

	// Create logger
	var err error
	Logger, err = cfg.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
}

// GetLogger retrieves the global logger
func GetLogger() *zap.Logger {
	if Logger == nil {
		InitializeLogger()
	}
	return Logger
}
