package logger

import (
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a sugared zap logger. Set TANDEM_ENV=production for
// json output, otherwise a colored development logger is used.
func NewLogger() *zap.SugaredLogger {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	if os.Getenv("TANDEM_ENV") == "production" {
		config = zap.NewProductionConfig()
	}

	logger, err := config.Build()
	if err != nil {
		log.Panic(err)
	}

	// flushes buffer, if any
	defer logger.Sync()

	return logger.Sugar()
}

// Named returns a logger whose entries are tagged with the given component name.
func Named(name string) *zap.SugaredLogger {
	return NewLogger().Named(name)
}
