// Package obslog constructs the process-wide zap logger in main and
// hands it to every engine as an explicit constructor argument,
// generalizing the MOHCentral-opm-stats-api worker pool's
// logger.Sugar() idiom in place of the teacher's log.Printf calls.
package obslog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.Logger appropriate for the given environment:
// human-readable console output in development, JSON in anything else.
func New(appEnv string) (*zap.Logger, error) {
	if appEnv == "development" {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	return cfg.Build()
}
