package main

import (
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
)

// newLogger builds the zap backed ectologger. Pretty logs use the console
// encoder for local development.
func newLogger(level string, pretty bool) (ectologger.Logger, func(), error) {
	zapCfg := zap.NewProductionConfig()
	if pretty {
		zapCfg = zap.NewDevelopmentConfig()
	}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, nil, err
	}
	zapCfg.Level = lvl

	zapLogger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, err
	}

	sync := func() { _ = zapLogger.Sync() }
	return zapadapter.NewZapEctoLogger(zapLogger, nil), sync, nil
}
