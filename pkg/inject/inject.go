// Package inject builds the dependency container request handlers and
// commands resolve services from.
package inject

import (
	"context"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectoinject/loglevel"
	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"
)

// NewContainer creates and registers a container under id. Container
// diagnostics go to logger.
func NewContainer(id string, logger ectologger.Logger) (ectocontainer.DIContainer, error) {
	cfg := ectoinject.DefaultContainerConfig
	cfg.ID = id
	cfg.LoggerConfig = &ectocontainer.DIContainerLoggerConfig{
		Prefix:   "ectoinject",
		LogLevel: loglevel.WARN,
		Enabled:  true,
		LogFunc: func(ctx context.Context, level, msg string) {
			if level == loglevel.WARN {
				logger.WithContext(ctx).Warn(msg)
				return
			}
			logger.WithContext(ctx).Debug(msg)
		},
	}

	container, err := ectoinject.NewDIContainer(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create container %s", id)
	}
	return container, nil
}

// Instance registers value as the singleton for T.
func Instance[T any](container ectocontainer.DIContainer, value T) error {
	if err := ectoinject.RegisterInstance[T](container, value); err != nil {
		return errors.Wrapf(err, "failed to register %T", value)
	}
	return nil
}

// WithContainer makes the container registered under id the one resolved
// from ctx.
func WithContainer(ctx context.Context, id string) (context.Context, error) {
	return ectoinject.SetActiveContainer(ctx, id)
}
