package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/actuator/internal/runtime/config"
	errspkg "github.com/drblury/actuator/internal/runtime/errors"
	"github.com/drblury/actuator/transport"

	_ "github.com/drblury/actuator/transport/transports"
)

// Factory abstracts how the service creates broker connections for listener
// containers and the audit publisher.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, binding transport.Binding, logger watermill.LoggerAdapter) (transport.Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, binding transport.Binding, logger watermill.LoggerAdapter) (transport.Transport, error)

func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, binding transport.Binding, logger watermill.LoggerAdapter) (transport.Transport, error) {
	return f(ctx, conf, binding, logger)
}

// DefaultFactory returns the factory backed by the transport registry.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Build(ctx context.Context, conf *config.Config, binding transport.Binding, logger watermill.LoggerAdapter) (transport.Transport, error) {
	if conf == nil {
		return transport.Transport{}, errspkg.ErrConfigRequired
	}
	return transport.Build(ctx, conf, binding, logger)
}
