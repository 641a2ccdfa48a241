package transport

import (
	"context"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/actuator/internal/runtime/config"
	errspkg "github.com/drblury/actuator/internal/runtime/errors"
	"github.com/drblury/actuator/transport"
	"github.com/drblury/actuator/transport/channel"
)

func TestDefaultFactoryBuildsChannel(t *testing.T) {
	t.Cleanup(func() { _ = channel.Reset() })

	tr, err := DefaultFactory().Build(context.Background(), &config.Config{PubSubSystem: "channel"}, transport.Binding{Destination: "orders"}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.NotNil(t, tr.Publisher)
	assert.NotNil(t, tr.Subscriber)
	assert.NoError(t, tr.Close())
}

func TestDefaultFactoryRequiresConfig(t *testing.T) {
	_, err := DefaultFactory().Build(context.Background(), nil, transport.Binding{}, watermill.NopLogger{})
	assert.ErrorIs(t, err, errspkg.ErrConfigRequired)
}

func TestDefaultFactoryUnknownSystem(t *testing.T) {
	_, err := DefaultFactory().Build(context.Background(), &config.Config{PubSubSystem: "carrier-pigeon"}, transport.Binding{}, watermill.NopLogger{})
	assert.Error(t, err)
}

func TestFactoryFunc(t *testing.T) {
	called := false
	f := FactoryFunc(func(ctx context.Context, conf *config.Config, binding transport.Binding, logger watermill.LoggerAdapter) (transport.Transport, error) {
		called = true
		assert.Equal(t, "c1", binding.ClientID)
		return transport.Transport{}, nil
	})
	_, err := f.Build(context.Background(), &config.Config{}, transport.Binding{ClientID: "c1"}, nil)
	require.NoError(t, err)
	assert.True(t, called)
}
