// Package channel provides an in-process Go channel transport. All bindings
// share one GoChannel so listeners and the audit publisher can talk to each
// other without a broker.
package channel

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/actuator/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

var (
	sharedMu  sync.Mutex
	sharedPub message.Publisher
	sharedSub message.Subscriber
)

func init() {
	Register()
}

// Register registers the channel transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build returns the process-wide GoChannel. Close on the returned halves is a
// no-op; use Reset to tear the shared channel down.
func Build(ctx context.Context, cfg transport.Config, binding transport.Binding, logger watermill.LoggerAdapter) (transport.Transport, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedPub == nil {
		sharedPub, sharedSub = Factory(gochannel.Config{
			OutputChannelBuffer: 64,
			Persistent:          binding.Durable(),
		}, logger)
	}

	return transport.Transport{
		Publisher:  sharedPublisher{sharedPub},
		Subscriber: sharedSubscriber{sharedSub},
	}, nil
}

// Reset closes the shared channel so the next Build creates a fresh one.
func Reset() error {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	var err error
	if sharedPub != nil {
		err = sharedPub.Close()
	}
	if sharedSub != nil && any(sharedSub) != any(sharedPub) {
		if subErr := sharedSub.Close(); subErr != nil && err == nil {
			err = subErr
		}
	}
	sharedPub, sharedSub = nil, nil
	return err
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

type sharedPublisher struct{ message.Publisher }

func (sharedPublisher) Close() error { return nil }

type sharedSubscriber struct{ message.Subscriber }

func (sharedSubscriber) Close() error { return nil }
