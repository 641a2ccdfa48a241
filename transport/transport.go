// Package transport defines the broker connection factories used by listener
// containers and the audit publisher. Each broker lives in its own sub-package
// and registers a Builder with the registry.
package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport combines a publisher and subscriber pair produced by a Builder.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close releases both halves, returning the first error.
func (t Transport) Close() error {
	var firstErr error
	if t.Subscriber != nil {
		if err := t.Subscriber.Close(); err != nil {
			firstErr = err
		}
	}
	if t.Publisher != nil {
		if err := t.Publisher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Binding carries the identity of a listener subscription. Brokers translate it
// into consumer groups, queue groups, durable queues and client names, which is
// why a change to any of these fields needs the subscriber to be rebuilt.
type Binding struct {
	ClientID                string
	Destination             string
	PubSubDomain            bool
	SubscriptionName        string
	SubscriptionDurable     bool
	SubscriptionShared      bool
	DurableSubscriptionName string
}

// Durable reports whether messages must survive the subscriber being offline.
// Point-to-point queues are always durable.
func (b Binding) Durable() bool {
	return !b.PubSubDomain || b.SubscriptionDurable
}

// GroupName returns the name under which competing consumers share work.
// Queues share by destination. Topic subscriptions share only when durable or
// shared; otherwise every client gets its own copy of each message.
func (b Binding) GroupName() string {
	if !b.PubSubDomain {
		return b.Destination
	}
	if b.SubscriptionDurable {
		if b.DurableSubscriptionName != "" {
			return b.DurableSubscriptionName
		}
		return b.SubscriptionName
	}
	if b.SubscriptionShared {
		return b.SubscriptionName
	}
	return ""
}

// Builder creates a transport for the given binding.
type Builder func(ctx context.Context, cfg Config, binding Binding, logger watermill.LoggerAdapter) (Transport, error)

// Config provides the broker settings needed by transports without tying them
// to the full configuration package.
type Config interface {
	GetPubSubSystem() string

	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	GetRabbitMQURL() string

	GetNATSURL() string

	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CapabilitiesProvider is implemented by transports that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

// StaticConfig is a plain Config implementation for callers that build
// transports without the service configuration.
type StaticConfig struct {
	PubSubSystem       string
	KafkaBrokers       []string
	KafkaConsumerGroup string
	RabbitMQURL        string
	NATSURL            string
	HTTPServerAddress  string
	HTTPPublisherURL   string
	AWSRegion          string
	AWSAccountID       string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpoint        string
}

func (c StaticConfig) GetPubSubSystem() string       { return c.PubSubSystem }
func (c StaticConfig) GetKafkaBrokers() []string     { return c.KafkaBrokers }
func (c StaticConfig) GetKafkaConsumerGroup() string { return c.KafkaConsumerGroup }
func (c StaticConfig) GetRabbitMQURL() string        { return c.RabbitMQURL }
func (c StaticConfig) GetNATSURL() string            { return c.NATSURL }
func (c StaticConfig) GetHTTPServerAddress() string  { return c.HTTPServerAddress }
func (c StaticConfig) GetHTTPPublisherURL() string   { return c.HTTPPublisherURL }
func (c StaticConfig) GetAWSRegion() string          { return c.AWSRegion }
func (c StaticConfig) GetAWSAccountID() string       { return c.AWSAccountID }
func (c StaticConfig) GetAWSAccessKeyID() string     { return c.AWSAccessKeyID }
func (c StaticConfig) GetAWSSecretAccessKey() string { return c.AWSSecretAccessKey }
func (c StaticConfig) GetAWSEndpoint() string        { return c.AWSEndpoint }
