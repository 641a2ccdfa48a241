// Package kafka provides the Kafka connection factory for listener containers.
package kafka

import (
	"context"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/actuator/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "kafka"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register registers the Kafka transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates a Kafka publisher and a subscriber joined to the binding's
// consumer group. Bindings without a group fall back to the configured
// default group.
func Build(ctx context.Context, cfg transport.Config, binding transport.Binding, logger watermill.LoggerAdapter) (transport.Transport, error) {
	brokers := cfg.GetKafkaBrokers()

	publisherSarama := kafka.DefaultSaramaSyncPublisherConfig()
	applyClientID(publisherSarama, binding.ClientID)

	publisher, err := PublisherFactory(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: publisherSarama,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	group := binding.GroupName()
	if group == "" && !binding.PubSubDomain {
		group = cfg.GetKafkaConsumerGroup()
	}

	subscriberSarama := kafka.DefaultSaramaSubscriberConfig()
	applyClientID(subscriberSarama, binding.ClientID)
	if binding.Durable() {
		subscriberSarama.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		subscriberSarama.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	subscriber, err := SubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			ConsumerGroup:         group,
			OverwriteSaramaConfig: subscriberSarama,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return transport.Transport{}, err
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}

func applyClientID(cfg *sarama.Config, clientID string) {
	if cfg != nil && clientID != "" {
		cfg.ClientID = clientID
	}
}
