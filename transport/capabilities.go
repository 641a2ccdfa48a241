package transport

// Capabilities describes what a broker offers to listener containers. The
// listeners endpoint reports them next to each container so operators can see
// why, for example, a durable subscription falls back to a plain one.
type Capabilities struct {
	Name string `json:"name"`

	// SupportsDurable means subscriptions can outlive the subscriber.
	SupportsDurable bool `json:"supportsDurable"`

	// SupportsSharedSubscriptions means several consumers can split one
	// topic subscription between them.
	SupportsSharedSubscriptions bool `json:"supportsSharedSubscriptions"`

	// SupportsAck and SupportsNack report explicit acknowledgement.
	SupportsAck  bool `json:"supportsAck"`
	SupportsNack bool `json:"supportsNack"`

	// SupportsOrdering means delivery order is kept per partition or queue.
	SupportsOrdering bool `json:"supportsOrdering"`

	// SupportsClientID means the binding's client id is forwarded to the broker.
	SupportsClientID bool `json:"supportsClientId"`

	// MaxMessageSize is the maximum message size in bytes (0 = unknown).
	MaxMessageSize int64 `json:"maxMessageSize,omitempty"`
}

// SupportsReliableDelivery reports at-least-once delivery (ack + nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Unsupported lists the binding features the transport cannot honour.
func (c Capabilities) Unsupported(b Binding) []string {
	var missing []string
	if b.PubSubDomain && b.SubscriptionDurable && !c.SupportsDurable {
		missing = append(missing, "subscriptionDurable")
	}
	if b.PubSubDomain && b.SubscriptionShared && !c.SupportsSharedSubscriptions {
		missing = append(missing, "subscriptionShared")
	}
	if b.ClientID != "" && !c.SupportsClientID {
		missing = append(missing, "clientId")
	}
	return missing
}

var (
	ChannelCapabilities = Capabilities{
		Name:                        "channel",
		SupportsDurable:             true,
		SupportsSharedSubscriptions: false,
		SupportsAck:                 true,
		SupportsNack:                true,
		SupportsOrdering:            true,
	}

	KafkaCapabilities = Capabilities{
		Name:                        "kafka",
		SupportsDurable:             true,
		SupportsSharedSubscriptions: true,
		SupportsAck:                 true,
		SupportsNack:                false,
		SupportsOrdering:            true,
		SupportsClientID:            true,
		MaxMessageSize:              1048576,
	}

	RabbitMQCapabilities = Capabilities{
		Name:                        "rabbitmq",
		SupportsDurable:             true,
		SupportsSharedSubscriptions: true,
		SupportsAck:                 true,
		SupportsNack:                true,
		SupportsOrdering:            true,
		SupportsClientID:            true,
	}

	NATSCapabilities = Capabilities{
		Name:                        "nats",
		SupportsDurable:             false,
		SupportsSharedSubscriptions: true,
		SupportsClientID:            true,
		MaxMessageSize:              1048576,
	}

	AWSCapabilities = Capabilities{
		Name:                        "aws",
		SupportsDurable:             true,
		SupportsSharedSubscriptions: true,
		SupportsAck:                 true,
		SupportsNack:                true,
		SupportsOrdering:            true,
		MaxMessageSize:              262144,
	}

	HTTPCapabilities = Capabilities{
		Name:             "http",
		SupportsClientID: true,
	}
)
