package listener

import (
	"fmt"

	"github.com/drblury/actuator/internal/runtime/executor"
	"github.com/drblury/actuator/transport"
)

// Snapshot is the read-only view of a listener. The base fields are always
// present; Details is set for the default variant, which is any Configurable
// container.
type Snapshot struct {
	Kind              Kind   `json:"kind"`
	ID                string `json:"id"`
	Type              string `json:"type"`
	Running           bool   `json:"running"`
	AutoStartup       bool   `json:"autoStartup"`
	PubSubDomain      bool   `json:"pubSubDomain"`
	ReplyPubSubDomain bool   `json:"replyPubSubDomain"`
	Phase             int    `json:"phase"`

	*Details
}

// Details are the default variant fields. Durations are milliseconds.
type Details struct {
	Destination             string `json:"destination"`
	ClientID                string `json:"clientId,omitempty"`
	DurableSubscriptionName string `json:"durableSubscriptionName,omitempty"`
	MessageSelector         string `json:"messageSelector,omitempty"`
	SubscriptionName        string `json:"subscriptionName,omitempty"`
	SubscriptionDurable     bool   `json:"subscriptionDurable"`
	SubscriptionShared      bool   `json:"subscriptionShared"`

	ConcurrentConsumers    int  `json:"concurrentConsumers"`
	MaxConcurrentConsumers int  `json:"maxConcurrentConsumers"`
	ActiveConsumerCount    int  `json:"activeConsumerCount"`
	ScheduledConsumerCount int  `json:"scheduledConsumerCount"`
	Recovering             bool `json:"recovering"`

	CacheLevel                  int    `json:"cacheLevel"`
	CacheLevelName              string `json:"cacheLevelName"`
	ReceiveTimeout              int64  `json:"receiveTimeout"`
	RecoveryInterval            int64  `json:"recoveryInterval"`
	AcceptMessagesWhileStopping bool   `json:"acceptMessagesWhileStopping"`
	MaxMessagesPerTask          int    `json:"maxMessagesPerTask"`
	SessionAcknowledgeMode      int    `json:"sessionAcknowledgeMode"`
	SessionAcknowledgeModeName  string `json:"sessionAcknowledgeModeName"`

	BackOff      *BackOffSnapshot        `json:"backOff,omitempty"`
	TaskExecutor *executor.Snapshot      `json:"taskExecutor,omitempty"`
	Transport    *transport.Capabilities `json:"transport,omitempty"`
	Unsupported  []string                `json:"unsupported,omitempty"`
}

type BackOffSnapshot struct {
	Interval    int64 `json:"interval"`
	MaxAttempts int   `json:"maxAttempts"`
}

// Convert builds the snapshot of c.
func Convert(id string, c Container) Snapshot {
	snap := Snapshot{
		Kind:    KindBase,
		ID:      id,
		Type:    fmt.Sprintf("%T", c),
		Running: c.IsRunning(),
	}
	if p, ok := c.(Phased); ok {
		snap.Phase = p.Phase()
		snap.AutoStartup = p.AutoStartup()
	}
	cc, ok := c.(Configurable)
	if !ok {
		return snap
	}
	cfg := cc.ListenerConfig()
	snap.Kind = KindDefault
	snap.PubSubDomain = cfg.PubSubDomain
	snap.ReplyPubSubDomain = cfg.ReplyPubSubDomain

	d := &Details{
		Destination:                 cfg.Destination,
		ClientID:                    cfg.ClientID,
		DurableSubscriptionName:     cfg.DurableSubscriptionName,
		MessageSelector:             cfg.MessageSelector,
		SubscriptionName:            cfg.SubscriptionName,
		SubscriptionDurable:         cfg.SubscriptionDurable,
		SubscriptionShared:          cfg.SubscriptionShared,
		ConcurrentConsumers:         cfg.ConcurrentConsumers,
		MaxConcurrentConsumers:      cfg.MaxConcurrentConsumers,
		CacheLevel:                  int(cfg.CacheLevel),
		CacheLevelName:              cfg.CacheLevel.String(),
		ReceiveTimeout:              cfg.ReceiveTimeout.Milliseconds(),
		RecoveryInterval:            cfg.RecoveryInterval.Milliseconds(),
		AcceptMessagesWhileStopping: cfg.AcceptMessagesWhileStopping,
		MaxMessagesPerTask:          cfg.MaxMessagesPerTask,
		SessionAcknowledgeMode:      int(cfg.SessionAcknowledgeMode),
		SessionAcknowledgeModeName:  cfg.SessionAcknowledgeMode.String(),
	}
	if b, ok := c.(BackOffHolder); ok {
		bo := b.BackOff()
		d.BackOff = &BackOffSnapshot{Interval: bo.Interval.Milliseconds(), MaxAttempts: bo.MaxAttempts}
	}
	if in, ok := c.(Introspectable); ok {
		stats := in.Stats()
		d.ActiveConsumerCount = stats.ActiveConsumerCount
		d.ScheduledConsumerCount = stats.ScheduledConsumerCount
		d.Recovering = stats.Recovering
		if e := in.TaskExecutor(); e != nil {
			es := executor.Convert(id+".taskExecutor", e)
			d.TaskExecutor = &es
		}
	}
	if b, ok := c.(Brokered); ok {
		caps := b.Capabilities()
		d.Transport = &caps
		d.Unsupported = caps.Unsupported(cfg.Binding)
	}
	snap.Details = d
	return snap
}
