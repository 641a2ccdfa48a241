// Package listener defines the capabilities through which the actuator
// inspects and controls message listener containers, and ships
// DefaultContainer, a Watermill subscriber driven by a pool of consumers.
package listener

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/drblury/actuator/internal/runtime/enum"
	errspkg "github.com/drblury/actuator/internal/runtime/errors"
	"github.com/drblury/actuator/internal/runtime/executor"
	"github.com/drblury/actuator/transport"
)

// Kind is the closed set of listener snapshot variants.
type Kind string

const (
	KindBase    Kind = "base"
	KindDefault Kind = "default"
)

// Container is implemented by every managed listener.
type Container interface {
	IsRunning() bool
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Configurable containers expose their subscription and consumer settings.
type Configurable interface {
	ListenerConfig() Config
	SetListenerConfig(Config) error
}

// BackOffHolder containers redeliver failed messages after a fixed interval.
type BackOffHolder interface {
	BackOff() BackOff
	SetBackOff(BackOff)
}

// Introspectable containers report consumer counts and the executor running
// their consumers.
type Introspectable interface {
	Stats() Stats
	TaskExecutor() executor.Executor
}

// Phased containers take part in ordered auto-startup.
type Phased interface {
	Phase() int
	AutoStartup() bool
}

// UnlimitedAttempts retries a failing message until it succeeds or the
// container stops.
const UnlimitedAttempts = -1

// BackOff is a fixed redelivery policy. MaxAttempts counts retries after the
// first delivery; zero nacks on the first failure.
type BackOff struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultBackOff retries every five seconds without limit.
func DefaultBackOff() BackOff {
	return BackOff{Interval: 5 * time.Second, MaxAttempts: UnlimitedAttempts}
}

func (b BackOff) Validate() error {
	var errs []error
	if b.Interval < 0 {
		errs = append(errs, errors.New("backOffInterval cannot be negative"))
	}
	if b.MaxAttempts < UnlimitedAttempts {
		errs = append(errs, fmt.Errorf("backOffMaxAttempts must be %d or more", UnlimitedAttempts))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", errspkg.ErrInvalidParameter, errors.Join(errs...))
	}
	return nil
}

// Stats are the live consumer counters.
type Stats struct {
	ActiveConsumerCount    int
	ScheduledConsumerCount int
	Recovering             bool
}

// CacheLevel controls which broker resources survive a stop. From
// CacheConnection up, a stopped container keeps its transport and reuses it
// on the next start unless the binding changed.
type CacheLevel int

const (
	CacheNone CacheLevel = iota
	CacheConnection
	CacheSession
	CacheConsumer
	CacheAuto
)

var cacheLevelNames = []string{"CACHE_NONE", "CACHE_CONNECTION", "CACHE_SESSION", "CACHE_CONSUMER", "CACHE_AUTO"}

func (l CacheLevel) String() string {
	if l < CacheNone || l > CacheAuto {
		return fmt.Sprintf("CACHE_%d", int(l))
	}
	return cacheLevelNames[l]
}

// ParseCacheLevel matches a level name loosely, with or without the CACHE_
// prefix.
func ParseCacheLevel(s string) (CacheLevel, bool) {
	return parseNamed[CacheLevel](s, "CACHE_", cacheLevelNames)
}

// AckMode selects when a message is acknowledged. DupsOkAcknowledge acks on
// receipt; every other mode acks after the handler succeeds.
type AckMode int

const (
	SessionTransacted AckMode = iota
	AutoAcknowledge
	ClientAcknowledge
	DupsOkAcknowledge
)

var ackModeNames = []string{"SESSION_TRANSACTED", "AUTO_ACKNOWLEDGE", "CLIENT_ACKNOWLEDGE", "DUPS_OK_ACKNOWLEDGE"}

func (m AckMode) String() string {
	if m < SessionTransacted || m > DupsOkAcknowledge {
		return fmt.Sprintf("ACK_%d", int(m))
	}
	return ackModeNames[m]
}

// ParseAckMode matches a mode name loosely.
func ParseAckMode(s string) (AckMode, bool) {
	return parseNamed[AckMode](s, "", ackModeNames)
}

func parseNamed[T ~int](s, prefix string, names []string) (T, bool) {
	name, ok := enum.Parse(s, names...)
	if !ok && prefix != "" {
		name, ok = enum.Parse(prefix+s, names...)
	}
	if !ok {
		return 0, false
	}
	for i, n := range names {
		if n == name {
			return T(i), true
		}
	}
	return 0, false
}

// Config is the subscription identity plus the consumer tunables. The
// embedded binding and the message selector form the identity: changing any
// of them requires a restart.
type Config struct {
	transport.Binding
	MessageSelector   string
	ReplyPubSubDomain bool

	ConcurrentConsumers    int
	MaxConcurrentConsumers int
	CacheLevel             CacheLevel
	// ReceiveTimeout is how long an idle consumer waits before checking
	// whether it is still needed.
	ReceiveTimeout time.Duration
	// RecoveryInterval is the pause before resubscribing after the
	// subscription closed unexpectedly.
	RecoveryInterval            time.Duration
	AcceptMessagesWhileStopping bool
	// MaxMessagesPerTask recycles a consumer task after that many messages.
	// Zero never recycles.
	MaxMessagesPerTask     int
	SessionAcknowledgeMode AckMode
}

// DefaultConfig returns the tunables used for a new container on destination.
func DefaultConfig(destination string) Config {
	return Config{
		Binding:                transport.Binding{Destination: destination},
		ConcurrentConsumers:    1,
		MaxConcurrentConsumers: 1,
		CacheLevel:             CacheAuto,
		ReceiveTimeout:         time.Second,
		RecoveryInterval:       5 * time.Second,
		SessionAcknowledgeMode: AutoAcknowledge,
	}
}

// SameIdentity reports whether a and b subscribe the same way.
func (c Config) SameIdentity(o Config) bool {
	return c.Binding == o.Binding && c.MessageSelector == o.MessageSelector
}

func (c *Config) normalize() {
	if c.MaxConcurrentConsumers < c.ConcurrentConsumers {
		c.MaxConcurrentConsumers = c.ConcurrentConsumers
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Destination) == "" {
		problems = append(problems, "destination is required")
	}
	if c.ConcurrentConsumers < 1 {
		problems = append(problems, "concurrentConsumers must be at least 1")
	}
	if c.MaxConcurrentConsumers < 0 {
		problems = append(problems, "maxConcurrentConsumers cannot be negative")
	}
	if c.ReceiveTimeout < 0 {
		problems = append(problems, "receiveTimeout cannot be negative")
	}
	if c.RecoveryInterval < 0 {
		problems = append(problems, "recoveryInterval cannot be negative")
	}
	if c.MaxMessagesPerTask < 0 {
		problems = append(problems, "maxMessagesPerTask cannot be negative")
	}
	if c.CacheLevel < CacheNone || c.CacheLevel > CacheAuto {
		problems = append(problems, fmt.Sprintf("unknown cacheLevel %d", c.CacheLevel))
	}
	if c.SessionAcknowledgeMode < SessionTransacted || c.SessionAcknowledgeMode > DupsOkAcknowledge {
		problems = append(problems, fmt.Sprintf("unknown sessionAcknowledgeMode %d", c.SessionAcknowledgeMode))
	}
	if _, err := ParseSelector(c.MessageSelector); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) == 0 {
		return nil
	}
	sort.Strings(problems)
	return fmt.Errorf("%w: %s", errspkg.ErrInvalidParameter, strings.Join(problems, "; "))
}

// Selector filters messages on metadata. Every pair must match.
type Selector map[string]string

// ParseSelector reads "k=v[,k=v]". An empty string selects everything.
func ParseSelector(s string) (Selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	sel := Selector{}
	for _, part := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(part, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("messageSelector: malformed term %q", strings.TrimSpace(part))
		}
		sel[k] = strings.Trim(strings.TrimSpace(v), `'"`)
	}
	return sel, nil
}

// Matches reports whether metadata satisfies every term.
func (s Selector) Matches(metadata map[string]string) bool {
	for k, v := range s {
		if metadata[k] != v {
			return false
		}
	}
	return true
}
