package listener

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	errspkg "github.com/drblury/actuator/internal/runtime/errors"
	"github.com/drblury/actuator/internal/runtime/params"
)

// Patch holds the listener fields a caller wants to change. Durations given
// as bare numbers are milliseconds.
type Patch struct {
	// Identity. Setting any of these restarts the container.
	ClientID                *string
	Destination             *string
	DurableSubscriptionName *string
	MessageSelector         *string
	PubSubDomain            *bool
	SubscriptionDurable     *bool
	SubscriptionName        *string
	SubscriptionShared      *bool

	AcceptMessagesWhileStopping *bool
	// Concurrency is "lo-hi", or "hi" for 1-hi. Explicit consumer counts
	// are applied after it.
	Concurrency            *string
	ConcurrentConsumers    *int
	MaxConcurrentConsumers *int
	MaxMessagesPerTask     *int
	ReceiveTimeout         *time.Duration
	RecoveryInterval       *time.Duration
	ReplyPubSubDomain      *bool
	CacheLevel             *CacheLevel
	SessionAcknowledgeMode *AckMode

	BackOffInterval    *time.Duration
	BackOffMaxAttempts *int
}

const (
	keyAcceptMessagesWhileStopping = "acceptMessagesWhileStopping"
	keyClientID                    = "clientId"
	keyConcurrency                 = "concurrency"
	keyConcurrentConsumers         = "concurrentConsumers"
	keyDestination                 = "destination"
	keyDestinationName             = "destinationName"
	keyDurableSubscriptionName     = "durableSubscriptionName"
	keyMaxConcurrentConsumers      = "maxConcurrentConsumers"
	keyMaxMessagesPerTask          = "maxMessagesPerTask"
	keyMessageSelector             = "messageSelector"
	keyPubSubDomain                = "pubSubDomain"
	keyReceiveTimeout              = "receiveTimeout"
	keyRecoveryInterval            = "recoveryInterval"
	keyReplyPubSubDomain           = "replyPubSubDomain"
	keySessionAcknowledgeMode      = "sessionAcknowledgeMode"
	keySessionAcknowledgeModeName  = "sessionAcknowledgeModeName"
	keySubscriptionDurable         = "subscriptionDurable"
	keySubscriptionName            = "subscriptionName"
	keySubscriptionShared          = "subscriptionShared"
	keyCacheLevel                  = "cacheLevel"
	keyCacheLevelName              = "cacheLevelName"
	keyBackOffInterval             = "backOffInterval"
	keyBackOffMaxAttempts          = "backOffMaxAttempts"
)

// ParsePatch reads a patch from request parameters. "destinationName" is
// accepted as an alias of "destination"; a name given next to its numeric
// code wins. Level and mode names that match nothing leave the field unset.
func ParsePatch(v params.Values) (Patch, error) {
	r := params.NewReader(v)
	p := Patch{
		ClientID:                r.String(keyClientID),
		Destination:             r.String(keyDestination),
		DurableSubscriptionName: r.String(keyDurableSubscriptionName),
		MessageSelector:         r.String(keyMessageSelector),
		PubSubDomain:            r.Bool(keyPubSubDomain),
		SubscriptionDurable:     r.Bool(keySubscriptionDurable),
		SubscriptionName:        r.String(keySubscriptionName),
		SubscriptionShared:      r.Bool(keySubscriptionShared),

		AcceptMessagesWhileStopping: r.Bool(keyAcceptMessagesWhileStopping),
		Concurrency:                 r.String(keyConcurrency),
		ConcurrentConsumers:         r.Int(keyConcurrentConsumers),
		MaxConcurrentConsumers:      r.Int(keyMaxConcurrentConsumers),
		MaxMessagesPerTask:          r.Int(keyMaxMessagesPerTask),
		ReceiveTimeout:              r.Duration(keyReceiveTimeout, time.Millisecond),
		RecoveryInterval:            r.Duration(keyRecoveryInterval, time.Millisecond),
		ReplyPubSubDomain:           r.Bool(keyReplyPubSubDomain),

		BackOffInterval:    r.Duration(keyBackOffInterval, time.Millisecond),
		BackOffMaxAttempts: r.Int(keyBackOffMaxAttempts),
	}
	if p.Destination == nil {
		p.Destination = r.String(keyDestinationName)
	}

	errs := []error{r.Err()}
	if n := r.Int(keyCacheLevel); n != nil {
		level := CacheLevel(*n)
		p.CacheLevel = &level
	}
	if name := r.String(keyCacheLevelName); name != nil {
		if level, ok := ParseCacheLevel(*name); ok {
			p.CacheLevel = &level
		}
	}
	if n := r.Int(keySessionAcknowledgeMode); n != nil {
		mode := AckMode(*n)
		p.SessionAcknowledgeMode = &mode
	}
	if name := r.String(keySessionAcknowledgeModeName); name != nil {
		if mode, ok := ParseAckMode(*name); ok {
			p.SessionAcknowledgeMode = &mode
		}
	}
	if p.Concurrency != nil {
		if _, _, err := ParseConcurrency(*p.Concurrency); err != nil {
			errs = append(errs, err)
		}
	}
	return p, errors.Join(errs...)
}

// ParseConcurrency reads "lo-hi" or "hi". A single number means 1 to hi.
func ParseConcurrency(s string) (lo, hi int, err error) {
	s = strings.TrimSpace(s)
	loText, hiText, ranged := strings.Cut(s, "-")
	if !ranged {
		loText, hiText = "1", s
	}
	lo, err1 := strconv.Atoi(strings.TrimSpace(loText))
	hi, err2 := strconv.Atoi(strings.TrimSpace(hiText))
	if err1 != nil || err2 != nil || lo < 1 || hi < lo {
		return 0, 0, fmt.Errorf("%w: concurrency %q must be \"lo-hi\" or \"hi\" with 1 <= lo <= hi", errspkg.ErrInvalidParameter, s)
	}
	return lo, hi, nil
}

// IsEmpty reports whether no field is set.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// NeedsRestart reports whether p touches the subscription identity.
func (p Patch) NeedsRestart() bool {
	return p.ClientID != nil ||
		p.Destination != nil ||
		p.DurableSubscriptionName != nil ||
		p.MessageSelector != nil ||
		p.PubSubDomain != nil ||
		p.SubscriptionDurable != nil ||
		p.SubscriptionName != nil ||
		p.SubscriptionShared != nil
}

func (p Patch) backOffOnly() Patch {
	return Patch{BackOffInterval: p.BackOffInterval, BackOffMaxAttempts: p.BackOffMaxAttempts}
}

func (p Patch) applyBackOff(b *BackOff) {
	set(&b.Interval, p.BackOffInterval)
	set(&b.MaxAttempts, p.BackOffMaxAttempts)
}

func (p Patch) applyTo(cfg *Config) {
	set(&cfg.ClientID, p.ClientID)
	set(&cfg.Destination, p.Destination)
	set(&cfg.DurableSubscriptionName, p.DurableSubscriptionName)
	set(&cfg.MessageSelector, p.MessageSelector)
	set(&cfg.PubSubDomain, p.PubSubDomain)
	set(&cfg.SubscriptionDurable, p.SubscriptionDurable)
	set(&cfg.SubscriptionName, p.SubscriptionName)
	set(&cfg.SubscriptionShared, p.SubscriptionShared)

	set(&cfg.AcceptMessagesWhileStopping, p.AcceptMessagesWhileStopping)
	if p.Concurrency != nil {
		if lo, hi, err := ParseConcurrency(*p.Concurrency); err == nil {
			cfg.ConcurrentConsumers, cfg.MaxConcurrentConsumers = lo, hi
		}
	}
	set(&cfg.ConcurrentConsumers, p.ConcurrentConsumers)
	set(&cfg.MaxConcurrentConsumers, p.MaxConcurrentConsumers)
	set(&cfg.MaxMessagesPerTask, p.MaxMessagesPerTask)
	set(&cfg.ReceiveTimeout, p.ReceiveTimeout)
	set(&cfg.RecoveryInterval, p.RecoveryInterval)
	set(&cfg.ReplyPubSubDomain, p.ReplyPubSubDomain)
	set(&cfg.CacheLevel, p.CacheLevel)
	set(&cfg.SessionAcknowledgeMode, p.SessionAcknowledgeMode)
}

// Update applies p to c. The backoff fields go first and on their own, then
// the remaining fields are merged into the container config. A patch that
// touches the identity ends with a stop and start.
func Update(ctx context.Context, id string, c Container, p Patch) error {
	if p.IsEmpty() {
		return nil
	}
	if bp := p.backOffOnly(); !bp.IsEmpty() {
		if holder, ok := c.(BackOffHolder); ok {
			bo := holder.BackOff()
			bp.applyBackOff(&bo)
			if err := bo.Validate(); err != nil {
				return err
			}
			holder.SetBackOff(bo)
		}
	}

	rest := p
	rest.BackOffInterval, rest.BackOffMaxAttempts = nil, nil
	if rest.IsEmpty() {
		return nil
	}
	if cc, ok := c.(Configurable); ok {
		cfg := cc.ListenerConfig()
		rest.applyTo(&cfg)
		if err := cc.SetListenerConfig(cfg); err != nil {
			return err
		}
	}
	if rest.NeedsRestart() {
		return Dispatch(ctx, id, c, ActionRestart)
	}
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
