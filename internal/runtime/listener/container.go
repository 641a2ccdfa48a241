package listener

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v5"

	"github.com/drblury/actuator/internal/runtime/config"
	errspkg "github.com/drblury/actuator/internal/runtime/errors"
	"github.com/drblury/actuator/internal/runtime/executor"
	"github.com/drblury/actuator/internal/runtime/ids"
	"github.com/drblury/actuator/internal/runtime/logging"
	rtransport "github.com/drblury/actuator/internal/runtime/transport"
	"github.com/drblury/actuator/transport"
)

// Brokered containers report what their transport supports.
type Brokered interface {
	Capabilities() transport.Capabilities
}

// DefaultContainer consumes a Watermill subscription with a variable number
// of consumers. Failed messages are retried with the container's BackOff and
// nacked once it is exhausted.
type DefaultContainer struct {
	id          string
	handler     message.NoPublishHandlerFunc
	logger      logging.ServiceLogger
	factory     rtransport.Factory
	conf        *config.Config
	exec        executor.Executor
	phase       int
	autoStartup bool

	mu        sync.Mutex
	cfg       Config
	selector  Selector
	backOff   BackOff
	session   *session
	tr        *transport.Transport
	trBinding transport.Binding
}

// Option configures a DefaultContainer.
type Option func(*DefaultContainer)

// WithLogger sets the container logger. Transports receive it through the
// Watermill adapter.
func WithLogger(logger logging.ServiceLogger) Option {
	return func(c *DefaultContainer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFactory selects how the container connects to its broker. conf names
// the transport in PubSubSystem and carries the broker settings.
func WithFactory(f rtransport.Factory, conf *config.Config) Option {
	return func(c *DefaultContainer) {
		if f != nil {
			c.factory = f
		}
		if conf != nil {
			c.conf = conf
		}
	}
}

// WithTaskExecutor runs consumers on e instead of bare goroutines. e must
// offer Execute(func()) error.
func WithTaskExecutor(e executor.Executor) Option {
	return func(c *DefaultContainer) { c.exec = e }
}

// WithBackOff sets the redelivery policy.
func WithBackOff(b BackOff) Option {
	return func(c *DefaultContainer) { c.backOff = b }
}

// WithPhase sets the startup phase. Lower phases start first.
func WithPhase(phase int) Option {
	return func(c *DefaultContainer) { c.phase = phase }
}

// WithAutoStartup marks the container for StartAll.
func WithAutoStartup(auto bool) Option {
	return func(c *DefaultContainer) { c.autoStartup = auto }
}

// NewContainer creates a stopped container. When the transport forwards
// client ids and cfg has none, a unique one is generated.
func NewContainer(id string, cfg Config, handler message.NoPublishHandlerFunc, opts ...Option) (*DefaultContainer, error) {
	if id == "" {
		return nil, errspkg.ErrNameRequired
	}
	if handler == nil {
		return nil, fmt.Errorf("%w: handler is required", errspkg.ErrInvalidParameter)
	}
	c := &DefaultContainer{
		id:          id,
		handler:     handler,
		logger:      logging.NopServiceLogger(),
		factory:     rtransport.DefaultFactory(),
		conf:        &config.Config{PubSubSystem: "channel"},
		backOff:     DefaultBackOff(),
		autoStartup: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.backOff.Validate(); err != nil {
		return nil, err
	}
	if cfg.ClientID == "" && c.Capabilities().SupportsClientID {
		cfg.ClientID = ids.NewClientID(id)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c.cfg = cfg
	c.selector, _ = ParseSelector(cfg.MessageSelector)
	c.logger = c.logger.With(logging.LogFields{"listener": id})
	return c, nil
}

func (c *DefaultContainer) ID() string { return c.id }

func (c *DefaultContainer) Phase() int { return c.phase }

func (c *DefaultContainer) AutoStartup() bool { return c.autoStartup }

func (c *DefaultContainer) Capabilities() transport.Capabilities {
	return transport.GetCapabilities(c.conf.GetPubSubSystem())
}

func (c *DefaultContainer) TaskExecutor() executor.Executor { return c.exec }

func (c *DefaultContainer) ListenerConfig() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// SetListenerConfig stores cfg. Tunables take effect immediately and a
// larger consumer count is scheduled at once. Identity changes only apply
// on the next Start.
func (c *DefaultContainer) SetListenerConfig(cfg Config) error {
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return err
	}
	sel, _ := ParseSelector(cfg.MessageSelector)

	c.mu.Lock()
	c.cfg = cfg
	c.selector = sel
	s := c.session
	c.mu.Unlock()

	if s != nil {
		c.rescale(s, cfg.ConcurrentConsumers)
	}
	return nil
}

func (c *DefaultContainer) BackOff() BackOff {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backOff
}

func (c *DefaultContainer) SetBackOff(b BackOff) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backOff = b
}

func (c *DefaultContainer) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

func (c *DefaultContainer) Stats() Stats {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return Stats{}
	}
	return Stats{
		ActiveConsumerCount:    int(s.active.Load()),
		ScheduledConsumerCount: int(s.scheduled.Load()),
		Recovering:             s.recovering.Load(),
	}
}

// session is one Start..Stop cycle.
type session struct {
	ctx        context.Context
	cancel     context.CancelFunc
	subscriber message.Subscriber
	topic      string
	deliveries chan *message.Message
	wg         sync.WaitGroup

	active     atomic.Int32
	scheduled  atomic.Int32
	stopping   atomic.Bool
	recovering atomic.Bool
}

// Start subscribes and schedules the configured number of consumers. ctx
// bounds connecting only; the subscription lives until Stop.
func (c *DefaultContainer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return nil
	}

	tr, err := c.transportFor(ctx, c.cfg.Binding)
	if err != nil {
		return err
	}
	if tr.Subscriber == nil {
		return errspkg.ErrSubscriberMissing
	}
	if missing := c.Capabilities().Unsupported(c.cfg.Binding); len(missing) > 0 {
		c.logger.Info("transport ignores binding features", logging.LogFields{"unsupported": missing})
	}

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	msgs, err := tr.Subscriber.Subscribe(sctx, c.cfg.Destination)
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to %q: %w", c.cfg.Destination, err)
	}

	s := &session{
		ctx:        sctx,
		cancel:     cancel,
		subscriber: tr.Subscriber,
		topic:      c.cfg.Destination,
		deliveries: make(chan *message.Message),
	}
	c.session = s

	s.wg.Add(1)
	go c.feed(s, msgs)
	c.rescale(s, c.cfg.ConcurrentConsumers)

	c.logger.Info("listener started", logging.LogFields{
		"destination": c.cfg.Destination,
		"consumers":   c.cfg.ConcurrentConsumers,
	})
	return nil
}

// Stop cancels the subscription and waits for the consumers, or for ctx.
// With AcceptMessagesWhileStopping unset, a message received while stopping
// is nacked instead of handled.
func (c *DefaultContainer) Stop(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()
	if s == nil {
		return nil
	}

	s.stopping.Store(true)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.Lock()
	var closeErr error
	if c.cfg.CacheLevel == CacheNone && c.tr != nil {
		closeErr = c.tr.Close()
		c.tr = nil
	}
	c.mu.Unlock()

	c.logger.Info("listener stopped", nil)
	return closeErr
}

// transportFor returns the cached transport when it was built for binding.
// Callers hold c.mu.
func (c *DefaultContainer) transportFor(ctx context.Context, binding transport.Binding) (transport.Transport, error) {
	if c.tr != nil && c.trBinding == binding {
		return *c.tr, nil
	}
	if c.tr != nil {
		if err := c.tr.Close(); err != nil {
			c.logger.Error("closing previous transport", err, nil)
		}
		c.tr = nil
	}
	tr, err := c.factory.Build(ctx, c.conf, binding, logging.NewWatermillAdapter(c.logger))
	if err != nil {
		return transport.Transport{}, fmt.Errorf("build %s transport: %w", c.conf.GetPubSubSystem(), err)
	}
	c.tr = &tr
	c.trBinding = binding
	return tr, nil
}

// feed forwards the subscription to the consumers and resubscribes when the
// broker closes it.
func (c *DefaultContainer) feed(s *session, msgs <-chan *message.Message) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				if msgs = c.resubscribe(s); msgs == nil {
					return
				}
				continue
			}
			select {
			case s.deliveries <- msg:
			case <-s.ctx.Done():
				msg.Nack()
				return
			}
		}
	}
}

func (c *DefaultContainer) resubscribe(s *session) <-chan *message.Message {
	s.recovering.Store(true)
	defer s.recovering.Store(false)
	for {
		if s.ctx.Err() != nil {
			return nil
		}
		interval := c.ListenerConfig().RecoveryInterval
		c.logger.Info("subscription closed, recovering", logging.LogFields{"interval": interval.String()})
		select {
		case <-s.ctx.Done():
			return nil
		case <-time.After(interval):
		}
		msgs, err := s.subscriber.Subscribe(s.ctx, s.topic)
		if err == nil {
			return msgs
		}
		c.logger.Error("resubscribe failed", err, nil)
	}
}

// rescale schedules consumers until want are running. Surplus consumers
// retire on their own.
func (c *DefaultContainer) rescale(s *session, want int) {
	for {
		n := s.scheduled.Load()
		if int(n) >= want || s.ctx.Err() != nil {
			return
		}
		if s.scheduled.CompareAndSwap(n, n+1) {
			c.spawn(s)
		}
	}
}

// spawn runs a consumer whose slot was already counted in s.scheduled.
func (c *DefaultContainer) spawn(s *session) {
	s.wg.Add(1)
	run := func() { c.consume(s) }
	if e, ok := c.exec.(interface{ Execute(func()) error }); ok {
		if err := e.Execute(run); err != nil {
			s.scheduled.Add(-1)
			s.wg.Done()
			c.logger.Error("consumer rejected by task executor", err, nil)
		}
		return
	}
	go run()
}

// retire releases a consumer slot when more consumers are scheduled than
// the current config allows: maxConcurrentConsumers always, and
// concurrentConsumers for an idle consumer. An idle consumer stays while
// every other consumer is busy.
func (c *DefaultContainer) retire(s *session, idle bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	keep := c.cfg.MaxConcurrentConsumers
	if idle {
		keep = c.cfg.ConcurrentConsumers
	}
	for {
		n := s.scheduled.Load()
		if int(n) <= keep || (idle && n-1 <= s.active.Load()) {
			return false
		}
		if s.scheduled.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func (c *DefaultContainer) consume(s *session) {
	retired := false
	defer func() {
		if !retired {
			s.scheduled.Add(-1)
		}
		s.wg.Done()
	}()

	handled := 0
	for {
		cfg := c.ListenerConfig()
		if c.retire(s, false) {
			retired = true
			return
		}

		var idle <-chan time.Time
		var timer *time.Timer
		if cfg.ReceiveTimeout > 0 {
			timer = time.NewTimer(cfg.ReceiveTimeout)
			idle = timer.C
		}

		select {
		case <-s.ctx.Done():
			stopTimer(timer)
			return
		case <-idle:
			if c.retire(s, true) {
				retired = true
				return
			}
		case msg := <-s.deliveries:
			stopTimer(timer)
			if busy := s.active.Add(1); int(busy) >= int(s.scheduled.Load()) {
				c.grow(s, cfg.MaxConcurrentConsumers)
			}
			c.process(s, msg)
			s.active.Add(-1)

			handled++
			if cfg.MaxMessagesPerTask > 0 && handled >= cfg.MaxMessagesPerTask {
				// Hand the slot to a fresh task so the executor can rotate workers.
				retired = true
				c.spawn(s)
				return
			}
		}
	}
}

// grow adds one consumer when every consumer is busy and the limit allows.
func (c *DefaultContainer) grow(s *session, limit int) {
	n := s.scheduled.Load()
	if int(n) < limit && s.scheduled.CompareAndSwap(n, n+1) {
		c.spawn(s)
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

func (c *DefaultContainer) process(s *session, msg *message.Message) {
	c.mu.Lock()
	cfg, sel, bo := c.cfg, c.selector, c.backOff
	c.mu.Unlock()

	fields := logging.LogFields{"message_uuid": msg.UUID}
	if !sel.Matches(msg.Metadata) {
		c.logger.Trace("message filtered by selector", fields)
		msg.Ack()
		return
	}
	if s.stopping.Load() && !cfg.AcceptMessagesWhileStopping {
		msg.Nack()
		return
	}

	dupsOK := cfg.SessionAcknowledgeMode == DupsOkAcknowledge
	if dupsOK {
		msg.Ack()
	}
	err := c.handle(s.ctx, msg, bo)
	switch {
	case err != nil:
		c.logger.Error("message handling failed", err, fields)
		if !dupsOK {
			msg.Nack()
		}
	case !dupsOK:
		msg.Ack()
	}
}

func (c *DefaultContainer) handle(ctx context.Context, msg *message.Message, bo BackOff) error {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(bo.Interval)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Debug("redelivering message", logging.LogFields{
				"message_uuid": msg.UUID,
				"error":        err.Error(),
				"next":         next.String(),
			})
		}),
	}
	if bo.MaxAttempts != UnlimitedAttempts {
		opts = append(opts, backoff.WithMaxTries(uint(bo.MaxAttempts)+1))
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.invoke(msg)
	}, opts...)
	return err
}

func (c *DefaultContainer) invoke(msg *message.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener handler panic: %v", r)
		}
	}()
	return c.handler(msg)
}
