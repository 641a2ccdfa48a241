package listener

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/actuator/internal/runtime/config"
	errspkg "github.com/drblury/actuator/internal/runtime/errors"
	"github.com/drblury/actuator/internal/runtime/executor"
	rtransport "github.com/drblury/actuator/internal/runtime/transport"
	"github.com/drblury/actuator/transport"
	"github.com/drblury/actuator/transport/channel"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// stubBroker hands out subscriptions fed from one channel and records every
// transport it builds.
type stubBroker struct {
	in     chan *message.Message
	mu     sync.Mutex
	builds []transport.Binding
	topics []string
	closed atomic.Int32
	drop   chan struct{}
}

func newStubBroker() *stubBroker {
	return &stubBroker{in: make(chan *message.Message), drop: make(chan struct{}, 1)}
}

func (b *stubBroker) factory() rtransport.Factory {
	return rtransport.FactoryFunc(func(_ context.Context, _ *config.Config, binding transport.Binding, _ watermill.LoggerAdapter) (transport.Transport, error) {
		b.mu.Lock()
		b.builds = append(b.builds, binding)
		b.mu.Unlock()
		return transport.Transport{Subscriber: b}, nil
	})
}

func (b *stubBroker) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	b.mu.Lock()
	b.topics = append(b.topics, topic)
	b.mu.Unlock()
	out := make(chan *message.Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.drop:
				return
			case msg := <-b.in:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *stubBroker) Close() error {
	b.closed.Add(1)
	return nil
}

func (b *stubBroker) buildCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.builds)
}

func (b *stubBroker) subscribeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}

func (b *stubBroker) lastTopic() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.topics[len(b.topics)-1]
}

func (b *stubBroker) send(t *testing.T, msg *message.Message) {
	t.Helper()
	select {
	case b.in <- msg:
	case <-time.After(waitFor):
		t.Fatal("message was not picked up")
	}
}

func newMessage(metadata map[string]string) *message.Message {
	msg := message.NewMessage(watermill.NewUUID(), []byte("{}"))
	for k, v := range metadata {
		msg.Metadata.Set(k, v)
	}
	return msg
}

func waitAck(t *testing.T, msg *message.Message) {
	t.Helper()
	select {
	case <-msg.Acked():
	case <-msg.Nacked():
		t.Fatal("message was nacked")
	case <-time.After(waitFor):
		t.Fatal("message was not acked")
	}
}

func waitNack(t *testing.T, msg *message.Message) {
	t.Helper()
	select {
	case <-msg.Nacked():
	case <-msg.Acked():
		t.Fatal("message was acked")
	case <-time.After(waitFor):
		t.Fatal("message was not nacked")
	}
}

func testConfig(destination string) Config {
	cfg := DefaultConfig(destination)
	cfg.ReceiveTimeout = 10 * time.Millisecond
	cfg.RecoveryInterval = 5 * time.Millisecond
	return cfg
}

func newStubContainer(t *testing.T, b *stubBroker, cfg Config, handler message.NoPublishHandlerFunc, opts ...Option) *DefaultContainer {
	t.Helper()
	opts = append([]Option{
		WithFactory(b.factory(), &config.Config{PubSubSystem: "stub"}),
		WithBackOff(BackOff{Interval: time.Millisecond, MaxAttempts: 0}),
	}, opts...)
	c, err := NewContainer("orders", cfg, handler, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Stop(context.Background()) })
	return c
}

func TestContainerConsumesFromChannelTransport(t *testing.T) {
	t.Cleanup(func() { _ = channel.Reset() })

	var handled atomic.Int32
	c, err := NewContainer("orders", testConfig("orders.created"), func(msg *message.Message) error {
		handled.Add(1)
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Stop(context.Background()) })

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.IsRunning())
	assert.Empty(t, c.ListenerConfig().ClientID, "channel transport does not forward client ids")

	tr, err := channel.Build(context.Background(), nil, transport.Binding{Destination: "orders.created"}, watermill.NopLogger{})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, tr.Publisher.Publish("orders.created", newMessage(nil)))
	}

	require.Eventually(t, func() bool { return handled.Load() == 3 }, waitFor, tick)
	assert.Equal(t, 1, c.Stats().ScheduledConsumerCount)

	require.NoError(t, c.Stop(context.Background()))
	assert.False(t, c.IsRunning())
	assert.Equal(t, Stats{}, c.Stats())
}

func TestContainerRetriesThenNacks(t *testing.T) {
	b := newStubBroker()
	var attempts atomic.Int32
	c := newStubContainer(t, b, testConfig("q"), func(*message.Message) error {
		attempts.Add(1)
		return errors.New("downstream unavailable")
	}, WithBackOff(BackOff{Interval: time.Millisecond, MaxAttempts: 2}))
	require.NoError(t, c.Start(context.Background()))

	msg := newMessage(nil)
	b.send(t, msg)
	waitNack(t, msg)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestContainerRetrySucceeds(t *testing.T) {
	b := newStubBroker()
	var attempts atomic.Int32
	c := newStubContainer(t, b, testConfig("q"), func(*message.Message) error {
		if attempts.Add(1) == 1 {
			return errors.New("flaky")
		}
		return nil
	}, WithBackOff(BackOff{Interval: time.Millisecond, MaxAttempts: UnlimitedAttempts}))
	require.NoError(t, c.Start(context.Background()))

	msg := newMessage(nil)
	b.send(t, msg)
	waitAck(t, msg)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestContainerRecoversFromHandlerPanic(t *testing.T) {
	b := newStubBroker()
	c := newStubContainer(t, b, testConfig("q"), func(*message.Message) error {
		panic("boom")
	})
	require.NoError(t, c.Start(context.Background()))

	msg := newMessage(nil)
	b.send(t, msg)
	waitNack(t, msg)
	assert.True(t, c.IsRunning())
}

func TestContainerFiltersBySelector(t *testing.T) {
	b := newStubBroker()
	cfg := testConfig("q")
	cfg.MessageSelector = "type=order, region='eu'"
	var handled atomic.Int32
	c := newStubContainer(t, b, cfg, func(*message.Message) error {
		handled.Add(1)
		return nil
	})
	require.NoError(t, c.Start(context.Background()))

	skipped := newMessage(map[string]string{"type": "invoice", "region": "eu"})
	b.send(t, skipped)
	waitAck(t, skipped)
	assert.Equal(t, int32(0), handled.Load())

	taken := newMessage(map[string]string{"type": "order", "region": "eu"})
	b.send(t, taken)
	waitAck(t, taken)
	assert.Equal(t, int32(1), handled.Load())
}

func TestDupsOKAcknowledgesBeforeHandling(t *testing.T) {
	b := newStubBroker()
	cfg := testConfig("q")
	cfg.SessionAcknowledgeMode = DupsOkAcknowledge
	c := newStubContainer(t, b, cfg, func(*message.Message) error {
		return errors.New("lost")
	})
	require.NoError(t, c.Start(context.Background()))

	msg := newMessage(nil)
	b.send(t, msg)
	waitAck(t, msg)
}

func TestProcessNacksWhileStoppingUnlessAccepted(t *testing.T) {
	var handled atomic.Int32
	c := newStubContainer(t, newStubBroker(), testConfig("q"), func(*message.Message) error {
		handled.Add(1)
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &session{ctx: ctx, cancel: cancel}
	s.stopping.Store(true)

	rejected := newMessage(nil)
	c.process(s, rejected)
	waitNack(t, rejected)
	assert.Equal(t, int32(0), handled.Load())

	cfg := c.ListenerConfig()
	cfg.AcceptMessagesWhileStopping = true
	require.NoError(t, c.SetListenerConfig(cfg))

	accepted := newMessage(nil)
	c.process(s, accepted)
	waitAck(t, accepted)
	assert.Equal(t, int32(1), handled.Load())
}

func TestContainerScalesUpToMaxConcurrentConsumers(t *testing.T) {
	b := newStubBroker()
	cfg := testConfig("q")
	cfg.MaxConcurrentConsumers = 3
	release := make(chan struct{})
	c := newStubContainer(t, b, cfg, func(*message.Message) error {
		<-release
		return nil
	})
	require.NoError(t, c.Start(context.Background()))

	msgs := []*message.Message{newMessage(nil), newMessage(nil), newMessage(nil)}
	go func() {
		for _, msg := range msgs {
			b.in <- msg
		}
	}()

	require.Eventually(t, func() bool {
		st := c.Stats()
		return st.ActiveConsumerCount == 3 && st.ScheduledConsumerCount == 3
	}, waitFor, tick)

	close(release)
	for _, msg := range msgs {
		waitAck(t, msg)
	}
	require.Eventually(t, func() bool { return c.Stats().ScheduledConsumerCount == 1 }, waitFor, tick,
		"idle consumers above concurrentConsumers retire")
}

func TestSetListenerConfigRescalesRunningContainer(t *testing.T) {
	b := newStubBroker()
	c := newStubContainer(t, b, testConfig("q"), func(*message.Message) error { return nil })
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, 1, c.Stats().ScheduledConsumerCount)

	cfg := c.ListenerConfig()
	cfg.ConcurrentConsumers, cfg.MaxConcurrentConsumers = 3, 3
	require.NoError(t, c.SetListenerConfig(cfg))
	assert.Equal(t, 3, c.Stats().ScheduledConsumerCount)

	cfg.ConcurrentConsumers, cfg.MaxConcurrentConsumers = 1, 1
	require.NoError(t, c.SetListenerConfig(cfg))
	require.Eventually(t, func() bool { return c.Stats().ScheduledConsumerCount == 1 }, waitFor, tick)
}

func TestMaxMessagesPerTaskRecyclesConsumerTask(t *testing.T) {
	b := newStubBroker()
	cfg := testConfig("q")
	cfg.MaxMessagesPerTask = 1
	exec := executor.NewAsync(0, executor.Settings{})
	c := newStubContainer(t, b, cfg, func(*message.Message) error { return nil }, WithTaskExecutor(exec))
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, int64(1), exec.TaskCount())

	for i := 0; i < 3; i++ {
		msg := newMessage(nil)
		b.send(t, msg)
		waitAck(t, msg)
	}
	require.Eventually(t, func() bool { return exec.TaskCount() == 4 }, waitFor, tick)
	assert.Equal(t, 1, c.Stats().ScheduledConsumerCount)
	assert.Same(t, exec, c.TaskExecutor())
}

func TestContainerResubscribesAfterSubscriptionCloses(t *testing.T) {
	b := newStubBroker()
	c := newStubContainer(t, b, testConfig("q"), func(*message.Message) error { return nil })
	require.NoError(t, c.Start(context.Background()))

	b.drop <- struct{}{}
	require.Eventually(t, func() bool { return b.subscribeCount() == 2 }, waitFor, tick)

	msg := newMessage(nil)
	b.send(t, msg)
	waitAck(t, msg)
	assert.False(t, c.Stats().Recovering)
	assert.Equal(t, 1, b.buildCount())
}

func TestCacheLevelControlsTransportReuse(t *testing.T) {
	t.Run("auto keeps the transport", func(t *testing.T) {
		b := newStubBroker()
		c := newStubContainer(t, b, testConfig("q"), func(*message.Message) error { return nil })
		require.NoError(t, c.Start(context.Background()))
		require.NoError(t, c.Stop(context.Background()))
		require.NoError(t, c.Start(context.Background()))
		assert.Equal(t, 1, b.buildCount())
		assert.Equal(t, int32(0), b.closed.Load())
	})

	t.Run("none closes it on stop", func(t *testing.T) {
		b := newStubBroker()
		cfg := testConfig("q")
		cfg.CacheLevel = CacheNone
		c := newStubContainer(t, b, cfg, func(*message.Message) error { return nil })
		require.NoError(t, c.Start(context.Background()))
		require.NoError(t, c.Stop(context.Background()))
		assert.Equal(t, int32(1), b.closed.Load())
		require.NoError(t, c.Start(context.Background()))
		assert.Equal(t, 2, b.buildCount())
	})
}

func TestStartTwiceIsNoop(t *testing.T) {
	b := newStubBroker()
	c := newStubContainer(t, b, testConfig("q"), func(*message.Message) error { return nil })
	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, 1, b.subscribeCount())
	require.NoError(t, c.Stop(context.Background()))
	require.NoError(t, c.Stop(context.Background()))
}

func TestStartFailsWithoutSubscriber(t *testing.T) {
	f := rtransport.FactoryFunc(func(context.Context, *config.Config, transport.Binding, watermill.LoggerAdapter) (transport.Transport, error) {
		return transport.Transport{}, nil
	})
	c, err := NewContainer("orders", testConfig("q"), func(*message.Message) error { return nil }, WithFactory(f, nil))
	require.NoError(t, err)
	assert.ErrorIs(t, c.Start(context.Background()), errspkg.ErrSubscriberMissing)
	assert.False(t, c.IsRunning())
}

func TestNewContainerValidates(t *testing.T) {
	handler := func(*message.Message) error { return nil }

	_, err := NewContainer("", testConfig("q"), handler)
	assert.ErrorIs(t, err, errspkg.ErrNameRequired)

	_, err = NewContainer("orders", testConfig("q"), nil)
	assert.ErrorIs(t, err, errspkg.ErrInvalidParameter)

	_, err = NewContainer("orders", Config{}, handler)
	require.ErrorIs(t, err, errspkg.ErrInvalidParameter)
	assert.Contains(t, err.Error(), "destination is required")

	_, err = NewContainer("orders", testConfig("q"), handler, WithBackOff(BackOff{Interval: -time.Second}))
	assert.ErrorIs(t, err, errspkg.ErrInvalidParameter)
}

func TestNewContainerGeneratesClientIDWhenForwarded(t *testing.T) {
	b := newStubBroker()
	c, err := NewContainer("orders", testConfig("q"), func(*message.Message) error { return nil },
		WithFactory(b.factory(), &config.Config{PubSubSystem: "kafka"}))
	require.NoError(t, err)
	assert.Regexp(t, `^orders-[0-9a-f-]{36}$`, c.ListenerConfig().ClientID)
	assert.True(t, c.Capabilities().SupportsClientID)
}
