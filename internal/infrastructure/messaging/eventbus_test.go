package messaging

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starboard-tutoring/pointsledger/internal/domain/shared"
	"github.com/starboard-tutoring/pointsledger/pkg/logger"
)

func syncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{Logger: logger.Discard()})
}

func TestInMemoryEventBus_SyncDelivery(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	var typed, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventPenaltyApplied, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewPenaltyAppliedEvent("stu-1", "pen_1", "missed-session", 10, 90, "system")))
	require.NoError(t, bus.Publish(shared.NewBonusAwardedEvent("stu-1", "bon_1", "clean-week", 30, 120, "system")))

	assert.Equal(t, []shared.EventType{shared.EventPenaltyApplied}, typed)
	assert.Equal(t, []shared.EventType{shared.EventPenaltyApplied, shared.EventBonusAwarded}, all)
}

func TestInMemoryEventBus_HandlerFailuresAreIsolated(t *testing.T) {
	bus := syncBus()
	defer bus.Close()

	var reached bool
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("handler bug") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		reached = true
		return nil
	}))

	err := bus.Publish(shared.NewStudentAtRiskEvent("stu-1", "high", 7, nil))
	assert.NoError(t, err)
	assert.True(t, reached)
}

func TestInMemoryEventBus_Execute_RecoversPanic(t *testing.T) {
	bus := syncBus()
	err := bus.execute(shared.NewStudentAtRiskEvent("stu-1", "high", 7, nil), func(shared.Event) error {
		panic("nope")
	})
	assert.ErrorIs(t, err, ErrHandlerPanic)
}

func TestInMemoryEventBus_AsyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 2,
		Logger:         logger.Discard(),
	})

	var count atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		count.Add(1)
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(shared.NewStudentAtRiskEvent("stu-1", "medium", 3, nil)))
	}

	assert.Eventually(t, func() bool { return count.Load() == 5 }, time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Close())
}

func TestInMemoryEventBus_Validation(t *testing.T) {
	bus := syncBus()

	assert.ErrorIs(t, bus.Subscribe(shared.EventBonusAwarded, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.SubscribeAll(nil), ErrNilHandler)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)

	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(shared.NewStudentAtRiskEvent("stu-1", "high", 7, nil)), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	event := shared.NewPenaltyWaivedEvent("stu-1", "pen_1", 10, 100, "tutor-1", "excused")

	data, err := encodeEnvelope("instance-a", event)
	require.NoError(t, err)

	instanceID, decoded, err := decodeEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, "instance-a", instanceID)
	assert.Equal(t, shared.EventPenaltyWaived, decoded.EventType())
	assert.Equal(t, "stu-1", decoded.AggregateID())
	assert.True(t, event.OccurredAt().Equal(decoded.OccurredAt()))
	assert.Equal(t, "pen_1", decoded.Payload()["penalty_id"])
	assert.Equal(t, float64(10), decoded.Payload()["points_restored"])
}

func TestEnvelope_Invalid(t *testing.T) {
	_, _, err := decodeEnvelope([]byte("not json"))
	assert.Error(t, err)

	_, _, err = decodeEnvelope([]byte(`{"id":"x"}`))
	assert.ErrorIs(t, err, ErrEventNotSupported)
}

// fakeRedis loops published messages back to every subscriber, the way a
// Redis server would.
type fakeRedis struct {
	mu         sync.Mutex
	subs       []chan RedisMessage
	published  []string
	publishErr error
	closed     bool
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	payload := message.(string)
	f.published = append(f.published, payload)
	for _, ch := range f.subs {
		ch <- RedisMessage{Channel: channel, Payload: payload}
	}
	return nil
}

func (f *fakeRedis) Subscribe(context.Context, ...string) (<-chan RedisMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan RedisMessage, 16)
	f.subs = append(f.subs, ch)
	return ch, nil
}

func (f *fakeRedis) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// inject delivers a payload as if another instance had published it.
func (f *fakeRedis) inject(payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- RedisMessage{Channel: DefaultChannel, Payload: payload}
	}
}

func newRedisBus(t *testing.T, client RedisClient, instanceID string) *RedisEventBus {
	t.Helper()
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:     client,
		InstanceID: instanceID,
		Logger:     logger.Discard(),
	})
	require.NoError(t, err)
	return bus
}

func TestRedisEventBus_SkipsOwnMessages(t *testing.T) {
	client := &fakeRedis{}
	bus := newRedisBus(t, client, "instance-a")

	var count atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		count.Add(1)
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewBonusAwardedEvent("stu-1", "bon_1", "clean-week", 30, 130, "system")))

	// Local delivery only; the looped back copy is dropped.
	assert.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())

	require.NoError(t, bus.Close())
	assert.True(t, client.closed)
	require.Len(t, client.published, 1)
}

func TestRedisEventBus_DeliversRemoteEvents(t *testing.T) {
	client := &fakeRedis{}
	bus := newRedisBus(t, client, "instance-a")
	defer bus.Close()

	received := make(chan shared.Event, 1)
	require.NoError(t, bus.Subscribe(shared.EventStudentAtRisk, func(e shared.Event) error {
		received <- e
		return nil
	}))

	data, err := encodeEnvelope("instance-b", shared.NewStudentAtRiskEvent("stu-9", "high", 8, []string{"3 penalties"}))
	require.NoError(t, err)
	client.inject(string(data))

	select {
	case e := <-received:
		assert.Equal(t, "stu-9", e.AggregateID())
		assert.Equal(t, "high", e.Payload()["risk_level"])
	case <-time.After(time.Second):
		t.Fatal("remote event not delivered")
	}
}

func TestRedisEventBus_PublishFailureStillDeliversLocally(t *testing.T) {
	client := &fakeRedis{publishErr: errors.New("connection refused")}
	bus := newRedisBus(t, client, "instance-a")
	defer bus.Close()

	var count atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		count.Add(1)
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewStudentAtRiskEvent("stu-1", "high", 7, nil)))
	assert.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestNewRedisEventBus_RequiresClient(t *testing.T) {
	_, err := NewRedisEventBus(RedisEventBusConfig{})
	assert.Error(t, err)
}
