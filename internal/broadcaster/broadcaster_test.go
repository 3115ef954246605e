package broadcaster

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mgxlabs/orchestrator/internal/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBroadcaster_PublishDeliversToMatchingChannel(t *testing.T) {
	b := New(10)
	sub := b.Subscribe(TaskChannel("t1"))
	defer b.Unsubscribe(sub)

	event := NewEvent(types.EventTaskStarted, "ws1", "t1", "", nil)
	b.Publish(TaskChannel("t1"), event)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, ok := sub.Next(ctx)
	require.True(t, ok)
	require.Equal(t, event.EventID, got.EventID)
}

func TestBroadcaster_PublishAlwaysReachesAllChannel(t *testing.T) {
	b := New(10)
	sub := b.Subscribe(TaskChannel("t1"))
	defer b.Unsubscribe(sub)

	event := NewEvent(types.EventTaskCompleted, "ws1", "t1", "", nil)
	b.Publish(AllChannel, event)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, ok := sub.Next(ctx)
	require.True(t, ok)
	require.Equal(t, event.EventID, got.EventID)
}

func TestBroadcaster_DoesNotDeliverToUnmatchedChannel(t *testing.T) {
	b := New(10)
	sub := b.Subscribe(TaskChannel("t1"))
	defer b.Unsubscribe(sub)

	b.Publish(TaskChannel("t2"), NewEvent(types.EventTaskStarted, "ws1", "t2", "", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok := sub.Next(ctx)
	require.False(t, ok)
}

func TestBroadcaster_BackpressureDropsOldest(t *testing.T) {
	b := New(2)
	sub := b.Subscribe(TaskChannel("t1"))
	defer b.Unsubscribe(sub)

	var published []types.Event
	for i := 0; i < 5; i++ {
		e := NewEvent(types.EventProgress, "ws1", "t1", "", types.ProgressData{Step: i})
		published = append(published, e)
		b.Publish(TaskChannel("t1"), e)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, ok := sub.Next(ctx)
	require.True(t, ok)
	require.Equal(t, published[3].EventID, first.EventID)

	second, ok := sub.Next(ctx)
	require.True(t, ok)
	require.Equal(t, published[4].EventID, second.EventID)

	require.EqualValues(t, 3, sub.DroppedCount())
}

func TestBroadcaster_UnsubscribeStopsDelivery(t *testing.T) {
	b := New(10)
	sub := b.Subscribe(TaskChannel("t1"))
	b.Unsubscribe(sub)

	b.Publish(TaskChannel("t1"), NewEvent(types.EventTaskStarted, "ws1", "t1", "", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok := sub.Next(ctx)
	require.False(t, ok)
	require.Equal(t, 0, b.SubscriberCount())
}

func TestBroadcaster_FanOutIsolation(t *testing.T) {
	b := New(1)
	slow := b.Subscribe(TaskChannel("t1"))
	fast := b.Subscribe(TaskChannel("t1"))
	defer b.Unsubscribe(slow)
	defer b.Unsubscribe(fast)

	for i := 0; i < 3; i++ {
		b.Publish(TaskChannel("t1"), NewEvent(types.EventProgress, "ws1", "t1", "", nil))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, ok := fast.Next(ctx)
	require.True(t, ok)
}

func TestBroadcaster_ConcurrentPublishAndSubscribe(t *testing.T) {
	b := New(50)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sub := b.Subscribe(TaskChannel("t1"))
			defer b.Unsubscribe(sub)
			ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
			defer cancel()
			for {
				if _, ok := sub.Next(ctx); !ok {
					return
				}
			}
		}(i)
	}
	for i := 0; i < 100; i++ {
		b.Publish(TaskChannel("t1"), NewEvent(types.EventProgress, "ws1", "t1", "", nil))
	}
	wg.Wait()
	b.Close()
}

func TestBroadcaster_CloseUnsubscribesEveryone(t *testing.T) {
	b := New(10)
	subA := b.Subscribe(TaskChannel("t1"))
	subB := b.Subscribe(TaskChannel("t2"))
	b.Close()
	require.Equal(t, 0, b.SubscriberCount())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok := subA.Next(ctx)
	require.False(t, ok)
	_, ok = subB.Next(ctx)
	require.False(t, ok)
}
