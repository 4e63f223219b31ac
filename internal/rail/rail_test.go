package rail

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSubscribeSkipsValuePresentAtSubscription(t *testing.T) {
	b := NewBroadcaster(FrameSentinel)
	b.Publish(FrameEvent{CameraID: 1, Timestamp: 1})

	sub := b.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, ok := sub.Await(ctx); ok {
		t.Fatalf("expected Await to time out, got a value before any new publish")
	}
}

func TestAwaitReturnsLatestNotBacklog(t *testing.T) {
	b := NewBroadcaster(FrameSentinel)
	sub := b.Subscribe()

	b.Publish(FrameEvent{CameraID: 1, Timestamp: 1})
	b.Publish(FrameEvent{CameraID: 1, Timestamp: 2})
	b.Publish(FrameEvent{CameraID: 1, Timestamp: 3})

	ctx := context.Background()
	v, ok := sub.Await(ctx)
	if !ok {
		t.Fatalf("expected a value")
	}
	if v.Timestamp != 3 {
		t.Fatalf("expected latest-wins value with Timestamp=3, got %d", v.Timestamp)
	}
}

func TestOrderingPerSubscriberWhenNotCoalesced(t *testing.T) {
	b := NewBroadcaster(FrameSentinel)
	sub := b.Subscribe()

	var got []int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		for i := 0; i < 2; i++ {
			v, ok := sub.Await(ctx)
			if !ok {
				return
			}
			got = append(got, v.Timestamp)
		}
	}()

	time.Sleep(10 * time.Millisecond)
	b.Publish(FrameEvent{CameraID: 1, Timestamp: 1})
	time.Sleep(10 * time.Millisecond)
	b.Publish(FrameEvent{CameraID: 1, Timestamp: 2})
	<-done

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("expected [1 2], got %v", got)
	}
}

func TestNeverBlocksPublisher(t *testing.T) {
	b := NewBroadcaster(FrameSentinel)
	// No subscribers at all: publish must return immediately.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			b.Publish(FrameEvent{CameraID: 1, Timestamp: int64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("publisher blocked with no subscribers")
	}
}

func TestConcurrentPublishersAreSerialized(t *testing.T) {
	b := NewBroadcaster(FrameSentinel)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.Publish(FrameEvent{CameraID: int64(p), Timestamp: int64(i)})
			}
		}(p)
	}
	wg.Wait() // must not deadlock or race (run with -race)
}

func TestControlSentinelDiscarded(t *testing.T) {
	b := NewBroadcaster(ControlSentinel)
	sub := b.Subscribe()
	b.Publish(CameraListChangedEvent(5, ListAdded))

	v, ok := sub.Await(context.Background())
	if !ok {
		t.Fatalf("expected a value")
	}
	if v.Kind != ControlCameraListChanged || v.CameraID != 5 || v.Delta != ListAdded {
		t.Fatalf("unexpected event: %+v", v)
	}
}
