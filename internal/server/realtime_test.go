package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sddion/projectzg/internal/social"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRealtimeDispatcherPublishesNotificationToRecipient(t *testing.T) {
	dispatcher := NewRealtimeDispatcher(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, "user-1")
	defer cleanup()

	postID := "post-1"
	dispatcher.PublishNotification(social.Notification{
		ID:        "notification-1",
		UserID:    "user-1",
		ActorID:   "user-2",
		Type:      social.NotificationLike,
		PostID:    &postID,
		CreatedAt: time.Now().UTC(),
	})

	select {
	case received := <-stream:
		if received.EventType != RealtimeEventNotification {
			t.Fatalf("expected event type %s, got %s", RealtimeEventNotification, received.EventType)
		}
		if received.Notification == nil || received.Notification.ID != "notification-1" {
			t.Fatalf("expected the published notification, got %#v", received.Notification)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
}

func TestRealtimeDispatcherIsolatedByUser(t *testing.T) {
	dispatcher := NewRealtimeDispatcher(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otherCtx, otherCancel := context.WithCancel(context.Background())
	defer otherCancel()

	userStream, cleanup := dispatcher.Subscribe(ctx, "user-2")
	defer cleanup()

	otherStream, otherCleanup := dispatcher.Subscribe(otherCtx, "user-3")
	defer otherCleanup()

	dispatcher.PublishNotification(social.Notification{ID: "n-1", UserID: "user-3", Type: social.NotificationFollow})

	select {
	case <-userStream:
		t.Fatal("did not expect realtime message for unrelated user")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case msg := <-otherStream:
		if msg.UserID != "user-3" {
			t.Fatalf("expected user-3, received %s", msg.UserID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message for subscribed user")
	}
}

func TestRealtimeDispatcherUnsubscribesOnContextDone(t *testing.T) {
	dispatcher := NewRealtimeDispatcher(nil)
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx, "user-4")
	defer cleanup()
	if count := dispatcher.subscriberCount("user-4"); count != 1 {
		t.Fatalf("expected one subscriber, got %d", count)
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for dispatcher.subscriberCount("user-4") != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected subscriber to be removed after cancellation")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// A full buffer must not block publishers.
	stream, fullCleanup := dispatcher.Subscribe(context.Background(), "user-5")
	defer fullCleanup()
	for index := 0; index < 64; index++ {
		dispatcher.PublishNotification(social.Notification{UserID: "user-5"})
	}
	if len(stream) != cap(stream) {
		t.Fatalf("expected the buffer to be full, got %d of %d", len(stream), cap(stream))
	}
}

func TestRealtimeDispatcherReportsDroppedEvents(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	dispatcher := NewRealtimeDispatcher(zap.New(core))

	_, cleanup := dispatcher.Subscribe(context.Background(), "user-6")
	defer cleanup()
	for index := 0; index < realtimeStreamBuffer+2; index++ {
		dispatcher.PublishNotification(social.Notification{UserID: "user-6", Type: social.NotificationLike})
	}

	dropped := logs.FilterMessage("realtime event dropped").All()
	if len(dropped) != 2 {
		t.Fatalf("expected two dropped events, got %d", len(dropped))
	}
	if dropped[1].ContextMap()["dropped_total"] != uint64(2) {
		t.Fatalf("expected a running drop total, got %v", dropped[1].ContextMap())
	}
}

func TestRealtimeDispatcherForgetsUsersWithoutStreams(t *testing.T) {
	dispatcher := NewRealtimeDispatcher(nil)

	_, first := dispatcher.Subscribe(context.Background(), "user-7")
	_, second := dispatcher.Subscribe(context.Background(), "user-7")
	first()
	if _, ok := dispatcher.streams.Load("user-7"); !ok {
		t.Fatal("expected the entry to stay while a stream is open")
	}
	second()
	second()
	if _, ok := dispatcher.streams.Load("user-7"); ok {
		t.Fatal("expected the entry to be removed after the last stream closed")
	}

	stream, cleanup := dispatcher.Subscribe(context.Background(), "user-7")
	defer cleanup()
	dispatcher.PublishNotification(social.Notification{UserID: "user-7"})
	select {
	case <-stream:
	case <-time.After(time.Second):
		t.Fatal("expected a stream opened after removal to receive events")
	}
}

func TestRealtimeDispatcherChurnLeavesNoEntries(t *testing.T) {
	dispatcher := NewRealtimeDispatcher(nil)
	var group sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		group.Add(1)
		go func() {
			defer group.Done()
			for index := 0; index < 200; index++ {
				_, cleanup := dispatcher.Subscribe(context.Background(), "user-8")
				dispatcher.PublishNotification(social.Notification{UserID: "user-8"})
				cleanup()
			}
		}()
	}
	group.Wait()

	entries := 0
	dispatcher.streams.Range(func(_, _ any) bool {
		entries++
		return true
	})
	if entries != 0 {
		t.Fatalf("expected no entries after every stream closed, got %d", entries)
	}
}
