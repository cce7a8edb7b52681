package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sddion/projectzg/internal/social"
	"go.uber.org/zap"
)

const (
	RealtimeEventNotification = "notification"
	realtimeEventReady        = "ready"
	realtimeEventHeartbeat    = "heartbeat"
	realtimeSourceBackend     = "zg-backend"
	realtimeStreamBuffer      = 16
)

// RealtimeMessage is one event delivered to a user's open streams.
type RealtimeMessage struct {
	UserID       string
	EventType    string
	Notification *social.Notification
	Timestamp    time.Time
}

// RealtimeDispatcher fans notifications out to every open stream of their recipient. A stream whose
// buffer is full misses the event; the notification itself stays readable through the list endpoint.
type RealtimeDispatcher struct {
	logger  *zap.Logger
	streams sync.Map // user id -> *userStreams
	lastID  atomic.Uint64
	dropped atomic.Uint64
}

type userStreams struct {
	mu    sync.Mutex
	byKey map[uint64]chan RealtimeMessage
	// retired is set once the entry leaves the dispatcher; late subscribers must register a fresh one.
	retired bool
}

// NewRealtimeDispatcher constructs an empty dispatcher. A nil logger discards drop reports.
func NewRealtimeDispatcher(logger *zap.Logger) *RealtimeDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeDispatcher{logger: logger}
}

// Subscribe opens a stream for userID. The stream is detached when ctx ends or the returned func runs,
// whichever comes first.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID string) (<-chan RealtimeMessage, func()) {
	stream := make(chan RealtimeMessage, realtimeStreamBuffer)
	if userID == "" {
		close(stream)
		return stream, func() {}
	}

	key := d.lastID.Add(1)
	streams := d.attach(userID, key, stream)

	var once sync.Once
	detach := func() {
		once.Do(func() {
			streams.mu.Lock()
			defer streams.mu.Unlock()
			delete(streams.byKey, key)
			if len(streams.byKey) == 0 {
				streams.retired = true
				d.streams.CompareAndDelete(userID, streams)
			}
		})
	}
	context.AfterFunc(ctx, detach)
	return stream, detach
}

func (d *RealtimeDispatcher) attach(userID string, key uint64, stream chan RealtimeMessage) *userStreams {
	for {
		value, _ := d.streams.LoadOrStore(userID, &userStreams{byKey: map[uint64]chan RealtimeMessage{}})
		streams := value.(*userStreams)
		streams.mu.Lock()
		if streams.retired {
			streams.mu.Unlock()
			continue
		}
		streams.byKey[key] = stream
		streams.mu.Unlock()
		return streams
	}
}

// PublishNotification delivers a stored notification to its recipient's streams.
func (d *RealtimeDispatcher) PublishNotification(notification social.Notification) {
	d.Publish(RealtimeMessage{
		UserID:       notification.UserID,
		EventType:    RealtimeEventNotification,
		Notification: &notification,
		Timestamp:    notification.CreatedAt,
	})
}

// Publish delivers message without blocking on slow readers.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	value, ok := d.streams.Load(message.UserID)
	if !ok {
		return
	}
	streams := value.(*userStreams)
	streams.mu.Lock()
	defer streams.mu.Unlock()
	for _, stream := range streams.byKey {
		select {
		case stream <- message:
		default:
			total := d.dropped.Add(1)
			d.logger.Warn("realtime event dropped",
				zap.String("user_id", message.UserID),
				zap.String("event", message.EventType),
				zap.Uint64("dropped_total", total))
		}
	}
}

func (d *RealtimeDispatcher) subscriberCount(userID string) int {
	value, ok := d.streams.Load(userID)
	if !ok {
		return 0
	}
	streams := value.(*userStreams)
	streams.mu.Lock()
	defer streams.mu.Unlock()
	return len(streams.byKey)
}
