package stripe

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventStore remembers the webhook events already processed so redelivered
// events are skipped.
type EventStore interface {
	Processed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string) error
}

// MemoryEventStore keeps the processed events of this process only. Use the
// Redis or the Mongo store when running more than one instance.
type MemoryEventStore struct {
	events map[string]time.Time
	mutex  sync.RWMutex
	ttl    time.Duration
	stop   chan struct{}
	once   sync.Once
}

// NewMemoryEventStore creates a new in-memory event store. It starts a
// goroutine that drops the expired events until Close is called.
func NewMemoryEventStore(ttl time.Duration) *MemoryEventStore {
	if ttl == 0 {
		ttl = DefaultEventTTL
	}
	store := &MemoryEventStore{
		events: make(map[string]time.Time),
		ttl:    ttl,
		stop:   make(chan struct{}),
	}
	go store.cleanup(time.Hour)
	return store
}

// Processed checks if an event has already been processed
func (m *MemoryEventStore) Processed(_ context.Context, eventID string) (bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	processedAt, exists := m.events[eventID]
	return exists && time.Since(processedAt) <= m.ttl, nil
}

// MarkProcessed marks an event as processed
func (m *MemoryEventStore) MarkProcessed(_ context.Context, eventID, _ string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.events[eventID] = time.Now()
	return nil
}

// Close stops the cleanup goroutine.
func (m *MemoryEventStore) Close() {
	m.once.Do(func() { close(m.stop) })
}

func (m *MemoryEventStore) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.expire()
		}
	}
}

func (m *MemoryEventStore) expire() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	now := time.Now()
	for eventID, timestamp := range m.events {
		if now.Sub(timestamp) > m.ttl {
			delete(m.events, eventID)
		}
	}
}

// Size returns the number of stored events.
func (m *MemoryEventStore) Size() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.events)
}

const redisEventKeyPrefix = "mailclean:stripe:event:"

// RedisEventStore shares the processed events between every instance of the
// service. Keys expire after the TTL.
type RedisEventStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisEventStore creates an event store over the redis client.
func NewRedisEventStore(rdb *redis.Client, ttl time.Duration) *RedisEventStore {
	if ttl == 0 {
		ttl = DefaultEventTTL
	}
	return &RedisEventStore{rdb: rdb, ttl: ttl}
}

// Processed checks if the event key exists.
func (r *RedisEventStore) Processed(ctx context.Context, eventID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, redisEventKeyPrefix+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkProcessed stores the event key with the event type as value. An
// already stored key is left untouched.
func (r *RedisEventStore) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	return r.rdb.SetNX(ctx, redisEventKeyPrefix+eventID, eventType, r.ttl).Err()
}

// WebhookEventsDB is the database used by MongoEventStore.
type WebhookEventsDB interface {
	WebhookEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkWebhookEvent(ctx context.Context, eventID, eventType string) error
}

// MongoEventStore keeps the processed events in the database, expired by a
// TTL index.
type MongoEventStore struct {
	db WebhookEventsDB
}

// NewMongoEventStore creates an event store over the database.
func NewMongoEventStore(db WebhookEventsDB) *MongoEventStore {
	return &MongoEventStore{db: db}
}

// Processed checks if the event is stored.
func (m *MongoEventStore) Processed(ctx context.Context, eventID string) (bool, error) {
	return m.db.WebhookEventProcessed(ctx, eventID)
}

// MarkProcessed stores the event.
func (m *MongoEventStore) MarkProcessed(ctx context.Context, eventID, eventType string) error {
	return m.db.MarkWebhookEvent(ctx, eventID, eventType)
}
