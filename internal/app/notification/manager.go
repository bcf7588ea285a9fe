// Package notification provides the notification manager for broadcasting events.
package notification

import (
	"sync"

	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/saavnbox/internal/app/playback"
)

// defaultQueueSize is the number of notifications buffered per subscriber.
const defaultQueueSize = 64

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// subscription owns one subscriber's queue and the goroutine that writes it
// to the stream, so a slow stream only ever delays itself.
type subscription struct {
	id     string
	stream Stream
	queue  chan *Notification

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newSubscription(id string, stream Stream, size int) *subscription {
	return &subscription{
		id:     id,
		stream: stream,
		queue:  make(chan *Notification, size),
		done:   make(chan struct{}),
	}
}

// offer queues n without blocking. Position ticks are dropped when the queue
// is full; any other notification that does not fit evicts the subscriber,
// since it would otherwise miss a state change.
func (s *subscription) offer(n *Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.queue <- n:
		return true
	default:
	}
	if n.Type == playback.EventPositionChanged.String() {
		zlog.Debug().Msgf("notification: dropped position tick: subscription=%s", s.id)
		return true
	}
	return false
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// run writes queued notifications until the subscription closes or the
// stream fails.
func (s *subscription) run(onFail func()) {
	for {
		select {
		case <-s.done:
			return
		case n := <-s.queue:
			if err := s.stream.Send(n); err != nil {
				zlog.Debug().Msgf("notification: send failed: subscription=%s err=%v", s.id, err)
				onFail()
				return
			}
		}
	}
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
	queueSize     int
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return NewManagerWithQueue(defaultQueueSize)
}

// NewManagerWithQueue creates a manager buffering size notifications per subscriber.
func NewManagerWithQueue(size int) *Manager {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Manager{
		subscriptions: make(map[string]*subscription),
		queueSize:     size,
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
// initial, when not nil, is stamped and queued ahead of any broadcast.
func (m *Manager) Subscribe(stream Stream, initial *Notification) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	sub := newSubscription(id, stream, m.queueSize)
	if initial != nil {
		initial.SequenceNo = m.NextSequenceNo()
		sub.offer(initial)
	}
	m.subscriptions[id] = sub
	go sub.run(func() { m.Unsubscribe(id) })
	return id
}

// NextSequenceNo returns the next sequence number and increments the counter.
func (m *Manager) NextSequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	return m.sequenceNo
}

// Unsubscribe removes a subscription and stops its writer.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	sub, ok := m.subscriptions[subscriptionID]
	delete(m.subscriptions, subscriptionID)
	m.mu.Unlock()
	if ok {
		sub.close()
	}
}

// Done returns a channel closed when the subscription ends, either through
// Unsubscribe or because it was evicted. Unknown IDs yield a closed channel.
func (m *Manager) Done(subscriptionID string) <-chan struct{} {
	m.mu.RLock()
	sub, ok := m.subscriptions[subscriptionID]
	m.mu.RUnlock()
	if !ok {
		done := make(chan struct{})
		close(done)
		return done
	}
	return sub.done
}

// Broadcast stamps the notification with the next sequence number and
// queues it for every subscriber. It never waits on a stream.
func (m *Manager) Broadcast(notification *Notification) {
	var evicted []string

	// Stamping under the lock keeps every queue in sequence order and puts
	// a new subscriber's initial state ahead of later broadcasts.
	m.mu.Lock()
	notification.SequenceNo = m.NextSequenceNo()
	for id, sub := range m.subscriptions {
		if !sub.offer(notification) {
			evicted = append(evicted, id)
		}
	}
	m.mu.Unlock()

	for _, id := range evicted {
		zlog.Warn().Msgf("notification: subscriber too slow, evicting: subscription=%s type=%s", id, notification.Type)
		m.Unsubscribe(id)
	}
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close closes the manager and removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	subs := m.subscriptions
	m.subscriptions = make(map[string]*subscription)
	m.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
