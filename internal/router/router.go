package router

import (
	"log/slog"
	"sync"

	"gcslink/internal/fc"
)

// Queue is a subscriber's bounded inbox. The subscriber owns it and is
// responsible for draining; a full queue drops, never blocks the
// publisher.
type Queue chan fc.DecodedMessage

// Router fans decoded messages out to per-topic subscriber queues.
// Category subscribers see only their category; raw subscribers see every
// message exactly once regardless of category.
type Router struct {
	logger *slog.Logger

	mu      sync.RWMutex
	subs    map[fc.Topic]map[Queue]struct{}
	dropped map[fc.Topic]uint64
}

func New(logger *slog.Logger) *Router {
	return &Router{
		logger:  logger,
		subs:    make(map[fc.Topic]map[Queue]struct{}),
		dropped: make(map[fc.Topic]uint64),
	}
}

// Subscribe registers q for topic. Idempotent.
func (r *Router) Subscribe(topic fc.Topic, q Queue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[topic]
	if !ok {
		set = make(map[Queue]struct{})
		r.subs[topic] = set
	}
	set[q] = struct{}{}
	r.logger.Debug("subscribed", "topic", topic, "subscribers", len(set))
}

// Unsubscribe removes q from topic and prunes empty topic entries.
// Idempotent.
func (r *Router) Unsubscribe(topic fc.Topic, q Queue) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[topic]
	if !ok {
		return
	}
	delete(set, q)
	if len(set) == 0 {
		delete(r.subs, topic)
	}
	r.logger.Debug("unsubscribed", "topic", topic)
}

// Publish delivers msg to every subscriber of its categories and, unless
// the message is itself uncategorized, to every raw subscriber. Each
// queue receives the message at most once even when subscribed to several
// matching topics.
func (r *Router) Publish(msg fc.DecodedMessage) {
	topics := fc.Categorize(msg.Type)
	if len(topics) == 0 {
		topics = []fc.Topic{fc.TopicRaw}
	} else {
		topics = append(topics, fc.TopicRaw)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[Queue]struct{})
	for _, topic := range topics {
		for q := range r.subs[topic] {
			if _, dup := seen[q]; dup {
				continue
			}
			seen[q] = struct{}{}
			select {
			case q <- msg:
			default:
				r.dropped[topic]++
				r.logger.Warn("subscriber queue full, dropping message",
					"topic", topic, "type", msg.Type, "dropped", r.dropped[topic])
			}
		}
	}
}

// Dropped returns how many messages were dropped for topic since start.
func (r *Router) Dropped(topic fc.Topic) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dropped[topic]
}

// Subscribers returns the current subscriber count for topic.
func (r *Router) Subscribers(topic fc.Topic) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[topic])
}
