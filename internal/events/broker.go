// Package events implements the in-process pub/sub broker for crawl
// progress. Publishing never blocks: slow subscribers lose events rather
// than stalling the crawl.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event types published during a crawl lifecycle.
const (
	TypeCrawlStarted   = "crawl_started"
	TypeCrawlProgress  = "crawl_progress"
	TypeCrawlError     = "crawl_error"
	TypeCrawlCompleted = "crawl_completed"
	TypeCrawlFailed    = "crawl_failed"
	TypeSnapshot       = "snapshot"
)

// Event is one progress update for a crawl.
type Event struct {
	Type           string    `json:"type"`
	CrawlID        uuid.UUID `json:"crawl_id"`
	Status         string    `json:"status"`
	CurrentURL     string    `json:"current_url,omitempty"`
	PagesProcessed int       `json:"pages_processed"`
	MaxPages       int       `json:"max_pages"`
	IssuesFound    int       `json:"issues_found"`
	ErrorCount     int       `json:"error_count"`
	Timestamp      time.Time `json:"ts"`
}

const (
	defaultBufferSize = 64
	dropLogInterval   = 5 * time.Second
)

// Broker fans crawl events out to per-crawl subscribers. The most recent
// event per crawl is retained and replayed to late subscribers as a
// synthetic snapshot.
type Broker struct {
	mu         sync.Mutex
	subs       map[uuid.UUID][]chan Event
	latest     map[uuid.UUID]Event
	bufferSize int

	logger      *zap.Logger
	dropLimiter rateLimiter
	dropped     atomic.Int64
}

// NewBroker builds a Broker. bufferSize is the per-subscriber channel depth.
func NewBroker(bufferSize int, logger *zap.Logger) *Broker {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		subs:        make(map[uuid.UUID][]chan Event),
		latest:      make(map[uuid.UUID]Event),
		bufferSize:  bufferSize,
		logger:      logger,
		dropLimiter: rateLimiter{interval: dropLogInterval},
	}
}

// Subscribe registers a listener for one crawl's events. If the crawl has
// already published, its latest event is replayed immediately as a snapshot
// so the subscriber starts from known state. The caller must Unsubscribe
// with the returned channel when done.
func (b *Broker) Subscribe(crawlID uuid.UUID) <-chan Event {
	ch := make(chan Event, b.bufferSize)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[crawlID] = append(b.subs[crawlID], ch)
	if last, ok := b.latest[crawlID]; ok {
		last.Type = TypeSnapshot
		ch <- last
	}
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *Broker) Unsubscribe(crawlID uuid.UUID, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	listeners := b.subs[crawlID]
	for i, candidate := range listeners {
		if candidate == ch {
			b.subs[crawlID] = append(listeners[:i], listeners[i+1:]...)
			close(candidate)
			break
		}
	}
	if len(b.subs[crawlID]) == 0 {
		delete(b.subs, crawlID)
	}
}

// Publish delivers an event to every subscriber of its crawl. Full
// subscriber buffers drop the event; a rate-limited warning reports the
// aggregate drop count.
func (b *Broker) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest[evt.CrawlID] = evt

	// Sends stay under the lock so Unsubscribe cannot close a channel
	// mid-delivery. They never block: a full buffer drops the event.
	for _, ch := range b.subs[evt.CrawlID] {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
			if b.dropLimiter.Allow(time.Now()) {
				count := b.dropped.Swap(0)
				b.logger.Warn("crawl events dropped due to slow subscribers",
					zap.Int64("dropped", count),
					zap.String("crawl_id", evt.CrawlID.String()))
			}
		}
	}
}

// Forget drops the retained event for a crawl. Called once a terminal crawl
// no longer needs snapshot replay.
func (b *Broker) Forget(crawlID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.latest, crawlID)
}

// Dropped reports events discarded since the last rate-limited warning.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}

type rateLimiter struct {
	interval time.Duration
	last     atomic.Int64
}

func (r *rateLimiter) Allow(now time.Time) bool {
	if r == nil || r.interval <= 0 {
		return true
	}
	nano := now.UnixNano()
	last := r.last.Load()
	if nano-last < r.interval.Nanoseconds() {
		return false
	}
	return r.last.CompareAndSwap(last, nano)
}
