package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBrokerFanout(t *testing.T) {
	broker := NewBroker(8, zap.NewNop())
	crawlID := uuid.New()

	first := broker.Subscribe(crawlID)
	second := broker.Subscribe(crawlID)
	other := broker.Subscribe(uuid.New())

	broker.Publish(Event{Type: TypeCrawlProgress, CrawlID: crawlID, PagesProcessed: 1})

	for _, ch := range []<-chan Event{first, second} {
		select {
		case evt := <-ch:
			assert.Equal(t, TypeCrawlProgress, evt.Type)
			assert.Equal(t, 1, evt.PagesProcessed)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}

	select {
	case <-other:
		t.Fatal("unrelated crawl subscriber received event")
	default:
	}
}

func TestBrokerDropsWhenSubscriberIsFull(t *testing.T) {
	broker := NewBroker(1, zap.NewNop())
	crawlID := uuid.New()
	ch := broker.Subscribe(crawlID)

	// Publishing never blocks, even with nobody reading.
	for i := range 5 {
		broker.Publish(Event{Type: TypeCrawlProgress, CrawlID: crawlID, PagesProcessed: i})
	}

	evt := <-ch
	assert.Equal(t, 0, evt.PagesProcessed, "first event fills the buffer; the rest drop")
	// Four events dropped; the first drop is consumed by the rate-limited warning.
	assert.Equal(t, int64(3), broker.Dropped())
}

func TestBrokerReplaysSnapshotToLateSubscriber(t *testing.T) {
	broker := NewBroker(8, zap.NewNop())
	crawlID := uuid.New()

	broker.Publish(Event{Type: TypeCrawlProgress, CrawlID: crawlID, PagesProcessed: 7, IssuesFound: 3})

	ch := broker.Subscribe(crawlID)
	select {
	case evt := <-ch:
		assert.Equal(t, TypeSnapshot, evt.Type, "late subscribers get the retained state as a snapshot")
		assert.Equal(t, 7, evt.PagesProcessed)
		assert.Equal(t, 3, evt.IssuesFound)
	case <-time.After(time.Second):
		t.Fatal("snapshot was not replayed")
	}
}

func TestBrokerForgetStopsSnapshotReplay(t *testing.T) {
	broker := NewBroker(8, zap.NewNop())
	crawlID := uuid.New()

	broker.Publish(Event{Type: TypeCrawlCompleted, CrawlID: crawlID})
	broker.Forget(crawlID)

	ch := broker.Subscribe(crawlID)
	select {
	case <-ch:
		t.Fatal("forgotten crawl should not replay a snapshot")
	default:
	}
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	broker := NewBroker(8, zap.NewNop())
	crawlID := uuid.New()

	ch := broker.Subscribe(crawlID)
	broker.Unsubscribe(crawlID, ch)

	_, open := <-ch
	require.False(t, open)

	// Publishing after unsubscribe must not panic.
	broker.Publish(Event{Type: TypeCrawlProgress, CrawlID: crawlID})
}

func TestBrokerPublishRacesUnsubscribe(t *testing.T) {
	broker := NewBroker(1, zap.NewNop())
	crawlID := uuid.New()

	// A subscriber detaching while the crawl loop publishes must never
	// trip a send on a closed channel.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 5000 {
			broker.Publish(Event{Type: TypeCrawlProgress, CrawlID: crawlID, PagesProcessed: i})
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}
		ch := broker.Subscribe(crawlID)
		broker.Unsubscribe(crawlID, ch)
	}
}
