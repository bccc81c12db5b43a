package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/google/uuid"

	"github.com/seolens/siteaudit/internal/seo"
)

// Notification kinds published to the topic.
const (
	kindCriticalIssue  = "critical_issue"
	kindCrawlCompleted = "crawl_completed"
)

type notificationPayload struct {
	Kind        string `json:"kind"`
	CrawlID     string `json:"crawl_id"`
	PageURL     string `json:"page_url,omitempty"`
	IssueType   string `json:"issue_type,omitempty"`
	Description string `json:"description,omitempty"`
	TotalPages  int    `json:"total_pages,omitempty"`
	IssuesFound int    `json:"issues_found,omitempty"`
	ErrorCount  int    `json:"error_count,omitempty"`
}

// PubSubNotifier implements seo.Notifier on a Google Cloud Pub/Sub topic.
type PubSubNotifier struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubNotifier connects a client and binds the topic.
func NewPubSubNotifier(ctx context.Context, projectID, topicName string) (*PubSubNotifier, error) {
	if projectID == "" || topicName == "" {
		return nil, fmt.Errorf("pubsub project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &PubSubNotifier{
		client: client,
		topic:  client.Topic(topicName),
	}, nil
}

// Close stops the topic's publish goroutines and the client.
func (n *PubSubNotifier) Close() error {
	n.topic.Stop()
	if err := n.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

// CriticalIssueFound implements seo.Notifier.
func (n *PubSubNotifier) CriticalIssueFound(ctx context.Context, crawlID uuid.UUID, pageURL, issueType, description string) error {
	return n.publish(ctx, notificationPayload{
		Kind:        kindCriticalIssue,
		CrawlID:     crawlID.String(),
		PageURL:     pageURL,
		IssueType:   issueType,
		Description: description,
	})
}

// CrawlCompleted implements seo.Notifier.
func (n *PubSubNotifier) CrawlCompleted(ctx context.Context, crawlID uuid.UUID, totals seo.CrawlTotals) error {
	return n.publish(ctx, notificationPayload{
		Kind:        kindCrawlCompleted,
		CrawlID:     crawlID.String(),
		TotalPages:  totals.TotalPages,
		IssuesFound: totals.IssuesFound,
		ErrorCount:  totals.ErrorCount,
	})
}

func (n *PubSubNotifier) publish(ctx context.Context, payload notificationPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	result := n.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"kind": payload.Kind},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
