// Package pubsub implements a Google Cloud Pub/Sub completion publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/serplens/ranktracker/internal/rank"
)

// Publisher wraps a Pub/Sub client and publishes job completion events.
type Publisher struct {
	client *pubsub.Client
}

// New creates a Publisher for the provided client.
func New(client *pubsub.Client) *Publisher {
	return &Publisher{client: client}
}

// Publish marshals the completion event to JSON and publishes it to the topic.
func (p *Publisher) Publish(ctx context.Context, topic string, evt rank.CompletionEvent) (string, error) {
	if p.client == nil {
		return "", fmt.Errorf("pubsub client is not configured")
	}
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return "", fmt.Errorf("marshal completion event: %w", err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"job_id":      evt.JobID,
			"client_code": evt.ClientCode,
			"status":      string(evt.Status),
		},
	}
	result := p.client.Topic(topic).Publish(ctx, msg)
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish completion event: %w", err)
	}
	return id, nil
}
