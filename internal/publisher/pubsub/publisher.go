// Package pubsub publishes dataset outcomes to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/opendatahub/dataset-crawler/internal/dataset"
)

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	topic *pubsub.Topic
}

// New creates a Publisher for the provided topic.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

type message struct {
	Outcome dataset.Outcome `json:"outcome"`
	Record  dataset.Record  `json:"record"`
}

// Publish sends one record with its outcome. The outcome and identity hash
// ride along as attributes so subscribers can filter without unmarshalling.
func (p *Publisher) Publish(ctx context.Context, rec dataset.Record, outcome dataset.Outcome) error {
	if p.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(message{Outcome: outcome, Record: rec})
	if err != nil {
		return fmt.Errorf("marshal outcome message: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"outcome": string(outcome),
			"hash":    rec.Hash,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish outcome: %w", err)
	}
	return nil
}
