// Package memory contains an in-memory publisher for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/opendatahub/dataset-crawler/internal/dataset"
)

// Publisher stores published outcomes for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
}

// PublishedMessage captures one publish call.
type PublishedMessage struct {
	Outcome dataset.Outcome
	Record  dataset.Record
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the outcome.
func (p *Publisher) Publish(_ context.Context, rec dataset.Record, outcome dataset.Outcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, PublishedMessage{Outcome: outcome, Record: rec})
	return nil
}

// Messages returns the recorded publishes.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
