// Package events publishes dataset lifecycle transitions to Kafka so other
// systems can follow processing without polling dataset directories.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"

	"github.com/fieldlab/odm-watcher/internal/config"
	"github.com/fieldlab/odm-watcher/internal/model"
)

// Publisher sends lifecycle events to a Kafka topic.
type Publisher struct {
	Client   *wbfkafka.Producer
	strategy retry.Strategy
	cfg      *config.Kafka
}

// New creates a Publisher for the configured brokers and topic.
// - cfg: Kafka configuration struct
// - s: retry strategy for sends
func New(cfg *config.Kafka, s retry.Strategy) *Publisher {
	producer := wbfkafka.NewProducer(cfg.Brokers, cfg.Topic)

	return &Publisher{
		Client:   producer,
		cfg:      cfg,
		strategy: s,
	}
}

// Publish serializes the event to JSON and sends it, keyed by the task
// uuid so one job's transitions stay ordered within a partition.
func (p *Publisher) Publish(ctx context.Context, e model.LifecycleEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %v", err)
	}

	key := []byte(e.UUID)

	if err = p.Client.SendWithRetry(ctx, p.strategy, key, data); err != nil {
		return fmt.Errorf("failed to send event: %v", err)
	}

	return nil
}
