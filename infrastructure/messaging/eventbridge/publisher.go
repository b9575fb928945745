// Package eventbridge publishes staging events to AWS EventBridge so
// downstream consumers (audit, cache invalidation) can react to
// catalog edits.
package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"catalog-staging/domain/staging"
)

// Source identifies events published by this service
const Source = "catalog-staging"

// EventBridgeAPI is the subset of the EventBridge client the
// publisher uses
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// Publisher sends staging events to an EventBridge bus
type Publisher struct {
	client       EventBridgeAPI
	eventBusName string
	logger       *zap.Logger
}

// NewPublisher creates an EventBridge publisher
func NewPublisher(client EventBridgeAPI, eventBusName string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client:       client,
		eventBusName: eventBusName,
		logger:       logger,
	}
}

// Publish sends events to the bus, batching to the PutEvents limit
func (p *Publisher) Publish(ctx context.Context, events []staging.Event) error {
	if len(events) == 0 {
		return nil
	}

	// EventBridge limits to 10 entries per PutEvents call
	const batchSize = 10

	for i := 0; i < len(events); i += batchSize {
		end := i + batchSize
		if end > len(events) {
			end = len(events)
		}
		if err := p.publishBatch(ctx, events[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publishBatch(ctx context.Context, events []staging.Event) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(events))

	for _, event := range events {
		detail, err := json.Marshal(event.Data)
		if err != nil {
			p.logger.Error("failed to marshal staging event",
				zap.Error(err),
				zap.String("eventType", string(event.Type)))
			continue
		}

		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.eventBusName),
			Source:       aws.String(Source),
			DetailType:   aws.String(string(event.Type)),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(time.Now()),
		})
	}

	if len(entries) == 0 {
		return nil
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return fmt.Errorf("failed to publish events to EventBridge: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for _, entry := range result.Entries {
			if entry.ErrorCode != nil {
				p.logger.Error("event publish entry failed",
					zap.String("errorCode", aws.ToString(entry.ErrorCode)),
					zap.String("errorMessage", aws.ToString(entry.ErrorMessage)))
			}
		}
		return fmt.Errorf("%d events failed to publish", result.FailedEntryCount)
	}

	return nil
}

// Forwarder returns a store listener that relays staging events to the
// bus. Publish failures are logged, never surfaced to the mutation
// path that triggered them.
func (p *Publisher) Forwarder() staging.Listener {
	return func(event staging.Event) {
		if err := p.Publish(context.Background(), []staging.Event{event}); err != nil {
			p.logger.Warn("failed to forward staging event",
				zap.String("eventType", string(event.Type)),
				zap.Error(err))
		}
	}
}
