// Package notification fans out transaction and dispute state changes to
// subscribers. Delivery is best-effort, at-least-once: the ledger is the
// source of truth and consumers reconcile by re-reading state.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateChangeEvent carries the post-transition state of a transaction.
// Dispute fields are set only for dispute-driven changes.
type StateChangeEvent struct {
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	EscrowStatus  string    `json:"escrow_status"`
	DisputeID     string    `json:"dispute_id,omitempty"`
	DisputeStatus string    `json:"dispute_status,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher emits state-change events. Implementations must never let a
// publish failure reach the caller's commit path.
type Publisher interface {
	Publish(ctx context.Context, event StateChangeEvent)
}

// Subscriber delivers state-change events for one transaction.
type Subscriber interface {
	Subscribe(ctx context.Context, transactionID string) (<-chan StateChangeEvent, func())
}

func channelFor(transactionID string) string {
	return fmt.Sprintf("txevents:%s", transactionID)
}

// Service publishes and subscribes through Redis pub/sub.
type Service struct {
	client *redis.Client
}

func NewService(client *redis.Client) *Service {
	if client == nil {
		panic("redis client is required")
	}
	return &Service{client: client}
}

// Publish sends the event to the transaction's channel. Failures are
// logged and dropped; a subscriber that missed an event re-reads state.
func (s *Service) Publish(ctx context.Context, event StateChangeEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("failed to marshal event for tx %s: %v", event.TransactionID, err)
		return
	}
	if err := s.client.Publish(ctx, channelFor(event.TransactionID), data).Err(); err != nil {
		log.Printf("failed to publish event for tx %s: %v", event.TransactionID, err)
	}
}

// Subscribe returns a channel of events for the transaction and a cancel
// function. The channel closes after cancel or when ctx is done.
func (s *Service) Subscribe(ctx context.Context, transactionID string) (<-chan StateChangeEvent, func()) {
	pubsub := s.client.Subscribe(ctx, channelFor(transactionID))
	out := make(chan StateChangeEvent, 16)

	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			var event StateChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Printf("failed to decode event on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		if err := pubsub.Close(); err != nil {
			log.Printf("failed to close subscription for tx %s: %v", transactionID, err)
		}
	}
	return out, cancel
}
