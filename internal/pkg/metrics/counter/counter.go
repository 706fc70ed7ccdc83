package counter

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const webhookOutcomesKey = "billing:counters:webhooks"

// Webhook outcome fields.
const (
	OutcomeProcessed        = "processed"
	OutcomeRedelivery       = "redelivery"
	OutcomeIgnored          = "ignored"
	OutcomeInvalidSignature = "invalid_signature"
	OutcomeInvalid          = "invalid"
	OutcomeStoreError       = "store_error"
)

// WebhookCounter counts webhook outcomes in a Redis hash shared by all
// instances.
type WebhookCounter struct {
	client *redis.Client
}

func NewWebhookCounter(client *redis.Client) *WebhookCounter {
	return &WebhookCounter{client: client}
}

// Add increments the counter for outcome.
func (w *WebhookCounter) Add(ctx context.Context, outcome string) error {
	return w.client.HIncrBy(ctx, webhookOutcomesKey, outcome, 1).Err()
}

// Snapshot returns all counters.
func (w *WebhookCounter) Snapshot(ctx context.Context) (map[string]int64, error) {
	raw, err := w.client.HGetAll(ctx, webhookOutcomesKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}
