package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Emit publishes evt and logs, rather than returns, delivery failures so that
// notification trouble never rolls back a domain write.
func Emit(ctx context.Context, pub Publisher, logger *zap.Logger, topic string, payload map[string]any, at time.Time) {
	if pub == nil {
		return
	}
	evt := Event{Topic: topic, Payload: payload, OccurredAt: at}
	if err := pub.Publish(ctx, evt); err != nil && logger != nil {
		logger.Warn("event publish failed",
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
}
