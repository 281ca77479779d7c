package clinic

import (
	"context"

	"github.com/mlnyx/algo-dental/pkg/common/logger"
)

// Publisher emits clinic domain events. kafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data map[string]interface{}) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, map[string]interface{}) error { return nil }

// publish is best effort: the state change is already committed.
func publish(ctx context.Context, p Publisher, eventType string, data map[string]interface{}) {
	if err := p.Publish(ctx, eventType, data); err != nil {
		logger.Log.WithError(err).WithField("event_type", eventType).Warn("clinic event not published")
	}
}
