package interfaces

import (
	"context"
	"time"

	"github.com/customeros/codewatch/dto"
	"github.com/customeros/codewatch/internal/models"
)

// Notifier delivers monitor events to observers. Delivery is at-least-once;
// observers merge by record key.
type Notifier interface {
	NotifyNewRecords(ctx context.Context, records []models.EmailRecord) error
	NotifySetUpdated(ctx context.Context, total int, at time.Time) error
}

// EventPublisher is an outbound sink for serialized events.
type EventPublisher interface {
	Name() string
	Publish(ctx context.Context, event dto.Event) error
	Close() error
}
