package events

import (
	"context"
	"fmt"
	"time"

	"github.com/customeros/codewatch/dto"
	"github.com/customeros/codewatch/interfaces"
	"github.com/customeros/codewatch/internal/enum"
	"github.com/customeros/codewatch/internal/logger"
	"github.com/customeros/codewatch/internal/models"
	"github.com/customeros/codewatch/internal/utils"
)

// EventsService turns monitor notifications into events and hands them to
// every configured publisher. The stream hub is always present; broker
// publishers are optional.
type EventsService struct {
	Hub        *Hub
	publishers []interfaces.EventPublisher
	log        logger.Logger
}

func NewEventsService(log logger.Logger, hub *Hub, publishers ...interfaces.EventPublisher) *EventsService {
	if hub == nil {
		hub = NewHub(log, DefaultSubscriberBuffer)
	}
	return &EventsService{
		Hub:        hub,
		publishers: append([]interfaces.EventPublisher{hub}, publishers...),
		log:        log,
	}
}

func (s *EventsService) NotifyNewRecords(ctx context.Context, records []models.EmailRecord) error {
	if len(records) == 0 {
		return nil
	}
	data := dto.NewRecordsEvent{Count: len(records), Records: records}
	return s.emit(ctx, dto.NewEvent(enum.EventNewRecords, time.Now(), data))
}

func (s *EventsService) NotifySetUpdated(ctx context.Context, total int, at time.Time) error {
	data := dto.SetUpdatedEvent{Total: total, Timestamp: at.Unix()}
	return s.emit(ctx, dto.NewEvent(enum.EventSetUpdated, at, data))
}

// emit delivers to every publisher. A failing publisher does not stop the
// others; the first error is returned.
func (s *EventsService) emit(ctx context.Context, event dto.Event) error {
	custom := utils.GetContext(ctx)
	event.Metadata.AppSource = custom.AppSource
	event.Metadata.RunId = custom.RunID

	var first error
	for _, publisher := range s.publishers {
		if err := publisher.Publish(ctx, event); err != nil {
			s.log.Errorf("Failed to publish %s via %s: %v", event.Type, publisher.Name(), err)
			if first == nil {
				first = fmt.Errorf("%s: %w", publisher.Name(), err)
			}
		}
	}
	return first
}

func (s *EventsService) Close() error {
	var errs []error
	for _, publisher := range s.publishers {
		if err := publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing events service: %v", errs)
	}
	return nil
}
