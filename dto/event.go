package dto

import (
	"time"

	"github.com/customeros/codewatch/internal/enum"
	"github.com/customeros/codewatch/internal/models"
	"github.com/customeros/codewatch/internal/utils"
)

type Event struct {
	Id        string         `json:"id"`
	Type      enum.EventType `json:"type"`
	Timestamp string         `json:"timestamp"`
	Metadata  EventMetadata  `json:"metadata"`
	Data      interface{}    `json:"data"`
}

type EventMetadata struct {
	UberTraceId string `json:"uber-trace-id,omitempty"`
	AppSource   string `json:"appSource,omitempty"`
	RunId       string `json:"runId,omitempty"`
}

type ConnectedEvent struct {
	Active bool `json:"active"`
	Total  int  `json:"total"`
}

type NewRecordsEvent struct {
	Count   int                  `json:"count"`
	Records []models.EmailRecord `json:"records"`
}

type SetUpdatedEvent struct {
	Total     int   `json:"total"`
	Timestamp int64 `json:"timestamp"`
}

func NewEvent(eventType enum.EventType, at time.Time, data interface{}) Event {
	return Event{
		Id:        utils.GenerateEventID(),
		Type:      eventType,
		Timestamp: at.UTC().Format(time.RFC3339),
		Data:      data,
	}
}
