package models

import (
	"github.com/customeros/codewatch/internal/enum"
)

// EmailRecord is one classified message. Records are immutable once built
// and identified by (Account, ID).
type EmailRecord struct {
	ID          string        `json:"id"`
	Account     string        `json:"account"`
	Subject     string        `json:"subject"`
	Sender      string        `json:"sender"`
	Recipient   string        `json:"recipient"`
	RawDate     string        `json:"rawDate"`
	Timestamp   int64         `json:"timestamp"`
	Category    enum.Category `json:"category"`
	Payload     string        `json:"payload"`
	BodyPreview string        `json:"bodyPreview"`
}

type RecordKey struct {
	Account string
	ID      string
}

func (r EmailRecord) Key() RecordKey {
	return RecordKey{Account: r.Account, ID: r.ID}
}

// HasPayload is false when extraction came up empty. Such records are still
// reported so a human can open the message.
func (r EmailRecord) HasPayload() bool {
	return r.Payload != ""
}

type RecordStats struct {
	Total      int                   `json:"total"`
	ByCategory map[enum.Category]int `json:"byCategory"`
	ByAccount  map[string]int        `json:"byAccount"`
}
