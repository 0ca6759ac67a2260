package enum

type EventType string

const (
	EventConnected  EventType = "connected"
	EventNewRecords EventType = "new_records"
	EventSetUpdated EventType = "set_updated"
)

func (t EventType) String() string {
	return string(t)
}
