package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/customeros/codewatch/dto"
	"github.com/customeros/codewatch/interfaces"
	"github.com/customeros/codewatch/internal/enum"
)

const streamKeepAlive = 25 * time.Second

// EventStream is the subscription side of the in-process event hub.
type EventStream interface {
	Subscribe() (string, <-chan dto.Event)
	Unsubscribe(id string)
}

// Stream serves server-sent events. Each subscriber first receives a
// connected event, then every new_records and set_updated event.
func Stream(stream EventStream, monitor interfaces.MonitorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, events := stream.Subscribe()
		defer stream.Unsubscribe(id)

		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)

		greeting := dto.NewEvent(enum.EventConnected, time.Now(), dto.ConnectedEvent{
			Active: monitor.Active(),
			Total:  monitor.Stats().Total,
		})
		c.SSEvent(greeting.Type.String(), greeting)
		c.Writer.Flush()

		keepAlive := time.NewTicker(streamKeepAlive)
		defer keepAlive.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case event, ok := <-events:
				if !ok {
					return false
				}
				c.SSEvent(event.Type.String(), event)
				return true
			case <-keepAlive.C:
				_, err := w.Write([]byte(": keep-alive\n\n"))
				return err == nil
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}
