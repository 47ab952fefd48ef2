package controllers

import (
	"io"
	"time"

	"keytrack/models"
	"keytrack/realtime"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type EventsController struct{ *Srv }

func NewEventsController(s *Srv) *EventsController { return &EventsController{Srv: s} }

// Stream is the SSE feed: every client joins the global room and its own
// private room; security users additionally join the security room.
func (ec *EventsController) Stream(c *gin.Context) {
	uid := c.GetString("userID")
	role := c.GetString("userRole")

	rooms := []string{realtime.GlobalRoom, realtime.UserRoom(uid)}
	if role == models.RoleSecurity {
		rooms = append(rooms, realtime.RoleRoom(models.RoleSecurity))
	}

	clientID := uuid.NewString()
	ch := ec.Hub.Subscribe(clientID, rooms...)
	defer ec.Hub.Unsubscribe(clientID)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("key_event", ev)
			return true
		case <-keepalive.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
