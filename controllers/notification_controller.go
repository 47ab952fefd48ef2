package controllers

import (
	"net/http"
	"strconv"

	"keytrack/app"
	"keytrack/db"

	"github.com/gin-gonic/gin"
)

type NotificationController struct{ *Srv }

func NewNotificationController(s *Srv) *NotificationController {
	return &NotificationController{Srv: s}
}

func (nc *NotificationController) List(c *gin.Context) {
	q := db.ListNotificationsQuery{
		UnreadOnly: c.Query("unread") == "true",
		Type:       c.Query("type"),
	}
	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.Size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := nc.Repo.ListNotificationsForUser(c.Request.Context(), c.GetString("userID"), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (nc *NotificationController) UnreadCount(c *gin.Context) {
	n, err := nc.Repo.UnreadCount(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"unread": n})
}

func (nc *NotificationController) MarkRead(c *gin.Context) {
	if err := nc.Repo.MarkNotificationRead(c.Request.Context(), c.Param("id"), c.GetString("userID")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

func (nc *NotificationController) MarkAllRead(c *gin.Context) {
	n, err := nc.Repo.MarkAllNotificationsRead(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"marked": n})
}

func (nc *NotificationController) Delete(c *gin.Context) {
	if err := nc.Repo.DeleteNotification(c.Request.Context(), c.Param("id"), c.GetString("userID")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
