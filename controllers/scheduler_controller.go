package controllers

import (
	"net/http"
	"strconv"

	"keytrack/app"

	"github.com/gin-gonic/gin"
)

type SchedulerController struct{ *Srv }

func NewSchedulerController(s *Srv) *SchedulerController { return &SchedulerController{Srv: s} }

// RunReminders triggers the sweep on demand. Without ?force=true it still
// honors the once-per-slot guard, so a second manual run the same day is a
// reported no-op rather than a double-notify.
func (sc *SchedulerController) RunReminders(c *gin.Context) {
	force := c.Query("force") == "true"
	sum, err := sc.Sched.RunReminders(c.Request.Context(), force)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (sc *SchedulerController) PurgeNotifications(c *gin.Context) {
	n, err := sc.Sched.PurgeExpired(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"purged": n})
}

func (sc *SchedulerController) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	runs, err := sc.Repo.ListReminderRuns(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"runs": runs})
}
