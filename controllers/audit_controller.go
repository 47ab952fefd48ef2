package controllers

import (
	"net/http"
	"strconv"
	"time"

	"keytrack/db"

	"github.com/gin-gonic/gin"
)

type AuditController struct{ *Srv }

func NewAuditController(s *Srv) *AuditController { return &AuditController{Srv: s} }

// List the audit trail. ?collective=true narrows to returns performed on
// someone else's behalf.
func (ac *AuditController) List(c *gin.Context) {
	q := db.AuditQuery{
		Action:         c.Query("action"),
		ActorID:        c.Query("actorId"),
		KeyNumber:      c.Query("keyNumber"),
		CollectiveOnly: c.Query("collective") == "true",
	}
	if v := c.Query("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			q.From = &t
		}
	}
	if v := c.Query("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			q.To = &t
		}
	}
	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.Size, _ = strconv.Atoi(c.DefaultQuery("size", "50"))

	res, err := ac.Repo.ListAudit(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
