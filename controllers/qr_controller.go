package controllers

import (
	"net/http"

	"keytrack/app"
	"keytrack/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type QRController struct{ *Srv }

func NewQRController(s *Srv) *QRController { return &QRController{Srv: s} }

// Scan drives a take/return from a scanned payload. Single key and batch
// use the same endpoint; the payload decides.
func (qc *QRController) Scan(c *gin.Context) {
	var in struct {
		Payload string `json:"payload" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "missing QR payload"})
		return
	}

	out, err := qc.Keys.QRScan(c.Request.Context(), in.Payload, actor(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Issue mints a signed payload for display as a QR code.
func (qc *QRController) Issue(c *gin.Context) {
	var in struct {
		Intent     string   `json:"intent" binding:"required"`
		KeyNumbers []string `json:"keyNumbers" binding:"required"`
		SubjectID  string   `json:"subjectId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	if in.Intent != services.QRIntentRequest && in.Intent != services.QRIntentReturn {
		c.JSON(http.StatusBadRequest, app.H{"error": "intent must be request or return"})
		return
	}

	tok, err := qc.Keys.IssueQR(services.QRPayload{
		Intent:     in.Intent,
		KeyNumbers: in.KeyNumbers,
		SubjectID:  in.SubjectID,
		Nonce:      uuid.NewString(),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"payload": tok})
}
