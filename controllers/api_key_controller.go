package controllers

import (
	"net/http"
	"time"

	"keytrack/app"
	"keytrack/db"

	"github.com/gin-gonic/gin"
)

type APIKeyController struct{ *Srv }

func NewAPIKeyController(s *Srv) *APIKeyController { return &APIKeyController{Srv: s} }

// Create returns the raw key exactly once.
func (ak *APIKeyController) Create(c *gin.Context) {
	var in struct {
		Label      string     `json:"label" binding:"required"`
		Department string     `json:"department"`
		ExpiresAt  *time.Time `json:"expiresAt"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	raw, k, err := ak.Repo.CreateAPIKey(c.Request.Context(), in.Label, in.Department, in.ExpiresAt)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, app.H{"apiKey": k, "rawKey": raw})
}

func (ak *APIKeyController) List(c *gin.Context) {
	keys, err := ak.Repo.ListAPIKeys(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"apiKeys": keys})
}

func (ak *APIKeyController) Revoke(c *gin.Context) {
	if err := ak.Repo.RevokeAPIKey(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// IntegrationKeys is the read-only surface behind X-API-Key, scoped to the
// credential's department.
func (ak *APIKeyController) IntegrationKeys(c *gin.Context) {
	q := db.ListKeysQuery{
		Status:     c.Query("status"),
		Department: c.GetString("apiKeyDepartment"),
	}
	res, err := ak.Repo.ListKeys(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
