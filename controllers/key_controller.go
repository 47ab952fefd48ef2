// controllers/key_controller.go
package controllers

import (
	"log"
	"net/http"
	"strconv"

	"keytrack/app"
	"keytrack/db"
	"keytrack/models"

	"github.com/gin-gonic/gin"
)

type KeyController struct{ *Srv }

func NewKeyController(s *Srv) *KeyController { return &KeyController{Srv: s} }

// ListKeys with search/status/category filters.
func (kc *KeyController) ListKeys(c *gin.Context) {
	q := db.ListKeysQuery{
		Q:              c.Query("q"),
		Status:         c.Query("status"), // "", "available", "unavailable"
		Category:       c.Query("category"),
		Department:     c.Query("department"),
		FrequentlyUsed: c.Query("frequentlyUsed") == "true",
	}
	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.Size, _ = strconv.Atoi(c.DefaultQuery("size", "50"))

	res, err := kc.Repo.ListKeys(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (kc *KeyController) GetKey(c *gin.Context) {
	k, err := kc.Repo.FindKeyByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, k)
}

// MyKeys: what the caller currently holds.
func (kc *KeyController) MyKeys(c *gin.Context) {
	keys, err := kc.Repo.ListKeysByHolder(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"keys": keys})
}

// Take flips an available key to the caller.
func (kc *KeyController) Take(c *gin.Context) {
	k, err := kc.Keys.TakeKey(c.Request.Context(), c.Param("number"), actor(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, k)
}

// Return releases a key; security/admin may return on anyone's behalf.
func (kc *KeyController) Return(c *gin.Context) {
	k, err := kc.Keys.ReturnKey(c.Request.Context(), c.Param("number"), actor(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, k)
}

// Admin inventory

func (kc *KeyController) CreateKey(c *gin.Context) {
	var in struct {
		KeyNumber      string `json:"keyNumber" binding:"required"`
		Name           string `json:"name" binding:"required"`
		Location       string `json:"location"`
		Category       string `json:"category"`
		Department     string `json:"department"`
		FrequentlyUsed bool   `json:"frequentlyUsed"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	k := &models.Key{
		KeyNumber:      in.KeyNumber,
		Name:           in.Name,
		Location:       in.Location,
		Category:       in.Category,
		Department:     in.Department,
		FrequentlyUsed: in.FrequentlyUsed,
	}
	if err := kc.Repo.CreateKey(c.Request.Context(), k); err != nil {
		fail(c, err)
		return
	}
	kc.auditInventory(c, models.AuditKeyCreated, k)
	c.JSON(http.StatusCreated, k)
}

func (kc *KeyController) UpdateKey(c *gin.Context) {
	var in struct {
		Name           *string `json:"name"`
		Location       *string `json:"location"`
		Category       *string `json:"category"`
		Department     *string `json:"department"`
		FrequentlyUsed *bool   `json:"frequentlyUsed"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	k, err := kc.Repo.UpdateKey(c.Request.Context(), c.Param("number"), db.UpdateKeyInput{
		Name:           in.Name,
		Location:       in.Location,
		Category:       in.Category,
		Department:     in.Department,
		FrequentlyUsed: in.FrequentlyUsed,
	})
	if err != nil {
		fail(c, err)
		return
	}
	kc.auditInventory(c, models.AuditKeyUpdated, k)
	c.JSON(http.StatusOK, k)
}

// DeleteKey soft-deletes; refused while the key is out.
func (kc *KeyController) DeleteKey(c *gin.Context) {
	number := c.Param("number")
	k, err := kc.Repo.FindKeyByNumber(c.Request.Context(), number)
	if err != nil {
		fail(c, err)
		return
	}
	if err := kc.Repo.SoftDeleteKey(c.Request.Context(), number); err != nil {
		fail(c, err)
		return
	}
	kc.auditInventory(c, models.AuditKeyDeleted, k)
	c.JSON(http.StatusOK, app.H{"ok": true})
}

func (kc *KeyController) auditInventory(c *gin.Context, action string, k *models.Key) {
	a := actor(c)
	entry := &models.AuditLogEntry{
		Action:      action,
		ActorID:     a.ID,
		ActorName:   a.Name,
		KeyNumber:   k.KeyNumber,
		KeyName:     k.Name,
		KeyLocation: k.Location,
		SourceIP:    a.IP,
	}
	// observational, never fails the admin call
	if err := kc.Repo.CreateAuditEntry(c.Request.Context(), entry); err != nil {
		log.Printf("[AUDIT] write failed (%s %s): %v", action, k.KeyNumber, err)
	}
}
