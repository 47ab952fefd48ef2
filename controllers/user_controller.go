package controllers

import (
	"net/http"
	"strconv"

	"keytrack/app"
	"keytrack/db"
	"keytrack/models"

	"github.com/gin-gonic/gin"
)

type UserController struct{ *Srv }

func NewUserController(s *Srv) *UserController { return &UserController{Srv: s} }

func (uc *UserController) ListUsers(c *gin.Context) {
	q := db.ListUsersQuery{
		Q:    c.Query("q"),
		Role: c.Query("role"),
	}
	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.Size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))

	res, err := uc.Repo.ListUsers(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (uc *UserController) GetUser(c *gin.Context) {
	u, err := uc.Repo.FindUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	keys, _ := uc.Repo.ListKeysByHolder(c.Request.Context(), u.ID)
	c.JSON(http.StatusOK, app.H{"user": u, "heldKeys": keys})
}

func (uc *UserController) UpdateUser(c *gin.Context) {
	var in struct {
		DisplayName *string `json:"displayName"`
		Role        *string `json:"role"`
		Department  *string `json:"department"`
		IsActive    *bool   `json:"isActive"`
		Verified    *bool   `json:"verified"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
		return
	}
	if in.Role != nil {
		switch *in.Role {
		case models.RoleFaculty, models.RoleSecurity, models.RoleAdmin:
		default:
			c.JSON(http.StatusBadRequest, app.H{"error": "unknown role"})
			return
		}
	}
	u, err := uc.Repo.UpdateUser(c.Request.Context(), c.Param("id"), db.UpdateUserInput{
		DisplayName: in.DisplayName,
		Role:        in.Role,
		Department:  in.Department,
		IsActive:    in.IsActive,
		Verified:    in.Verified,
	})
	if err != nil {
		fail(c, err)
		return
	}
	// deactivation kills live sessions immediately
	if in.IsActive != nil && !*in.IsActive {
		_ = uc.AppSess.RevokeAllForUser(c.Request.Context(), u.ID)
	}
	c.JSON(http.StatusOK, u)
}

// DeleteUser refuses while the user still holds keys.
func (uc *UserController) DeleteUser(c *gin.Context) {
	id := c.Param("id")
	if err := uc.Repo.DeleteUserByID(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	_ = uc.AppSess.RevokeAllForUser(c.Request.Context(), id)
	c.JSON(http.StatusOK, app.H{"ok": true})
}
