package controllers

import (
	"net/http"
	"strings"

	"keytrack/app"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type AuthController struct{ *Srv }

func NewAuthController(s *Srv) *AuthController { return &AuthController{Srv: s} }

// identityClaims is what the identity provider signs. The role it carries is
// only a hint for first login; the stored user record stays ground truth.
type identityClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Login exchanges an identity token for an app session cookie.
func (ac *AuthController) Login(c *gin.Context) {
	var in struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "missing identity token"})
		return
	}

	var claims identityClaims
	tok, err := jwt.ParseWithClaims(in.Token, &claims,
		func(t *jwt.Token) (interface{}, error) { return []byte(ac.Cfg.IdentitySecret), nil },
		jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid || claims.Email == "" {
		c.JSON(http.StatusUnauthorized, app.H{"error": "invalid identity token"})
		return
	}

	name := claims.Name
	if name == "" {
		name = claims.Email
	}
	u, err := ac.Repo.FindOrCreateUser(c.Request.Context(), uuid.NewString(), claims.Email, name, claims.Role)
	if err != nil {
		fail(c, err)
		return
	}
	if !u.IsActive {
		c.JSON(http.StatusForbidden, app.H{"error": "account disabled"})
		return
	}

	if err := ac.issueSession(c, u); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"user": u})
}

func (ac *AuthController) Logout(c *gin.Context) {
	if ck, err := c.Request.Cookie(app.AppSessionCookie); err == nil && ck.Value != "" {
		_ = ac.AppSess.Delete(c.Request.Context(), ck.Value)
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   strings.HasPrefix(ac.Cfg.WebOrigin, "https://"),
	})
	c.JSON(http.StatusOK, app.H{"ok": true})
}

func (ac *AuthController) Whoami(c *gin.Context) {
	u, err := ac.Repo.FindUserByID(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		fail(c, err)
		return
	}
	unread, _ := ac.Repo.UnreadCount(c.Request.Context(), u.ID)
	c.JSON(http.StatusOK, app.H{"user": u, "unreadNotifications": unread})
}
