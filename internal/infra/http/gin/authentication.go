package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"marketchat/internal/infra/identity"
)

const principalContextKey = "marketchat.principal"

// accessTokenParam carries the token on websocket upgrades, where browsers cannot set
// an Authorization header.
const accessTokenParam = "access_token"

type principal struct {
	ID    string
	Name  string
	Token string
}

type AuthMiddleware struct {
	Verifier identity.Verifier
	Logger   *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" {
		token = strings.TrimSpace(c.Query(accessTokenParam))
	}
	if token == "" || m.Verifier == nil {
		c.Next()
		return
	}
	resolved, err := m.Verifier.Verify(c.Request.Context(), token)
	if err != nil {
		if !errors.Is(err, identity.ErrInvalidToken) && m.Logger != nil {
			m.Logger.Warn("token verification failed", "error", err)
		} else if m.Logger != nil {
			m.Logger.Debug("token rejected", "error", err)
		}
		c.Next()
		return
	}
	setPrincipal(c, principal{ID: resolved.UserID, Name: resolved.Name, Token: token})
	c.Next()
}

func setPrincipal(c *gin.Context, p principal) {
	c.Set(principalContextKey, p)
	c.Set("uid", p.ID)
}

func currentPrincipal(c *gin.Context) (principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return principal{}, false
	}
	p, ok := val.(principal)
	return p, ok
}

func requireUser(c *gin.Context) (principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok || p.ID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return principal{}, false
	}
	return p, true
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
