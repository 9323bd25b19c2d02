package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"marketchat/internal/app/commands"
	"marketchat/internal/app/dto"
	handlersdevices "marketchat/internal/app/handlers/devices"
	"marketchat/internal/app/queries"
)

type DeviceHTTP interface {
	List(c *gin.Context)
	Register(c *gin.Context)
	Unregister(c *gin.Context)
}

// DeviceHandler manages the caller's push registration tokens.
type DeviceHandler struct {
	Bus     commands.Bus
	Queries queries.Bus
	Logger  *slog.Logger
}

func (h DeviceHandler) List(c *gin.Context) {
	principal, ok := requireUser(c)
	if !ok {
		return
	}
	tokens, err := queries.Ask[handlersdevices.TokensQuery, []string](c.Request.Context(), h.Queries, handlersdevices.TokensQuery{UserID: principal.ID})
	if err != nil {
		respondError(c, h.Logger, err, "list devices", "user_id", principal.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapDeviceTokens(tokens))
}

func (h DeviceHandler) Register(c *gin.Context) {
	principal, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		Token string `json:"token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	_, err := commands.Dispatch[handlersdevices.RegisterDeviceCommand, struct{}](c.Request.Context(), h.Bus, handlersdevices.RegisterDeviceCommand{
		UserID: principal.ID,
		Token:  req.Token,
	})
	if err != nil {
		respondError(c, h.Logger, err, "register device", "user_id", principal.ID)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h DeviceHandler) Unregister(c *gin.Context) {
	principal, ok := requireUser(c)
	if !ok {
		return
	}
	_, err := commands.Dispatch[handlersdevices.UnregisterDeviceCommand, struct{}](c.Request.Context(), h.Bus, handlersdevices.UnregisterDeviceCommand{
		UserID: principal.ID,
		Token:  c.Param("token"),
	})
	if err != nil {
		respondError(c, h.Logger, err, "unregister device", "user_id", principal.ID)
		return
	}
	c.Status(http.StatusNoContent)
}

var _ DeviceHTTP = (*DeviceHandler)(nil)
