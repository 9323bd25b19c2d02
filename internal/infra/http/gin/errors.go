package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	gin "github.com/gin-gonic/gin"

	"marketchat/internal/app/queries"
	domainchat "marketchat/internal/domain/chat"
	domaindevices "marketchat/internal/domain/devices"
)

// respondError maps domain errors onto status codes. Validation messages are safe to
// echo back; anything unexpected is logged and hidden.
func respondError(c *gin.Context, logger *slog.Logger, err error, action string, attrs ...any) {
	switch {
	case errors.Is(err, domainchat.ErrValidation), errors.Is(err, domaindevices.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domainchat.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, queries.ErrNoViewer):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, domainchat.ErrPermission):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		if logger != nil {
			logger.Error(action+" failed", append([]any{"error", err}, attrs...)...)
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parsePositiveIntStrict(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return def
	}
	return value
}

// parseCursor reads a seq cursor. Empty means the start of the log.
func parseCursor(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}
