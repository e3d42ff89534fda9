package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/flybeeper/taskengine/pkg/utils"
)

const operatorKey = "operator"

// Middleware аутентификация команд HTTP API
type Middleware struct {
	validator TokenValidator
	logger    *utils.Logger
}

// NewMiddleware создает middleware
func NewMiddleware(validator TokenValidator, logger *utils.Logger) *Middleware {
	return &Middleware{validator: validator, logger: logger.WithField("component", "auth")}
}

// RequireCommand пропускает только операторов с правом команд
func (m *Middleware) RequireCommand() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			abort(c, http.StatusUnauthorized, "missing_token", "Missing authentication token")
			return
		}

		op, err := m.validator.Validate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, ErrInvalidToken) {
				m.logger.WithField("client_ip", c.ClientIP()).Warn("Rejected token")
				abort(c, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
				return
			}
			m.logger.WithField("error", err).Error("Token validation failed")
			abort(c, http.StatusServiceUnavailable, "auth_unavailable", "Authentication service unavailable")
			return
		}

		if !op.CanCommand() {
			abort(c, http.StatusForbidden, "insufficient_permissions", "Operator may not send commands")
			return
		}

		c.Set(operatorKey, op)
		m.logger.WithFields(map[string]interface{}{
			"operator_id": op.ID,
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
		}).Info("Authorized command")
		c.Next()
	}
}

// GetOperator оператор текущего запроса
func GetOperator(c *gin.Context) (*Operator, bool) {
	v, ok := c.Get(operatorKey)
	if !ok {
		return nil, false
	}
	op, ok := v.(*Operator)
	return op, ok
}

// заголовок Authorization, затем параметр token
func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Query("token")
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "message": message})
}
