package session

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const DefaultCookieName = "_sid"

// Manager reads session tokens from requests.
type Manager struct {
	cookieName string
}

func NewManager() *Manager {
	return &Manager{cookieName: DefaultCookieName}
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

// ReadToken returns the session cookie or, failing that, a bearer token.
func (m *Manager) ReadToken(c *gin.Context) (string, bool) {
	if token, err := c.Cookie(m.cookieName); err == nil && strings.TrimSpace(token) != "" {
		return strings.TrimSpace(token), true
	}

	header := strings.TrimSpace(c.GetHeader("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
