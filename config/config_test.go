package config

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, time.Minute, cfg.ReapInterval)
	assert.Equal(t, "tc_session", cfg.SessionIDCookieName)
	assert.True(t, cfg.Cookie.HttpOnly)
	assert.True(t, cfg.Cookie.Secure)
	assert.True(t, cfg.Cookie.SameSiteStrict)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("TIERCACHE_SESSION_TTL", "1h30m")
	t.Setenv("TIERCACHE_REAP_INTERVAL", "45s")
	t.Setenv("TIERCACHE_APP_REFRESH", "5m")
	t.Setenv("TIERCACHE_COOKIE_NAME", "sid")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 45*time.Second, cfg.ReapInterval)
	assert.Equal(t, 5*time.Minute, cfg.ApplicationRefreshInterval)
	assert.Equal(t, "sid", cfg.SessionIDCookieName)
}

func TestFromEnvExtendedDurations(t *testing.T) {
	t.Setenv("TIERCACHE_SESSION_TTL", "7d")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
}

func TestFromEnvInvalidDuration(t *testing.T) {
	t.Setenv("TIERCACHE_REAP_INTERVAL", "soon")
	_, err := FromEnv()
	assert.Error(t, err)
}

func TestSessionCookie(t *testing.T) {
	cfg := Default()
	cookie := cfg.SessionCookie("abc123")
	assert.Equal(t, "tc_session", cookie.Name)
	assert.Equal(t, "abc123", cookie.Value)
	assert.Equal(t, int(cfg.SessionTTL/time.Second), cookie.MaxAge)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
}

func TestSessionCookieRelaxedFlags(t *testing.T) {
	cfg := Default()
	cfg.Cookie = CookieFlags{}
	cookie := cfg.SessionCookie("abc123")
	assert.False(t, cookie.HttpOnly)
	assert.False(t, cookie.Secure)
	assert.NotEqual(t, http.SameSiteStrictMode, cookie.SameSite)
}
