// Package config holds the recognized tiercache options and their
// environment-variable parsing, plus the session-cookie boundary helper.
// Transport concerns stop here: the core packages never read headers or
// cookies themselves, they only accept and return identifier strings.
package config

import (
	"net/http"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	str2duration "github.com/xhit/go-str2duration/v2"
)

const (
	// DefaultSessionTTL is the sliding session expiration window.
	DefaultSessionTTL = 30 * time.Minute
	// DefaultReapInterval is the session sweep cadence.
	DefaultReapInterval = time.Minute
	// DefaultCookieName carries the session identifier.
	DefaultCookieName = "tc_session"
)

// CookieFlags controls the attributes set on the session cookie.
type CookieFlags struct {
	HttpOnly       bool
	Secure         bool
	SameSiteStrict bool
}

// Config is the full set of recognized options.
type Config struct {
	// SessionTTL is the sliding session expiration window. Default 30m.
	SessionTTL time.Duration
	// ReapInterval is how often expired sessions are swept. Default 1m.
	ReapInterval time.Duration
	// ApplicationRefreshInterval is the default refresh interval for
	// application cache entries; individual entries may override it.
	// Zero means entries are never refreshed unless they say otherwise.
	ApplicationRefreshInterval time.Duration
	// SessionIDCookieName names the cookie carrying the session identifier.
	SessionIDCookieName string
	// Cookie holds the flags applied by SessionCookie.
	Cookie CookieFlags
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		SessionTTL:          DefaultSessionTTL,
		ReapInterval:        DefaultReapInterval,
		SessionIDCookieName: DefaultCookieName,
		Cookie: CookieFlags{
			HttpOnly:       true,
			Secure:         true,
			SameSiteStrict: true,
		},
	}
}

// FromEnv returns Default overridden by environment variables:
//
//	TIERCACHE_SESSION_TTL      duration (e.g. "30m", "1h30m")
//	TIERCACHE_REAP_INTERVAL    duration
//	TIERCACHE_APP_REFRESH      duration
//	TIERCACHE_COOKIE_NAME      string
//
// Durations accept the extended day/week syntax ("7d", "1w").
func FromEnv() (Config, error) {
	cfg := Default()
	if err := durationFromEnv("TIERCACHE_SESSION_TTL", &cfg.SessionTTL); err != nil {
		return cfg, err
	}
	if err := durationFromEnv("TIERCACHE_REAP_INTERVAL", &cfg.ReapInterval); err != nil {
		return cfg, err
	}
	if err := durationFromEnv("TIERCACHE_APP_REFRESH", &cfg.ApplicationRefreshInterval); err != nil {
		return cfg, err
	}
	if name := os.Getenv("TIERCACHE_COOKIE_NAME"); name != "" {
		cfg.SessionIDCookieName = name
	}
	return cfg, nil
}

func durationFromEnv(key string, out *time.Duration) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	d, err := str2duration.ParseDuration(val)
	if err != nil {
		return errors.Wrapf(err, "config: invalid duration in %s", key)
	}
	*out = d
	return nil
}

// SessionCookie builds the cookie delivering a session identifier to the
// client, honoring the configured flags. MaxAge tracks the session TTL so
// the browser drops the cookie when the record would have expired anyway.
func (c Config) SessionCookie(id string) *http.Cookie {
	cookie := &http.Cookie{
		Name:     c.SessionIDCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(c.SessionTTL / time.Second),
		HttpOnly: c.Cookie.HttpOnly,
		Secure:   c.Cookie.Secure,
	}
	if c.Cookie.SameSiteStrict {
		cookie.SameSite = http.SameSiteStrictMode
	}
	return cookie
}
