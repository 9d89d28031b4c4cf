package config

import (
	"strings"
	"time"
)

type CookieConfig interface {
	GetSessionCookieName() string
	GetMFACookieName() string
	GetSessionCookieMaxAge() time.Duration
	GetMFACookieMaxAge() time.Duration
	GetRememberMeMaxAge() time.Duration
	GetSecureCookies() bool
}

type Cookies struct{}

var _ CookieConfig = Cookies{}

func (Cookies) GetSessionCookieName() string {
	return GetEnv("SESSION_COOKIE_NAME", "xc_session")
}

func (Cookies) GetMFACookieName() string {
	return GetEnv("MFA_COOKIE_NAME", "xc_mfa_challenge")
}

func (Cookies) GetSessionCookieMaxAge() time.Duration {
	return 24 * time.Hour
}

func (Cookies) GetMFACookieMaxAge() time.Duration {
	return 10 * time.Minute
}

func (Cookies) GetRememberMeMaxAge() time.Duration {
	return 30 * 24 * time.Hour
}

// GetSecureCookies resolves the Secure flag: explicit SESSION_COOKIE_SECURE
// wins, then ENV=production, then an https BASE_URL.
func (Cookies) GetSecureCookies() bool {
	if secure, ok := GetEnvBool("SESSION_COOKIE_SECURE"); ok {
		return secure
	}
	if strings.EqualFold(GetEnv(envVar, EnvDev), "production") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(GetEnv(baseURLVar, "")), "https://")
}
