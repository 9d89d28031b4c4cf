package config

import (
	"strings"
	"time"
)

type UpstreamConfig interface {
	GetUpstreamBaseURLs() []string
	GetUpstreamTimeout() time.Duration
	GetLoginTimeout() time.Duration
	GetUpstreamRateLimit() float64
	GetStrictRoles() bool
}

type Upstream struct{}

var _ UpstreamConfig = Upstream{}

// GetUpstreamBaseURLs returns the ordered candidate base URLs of the account
// service. The first one that answers wins; later entries are only tried on
// transport failures.
func (Upstream) GetUpstreamBaseURLs() []string {
	raw := GetEnv("ACCOUNT_SERVICE_API_BASE_URL", "http://localhost:3001/api")
	var urls []string
	for _, candidate := range strings.Split(raw, ",") {
		if candidate = strings.TrimRight(strings.TrimSpace(candidate), "/"); candidate != "" {
			urls = append(urls, candidate)
		}
	}
	return urls
}

// GetUpstreamTimeout bounds every session lookup so a slow account service
// cannot hold a request open.
func (Upstream) GetUpstreamTimeout() time.Duration {
	return GetEnvDuration("UPSTREAM_TIMEOUT", 5*time.Second)
}

func (Upstream) GetLoginTimeout() time.Duration {
	return GetEnvDuration("UPSTREAM_LOGIN_TIMEOUT", 10*time.Second)
}

// GetUpstreamRateLimit is requests/second towards the account service. Zero disables limiting.
func (Upstream) GetUpstreamRateLimit() float64 {
	return GetEnvFloat("UPSTREAM_RPS", 0)
}

// GetStrictRoles rejects sessions whose role is not recognised instead of
// downgrading them to guest.
func (Upstream) GetStrictRoles() bool {
	strict, _ := GetEnvBool("STRICT_ROLES")
	return strict
}
