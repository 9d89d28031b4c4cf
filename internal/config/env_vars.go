package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar       = "PORT"
	appNameVar       = "APP_NAME"
	envVar           = "ENV"
	logLevelVar      = "LOG_LEVEL"
	baseURLVar       = "BASE_URL"
	downstreamURLVar = "DOWNSTREAM_URL"
)

// EnvDev is the default environment. Request logging and route listing are
// only verbose in this environment.
const EnvDev = "DEV"

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Auth Gateway")
}

func (EnvVars) GetEnv() string {
	return GetEnv(envVar, EnvDev)
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetBaseURL returns the public base URL of the gateway (e.g., "https://console.example.com")
func (EnvVars) GetBaseURL() string {
	return GetEnv(baseURLVar, "http://localhost:8080")
}

// GetDownstreamURL is the dashboard application that authorised requests are proxied to.
// Empty disables the reverse proxy.
func (EnvVars) GetDownstreamURL() string {
	return GetEnv(downstreamURLVar, "")
}

func GetEnv(envVar, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(envVar))
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvBool understands 1/true/yes/on and 0/false/no/off. ok is false when
// the variable is unset or unrecognised.
func GetEnvBool(envVar string) (value bool, ok bool) {
	switch strings.ToLower(GetEnv(envVar, "")) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func GetEnvFloat(envVar string, defaultValue float64) float64 {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
