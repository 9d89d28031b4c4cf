package config

type Config interface {
	EnvConfig
	CorsConfig
	UpstreamConfig
	CookieConfig
	TokenConfig
	PolicyConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetBaseURL() string
	GetDownstreamURL() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Upstream
	Cookies
	Tokens
	Policy
}

func New() Config {
	return mainConfig{}
}
