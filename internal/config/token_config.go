package config

type TokenConfig interface {
	GetTokenStore() string
	GetTokenStoreDSN() string
	GetTokenSealKey() string
	GetPublicToken() string
}

type Tokens struct{}

var _ TokenConfig = Tokens{}

// GetTokenStore selects the durable token backend: memory, sqlite or redis.
func (Tokens) GetTokenStore() string {
	return GetEnv("TOKEN_STORE", "sqlite")
}

// GetTokenStoreDSN is a sqlite file path or a redis URL depending on GetTokenStore.
func (Tokens) GetTokenStoreDSN() string {
	return GetEnv("TOKEN_STORE_DSN", "./data/tokens.db")
}

// GetTokenSealKey is a hex encoded 32 byte key. When set the refresh token is
// sealed before it reaches the store.
func (Tokens) GetTokenSealKey() string {
	return GetEnv("TOKEN_SEAL_KEY", "")
}

func (Tokens) GetPublicToken() string {
	return GetEnv("PUBLIC_TOKEN", "")
}
