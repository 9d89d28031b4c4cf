package config

type PolicyConfig interface {
	GetPolicyFile() string
	GetMFASetupPath() string
}

type Policy struct{}

var _ PolicyConfig = Policy{}

// GetPolicyFile points at an optional TOML file of route guards. Empty keeps the built-in guards.
func (Policy) GetPolicyFile() string {
	return GetEnv("POLICY_FILE", "")
}

func (Policy) GetMFASetupPath() string {
	return GetEnv("MFA_SETUP_PATH", "/panel/account")
}
