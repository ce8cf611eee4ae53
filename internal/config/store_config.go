package config

type StoreConfig interface {
	GetDeviceSecret() string
}

type SessionStore struct{}

var _ StoreConfig = SessionStore{}

// GetDeviceSecret returns the secret the session store seals its blob with.
// On a device build this comes from the platform keychain; the env var is the
// development fallback.
func (SessionStore) GetDeviceSecret() string {
	return GetEnv("DEVICE_SECRET", "")
}
