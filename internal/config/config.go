package config

type Config interface {
	EnvConfig
	APIConfig
	StoreConfig
}

type EnvConfig interface {
	GetAppName() string
	GetDataFolder() string
	GetEnv() string
	GetPort() string
}

type mainConfig struct {
	EnvVars
	API
	SessionStore
}

func New() Config {
	return mainConfig{}
}
