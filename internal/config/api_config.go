package config

import "time"

type APIConfig interface {
	GetAPIBaseURL() string
	GetRequestTimeout() time.Duration
}

type API struct{}

var _ APIConfig = API{}

// GetAPIBaseURL returns the base URL of the Chalk backend
// (e.g. "https://api.chalk.fit"). All REST paths are resolved against it.
func (API) GetAPIBaseURL() string {
	return GetEnv("API_BASE_URL", "http://localhost:8080")
}

func (API) GetRequestTimeout() time.Duration {
	return 10 * time.Second
}
