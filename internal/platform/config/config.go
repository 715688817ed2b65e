package config

import "os"

// Server captures process-level configuration for the form service.
type Server struct {
	Addr           string
	BaseURL        string
	MockServiceURL string
	FormConfigPath string
	StaticDir      string
	Redis          Redis
}

// Redis holds connection settings for the session store.
type Redis struct {
	URL string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:           getenv("FORM_SERVICE_ADDR", ":3001"),
		BaseURL:        getenv("BASE_URL", "http://localhost:3000"),
		MockServiceURL: getenv("MOCK_SERVICE_URL", "http://localhost:3002"),
		FormConfigPath: getenv("FORM_CONFIG_PATH", "configs/forms.yaml"),
		StaticDir:      getenv("STATIC_DIR", "forms"),
		Redis: Redis{
			URL: getenv("REDIS_URL", "redis://localhost:6379/0"),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
