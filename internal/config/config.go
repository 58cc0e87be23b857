// README: Config loader with env defaults for HTTP, LLM, geocoding, Overpass, and optional infra.
package config

import (
	"os"
	"strconv"
	"strings"
)

type OverpassConfig struct {
	Endpoints       []string
	PlacesRadiusM   int
	FeaturesRadiusM int
}

type SamplingConfig struct {
	IntervalKm float64
}

type Config struct {
	HTTP struct {
		Addr string
	}
	LLM struct {
		Backend     string // "gemini" or "ollama"
		GeminiKey   string
		OllamaURL   string
		OllamaModel string
	}
	Maps struct {
		APIKey string
	}
	Nominatim struct {
		BaseURL  string
		Insecure bool
	}
	Overpass OverpassConfig
	Sampling SamplingConfig
	// DB and Redis are optional; empty values disable the turn log and geocode cache.
	DB struct {
		DSN string
	}
	Redis struct {
		Addr string
	}
}

func Load() (Config, error) {
	var cfg Config
	cfg.HTTP.Addr = envOrDefault("MAPCHAT_HTTP_ADDR", ":8080")
	cfg.LLM.Backend = envOrDefault("MAPCHAT_LLM_BACKEND", "gemini")
	if cfg.LLM.Backend == "gemini" {
		cfg.LLM.GeminiKey = envOrError("GEMINI_API_KEY")
	}
	cfg.LLM.OllamaURL = envOrDefault("MAPCHAT_OLLAMA_URL", "http://localhost:11434")
	cfg.LLM.OllamaModel = envOrDefault("MAPCHAT_OLLAMA_MODEL", "llama3.2:latest")
	cfg.Maps.APIKey = envOrError("GOOGLE_MAPS_API_KEY")
	cfg.Nominatim.BaseURL = envOrDefault("MAPCHAT_NOMINATIM_URL", "https://nominatim.openstreetmap.org")
	cfg.Nominatim.Insecure = envOrDefaultBool("MAPCHAT_NOMINATIM_INSECURE", false)
	cfg.Overpass.Endpoints = envOrDefaultList("MAPCHAT_OVERPASS_ENDPOINTS", []string{
		"https://overpass-api.de/api/interpreter",
		"https://overpass.kumi.systems/api/interpreter",
		"https://maps.mail.ru/osm/tools/overpass/api/interpreter",
	})
	cfg.Overpass.PlacesRadiusM = envOrDefaultInt("MAPCHAT_PLACES_RADIUS_M", 5000)
	cfg.Overpass.FeaturesRadiusM = envOrDefaultInt("MAPCHAT_FEATURES_RADIUS_M", 1000)
	cfg.Sampling.IntervalKm = envOrDefaultFloat("MAPCHAT_SAMPLE_INTERVAL_KM", 5.0)
	cfg.DB.DSN = envOrDefault("MAPCHAT_DB_DSN", "")
	cfg.Redis.Addr = envOrDefault("MAPCHAT_REDIS_ADDR", "")
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrError(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	panic("environment variable " + key + " is required")
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
