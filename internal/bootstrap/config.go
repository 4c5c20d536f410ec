package bootstrap

import (
	"os"
	"strconv"
	"strings"
)

// RoutingMode selects who enforces the audio routing policy: the SFU
// itself, or clients following pushed listen lists.
const (
	RoutingModeServer = "server"
	RoutingModeClient = "client"
)

type Config struct {
	ServerAddr string
	LogLevel   string

	HMACKey string

	RoutingMode               string
	ForceCallOverridesSpeaker bool

	RTCICEServers []ICEServerConfig
	RTCPortMin    int
	RTCPortMax    int

	LiveKitAPIKey    string
	LiveKitAPISecret string
	LiveKitURL       string

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type ICEServerConfig struct {
	URLs       []string
	Username   string
	Credential string
}

func LoadConfig() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		HMACKey: getEnv("HMAC_KEY", "change-me-in-production"),

		RoutingMode:               getEnv("ROUTING_MODE", RoutingModeServer),
		ForceCallOverridesSpeaker: getEnv("FORCE_CALL_OVERRIDES_SPEAKER", "true") == "true",

		RTCICEServers: parseICEServers(getEnv("RTC_ICE_SERVERS", "stun:stun.l.google.com:19302")),
		RTCPortMin:    getEnvInt("RTC_PORT_MIN", 10000),
		RTCPortMax:    getEnvInt("RTC_PORT_MAX", 20000),

		LiveKitAPIKey:    getEnv("LIVEKIT_API_KEY", ""),
		LiveKitAPISecret: getEnv("LIVEKIT_API_SECRET", ""),
		LiveKitURL:       getEnv("LIVEKIT_URL", ""),

		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       0,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseICEServers(envValue string) []ICEServerConfig {
	if envValue == "" {
		return []ICEServerConfig{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	var servers []ICEServerConfig
	for _, url := range strings.Split(envValue, ",") {
		url = strings.TrimSpace(url)
		if url != "" {
			servers = append(servers, ICEServerConfig{URLs: []string{url}})
		}
	}

	if len(servers) == 0 {
		return []ICEServerConfig{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	return servers
}
