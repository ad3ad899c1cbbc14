// Package config loads the server's environment-driven configuration,
// following the teacher's os.Getenv-with-defaults-and-validation shape.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AdminAccessMode string

const (
	AdminAccessDisabled AdminAccessMode = "disabled"
	AdminAccessOpen     AdminAccessMode = "open"
	AdminAccessToken    AdminAccessMode = "token"
	AdminAccessRole     AdminAccessMode = "role"
	AdminAccessHybrid   AdminAccessMode = "hybrid"
)

type StoreBackend string

const (
	StoreBackendFile   StoreBackend = "file"
	StoreBackendRemote StoreBackend = "remote"
)

type SpeedProfile string

const (
	SpeedProfileNormal SpeedProfile = "normal"
	SpeedProfileFast   SpeedProfile = "fast"
)

// Config is constructed once in main and passed explicitly into every
// engine constructor; there is no package-level singleton.
type Config struct {
	Addr       string
	AppEnv     string
	WSAllowedOrigins []string
	DevWebSocketsAllowAll bool

	OTELTracesExporter   string
	OTELTracesSampler    string
	OTELTracesSamplerArg string

	AdminAccessMode AdminAccessMode
	AdminToken      string
	AdminJWTSecret  string

	StoreBackend      StoreBackend
	StoreFilePath     string
	FirestorePrefix   string
	AllowShortTTLs    bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	TokenTTLAccess  time.Duration
	TokenTTLRefresh time.Duration

	PersistDebounce   time.Duration
	RehydrateCooldown time.Duration

	SessionIdleTTL              time.Duration
	NextGameDelay               time.Duration
	PostGameInactivityTimeout   time.Duration
	PublicRoomOverflowEmptyTTL  time.Duration
	PublicRoomStaleParticipant  time.Duration
	TurnTimeoutMs               time.Duration
	TurnTimeoutEasyMs           time.Duration
	TurnTimeoutNormalMs         time.Duration
	TurnTimeoutHardMs           time.Duration

	ChatConductEnabled bool
	ChatBannedTerms    []string

	SpeedProfile SpeedProfile

	AdminMetricsEnabled bool
}

// LoadFromEnv populates Config from the process environment, following
// the §6.4 configuration surface. Unset durations fall back to sane
// defaults; required secrets missing in a non-development environment
// are collected into one error, matching the teacher's
// "missing/invalid env" aggregate-error style.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:   getenvDefault("BACKEND_ADDR", ":8080"),
		AppEnv: getenvDefault("APP_ENV", "development"),

		OTELTracesExporter:   os.Getenv("OTEL_TRACES_EXPORTER"),
		OTELTracesSampler:    os.Getenv("OTEL_TRACES_SAMPLER"),
		OTELTracesSamplerArg: os.Getenv("OTEL_TRACES_SAMPLER_ARG"),

		AdminAccessMode: AdminAccessMode(getenvDefault("API_ADMIN_ACCESS_MODE", "disabled")),
		AdminToken:      os.Getenv("API_ADMIN_TOKEN"),
		AdminJWTSecret:  os.Getenv("API_ADMIN_JWT_SECRET"),

		StoreBackend:    StoreBackend(getenvDefault("API_STORE_BACKEND", "file")),
		StoreFilePath:   getenvDefault("STORE_FILE_PATH", "data/snapshot.json"),
		FirestorePrefix: getenvDefault("API_FIRESTORE_PREFIX", "dicehall"),
		AllowShortTTLs:  os.Getenv("ALLOW_SHORT_SESSION_TTLS") == "true",

		RedisAddr:     getenvDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		SpeedProfile: SpeedProfile(getenvDefault("MULTIPLAYER_SPEED_PROFILE", "normal")),

		ChatConductEnabled: getenvDefault("MULTIPLAYER_CHAT_CONDUCT_ENABLED", "true") != "false",

		AdminMetricsEnabled: getenvDefault("ADMIN_METRICS_ENABLED", "true") != "false",
	}

	if v := os.Getenv("WS_ALLOWED_ORIGINS"); v != "" {
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.WSAllowedOrigins = append(cfg.WSAllowedOrigins, p)
			}
		}
	}
	cfg.DevWebSocketsAllowAll = cfg.AppEnv == "development" && os.Getenv("DEV_WS_ALLOW_ALL") == "true"

	if v := os.Getenv("MULTIPLAYER_CHAT_BANNED_TERMS"); v != "" {
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.ChatBannedTerms = append(cfg.ChatBannedTerms, p)
			}
		}
	}

	redisDB, _ := strconv.Atoi(getenvDefault("REDIS_DB", "0"))
	cfg.RedisDB = redisDB

	cfg.TokenTTLAccess = durationFromEnvMs("TOKEN_TTL_ACCESS_MS", 15*time.Minute)
	cfg.TokenTTLRefresh = durationFromEnvMs("TOKEN_TTL_REFRESH_MS", 7*24*time.Hour)
	cfg.PersistDebounce = durationFromEnvMs("PERSIST_DEBOUNCE_MS", 250*time.Millisecond)
	cfg.RehydrateCooldown = durationFromEnvMs("REHYDRATE_COOLDOWN_MS", 2*time.Second)

	cfg.SessionIdleTTL = durationFromEnvMs("MULTIPLAYER_SESSION_IDLE_TTL_MS", 10*time.Minute)
	cfg.NextGameDelay = durationFromEnvMs("MULTIPLAYER_NEXT_GAME_DELAY_MS", 8*time.Second)
	cfg.PostGameInactivityTimeout = durationFromEnvMs("MULTIPLAYER_POST_GAME_INACTIVITY_TIMEOUT_MS", 60*time.Second)
	cfg.PublicRoomOverflowEmptyTTL = durationFromEnvMs("PUBLIC_ROOM_OVERFLOW_EMPTY_TTL_MS", 30*time.Second)
	cfg.PublicRoomStaleParticipant = durationFromEnvMs("PUBLIC_ROOM_STALE_PARTICIPANT_MS", 45*time.Second)
	cfg.TurnTimeoutMs = durationFromEnvMs("TURN_TIMEOUT_MS", 30*time.Second)
	cfg.TurnTimeoutEasyMs = durationFromEnvMs("MULTIPLAYER_TURN_TIMEOUT_EASY_MS", 45*time.Second)
	cfg.TurnTimeoutNormalMs = durationFromEnvMs("MULTIPLAYER_TURN_TIMEOUT_NORMAL_MS", 30*time.Second)
	cfg.TurnTimeoutHardMs = durationFromEnvMs("MULTIPLAYER_TURN_TIMEOUT_HARD_MS", 20*time.Second)

	if cfg.AllowShortTTLs && cfg.SpeedProfile == SpeedProfileFast {
		cfg.NextGameDelay = 500 * time.Millisecond
		cfg.PostGameInactivityTimeout = 3 * time.Second
		cfg.TurnTimeoutMs = 2 * time.Second
	}

	var missing []string
	if cfg.AppEnv != "development" {
		if cfg.AdminAccessMode == AdminAccessToken && cfg.AdminToken == "" {
			missing = append(missing, "API_ADMIN_TOKEN")
		}
		if cfg.StoreBackend == StoreBackendRemote && cfg.RedisAddr == "" {
			missing = append(missing, "REDIS_ADDR")
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing/invalid env: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// durationFromEnvMs reads a millisecond count from the named env var,
// matching §6.4's *_MS naming convention; falls back to def when unset/invalid.
func durationFromEnvMs(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
