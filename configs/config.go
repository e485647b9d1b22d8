package configs

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Engine    EngineConfig
	Emit      EmitConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Mode string
}

type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type EngineConfig struct {
	HandshakeTimeout  time.Duration
	QuiescenceTimeout time.Duration
	StopDelay         time.Duration
	IdleTimeout       time.Duration
	ReadPollInterval  time.Duration
	SpawnRetries      int
	SpawnBackoff      time.Duration
	ResponsiveMode    bool
	SessionLogCap     int
}

type EmitConfig struct {
	MinInterval     time.Duration
	MaxInterval     time.Duration
	EventsPerSecond int
	Burst           int
}

type RateLimitConfig struct {
	BestMovesPerHour    int
	GameAnalysisPerHour int
}

func Load() *Config {
	viper.SetDefault("APP_MODE", "debug")
	viper.SetDefault("SERVER_PORT", 8080)
	viper.SetDefault("SERVER_READ_TIMEOUT", "30s")
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	viper.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "30s")

	viper.SetDefault("ENGINE_HANDSHAKE_TIMEOUT", "10s")
	viper.SetDefault("ENGINE_QUIESCENCE_TIMEOUT", "5s")
	viper.SetDefault("ENGINE_STOP_DELAY", "50ms")
	viper.SetDefault("ENGINE_IDLE_TIMEOUT", "60s")
	viper.SetDefault("ENGINE_READ_POLL_INTERVAL", "10ms")
	viper.SetDefault("ENGINE_SPAWN_RETRIES", 3)
	viper.SetDefault("ENGINE_SPAWN_BACKOFF", "100ms")
	viper.SetDefault("ENGINE_RESPONSIVE_MODE", false)
	viper.SetDefault("SESSION_LOG_CAP", 4096)

	viper.SetDefault("EMIT_MIN_INTERVAL", "50ms")
	viper.SetDefault("EMIT_MAX_INTERVAL", "100ms")
	viper.SetDefault("EMIT_EVENTS_PER_SECOND", 20)
	viper.SetDefault("EMIT_BURST", 20)

	viper.SetDefault("RATE_LIMIT_BEST_MOVES_PER_HOUR", 100000)
	viper.SetDefault("RATE_LIMIT_GAME_ANALYSIS_PER_HOUR", 10000)

	viper.AutomaticEnv()

	return &Config{
		App: AppConfig{
			Mode: viper.GetString("APP_MODE"),
		},
		Server: ServerConfig{
			Port:            viper.GetInt("SERVER_PORT"),
			ReadTimeout:     viper.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    viper.GetDuration("SERVER_WRITE_TIMEOUT"),
			ShutdownTimeout: viper.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		Engine: EngineConfig{
			HandshakeTimeout:  viper.GetDuration("ENGINE_HANDSHAKE_TIMEOUT"),
			QuiescenceTimeout: viper.GetDuration("ENGINE_QUIESCENCE_TIMEOUT"),
			StopDelay:         viper.GetDuration("ENGINE_STOP_DELAY"),
			IdleTimeout:       viper.GetDuration("ENGINE_IDLE_TIMEOUT"),
			ReadPollInterval:  viper.GetDuration("ENGINE_READ_POLL_INTERVAL"),
			SpawnRetries:      viper.GetInt("ENGINE_SPAWN_RETRIES"),
			SpawnBackoff:      viper.GetDuration("ENGINE_SPAWN_BACKOFF"),
			ResponsiveMode:    viper.GetBool("ENGINE_RESPONSIVE_MODE"),
			SessionLogCap:     viper.GetInt("SESSION_LOG_CAP"),
		},
		Emit: EmitConfig{
			MinInterval:     viper.GetDuration("EMIT_MIN_INTERVAL"),
			MaxInterval:     viper.GetDuration("EMIT_MAX_INTERVAL"),
			EventsPerSecond: viper.GetInt("EMIT_EVENTS_PER_SECOND"),
			Burst:           viper.GetInt("EMIT_BURST"),
		},
		RateLimit: RateLimitConfig{
			BestMovesPerHour:    viper.GetInt("RATE_LIMIT_BEST_MOVES_PER_HOUR"),
			GameAnalysisPerHour: viper.GetInt("RATE_LIMIT_GAME_ANALYSIS_PER_HOUR"),
		},
	}
}
