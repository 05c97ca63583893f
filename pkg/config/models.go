package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Chat      ChatConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

// AuthConfig gates the /ws endpoint. An empty JWTSecret disables the gate
// entirely: identity is then whatever the client announces.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

type ConnectionLimitConfig struct {
	MaxPerIP int    `mapstructure:"maxPerIP"`
	Mode     string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	PingInterval time.Duration `mapstructure:"pingInterval"`
}

// ChatConfig holds the server-side typing-indicator backstop. Zero
// disables it and leaves expiry entirely to the client's debounce.
type ChatConfig struct {
	TypingTTL time.Duration `mapstructure:"typingTTL"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}
