package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// ICEServer describes one STUN/TURN server entry.
type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

type Config struct {
	Room struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
		Role string `yaml:"role"`
	} `yaml:"room"`

	Signal struct {
		Transport    string        `yaml:"transport"` // "redis" or "websocket"
		URL          string        `yaml:"url"`       // websocket signaling server URL
		PingInterval time.Duration `yaml:"ping_interval"`
		PongTimeout  time.Duration `yaml:"pong_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		SendRate     float64       `yaml:"send_rate"` // outbound messages per second
		SendBurst    int           `yaml:"send_burst"`
	} `yaml:"signal"`

	Redis struct {
		Address     string        `yaml:"address"`
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db"`
		PresenceTTL time.Duration `yaml:"presence_ttl"`
	} `yaml:"redis"`

	WebRTC struct {
		ICEServers []ICEServer `yaml:"ice_servers"`
	} `yaml:"webrtc"`

	Mesh struct {
		RecheckInterval time.Duration `yaml:"recheck_interval"` // 0 disables periodic recheck
		MaxCamerasOn    int           `yaml:"max_cameras_on"`
	} `yaml:"mesh"`

	Admin struct {
		Address         string        `yaml:"address"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		RateLimitRPS    float64       `yaml:"rate_limit_rps"` // 0 disables limiting
		RateLimitBurst  int           `yaml:"rate_limit_burst"`
	} `yaml:"admin"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Room.ID == "" {
		return fmt.Errorf("room.id must not be empty")
	}

	switch c.Signal.Transport {
	case "redis":
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when signal.transport=redis")
		}
		if c.Redis.PresenceTTL <= 0 {
			return fmt.Errorf("redis.presence_ttl must be > 0")
		}
	case "websocket":
		if c.Signal.URL == "" {
			return fmt.Errorf("signal.url must not be empty when signal.transport=websocket")
		}
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret must not be empty when signal.transport=websocket")
		}
		if c.Auth.TokenTTL <= 0 {
			return fmt.Errorf("auth.token_ttl must be > 0")
		}
	default:
		return fmt.Errorf("signal.transport must be \"redis\" or \"websocket\", got %q", c.Signal.Transport)
	}

	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= 0 {
		return fmt.Errorf("signal.pong_timeout must be > 0")
	}
	if c.Signal.WriteTimeout <= 0 {
		return fmt.Errorf("signal.write_timeout must be > 0")
	}
	if c.Signal.SendRate <= 0 {
		return fmt.Errorf("signal.send_rate must be > 0")
	}
	if c.Signal.SendBurst <= 0 {
		return fmt.Errorf("signal.send_burst must be > 0")
	}

	if len(c.WebRTC.ICEServers) == 0 {
		return fmt.Errorf("webrtc.ice_servers must contain at least one server")
	}
	for i, srv := range c.WebRTC.ICEServers {
		if len(srv.URLs) == 0 {
			return fmt.Errorf("webrtc.ice_servers[%d].urls must not be empty", i)
		}
	}

	if c.Mesh.RecheckInterval < 0 {
		return fmt.Errorf("mesh.recheck_interval must be >= 0")
	}
	if c.Mesh.MaxCamerasOn <= 0 {
		return fmt.Errorf("mesh.max_cameras_on must be > 0")
	}

	if c.Admin.Address == "" {
		return fmt.Errorf("admin.address must not be empty")
	}
	if c.Admin.ShutdownTimeout <= 0 {
		return fmt.Errorf("admin.shutdown_timeout must be > 0")
	}
	if c.Admin.RateLimitRPS < 0 {
		return fmt.Errorf("admin.rate_limit_rps must be >= 0")
	}
	if c.Admin.RateLimitRPS > 0 && c.Admin.RateLimitBurst <= 0 {
		return fmt.Errorf("admin.rate_limit_burst must be > 0 when limiting is enabled")
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in (0, 1]")
		}
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Room.ID = "debate-room"
	cfg.Room.Name = "anonymous"
	cfg.Room.Role = "OBSERVER"

	cfg.Signal.Transport = "redis"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.SendRate = 50
	cfg.Signal.SendBurst = 100

	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PresenceTTL = 30 * time.Second

	cfg.WebRTC.ICEServers = []ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
	}

	cfg.Mesh.RecheckInterval = 0
	cfg.Mesh.MaxCamerasOn = 2

	cfg.Admin.Address = ":8082"
	cfg.Admin.ShutdownTimeout = 30 * time.Second
	cfg.Admin.RateLimitRPS = 10
	cfg.Admin.RateLimitBurst = 20

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.TokenTTL = 15 * time.Minute

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if room := os.Getenv("DEBATEMESH_ROOM_ID"); room != "" {
		c.Room.ID = room
	}
	if role := os.Getenv("DEBATEMESH_ROLE"); role != "" {
		c.Room.Role = role
	}
	if url := os.Getenv("DEBATEMESH_SIGNAL_URL"); url != "" {
		c.Signal.URL = url
	}
	if addr := os.Getenv("DEBATEMESH_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if level := os.Getenv("DEBATEMESH_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("DEBATEMESH_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
}
