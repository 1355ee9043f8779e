package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"edgeview/pkg/validation"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Viewer struct {
		MaxConcurrency  int           `yaml:"max_concurrency"`
		InitialSessions int           `yaml:"initial_sessions"`
		ReconnectDelay  time.Duration `yaml:"reconnect_delay"`
		AutoConnect     bool          `yaml:"auto_connect"`
		ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	} `yaml:"viewer"`

	WHEP struct {
		SignalingTimeout time.Duration `yaml:"signaling_timeout"`
		FallbackEnabled  bool          `yaml:"fallback_enabled"`
		FallbackFrom     string        `yaml:"fallback_from"`
		FallbackTo       string        `yaml:"fallback_to"`

		CircuitBreaker struct {
			Enabled          bool          `yaml:"enabled"`
			FailureThreshold int           `yaml:"failure_threshold"`
			SuccessThreshold int           `yaml:"success_threshold"`
			OpenTimeout      time.Duration `yaml:"open_timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"whep"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
		PortRange struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
		PLIInterval time.Duration `yaml:"pli_interval"`
	} `yaml:"webrtc"`

	Overlay struct {
		Enabled    bool     `yaml:"enabled"`
		Endpoint   string   `yaml:"endpoint"`
		Width      int      `yaml:"width"`
		Height     int      `yaml:"height"`
		ClassNames []string `yaml:"class_names"`

		Reconnect struct {
			Enabled      bool          `yaml:"enabled"`
			InitialDelay time.Duration `yaml:"initial_delay"`
			MaxDelay     time.Duration `yaml:"max_delay"`
			Multiplier   float64       `yaml:"multiplier"`
		} `yaml:"reconnect"`

		MaxMessageSizeBytes int64 `yaml:"max_message_size_bytes"`
	} `yaml:"overlay"`

	Store struct {
		Backend   string `yaml:"backend"` // file, redis or memory
		Path      string `yaml:"path"`
		Key       string `yaml:"key"`
		Namespace string `yaml:"namespace"`
	} `yaml:"store"`

	Backup struct {
		Enabled        bool          `yaml:"enabled"`
		Directory      string        `yaml:"directory"`
		Interval       time.Duration `yaml:"interval"`
		Retain         int           `yaml:"retain"`
		RestoreOnEmpty bool          `yaml:"restore_on_empty"`
	} `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Recording struct {
		Enabled   bool   `yaml:"enabled"`
		Directory string `yaml:"directory"`
	} `yaml:"recording"`

	Events struct {
		Enabled      bool          `yaml:"enabled"`
		PingInterval time.Duration `yaml:"ping_interval"`
		SendBuffer   int           `yaml:"send_buffer"`
		// RedisFanout shares events between viewer instances when the
		// redis store backend is in use.
		RedisFanout bool `yaml:"redis_fanout"`
	} `yaml:"events"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
		MaxConcurrent     int     `yaml:"max_concurrent"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Viewer
	if err := validation.ValidateMaxConcurrency(c.Viewer.MaxConcurrency); err != nil {
		return fmt.Errorf("viewer.max_concurrency: %w", err)
	}
	if c.Viewer.InitialSessions < 0 {
		return fmt.Errorf("viewer.initial_sessions must be >= 0")
	}
	if c.Viewer.InitialSessions > c.Viewer.MaxConcurrency {
		return fmt.Errorf("viewer.initial_sessions must be <= viewer.max_concurrency")
	}
	if c.Viewer.ReconnectDelay < 0 {
		return fmt.Errorf("viewer.reconnect_delay must be >= 0")
	}

	// WHEP
	if c.WHEP.SignalingTimeout <= 0 {
		return fmt.Errorf("whep.signaling_timeout must be > 0")
	}
	if c.WHEP.FallbackEnabled && (c.WHEP.FallbackFrom == "" || c.WHEP.FallbackTo == "") {
		return fmt.Errorf("whep.fallback_from and whep.fallback_to must be set when fallback is enabled")
	}
	if c.WHEP.CircuitBreaker.Enabled {
		if c.WHEP.CircuitBreaker.FailureThreshold <= 0 {
			return fmt.Errorf("whep.circuit_breaker.failure_threshold must be > 0")
		}
		if c.WHEP.CircuitBreaker.SuccessThreshold <= 0 {
			return fmt.Errorf("whep.circuit_breaker.success_threshold must be > 0")
		}
		if c.WHEP.CircuitBreaker.OpenTimeout <= 0 {
			return fmt.Errorf("whep.circuit_breaker.open_timeout must be > 0")
		}
	}

	// WebRTC
	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}
	if c.WebRTC.PLIInterval < 0 {
		return fmt.Errorf("webrtc.pli_interval must be >= 0")
	}

	// Overlay
	if c.Overlay.Enabled {
		if c.Overlay.Endpoint == "" {
			return fmt.Errorf("overlay.endpoint must not be empty when overlay.enabled=true")
		}
		if c.Overlay.Width <= 0 || c.Overlay.Height <= 0 {
			return fmt.Errorf("overlay.width and overlay.height must be > 0")
		}
		if c.Overlay.Reconnect.Enabled {
			if c.Overlay.Reconnect.InitialDelay <= 0 {
				return fmt.Errorf("overlay.reconnect.initial_delay must be > 0")
			}
			if c.Overlay.Reconnect.MaxDelay < c.Overlay.Reconnect.InitialDelay {
				return fmt.Errorf("overlay.reconnect.max_delay must be >= initial_delay")
			}
			if c.Overlay.Reconnect.Multiplier < 1 {
				return fmt.Errorf("overlay.reconnect.multiplier must be >= 1")
			}
		}
		if c.Overlay.MaxMessageSizeBytes < 0 {
			return fmt.Errorf("overlay.max_message_size_bytes must be >= 0")
		}
	}

	// Store
	switch c.Store.Backend {
	case "file":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path must not be empty when store.backend=file")
		}
	case "redis":
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when store.backend=redis")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when store.backend=redis")
		}
	case "memory":
	default:
		return fmt.Errorf("store.backend must be one of file, redis, memory (got %q)", c.Store.Backend)
	}
	if c.Store.Key == "" {
		return fmt.Errorf("store.key must not be empty")
	}

	// Backup
	if c.Backup.Enabled {
		if c.Backup.Directory == "" {
			return fmt.Errorf("backup.directory must not be empty when backup.enabled=true")
		}
		if c.Backup.Interval <= 0 {
			return fmt.Errorf("backup.interval must be > 0 when backup.enabled=true")
		}
		if c.Backup.Retain < 0 {
			return fmt.Errorf("backup.retain must be >= 0")
		}
	}

	// Events
	if c.Events.PingInterval < 0 || c.Events.SendBuffer < 0 {
		return fmt.Errorf("events.ping_interval and events.send_buffer must be >= 0")
	}

	// Recording
	if c.Recording.Enabled && c.Recording.Directory == "" {
		return fmt.Errorf("recording.directory must not be empty when recording.enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0,1]")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.max_concurrent must be >= 0 when rate limiting is enabled")
		}
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

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 15 * time.Second

	cfg.Viewer.MaxConcurrency = 6
	cfg.Viewer.InitialSessions = 2
	cfg.Viewer.ReconnectDelay = time.Second
	cfg.Viewer.AutoConnect = true
	cfg.Viewer.ConnectTimeout = 30 * time.Second

	cfg.WHEP.SignalingTimeout = 10 * time.Second
	cfg.WHEP.FallbackEnabled = true
	cfg.WHEP.FallbackFrom = "/live/cam/whep"
	cfg.WHEP.FallbackTo = "/whep?path=live/cam"
	cfg.WHEP.CircuitBreaker.Enabled = true
	cfg.WHEP.CircuitBreaker.FailureThreshold = 5
	cfg.WHEP.CircuitBreaker.SuccessThreshold = 1
	cfg.WHEP.CircuitBreaker.OpenTimeout = 15 * time.Second

	cfg.WebRTC.PLIInterval = 3 * time.Second

	cfg.Overlay.Enabled = false
	cfg.Overlay.Endpoint = "ws://192.168.7.166:8765"
	cfg.Overlay.Width = 640
	cfg.Overlay.Height = 360
	cfg.Overlay.Reconnect.Enabled = true
	cfg.Overlay.Reconnect.InitialDelay = time.Second
	cfg.Overlay.Reconnect.MaxDelay = 30 * time.Second
	cfg.Overlay.Reconnect.Multiplier = 2.0
	cfg.Overlay.MaxMessageSizeBytes = 256 * 1024

	cfg.Store.Backend = "file"
	cfg.Store.Path = "data/streams.json"
	cfg.Store.Key = "bitstreamAI-streams"
	cfg.Store.Namespace = "edgeview"

	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Recording.Enabled = false
	cfg.Recording.Directory = "recordings"

	cfg.Backup.Enabled = false
	cfg.Backup.Directory = "data/backups"
	cfg.Backup.Interval = time.Hour
	cfg.Backup.Retain = 24

	cfg.Events.Enabled = true
	cfg.Events.PingInterval = 30 * time.Second
	cfg.Events.SendBuffer = 64
	cfg.Events.RedisFanout = true

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 20
	cfg.RateLimiting.Burst = 40
	cfg.RateLimiting.MaxConcurrent = 0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("EDGEVIEW_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("EDGEVIEW_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if endpoint := os.Getenv("EDGEVIEW_OVERLAY_ENDPOINT"); endpoint != "" {
		c.Overlay.Endpoint = endpoint
		c.Overlay.Enabled = true
	}
	if backend := os.Getenv("EDGEVIEW_STORE_BACKEND"); backend != "" {
		c.Store.Backend = backend
	}
	if addr := os.Getenv("EDGEVIEW_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if v := os.Getenv("EDGEVIEW_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Viewer.MaxConcurrency = n
		}
	}
}
