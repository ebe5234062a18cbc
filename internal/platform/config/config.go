package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// Config holds all configuration for a service
type Config struct {
	Service      ServiceConfig      `mapstructure:"service"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Realtime     RealtimeConfig     `mapstructure:"realtime"`
	Sound        SoundConfig        `mapstructure:"sound"`
	Notification NotificationConfig `mapstructure:"notification"`
	Simulator    SimulatorConfig    `mapstructure:"simulator"`
	Gateway      GatewayConfig      `mapstructure:"gateway"`
	Version      string             `mapstructure:"version"`
}

// ServiceConfig holds service-specific configuration
type ServiceConfig struct {
	Name        string `mapstructure:"name" envconfig:"SERVICE_NAME"`
	Environment string `mapstructure:"environment" envconfig:"ENVIRONMENT" default:"development"`
}

// IsProduction reports whether the service runs with production semantics.
func (c ServiceConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port         int           `mapstructure:"port" envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" envconfig:"HTTP_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" envconfig:"HTTP_IDLE_TIMEOUT" default:"120s"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string        `mapstructure:"host" envconfig:"REDIS_HOST" default:"localhost"`
	Port         int           `mapstructure:"port" envconfig:"REDIS_PORT" default:"6379"`
	Password     string        `mapstructure:"password" envconfig:"REDIS_PASSWORD"`
	DB           int           `mapstructure:"db" envconfig:"REDIS_DB" default:"0"`
	PoolSize     int           `mapstructure:"pool_size" envconfig:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `mapstructure:"min_idle_conns" envconfig:"REDIS_MIN_IDLE_CONNS" default:"5"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
}

// KafkaConfig holds Kafka configuration. Publishing is disabled when no
// brokers are configured.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers" envconfig:"KAFKA_BROKERS"`
	Topic   string   `mapstructure:"topic" envconfig:"KAFKA_TOPIC" default:"notification-events"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" envconfig:"JWT_SECRET" default:"super-secret-key"`
	Disabled  bool   `mapstructure:"disabled" envconfig:"AUTH_DISABLED" default:"false"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format     string `mapstructure:"format" envconfig:"LOG_FORMAT" default:"json"`
	OutputPath string `mapstructure:"output_path" envconfig:"LOG_OUTPUT_PATH" default:"stdout"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled" envconfig:"METRICS_ENABLED" default:"true"`
	TracingEnabled bool   `mapstructure:"tracing_enabled" envconfig:"TRACING_ENABLED" default:"false"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint" envconfig:"JAEGER_ENDPOINT" default:"http://localhost:14268/api/traces"`
	ServiceName    string `mapstructure:"service_name" envconfig:"TELEMETRY_SERVICE_NAME"`
}

// StorageConfig selects the durable key/value backend. The breaker only
// guards the redis backend.
type StorageConfig struct {
	Backend         string        `mapstructure:"backend" envconfig:"STORAGE_BACKEND" default:"badger"`
	Path            string        `mapstructure:"path" envconfig:"STORAGE_PATH" default:"./data/notifications"`
	KeyPrefix       string        `mapstructure:"key_prefix" envconfig:"STORAGE_KEY_PREFIX" default:"notifyhub"`
	BreakerFailures int           `mapstructure:"breaker_failures" envconfig:"STORAGE_BREAKER_FAILURES" default:"5"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout" envconfig:"STORAGE_BREAKER_TIMEOUT" default:"30s"`
}

// RealtimeConfig configures the push transport. An empty URL means offline
// mode: no transport is created.
type RealtimeConfig struct {
	URL            string        `mapstructure:"url" envconfig:"REALTIME_URL"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay" envconfig:"REALTIME_RECONNECT_DELAY" default:"1s"`
	MaxAttempts    int           `mapstructure:"max_attempts" envconfig:"REALTIME_MAX_ATTEMPTS" default:"5"`
}

// SoundConfig holds the sound bank asset paths.
type SoundConfig struct {
	Enabled     bool    `mapstructure:"enabled" envconfig:"SOUND_ENABLED" default:"false"`
	Default     string  `mapstructure:"default" envconfig:"SOUND_DEFAULT" default:"./assets/sounds/notification.mp3"`
	Achievement string  `mapstructure:"achievement" envconfig:"SOUND_ACHIEVEMENT" default:"./assets/sounds/achievement.mp3"`
	Urgent      string  `mapstructure:"urgent" envconfig:"SOUND_URGENT" default:"./assets/sounds/urgent.mp3"`
	Volume      float64 `mapstructure:"volume" envconfig:"SOUND_VOLUME" default:"0.5"`
}

// NotificationConfig holds limits for the local notification view.
type NotificationConfig struct {
	UserID         string        `mapstructure:"user_id" envconfig:"NOTIFICATION_USER_ID"`
	MaxRetained    int           `mapstructure:"max_retained" envconfig:"NOTIFICATION_MAX_RETAINED" default:"50"`
	ToastDuration  time.Duration `mapstructure:"toast_duration" envconfig:"NOTIFICATION_TOAST_DURATION" default:"5s"`
	ToastStackSize int           `mapstructure:"toast_stack_size" envconfig:"NOTIFICATION_TOAST_STACK_SIZE" default:"5"`
}

// SimulatorConfig drives the simulated event source. An empty schedule
// disables it.
type SimulatorConfig struct {
	Schedule string `mapstructure:"schedule" envconfig:"SIMULATOR_SCHEDULE"`
}

// GatewayConfig holds push gateway settings. An empty key leaves the push
// endpoint open.
type GatewayConfig struct {
	PushAPIKey  string `mapstructure:"push_api_key" envconfig:"GATEWAY_PUSH_API_KEY"`
	MaxBodySize int64  `mapstructure:"max_body_size" envconfig:"GATEWAY_MAX_BODY_SIZE" default:"65536"`
}

// Load loads configuration from files and environment
func Load(serviceName string) (*Config, error) {
	var cfg Config

	cfg.Service.Name = serviceName
	cfg.Telemetry.ServiceName = serviceName

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("./configs/services/" + serviceName)
	v.AddConfigPath(".")

	// envconfig applies tag defaults for every unset variable, so it runs
	// first and the config file is layered on top of it.
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = serviceName
	}
	if cfg.Notification.MaxRetained <= 0 {
		cfg.Notification.MaxRetained = 50
	}

	if version := os.Getenv("VERSION"); version != "" {
		cfg.Version = version
	} else {
		cfg.Version = "dev"
	}

	return &cfg, nil
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
