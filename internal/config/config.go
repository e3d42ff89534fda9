package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит конфигурацию приложения
type Config struct {
	Environment string
	Server      ServerConfig
	Redis       RedisConfig
	MQTT        MQTTConfig
	MySQL       MySQLConfig
	Engine      EngineConfig
	Monitoring  MonitoringConfig
	Auth        AuthConfig
	Log         LogConfig
}

// ServerConfig конфигурация HTTP сервера
type ServerConfig struct {
	Address      string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	RateLimit    float64
	RateBurst    int

	WebSocketPingInterval time.Duration
	WebSocketPongTimeout  time.Duration
}

// RedisConfig конфигурация Redis
type RedisConfig struct {
	URL          string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	CacheSize    int
	// GeohashPrecision точность ключей индекса путевых точек
	GeohashPrecision uint
}

// MQTTConfig конфигурация MQTT
type MQTTConfig struct {
	Enabled      bool
	URL          string
	ClientID     string
	Username     string
	Password     string
	CleanSession bool
	OrderMatters bool
	// FixTopic топик с отсчетами воздушного судна, допускает шаблоны
	FixTopic string
}

// MySQLConfig конфигурация MySQL для архива результатов
type MySQLConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// EngineConfig параметры навигационного вычислителя
type EngineConfig struct {
	TaskType string

	// поляра: снижение S(V) = A*V^2 + B*V + C
	PolarA          float64
	PolarB          float64
	PolarC          float64
	ReferenceMass   float64
	DryMass         float64
	BallastCapacity float64
	MC              float64
	Bugs            float64
	Ballast         float64

	SafetyHeight float64
	SafetyMC     float64
	RiskGamma    float64

	StartMaxHeight  float64
	StartMaxSpeed   float64
	FinishMinHeight float64
	AATMinTime      time.Duration

	AutoMC             bool
	AutoMCMode         string
	AbortMode          string
	AdvanceMode        string
	MinSearchThreshold float64

	OptimiseTargetsRange   bool
	OptimiseTargetsBearing bool
	IdleInterval           time.Duration

	// TrackDevice устройство, чьи отсчеты принимаются; пусто - первое увиденное
	TrackDevice   string
	MaxFixSpeed   float64 // м/с, отсчеты с большей скоростью перемещения отбрасываются
	ReorderWindow time.Duration
}

// MonitoringConfig конфигурация мониторинга
type MonitoringConfig struct {
	MetricsEnabled bool
	MetricsPath    string
}

// AuthConfig проверка токенов операторов для команд вычислителю
type AuthConfig struct {
	Enabled  bool
	Endpoint string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// LogConfig вывод логов
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Address:               getEnv("SERVER_ADDRESS", ":8090"),
			Port:                  getEnv("SERVER_PORT", "8090"),
			ReadTimeout:           getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:          getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:           getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			RateLimit:             getFloat("SERVER_RATE_LIMIT", 100),
			RateBurst:             getInt("SERVER_RATE_BURST", 200),
			WebSocketPingInterval: getDuration("WEBSOCKET_PING_INTERVAL", 30*time.Second),
			WebSocketPongTimeout:  getDuration("WEBSOCKET_PONG_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			URL:              getEnv("REDIS_URL", "redis://localhost:6379"),
			Password:         getEnv("REDIS_PASSWORD", ""),
			DB:               getInt("REDIS_DB", 0),
			PoolSize:         getInt("REDIS_POOL_SIZE", 20),
			MinIdleConns:     getInt("REDIS_MIN_IDLE_CONNS", 2),
			CacheSize:        getInt("REDIS_TASK_CACHE_SIZE", 128),
			GeohashPrecision: uint(getInt("GEOHASH_PRECISION", 5)),
		},
		MQTT: MQTTConfig{
			Enabled:      getBool("MQTT_ENABLED", true),
			URL:          getEnv("MQTT_URL", "tcp://localhost:1883"),
			ClientID:     getEnv("MQTT_CLIENT_ID", "taskengine"),
			Username:     getEnv("MQTT_USERNAME", ""),
			Password:     getEnv("MQTT_PASSWORD", ""),
			CleanSession: getBool("MQTT_CLEAN_SESSION", true),
			OrderMatters: getBool("MQTT_ORDER_MATTERS", true),
			FixTopic:     getEnv("MQTT_FIX_TOPIC", "taskengine/+/fix"),
		},
		MySQL: MySQLConfig{
			DSN:             getEnv("MYSQL_DSN", ""),
			MaxIdleConns:    getInt("MYSQL_MAX_IDLE_CONNS", 2),
			MaxOpenConns:    getInt("MYSQL_MAX_OPEN_CONNS", 10),
			ConnMaxLifetime: getDuration("MYSQL_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Engine: EngineConfig{
			TaskType:               getEnv("TASK_TYPE", "racing"),
			PolarA:                 getFloat("POLAR_A", 0.003136),
			PolarB:                 getFloat("POLAR_B", -0.1568),
			PolarC:                 getFloat("POLAR_C", 2.46),
			ReferenceMass:          getFloat("POLAR_REFERENCE_MASS", 0),
			DryMass:                getFloat("POLAR_DRY_MASS", 0),
			BallastCapacity:        getFloat("POLAR_BALLAST_CAPACITY", 0),
			MC:                     getFloat("MC", 0),
			Bugs:                   getFloat("BUGS", 1),
			Ballast:                getFloat("BALLAST", 0),
			SafetyHeight:           getFloat("SAFETY_HEIGHT_ARRIVAL", 300),
			SafetyMC:               getFloat("SAFETY_MC", 0.5),
			RiskGamma:              getFloat("RISK_GAMMA", 0),
			StartMaxHeight:         getFloat("START_MAX_HEIGHT", 0),
			StartMaxSpeed:          getFloat("START_MAX_SPEED", 0),
			FinishMinHeight:        getFloat("FINISH_MIN_HEIGHT", 0),
			AATMinTime:             getDuration("AAT_MIN_TIME", 3*time.Hour),
			AutoMC:                 getBool("AUTO_MC", false),
			AutoMCMode:             getEnv("AUTO_MC_MODE", "both"),
			AbortMode:              getEnv("ABORT_MODE", "simple"),
			AdvanceMode:            getEnv("ADVANCE_MODE", "auto"),
			MinSearchThreshold:     getFloat("MIN_SEARCH_THRESHOLD", 1),
			OptimiseTargetsRange:   getBool("OPTIMISE_TARGETS_RANGE", true),
			OptimiseTargetsBearing: getBool("OPTIMISE_TARGETS_BEARING", true),
			IdleInterval:           getDuration("IDLE_INTERVAL", 5*time.Second),
			TrackDevice:            getEnv("TRACK_DEVICE", ""),
			MaxFixSpeed:            getFloat("MAX_FIX_SPEED", 150),
			ReorderWindow:          getDuration("REORDER_WINDOW", 2*time.Second),
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled: getBool("METRICS_ENABLED", true),
			MetricsPath:    getEnv("METRICS_PATH", "/metrics"),
		},
		Auth: AuthConfig{
			Enabled:  getBool("AUTH_ENABLED", false),
			Endpoint: getEnv("AUTH_ENDPOINT", ""),
			Timeout:  getDuration("AUTH_TIMEOUT", 5*time.Second),
			CacheTTL: getDuration("AUTH_CACHE_TTL", 10*time.Minute),
		},
		Log: LogConfig{
			Level:      LogLevel(),
			Format:     LogFormat(),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getInt("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getInt("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: getInt("LOG_MAX_AGE_DAYS", 28),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst <= 0 {
		return fmt.Errorf("SERVER_RATE_LIMIT and SERVER_RATE_BURST must be positive")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Redis.GeohashPrecision < 1 || c.Redis.GeohashPrecision > 12 {
		return fmt.Errorf("GEOHASH_PRECISION must be between 1 and 12")
	}

	if c.MQTT.Enabled && c.MQTT.URL == "" {
		return fmt.Errorf("MQTT_URL is required")
	}

	if c.Auth.Enabled && c.Auth.Endpoint == "" {
		return fmt.Errorf("AUTH_ENDPOINT is required when AUTH_ENABLED is set")
	}

	return c.Engine.Validate()
}

// Validate проверяет параметры вычислителя
func (e *EngineConfig) Validate() error {
	if e.PolarA <= 0 || e.PolarB >= 0 || e.PolarC <= 0 {
		return fmt.Errorf("invalid polar coefficients a=%f b=%f c=%f", e.PolarA, e.PolarB, e.PolarC)
	}
	if e.MC < 0 || e.SafetyMC < 0 {
		return fmt.Errorf("MC and SAFETY_MC must be non-negative")
	}
	if e.Bugs <= 0 || e.Bugs > 1 {
		return fmt.Errorf("BUGS must be in (0, 1]")
	}
	if e.Ballast < 0 || e.Ballast > 1 {
		return fmt.Errorf("BALLAST must be in [0, 1]")
	}
	if e.RiskGamma < 0 || e.RiskGamma > 1 {
		return fmt.Errorf("RISK_GAMMA must be in [0, 1]")
	}
	if e.MinSearchThreshold < 0 {
		return fmt.Errorf("MIN_SEARCH_THRESHOLD must be non-negative")
	}
	if e.IdleInterval <= 0 {
		return fmt.Errorf("IDLE_INTERVAL must be positive")
	}
	if e.MaxFixSpeed <= 0 {
		return fmt.Errorf("MAX_FIX_SPEED must be positive")
	}
	return nil
}

// Helper функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// LogLevel возвращает уровень логирования
func LogLevel() string {
	return getEnv("LOG_LEVEL", "info")
}

// LogFormat возвращает формат логирования
func LogFormat() string {
	return getEnv("LOG_FORMAT", "json")
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func IsDevelopment() bool {
	return getEnv("ENVIRONMENT", "development") == "development"
}
