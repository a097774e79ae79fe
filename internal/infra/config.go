package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации сервиса escrowd.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type GRPCConfig struct {
	Port int `mapstructure:"port"`
}

func (g GRPCConfig) Addr() string {
	return fmt.Sprintf(":%d", g.Port)
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
// Пустой URL отключает архив журнала и логин по паролю.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (снимок состояния и Pub/Sub событий).
// Пустой Addr отключает оба.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT.
type AuthConfig struct {
	// Enabled: роль берется из JWT. Иначе клиент объявляет роль заголовком X-Escrow-Role.
	Enabled        bool          `mapstructure:"enabled"`
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	PublicKey      []byte
	PrivateKey     []byte
}

// EngineConfig содержит настройки контроллера и его фоновых воркеров.
type EngineConfig struct {
	AuditBufferSize    int           `mapstructure:"audit_buffer_size"`
	AuditBatchSize     int           `mapstructure:"audit_batch_size"`
	AuditFlushInterval time.Duration `mapstructure:"audit_flush_interval"`
	EventBufferSize    int           `mapstructure:"event_buffer_size"`

	// Настройки Circuit Breaker для исходящих записей в Redis/Postgres
	CBFailures    uint32        `mapstructure:"cb_failures"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	RetryAttempts uint          `mapstructure:"retry_attempts"`
	CallTimeout   time.Duration `mapstructure:"call_timeout"`

	// Лимит мутирующих HTTP запросов в секунду (0 — без лимита)
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`

	// Фондирование выше порога помечается анализатором рисков (0 — выключено)
	HighValueThreshold string `mapstructure:"high_value_threshold"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	return loadConfig(viper.New())
}

func loadConfig(v *viper.Viper) (*Config, error) {

	// 1. Настройка поиска файла
	v.SetConfigName("config")    // имя файла без расширения
	v.SetConfigType("yaml")      // формат
	v.AddConfigPath(".")         // ищем в корне
	v.AddConfigPath("./configs") // и в папке с конфигами

	// 2. Настройка переменных окружения (ENV)
	// Позволяет перекрывать конфиг: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Установка дефолтных значений
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет — работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Загрузка ключей из Файла ИЛИ из ENV
	// Сначала проверяем, не лежит ли сам PEM-ключ в ENV (для Docker/K8s)
	// Если нет — читаем файл по указанному пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate отсекает конфигурации, с которыми сервис заведомо не поднимется
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server.port %d", c.Server.Port)
	}
	if c.GRPC.Port < 0 || c.GRPC.Port > 65535 {
		return fmt.Errorf("config: invalid grpc.port %d", c.GRPC.Port)
	}
	if c.Auth.Enabled && len(c.Auth.PublicKey) == 0 {
		return errors.New("config: auth.enabled requires a public key (auth.public_key_path or AUTH_PUBLIC_KEY_DATA)")
	}
	switch c.Logger.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("config: unknown logger.format %q", c.Logger.Format)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("grpc.port", 50052)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.public_key_path", "")
	v.SetDefault("auth.private_key_path", "")
	v.SetDefault("auth.token_ttl", 8*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("engine.audit_buffer_size", 1000)
	v.SetDefault("engine.audit_batch_size", 100)
	v.SetDefault("engine.audit_flush_interval", 500*time.Millisecond)
	v.SetDefault("engine.event_buffer_size", 1024)
	v.SetDefault("engine.cb_failures", 5)
	v.SetDefault("engine.cb_timeout", 30*time.Second)
	v.SetDefault("engine.retry_attempts", 3)
	v.SetDefault("engine.call_timeout", 5*time.Second)
	v.SetDefault("engine.rate_limit", 50)
	v.SetDefault("engine.rate_burst", 20)
	v.SetDefault("engine.high_value_threshold", "100")
}

// loadKeyResource — универсальный хелпер архитектора
func loadKeyResource(path string, envDataKey string) []byte {
	// Если ключ прилетел напрямую в ENV (Base64 или PEM)
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	// Иначе читаем файл по пути из конфига
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
