// config описывает конфигурацию auth-сервиса и загружает её из YAML
// и переменных окружения с предсказуемым приоритетом.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Драйверы хранилищ.
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Границы cost bcrypt.
const (
	MinBcryptCost = 10
	MaxBcryptCost = 31
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. ./local.yaml;
//  4. только переменные окружения.
//
// Переменные окружения всегда накладываются поверх YAML.
type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Auth     AuthConfig     `yaml:"auth"`
	Identity IdentityConfig `yaml:"identity"`
	Storage  StorageConfig  `yaml:"storage"`
	DB       DBConfig       `yaml:"db"`
	Redis    RedisConfig    `yaml:"redis"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
	Janitor  JanitorConfig  `yaml:"janitor"`
}

// HTTPConfig — адрес HTTP API и служебных ручек (/livez, /healthz, /metrics).
type HTTPConfig struct {
	Host     string `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	BasePath string `yaml:"base_path" env:"HTTP_BASE_PATH" env-default:""`
}

// GRPCConfig — адрес gRPC health-сервера.
type GRPCConfig struct {
	Host string `yaml:"host" env:"GRPC_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"GRPC_PORT" env-default:"50051"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// Addr возвращает адрес в формате host:port.
func (g GRPCConfig) Addr() string {
	return net.JoinHostPort(g.Host, g.Port)
}

// AuthConfig — параметры выпуска токенов и хэширования refresh-секретов.
type AuthConfig struct {
	AccessSecret    string        `yaml:"access_secret" env:"ACCESS_TOKEN_SECRET" env-required:"true"`
	RefreshSecret   string        `yaml:"refresh_secret" env:"REFRESH_TOKEN_SECRET" env-required:"true"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"720h"`
	Issuer          string        `yaml:"issuer" env:"TOKEN_ISSUER" env-default:"goal-tracker"`
	Audience        string        `yaml:"audience" env:"TOKEN_AUDIENCE" env-default:""`
	BcryptCost      int           `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"12"`
	// HashWorkers — число одновременных bcrypt-вычислений; 0 — GOMAXPROCS.
	HashWorkers int `yaml:"hash_workers" env:"HASH_WORKERS" env-default:"0"`
}

// IdentityConfig — проверка Sign in with Apple.
type IdentityConfig struct {
	Issuer    string   `yaml:"issuer" env:"IDENTITY_ISSUER" env-default:"https://appleid.apple.com"`
	ClientIDs []string `yaml:"client_ids" env:"IDENTITY_CLIENT_IDS" env-required:"true"`
	// Обмен authorization code; выключен, если TokenURL пуст.
	ClientSecret string `yaml:"client_secret" env:"IDENTITY_CLIENT_SECRET"`
	TokenURL     string `yaml:"token_url" env:"IDENTITY_TOKEN_URL"`
	RedirectURL  string `yaml:"redirect_url" env:"IDENTITY_REDIRECT_URL"`
}

// StorageConfig — выбор хранилищ пользователей и сессий.
type StorageConfig struct {
	Driver   string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"postgres"`
	Sessions string `yaml:"sessions" env:"SESSIONS_DRIVER" env-default:"postgres"`
}

// DBConfig — подключение к Postgres.
type DBConfig struct {
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL"`
	Migrate     bool   `yaml:"migrate" env:"DB_MIGRATE"`
}

// RedisConfig — подключение к Redis (хранилище сессий).
type RedisConfig struct {
	RedisURL  string `yaml:"redis_url" env:"REDIS_URL"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"auth:"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Service time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
}

// JanitorConfig — периодическая очистка истёкших сессий.
type JanitorConfig struct {
	Period time.Duration `yaml:"period" env:"JANITOR_PERIOD" env-default:"30m"`
}

// Validate проверяет согласованность значений, которые не выражаются тегами.
func (c *Config) Validate() error {
	var errs []error

	if c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "" {
		errs = append(errs, errors.New("auth: access and refresh secrets are required"))
	} else if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		errs = append(errs, errors.New("auth: access and refresh secrets must differ"))
	}

	if c.Auth.BcryptCost < MinBcryptCost || c.Auth.BcryptCost > MaxBcryptCost {
		errs = append(errs, fmt.Errorf("auth: bcrypt_cost %d out of range [%d, %d]", c.Auth.BcryptCost, MinBcryptCost, MaxBcryptCost))
	}

	// Таймаут запроса должен перекрывать латентность bcrypt.
	if c.Timeouts.Service < time.Second {
		errs = append(errs, fmt.Errorf("timeouts: service %s is below 1s", c.Timeouts.Service))
	}

	if len(c.Identity.ClientIDs) == 0 {
		errs = append(errs, errors.New("identity: client_ids are required"))
	}

	switch c.Storage.Driver {
	case DriverPostgres:
		if c.DB.DatabaseURL == "" {
			errs = append(errs, errors.New("db: db_url is required for postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("storage: unknown driver %q", c.Storage.Driver))
	}

	switch c.Storage.Sessions {
	case DriverPostgres:
		if c.Storage.Driver != DriverPostgres {
			errs = append(errs, errors.New("storage: postgres sessions require postgres driver"))
		}
	case DriverRedis:
		if c.Redis.RedisURL == "" {
			errs = append(errs, errors.New("redis: redis_url is required for redis sessions"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("storage: unknown sessions driver %q", c.Storage.Sessions))
	}

	return errors.Join(errs...)
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает и проверяет конфигурацию:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func read(path string) (*Config, error) {
	if path != "" {
		return readFile(path)
	}

	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return readFile(envPath)
	}

	if _, err := os.Stat("local.yaml"); err == nil {
		return readFile("local.yaml")
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, nil
}

// readFile читает YAML и накладывает поверх него ENV.
func readFile(p string) (*Config, error) {
	if _, err := os.Stat(p); err != nil {
		return nil, fmt.Errorf("config file %q does not exist: %w", p, err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(p, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", p, err)
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to overlay env: %w", err)
	}

	return &cfg, nil
}
