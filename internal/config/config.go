package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix — префикс переменных окружения, переопределяющих файл конфигурации
const EnvPrefix = "CAFE"

// DefaultPath используется, если CONFIG_PATH не задан
const DefaultPath = "config/config.yaml"

// Config определяет структуру конфигурации всего приложения целиком
// поля не встроены, иначе у envconfig совпадут ключи (CAFE_POSTGRES_PORT и CAFE_HTTP_SERVER_PORT)
// envconfig-теги не ставим: с ними envconfig читает ещё и переменную без префикса ($USER, $PORT)
type Config struct {
	HTTPServer HTTPServer `yaml:"http_server" split_words:"true"`
	Postgres   Postgres   `yaml:"postgres" split_words:"true"`
	Kafka      Kafka      `yaml:"kafka" split_words:"true"`
	Logger     Logger     `yaml:"logger" split_words:"true"`
	Client     Client     `yaml:"client" split_words:"true"`
}

// HTTPServer содержит конфигурацию для HTTP-сервера
type HTTPServer struct {
	Port    string        `yaml:"port" split_words:"true"`
	Timeout time.Duration `yaml:"timeout" split_words:"true"`
}

// Postgres содержит конфигурацию для подключения к базе данных
type Postgres struct {
	User     string `yaml:"user" split_words:"true"`
	Password string `yaml:"password" split_words:"true"`
	Host     string `yaml:"host" split_words:"true"`
	Port     string `yaml:"port" split_words:"true"`
	DBName   string `yaml:"db_name" split_words:"true"`
	SSLMode  string `yaml:"ssl_mode" split_words:"true"`
}

// Kafka содержит конфигурацию для подключения к кафке
// пустой список брокеров отключает и приём заказов, и публикацию событий
type Kafka struct {
	Brokers     []string `yaml:"brokers" split_words:"true"`
	IntakeTopic string   `yaml:"intake_topic" split_words:"true"`
	EventsTopic string   `yaml:"events_topic" split_words:"true"`
	GroupID     string   `yaml:"group_id" split_words:"true"`
}

// Enabled — кафка настроена
func (k Kafka) Enabled() bool {
	return len(k.Brokers) > 0
}

// Logger содержит конфигурацию для логгера
type Logger struct {
	Level  string `yaml:"level" split_words:"true"`
	Format string `yaml:"format" split_words:"true"`
}

// Client — настройки cafectl
type Client struct {
	APIURL       string        `yaml:"api_url" split_words:"true"`
	Timeout      time.Duration `yaml:"timeout" split_words:"true"`
	StateDir     string        `yaml:"state_dir" split_words:"true"`
	PollInterval time.Duration `yaml:"poll_interval" split_words:"true"`
}

// Default возвращает конфигурацию со значениями по умолчанию
func Default() Config {
	return Config{
		HTTPServer: HTTPServer{
			Port:    ":8080",
			Timeout: 10 * time.Second,
		},
		Postgres: Postgres{
			Host:    "localhost",
			Port:    "5432",
			SSLMode: "disable",
		},
		Kafka: Kafka{
			IntakeTopic: "order-intake",
			EventsTopic: "order-events",
			GroupID:     "cafe-order-service",
		},
		Logger: Logger{
			Level:  "info",
			Format: "text",
		},
		Client: Client{
			APIURL:       "http://localhost:8080",
			Timeout:      30 * time.Second,
			StateDir:     ".cafectl",
			PollInterval: 5 * time.Second,
		},
	}
}

// Path возвращает путь к файлу конфигурации из CONFIG_PATH или путь по умолчанию
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

// Load читает YAML поверх значений по умолчанию, затем применяет переменные CAFE_*
func Load(configPath string) (*Config, error) {
	const op = "config.Load"

	if configPath == "" {
		return nil, fmt.Errorf("%s: config path is empty", op)
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: config file does not exist: %s", op, configPath)
		}
		return nil, fmt.Errorf("%s: failed to read config file: %w", op, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(file, &cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to unmarshal config: %w", op, err)
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to apply env overrides: %w", op, err)
	}

	return &cfg, nil
}

// MustLoad загружает конфигурацию из файла по указанному пути
// в случае ошибки программа завершается с фатальной ошибкой
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}
