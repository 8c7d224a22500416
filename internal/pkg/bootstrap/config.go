package bootstrap

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"ordersaga/internal/pkg/mq"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Infra        InfraConfig        `yaml:"infra"`
	Saga         SagaConfig         `yaml:"saga"`
	Payment      PaymentConfig      `yaml:"payment"`
	Notification NotificationConfig `yaml:"notification"`
}

type AppConfig struct {
	Name      string `yaml:"name"`
	Env       string `yaml:"env"`
	HTTPAddr  string `yaml:"http_addr"`
	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`
}

type InfraConfig struct {
	Kafka     KafkaConfig     `yaml:"kafka"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	// Topics overrides the topic of an event type, e.g. order.created: shop.order.created.
	Topics map[string]string `yaml:"topics"`
	// Groups overrides the consumer group of a stage, e.g. coupon: shop.coupon.
	Groups      map[string]string `yaml:"groups"`
	DLTTopic    string            `yaml:"dlt_topic"`
	DLTGroup    string            `yaml:"dlt_group"`
	PollTimeout time.Duration     `yaml:"poll_timeout"`
	SendTimeout time.Duration     `yaml:"send_timeout"`
}

// Group returns the consumer group of stage, ecommerce.<stage>.service unless
// overridden.
func (k KafkaConfig) Group(stage string) string {
	if g, ok := k.Groups[stage]; ok && g != "" {
		return g
	}
	return "ecommerce." + stage + ".service"
}

type MySQLConfig struct {
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
	MaxOpenConn int    `yaml:"max_open_conns"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type SagaConfig struct {
	// Stages lists the stage workers to run in this process.
	Stages            []string       `yaml:"stages"`
	Store             string         `yaml:"store"`  // memory | mysql
	Bus               string         `yaml:"bus"`    // memory | kafka
	Locker            string         `yaml:"locker"` // memory | redis | zookeeper
	LockTTL           time.Duration  `yaml:"lock_ttl"`
	ProcessingTimeout time.Duration  `yaml:"processing_timeout"`
	Currency          string         `yaml:"currency"`
	Retry             mq.RetryConfig `yaml:"retry"`
}

type PaymentConfig struct {
	Driver   string        `yaml:"driver"` // mock | http
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
	// DeclineMethods makes the mock gateway reject these payment methods.
	DeclineMethods []string `yaml:"decline_methods"`
}

type NotificationConfig struct {
	Driver string `yaml:"driver"` // log | kafka
	Topic  string `yaml:"topic"`
}

// AllStages is the full set of stage workers.
var AllStages = []string{"coupon", "inventory", "payment", "notification", "failure"}

func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{Name: "saga-worker", Env: "local", HTTPAddr: ":8080", LogLevel: "info"},
		Infra: InfraConfig{
			Kafka: KafkaConfig{
				Brokers:     []string{"localhost:9092"},
				DLTTopic:    "order.saga.dlt",
				DLTGroup:    "ecommerce.dlt.monitor",
				PollTimeout: time.Second,
				SendTimeout: 10 * time.Second,
			},
			MySQL:     MySQLConfig{DSN: "root:root@tcp(localhost:3306)/ecommerce?charset=utf8mb4&parseTime=True&loc=UTC", AutoMigrate: true, MaxOpenConn: 20},
			Redis:     RedisConfig{Addr: "localhost:6379"},
			Zookeeper: ZookeeperConfig{Servers: []string{"localhost:2181"}, SessionTimeout: 10 * time.Second},
		},
		Saga: SagaConfig{
			Stages:            append([]string(nil), AllStages...),
			Store:             "memory",
			Bus:               "memory",
			Locker:            "memory",
			LockTTL:           time.Minute,
			ProcessingTimeout: 30 * time.Second,
			Currency:          "KRW",
			Retry:             mq.DefaultRetryConfig(),
		},
		Payment:      PaymentConfig{Driver: "mock", Timeout: 10 * time.Second},
		Notification: NotificationConfig{Driver: "log", Topic: "notifications"},
	}
}

var (
	currentConfig *Config
	configMu      sync.RWMutex
)

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	currentConfig = cfg
	configMu.Unlock()
	return cfg, nil
}

// GetCurrentConfig returns the last loaded config, or the defaults.
func GetCurrentConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	if currentConfig == nil {
		return DefaultConfig()
	}
	return currentConfig
}

func (c *Config) Validate() error {
	known := map[string]bool{}
	for _, s := range AllStages {
		known[s] = true
	}
	for _, s := range c.Saga.Stages {
		if !known[s] {
			return fmt.Errorf("config: unknown stage %q", s)
		}
	}
	switch c.Saga.Locker {
	case "memory", "redis", "zookeeper":
	default:
		return fmt.Errorf("config: unknown locker %q", c.Saga.Locker)
	}
	switch c.Saga.Store {
	case "memory", "mysql":
	default:
		return fmt.Errorf("config: unknown store %q", c.Saga.Store)
	}
	switch c.Saga.Bus {
	case "memory", "kafka":
	default:
		return fmt.Errorf("config: unknown bus %q", c.Saga.Bus)
	}
	if c.Saga.Bus == "memory" && c.Saga.Store == "mysql" {
		return fmt.Errorf("config: the memory bus only works inside one process, use kafka with mysql")
	}
	if c.Saga.ProcessingTimeout <= 0 {
		return fmt.Errorf("config: saga processing_timeout must be positive")
	}
	if c.Saga.LockTTL <= c.Saga.ProcessingTimeout {
		return fmt.Errorf("config: saga lock_ttl (%s) must exceed processing_timeout (%s)", c.Saga.LockTTL, c.Saga.ProcessingTimeout)
	}
	if c.Infra.Kafka.PollTimeout <= 0 {
		return fmt.Errorf("config: kafka poll_timeout must be positive")
	}
	return nil
}

// topicEnvKeys are the event types whose topic can be overridden with
// KAFKA_TOPIC_<TYPE>, dots replaced by underscores.
var topicEnvKeys = []string{
	"order.created",
	"order.coupon.applied", "order.coupon.failed",
	"order.inventory.deducted", "order.inventory.failed",
	"order.payment.completed", "order.payment.failed",
}

func applyEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.HTTPAddr = getEnv("HTTP_ADDR", cfg.App.HTTPAddr)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)

	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		cfg.Infra.Kafka.Brokers = splitList(v)
	}
	cfg.Infra.Kafka.DLTTopic = getEnv("KAFKA_DLT_TOPIC", cfg.Infra.Kafka.DLTTopic)
	for _, t := range topicEnvKeys {
		key := "KAFKA_TOPIC_" + strings.ToUpper(strings.ReplaceAll(t, ".", "_"))
		if v := getEnv(key, ""); v != "" {
			if cfg.Infra.Kafka.Topics == nil {
				cfg.Infra.Kafka.Topics = map[string]string{}
			}
			cfg.Infra.Kafka.Topics[t] = v
		}
	}
	for _, s := range AllStages {
		if v := getEnv("KAFKA_GROUP_"+strings.ToUpper(s), ""); v != "" {
			if cfg.Infra.Kafka.Groups == nil {
				cfg.Infra.Kafka.Groups = map[string]string{}
			}
			cfg.Infra.Kafka.Groups[s] = v
		}
	}

	cfg.Infra.MySQL.DSN = getEnv("MYSQL_DSN", cfg.Infra.MySQL.DSN)
	cfg.Infra.Redis.Addr = getEnv("REDIS_ADDR", cfg.Infra.Redis.Addr)
	cfg.Infra.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Infra.Redis.Password)
	if v := getEnv("ZK_SERVERS", ""); v != "" {
		cfg.Infra.Zookeeper.Servers = splitList(v)
	}
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)

	if v := getEnv("STAGES", ""); v != "" {
		cfg.Saga.Stages = splitList(v)
	}
	cfg.Saga.Store = getEnv("STORE", cfg.Saga.Store)
	cfg.Saga.Bus = getEnv("BUS", cfg.Saga.Bus)
	cfg.Saga.Locker = getEnv("LOCKER", cfg.Saga.Locker)
	cfg.Saga.Currency = getEnv("CURRENCY", cfg.Saga.Currency)

	cfg.Payment.Driver = getEnv("PAYMENT_DRIVER", cfg.Payment.Driver)
	cfg.Payment.Endpoint = getEnv("PAYMENT_ENDPOINT", cfg.Payment.Endpoint)
	cfg.Payment.APIKey = getEnv("PAYMENT_API_KEY", cfg.Payment.APIKey)
	cfg.Notification.Driver = getEnv("NOTIFICATION_DRIVER", cfg.Notification.Driver)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv reads key from the environment, falling back when unset.
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
