// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config 是所有服务共享的配置结构，按需读取自己关心的部分
type Config struct {
	App    AppConfig    `yaml:"app"`
	Infra  InfraConfig  `yaml:"infra"`
	Sale   SaleConfig   `yaml:"sale"`
	Wallet WalletConfig `yaml:"wallet"`
}

type AppConfig struct {
	Name     string `yaml:"name"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"logLevel"`
}

type InfraConfig struct {
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Nacos     NacosConfig     `yaml:"nacos"`
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// NacosConfig 中 ServerAddrs 为空表示不注册、不做服务发现
type NacosConfig struct {
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

type MySQLConfig struct {
	DSN          string `yaml:"dsn"`
	Addr         string `yaml:"addr"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	MaxOpenConns int    `yaml:"maxOpenConns"`
	MaxIdleConns int    `yaml:"maxIdleConns"`
}

// FormatDSN 优先使用显式 DSN，否则由各字段拼出来
func (c MySQLConfig) FormatDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = c.Addr
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

type RedisConfig struct {
	Addrs    []string      `yaml:"addrs"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lockTTL"`
}

type KafkaConfig struct {
	Brokers          []string `yaml:"brokers"`
	OrderEventsTopic string   `yaml:"orderEventsTopic"`
}

type ZookeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	LockRoot       string        `yaml:"lockRoot"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
}

// SaleConfig 是销售服务自己的配置
type SaleConfig struct {
	StoreDriver         string        `yaml:"storeDriver"` // mysql | memory
	LockBackend         string        `yaml:"lockBackend"` // memory | redis | zookeeper
	WalletURL           string        `yaml:"walletURL"`
	WalletService       string        `yaml:"walletService"` // 配置了 nacos 时按服务名发现
	DestinationURL      string        `yaml:"destinationURL"`
	DestinationService  string        `yaml:"destinationService"`
	RemoteTimeout       time.Duration `yaml:"remoteTimeout"`
	CompensationTimeout time.Duration `yaml:"compensationTimeout"`
	PublishTimeout      time.Duration `yaml:"publishTimeout"`
	// Policy 按操作名覆盖默认授权表达式（CEL）
	Policy map[string]string `yaml:"policy"`
}

type WalletConfig struct {
	StoreDriver string `yaml:"storeDriver"`
}

var currentConfig atomic.Pointer[Config]

// Init 加载配置文件并应用环境变量覆盖。文件不存在时使用默认值。
func Init(serviceName string) {
	path := getEnv("CONFIG_PATH", fmt.Sprintf("configs/%s.yaml", serviceName))
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("FATAL: load config %s: %v", path, err))
	}
	if cfg.App.Name == "" {
		cfg.App.Name = serviceName
	}
	currentConfig.Store(cfg)
}

// GetCurrentConfig 返回当前生效的配置；未 Init 时返回默认配置
func GetCurrentConfig() *Config {
	if cfg := currentConfig.Load(); cfg != nil {
		return cfg
	}
	cfg := defaultConfig()
	applyEnv(cfg)
	return cfg
}

// Load 读取 YAML 配置，然后用环境变量覆盖
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse %s", path)
		}
	case os.IsNotExist(err):
	default:
		return nil, errors.Wrapf(err, "read %s", path)
	}
	applyEnv(cfg)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{Port: 8080, LogLevel: "info"},
		Infra: InfraConfig{
			Nacos:     NacosConfig{Group: "DEFAULT_GROUP"},
			MySQL:     MySQLConfig{MaxOpenConns: 20, MaxIdleConns: 5},
			Redis:     RedisConfig{LockTTL: 30 * time.Second},
			Kafka:     KafkaConfig{OrderEventsTopic: "sale-order-events"},
			Zookeeper: ZookeeperConfig{LockRoot: "/sale/locks", SessionTimeout: 10 * time.Second},
		},
		Sale: SaleConfig{
			StoreDriver:         "mysql",
			LockBackend:         "memory",
			WalletService:       "wallet-service",
			DestinationService:  "home-service",
			RemoteTimeout:       5 * time.Second,
			CompensationTimeout: 10 * time.Second,
			PublishTimeout:      2 * time.Second,
		},
		Wallet: WalletConfig{StoreDriver: "mysql"},
	}
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("APP_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.App.Port = port
		}
	}
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.Infra.MySQL.DSN = getEnv("MYSQL_DSN", cfg.Infra.MySQL.DSN)
	cfg.Infra.Redis.Addrs = getEnvList("REDIS_ADDRS", cfg.Infra.Redis.Addrs)
	cfg.Infra.Kafka.Brokers = getEnvList("KAFKA_BROKERS", cfg.Infra.Kafka.Brokers)
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	cfg.Infra.Nacos.ServerAddrs = getEnv("NACOS_SERVER_ADDRS", cfg.Infra.Nacos.ServerAddrs)
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	cfg.Infra.Nacos.Group = getEnv("NACOS_GROUP", cfg.Infra.Nacos.Group)
	cfg.Infra.Zookeeper.Servers = getEnvList("ZK_SERVERS", cfg.Infra.Zookeeper.Servers)
	cfg.Sale.LockBackend = getEnv("LOCK_BACKEND", cfg.Sale.LockBackend)
	cfg.Sale.StoreDriver = getEnv("STORE_DRIVER", cfg.Sale.StoreDriver)
	cfg.Wallet.StoreDriver = getEnv("STORE_DRIVER", cfg.Wallet.StoreDriver)
	cfg.Sale.WalletURL = getEnv("WALLET_URL", cfg.Sale.WalletURL)
	cfg.Sale.DestinationURL = getEnv("DESTINATION_URL", cfg.Sale.DestinationURL)
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvList 读取逗号分隔的列表
func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
