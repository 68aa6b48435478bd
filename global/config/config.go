package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	errs "PPGateway/tools/errs"

	"gopkg.in/yaml.v3"
)

const (
	BrokerNats  = "nats"
	BrokerKafka = "kafka"
	BrokerNone  = "none" // log only, for local development
)

type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Alg    string        `yaml:"alg"`
	Leeway time.Duration `yaml:"leeway"`
}

type WSConfig struct {
	SendQueue       int           `yaml:"sendQueue"`    // 每连接发送队列长度
	PingInterval    time.Duration `yaml:"pingInterval"` // 心跳间隔
	PongWait        time.Duration `yaml:"pongWait"`     // 超过未收到 pong 即断开
	WriteWait       time.Duration `yaml:"writeWait"`
	MaxMessageBytes int64         `yaml:"maxMessageBytes"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"` // 空 = 不校验
}

type RoomConfig struct {
	GroupPageSize  int           `yaml:"groupPageSize"` // 连接时预加入的群数量上限
	PreJoinTimeout time.Duration `yaml:"preJoinTimeout"`
}

type NotifyConfig struct {
	Broker         string        `yaml:"broker"` // nats / kafka / none
	ResolveTimeout time.Duration `yaml:"resolveTimeout"`
	ProfileTimeout time.Duration `yaml:"profileTimeout"`
	PublishTimeout time.Duration `yaml:"publishTimeout"`
}

type NatsConfig struct {
	Servers   []string      `yaml:"servers"`
	Name      string        `yaml:"name"`
	User      string        `yaml:"user"`
	Password  string        `yaml:"password"`
	JetStream bool          `yaml:"jetStream"`
	Retries   int           `yaml:"retries"`
	Backoff   time.Duration `yaml:"backoff"`
}

type KafkaConfig struct {
	Brokers     []string `yaml:"brokers"`
	Retries     int      `yaml:"retries"`
	Compression string   `yaml:"compression"` // none/snappy/lz4/zstd
	Version     string   `yaml:"version"`
}

type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"poolSize"`
	PresenceTTL time.Duration `yaml:"presenceTTL"`
}

type MongoConfig struct {
	URI         string `yaml:"uri"`
	Database    string `yaml:"database"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	MaxPoolSize int    `yaml:"maxPoolSize"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type NacosConfig struct {
	Addr        string `yaml:"addr"` // 为空则不使用 Nacos
	Port        uint64 `yaml:"port"`
	Namespace   string `yaml:"namespace"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	DataID      string `yaml:"dataId"`
	Group       string `yaml:"group"`
	ServiceName string `yaml:"serviceName"` // 网关实例注册名
	AdvertiseIP string `yaml:"advertiseIp"`
}

type AppConfig struct {
	GatewayID     string `yaml:"gatewayId"` // 节点ID
	NodeID        int64  `yaml:"nodeId"`    // 雪花节点号
	HTTPAddr      string `yaml:"httpAddr"`
	GrpcAddr      string `yaml:"grpcAddr"`
	LogLevel      string `yaml:"logLevel"`
	InternalToken string `yaml:"internalToken"` // REST 层调用内部接口的凭证

	JWT      JWTConfig      `yaml:"jwt"`
	WS       WSConfig       `yaml:"ws"`
	Rooms    RoomConfig     `yaml:"rooms"`
	Notify   NotifyConfig   `yaml:"notify"`
	Nats     NatsConfig     `yaml:"nats"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Postgres PostgresConfig `yaml:"postgres"`
	Nacos    NacosConfig    `yaml:"nacos"`
}

// Global is the process configuration, filled by Load in main.
var Global = Default()

func Default() AppConfig {
	return AppConfig{
		GatewayID: "gateway_01",
		NodeID:    100,
		HTTPAddr:  ":8080",
		GrpcAddr:  ":50052",
		LogLevel:  "info",
		JWT: JWTConfig{
			Alg: "HS256",
		},
		WS: WSConfig{
			SendQueue:       256,
			PingInterval:    25 * time.Second,
			PongWait:        60 * time.Second,
			WriteWait:       10 * time.Second,
			MaxMessageBytes: 64 * 1024,
		},
		Rooms: RoomConfig{
			GroupPageSize:  100,
			PreJoinTimeout: 3 * time.Second,
		},
		Notify: NotifyConfig{
			Broker:         BrokerNats,
			ResolveTimeout: 3 * time.Second,
			ProfileTimeout: 2 * time.Second,
			PublishTimeout: 5 * time.Second,
		},
		Nats: NatsConfig{
			Servers:   []string{"nats://127.0.0.1:4222"},
			Name:      "ppgateway",
			JetStream: true,
			Retries:   3,
			Backoff:   200 * time.Millisecond,
		},
		Kafka: KafkaConfig{
			Brokers:     []string{"127.0.0.1:9092"},
			Retries:     5,
			Compression: "snappy",
			Version:     "2.1.0",
		},
		Redis: RedisConfig{
			Addr:        "127.0.0.1:6379",
			PresenceTTL: 2 * time.Hour,
		},
		Mongo: MongoConfig{
			URI:         "mongodb://localhost:27017",
			Database:    "agentChat",
			MaxPoolSize: 20,
		},
		Nacos: NacosConfig{
			Port:        8848,
			DataID:      "ppgateway.yaml",
			Group:       "DEFAULT_GROUP",
			ServiceName: "ppgateway",
		},
	}
}

// ApplyYAML overlays the keys present in doc onto cfg.
func ApplyYAML(cfg *AppConfig, doc []byte) error {
	if len(strings.TrimSpace(string(doc))) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(doc, cfg); err != nil {
		return errs.WrapMsg(err, "parse config document")
	}
	return nil
}

// ApplyEnv overrides cfg from environment variables; unset ones are ignored.
func ApplyEnv(cfg *AppConfig, getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = splitList(v)
		}
	}

	str("GATEWAY_ID", &cfg.GatewayID)
	str("HTTP_ADDR", &cfg.HTTPAddr)
	str("GRPC_ADDR", &cfg.GrpcAddr)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("INTERNAL_TOKEN", &cfg.InternalToken)
	str("JWT_SECRET", &cfg.JWT.Secret)
	str("JWT_ALG", &cfg.JWT.Alg)
	str("BROKER", &cfg.Notify.Broker)
	list("NATS_SERVERS", &cfg.Nats.Servers)
	str("NATS_USER", &cfg.Nats.User)
	str("NATS_PASSWORD", &cfg.Nats.Password)
	list("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	str("MONGO_URI", &cfg.Mongo.URI)
	str("MONGO_DB", &cfg.Mongo.Database)
	str("DATABASE_URL", &cfg.Postgres.DSN)
	str("NACOS_ADDR", &cfg.Nacos.Addr)
	str("NACOS_NAMESPACE", &cfg.Nacos.Namespace)
	str("NACOS_DATA_ID", &cfg.Nacos.DataID)
	str("NACOS_GROUP", &cfg.Nacos.Group)
	str("NACOS_USERNAME", &cfg.Nacos.Username)
	str("NACOS_PASSWORD", &cfg.Nacos.Password)
	str("ADVERTISE_IP", &cfg.Nacos.AdvertiseIP)

	if v := strings.TrimSpace(getenv("NODE_ID")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return errs.ErrArgs.WrapMsg("NODE_ID not a number", "value", v)
		}
		cfg.NodeID = n
	}
	if v := strings.TrimSpace(getenv("GROUP_PAGE_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errs.ErrArgs.WrapMsg("GROUP_PAGE_SIZE not a number", "value", v)
		}
		cfg.Rooms.GroupPageSize = n
	}
	return nil
}

func (c *AppConfig) Validate() error {
	if c.JWT.Secret == "" {
		return errs.ErrArgs.WrapMsg("jwt secret is required (JWT_SECRET)")
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return errs.ErrArgs.WrapMsg("nodeId out of range 0~1023", "nodeId", c.NodeID)
	}
	if c.Rooms.GroupPageSize <= 0 {
		return errs.ErrArgs.WrapMsg("rooms.groupPageSize must be positive")
	}
	if c.WS.SendQueue <= 0 {
		return errs.ErrArgs.WrapMsg("ws.sendQueue must be positive")
	}
	switch c.Notify.Broker {
	case BrokerNats, BrokerKafka, BrokerNone:
	default:
		return errs.ErrArgs.WrapMsg(fmt.Sprintf("unknown broker %q", c.Notify.Broker))
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
