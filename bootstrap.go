package main

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	mgo "PPGateway/data/database/mgo/mongoutil"
	"PPGateway/global/config"
	"PPGateway/logger"
	"PPGateway/middleware"
	midsec "PPGateway/middleware/security"
	"PPGateway/module/message"
	"PPGateway/service/chat"
	"PPGateway/service/chat/handlers"
	"PPGateway/service/kafka"
	mgoSrv "PPGateway/service/mgo"
	"PPGateway/service/nacos"
	"PPGateway/service/natsx"
	"PPGateway/service/notify"
	"PPGateway/service/profile"
	"PPGateway/service/storage"
	rds "PPGateway/service/storage/redis"
	errs "PPGateway/tools/errs"
	"PPGateway/tools/ids"
	"PPGateway/tools/security"

	"github.com/Shopify/sarama"
	"github.com/gin-gonic/gin"
)

type app struct {
	gateway     *chat.Server
	coordinator *notify.Coordinator
	internal    *message.Handler
	registry    *nacos.Registry
	closers     []func() error
}

// loadConfig: 默认值 -> 环境变量 -> Nacos 文档 -> 环境变量（环境变量优先）
func loadConfig() (config.AppConfig, *nacos.ConfigWatcher, error) {
	cfg := config.Default()
	if err := config.ApplyEnv(&cfg, nil); err != nil {
		return cfg, nil, err
	}
	var watcher *nacos.ConfigWatcher
	if cfg.Nacos.Addr != "" {
		cc, err := nacos.NewConfigClient(nacosOptions(cfg.Nacos))
		if err != nil {
			return cfg, nil, err
		}
		watcher = nacos.NewConfigWatcher(cc, cfg.Nacos.DataID, cfg.Nacos.Group)
		doc, err := watcher.Load()
		if err != nil {
			return cfg, nil, err
		}
		if err := config.ApplyYAML(&cfg, []byte(doc)); err != nil {
			return cfg, nil, err
		}
		if err := config.ApplyEnv(&cfg, nil); err != nil {
			return cfg, nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	return cfg, watcher, nil
}

// watchConfig only hot-applies the log level; everything else needs a restart.
func watchConfig(w *nacos.ConfigWatcher) {
	err := w.Watch(func(data string) {
		next := config.Global
		if err := config.ApplyYAML(&next, []byte(data)); err != nil {
			logger.Warnf("[Config] ignore bad nacos update: %v", err)
			return
		}
		if next.LogLevel != config.Global.LogLevel {
			logger.Init(next.LogLevel)
			logger.Infof("[Config] log level -> %s", next.LogLevel)
		}
		config.Global.LogLevel = next.LogLevel
	})
	if err != nil {
		logger.Warnf("[Config] nacos watch disabled: %v", err)
	}
}

func nacosOptions(c config.NacosConfig) nacos.Options {
	return nacos.Options{
		Addr:      c.Addr,
		Port:      c.Port,
		Namespace: c.Namespace,
		Username:  c.Username,
		Password:  c.Password,
	}
}

func newApp(ctx context.Context, cfg config.AppConfig) (*app, error) {
	a := &app{}

	// ---- 在线状态镜像（Redis，可选） ----
	var mirror chat.PresenceMirror
	if cfg.Redis.Addr != "" {
		if err := rds.InitRedis(rds.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}); err != nil {
			logger.Warnf("[Main] redis unavailable, presence mirror off: %v", err)
		} else {
			mirror = storage.NewRedisPresence(rds.GetRedis(), cfg.GatewayID, cfg.Redis.PresenceTTL)
			a.closers = append(a.closers, rds.CloseRedis)
		}
	}

	// ---- 成员关系（Mongo，后台重连） ----
	// 独立 ctx：信号到达后仍需成员查询，直到 close 阶段
	mgoCtx, stopMgo := context.WithCancel(context.Background())
	mgoSrv.StartAsync(mgoCtx, &mgo.Config{
		Uri:         cfg.Mongo.URI,
		Database:    cfg.Mongo.Database,
		Username:    cfg.Mongo.Username,
		Password:    cfg.Mongo.Password,
		MaxPoolSize: cfg.Mongo.MaxPoolSize,
	})
	a.closers = append(a.closers, func() error {
		stopMgo()
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return mgoSrv.Close(cctx)
	})
	members := mgoSrv.NewMembershipStore()
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := mgoSrv.WaitReady(waitCtx, mgoSrv.Manager()); err != nil {
		// 不阻塞启动：未就绪期间预加入群聊会失败并记录日志
		logger.Warnf("[Main] mongo not ready yet, continuing: %v", err)
	}
	cancel()

	// ---- 发送者资料（Postgres，可选） ----
	var profiles notify.ProfileLookup
	if cfg.Postgres.DSN != "" {
		pool, err := profile.Connect(ctx, cfg.Postgres.DSN, 0)
		if err != nil {
			logger.Warnf("[Main] postgres unavailable, sender profile falls back: %v", err)
		} else {
			profiles = profile.NewPgLookup(pool)
			a.closers = append(a.closers, func() error { pool.Close(); return nil })
		}
	}

	publisher, err := newPublisher(cfg, a)
	if err != nil {
		a.close()
		return nil, err
	}

	a.gateway = chat.NewServer(chat.Options{
		Conf: chat.ServerConf{
			GatewayID: cfg.GatewayID,
			SendQueue: cfg.WS.SendQueue,
			Pump: chat.PumpConf{
				PingInterval:    cfg.WS.PingInterval,
				PongWait:        cfg.WS.PongWait,
				WriteWait:       cfg.WS.WriteWait,
				MaxMessageBytes: cfg.WS.MaxMessageBytes,
			},
			Rooms: chat.RoomsConf{
				GroupPageSize:  cfg.Rooms.GroupPageSize,
				PreJoinTimeout: cfg.Rooms.PreJoinTimeout,
			},
			AllowedOrigins: cfg.WS.AllowedOrigins,
		},
		Auth:   security.NewAuthenticator(jwtOptions(cfg.JWT)),
		Store:  members,
		Mirror: mirror,
		IDs:    ids.NewGenerator(cfg.NodeID),
	})
	handlers.RegisterAll(a.gateway.Disp())

	a.coordinator = notify.NewCoordinator(a.gateway.Fanout(), members, profiles, publisher, notify.Options{
		ResolveTimeout: cfg.Notify.ResolveTimeout,
		ProfileTimeout: cfg.Notify.ProfileTimeout,
		PublishTimeout: cfg.Notify.PublishTimeout,
	})
	a.internal = message.NewHandler(a.coordinator, a.gateway.Fanout(), a.gateway.Presence())
	return a, nil
}

func jwtOptions(c config.JWTConfig) security.Options {
	opts := security.DefaultOptions([]byte(c.Secret))
	if c.Alg != "" {
		opts.Alg = c.Alg
	}
	opts.Leeway = c.Leeway
	return opts
}

func newPublisher(cfg config.AppConfig, a *app) (notify.Publisher, error) {
	switch cfg.Notify.Broker {
	case config.BrokerNats:
		m, err := natsx.NewNatsManager(natsx.NatsxConfig{
			Servers:  cfg.Nats.Servers,
			Name:     cfg.Nats.Name,
			User:     cfg.Nats.User,
			Password: cfg.Nats.Password,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, m.Close)
		return natsx.NewEventPublisher(m, cfg.Nats.JetStream, cfg.Nats.Retries, cfg.Nats.Backoff), nil

	case config.BrokerKafka:
		kc := kafka.Config{
			Brokers:             cfg.Kafka.Brokers,
			ProducerRetries:     cfg.Kafka.Retries,
			ProducerCompression: cfg.Kafka.Compression,
			Version:             cfg.Kafka.Version,
		}
		p, err := kafka.NewPublisher(kc)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		if admin, err := sarama.NewClusterAdminFromClient(p.Client()); err != nil {
			logger.Warnf("[Main] kafka admin unavailable, skip topic check: %v", err)
		} else if err := kafka.EnsureTopics(admin, []string{notify.RoutingKeyMessageReceived}, kc); err != nil {
			logger.Warnf("[Main] ensure kafka topics: %v", err)
		}
		return p, nil

	default:
		return logPublisher{}, nil
	}
}

// logPublisher stands in for a broker in local development.
type logPublisher struct{}

func (logPublisher) Publish(_ context.Context, eventType string, payload []byte, routingKey string) error {
	logger.Infof("[Broker:none] type=%s key=%s payload=%s", eventType, routingKey, payload)
	return nil
}

func (a *app) routes(cfg config.AppConfig) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	mm := middleware.Manager()
	mm.Add(middleware.Recover())
	mm.Add(middleware.AccessLog())
	r.Use(mm.Use())

	r.GET("/ws", a.gateway.HandleWS)
	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		mongo := "ok"
		if _, ok := mgoSrv.TryGetDB(); !ok {
			mongo = "connecting"
			if err := mgoSrv.Err(); err != nil {
				mongo += ": " + err.Error()
			}
		}
		if a.gateway.Closing() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"gatewayId":   cfg.GatewayID,
			"onlineUsers": a.gateway.Registry().OnlineUsers(),
			"mongo":       mongo,
		})
	})
	a.internal.Register(r, middleware.RouteOpt{
		IsAuth: true,
		Auth:   midsec.Middleware(midsec.DefaultOptions(cfg.InternalToken)),
	})
	return r
}

// announce registers this instance in Nacos so the REST layer can route
// internal calls to it.
func (a *app) announce(cfg config.AppConfig) {
	if cfg.Nacos.Addr == "" {
		return
	}
	if cfg.Nacos.AdvertiseIP == "" {
		logger.Warnf("[Main] nacos registration skipped: advertiseIp not set")
		return
	}
	_, portStr, err := net.SplitHostPort(cfg.HTTPAddr)
	port, perr := strconv.ParseUint(portStr, 10, 64)
	if err != nil || perr != nil {
		logger.Warnf("[Main] nacos registration skipped: bad httpAddr %q", cfg.HTTPAddr)
		return
	}
	nc, err := nacos.NewNamingClient(nacosOptions(cfg.Nacos))
	if err != nil {
		logger.Warnf("[Main] nacos naming client: %v", err)
		return
	}
	reg := nacos.NewRegistry(nc, cfg.Nacos.ServiceName, cfg.Nacos.AdvertiseIP, port, cfg.Nacos.Group)
	reg.Metadata["gatewayId"] = cfg.GatewayID
	reg.Metadata["protocol"] = "ws"
	if err := reg.Register(); err != nil {
		logger.Warnf("[Main] %v", err)
		return
	}
	a.registry = reg
}

func (a *app) withdraw() {
	if a.registry == nil {
		return
	}
	if err := a.registry.Deregister(); err != nil {
		logger.Warnf("[Main] %v", err)
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warnf("[Main] close: %v", errs.Wrap(err))
		}
	}
}
