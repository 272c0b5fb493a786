package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcouncil/agent"
	"github.com/BaSui01/agentcouncil/agent/focus"
	"github.com/BaSui01/agentcouncil/agent/roundtable"
	"github.com/BaSui01/agentcouncil/agent/routing"
	"github.com/BaSui01/agentcouncil/agent/swarm"
	"github.com/BaSui01/agentcouncil/api/handlers"
	"github.com/BaSui01/agentcouncil/config"
	"github.com/BaSui01/agentcouncil/internal/cache"
	"github.com/BaSui01/agentcouncil/internal/database"
	"github.com/BaSui01/agentcouncil/internal/metrics"
	"github.com/BaSui01/agentcouncil/internal/migration"
	"github.com/BaSui01/agentcouncil/internal/server"
	"github.com/BaSui01/agentcouncil/internal/telemetry"
	"github.com/BaSui01/agentcouncil/llm"
	"github.com/BaSui01/agentcouncil/llm/circuitbreaker"
	"github.com/BaSui01/agentcouncil/llm/providers/openaicompat"
	"github.com/BaSui01/agentcouncil/llm/retry"
)

// defaultProviderName 未配置 providers 时由 llm.api_key / base_url 组成的端点
const defaultProviderName = "default"

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server AgentCouncil 主服务器：存储、LLM 网关、Agent 池、圆桌与蜂群的装配点
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	autoMigrate      bool
	metricsNamespace string
	providers        map[string]llm.Provider // 测试注入，覆盖配置中的端点

	// 存储
	db       *database.PoolManager
	cache    *cache.Manager
	mongo    *mongo.Client
	registry agent.Registry
	profiles focus.Store

	// 核心组件
	gateway    *llm.Gateway
	router     *routing.Router
	pool       *agent.Pool
	roundtable *roundtable.Roundtable
	swarm      *swarm.Swarm

	// 可观测性
	collector *metrics.Collector
	telemetry *telemetry.Providers

	// HTTP
	health         *handlers.HealthHandler
	handler        http.Handler
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 后台任务（路由刷新、限流清理）
	bgCancel context.CancelFunc
	stopOnce sync.Once
}

// ServerOption Server 选项
type ServerOption func(*Server)

// WithAutoMigrate 启动前应用数据库迁移
func WithAutoMigrate(enabled bool) ServerOption {
	return func(s *Server) { s.autoMigrate = enabled }
}

// WithMetricsNamespace 设置 Prometheus 命名空间（同一进程内只能注册一次）
func WithMetricsNamespace(ns string) ServerOption {
	return func(s *Server) { s.metricsNamespace = ns }
}

// WithProvider 以给定实现替换同名端点
func WithProvider(name string, p llm.Provider) ServerOption {
	return func(s *Server) {
		if s.providers == nil {
			s.providers = make(map[string]llm.Provider)
		}
		s.providers[name] = p
	}
}

// NewServer 创建服务器实例，组件在 Build 中装配
func NewServer(cfg *config.Config, logger *zap.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:              cfg,
		logger:           logger,
		metricsNamespace: "agentcouncil",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// 🚀 装配流程
// =============================================================================

// Build 按依赖顺序装配全部组件，任一步失败都会释放已打开的资源
func (s *Server) Build(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			s.closeStorage(context.WithoutCancel(ctx))
		}
	}()

	// 1. 遥测与指标
	s.telemetry, err = telemetry.Init(ctx, s.cfg.Telemetry, s.logger, telemetry.WithServiceVersion(Version))
	if err != nil {
		s.logger.Warn("telemetry disabled", zap.Error(err))
	}
	s.collector = metrics.NewCollector(s.metricsNamespace, s.logger)

	// 2. 存储
	if err = s.initStorage(ctx); err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	if err = s.applySeed(ctx); err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}

	// 3. LLM 网关
	if err = s.initGateway(); err != nil {
		return fmt.Errorf("init llm gateway: %w", err)
	}

	// 4. 路由、Agent 池、圆桌、蜂群
	if err = s.initCouncil(ctx); err != nil {
		return fmt.Errorf("init council: %w", err)
	}

	// 5. HTTP handler
	s.initHandlers()
	return nil
}

// initStorage 按 profiles.source 打开数据库、MongoDB 与 Redis
func (s *Server) initStorage(ctx context.Context) error {
	if s.cfg.Redis.Enabled {
		cc := cache.DefaultConfig()
		cc.Addr = s.cfg.Redis.Addr
		cc.Password = s.cfg.Redis.Password
		cc.DB = s.cfg.Redis.DB
		if s.cfg.Redis.PoolSize > 0 {
			cc.PoolSize = s.cfg.Redis.PoolSize
		}
		cc.MinIdleConns = s.cfg.Redis.MinIdleConns
		if s.cfg.Profiles.CacheTTL > 0 {
			cc.DefaultTTL = s.cfg.Profiles.CacheTTL
		}

		m, err := cache.NewManager(cc, s.logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		s.cache = m
	}

	var base focus.Store
	switch s.cfg.Profiles.Source {
	case "memory":
		seed, err := LoadSeed(s.cfg.Profiles.SeedFile)
		if err != nil {
			return err
		}
		s.registry = agent.NewMemoryRegistry(seed.Agents...)
		base = focus.NewMemoryStore(seed.Profiles...)

	case "database", "mongo":
		if err := s.openDatabase(ctx); err != nil {
			return err
		}
		s.registry = agent.NewGormRegistry(s.db.DB(), s.logger)
		base = focus.NewGormStore(s.db.DB(), s.logger)

		if s.cfg.Profiles.Source == "mongo" {
			client, err := focus.ConnectMongo(ctx, s.cfg.Mongo.URI)
			if err != nil {
				return err
			}
			s.mongo = client
			coll := client.Database(s.cfg.Mongo.Database).Collection(s.cfg.Mongo.Collection)
			base = focus.NewMongoStore(coll, s.cfg.Mongo.Timeout, s.logger)
		}

	default:
		return fmt.Errorf("unknown profiles source %q", s.cfg.Profiles.Source)
	}

	s.profiles = base
	if s.cfg.Profiles.CacheEnabled {
		if s.cache == nil {
			s.logger.Warn("profiles.cache_enabled requires redis.enabled, profile cache disabled")
		} else {
			s.profiles = focus.NewCachedStore(base, s.cache, s.cfg.Profiles.CacheTTL, s.logger)
		}
	}

	s.logger.Info("storage ready",
		zap.String("profiles_source", s.cfg.Profiles.Source),
		zap.Bool("profile_cache", s.profiles != base),
		zap.Bool("redis", s.cache != nil),
	)
	return nil
}

// openDatabase 连接关系库，按需执行迁移并注册连接池指标
func (s *Server) openDatabase(ctx context.Context) error {
	if s.autoMigrate {
		m, err := migration.NewMigratorFromDatabaseConfig(s.cfg.Database)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		err = m.Up(ctx)
		_ = m.Close()
		if err != nil {
			return err
		}
	}

	pm, err := database.Open(s.cfg.Database, s.logger)
	if err != nil {
		return err
	}
	s.db = pm

	if s.collector != nil {
		sqlDB, err := pm.DB().DB()
		if err == nil {
			err = s.collector.RegisterDB(s.cfg.Database.Name, sqlDB)
		}
		if err != nil {
			s.logger.Warn("database pool metrics disabled", zap.Error(err))
		}
	}
	return nil
}

// applySeed 非 memory 来源时把 profiles.seed_file 写入存储
func (s *Server) applySeed(ctx context.Context) error {
	if s.cfg.Profiles.Source == "memory" || s.cfg.Profiles.SeedFile == "" {
		return nil
	}
	seed, err := LoadSeed(s.cfg.Profiles.SeedFile)
	if err != nil {
		return err
	}
	return s.storeSeed(ctx, seed)
}

// storeSeed 写入种子。有关系库时 Agent（以及 database 来源的 profile）在同一事务内提交，
// 提交后失效 profile 缓存。
func (s *Server) storeSeed(ctx context.Context, seed *Seed) error {
	if s.db == nil {
		return seed.Apply(ctx, s.registrySaver(), s.profileSaver(), s.logger)
	}

	inTx := s.cfg.Profiles.Source == "database"
	var external profileSaver
	if !inTx {
		external = s.profileSaver()
	}
	if err := seed.ApplyTx(ctx, s.db, inTx, external, s.logger); err != nil {
		return err
	}

	if cached, ok := s.profiles.(*focus.CachedStore); ok && inTx {
		if err := cached.Invalidate(ctx, seed.profileIDs()...); err != nil {
			s.logger.Warn("failed to invalidate profile cache after seed", zap.Error(err))
		}
	}
	return nil
}

// registrySaver 返回可写的注册表，只读来源返回 nil
func (s *Server) registrySaver() agentSaver {
	if w, ok := s.registry.(agentSaver); ok {
		return w
	}
	return nil
}

// profileSaver 返回可写的 profile 存储（带缓存时写入会同时失效缓存）
func (s *Server) profileSaver() profileSaver {
	if w, ok := s.profiles.(profileSaver); ok {
		return w
	}
	return nil
}

// initGateway 由 llm.providers 与 llm.chain 组装带熔断的模型链
func (s *Server) initGateway() error {
	lc := s.cfg.LLM

	providers := make(map[string]llm.Provider, len(lc.Providers)+1)
	for _, p := range lc.Providers {
		providers[p.Name] = openaicompat.New(openaicompat.Config{
			ProviderName: p.Name,
			APIKey:       p.APIKey,
			BaseURL:      p.BaseURL,
			Timeout:      p.Timeout,
			Headers:      p.Headers,
		}, s.logger)
	}
	defaultProvider := func() llm.Provider {
		if p, ok := providers[defaultProviderName]; ok {
			return p
		}
		p := openaicompat.New(openaicompat.Config{
			ProviderName: defaultProviderName,
			APIKey:       lc.APIKey,
			BaseURL:      lc.BaseURL,
			Timeout:      lc.Timeout,
		}, s.logger)
		providers[defaultProviderName] = p
		return p
	}
	for name, p := range s.providers {
		providers[name] = p
	}

	chain := lc.Chain
	if len(chain) == 0 {
		for _, m := range lc.Models {
			chain = append(chain, config.ModelRouteConfig{Model: m})
		}
	}

	routes := make([]llm.Route, 0, len(chain))
	for _, c := range chain {
		var p llm.Provider
		if c.Provider == "" {
			p = defaultProvider()
		} else if p = providers[c.Provider]; p == nil {
			return fmt.Errorf("model %q references unknown provider %q", c.Model, c.Provider)
		}
		routes = append(routes, llm.Route{Model: c.Model, Provider: p, RPS: c.RPS, Burst: c.Burst})
	}

	gw, err := llm.NewGateway(llm.GatewayConfig{
		Breaker: circuitbreaker.Config{
			Threshold:       lc.Breaker.Threshold,
			CallTimeout:     lc.Breaker.CallTimeout,
			ResetTimeout:    lc.Breaker.ResetTimeout,
			MaxResetTimeout: lc.Breaker.MaxResetTimeout,
		},
		Retry: retry.Policy{
			MaxAttempts:  lc.Retry.MaxAttempts,
			InitialDelay: lc.Retry.InitialDelay,
			MaxDelay:     lc.Retry.MaxDelay,
			Multiplier:   lc.Retry.Multiplier,
			Jitter:       lc.Retry.Jitter,
		},
	}, routes, s.logger, llm.WithObserver(s.collector))
	if err != nil {
		return err
	}
	s.gateway = gw
	s.logger.Info("llm gateway ready", zap.Strings("chain", gw.Models()))
	return nil
}

// initCouncil 装配路由器、Agent 池、圆桌与蜂群，并启动路由表定时刷新
func (s *Server) initCouncil(ctx context.Context) error {
	cc := s.cfg.Council

	s.router = routing.NewRouter(s.profiles, s.logger, routing.WithObserver(s.collector))
	if err := s.router.Refresh(ctx); err != nil {
		// 默认表已安装，服务可用
		s.logger.Warn("initial routing refresh failed, using default keywords", zap.Error(err))
	}

	poolCfg := agent.DefaultConfig()
	if cc.Agent.ContextWindow > 0 {
		poolCfg.ContextWindow = cc.Agent.ContextWindow
	}
	if cc.Agent.DefaultModel != "" {
		poolCfg.DefaultModel = cc.Agent.DefaultModel
	}
	if cc.Agent.DefaultMaxTokens > 0 {
		poolCfg.DefaultMaxTokens = cc.Agent.DefaultMaxTokens
	}
	s.pool = agent.NewPool(s.registry, s.profiles, s.gateway, poolCfg, s.logger)
	if err := s.pool.Load(ctx); err != nil {
		return fmt.Errorf("load agents: %w", err)
	}

	s.roundtable = roundtable.New(s.pool, s.router, roundtable.Config{
		Rounds:          cc.Roundtable.Rounds,
		MaxAgents:       cc.Roundtable.MaxAgents,
		PerAgentTimeout: cc.Roundtable.PerAgentTimeout,
		TotalTimeout:    cc.Roundtable.TotalTimeout,
	}, s.logger, roundtable.WithObserver(s.collector))

	var trails swarm.TrailStore = swarm.NewMemoryTrailStore()
	if cc.Swarm.TrailStore == "redis" {
		if s.cache == nil {
			s.logger.Warn("swarm.trail_store redis requires redis.enabled, keeping trails in memory")
		} else {
			trails = swarm.NewRedisTrailStore(s.cache, cc.Swarm.TrailTTL)
		}
	}
	s.swarm = swarm.New(s.pool, s.router, swarm.Config{
		ConvergenceThreshold: cc.Swarm.ConvergenceThreshold,
		MaxRounds:            cc.Swarm.MaxRounds,
		PerAgentTimeout:      cc.Swarm.PerAgentTimeout,
		Pheromone: swarm.PheromoneConfig{
			Reinforce: cc.Swarm.Reinforce,
			Decay:     cc.Swarm.Decay,
			MinWeight: cc.Swarm.MinWeight,
			MaxWeight: cc.Swarm.MaxWeight,
		},
	}, s.logger, swarm.WithTrailStore(trails), swarm.WithObserver(s.collector))

	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.bgCancel = cancel
	s.router.Start(bgCtx, cc.RoutingRefreshInterval)

	s.logger.Info("council ready",
		zap.Int("agents", len(s.pool.Agents())),
		zap.Int("routing_entries", s.router.Stats().Size),
	)
	return nil
}

// =============================================================================
// 🌐 HTTP 路由
// =============================================================================

// initHandlers 注册健康检查与 API 路由并构建中间件链
func (s *Server) initHandlers() {
	s.health = handlers.NewHealthHandler(s.logger)
	if s.db != nil {
		s.health.RegisterCheck(s.db)
	}
	if s.cache != nil {
		s.health.RegisterCheck(handlers.NewFuncCheck("redis", s.cache.Ping))
	}
	if s.mongo != nil {
		s.health.RegisterCheck(handlers.NewFuncCheck("mongo", func(ctx context.Context) error {
			return s.mongo.Ping(ctx, nil)
		}))
	}

	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", s.health.HandleHealth)
	mux.HandleFunc("GET /healthz", s.health.HandleHealthz)
	mux.HandleFunc("GET /ready", s.health.HandleReady)
	mux.HandleFunc("GET /readyz", s.health.HandleReady)
	mux.HandleFunc("GET /version", s.health.HandleVersion(Version, BuildTime, GitCommit))

	// 议会
	council := handlers.NewCouncilHandler(s.roundtable, s.swarm, s.logger)
	stream := handlers.NewStreamHandler(s.roundtable, originHosts(s.cfg.Server.CORSAllowedOrigins), s.logger)
	mux.HandleFunc("POST /api/v1/roundtable/discuss", council.HandleDiscuss)
	mux.HandleFunc("GET /api/v1/roundtable/stream", stream.HandleStream)
	mux.HandleFunc("POST /api/v1/swarm/solve", council.HandleSolve)

	// 管理类接口：启用 JWT 且配置了 admin_role 时要求该角色
	admin := RequireRole("", s.logger)
	if s.jwtEnabled() {
		admin = RequireRole(s.cfg.JWT.AdminRole, s.logger)
	}

	// Agent
	agents := handlers.NewAgentHandler(s.pool, s.logger)
	mux.HandleFunc("GET /api/v1/agents", agents.HandleListAgents)
	mux.HandleFunc("GET /api/v1/agents/{id}", agents.HandleGetAgent)
	mux.HandleFunc("POST /api/v1/agents/{id}/process", agents.HandleProcess)
	mux.Handle("PUT /api/v1/agents/{id}/focus", admin(http.HandlerFunc(agents.HandleSetFocus)))
	mux.Handle("POST /api/v1/agents/{id}/offline", admin(agents.HandleSetStatus(false)))
	mux.Handle("POST /api/v1/agents/{id}/online", admin(agents.HandleSetStatus(true)))

	// 观测
	obs := handlers.NewObservabilityHandler(s.gateway, s.swarm, s.router, s.logger)
	mux.HandleFunc("GET /api/v1/observability/breakers", obs.HandleBreakers)
	mux.Handle("POST /api/v1/observability/breakers/{model}/reset", admin(http.HandlerFunc(obs.HandleResetBreaker)))
	mux.HandleFunc("GET /api/v1/observability/pheromones", obs.HandlePheromones)
	mux.HandleFunc("GET /api/v1/observability/routing", obs.HandleRouting)
	mux.Handle("POST /api/v1/observability/routing/refresh", admin(http.HandlerFunc(obs.HandleRefreshRouting)))

	s.handler = s.buildMiddleware(mux)
}

// originHosts 把 CORS 来源转换为 websocket 的 host 匹配模式
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
		} else if o != "" {
			hosts = append(hosts, o)
		}
	}
	return hosts
}

// buildMiddleware 构建中间件链，外层先执行
func (s *Server) buildMiddleware(mux http.Handler) http.Handler {
	sc := s.cfg.Server
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}

	bgCtx, cancel := context.WithCancel(context.Background())
	prev := s.bgCancel
	s.bgCancel = func() {
		cancel()
		if prev != nil {
			prev()
		}
	}

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		CORS(sc.CORSAllowedOrigins),
	}
	if len(sc.APIKeys) > 0 {
		chain = append(chain, APIKeyAuth(sc.APIKeys, skipAuthPaths, sc.AllowQueryAPIKey, s.logger))
	}
	if s.jwtEnabled() {
		chain = append(chain, JWTAuth(s.cfg.JWT, skipAuthPaths, s.logger))
	}
	if sc.RateLimitRPS > 0 {
		chain = append(chain, RateLimiter(bgCtx, sc.RateLimitRPS, sc.RateLimitBurst, s.logger))
	}
	return Chain(mux, chain...)
}

func (s *Server) jwtEnabled() bool {
	return s.cfg.JWT.Secret != "" || s.cfg.JWT.PublicKey != ""
}

// Handler 返回带中间件的 API handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// =============================================================================
// ▶️ 启动与关闭
// =============================================================================

// Start 启动 API 与 Metrics 服务器（非阻塞）
func (s *Server) Start() error {
	s.httpManager = server.NewManager(s.handler, server.APIConfig(s.cfg.Server), s.logger)
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	if mc, ok := server.MetricsConfig(s.cfg.Server); ok {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.metricsManager = server.NewManager(mux, mc, s.logger)
		if err := s.metricsManager.Start(); err != nil {
			_ = s.httpManager.Shutdown(context.Background())
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	s.logger.Info("All servers started",
		zap.String("http_addr", s.httpManager.ListenAddr()),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// Run 阻塞直到 ctx 结束或 API 服务器异常退出，然后关闭全部资源
func (s *Server) Run(ctx context.Context) error {
	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-s.httpManager.Errors():
		s.logger.Error("HTTP server exited unexpectedly", zap.Error(runErr))
	}
	return errors.Join(runErr, s.Shutdown(context.WithoutCancel(ctx)))
}

// Shutdown 优雅关闭：先停止接收请求，再停后台任务，最后释放存储与遥测
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	s.stopOnce.Do(func() {
		s.logger.Info("Starting graceful shutdown...")

		if s.httpManager != nil {
			if err := s.httpManager.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("http server: %w", err))
			}
		}
		if s.metricsManager != nil {
			if err := s.metricsManager.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("metrics server: %w", err))
			}
		}
		if s.bgCancel != nil {
			s.bgCancel()
		}

		errs = append(errs, s.closeStorage(ctx))
		if err := s.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}

		s.logger.Info("Graceful shutdown completed")
	})
	return errors.Join(errs...)
}

// closeStorage 关闭已打开的存储连接
func (s *Server) closeStorage(ctx context.Context) error {
	var errs []error
	if s.mongo != nil {
		if err := s.mongo.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mongo: %w", err))
		}
		s.mongo = nil
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
		s.cache = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
		s.db = nil
	}
	return errors.Join(errs...)
}
