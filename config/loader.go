// =============================================================================
// 📦 AgentCouncil 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AGENTCOUNCIL").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 AgentCouncil 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Database 数据库配置（agent 注册表与 focus profile）
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Redis 缓存配置（profile 缓存、信息素轨迹）
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Mongo 文档存储配置（profile 来源之一）
	Mongo MongoConfig `yaml:"mongo" env:"MONGO"`

	// LLM 网关配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Council 圆桌 / 蜂群默认参数
	Council CouncilConfig `yaml:"council" env:"COUNCIL"`

	// Profiles focus profile 来源
	Profiles ProfilesConfig `yaml:"profiles" env:"PROFILES"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// JWT 认证配置
	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时（圆桌会话可能很长，需大于 council.roundtable.total_timeout）
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个 IP 的限流速率
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// API Key 列表，为空时不启用 API Key 认证
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 是否允许通过 query 参数传 api_key（websocket 客户端需要）
	AllowQueryAPIKey bool `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	// CORS 允许的来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// TLS 证书与私钥，均非空时以 HTTPS 启动
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	// 连接 URI
	URI string `yaml:"uri" env:"URI"`
	// 数据库名
	Database string `yaml:"database" env:"DATABASE"`
	// focus profile 集合名
	Collection string `yaml:"collection" env:"COLLECTION"`
	// 操作超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// LLMConfig LLM 网关配置
type LLMConfig struct {
	// Providers OpenAI 兼容端点列表（仅 YAML）
	Providers []ProviderConfig `yaml:"providers" env:"-"`
	// Chain 按优先级排列的模型链（仅 YAML）
	Chain []ModelRouteConfig `yaml:"chain" env:"-"`
	// APIKey 未配置 providers 时使用的默认端点 Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// BaseURL 默认端点地址
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// Timeout 默认端点请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Models 未配置 chain 时，默认端点上按优先级排列的模型
	Models []string `yaml:"models" env:"MODELS"`
	// Breaker 熔断参数
	Breaker BreakerConfig `yaml:"breaker" env:"BREAKER"`
	// Retry 重试参数
	Retry RetryConfig `yaml:"retry" env:"RETRY"`
}

// ProviderConfig 单个 OpenAI 兼容端点
type ProviderConfig struct {
	Name    string            `yaml:"name"`
	APIKey  string            `yaml:"api_key"`
	BaseURL string            `yaml:"base_url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// ModelRouteConfig 模型链中的一项
type ModelRouteConfig struct {
	Model    string  `yaml:"model"`
	Provider string  `yaml:"provider"`
	RPS      float64 `yaml:"rps"`
	Burst    int     `yaml:"burst"`
}

// BreakerConfig 每模型熔断器参数
type BreakerConfig struct {
	// 连续失败多少次后熔断
	Threshold int `yaml:"threshold" env:"THRESHOLD"`
	// 首次熔断的退避时长，之后按次数指数增长
	ResetTimeout time.Duration `yaml:"reset_timeout" env:"RESET_TIMEOUT"`
	// 退避上限
	MaxResetTimeout time.Duration `yaml:"max_reset_timeout" env:"MAX_RESET_TIMEOUT"`
	// 单次调用超时，0 表示不限制
	CallTimeout time.Duration `yaml:"call_timeout" env:"CALL_TIMEOUT"`
}

// RetryConfig 单模型重试参数
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	Multiplier   float64       `yaml:"multiplier" env:"MULTIPLIER"`
	Jitter       float64       `yaml:"jitter" env:"JITTER"`
}

// CouncilConfig 多 Agent 协作默认参数
type CouncilConfig struct {
	// Agent 单 Agent 默认值
	Agent AgentDefaults `yaml:"agent" env:"AGENT"`
	// Roundtable 圆桌讨论
	Roundtable RoundtableConfig `yaml:"roundtable" env:"ROUNDTABLE"`
	// Swarm 蜂群投票
	Swarm SwarmConfig `yaml:"swarm" env:"SWARM"`
	// RoutingRefreshInterval 关键词路由表刷新周期，0 表示只在启动时加载
	RoutingRefreshInterval time.Duration `yaml:"routing_refresh_interval" env:"ROUTING_REFRESH_INTERVAL"`
}

// AgentDefaults 注册表未指定时使用的 Agent 默认值
type AgentDefaults struct {
	// 上下文窗口保留的消息条数
	ContextWindow int `yaml:"context_window" env:"CONTEXT_WINDOW"`
	// 默认模型
	DefaultModel string `yaml:"default_model" env:"DEFAULT_MODEL"`
	// 默认最大输出 token
	DefaultMaxTokens int `yaml:"default_max_tokens" env:"DEFAULT_MAX_TOKENS"`
}

// RoundtableConfig 圆桌讨论默认参数
type RoundtableConfig struct {
	Rounds          int           `yaml:"rounds" env:"ROUNDS"`
	MaxAgents       int           `yaml:"max_agents" env:"MAX_AGENTS"`
	PerAgentTimeout time.Duration `yaml:"per_agent_timeout" env:"PER_AGENT_TIMEOUT"`
	TotalTimeout    time.Duration `yaml:"total_timeout" env:"TOTAL_TIMEOUT"`
}

// SwarmConfig 蜂群投票默认参数
type SwarmConfig struct {
	ConvergenceThreshold float64       `yaml:"convergence_threshold" env:"CONVERGENCE_THRESHOLD"`
	MaxRounds            int           `yaml:"max_rounds" env:"MAX_ROUNDS"`
	PerAgentTimeout      time.Duration `yaml:"per_agent_timeout" env:"PER_AGENT_TIMEOUT"`
	// 信息素强化 / 衰减比例
	Reinforce float64 `yaml:"reinforce" env:"REINFORCE"`
	Decay     float64 `yaml:"decay" env:"DECAY"`
	// 归一化前的权重上下限
	MinWeight float64 `yaml:"min_weight" env:"MIN_WEIGHT"`
	MaxWeight float64 `yaml:"max_weight" env:"MAX_WEIGHT"`
	// 轨迹存储: memory, redis
	TrailStore string `yaml:"trail_store" env:"TRAIL_STORE"`
	// Redis 轨迹过期时间
	TrailTTL time.Duration `yaml:"trail_ttl" env:"TRAIL_TTL"`
}

// ProfilesConfig focus profile 来源配置
type ProfilesConfig struct {
	// 来源: database, mongo, memory
	Source string `yaml:"source" env:"SOURCE"`
	// 是否在来源前加 Redis 读穿缓存
	CacheEnabled bool `yaml:"cache_enabled" env:"CACHE_ENABLED"`
	// 缓存过期时间
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	// SeedFile 种子文件（YAML，含 agents 与 profiles），memory 来源必填
	SeedFile string `yaml:"seed_file" env:"SEED_FILE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// JWTConfig JWT 认证配置，Secret 与 PublicKey 都为空时不启用
type JWTConfig struct {
	// HS256 共享密钥
	Secret string `yaml:"secret" env:"SECRET"`
	// RS256 公钥（PEM）
	PublicKey string `yaml:"public_key" env:"PUBLIC_KEY"`
	// 期望的签发者
	Issuer string `yaml:"issuer" env:"ISSUER"`
	// 期望的受众
	Audience string `yaml:"audience" env:"AUDIENCE"`
	// AdminRole 管理类接口要求的角色，为空时不校验
	AdminRole string `yaml:"admin_role" env:"ADMIN_ROLE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "AGENTCOUNCIL",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 验证服务器配置
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	// 验证模型链
	providers := make(map[string]bool, len(c.LLM.Providers))
	for _, p := range c.LLM.Providers {
		providers[p.Name] = true
	}
	if len(c.LLM.Chain) == 0 && len(c.LLM.Models) == 0 {
		errs = append(errs, "llm chain must not be empty")
	}
	for _, r := range c.LLM.Chain {
		if r.Model == "" {
			errs = append(errs, "llm chain entry without model")
			continue
		}
		if r.Provider != "" && !providers[r.Provider] {
			errs = append(errs, fmt.Sprintf("llm chain model %q references unknown provider %q", r.Model, r.Provider))
		}
	}
	if c.LLM.Breaker.Threshold <= 0 {
		errs = append(errs, "breaker threshold must be positive")
	}
	if c.LLM.Retry.MaxAttempts <= 0 {
		errs = append(errs, "retry max_attempts must be positive")
	}

	// 验证协作参数
	rt := c.Council.Roundtable
	if rt.Rounds < 1 {
		errs = append(errs, "roundtable rounds must be >= 1")
	}
	if rt.MaxAgents < 2 {
		errs = append(errs, "roundtable max_agents must be >= 2")
	}
	sw := c.Council.Swarm
	if sw.ConvergenceThreshold <= 0 || sw.ConvergenceThreshold > 1 {
		errs = append(errs, "swarm convergence_threshold must be in (0, 1]")
	}
	if sw.MaxRounds < 1 {
		errs = append(errs, "swarm max_rounds must be >= 1")
	}
	if sw.MinWeight <= 0 || sw.MaxWeight < sw.MinWeight {
		errs = append(errs, "swarm weight bounds must satisfy 0 < min_weight <= max_weight")
	}
	switch sw.TrailStore {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown swarm trail_store %q", sw.TrailStore))
	}

	switch c.Profiles.Source {
	case "database", "mongo":
	case "memory":
		if c.Profiles.SeedFile == "" {
			errs = append(errs, "profiles source memory requires seed_file")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown profiles source %q", c.Profiles.Source))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
