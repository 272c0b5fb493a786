// =============================================================================
// 📦 AgentCouncil 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Log:       DefaultLogConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Mongo:     DefaultMongoConfig(),
		LLM:       DefaultLLMConfig(),
		Council:   DefaultCouncilConfig(),
		Profiles:  DefaultProfilesConfig(),
		Telemetry: DefaultTelemetryConfig(),
		JWT:       JWTConfig{},
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
// 默认使用本地 sqlite 文件，切换 driver 即可连接 postgres / mysql
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "agentcouncil",
		Password:        "",
		Name:            "agentcouncil.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultMongoConfig 返回默认 MongoDB 配置
func DefaultMongoConfig() MongoConfig {
	return MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "agentcouncil",
		Collection: "focus_profiles",
		Timeout:    10 * time.Second,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		APIKey:  "",
		BaseURL: "https://api.openai.com",
		Timeout: 2 * time.Minute,
		Models:  []string{"gpt-4o-mini", "gpt-4o"},
		Breaker: BreakerConfig{
			Threshold:       3,
			ResetTimeout:    30 * time.Second,
			MaxResetTimeout: 5 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
			Jitter:       0.2,
		},
	}
}

// DefaultCouncilConfig 返回默认协作参数
func DefaultCouncilConfig() CouncilConfig {
	return CouncilConfig{
		Agent: AgentDefaults{
			ContextWindow:    20,
			DefaultModel:     "gpt-4o-mini",
			DefaultMaxTokens: 1024,
		},
		Roundtable: RoundtableConfig{
			Rounds:          2,
			MaxAgents:       5,
			PerAgentTimeout: 45 * time.Second,
			TotalTimeout:    3 * time.Minute,
		},
		Swarm: SwarmConfig{
			ConvergenceThreshold: 0.6,
			MaxRounds:            3,
			PerAgentTimeout:      30 * time.Second,
			Reinforce:            0.2,
			Decay:                0.1,
			MinWeight:            0.01,
			MaxWeight:            1.0,
			TrailStore:           "memory",
			TrailTTL:             24 * time.Hour,
		},
		RoutingRefreshInterval: 5 * time.Minute,
	}
}

// DefaultProfilesConfig 返回默认 profile 来源配置
func DefaultProfilesConfig() ProfilesConfig {
	return ProfilesConfig{
		Source:       "database",
		CacheEnabled: false,
		CacheTTL:     10 * time.Minute,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentcouncil",
		SampleRate:   0.1,
	}
}
