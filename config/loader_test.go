// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 5, cfg.Council.Roundtable.MaxAgents)
	assert.Equal(t, "memory", cfg.Council.Swarm.TrailStore)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s
  api_keys: ["k1", "k2"]

llm:
  providers:
    - name: deepseek
      api_key: sk-test
      base_url: https://api.deepseek.com
      timeout: 30s
    - name: local
      base_url: http://localhost:11434
  chain:
    - model: deepseek-chat
      provider: deepseek
      rps: 5
      burst: 10
    - model: qwen2.5
      provider: local
  breaker:
    threshold: 5
    reset_timeout: 10s

council:
  roundtable:
    rounds: 3
    max_agents: 4
  swarm:
    convergence_threshold: 0.75
    trail_store: redis

redis:
  enabled: true
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	// 验证 YAML 值覆盖了默认值
	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Server.APIKeys)

	require.Len(t, cfg.LLM.Providers, 2)
	assert.Equal(t, "deepseek", cfg.LLM.Providers[0].Name)
	assert.Equal(t, 30*time.Second, cfg.LLM.Providers[0].Timeout)
	require.Len(t, cfg.LLM.Chain, 2)
	assert.Equal(t, "deepseek-chat", cfg.LLM.Chain[0].Model)
	assert.Equal(t, 5.0, cfg.LLM.Chain[0].RPS)
	assert.Equal(t, 10, cfg.LLM.Chain[0].Burst)
	assert.Equal(t, 5, cfg.LLM.Breaker.Threshold)
	assert.Equal(t, 10*time.Second, cfg.LLM.Breaker.ResetTimeout)
	// 未出现在 YAML 中的字段保留默认值
	assert.Equal(t, 5*time.Minute, cfg.LLM.Breaker.MaxResetTimeout)

	assert.Equal(t, 3, cfg.Council.Roundtable.Rounds)
	assert.Equal(t, 4, cfg.Council.Roundtable.MaxAgents)
	assert.Equal(t, 0.75, cfg.Council.Swarm.ConvergenceThreshold)
	assert.Equal(t, "redis", cfg.Council.Swarm.TrailStore)
	assert.Equal(t, 3, cfg.Council.Swarm.MaxRounds)

	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 1, cfg.Redis.DB)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromEnv(t *testing.T) {
	envVars := map[string]string{
		"AGENTCOUNCIL_SERVER_HTTP_PORT":                     "7777",
		"AGENTCOUNCIL_SERVER_CORS_ALLOWED_ORIGINS":          "https://a.example, https://b.example",
		"AGENTCOUNCIL_LLM_MODELS":                           "m1,m2,m3",
		"AGENTCOUNCIL_LLM_BREAKER_RESET_TIMEOUT":            "45s",
		"AGENTCOUNCIL_COUNCIL_SWARM_CONVERGENCE_THRESHOLD":  "0.9",
		"AGENTCOUNCIL_COUNCIL_ROUNDTABLE_PER_AGENT_TIMEOUT": "12s",
		"AGENTCOUNCIL_REDIS_ENABLED":                        "true",
		"AGENTCOUNCIL_LOG_LEVEL":                            "warn",
	}
	for k, v := range envVars {
		t.Setenv(k, v)
	}

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, []string{"m1", "m2", "m3"}, cfg.LLM.Models)
	assert.Equal(t, 45*time.Second, cfg.LLM.Breaker.ResetTimeout)
	assert.Equal(t, 0.9, cfg.Council.Swarm.ConvergenceThreshold)
	assert.Equal(t, 12*time.Second, cfg.Council.Roundtable.PerAgentTimeout)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
council:
  agent:
    default_model: "yaml-model"
    default_max_tokens: 512
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	// 环境变量应该覆盖 YAML
	t.Setenv("AGENTCOUNCIL_SERVER_HTTP_PORT", "9999")
	t.Setenv("AGENTCOUNCIL_COUNCIL_AGENT_DEFAULT_MODEL", "env-model")

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "env-model", cfg.Council.Agent.DefaultModel)
	// YAML 值应该保留（没有被环境变量覆盖）
	assert.Equal(t, 512, cfg.Council.Agent.DefaultMaxTokens)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")
	t.Setenv("MYAPP_PROFILES_SOURCE", "mongo")

	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		Load()
	require.NoError(t, err)

	assert.Equal(t, 6666, cfg.Server.HTTPPort)
	assert.Equal(t, "mongo", cfg.Profiles.Source)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("AGENTCOUNCIL_COUNCIL_ROUNDTABLE_ROUNDS", "many")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGENTCOUNCIL_COUNCIL_ROUNDTABLE_ROUNDS")
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("AGENTCOUNCIL_COUNCIL_ROUNDTABLE_MAX_AGENTS", "1")

	_, err := NewLoader().
		WithValidator((*Config).Validate).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_agents")
}

func TestLoader_NonExistentFile(t *testing.T) {
	// 指定不存在的文件，应该使用默认值（不报错）
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/config.yaml").
		Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
server:
  http_port: [invalid
  this is not valid yaml
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	_, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default config",
			modify: func(c *Config) {},
		},
		{
			name:    "invalid HTTP port (negative)",
			modify:  func(c *Config) { c.Server.HTTPPort = -1 },
			wantErr: "invalid HTTP port",
		},
		{
			name:    "invalid HTTP port (too large)",
			modify:  func(c *Config) { c.Server.HTTPPort = 70000 },
			wantErr: "invalid HTTP port",
		},
		{
			name: "empty chain",
			modify: func(c *Config) {
				c.LLM.Models = nil
				c.LLM.Chain = nil
			},
			wantErr: "chain must not be empty",
		},
		{
			name: "chain references unknown provider",
			modify: func(c *Config) {
				c.LLM.Chain = []ModelRouteConfig{{Model: "m", Provider: "ghost"}}
			},
			wantErr: "unknown provider",
		},
		{
			name: "chain with known provider",
			modify: func(c *Config) {
				c.LLM.Providers = []ProviderConfig{{Name: "p"}}
				c.LLM.Chain = []ModelRouteConfig{{Model: "m", Provider: "p"}}
			},
		},
		{
			name:    "zero breaker threshold",
			modify:  func(c *Config) { c.LLM.Breaker.Threshold = 0 },
			wantErr: "breaker threshold",
		},
		{
			name:    "zero rounds",
			modify:  func(c *Config) { c.Council.Roundtable.Rounds = 0 },
			wantErr: "rounds",
		},
		{
			name:    "max agents below two",
			modify:  func(c *Config) { c.Council.Roundtable.MaxAgents = 1 },
			wantErr: "max_agents",
		},
		{
			name:    "convergence threshold zero",
			modify:  func(c *Config) { c.Council.Swarm.ConvergenceThreshold = 0 },
			wantErr: "convergence_threshold",
		},
		{
			name:    "convergence threshold above one",
			modify:  func(c *Config) { c.Council.Swarm.ConvergenceThreshold = 1.5 },
			wantErr: "convergence_threshold",
		},
		{
			name:   "convergence threshold exactly one",
			modify: func(c *Config) { c.Council.Swarm.ConvergenceThreshold = 1 },
		},
		{
			name: "inverted weight bounds",
			modify: func(c *Config) {
				c.Council.Swarm.MinWeight = 0.5
				c.Council.Swarm.MaxWeight = 0.1
			},
			wantErr: "weight bounds",
		},
		{
			name:    "unknown trail store",
			modify:  func(c *Config) { c.Council.Swarm.TrailStore = "etcd" },
			wantErr: "trail_store",
		},
		{
			name:    "memory profiles without seed",
			modify:  func(c *Config) { c.Profiles.Source = "memory" },
			wantErr: "seed_file",
		},
		{
			name:    "unknown profiles source",
			modify:  func(c *Config) { c.Profiles.Source = "ldap" },
			wantErr: "profiles source",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "postgres DSN",
			config: DatabaseConfig{
				Driver:   "postgres",
				Host:     "localhost",
				Port:     5432,
				User:     "user",
				Password: "pass",
				Name:     "dbname",
				SSLMode:  "disable",
			},
			expected: "host=localhost port=5432 user=user password=pass dbname=dbname sslmode=disable",
		},
		{
			name: "mysql DSN",
			config: DatabaseConfig{
				Driver:   "mysql",
				Host:     "localhost",
				Port:     3306,
				User:     "user",
				Password: "pass",
				Name:     "dbname",
			},
			expected: "user:pass@tcp(localhost:3306)/dbname?parseTime=true",
		},
		{
			name: "sqlite DSN",
			config: DatabaseConfig{
				Driver: "sqlite",
				Name:   "/path/to/db.sqlite",
			},
			expected: "/path/to/db.sqlite",
		},
		{
			name:     "unknown driver",
			config:   DatabaseConfig{Driver: "unknown"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

// --- LoadFromEnv 测试 ---

func TestLoadFromEnv_Function(t *testing.T) {
	t.Setenv("AGENTCOUNCIL_MONGO_DATABASE", "env-only-db")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-only-db", cfg.Mongo.Database)
}
