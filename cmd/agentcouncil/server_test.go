package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcouncil/agent/routing"
	"github.com/BaSui01/agentcouncil/api"
	"github.com/BaSui01/agentcouncil/config"
	"github.com/BaSui01/agentcouncil/testutil/mocks"
)

const testBallot = "VOTE: use postgres\nCONFIDENCE: 0.9\nREASONING: durable and well known"

// newTestServer 以内存来源和 mock provider 组装完整服务
func newTestServer(t *testing.T, namespace string, mutate func(*config.Config)) *Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Profiles.Source = "memory"
	cfg.Profiles.SeedFile = writeSeed(t, testSeedYAML)
	cfg.LLM.Models = []string{"m-primary", "m-secondary"}
	cfg.Server.HTTPPort = 0
	cfg.Server.MetricsPort = 0
	if mutate != nil {
		mutate(cfg)
	}

	provider := mocks.NewMockProvider().WithResponse(testBallot)
	srv := NewServer(cfg, zap.NewNop(),
		WithAutoMigrate(false),
		WithMetricsNamespace(namespace),
		WithProvider(defaultProviderName, provider),
	)
	require.NoError(t, srv.Build(context.Background()))
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestServer_BuildMemorySource(t *testing.T) {
	srv := newTestServer(t, "council_srv_build", nil)
	h := srv.Handler()

	t.Run("health", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("agents from seed", func(t *testing.T) {
		w := doJSON(t, h, http.MethodGet, "/api/v1/agents", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Data []struct {
				ID      string `json:"id"`
				FocusID string `json:"focus_id"`
				Status  string `json:"status"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		require.Len(t, body.Data, 3)
		ids := make([]string, 0, len(body.Data))
		for _, a := range body.Data {
			ids = append(ids, a.ID)
			assert.Equal(t, "idle", a.Status)
		}
		assert.ElementsMatch(t, []string{"a-lead", "a-sec", "a-data"}, ids)
	})

	t.Run("routing built from seed profiles", func(t *testing.T) {
		stats := srv.router.Stats()
		assert.Equal(t, routing.SourceStore, stats.Source)
		assert.Contains(t, stats.FocusIDs, "security")
	})

	t.Run("gateway chain from models", func(t *testing.T) {
		assert.Equal(t, []string{"m-primary", "m-secondary"}, srv.gateway.Models())
	})

	t.Run("discuss", func(t *testing.T) {
		w := doJSON(t, h, http.MethodPost, "/api/v1/roundtable/discuss", api.DiscussRequest{
			Topic:    "how should we handle auth tokens",
			AgentIDs: []string{"a-lead", "a-sec"},
			Rounds:   1,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var body struct {
			Data struct {
				Participants []string `json:"participants"`
				Synthesis    string   `json:"synthesis"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, []string{"a-lead", "a-sec"}, body.Data.Participants)
		assert.Equal(t, testBallot, body.Data.Synthesis)
	})

	t.Run("http metrics recorded with route template", func(t *testing.T) {
		doJSON(t, h, http.MethodGet, "/api/v1/agents/a-sec", nil)
		got := counterValue(t, "council_srv_build_http_requests_total", map[string]string{
			"method": http.MethodGet,
			"path":   "/api/v1/agents/{id}",
		})
		assert.GreaterOrEqual(t, got, 1.0)
	})
}

func TestServer_APIKeyRequired(t *testing.T) {
	srv := newTestServer(t, "council_srv_auth", func(cfg *config.Config) {
		cfg.Server.APIKeys = []string{"k-1"}
	})
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, doJSON(t, h, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, doJSON(t, h, http.MethodGet, "/api/v1/agents", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
	req.Header.Set("X-API-Key", "k-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_BuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "missing seed file",
			mutate:  func(cfg *config.Config) { cfg.Profiles.SeedFile = "/nonexistent/seed.yaml" },
			wantErr: "read seed file",
		},
		{
			name:    "unknown source",
			mutate:  func(cfg *config.Config) { cfg.Profiles.Source = "etcd" },
			wantErr: `unknown profiles source "etcd"`,
		},
		{
			name: "unknown provider in chain",
			mutate: func(cfg *config.Config) {
				cfg.LLM.Chain = []config.ModelRouteConfig{{Model: "m-x", Provider: "ghost"}}
			},
			wantErr: `unknown provider "ghost"`,
		},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Profiles.Source = "memory"
			cfg.Profiles.SeedFile = writeSeed(t, testSeedYAML)
			tt.mutate(cfg)

			srv := NewServer(cfg, zap.NewNop(),
				WithMetricsNamespace(fmt.Sprintf("council_srv_err_%d", i)),
				WithProvider(defaultProviderName, mocks.NewMockProvider()),
			)
			err := srv.Build(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	srv := newTestServer(t, "council_srv_start", nil)
	require.NoError(t, srv.Start())

	addr := srv.httpManager.ListenAddr()
	if strings.HasPrefix(addr, "[::]") || strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr[strings.LastIndex(addr, ":"):]
	}
	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, srv.Shutdown(context.Background()))
	// 重复关闭无副作用
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestOriginHosts(t *testing.T) {
	got := originHosts([]string{"https://app.example.com", "http://localhost:3000", "*"})
	assert.Equal(t, []string{"app.example.com", "localhost:3000", "*"}, got)
}
