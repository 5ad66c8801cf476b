package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/lawaid/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("GEMINI_API_KEY", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 60*time.Second, cfg.InferenceTimeout)
	assert.Equal(t, 512, cfg.MaxNewTokens)
	assert.InDelta(t, 1.15, cfg.RepetitionPenalty, 1e-9)
	require.Len(t, cfg.Endpoints, 2)
	assert.Equal(t, DefaultPrimaryModelURL, cfg.Endpoints[0].URL)
	assert.Equal(t, DefaultFallbackModelURL, cfg.Endpoints[1].URL)

	qa, ok := cfg.QAEndpoint()
	require.True(t, ok)
	assert.Equal(t, DefaultQAModelURL, qa.URL)
}

func TestLoadAddsGeminiTier(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Len(t, cfg.Endpoints, 3)
	last := cfg.Endpoints[2]
	assert.Equal(t, domain.KindGemini, last.Kind)
	assert.Equal(t, "g-key", last.Credential)
}

func TestLoadRejectsRedisWithoutAddr(t *testing.T) {
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR")
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("T_DUR_GO", "90s")
	t.Setenv("T_DUR_SECS", "45")
	t.Setenv("T_DUR_BAD", "soon")
	t.Setenv("T_FLOAT", "0.7")
	t.Setenv("T_LIST", " a.gov.in, ,b.org ")
	t.Setenv("T_LIST_EMPTY", " , ")

	assert.Equal(t, 90*time.Second, getEnvDuration("T_DUR_GO", time.Minute))
	assert.Equal(t, 45*time.Second, getEnvDuration("T_DUR_SECS", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("T_DUR_BAD", time.Minute))
	assert.InDelta(t, 0.7, getEnvFloat("T_FLOAT", 0), 1e-9)
	assert.Equal(t, []string{"a.gov.in", "b.org"}, getEnvList("T_LIST", nil))
	assert.Equal(t, []string{"x"}, getEnvList("T_LIST_EMPTY", []string{"x"}))
}

func TestParseEndpoints(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "secret")

	eps, err := ParseEndpoints([]byte(`
endpoints:
  - name: primary
    url: https://example.test/a
  - name: gemini
    kind: gemini
    model: gemini-2.0-flash
    credential: ${TEST_GEMINI_KEY}
  - name: local
    kind: local
`))
	require.NoError(t, err)
	require.Len(t, eps, 3)
	assert.Equal(t, domain.KindHF, eps[0].Kind)
	assert.Equal(t, "secret", eps[1].Credential)
	assert.Equal(t, domain.KindLocal, eps[2].Kind)
}

func TestParseEndpointsErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "endpoints: []"},
		{"duplicate", "endpoints:\n  - {name: a, url: http://x}\n  - {name: a, url: http://y}"},
		{"missing url", "endpoints:\n  - {name: a, kind: hf}"},
		{"unknown kind", "endpoints:\n  - {name: a, kind: ftp, url: http://x}"},
		{"bad yaml", "endpoints: [:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEndpoints([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestWatchEndpointsReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "endpoints.yaml")
	require.NoError(t, os.WriteFile(path, []byte("endpoints:\n  - {name: a, url: http://a}\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan []domain.Endpoint, 4)
	done, err := WatchEndpoints(ctx, path, func(eps []domain.Endpoint) { got <- eps })
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("endpoints:\n  - {name: b, url: http://b}\n"), 0o600))

	select {
	case eps := <-got:
		require.Len(t, eps, 1)
		assert.Equal(t, "b", eps[0].Name)
	case <-time.After(5 * time.Second):
		t.Fatal("endpoints were not reloaded")
	}

	cancel()
	<-done
}
