package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "data/kjv_with_embeddings.json", cfg.CorpusCachePath)
	assert.Equal(t, 5, cfg.DefaultK)
	assert.Equal(t, 5*time.Minute, cfg.FetchTimeout)
	assert.Equal(t, PolicyAbort, cfg.LoadFailurePolicy)
	assert.False(t, cfg.Degraded())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("CORPUS_URL", "s3://scripture/kjv.json.zst")
	t.Setenv("CORPUS_FETCH_TIMEOUT", "90")
	t.Setenv("EMBED_TIMEOUT", "1500ms")
	t.Setenv("LOAD_FAILURE_POLICY", "Degraded")
	t.Setenv("DEFAULT_K", "3")
	t.Setenv("CORS_ORIGINS", `["https://example.org"]`)
	t.Setenv("RATE_LIMIT", "2.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "s3://scripture/kjv.json.zst", cfg.CorpusURL)
	assert.Equal(t, 90*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.EmbedTimeout)
	assert.True(t, cfg.Degraded())
	assert.Equal(t, 3, cfg.DefaultK)
	assert.Equal(t, []string{"https://example.org"}, cfg.CORSOrigins)
	assert.Equal(t, 2.5, cfg.RateLimit)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
corpus_cache_path: /var/cache/kjv.json
fetch_timeout: 2m
default_k: 7
max_k: 20
embedding_provider: hash
`), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MAX_K", "30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/var/cache/kjv.json", cfg.CorpusCachePath)
	assert.Equal(t, 2*time.Minute, cfg.FetchTimeout)
	assert.Equal(t, 7, cfg.DefaultK)
	assert.Equal(t, 30, cfg.MaxK)
	assert.Equal(t, "hash", cfg.EmbeddingProvider)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"policy":    {"LOAD_FAILURE_POLICY": "retry"},
		"default k": {"DEFAULT_K": "-1"},
		"max k":     {"DEFAULT_K": "10", "MAX_K": "5"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := Load()
	require.ErrorContains(t, err, "read config file")
}

func TestParseCORSOrigins(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseCORSOrigins(" a, ,b "))
	assert.Equal(t, []string{"a"}, parseCORSOrigins(`["a"]`))
}

func TestLoad_MalformedEnvValues(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DEFAULT_K", "abc")
	t.Setenv("CORPUS_FETCH_TIMEOUT", "soon")
	t.Setenv("S3_USE_SSL", "sometimes")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `DEFAULT_K: invalid integer "abc"`)
	assert.Contains(t, err.Error(), `CORPUS_FETCH_TIMEOUT: invalid duration "soon"`)
	assert.Contains(t, err.Error(), `S3_USE_SSL: invalid boolean "sometimes"`)
}
