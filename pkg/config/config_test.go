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
	t.Setenv("PORT", "")
	t.Setenv("OPENAI_API_KEY", "")
	v, err := New("")
	require.NoError(t, err)

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.Addr())
	assert.Equal(t, "memory", c.StoreDriver)
	assert.Equal(t, NERHeuristic, c.NERMode)
	assert.Equal(t, time.Minute, c.SearchCacheTTL)
	assert.Equal(t, []string{"*"}, c.CORSOrigins)
	assert.True(t, c.Seed)
	assert.Empty(t, c.Provider)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("STORYWEAVER_STORE_DRIVER", "SQLite")
	t.Setenv("STORYWEAVER_SEARCH_CACHE_TTL", "30s")
	t.Setenv("STORYWEAVER_SEED", "false")

	v, err := New("")
	require.NoError(t, err)
	c, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, ":9000", c.Addr())
	assert.Equal(t, "sk-test", c.APIKey)
	assert.Equal(t, "openai", c.Provider, "an api key implies openai")
	assert.Equal(t, "sqlite", c.StoreDriver)
	assert.Equal(t, 30*time.Second, c.SearchCacheTTL)
	assert.False(t, c.Seed)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storyweaver.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store_driver: file\nstore_path: books.json\nllm_provider: local\n"), 0o644))

	v, err := New(path)
	require.NoError(t, err)
	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "file", c.StoreDriver)
	assert.Equal(t, "books.json", c.StorePath)
	assert.Equal(t, "local", c.Provider)

	_, err = New(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{Port: "8080", StoreDriver: "memory", NERMode: NERHeuristic, EmbeddingDims: 384}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown provider", func(c *Config) { c.Provider = "skynet" }},
		{"unknown ner mode", func(c *Config) { c.NERMode = "spacy" }},
		{"model ner without provider", func(c *Config) { c.NERMode = NERModel }},
		{"unknown store", func(c *Config) { c.StoreDriver = "postgres" }},
		{"negative ttl", func(c *Config) { c.SearchCacheTTL = -time.Second }},
		{"zero dims", func(c *Config) { c.EmbeddingDims = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}

	c := base()
	c.Provider, c.NERMode = "Gemini", "MODEL"
	require.NoError(t, c.Validate())
	assert.Equal(t, "gemini", c.Provider)
	assert.Equal(t, NERModel, c.NERMode)
}
