package app

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuannvm/workitem-qa/internal/cache"
	"github.com/tuannvm/workitem-qa/internal/config"
	"github.com/tuannvm/workitem-qa/internal/tracker/ado"
)

func baseConfig() *config.Config {
	return &config.Config{
		TrackerBackend:      "ado",
		TrackerBaseURL:      "http://127.0.0.1:1",
		TrackerOrganization: "org",
		TrackerProject:      "Phoenix",
		CacheBackend:        "memory",
		ValidatorEnabled:    true,
		MaxRetries:          2,
		PipelineTimeout:     10 * time.Second,
		CallTimeout:         2 * time.Second,
		ExecutorWorkers:     2,
	}
}

func TestBuildWithoutCompletionService(t *testing.T) {
	a, err := Build(baseConfig())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.Deps.Validator)
	assert.IsType(t, &cache.MemoryStore{}, a.Store)
}

func TestValidatorCanBeDisabled(t *testing.T) {
	cfg := baseConfig()
	cfg.ValidatorEnabled = false
	a, err := Build(cfg)
	require.NoError(t, err)
	assert.Nil(t, a.Deps.Validator)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.CacheBackend = "redis"
	cfg.RedisAddr = mr.Addr()

	a, err := Build(cfg)
	require.NoError(t, err)
	assert.IsType(t, &cache.RedisStore{}, a.Store)
	assert.NoError(t, a.Close())
}

func TestUnsupportedBackends(t *testing.T) {
	cfg := baseConfig()
	cfg.CacheBackend = "memcached"
	_, err := Build(cfg)
	assert.ErrorContains(t, err, "unsupported cache backend")

	cfg = baseConfig()
	cfg.TrackerBackend = "trello"
	_, err = Build(cfg)
	assert.ErrorContains(t, err, "unsupported tracker backend")
}

func TestNewTrackerDefaultsToADO(t *testing.T) {
	cfg := baseConfig()
	cfg.TrackerBackend = ""
	tc, err := NewTracker(cfg)
	require.NoError(t, err)
	assert.IsType(t, &ado.Client{}, tc)
}

func TestPipelineConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.SimilarQueryWindow = time.Minute
	cfg.MaxQueryLength = 500
	pc := PipelineConfig(cfg)
	assert.Equal(t, 2, pc.MaxRetries)
	assert.Equal(t, 10*time.Second, pc.Timeout)
	assert.Equal(t, time.Minute, pc.SimilarWindow)
	assert.Equal(t, 500, pc.MaxQueryLength)
}
