package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func newViper(overrides map[string]interface{}) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestDefaults(t *testing.T) {
	cfg := FromViper(newViper(nil))
	assert.Equal(t, QueryAgentName, cfg.AgentName)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 60*time.Second, cfg.PipelineTimeout)
	assert.Equal(t, 20*time.Second, cfg.CallTimeout)
	assert.Equal(t, "http://localhost:8080", cfg.AgentURL)
	assert.True(t, cfg.ValidatorEnabled)
	assert.Equal(t, "memory", cfg.CacheBackend)
}

func TestCallTimeoutStaysBelowPipelineTimeout(t *testing.T) {
	cfg := FromViper(newViper(map[string]interface{}{
		"pipeline_timeout": "30s",
		"call_timeout":     "45s",
		"llm_timeout":      "40s",
		"tracker_timeout":  "5s",
	}))
	assert.Equal(t, 10*time.Second, cfg.CallTimeout)
	assert.Equal(t, 10*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 5*time.Second, cfg.TrackerTimeout)
}

func TestNormalizeClampsNonsense(t *testing.T) {
	cfg := FromViper(newViper(map[string]interface{}{
		"max_retries":      -3,
		"executor_workers": 0,
		"tracker_backend":  "JIRA",
		"tracker_base_url": "https://example.atlassian.net/",
	}))
	assert.Equal(t, 0, cfg.MaxRetries)
	assert.Equal(t, 1, cfg.ExecutorWorkers)
	assert.Equal(t, "jira", cfg.TrackerBackend)
	assert.Equal(t, "https://example.atlassian.net", cfg.TrackerBaseURL)
}
