// internal/common/config/loader_test.go
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaults_PipelinePolicy(t *testing.T) {
	cfg := &Config{}

	applyDefaults(cfg)

	assert.Equal(t, 30000, cfg.Pipeline.RequestTimeout)
	assert.Equal(t, 3000, cfg.Pipeline.ProviderTimeout)
	assert.Equal(t, 0.6, cfg.Pipeline.ConfidenceThreshold)
	assert.Equal(t, 300, cfg.Pipeline.CacheTTL)
	assert.Equal(t, 20, cfg.Pipeline.MaxTurnHistory)
}

func TestApplyDefaults_KeepsConfiguredValues(t *testing.T) {
	cfg := &Config{Pipeline: PipelineConfig{ProviderTimeout: 4500, RequestTimeout: 15000}}

	applyDefaults(cfg)

	assert.Equal(t, 4500, cfg.Pipeline.ProviderTimeout)
	assert.Equal(t, 15000, cfg.Pipeline.RequestTimeout)
}

func TestPipelineConfig_Deadlines(t *testing.T) {
	p := PipelineConfig{RequestTimeout: 30000, ProviderTimeout: 2500}

	assert.Equal(t, 30*time.Second, p.RequestDeadline())
	assert.Equal(t, 2500*time.Millisecond, p.ProviderDeadline())
}
