package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sample_config = `
elastic:
  addresses:
    - http://elastic.example.com:9200
  flush_interval: 500

analyzers:
  auto_sketch_analyzers:
    - tagger
    - sigma
  auto_sketch_analyzers_kwargs:
    tagger:
      tags_file: tags.yaml
    sessionizer:
      - max_time_diff_micros: 1000
      - max_time_diff_micros: 2000

dfiq:
  enabled: true
  path: /etc/timesketch/dfiq
`

func TestLoadConfig(t *testing.T) {
	config_obj, err := ParseConfigFromString([]byte(sample_config))
	require.NoError(t, err)

	assert.Equal(t, []string{"http://elastic.example.com:9200"},
		[]string(config_obj.Elastic.Addresses))
	assert.Equal(t, 500, config_obj.Elastic.FlushInterval)
	assert.Equal(t, []string{"tagger", "sigma"},
		[]string(config_obj.Analyzers.AutoSketchAnalyzers))
	assert.True(t, config_obj.DFIQ.Enabled)

	// Omitted sections fall back to defaults.
	assert.Equal(t, 10, config_obj.Workers.PoolSize)
	assert.Equal(t, 30, config_obj.LLM.TimeoutSeconds)
	assert.Equal(t, 10, config_obj.Analyzers.DomainWatchedThreshold)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	_, err := ParseConfigFromString([]byte("not_a_section: true"))
	assert.Error(t, err)
}

func TestNormalizeKwargs(t *testing.T) {
	config_obj, err := ParseConfigFromString([]byte(sample_config))
	require.NoError(t, err)

	// Single mapping becomes one analysis.
	single := NormalizeKwargs(
		config_obj.Analyzers.AutoSketchAnalyzersKwargs["tagger"])
	require.Len(t, single, 1)
	assert.Equal(t, "tags.yaml", single[0]["tags_file"])

	// A list of mappings fans out one analysis per mapping.
	multi := NormalizeKwargs(
		config_obj.Analyzers.AutoSketchAnalyzersKwargs["sessionizer"])
	require.Len(t, multi, 2)
	assert.Equal(t, 1000, multi[0]["max_time_diff_micros"])
	assert.Equal(t, 2000, multi[1]["max_time_diff_micros"])

	assert.Nil(t, NormalizeKwargs(nil))
}
