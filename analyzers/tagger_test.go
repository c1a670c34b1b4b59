package analyzers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.timesketch.org/golang/timesketch/config"
	"www.timesketch.org/golang/timesketch/datastore"
	"www.timesketch.org/golang/timesketch/vtesting"
)

const test_tags_yaml = `
yara_match_tagger:
  query_string: 'yara_match:*'
  tags: ['yara', '$yara_match']
  modifiers: ['split']
  emojis: ['SKULL']
  save_search: true
  search_name: 'Yara rule matches'

quarantine_tagger:
  query_string: 'data_type:"santa:diskmount"'
  tags: ['santa-quarantine']
`

func taggerConfig(t *testing.T) *config.Config {
	t.Helper()

	data_dir := t.TempDir()
	err := os.WriteFile(filepath.Join(data_dir, "tags.yaml"),
		[]byte(test_tags_yaml), 0600)
	require.NoError(t, err)

	config_obj := vtesting.TestConfig()
	config_obj.DataDir = data_dir
	return config_obj
}

func TestTaggerKwargsFanOut(t *testing.T) {
	analyzer := &TaggerSketchPlugin{}
	kwargs, err := GetKwargsList(taggerConfig(t), analyzer)
	require.NoError(t, err)
	require.Len(t, kwargs, 2)

	names := []string{}
	for _, item := range kwargs {
		names = append(names, item["tag_name"].(string))
	}
	assert.ElementsMatch(t,
		[]string{"yara_match_tagger", "quarantine_tagger"}, names)
}

func TestTaggerDynamicTags(t *testing.T) {
	analyzer := &TaggerSketchPlugin{}
	fixture := makeFixtureWithEvents(t, taggerConfig(t),
		analyzer.Info(), []*datastore.EventDoc{
			vtesting.MakeEvent("e1", "idx1",
				"yara_match", "rule_one rule_two"),
		})
	fixture.runtime.Kwargs = map[string]interface{}{
		"tag_name": "yara_match_tagger",
	}

	err := RunAnalysis(analyzer, fixture.runtime)
	require.NoError(t, err)

	updates := fixture.store.UpdatesForEvent("e1")
	require.Len(t, updates, 1)
	tags, _ := updates[0].Get("tag")
	assert.Equal(t, []string{"yara", "rule_one", "rule_two"}, tags)

	analysis, err := fixture.db.GetAnalysis(fixture.runtime.AnalysisID)
	require.NoError(t, err)
	assert.Contains(t, analysis.Result,
		"1 events tagged for [yara_match_tagger]")
	assert.Contains(t, analysis.Result, `"created_tags"`)

	// The save_search flag produced a view.
	views, err := fixture.db.ViewsForSketch(fixture.runtime.Sketch.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Contains(t, views[0].Name, "Yara rule matches")
}

func TestTaggerUnknownRule(t *testing.T) {
	analyzer := &TaggerSketchPlugin{}
	fixture := makeFixtureWithEvents(t, taggerConfig(t),
		analyzer.Info(), nil)
	fixture.runtime.Kwargs = map[string]interface{}{
		"tag_name": "no_such_rule",
	}

	err := RunAnalysis(analyzer, fixture.runtime)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tag rule")
}

func TestExpandTag(t *testing.T) {
	rule := &TagRule{Modifiers: []string{"split", "upper"}}
	event := NewEvent(nil, vtesting.MakeEvent("e1", "idx1",
		"found_in", "alpha beta"))

	assert.Equal(t, []string{"static"},
		expandTag(event, "static", rule, nil))
	assert.Equal(t, []string{"ALPHA", "BETA"},
		expandTag(event, "$found_in", rule, nil))
	assert.Empty(t, expandTag(event, "$missing", rule, nil))
}
