package datastore

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildAndDecode(t *testing.T, sketch_id int64, query_string string,
	query_filter *Filter, query_dsl string,
	timeline_ids []int64) (map[string]interface{}, string) {

	query_doc, err := BuildQuery(
		sketch_id, query_string, query_filter, query_dsl, timeline_ids)
	require.NoError(t, err)

	serialized, err := SerializeQuery(query_doc)
	require.NoError(t, err)

	decoded := make(map[string]interface{})
	require.NoError(t, json.Unmarshal(serialized, &decoded))
	return decoded, string(serialized)
}

func TestBuildQueryDeterminism(t *testing.T) {
	filter := &Filter{
		Size: 100,
		Chips: []*Chip{
			{Type: "label", Value: "__ts_star"},
			{Type: "term", Field: "domain", Value: "example.com"},
		},
	}

	_, first := buildAndDecode(t, 1, "data_type:foo", filter, "", nil)
	_, second := buildAndDecode(t, 1, "data_type:foo", filter, "", nil)
	assert.Equal(t, first, second)
}

func TestBuildQueryString(t *testing.T) {
	decoded, serialized := buildAndDecode(t, 1, "foo bar", &Filter{}, "", nil)

	assert.Contains(t, serialized, `"query_string"`)
	assert.Contains(t, serialized, `"default_operator":"AND"`)

	// Default sort is on datetime ascending.
	sort := decoded["sort"].(map[string]interface{})
	assert.Equal(t, "asc", sort["datetime"])
}

func TestBuildQuerySpecialCharacters(t *testing.T) {
	// Values made of query-syntax characters only become an exact
	// keyword term match.
	_, serialized := buildAndDecode(t, 1, `message:\\{}`, &Filter{}, "", nil)
	assert.Contains(t, serialized, `"term"`)
	assert.Contains(t, serialized, `"message.keyword"`)
	assert.NotContains(t, serialized, `"query_string"`)
}

func TestBuildQueryLabelChip(t *testing.T) {
	filter := &Filter{
		Chips: []*Chip{{Type: "label", Value: "__ts_comment"}},
	}
	_, serialized := buildAndDecode(t, 42, "", filter, "", nil)

	assert.Contains(t, serialized, `"nested"`)
	assert.Contains(t, serialized, `"timesketch_label.name.keyword":"__ts_comment"`)
	assert.Contains(t, serialized, `"timesketch_label.sketch_id":42`)

	// Disabled chips are skipped.
	filter.Chips[0].Disabled = true
	_, serialized = buildAndDecode(t, 42, "", filter, "", nil)
	assert.NotContains(t, serialized, "__ts_comment")
}

func TestBuildQueryTimelineFilter(t *testing.T) {
	_, serialized := buildAndDecode(t, 1, "foo", &Filter{}, "", []int64{3, 4})

	assert.Contains(t, serialized, `"__ts_timeline_id":[3,4]`)
	assert.Contains(t, serialized, `"exists"`)
}

func TestBuildQueryEventsFilter(t *testing.T) {
	filter := &Filter{
		Events: []*EventRef{
			{IndexName: "idx", EventID: "1"},
			{IndexName: "idx", EventID: "2"},
		},
	}
	decoded, serialized := buildAndDecode(t, 1, "", filter, "", nil)

	assert.Contains(t, serialized, `"ids"`)
	assert.Equal(t, float64(2), decoded["size"])
}

func TestBuildQueryFromDSL(t *testing.T) {
	dsl := `{"query": {"match_all": {}}}`
	decoded, _ := buildAndDecode(t, 1, "", &Filter{From: 10, Size: 5}, dsl, nil)

	assert.Equal(t, float64(10), decoded["from"])
	assert.Equal(t, float64(5), decoded["size"])

	// Sort is added when the DSL does not carry one.
	sort := decoded["sort"].(map[string]interface{})
	assert.Equal(t, "asc", sort["datetime"])
}

func TestLabelUpdateScript(t *testing.T) {
	script := LabelUpdateScript(1, 2, "__ts_star", false, false)
	serialized, err := SerializeQuery(script)
	require.NoError(t, err)
	assert.Contains(t, string(serialized), "removeIf")
	assert.Contains(t, string(serialized), `"remove":false`)

	toggled := LabelUpdateScript(1, 2, "__ts_star", true, false)
	serialized, err = SerializeQuery(toggled)
	require.NoError(t, err)
	assert.Contains(t, string(serialized), "removedLabel")
}
