package analyzers

import (
	"testing"

	"github.com/Velocidex/ordereddict"
	"github.com/stretchr/testify/assert"
)

func TestOutputValidation(t *testing.T) {
	output := NewOutput("domain", "DomainSketchPlugin")
	err := output.Validate()
	assert.Error(t, err)

	output.ResultStatus = "SUCCESS"
	err = output.Validate()
	assert.Error(t, err)

	output.ResultSummary = "3 domains discovered"
	err = output.Validate()
	assert.NoError(t, err)

	output.ResultStatus = "MAYBE"
	err = output.Validate()
	assert.Error(t, err)
}

func TestOutputPriorityOnlyRises(t *testing.T) {
	output := NewOutput("domain", "DomainSketchPlugin")
	assert.Equal(t, "NOTE", output.ResultPriority)

	output.SetPriority("MEDIUM")
	assert.Equal(t, "MEDIUM", output.ResultPriority)

	output.SetPriority("LOW")
	assert.Equal(t, "MEDIUM", output.ResultPriority)

	output.SetPriority("HIGH")
	assert.Equal(t, "HIGH", output.ResultPriority)

	output.SetPriority("BOGUS")
	assert.Equal(t, "HIGH", output.ResultPriority)
}

func TestOutputSerialization(t *testing.T) {
	output := NewOutput("browser_search", "BrowserSearchSketchPlugin")
	output.ResultStatus = "SUCCESS"
	output.ResultSummary = "Browser searches found: 12"
	output.TimesketchInstance = "https://localhost"
	output.SketchID = 1
	output.TimelineID = 2
	output.SavedViews = []int64{7}
	output.AddCreatedTag("browser-search")
	output.AddCreatedTag("browser-search")
	output.ResultAttributes = ordereddict.NewDict().
		Set("search_count", 12)

	serialized, err := output.ToJson()
	assert.NoError(t, err)
	assert.Contains(t, serialized, `"platform":"timesketch"`)
	assert.Contains(t, serialized, `"result_status":"SUCCESS"`)
	assert.Contains(t, serialized, `"saved_views":[7]`)
	assert.Contains(t, serialized, `"created_tags":["browser-search"]`)
	assert.Equal(t, []string{"browser-search"}, output.CreatedTags)
}
