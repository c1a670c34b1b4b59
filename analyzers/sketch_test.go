package analyzers

import (
	"context"
	"testing"

	"github.com/Velocidex/ordereddict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.timesketch.org/golang/timesketch/models"
	"www.timesketch.org/golang/timesketch/vtesting"
)

func makeSketchFixture(t *testing.T) (*Runtime, models.Store) {
	t.Helper()

	db := models.NewMemoryStore()
	sketch := &models.Sketch{Name: "Investigation"}
	require.NoError(t, db.CreateSketch(sketch))

	runtime := NewRuntime(context.Background(), vtesting.TestConfig(),
		vtesting.NewMockEventStore(), db, sketch,
		&AnalyzerInfo{Name: "domain", DisplayName: "Domain"},
		"idx1", 1, 0, nil)
	return runtime, db
}

func TestAddViewIdempotent(t *testing.T) {
	runtime, db := makeSketchFixture(t)
	sketch := runtime.GetSketch()

	view, err := sketch.AddView(
		"Watched domains", "tag:watched-domain", "", "")
	require.NoError(t, err)
	assert.Equal(t, "[Domain] Watched domains", view.Name)

	_, err = sketch.AddView(
		"Watched domains", "tag:watched-domain AND domain:*", "", "")
	require.NoError(t, err)

	views, err := db.ViewsForSketch(runtime.Sketch.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "tag:watched-domain AND domain:*", views[0].Query)
}

func TestAddViewRequiresQuery(t *testing.T) {
	runtime, _ := makeSketchFixture(t)

	_, err := runtime.GetSketch().AddView("empty", "", "", "")
	require.Error(t, err)
}

func TestAddViewRefusedOnArchivedSketch(t *testing.T) {
	runtime, _ := makeSketchFixture(t)
	runtime.Sketch.Status = models.SketchStatusArchived

	_, err := runtime.GetSketch().AddView("v", "q:1", "", "")
	require.Error(t, err)
}

func TestSketchAttributes(t *testing.T) {
	runtime, db := makeSketchFixture(t)
	sketch := runtime.GetSketch()

	err := sketch.AddSketchAttribute(
		"intelligence_count", 3, "int")
	require.NoError(t, err)

	// Type mismatch is rejected.
	err = sketch.AddSketchAttribute("bad", "three", "int")
	require.Error(t, err)

	attributes, err := db.GetSketchAttributes(runtime.Sketch.ID)
	require.NoError(t, err)
	require.Len(t, attributes, 1)
	assert.Equal(t, "int", attributes[0].Ontology)
}

func TestStoryBlocks(t *testing.T) {
	runtime, db := makeSketchFixture(t)
	sketch := runtime.GetSketch()

	story, err := sketch.AddStory("Gap analysis")
	require.NoError(t, err)
	require.NoError(t, story.AddText("## Findings"))

	view, err := sketch.AddView("gaps", "tag:gap", "", "")
	require.NoError(t, err)
	require.NoError(t, story.AddView(view))

	agg, err := sketch.AddAggregation(
		"events per day", "barchart", "",
		ordereddict.NewDict().Set("field", "datetime"))
	require.NoError(t, err)
	require.NoError(t, story.AddAggregation(agg))

	stories, err := db.StoriesForSketch(runtime.Sketch.ID)
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.Contains(t, stories[0].Content, "## Findings")
	assert.Contains(t, stories[0].Content, "TsViewEventList")
	assert.Contains(t, stories[0].Content, "TsAggregationCompact")

	// The output record references everything that was saved.
	assert.Equal(t, []int64{story.ID()}, runtime.Output.SavedStories)
	assert.Equal(t, []int64{view.ID}, runtime.Output.SavedViews)
	assert.Equal(t, []int64{agg.ID}, runtime.Output.SavedAggregations)
}
