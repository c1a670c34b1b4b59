package analyzers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"www.timesketch.org/golang/timesketch/config"
	"www.timesketch.org/golang/timesketch/datastore"
	"www.timesketch.org/golang/timesketch/models"
	"www.timesketch.org/golang/timesketch/vtesting"
)

// makeFixtureWithEvents builds a complete run environment around a
// preset list of events.
func makeFixtureWithEvents(t *testing.T, config_obj *config.Config,
	info *AnalyzerInfo,
	events []*datastore.EventDoc) *runnerFixture {
	t.Helper()

	store := vtesting.NewMockEventStore()
	store.Events = events

	db := models.NewMemoryStore()

	sketch := &models.Sketch{
		Name: "Test", Status: models.SketchStatusReady}
	require.NoError(t, db.CreateSketch(sketch))

	index := &models.SearchIndex{Name: "t1", IndexName: "idx1"}
	require.NoError(t, db.CreateSearchIndex(index))
	require.NoError(t,
		db.SetSearchIndexStatus("idx1", models.IndexStatusReady))

	timeline := &models.Timeline{
		Name: "t1", SketchID: sketch.ID, SearchIndexID: index.ID}
	require.NoError(t, db.CreateTimeline(timeline))
	require.NoError(t, db.SetTimelineStatus(
		timeline.ID, models.TimelineStatusReady))

	analysis := &models.Analysis{
		SketchID:     sketch.ID,
		TimelineID:   timeline.ID,
		AnalyzerName: info.Name,
		Status:       models.AnalysisStatusPending,
	}
	require.NoError(t, db.CreateAnalysis(analysis))

	runtime := NewRuntime(context.Background(), config_obj,
		store, db, sketch, info, "idx1", timeline.ID, analysis.ID,
		nil)

	return &runnerFixture{store: store, db: db, runtime: runtime}
}
