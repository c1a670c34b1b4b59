package analyzers

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.timesketch.org/golang/timesketch/models"
	"www.timesketch.org/golang/timesketch/vtesting"
)

type runnerFixture struct {
	store   *vtesting.MockEventStore
	db      models.Store
	runtime *Runtime
}

func makeRunnerFixture(t *testing.T, info *AnalyzerInfo,
	event_count int) *runnerFixture {
	t.Helper()

	store := vtesting.NewMockEventStore()
	for i := 0; i < event_count; i++ {
		store.Events = append(store.Events, vtesting.MakeEvent(
			fmt.Sprintf("event%d", i), "idx1",
			"message", fmt.Sprintf("message %d", i),
			"datetime", "2026-08-01T00:00:00+00:00"))
	}

	db := models.NewMemoryStore()

	sketch := &models.Sketch{Name: "Test", Status: models.SketchStatusReady}
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

	runtime := NewRuntime(context.Background(), vtesting.TestConfig(),
		store, db, sketch, info, "idx1", timeline.ID, analysis.ID, nil)

	return &runnerFixture{store: store, db: db, runtime: runtime}
}

type taggingAnalyzer struct {
	fail bool
}

func (self *taggingAnalyzer) Info() *AnalyzerInfo {
	return &AnalyzerInfo{
		Name:        "tagging_test",
		DisplayName: "TaggingTest",
	}
}

func (self *taggingAnalyzer) Run(runtime *Runtime) (string, error) {
	count := 0
	err := runtime.EventStream(
		&StreamOptions{QueryString: "*"},
		func(event *Event) error {
			event.AddTags([]string{"test-tag"})
			event.AddHumanReadable("matched", false)
			count++
			return event.Commit()
		})
	if err != nil {
		return "", err
	}
	if self.fail {
		return "", ConfigErrorf("forced failure")
	}
	return fmt.Sprintf("%d events tagged", count), nil
}

func TestRunAnalysisSuccess(t *testing.T) {
	analyzer := &taggingAnalyzer{}
	fixture := makeRunnerFixture(t, analyzer.Info(), 3)

	err := RunAnalysis(analyzer, fixture.runtime)
	require.NoError(t, err)

	analysis, err := fixture.db.GetAnalysis(
		fixture.runtime.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusDone, analysis.Status)
	assert.Contains(t, analysis.Result, `"result_status":"SUCCESS"`)
	assert.Contains(t, analysis.Result, "3 events tagged")

	// One commit per event, flushed once at the end.
	assert.Len(t, fixture.store.Imported, 3)
	assert.Equal(t, 1, fixture.store.FlushCount)
	assert.Equal(t, []string{"idx1"}, fixture.store.Refreshed)

	tags, pres := fixture.store.Imported[0].Event.Get("tag")
	require.True(t, pres)
	assert.Equal(t, []string{"test-tag"}, tags)

	hr, pres := fixture.store.Imported[0].Event.Get("human_readable")
	require.True(t, pres)
	assert.Equal(t, []string{"[taggingtest] matched"}, hr)

	index, err := fixture.db.GetSearchIndex("idx1")
	require.NoError(t, err)
	assert.Contains(t, index.Description,
		"[TaggingTest] 3 events tagged")
}

func TestRunAnalysisErrorStillFlushes(t *testing.T) {
	analyzer := &taggingAnalyzer{fail: true}
	fixture := makeRunnerFixture(t, analyzer.Info(), 2)

	err := RunAnalysis(analyzer, fixture.runtime)
	require.Error(t, err)

	analysis, err := fixture.db.GetAnalysis(
		fixture.runtime.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusError, analysis.Status)
	assert.Contains(t, analysis.Result, `"result_status":"ERROR"`)

	// Updates staged before the failure were delivered anyway.
	assert.Len(t, fixture.store.Imported, 2)
	assert.Equal(t, 1, fixture.store.FlushCount)
}

func TestRunAnalysisCancelledBeforeStart(t *testing.T) {
	analyzer := &taggingAnalyzer{}
	fixture := makeRunnerFixture(t, analyzer.Info(), 10)

	require.NoError(t, fixture.db.SetAnalysisStatus(
		fixture.runtime.AnalysisID, models.AnalysisStatusStopping))

	err := RunAnalysis(analyzer, fixture.runtime)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")

	analysis, err := fixture.db.GetAnalysis(
		fixture.runtime.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusError, analysis.Status)
	assert.Empty(t, fixture.store.Imported)
}

type stoppingAnalyzer struct {
	stop_after int
}

func (self *stoppingAnalyzer) Info() *AnalyzerInfo {
	return &AnalyzerInfo{
		Name:        "stopping_test",
		DisplayName: "StoppingTest",
	}
}

func (self *stoppingAnalyzer) Run(runtime *Runtime) (string, error) {
	count := 0
	err := runtime.EventStream(
		&StreamOptions{QueryString: "*"},
		func(event *Event) error {
			count++
			if count == self.stop_after {
				err := runtime.DB.SetAnalysisStatus(
					runtime.AnalysisID,
					models.AnalysisStatusStopping)
				if err != nil {
					return err
				}
			}
			event.AddTags([]string{"partial"})
			return event.Commit()
		})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d events", count), nil
}

func TestRunAnalysisStoppedMidStream(t *testing.T) {
	analyzer := &stoppingAnalyzer{stop_after: 50}
	fixture := makeRunnerFixture(t, analyzer.Info(), 500)

	err := RunAnalysis(analyzer, fixture.runtime)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")

	analysis, err := fixture.db.GetAnalysis(
		fixture.runtime.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusError, analysis.Status)

	// The stop takes effect at the next check boundary, already
	// applied updates are flushed anyway.
	assert.Less(t, len(fixture.store.Imported), 500)
	assert.GreaterOrEqual(t, len(fixture.store.Imported), 50)
	assert.Equal(t, 1, fixture.store.FlushCount)
}

func TestRunAnalysisEmptySummarySubstituted(t *testing.T) {
	analyzer := &emptySummaryAnalyzer{}
	fixture := makeRunnerFixture(t, analyzer.Info(), 0)

	err := RunAnalysis(analyzer, fixture.runtime)
	require.NoError(t, err)

	analysis, err := fixture.db.GetAnalysis(
		fixture.runtime.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusDone, analysis.Status)
	assert.Contains(t, analysis.Result, "No results")
}

type emptySummaryAnalyzer struct{}

func (self *emptySummaryAnalyzer) Info() *AnalyzerInfo {
	return &AnalyzerInfo{
		Name:        "empty_summary_test",
		DisplayName: "EmptySummaryTest",
	}
}

func (self *emptySummaryAnalyzer) Run(runtime *Runtime) (string, error) {
	return "", nil
}
