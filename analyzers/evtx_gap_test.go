package analyzers

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.timesketch.org/golang/timesketch/datastore"
	"www.timesketch.org/golang/timesketch/vtesting"
)

func TestMissingRanges(t *testing.T) {
	assert.Empty(t, missingRanges(nil))
	assert.Empty(t, missingRanges([]int64{1, 2, 3}))
	assert.Empty(t, missingRanges([]int64{3, 1, 2, 2}))

	gaps := missingRanges([]int64{1, 2, 10, 11, 20})
	require.Len(t, gaps, 2)
	assert.Equal(t, recordRange{first: 3, last: 9}, gaps[0])
	assert.Equal(t, recordRange{first: 12, last: 19}, gaps[1])
}

func TestEvtxGapStory(t *testing.T) {
	events := []*datastore.EventDoc{}
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	// Record numbers 1..100 with 50..60 missing.
	for number := 1; number <= 100; number++ {
		if number >= 50 && number <= 60 {
			continue
		}
		events = append(events, vtesting.MakeEvent(
			fmt.Sprintf("e%d", number), "idx1",
			"data_type", "windows:evtx:record",
			"source_name", "Security",
			"record_number", int64(number),
			"timestamp", base.UnixMicro()))
	}

	analyzer := &EvtxGapSketchPlugin{}
	fixture := makeFixtureWithEvents(t, vtesting.TestConfig(),
		analyzer.Info(), events)

	err := RunAnalysis(analyzer, fixture.runtime)
	require.NoError(t, err)

	stories, err := fixture.db.StoriesForSketch(
		fixture.runtime.Sketch.ID)
	require.NoError(t, err)
	require.Len(t, stories, 1)

	assert.Contains(t, stories[0].Content,
		"Records from number 50 all the way up to 60 are missing")
	assert.Contains(t, stories[0].Content, "TsAggregationCompact")

	analysis, err := fixture.db.GetAnalysis(fixture.runtime.AnalysisID)
	require.NoError(t, err)
	assert.Contains(t, analysis.Result, `"result_priority":"MEDIUM"`)

	// The gap analyzer reads, it never rewrites events.
	assert.Empty(t, fixture.store.Imported)
}

func TestEvtxGapQuietDays(t *testing.T) {
	events := []*datastore.EventDoc{}
	id := 0
	addDay := func(day time.Time, count int) {
		for i := 0; i < count; i++ {
			id++
			events = append(events, vtesting.MakeEvent(
				fmt.Sprintf("e%d", id), "idx1",
				"data_type", "windows:evtx:record",
				"source_name", "System",
				"record_number", int64(id),
				"timestamp", day.UnixMicro()))
		}
	}

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	addDay(base, 100)
	addDay(base.AddDate(0, 0, 1), 100)
	// No records on Aug 3.
	addDay(base.AddDate(0, 0, 3), 100)
	addDay(base.AddDate(0, 0, 4), 1)

	analyzer := &EvtxGapSketchPlugin{}
	fixture := makeFixtureWithEvents(t, vtesting.TestConfig(),
		analyzer.Info(), events)

	err := RunAnalysis(analyzer, fixture.runtime)
	require.NoError(t, err)

	stories, err := fixture.db.StoriesForSketch(
		fixture.runtime.Sketch.ID)
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.Contains(t, stories[0].Content,
		"No event log records on 2026-08-03")
	assert.Contains(t, stories[0].Content, "2026-08-05")
}
