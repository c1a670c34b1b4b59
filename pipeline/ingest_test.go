package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.timesketch.org/golang/timesketch/analyzers"
	"www.timesketch.org/golang/timesketch/datastore"
	"www.timesketch.org/golang/timesketch/models"
	"www.timesketch.org/golang/timesketch/tabular"
	"www.timesketch.org/golang/timesketch/vtesting"
	"www.timesketch.org/golang/timesketch/vtesting/goldie"
)

func writeUpload(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func makeIngestFixture(t *testing.T, runner *Runner) (
	*models.Sketch, *models.Timeline) {
	t.Helper()
	return makeBuilderFixture(t, runner)
}

func runIngest(t *testing.T, runner *Runner, timeline *models.Timeline,
	file_path, extension string) error {
	t.Helper()

	_, err := runner.Run(context.Background(),
		Call("ingest", map[string]interface{}{
			"file_path":      file_path,
			"file_extension": extension,
			"index_name":     "idx1",
			"timeline_id":    timeline.ID,
		}))
	return err
}

func TestCsvIngest(t *testing.T) {
	runner := makeRunner(t)
	_, timeline := makeIngestFixture(t, runner)

	path := writeUpload(t, "events.csv",
		"message,datetime,timestamp_desc,source_ip\n"+
			"login,2024-03-01T10:00:00Z,Event Logged,10.0.0.1\n"+
			"logout,2024-03-01T11:00:00Z,Event Logged,10.0.0.1\n")

	require.NoError(t, runIngest(t, runner, timeline, path, "csv"))

	store := runner.Env().Store.(*vtesting.MockEventStore)
	require.Len(t, store.Imported, 2)
	assert.Equal(t, []string{"idx1"}, store.Created)
	assert.Equal(t, 1, store.FlushCount)

	event := store.Imported[0].Event
	message, _ := event.GetString("message")
	assert.Equal(t, "login", message)

	// timestamp derived from the datetime column, in microseconds.
	timestamp, _ := event.Get("timestamp")
	assert.Equal(t,
		time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC).UnixMicro(),
		timestamp)

	db := runner.Env().DB
	index, err := db.GetSearchIndex("idx1")
	require.NoError(t, err)
	assert.Equal(t, models.IndexStatusReady, index.Status)

	updated, err := db.GetTimeline(timeline.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TimelineStatusReady, updated.Status)
}

func TestCsvMissingHeader(t *testing.T) {
	runner := makeRunner(t)
	_, timeline := makeIngestFixture(t, runner)

	path := writeUpload(t, "bad.csv",
		"message,timestamp_desc\nlogin,Event Logged\n")

	err := runIngest(t, runner, timeline, path, "csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(),
		"Missing fields in CSV header: ['datetime']")

	db := runner.Env().DB
	index, index_err := db.GetSearchIndex("idx1")
	require.NoError(t, index_err)
	assert.Equal(t, models.IndexStatusFail, index.Status)
	assert.Contains(t, index.Description,
		"Missing fields in CSV header")

	updated, timeline_err := db.GetTimeline(timeline.ID)
	require.NoError(t, timeline_err)
	assert.Equal(t, models.TimelineStatusFail, updated.Status)
}

func TestJsonlIngest(t *testing.T) {
	runner := makeRunner(t)
	_, timeline := makeIngestFixture(t, runner)

	path := writeUpload(t, "events.jsonl",
		`{"message":"one","datetime":"2024-03-01T10:00:00Z",`+
			`"timestamp_desc":"Event Logged"}`+"\n"+
			`{"message":"two","datetime":"2024-03-01T11:00:00Z",`+
			`"timestamp_desc":"Event Logged","timestamp":42}`+"\n")

	require.NoError(t, runIngest(t, runner, timeline, path, "jsonl"))

	store := runner.Env().Store.(*vtesting.MockEventStore)
	require.Len(t, store.Imported, 2)

	// An explicit timestamp is preserved.
	timestamp, _ := store.Imported[1].Event.Get("timestamp")
	parsed, ok := tabular.AsInt64(timestamp)
	require.True(t, ok)
	assert.EqualValues(t, 42, parsed)
}

func TestJsonlMissingMandatoryField(t *testing.T) {
	runner := makeRunner(t)
	_, timeline := makeIngestFixture(t, runner)

	path := writeUpload(t, "events.jsonl",
		`{"message":"one","datetime":"2024-03-01T10:00:00Z"}`+"\n")

	err := runIngest(t, runner, timeline, path, "jsonl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timestamp_desc")
}

func TestUnsupportedExtension(t *testing.T) {
	runner := makeRunner(t)
	_, timeline := makeIngestFixture(t, runner)

	path := writeUpload(t, "events.xlsx", "not a timeline")

	err := runIngest(t, runner, timeline, path, "xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file extension")
}

func TestImportDigest(t *testing.T) {
	result := &datastore.ImportResult{
		NumberOfEvents: 90,
		TotalEvents:    100,
		ErrorsInUpload: true,
		ErrorContainer: map[string]*datastore.IndexErrors{
			"idx1": {
				Types: map[string]int{
					"mapper_parsing_exception": 8,
					"version_conflict":         2,
				},
				Details: map[string]int{
					"failed to parse field [timestamp]": 8,
					"document already exists":           2,
				},
			},
		},
	}

	digest := importDigest("idx1", 100, result)
	assert.Equal(t,
		`90 out of 100 events imported. Most common error type is `+
			`"mapper_parsing_exception" with the detail of `+
			`"failed to parse field [timestamp]"`, digest)
	goldie.Assert(t, "TestImportDigest", []byte(digest))

	// Clean uploads produce no digest.
	assert.Empty(t, importDigest("idx1", 100,
		&datastore.ImportResult{NumberOfEvents: 100}))
}

func TestIngestPipelineOnlyIndex(t *testing.T) {
	runner := makeRunner(t)
	sketch, timeline := makeIngestFixture(t, runner)

	path := writeUpload(t, "events.csv",
		"message,datetime,timestamp_desc\n"+
			"login,2024-03-01T10:00:00Z,Event Logged\n")

	node, session, err := BuildIngestPipeline(runner.Env(),
		&IngestOptions{
			FilePath:      path,
			FileExtension: "csv",
			IndexName:     "idx1",
			TimelineID:    timeline.ID,
			SketchID:      sketch.ID,
			OnlyIndex:     true,
		})
	require.NoError(t, err)
	assert.Nil(t, session)

	_, err = runner.Run(context.Background(), node)
	require.NoError(t, err)

	// No barrier, no analyses: just the ingest task.
	store := runner.Env().Store.(*vtesting.MockEventStore)
	assert.Empty(t, store.Refreshed)
}

func TestIngestPipelineWithAnalyzers(t *testing.T) {
	stub := &stubAnalyzer{
		info:    analyzers.AnalyzerInfo{Name: "stub_ingest"},
		summary: "looked at everything",
	}
	require.NoError(t, analyzers.Register(stub))
	defer analyzers.Deregister("stub_ingest")

	runner := makeRunner(t)
	runner.Env().Config.Analyzers.AutoSketchAnalyzers =
		[]string{"stub_ingest"}

	sketch, timeline := makeIngestFixture(t, runner)

	path := writeUpload(t, "events.csv",
		"message,datetime,timestamp_desc\n"+
			"login,2024-03-01T10:00:00Z,Event Logged\n")

	node, session, err := BuildIngestPipeline(runner.Env(),
		&IngestOptions{
			FilePath:      path,
			FileExtension: "csv",
			IndexName:     "idx1",
			TimelineID:    timeline.ID,
			SketchID:      sketch.ID,
		})
	require.NoError(t, err)
	require.NotNil(t, session)

	_, err = runner.Run(context.Background(), node)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.Runs())

	// The barrier refreshed the index before analysis.
	store := runner.Env().Store.(*vtesting.MockEventStore)
	assert.Contains(t, store.Refreshed, "idx1")

	db := runner.Env().DB
	records, err := db.AnalysesForSession(session.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.AnalysisStatusDone, records[0].Status)
}
