package models

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type StoreTestSuite struct {
	suite.Suite

	store Store
}

func (self *StoreTestSuite) TestSearchIndexLifecycle() {
	index := &SearchIndex{
		Name:      "My timeline",
		IndexName: "abc123",
	}
	require.NoError(self.T(), self.store.CreateSearchIndex(index))
	assert.NotZero(self.T(), index.ID)

	fetched, err := self.store.GetSearchIndex("abc123")
	require.NoError(self.T(), err)
	assert.Equal(self.T(), IndexStatusNew, fetched.Status)

	require.NoError(self.T(),
		self.store.SetSearchIndexStatus("abc123", IndexStatusReady))
	require.NoError(self.T(),
		self.store.AppendSearchIndexDescription("abc123", "imported ok"))
	require.NoError(self.T(),
		self.store.AppendSearchIndexDescription("abc123", "second line"))

	fetched, err = self.store.GetSearchIndex("abc123")
	require.NoError(self.T(), err)
	assert.Equal(self.T(), IndexStatusReady, fetched.Status)
	assert.Equal(self.T(), "imported ok\nsecond line", fetched.Description)

	_, err = self.store.GetSearchIndex("no_such_index")
	assert.ErrorIs(self.T(), err, ErrNotFound)
}

func (self *StoreTestSuite) TestTimelines() {
	index := &SearchIndex{Name: "t", IndexName: "idx1"}
	require.NoError(self.T(), self.store.CreateSearchIndex(index))

	sketch := &Sketch{Name: "Investigation"}
	require.NoError(self.T(), self.store.CreateSketch(sketch))

	first := &Timeline{
		Name: "one", SketchID: sketch.ID, SearchIndexID: index.ID}
	second := &Timeline{
		Name: "two", SketchID: sketch.ID, SearchIndexID: index.ID}
	require.NoError(self.T(), self.store.CreateTimeline(first))
	require.NoError(self.T(), self.store.CreateTimeline(second))

	timelines, err := self.store.TimelinesForSketch(sketch.ID)
	require.NoError(self.T(), err)
	assert.Len(self.T(), timelines, 2)

	// Archived timelines drop out of the active set.
	require.NoError(self.T(),
		self.store.SetTimelineStatus(second.ID, TimelineStatusArchived))
	active, err := self.store.ActiveTimelinesForIndex("idx1")
	require.NoError(self.T(), err)
	require.Len(self.T(), active, 1)
	assert.Equal(self.T(), "one", active[0].Name)
}

func (self *StoreTestSuite) TestViewUpsert() {
	sketch := &Sketch{Name: "s"}
	require.NoError(self.T(), self.store.CreateSketch(sketch))

	view := &View{SketchID: sketch.ID, Name: "Results", Query: "foo"}
	require.NoError(self.T(), self.store.UpsertView(view))

	// Same (sketch, name) updates in place.
	updated := &View{SketchID: sketch.ID, Name: "Results", Query: "bar"}
	require.NoError(self.T(), self.store.UpsertView(updated))

	views, err := self.store.ViewsForSketch(sketch.ID)
	require.NoError(self.T(), err)
	require.Len(self.T(), views, 1)
	assert.Equal(self.T(), "bar", views[0].Query)
}

func (self *StoreTestSuite) TestAnalyses() {
	sketch := &Sketch{Name: "s"}
	require.NoError(self.T(), self.store.CreateSketch(sketch))

	session := &AnalysisSession{SketchID: sketch.ID}
	require.NoError(self.T(), self.store.CreateAnalysisSession(session))

	analysis := &Analysis{
		SketchID:     sketch.ID,
		TimelineID:   7,
		SessionID:    session.ID,
		AnalyzerName: "tagger",
		Parameters:   `{"hash": "abc"}`,
	}
	require.NoError(self.T(), self.store.CreateAnalysis(analysis))

	status, err := self.store.GetAnalysisStatus(analysis.ID)
	require.NoError(self.T(), err)
	assert.Equal(self.T(), AnalysisStatusPending, status)

	require.NoError(self.T(),
		self.store.SetAnalysisStatus(analysis.ID, AnalysisStatusStarted))

	analysis.Status = AnalysisStatusDone
	analysis.Result = "tagged 5 events"
	require.NoError(self.T(), self.store.UpdateAnalysis(analysis))

	for_timeline, err := self.store.AnalysesForTimeline(7, "tagger")
	require.NoError(self.T(), err)
	require.Len(self.T(), for_timeline, 1)
	assert.Equal(self.T(), "tagged 5 events", for_timeline[0].Result)

	for_session, err := self.store.AnalysesForSession(session.ID)
	require.NoError(self.T(), err)
	assert.Len(self.T(), for_session, 1)

	none, err := self.store.AnalysesForTimeline(7, "sigma")
	require.NoError(self.T(), err)
	assert.Empty(self.T(), none)
}

func (self *StoreTestSuite) TestSketchAttributes() {
	sketch := &Sketch{Name: "s"}
	require.NoError(self.T(), self.store.CreateSketch(sketch))

	require.NoError(self.T(), self.store.SetSketchAttribute(
		sketch.ID, "count", "int", "5"))
	require.NoError(self.T(), self.store.SetSketchAttribute(
		sketch.ID, "count", "int", "6"))

	attrs, err := self.store.GetSketchAttributes(sketch.ID)
	require.NoError(self.T(), err)
	require.Len(self.T(), attrs, 1)
	assert.Equal(self.T(), "6", attrs[0].Value)
}

type MemoryStoreTestSuite struct {
	StoreTestSuite
}

func (self *MemoryStoreTestSuite) SetupTest() {
	self.store = NewMemoryStore()
}

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &MemoryStoreTestSuite{})
}

type SqliteStoreTestSuite struct {
	StoreTestSuite
}

func (self *SqliteStoreTestSuite) SetupTest() {
	store, err := NewSqliteStore(
		filepath.Join(self.T().TempDir(), "test.db"))
	require.NoError(self.T(), err)
	self.store = store
}

func (self *SqliteStoreTestSuite) TearDownTest() {
	self.store.Close()
}

func TestSqliteStore(t *testing.T) {
	suite.Run(t, &SqliteStoreTestSuite{})
}
