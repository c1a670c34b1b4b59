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

func makeEventFixture(t *testing.T) (*Runtime, *vtesting.MockEventStore) {
	t.Helper()

	store := vtesting.NewMockEventStore()
	db := models.NewMemoryStore()

	sketch := &models.Sketch{Name: "Test"}
	require.NoError(t, db.CreateSketch(sketch))

	runtime := NewRuntime(context.Background(), vtesting.TestConfig(),
		store, db, sketch,
		&AnalyzerInfo{Name: "tagger", DisplayName: "Tagger"},
		"idx1", 1, 0, nil)
	return runtime, store
}

func TestEventTagMerge(t *testing.T) {
	runtime, store := makeEventFixture(t)

	doc := vtesting.MakeEvent("e1", "idx1",
		"message", "something",
		"tag", []interface{}{"existing", "other"})
	event := NewEvent(runtime, doc)

	event.AddTags([]string{"existing", "new-tag"})
	require.NoError(t, event.Commit())

	require.Len(t, store.Imported, 1)
	tags, pres := store.Imported[0].Event.Get("tag")
	require.True(t, pres)
	assert.Equal(t, []string{"existing", "other", "new-tag"}, tags)

	// Nothing staged means nothing written.
	require.NoError(t, event.Commit())
	assert.Len(t, store.Imported, 1)
}

func TestEventTagMergeNoChange(t *testing.T) {
	runtime, store := makeEventFixture(t)

	doc := vtesting.MakeEvent("e1", "idx1",
		"tag", []interface{}{"existing"})
	event := NewEvent(runtime, doc)

	event.AddTags([]string{"existing"})
	require.NoError(t, event.Commit())
	assert.Empty(t, store.Imported)
}

func TestEventEmojis(t *testing.T) {
	runtime, store := makeEventFixture(t)

	doc := vtesting.MakeEvent("e1", "idx1", "message", "x")
	event := NewEvent(runtime, doc)

	event.AddEmojis([]string{"&#x2620", "&#x1F50E"})
	event.AddEmojis([]string{"&#x2620"})
	require.NoError(t, event.Commit())

	require.Len(t, store.Imported, 1)
	emojis, pres := store.Imported[0].Event.Get("__ts_emojis")
	require.True(t, pres)
	assert.Equal(t, []string{"&#x2620", "&#x1F50E"}, emojis)
}

func TestEventHumanReadable(t *testing.T) {
	runtime, _ := makeEventFixture(t)

	doc := vtesting.MakeEvent("e1", "idx1",
		"human_readable", []interface{}{"[older] note"})
	event := NewEvent(runtime, doc)

	event.AddHumanReadable("fresh finding", false)
	value, pres := event.Get("human_readable")
	require.True(t, pres)
	assert.Equal(t,
		[]string{"[tagger] fresh finding", "[older] note"}, value)

	// Duplicates are dropped.
	event.AddHumanReadable("fresh finding", false)
	value, _ = event.Get("human_readable")
	assert.Len(t, value, 2)

	event.AddHumanReadable("appended", true)
	value, _ = event.Get("human_readable")
	assert.Equal(t, []string{
		"[tagger] fresh finding",
		"[older] note",
		"[tagger] appended"}, value)
}

func TestEventAddLabelQueuesScript(t *testing.T) {
	runtime, store := makeEventFixture(t)

	doc := vtesting.MakeEvent("e1", "idx1", "message", "x")
	event := NewEvent(runtime, doc)

	require.NoError(t, event.AddStar())
	require.Len(t, store.Imported, 1)
	assert.Equal(t, "e1", store.Imported[0].EventID)

	// The queued body is the scripted update, not a plain doc.
	_, pres := store.Imported[0].Event.Get("lang")
	assert.True(t, pres)
	params, pres := store.Imported[0].Event.Get("params")
	require.True(t, pres)
	label, _ := params.(*ordereddict.Dict).Get("timesketch_label")
	name, _ := label.(*ordereddict.Dict).Get("name")
	assert.Equal(t, "__ts_star", name)
}

func TestEventAddComment(t *testing.T) {
	runtime, store := makeEventFixture(t)

	doc := vtesting.MakeEvent("e1", "idx1", "message", "x")
	event := NewEvent(runtime, doc)

	require.NoError(t, event.AddComment("needs a second look"))

	comments, err := runtime.DB.CommentsForEvent("idx1", "e1")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "needs a second look", comments[0].Comment)

	// The comment label was queued too.
	require.Len(t, store.Imported, 1)
}

func TestIsReservedLabel(t *testing.T) {
	assert.True(t, IsReservedLabel("__ts_star"))
	assert.True(t, IsReservedLabel("__ts_fancy_future_label"))
	assert.False(t, IsReservedLabel("suspicious"))
}
