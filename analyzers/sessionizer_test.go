package analyzers

import (
	"testing"

	"github.com/Velocidex/ordereddict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.timesketch.org/golang/timesketch/datastore"
	"www.timesketch.org/golang/timesketch/vtesting"
)

func sessionOf(t *testing.T, update *ordereddict.Dict) *ordereddict.Dict {
	t.Helper()
	value, pres := update.Get("session_id")
	require.True(t, pres)
	session_id, ok := value.(*ordereddict.Dict)
	require.True(t, ok)
	return session_id
}

func TestSessionizerSplitsOnTimeGap(t *testing.T) {
	analyzer := NewSessionizer()
	fixture := makeFixtureWithEvents(t, vtesting.TestConfig(),
		analyzer.Info(), []*datastore.EventDoc{
			vtesting.MakeEvent("e1", "idx1",
				"timestamp", int64(1000000000000000)),
			// 100ms later.
			vtesting.MakeEvent("e2", "idx1",
				"timestamp", int64(1000000000100000)),
			// 10 minutes later.
			vtesting.MakeEvent("e3", "idx1",
				"timestamp", int64(1000000600100000)),
		})

	err := RunAnalysis(analyzer, fixture.runtime)
	require.NoError(t, err)

	for event_id, expected := range map[string]int64{
		"e1": 1, "e2": 1, "e3": 2} {
		updates := fixture.store.UpdatesForEvent(event_id)
		require.Len(t, updates, 1, event_id)
		number, pres := sessionOf(t, updates[0]).Get("all_events")
		require.True(t, pres)
		assert.Equal(t, expected, number, event_id)
	}

	analysis, err := fixture.db.GetAnalysis(fixture.runtime.AnalysisID)
	require.NoError(t, err)
	assert.Contains(t, analysis.Result, "sessions created: 2")
}

func TestSessionizerKeepsOtherSessionTypes(t *testing.T) {
	analyzer := NewSessionizer()
	fixture := makeFixtureWithEvents(t, vtesting.TestConfig(),
		analyzer.Info(), []*datastore.EventDoc{
			vtesting.MakeEvent("e1", "idx1",
				"timestamp", int64(1000000000000000),
				"session_id", map[string]interface{}{
					"logon_session": "1 (alice)",
				}),
		})

	err := RunAnalysis(analyzer, fixture.runtime)
	require.NoError(t, err)

	updates := fixture.store.UpdatesForEvent("e1")
	require.Len(t, updates, 1)
	session_id := sessionOf(t, updates[0])

	existing, pres := session_id.Get("logon_session")
	require.True(t, pres)
	assert.Equal(t, "1 (alice)", existing)

	number, pres := session_id.Get("all_events")
	require.True(t, pres)
	assert.Equal(t, int64(1), number)
}
