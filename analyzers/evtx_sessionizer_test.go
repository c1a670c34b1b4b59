package analyzers

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.timesketch.org/golang/timesketch/datastore"
	"www.timesketch.org/golang/timesketch/vtesting"
)

func logonXML(logon_id, username string) string {
	return fmt.Sprintf(`<Event>
  <System><EventID>4624</EventID></System>
  <EventData>
    <Data Name="TargetUserName">%s</Data>
    <Data Name="TargetLogonId">%s</Data>
  </EventData>
</Event>`, username, logon_id)
}

func TestEvtxDataValues(t *testing.T) {
	data := evtxDataValues(logonXML("0x3e7", "alice"))
	assert.Equal(t, "0x3e7", data["TargetLogonId"])
	assert.Equal(t, "alice", data["TargetUserName"])

	assert.Empty(t, evtxDataValues(""))
	assert.Empty(t, evtxDataValues("not xml at all"))
}

func evtxEvent(event_id string, identifier int64,
	timestamp int64, xml string) *datastore.EventDoc {
	return vtesting.MakeEvent(event_id, "idx1",
		"data_type", "windows:evtx:record",
		"event_identifier", identifier,
		"timestamp", timestamp,
		"xml_string", xml)
}

func TestLogonSessionizer(t *testing.T) {
	analyzer, pres := GetAnalyzer("evtx_sessionizer")
	require.True(t, pres)

	fixture := makeFixtureWithEvents(t, vtesting.TestConfig(),
		analyzer.Info(), []*datastore.EventDoc{
			evtxEvent("logon1", 4624, 1000,
				logonXML("0x111", "alice")),
			evtxEvent("logon2", 4624, 2000,
				logonXML("0x222", "bob")),
			evtxEvent("logoff1", 4634, 3000,
				logonXML("0x111", "alice")),
			// Logoff for an unknown logon id is ignored.
			evtxEvent("stray", 4634, 4000,
				logonXML("0x999", "eve")),
		})

	err := RunAnalysis(analyzer, fixture.runtime)
	require.NoError(t, err)

	start := fixture.store.UpdatesForEvent("logon1")
	require.Len(t, start, 1)
	label, pres := sessionOf(t, start[0]).Get("logon_session")
	require.True(t, pres)
	assert.Equal(t, "1 (alice)", label)

	end := fixture.store.UpdatesForEvent("logoff1")
	require.Len(t, end, 1)
	label, _ = sessionOf(t, end[0]).Get("logon_session")
	assert.Equal(t, "1 (alice)", label)

	second := fixture.store.UpdatesForEvent("logon2")
	require.Len(t, second, 1)
	label, _ = sessionOf(t, second[0]).Get("logon_session")
	assert.Equal(t, "2 (bob)", label)

	assert.Empty(t, fixture.store.UpdatesForEvent("stray"))

	analysis, err := fixture.db.GetAnalysis(fixture.runtime.AnalysisID)
	require.NoError(t, err)
	assert.Contains(t, analysis.Result, "sessions created: 2")
}

func TestLogonSessionizerStartupClosesSessions(t *testing.T) {
	analyzer, pres := GetAnalyzer("evtx_sessionizer")
	require.True(t, pres)

	fixture := makeFixtureWithEvents(t, vtesting.TestConfig(),
		analyzer.Info(), []*datastore.EventDoc{
			evtxEvent("logon1", 4624, 1000,
				logonXML("0x111", "alice")),
			// System boot, all open sessions end here.
			evtxEvent("boot", 6005, 2000, ""),
			evtxEvent("logoff1", 4634, 3000,
				logonXML("0x111", "alice")),
		})

	err := RunAnalysis(analyzer, fixture.runtime)
	require.NoError(t, err)

	// The logoff after the boot no longer matches an open session.
	assert.Empty(t, fixture.store.UpdatesForEvent("logoff1"))
}

func TestLogonSessionizerDeduplicatesRecords(t *testing.T) {
	analyzer, pres := GetAnalyzer("evtx_sessionizer")
	require.True(t, pres)

	duplicate := logonXML("0x111", "alice")
	fixture := makeFixtureWithEvents(t, vtesting.TestConfig(),
		analyzer.Info(), []*datastore.EventDoc{
			evtxEvent("first", 4624, 1000, duplicate),
			evtxEvent("copy", 4624, 1000, duplicate),
		})

	err := RunAnalysis(analyzer, fixture.runtime)
	require.NoError(t, err)

	analysis, err := fixture.db.GetAnalysis(fixture.runtime.AnalysisID)
	require.NoError(t, err)
	assert.Contains(t, analysis.Result, "sessions created: 1")
	assert.Empty(t, fixture.store.UpdatesForEvent("copy"))
}
