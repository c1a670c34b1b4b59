package analyzers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"www.timesketch.org/golang/timesketch/datastore"
	"www.timesketch.org/golang/timesketch/vtesting"
)

func TestCrashedApplication(t *testing.T) {
	event := NewEvent(nil, vtesting.MakeEvent("e1", "idx1",
		"filename",
		"/ProgramData/Microsoft/Windows/WER/ReportQueue/"+
			"AppCrash_notepad.exe_deadbeef/Report.wer"))
	assert.Equal(t, "notepad.exe", crashedApplication(event))

	event = NewEvent(nil, vtesting.MakeEvent("e2", "idx1",
		"message", `Faulting application name: "Payload.EXE"`))
	assert.Equal(t, "payload.exe", crashedApplication(event))

	event = NewEvent(nil, vtesting.MakeEvent("e3", "idx1",
		"message", "nothing interesting"))
	assert.Equal(t, "", crashedApplication(event))
}

func TestWinCrashAnalyzer(t *testing.T) {
	analyzer := &WinCrashSketchPlugin{}
	fixture := makeFixtureWithEvents(t, vtesting.TestConfig(),
		analyzer.Info(), []*datastore.EventDoc{
			vtesting.MakeEvent("e1", "idx1",
				"data_type", "windows:evtx:record",
				"source_name", "Application Error",
				"message", "Faulting application name: calc.exe"),
			vtesting.MakeEvent("e2", "idx1",
				"data_type", "windows:registry:key_value",
				"key_path",
				`HKLM\SOFTWARE\Microsoft\Windows\Windows Error Reporting`,
				"values", "Disabled: [REG_DWORD_LE] 1"),
		})

	err := RunAnalysis(analyzer, fixture.runtime)
	require.NoError(t, err)

	crash := fixture.store.UpdatesForEvent("e1")
	require.Len(t, crash, 1)
	tags, _ := crash[0].Get("tag")
	assert.Contains(t, tags, "win_crash")
	app, _ := crash[0].Get("crash_app")
	assert.Equal(t, "calc.exe", app)

	// The registry tampering event gets a comment.
	comments, err := fixture.db.CommentsForEvent("idx1", "e2")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Contains(t, comments[0].Comment, "disabled")

	analysis, err := fixture.db.GetAnalysis(fixture.runtime.AnalysisID)
	require.NoError(t, err)
	assert.Contains(t, analysis.Result, "calc.exe")
}
