/*
Timesketch Analyzer Engine - Collaborative Forensic Timelines
Copyright (C) 2026 Timesketch Authors.

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published
by the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package analyzers

import (
	"context"
	"errors"
	"fmt"

	"www.timesketch.org/golang/timesketch/config"
	"www.timesketch.org/golang/timesketch/datastore"
	"www.timesketch.org/golang/timesketch/logging"
	"www.timesketch.org/golang/timesketch/models"
	"www.timesketch.org/golang/timesketch/tabular"
)

// How many events we process between checks of the analysis status.
// A stop request takes effect at the next check.
const stop_check_interval = 100

type AnalyzerInfo struct {
	// Identifier used in configuration and on the command line.
	Name string

	// Human readable name recorded on results and annotations.
	DisplayName string

	Description string

	// Identifiers of analyzers that must complete before this one
	// starts.
	Depends []string

	// Event data_type values this analyzer can do something with. An
	// empty set means it runs on any timeline.
	RequiredDataTypes []string

	// DFIQ driven analyzers only run when triggered by an approach,
	// never in the automatic per-timeline set.
	IsDFIQ bool
}

type Analyzer interface {
	Info() *AnalyzerInfo

	// Run does the work and returns a one line summary. The runtime
	// flushes pending event updates after Run returns.
	Run(runtime *Runtime) (string, error)
}

// KwargsProvider is implemented by analyzers that fan out into
// multiple runs with different parameters (eg one run per browser
// search engine definition).
type KwargsProvider interface {
	GetKwargs(config_obj *config.Config) []map[string]interface{}
}

// Runtime carries everything one analysis run needs. One runtime is
// built per (analyzer, timeline, kwargs) tuple.
type Runtime struct {
	Ctx    context.Context
	Config *config.Config
	Store  datastore.EventStore
	DB     models.Store
	Logger *logging.LogContext

	Sketch     *models.Sketch
	IndexName  string
	TimelineID int64
	AnalysisID int64

	AnalyzerName       string
	AnalyzerIdentifier string

	Kwargs map[string]interface{}
	Output *Output

	events_seen int64
}

func NewRuntime(
	ctx context.Context,
	config_obj *config.Config,
	store datastore.EventStore,
	db models.Store,
	sketch *models.Sketch,
	info *AnalyzerInfo,
	index_name string,
	timeline_id, analysis_id int64,
	kwargs map[string]interface{}) *Runtime {

	output := NewOutput(info.Name, info.DisplayName)
	output.SketchID = sketch.ID
	output.TimelineID = timeline_id
	output.TimesketchInstance = config_obj.ExternalHostUrl

	return &Runtime{
		Ctx:    ctx,
		Config: config_obj,
		Store:  store,
		DB:     db,
		Logger: logging.GetLogger(
			config_obj, &logging.AnalyzerComponent),
		Sketch:             sketch,
		IndexName:          index_name,
		TimelineID:         timeline_id,
		AnalysisID:         analysis_id,
		AnalyzerName:       info.DisplayName,
		AnalyzerIdentifier: info.Name,
		Kwargs:             kwargs,
		Output:             output,
	}
}

// GetSketch returns the sketch handle for saving views, stories and
// attributes.
func (self *Runtime) GetSketch() *Sketch {
	return &Sketch{runtime: self}
}

// StreamOptions select and shape the events delivered to an analyzer.
type StreamOptions struct {
	QueryString string
	QueryDSL    string

	// Source fields to fetch. The annotation fields the event handle
	// needs are always added.
	ReturnFields []string

	// Search the whole sketch instead of just the run's timeline.
	WholeSketch bool
}

// EventStream refreshes the index and delivers each matching event to
// the callback exactly once. Annotation fields are always included so
// tag and emoji merging sees the stored state.
func (self *Runtime) EventStream(
	options *StreamOptions, cb func(event *Event) error) error {

	indices := []string{self.IndexName}
	timeline_ids := []int64{self.TimelineID}

	if options.WholeSketch {
		sketch := self.GetSketch()
		all_indices, err := sketch.AllIndices()
		if err != nil {
			return err
		}
		indices = all_indices

		timeline_ids, err = sketch.ActiveTimelineIDs()
		if err != nil {
			return err
		}
	}

	for _, index_name := range indices {
		err := self.Store.Refresh(self.Ctx, index_name)
		if err != nil {
			return err
		}
	}

	return_fields := withAnnotationFields(options.ReturnFields)

	request := &datastore.SearchRequest{
		SketchID:     self.Sketch.ID,
		Indices:      indices,
		QueryString:  options.QueryString,
		QueryDSL:     options.QueryDSL,
		ReturnFields: return_fields,
		TimelineIDs:  timeline_ids,
		EnableScroll: true,
	}

	return self.Store.StreamEvents(self.Ctx, request,
		func(doc *datastore.EventDoc) error {
			self.events_seen++
			if self.events_seen%stop_check_interval == 0 {
				stopped, err := self.isStopRequested()
				if err != nil {
					return err
				}
				if stopped {
					return &Cancelled{}
				}
			}
			return cb(NewEvent(self, doc))
		})
}

// EventFrame collects the selected fields of all matching events into
// an in-memory frame for column oriented analysis.
func (self *Runtime) EventFrame(options *StreamOptions) (
	*tabular.Frame, error) {

	frame := tabular.NewFrame()
	err := self.EventStream(options, func(event *Event) error {
		row := map[string]interface{}{
			"_id":    event.ID(),
			"_index": event.Index(),
		}
		if event.Source() != nil {
			for _, key := range event.Source().Keys() {
				value, _ := event.Source().Get(key)
				row[key] = value
			}
		}
		frame.AppendRow(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return frame, nil
}

func (self *Runtime) isStopRequested() (bool, error) {
	if self.AnalysisID == 0 {
		return false, nil
	}
	status, err := self.DB.GetAnalysisStatus(self.AnalysisID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return status == models.AnalysisStatusStopping, nil
}

func withAnnotationFields(fields []string) []string {
	if len(fields) == 0 {
		return nil
	}
	result := append([]string{}, fields...)
	for _, required := range []string{
		"tag", "human_readable", "__ts_emojis"} {
		found := false
		for _, item := range result {
			if item == required {
				found = true
				break
			}
		}
		if !found {
			result = append(result, required)
		}
	}
	return result
}

// RunAnalysis drives one analysis run end to end: status transitions,
// the analyzer itself, the final flush and the stored result record.
func RunAnalysis(analyzer Analyzer, runtime *Runtime) error {
	// A stop requested while the analysis was still queued takes
	// effect before any work is done.
	status, err := runtime.DB.GetAnalysisStatus(runtime.AnalysisID)
	if err == nil && status == models.AnalysisStatusStopping {
		return finishWithError(runtime, &Cancelled{})
	}

	err = runtime.DB.SetAnalysisStatus(
		runtime.AnalysisID, models.AnalysisStatusStarted)
	if err != nil {
		return err
	}

	summary, run_err := analyzer.Run(runtime)

	// Event updates queued before the failure are still delivered.
	_, flush_err := runtime.Store.Flush(runtime.Ctx)
	if flush_err != nil {
		runtime.Logger.Error("Flush after %v run: %v",
			runtime.AnalyzerIdentifier, flush_err)
		if run_err == nil {
			run_err = flush_err
		}
	}

	if run_err != nil {
		return finishWithError(runtime, run_err)
	}

	runtime.Output.ResultStatus = "SUCCESS"
	runtime.Output.ResultSummary = summary

	err = runtime.Output.Validate()
	if err != nil {
		// A malformed record does not fail the run, we substitute
		// a well formed default.
		runtime.Logger.Warn("Invalid output from %v: %v",
			runtime.AnalyzerIdentifier, err)
		runtime.Output.ResultStatus = "SUCCESS"
		runtime.Output.ResultPriority = "NOTE"
		if runtime.Output.ResultSummary == "" {
			runtime.Output.ResultSummary = "No results"
		}
	}

	serialized, err := runtime.Output.ToJson()
	if err != nil {
		return finishWithError(runtime, err)
	}

	analysis, err := runtime.DB.GetAnalysis(runtime.AnalysisID)
	if err != nil {
		return err
	}
	analysis.Status = models.AnalysisStatusDone
	analysis.Result = serialized
	err = runtime.DB.UpdateAnalysis(analysis)
	if err != nil {
		return err
	}

	// Surface the summary on the index the same way import notes
	// are surfaced.
	note := fmt.Sprintf("[%s] %s",
		runtime.AnalyzerName, runtime.Output.ResultSummary)
	err = runtime.DB.AppendSearchIndexDescription(
		runtime.IndexName, note)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	return nil
}

func finishWithError(runtime *Runtime, run_err error) error {
	message := run_err.Error()

	var cancelled *Cancelled
	if errors.As(run_err, &cancelled) {
		runtime.Logger.Info("Analysis %v of %v was cancelled",
			runtime.AnalysisID, runtime.IndexName)
	} else {
		runtime.Logger.Error("Analyzer %v failed on %v: %v",
			runtime.AnalyzerIdentifier, runtime.IndexName, run_err)
	}

	runtime.Output.ResultStatus = "ERROR"
	runtime.Output.ResultSummary = message
	serialized, err := runtime.Output.ToJson()
	if err != nil {
		serialized = message
	}

	analysis, err := runtime.DB.GetAnalysis(runtime.AnalysisID)
	if err != nil {
		return err
	}
	analysis.Status = models.AnalysisStatusError
	analysis.Result = serialized
	err = runtime.DB.UpdateAnalysis(analysis)
	if err != nil {
		return err
	}
	return run_err
}
