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
package dfiq

import (
	"context"
	"time"

	"github.com/Velocidex/ttlcache/v2"
	"www.timesketch.org/golang/timesketch/analyzers"
	"www.timesketch.org/golang/timesketch/datastore"
	"www.timesketch.org/golang/timesketch/logging"
	"www.timesketch.org/golang/timesketch/models"
	"www.timesketch.org/golang/timesketch/pipeline"
)

const (
	// How many distinct data types one timeline census considers.
	census_bucket_limit = 1000

	census_ttl        = 5 * time.Minute
	census_size_limit = 1000
)

// Orchestrator turns investigative approaches into analyzer runs on
// the timelines whose data can answer them.
type Orchestrator struct {
	runner *pipeline.Runner
	logger *logging.LogContext

	// Data type census per index, refreshed on expiry.
	census *ttlcache.Cache
}

func NewOrchestrator(runner *pipeline.Runner) *Orchestrator {
	census := ttlcache.NewCache()
	census.SetCacheSizeLimit(census_size_limit)
	_ = census.SetTTL(census_ttl)

	return &Orchestrator{
		runner: runner,
		logger: logging.GetLogger(
			runner.Env().Config, &logging.AnalyzerComponent),
		census: census,
	}
}

// timelineDataTypes runs the per timeline data_type aggregation,
// serving repeated lookups from the cache.
func (self *Orchestrator) timelineDataTypes(
	ctx context.Context, index_name string) ([]string, error) {

	cached, err := self.census.Get(index_name)
	if err == nil {
		data_types, ok := cached.([]string)
		if ok {
			return data_types, nil
		}
	}

	buckets, err := self.runner.Env().Store.FieldBucket(
		ctx, []string{index_name}, "data_type",
		census_bucket_limit)
	if err != nil {
		return nil, err
	}

	data_types := make([]string, 0, len(buckets))
	for _, bucket := range buckets {
		data_types = append(data_types, bucket.Key)
	}

	_ = self.census.Set(index_name, data_types)
	return data_types, nil
}

// selectAnalyzers resolves analyzer names against the registry and
// keeps those that apply to a timeline with the given data types. An
// analyzer without required data types applies everywhere. Unknown
// names are logged and dropped.
func (self *Orchestrator) selectAnalyzers(names []string,
	data_types []string) []string {

	present := make(map[string]bool)
	for _, data_type := range data_types {
		present[data_type] = true
	}

	result := []string{}
	for _, name := range names {
		analyzer, pres := analyzers.GetAnalyzer(name)
		if !pres {
			self.logger.Warn(
				"Approach references unknown analyzer %v", name)
			continue
		}

		required := analyzer.Info().RequiredDataTypes
		if len(required) == 0 {
			result = append(result, name)
			continue
		}
		for _, data_type := range required {
			if present[data_type] {
				result = append(result, name)
				break
			}
		}
	}
	return result
}

// TriggerAnalyzersForApproach dispatches the analyzers named in the
// approach's analysis steps across all ready timelines of the sketch.
func (self *Orchestrator) TriggerAnalyzersForApproach(
	ctx context.Context, sketch_id int64, approach *Approach) (
	[]*models.AnalysisSession, error) {

	return self.TriggerAnalyzersForTimelines(
		ctx, sketch_id, []*Approach{approach}, nil)
}

// TriggerAnalyzersForTimelines dispatches the analyzers collected
// from every approach with analysis steps. A nil timeline list means
// all timelines of the sketch. Only ready timelines are considered,
// and each (timeline, analyzer) pair becomes one Analysis record in
// the returned sessions.
func (self *Orchestrator) TriggerAnalyzersForTimelines(
	ctx context.Context, sketch_id int64, approaches []*Approach,
	timelines []*models.Timeline) (
	[]*models.AnalysisSession, error) {

	names := []string{}
	seen := make(map[string]bool)
	for _, approach := range approaches {
		for _, name := range approach.AnalyzerNames() {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		return nil, nil
	}

	env := self.runner.Env()
	if timelines == nil {
		var err error
		timelines, err = env.DB.TimelinesForSketch(sketch_id)
		if err != nil {
			return nil, err
		}
	}

	sessions := []*models.AnalysisSession{}
	for _, timeline := range timelines {
		if timeline.Status != models.TimelineStatusReady {
			continue
		}

		index, err := env.DB.GetSearchIndexByID(
			timeline.SearchIndexID)
		if err != nil {
			self.logger.Error(
				"Timeline %v has no search index: %v",
				timeline.ID, err)
			continue
		}

		data_types, err := self.timelineDataTypes(
			ctx, index.IndexName)
		if err != nil {
			if datastore.IsTransient(err) {
				self.logger.Warn(
					"Census of %v failed, skipping: %v",
					index.IndexName, err)
				continue
			}
			return sessions, err
		}

		selected := self.selectAnalyzers(names, data_types)
		if len(selected) == 0 {
			continue
		}

		node, session, err := pipeline.BuildSketchAnalysisPipeline(
			env, &pipeline.PipelineOptions{
				SketchID:      sketch_id,
				TimelineID:    timeline.ID,
				IndexName:     index.IndexName,
				AnalyzerNames: selected,
				ForceRun:      true,
				IncludeDFIQ:   true,
			})
		if err != nil {
			return sessions, err
		}
		if node == nil {
			continue
		}

		_, err = self.runner.Run(ctx, node)
		if err != nil {
			self.logger.Error(
				"Analysis session %v on timeline %v: %v",
				session.ID, timeline.ID, err)
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}
