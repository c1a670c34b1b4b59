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
package pipeline

import (
	"context"
	"crypto/sha1"
	"fmt"
	"sort"

	"github.com/Velocidex/json"
	"gopkg.in/gomail.v2"
	"www.timesketch.org/golang/timesketch/analyzers"
	"www.timesketch.org/golang/timesketch/models"
)

func kwargString(kwargs map[string]interface{}, key string) string {
	value, _ := kwargs[key].(string)
	return value
}

func kwargInt(kwargs map[string]interface{}, key string) int64 {
	switch t := kwargs[key].(type) {
	case int:
		return int64(t)
	case int64:
		return t
	case float64:
		return int64(t)
	}
	return 0
}

// parametersJson renders kwargs canonically so identical parameters
// always serialize to the same string.
func parametersJson(kwargs map[string]interface{}) string {
	keys := make([]string, 0, len(kwargs))
	for key := range kwargs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	serialized := "{"
	for i, key := range keys {
		if i > 0 {
			serialized += ","
		}
		key_json, _ := json.Marshal(key)
		value_json, err := json.Marshal(kwargs[key])
		if err != nil {
			value_json = []byte("null")
		}
		serialized += fmt.Sprintf("%s:%s", key_json, value_json)
	}
	return serialized + "}"
}

// ParametersHash is the idempotence key of an analysis: two runs with
// the same analyzer and the same hash are considered the same work.
func ParametersHash(kwargs map[string]interface{}) string {
	return fmt.Sprintf("%x",
		sha1.Sum([]byte(parametersJson(kwargs))))
}

// hasEquivalentAnalysis reports whether the (timeline, analyzer)
// pair already has a non failed analysis with identical parameters.
func hasEquivalentAnalysis(db models.Store, timeline_id int64,
	analyzer_name, parameters string) bool {

	existing, err := db.AnalysesForTimeline(timeline_id, analyzer_name)
	if err != nil {
		return false
	}

	hash := fmt.Sprintf("%x", sha1.Sum([]byte(parameters)))
	for _, analysis := range existing {
		if analysis.Status == models.AnalysisStatusError {
			continue
		}
		if fmt.Sprintf("%x",
			sha1.Sum([]byte(analysis.Parameters))) == hash {
			return true
		}
	}
	return false
}

// PipelineOptions select what to build for one timeline.
type PipelineOptions struct {
	SketchID      int64
	TimelineID    int64
	IndexName     string
	AnalyzerNames []string
	// Overrides the configured kwargs fan-out when set.
	AnalyzerKwargs map[string][]map[string]interface{}
	ForceRun       bool
	IncludeDFIQ    bool

	// Send a notification when the pipeline completes.
	NotifyAddress string
}

// BuildSketchAnalysisPipeline creates the analysis records and the
// matching pipeline for one timeline: a sketch_init barrier followed
// by one task group per dependency cluster. Analyses that already ran
// with identical parameters are skipped unless ForceRun is set.
func BuildSketchAnalysisPipeline(env *Environment,
	options *PipelineOptions) (
	*Node, *models.AnalysisSession, error) {

	clusters, err := analyzers.GetOrderedAnalyzers(
		options.AnalyzerNames)
	if err != nil {
		return nil, nil, err
	}

	session := &models.AnalysisSession{SketchID: options.SketchID}
	session_created := false

	nodes := []*Node{
		Call("sketch_init", map[string]interface{}{
			"index_name": options.IndexName,
		}),
	}

	for _, cluster := range clusters {
		cluster_nodes := []*Node{}

		for _, analyzer := range cluster {
			name := analyzer.Info().Name
			if analyzer.Info().IsDFIQ && !options.IncludeDFIQ {
				continue
			}

			kwargs_list, pres := options.AnalyzerKwargs[name]
			if !pres {
				kwargs_list, err = analyzers.GetKwargsList(
					env.Config, analyzer)
				if err != nil {
					return nil, nil, err
				}
			}
			if len(kwargs_list) == 0 {
				kwargs_list = []map[string]interface{}{nil}
			}

			for _, kwargs := range kwargs_list {
				parameters := parametersJson(kwargs)
				if !options.ForceRun && hasEquivalentAnalysis(
					env.DB, options.TimelineID, name, parameters) {
					env.Logger.Info(
						"Skipping %v on timeline %v, already "+
							"analyzed with the same parameters",
						name, options.TimelineID)
					continue
				}

				if !session_created {
					err := env.DB.CreateAnalysisSession(session)
					if err != nil {
						return nil, nil, err
					}
					session_created = true
				}

				analysis := &models.Analysis{
					SketchID:     options.SketchID,
					TimelineID:   options.TimelineID,
					SessionID:    session.ID,
					AnalyzerName: name,
					Parameters:   parameters,
					Status:       models.AnalysisStatusPending,
				}
				err := env.DB.CreateAnalysis(analysis)
				if err != nil {
					return nil, nil, err
				}

				cluster_nodes = append(cluster_nodes,
					Call("run_sketch_analyzer",
						map[string]interface{}{
							"analyzer_name": name,
							"analysis_id":   analysis.ID,
							"sketch_id":     options.SketchID,
							"timeline_id":   options.TimelineID,
							"index_name":    options.IndexName,
							"kwargs":        kwargs,
						}))
			}
		}

		if len(cluster_nodes) > 0 {
			nodes = append(nodes, Group(cluster_nodes...))
		}
	}

	if !session_created {
		// Everything was filtered out, nothing to run.
		return nil, nil, nil
	}

	if options.NotifyAddress != "" {
		nodes = append(nodes, Call("email_notification",
			map[string]interface{}{
				"index_name": options.IndexName,
				"sketch_id":  options.SketchID,
				"address":    options.NotifyAddress,
			}))
	}

	return Chain(nodes...), session, nil
}

// sketchInit is the barrier between ingestion and analysis: it makes
// everything written so far visible to searches.
func sketchInit(ctx context.Context, env *Environment,
	input interface{}, kwargs map[string]interface{}) (
	interface{}, error) {

	index_name := kwargString(kwargs, "index_name")
	if index_name == "" {
		index_name, _ = input.(string)
	}
	if index_name == "" {
		return nil, fmt.Errorf("sketch_init needs an index name")
	}

	err := env.Store.Refresh(ctx, index_name)
	if err != nil {
		return nil, err
	}
	return index_name, nil
}

func runSketchAnalyzer(ctx context.Context, env *Environment,
	input interface{}, kwargs map[string]interface{}) (
	interface{}, error) {

	analyzer_name := kwargString(kwargs, "analyzer_name")
	analyzer, pres := analyzers.GetAnalyzer(analyzer_name)
	if !pres {
		return nil, fmt.Errorf("unknown analyzer %q", analyzer_name)
	}

	sketch, err := env.DB.GetSketch(kwargInt(kwargs, "sketch_id"))
	if err != nil {
		return nil, err
	}

	analyzer_kwargs, _ := kwargs["kwargs"].(map[string]interface{})
	index_name := kwargString(kwargs, "index_name")

	runtime := analyzers.NewRuntime(ctx, env.Config, env.Store,
		env.DB, sketch, analyzer.Info(), index_name,
		kwargInt(kwargs, "timeline_id"),
		kwargInt(kwargs, "analysis_id"), analyzer_kwargs)

	err = analyzers.RunAnalysis(analyzer, runtime)
	if err != nil {
		// A failed sink analyzer takes the index out of
		// processing so uploads never hang in that state.
		mark, _ := kwargs["mark_failure"].(bool)
		if mark {
			return nil, ingestFailed(env, index_name,
				kwargInt(kwargs, "timeline_id"), err)
		}
		return nil, err
	}
	return index_name, nil
}

func emailNotification(ctx context.Context, env *Environment,
	input interface{}, kwargs map[string]interface{}) (
	interface{}, error) {

	notifications := env.Config.Notifications
	if notifications == nil || !notifications.Enabled {
		return input, nil
	}

	address := kwargString(kwargs, "address")
	if address == "" {
		return input, nil
	}

	index_name := kwargString(kwargs, "index_name")
	sketch_url := fmt.Sprintf("%s/sketch/%d/",
		env.Config.ExternalHostUrl, kwargInt(kwargs, "sketch_id"))

	message := gomail.NewMessage()
	message.SetHeader("From", notifications.Sender)
	message.SetHeader("To", address)
	message.SetHeader("Subject",
		fmt.Sprintf("Timeline %s is ready", index_name))
	message.SetBody("text/plain", fmt.Sprintf(
		"Your timeline %s finished processing and analysis.\n\n"+
			"Open the sketch: %s\n", index_name, sketch_url))

	dialer := gomail.NewDialer(
		notifications.SmtpServer, notifications.SmtpPort,
		notifications.SmtpUser, notifications.SmtpPassword)

	err := dialer.DialAndSend(message)
	if err != nil {
		// Notification failure never fails the pipeline.
		env.Logger.Error("Unable to notify %v: %v", address, err)
	}
	return input, nil
}

// CloseIndexIfUnused closes the backing index once the last active
// timeline is removed from it.
func CloseIndexIfUnused(ctx context.Context, env *Environment,
	index_name string) error {

	timelines, err := env.DB.ActiveTimelinesForIndex(index_name)
	if err != nil {
		return err
	}
	if len(timelines) > 0 {
		return nil
	}

	env.Logger.Info("Closing index %v, no active timelines left",
		index_name)
	return env.Store.CloseIndex(ctx, index_name)
}

func init() {
	RegisterTask("sketch_init", sketchInit)
	RegisterTask("run_sketch_analyzer", runSketchAnalyzer)
	RegisterTask("email_notification", emailNotification)
}
