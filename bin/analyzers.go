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
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Velocidex/json"
	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/olekukonko/tablewriter"
	"www.timesketch.org/golang/timesketch/analyzers"
	"www.timesketch.org/golang/timesketch/pipeline"
)

var (
	analyzers_command = app.Command(
		"analyzers", "Manage and run analyzers.")

	analyzers_list_command = analyzers_command.Command(
		"list", "List all registered analyzers.")

	analyzers_list_dfiq = analyzers_list_command.Flag(
		"include_dfiq", "Also list DFIQ driven analyzers.").Bool()

	analyzers_run_command = analyzers_command.Command(
		"run", "Run analyzers on a timeline.")

	analyzers_run_sketch = analyzers_run_command.Arg(
		"sketch_id", "The sketch to annotate.").Required().Int64()

	analyzers_run_timeline = analyzers_run_command.Arg(
		"timeline_id", "The timeline to analyze.").Required().Int64()

	analyzers_run_names = analyzers_run_command.Arg(
		"analyzers", "Analyzer names to run (default all).").Strings()

	analyzers_run_force = analyzers_run_command.Flag(
		"force", "Run even when an identical analysis exists.").Bool()
)

func doAnalyzersList() {
	// DFIQ analyzers only exist once a catalog registers them, but
	// listing should show everything that could run.
	names := analyzers.GetAnalyzerNames(*analyzers_list_dfiq)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{
		"Name", "Display Name", "Depends", "Data Types"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)

	for _, name := range names {
		analyzer, pres := analyzers.GetAnalyzer(name)
		if !pres {
			continue
		}
		info := analyzer.Info()
		table.Append([]string{
			info.Name,
			info.DisplayName,
			strings.Join(info.Depends, ", "),
			strings.Join(info.RequiredDataTypes, ", "),
		})
	}
	table.Render()
}

func doAnalyzersRun() {
	config_obj := loadConfig()
	runner := makeRunner(config_obj)
	defer runner.Close()

	env := runner.Env()
	timeline, err := env.DB.GetTimeline(*analyzers_run_timeline)
	kingpin.FatalIfError(err, "Unknown timeline.")

	index, err := env.DB.GetSearchIndexByID(timeline.SearchIndexID)
	kingpin.FatalIfError(err, "Timeline has no search index.")

	node, session, err := pipeline.BuildSketchAnalysisPipeline(
		env, &pipeline.PipelineOptions{
			SketchID:      *analyzers_run_sketch,
			TimelineID:    timeline.ID,
			IndexName:     index.IndexName,
			AnalyzerNames: *analyzers_run_names,
			ForceRun:      *analyzers_run_force,
		})
	kingpin.FatalIfError(err, "Unable to build analysis pipeline.")

	if node == nil {
		fmt.Println("Nothing to do, all analyses are up to date.")
		return
	}

	_, err = runner.Run(context.Background(), node)
	kingpin.FatalIfError(err, "Analysis failed.")

	records, err := env.DB.AnalysesForSession(session.ID)
	kingpin.FatalIfError(err, "Unable to read analysis results.")

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Analyzer", "Status", "Result"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)

	for _, analysis := range records {
		result := analysis.Result
		verdict := verdictFromResult(result)
		table.Append([]string{
			analysis.AnalyzerName, analysis.Status, verdict})
	}
	table.Render()
}

// verdictFromResult pulls the one line summary out of a stored
// analyzer output record.
func verdictFromResult(result string) string {
	record := struct {
		ResultSummary string `json:"result_summary"`
	}{}
	err := json.Unmarshal([]byte(result), &record)
	if err != nil || record.ResultSummary == "" {
		return result
	}
	return record.ResultSummary
}

func init() {
	command_handlers = append(command_handlers,
		func(command string) bool {
			switch command {
			case analyzers_list_command.FullCommand():
				doAnalyzersList()

			case analyzers_run_command.FullCommand():
				doAnalyzersRun()

			default:
				return false
			}
			return true
		})
}
