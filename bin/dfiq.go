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

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/olekukonko/tablewriter"
	"www.timesketch.org/golang/timesketch/dfiq"
)

var (
	dfiq_command = app.Command(
		"dfiq", "Work with the investigative question catalog.")

	dfiq_list_command = dfiq_command.Command(
		"list", "List the questions in the catalog.")

	dfiq_trigger_command = dfiq_command.Command(
		"trigger", "Run the analyzers behind a question's approaches.")

	dfiq_trigger_sketch = dfiq_trigger_command.Arg(
		"sketch_id", "The sketch to analyze.").Required().Int64()

	dfiq_trigger_question = dfiq_trigger_command.Arg(
		"question_id", "The DFIQ question ID (eg Q1001).").
		Required().String()
)

func doDFIQList() {
	config_obj := loadConfig()

	catalog, err := dfiq.LoadCatalog(config_obj)
	kingpin.FatalIfError(err, "Unable to load DFIQ catalog.")
	defer catalog.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Analyzers"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)

	for _, question := range catalog.Questions() {
		names := []string{}
		for _, approach := range question.Approaches {
			names = append(names, approach.AnalyzerNames()...)
		}
		table.Append([]string{
			question.ID,
			question.Name,
			strings.Join(names, ", "),
		})
	}
	table.Render()
}

func doDFIQTrigger() {
	config_obj := loadConfig()

	catalog, err := dfiq.LoadCatalog(config_obj)
	kingpin.FatalIfError(err, "Unable to load DFIQ catalog.")
	defer catalog.Close()

	question, pres := catalog.GetByID(*dfiq_trigger_question)
	if !pres {
		kingpin.Fatalf("Unknown question %s", *dfiq_trigger_question)
	}

	runner := makeRunner(config_obj)
	defer runner.Close()

	orchestrator := dfiq.NewOrchestrator(runner)

	approaches := []*dfiq.Approach{}
	for i := range question.Approaches {
		approaches = append(approaches, &question.Approaches[i])
	}

	sessions, err := orchestrator.TriggerAnalyzersForTimelines(
		context.Background(), *dfiq_trigger_sketch,
		approaches, nil)
	kingpin.FatalIfError(err, "Unable to trigger analyzers.")

	if len(sessions) == 0 {
		fmt.Println("No timelines matched the question's analyzers.")
		return
	}

	for _, session := range sessions {
		records, err := runner.Env().DB.AnalysesForSession(session.ID)
		kingpin.FatalIfError(err, "Unable to read analysis results.")

		for _, analysis := range records {
			fmt.Printf("Session %d: %s on timeline %d: %s\n",
				session.ID, analysis.AnalyzerName,
				analysis.TimelineID, analysis.Status)
		}
	}
}

func init() {
	command_handlers = append(command_handlers,
		func(command string) bool {
			switch command {
			case dfiq_list_command.FullCommand():
				doDFIQList()

			case dfiq_trigger_command.FullCommand():
				doDFIQTrigger()

			default:
				return false
			}
			return true
		})
}
