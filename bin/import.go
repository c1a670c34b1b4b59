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
	"path/filepath"
	"strings"

	kingpin "github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"www.timesketch.org/golang/timesketch/models"
	"www.timesketch.org/golang/timesketch/pipeline"
)

var (
	import_command = app.Command(
		"import", "Import a timeline file into a sketch.")

	import_sketch = import_command.Arg(
		"sketch_id", "The sketch receiving the timeline.").
		Required().Int64()

	import_file = import_command.Arg(
		"file", "The file to import (csv, jsonl, plaso, evtx).").
		Required().ExistingFile()

	import_timeline_name = import_command.Flag(
		"timeline_name", "Name of the new timeline "+
			"(default: the file name).").String()

	import_only_index = import_command.Flag(
		"only_index", "Skip analysis, only index the events.").Bool()

	import_notify = import_command.Flag(
		"notify", "Email address to notify on completion.").String()
)

func doImport() {
	config_obj := loadConfig()
	runner := makeRunner(config_obj)
	defer runner.Close()

	env := runner.Env()

	_, err := env.DB.GetSketch(*import_sketch)
	kingpin.FatalIfError(err, "Unknown sketch.")

	stat, err := os.Stat(*import_file)
	kingpin.FatalIfError(err, "Unable to stat upload.")

	extension := strings.TrimPrefix(
		filepath.Ext(*import_file), ".")

	timeline_name := *import_timeline_name
	if timeline_name == "" {
		base := filepath.Base(*import_file)
		timeline_name = strings.TrimSuffix(
			base, filepath.Ext(base))
	}

	index_name := uuid.NewString()
	index := &models.SearchIndex{
		Name:      timeline_name,
		IndexName: index_name,
		Status:    models.IndexStatusNew,
	}
	err = env.DB.CreateSearchIndex(index)
	kingpin.FatalIfError(err, "Unable to register search index.")

	timeline := &models.Timeline{
		Name:          timeline_name,
		SketchID:      *import_sketch,
		SearchIndexID: index.ID,
	}
	err = env.DB.CreateTimeline(timeline)
	kingpin.FatalIfError(err, "Unable to register timeline.")

	node, _, err := pipeline.BuildIngestPipeline(env,
		&pipeline.IngestOptions{
			FilePath:      *import_file,
			FileExtension: extension,
			TimelineName:  timeline_name,
			IndexName:     index_name,
			TimelineID:    timeline.ID,
			SketchID:      *import_sketch,
			OnlyIndex:     *import_only_index,
			NotifyAddress: *import_notify,
		})
	kingpin.FatalIfError(err, "Unable to build import pipeline.")

	_, err = runner.Run(context.Background(), node)
	kingpin.FatalIfError(err, "Import failed.")

	fmt.Printf("Imported %s (%s) into timeline %q (index %s)\n",
		*import_file, humanize.Bytes(uint64(stat.Size())),
		timeline_name, index_name)
}

func init() {
	command_handlers = append(command_handlers,
		func(command string) bool {
			if command == import_command.FullCommand() {
				doImport()
				return true
			}
			return false
		})
}
