package main

import (
	"context"
	"fmt"

	kingpin "github.com/alecthomas/kingpin/v2"
	"www.timesketch.org/golang/timesketch/models"
	"www.timesketch.org/golang/timesketch/pipeline"
)

var (
	timeline_command = app.Command(
		"timeline", "Manage timelines.")

	timeline_delete = timeline_command.Command(
		"delete", "Remove a timeline from its sketch.")

	timeline_delete_sketch = timeline_delete.Arg(
		"sketch_id", "The sketch owning the timeline.").
		Required().Int64()

	timeline_delete_id = timeline_delete.Arg(
		"timeline_id", "The timeline to delete.").
		Required().Int64()
)

func doTimelineDelete() {
	config_obj := loadConfig()
	runner := makeRunner(config_obj)
	defer runner.Close()

	env := runner.Env()

	timeline, err := env.DB.GetTimeline(*timeline_delete_id)
	kingpin.FatalIfError(err, "Unknown timeline.")

	if timeline.SketchID != *timeline_delete_sketch {
		kingpin.Fatalf("Timeline %v does not belong to sketch %v.",
			timeline.ID, *timeline_delete_sketch)
	}

	err = env.DB.SetTimelineStatus(
		timeline.ID, models.TimelineStatusDeleted)
	kingpin.FatalIfError(err, "Unable to delete timeline.")

	index, err := env.DB.GetSearchIndexByID(timeline.SearchIndexID)
	kingpin.FatalIfError(err, "Unknown search index.")

	// The backing index stays open while other timelines use it.
	err = pipeline.CloseIndexIfUnused(
		context.Background(), env, index.IndexName)
	kingpin.FatalIfError(err, "Unable to close index.")

	fmt.Printf("Deleted timeline %q from sketch %v\n",
		timeline.Name, *timeline_delete_sketch)
}

func init() {
	command_handlers = append(command_handlers,
		func(command string) bool {
			if command == timeline_delete.FullCommand() {
				doTimelineDelete()
				return true
			}
			return false
		})
}
