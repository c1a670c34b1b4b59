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
	"os"

	kingpin "github.com/alecthomas/kingpin/v2"
	"www.timesketch.org/golang/timesketch/config"
	"www.timesketch.org/golang/timesketch/datastore"
	"www.timesketch.org/golang/timesketch/models"
	"www.timesketch.org/golang/timesketch/pipeline"

	// Import all analyzers.
	_ "www.timesketch.org/golang/timesketch/analyzers/all"
)

type CommandHandler func(command string) bool

var (
	app = kingpin.New("timesketch-analyzer",
		"Analyzer engine for collaborative forensic timelines.")

	config_path = app.Flag("config", "The configuration file.").
			Short('c').Envar("TIMESKETCH_CONFIG").String()

	verbose_flag = app.Flag(
		"verbose", "Enable verbose logging.").Short('v').
		Default("false").Bool()

	command_handlers []CommandHandler
)

func loadConfig() *config.Config {
	if *config_path == "" {
		return config.GetDefaultConfig()
	}

	config_obj, err := config.LoadConfig(*config_path)
	kingpin.FatalIfError(err, "Unable to load config.")

	if *verbose_flag {
		config_obj.Logging.Debug = true
	}
	return config_obj
}

// makeRunner wires the event store and the metadata store into a
// pipeline runner.
func makeRunner(config_obj *config.Config) *pipeline.Runner {
	db, err := models.NewStore(config_obj)
	kingpin.FatalIfError(err, "Unable to open metadata store.")

	store, err := datastore.NewElasticStore(config_obj)
	kingpin.FatalIfError(err, "Unable to connect to event store.")

	return pipeline.NewRunner(config_obj, store, db)
}

func main() {
	app.HelpFlag.Short('h')
	app.UsageTemplate(kingpin.CompactUsageTemplate).DefaultEnvars()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	for _, command_handler := range command_handlers {
		if command_handler(command) {
			break
		}
	}
}
