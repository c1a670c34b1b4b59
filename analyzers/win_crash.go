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
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Velocidex/ordereddict"
	"www.timesketch.org/golang/timesketch/emojis"
)

// Each element covers one artifact family that records application
// crashes. The analyzer searches for the disjunction of all of them.
var crash_query_elements = map[string]string{
	"application_error": `data_type:"windows:evtx:record" ` +
		`AND source_name:"Application Error"`,
	"error_reporting": `data_type:"windows:evtx:record" ` +
		`AND source_name:"Windows Error Reporting"`,
	"wer_report_files": `data_type:"fs:stat" ` +
		`AND filename:"/Microsoft/Windows/WER/"`,
	"wer_disabled": `data_type:"windows:registry:key_value" ` +
		`AND key_path:"Windows Error Reporting" AND values:"Disabled"`,
}

// Matches the crashed executable either in a WER report path
// (AppCrash_foo.exe_...) or as a quoted or bare name in the message.
var crash_filename_regexp = regexp.MustCompile(
	`(?i)(?:App(?:Crash|Hang)_)?([\w\-\.]+\.exe)`)

// WinCrashSketchPlugin finds evidence of crashed Windows applications
// across event logs, the file system and the registry.
type WinCrashSketchPlugin struct{}

func (self *WinCrashSketchPlugin) Info() *AnalyzerInfo {
	return &AnalyzerInfo{
		Name:        "win_crash",
		DisplayName: "WinCrash",
		Description: "Detect Windows application crash artifacts",
	}
}

func crashQuery() string {
	keys := []string{}
	for key := range crash_query_elements {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := []string{}
	for _, key := range keys {
		parts = append(parts, "("+crash_query_elements[key]+")")
	}
	return strings.Join(parts, " OR ")
}

// crashedApplication extracts the executable name from whichever
// attribute the artifact family stores it in.
func crashedApplication(event *Event) string {
	for _, field := range []string{
		"filename", "message", "strings", "key_path"} {
		value := event.GetString(field)
		if value == "" {
			continue
		}
		match := crash_filename_regexp.FindStringSubmatch(value)
		if match != nil {
			return strings.ToLower(match[1])
		}
	}
	return ""
}

func (self *WinCrashSketchPlugin) Run(runtime *Runtime) (string, error) {
	apps := make(map[string]bool)
	count := 0

	err := runtime.EventStream(&StreamOptions{
		QueryString: crashQuery(),
		ReturnFields: []string{
			"data_type", "filename", "message", "strings",
			"key_path", "values"},
	}, func(event *Event) error {
		count++
		event.AddTags([]string{"win_crash"})
		event.AddEmojis([]string{emojis.GetEmoji("HIGH_VOLTAGE")})

		app := crashedApplication(event)
		if app != "" {
			apps[app] = true
			event.AddAttributes(ordereddict.NewDict().
				Set("crash_app", app))
			event.AddHumanReadable(fmt.Sprintf(
				"Application crash: %s", app), false)
		}

		// Registry evidence that crash reporting was turned off is
		// worth a closer look on its own.
		if event.GetString("data_type") ==
			"windows:registry:key_value" {
			err := event.AddComment(
				"Windows Error Reporting appears to be disabled " +
					"on this system.")
			if err != nil {
				return err
			}
		}
		return event.Commit()
	})
	if err != nil {
		return "", err
	}

	if count == 0 {
		return "No Windows crash artifacts found.", nil
	}

	runtime.Output.SetPriority("LOW")
	sketch := runtime.GetSketch()
	_, err = sketch.AddView("Windows crashes", `tag:"win_crash"`, "", "")
	if err != nil {
		return "", err
	}

	app_list := []string{}
	for app := range apps {
		app_list = append(app_list, app)
	}
	sort.Strings(app_list)

	return fmt.Sprintf(
		"%d Windows crash artifacts found, crashed applications: %s",
		count, strings.Join(app_list, ", ")), nil
}

func init() {
	MustRegister(&WinCrashSketchPlugin{})
}
