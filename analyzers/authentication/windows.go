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
package authentication

import (
	"www.timesketch.org/golang/timesketch/analyzers"
	"www.timesketch.org/golang/timesketch/tabular"
)

const (
	// Windows commonly records two success events for one logon, so
	// the window may contain that many and still be brute force.
	windows_success_threshold = 2

	windows_min_access_window = 30

	windows_search_query = "source_name:Microsoft-Windows-Security-" +
		"Auditing AND (event_identifier:4624 OR " +
		"event_identifier:4625 OR event_identifier:4634)"
)

// Interactive, network and remote interactive logons.
var brute_force_logon_types = map[int64]bool{
	2: true, 3: true, 10: true,
}

var windows_event_fields = []string{
	"timestamp", "event_identifier", "computer_name", "ip_address",
	"port", "process_id", "username", "domain", "logon_type",
	"logon_id", "workstation_name", "process_name",
}

// WindowsBruteForceSketchPlugin detects brute forced Windows logons
// from security channel events 4624, 4625 and 4634.
type WindowsBruteForceSketchPlugin struct{}

func (self *WindowsBruteForceSketchPlugin) Info() *analyzers.AnalyzerInfo {
	return &analyzers.AnalyzerInfo{
		Name:        "windows_bruteforce",
		DisplayName: "Windows Login Brute Force Analyzer",
		Description: "Windows login brute force analysis for logon " +
			"types 2, 3 and 10. It checks for multiple failed " +
			"login events followed by a successful login event.",
		Depends:           []string{"feature_extraction"},
		RequiredDataTypes: []string{"windows:evtx:record"},
	}
}

func (self *WindowsBruteForceSketchPlugin) Run(
	runtime *analyzers.Runtime) (string, error) {

	frame := tabular.NewFrame(
		"event_id", "timestamp", "source_ip", "source_port",
		"username", "domain", "authentication_method",
		"authentication_result", "session_id", "event_type",
		"source_hostname", "eid")

	err := runtime.EventStream(&analyzers.StreamOptions{
		QueryString:  windows_search_query,
		ReturnFields: windows_event_fields,
	}, func(event *analyzers.Event) error {
		eid_raw, _ := event.Get("event_identifier")
		eid, _ := tabular.AsInt64(eid_raw)

		logon_type_raw, _ := event.Get("logon_type")
		logon_type, _ := tabular.AsInt64(logon_type_raw)

		var event_type, result string
		switch eid {
		case 4624:
			if !brute_force_logon_types[logon_type] {
				return nil
			}
			event_type, result = "authentication", "success"
		case 4625:
			if !brute_force_logon_types[logon_type] {
				return nil
			}
			event_type, result = "authentication", "failure"
		case 4634:
			event_type = "disconnection"
		default:
			return nil
		}

		timestamp_raw, _ := event.Get("timestamp")
		timestamp, _ := tabular.AsInt64(timestamp_raw)

		// The logoff event 4634 does not carry the domain, leave it
		// blank everywhere so sessions match up.
		frame.AppendRow(map[string]interface{}{
			"event_id":    event.ID(),
			"timestamp":   timestamp / 1000000,
			"source_ip":   event.GetString("ip_address"),
			"source_port": event.GetString("port"),
			"username":    event.GetString("username"),
			"domain":      "",
			// The event does not say, password is the usual case.
			"authentication_method": "password",
			"authentication_result": result,
			"session_id":            event.GetString("logon_id"),
			"event_type":            event_type,
			"source_hostname":       event.GetString("workstation_name"),
			"eid":                   eid,
		})
		return nil
	})
	if err != nil {
		return "", err
	}

	runtime.Logger.Info(
		"%d Windows authentication events processed", frame.Len())

	if frame.Len() == 0 {
		return "No Windows authentication events", nil
	}

	utils := NewBruteForceUtils(0, 0, windows_min_access_window)
	err = utils.SetFrame(frame)
	if err != nil {
		return "", err
	}
	utils.SetSuccessThreshold(windows_success_threshold)

	summaries := utils.Analyze(runtime.Output)
	if len(summaries) == 0 {
		return "No bruteforce activity", nil
	}

	// Only the logon and logoff records are tagged, not the failed
	// attempts leading up to them.
	err = annotateBruteForce(runtime, utils, summaries,
		windows_search_query, "windows_bruteforce",
		func(idx int) bool {
			eid := utils.cellInt("eid", idx)
			return eid == 4624 || eid == 4634
		})
	if err != nil {
		return "", err
	}

	return runtime.Output.ResultSummary, nil
}

func init() {
	analyzers.MustRegister(&WindowsBruteForceSketchPlugin{})
}
