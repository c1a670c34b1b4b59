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
	"crypto/sha256"
	"fmt"
	"strings"

	"www.timesketch.org/golang/timesketch/analyzers"
	"www.timesketch.org/golang/timesketch/tabular"
)

const ssh_search_query = "reporter:sshd AND (body:*Accepted* OR " +
	"body:*Failed* OR (body:*Disconnected* AND NOT body:*preauth*))"

var ssh_event_fields = []string{
	"timestamp", "hostname", "pid", "authentication_method",
	"username", "ip_address", "port", "body",
}

// sshSessionID derives a pseudo session ID for an SSH event. The
// records carry no native session identifier so the login and its
// disconnect are matched on the connection tuple.
func sshSessionID(hostname, username, source_ip, source_port string) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		hostname, username, source_ip, source_port)
	return fmt.Sprintf("%x", sha256.Sum256([]byte(data)))
}

// SSHBruteForceSketchPlugin detects SSH password and key brute force
// attempts from sshd syslog records.
type SSHBruteForceSketchPlugin struct{}

func (self *SSHBruteForceSketchPlugin) Info() *analyzers.AnalyzerInfo {
	return &analyzers.AnalyzerInfo{
		Name:        "ssh_bruteforce",
		DisplayName: "SSH Brute Force Analyzer",
		Description: "SSH brute force analyzer that checks for " +
			"login/logoff and session duration",
		Depends: []string{"feature_extraction"},
	}
}

// classifySSHBody maps the sshd message to event type and result.
func classifySSHBody(body string) (event_type, result string) {
	switch {
	case strings.HasPrefix(body, "Accepted"):
		return "authentication", "success"
	case strings.HasPrefix(body, "Failed"):
		return "authentication", "failure"
	case strings.HasPrefix(body, "Disconnected"):
		return "disconnection", ""
	default:
		return "unknown", "unknown"
	}
}

func (self *SSHBruteForceSketchPlugin) Run(
	runtime *analyzers.Runtime) (string, error) {

	frame := tabular.NewFrame(
		"event_id", "timestamp", "source_ip", "source_port",
		"username", "domain", "authentication_method",
		"authentication_result", "session_id", "event_type",
		"source_hostname")

	err := runtime.EventStream(&analyzers.StreamOptions{
		QueryString:  ssh_search_query,
		ReturnFields: ssh_event_fields,
	}, func(event *analyzers.Event) error {
		body := event.GetString("body")
		if body == "" {
			return nil
		}
		event_type, result := classifySSHBody(body)

		timestamp_raw, _ := event.Get("timestamp")
		timestamp, _ := tabular.AsInt64(timestamp_raw)

		hostname := event.GetString("hostname")
		username := event.GetString("username")
		source_ip := event.GetString("ip_address")
		source_port := event.GetString("port")

		frame.AppendRow(map[string]interface{}{
			"event_id":              event.ID(),
			"timestamp":             timestamp / 1000000,
			"source_ip":             source_ip,
			"source_port":           source_port,
			"username":              username,
			"domain":                "",
			"authentication_method": event.GetString("authentication_method"),
			"authentication_result": result,
			"session_id": sshSessionID(
				hostname, username, source_ip, source_port),
			"event_type":      event_type,
			"source_hostname": "",
		})
		return nil
	})
	if err != nil {
		return "", err
	}

	runtime.Logger.Info("%d SSH authentication events processed",
		frame.Len())

	if frame.Len() == 0 {
		return "No SSH authentication events", nil
	}

	utils := NewBruteForceUtils(0, 0, 0)
	err = utils.SetFrame(frame)
	if err != nil {
		return "", err
	}
	utils.SetSuccessThreshold(1)

	summaries := utils.Analyze(runtime.Output)
	if len(summaries) == 0 {
		return "No bruteforce activity", nil
	}

	err = annotateBruteForce(runtime, utils, summaries,
		ssh_search_query, "ssh_bruteforce", nil)
	if err != nil {
		return "", err
	}

	return runtime.Output.ResultSummary, nil
}

// annotateBruteForce tags and stars the events belonging to the brute
// forced sessions. The optional filter keeps only specific rows, used
// by the Windows variant to skip the failed attempts.
func annotateBruteForce(runtime *analyzers.Runtime,
	utils *BruteForceUtils, summaries []*AuthSummary,
	query, tag string, filter func(idx int) bool) error {

	event_ids := make(map[string]bool)
	for _, summary := range summaries {
		for _, login := range summary.BruteForceLogins {
			for i := 0; i < utils.frame.Len(); i++ {
				if utils.cell("session_id", i) != login.SessionID {
					continue
				}
				if filter != nil && !filter(i) {
					continue
				}
				event_id := utils.cell("event_id", i)
				if event_id != "" {
					event_ids[event_id] = true
				}
			}
		}
	}

	if len(event_ids) == 0 {
		return nil
	}

	runtime.Logger.Info("Annotating %d brute force events",
		len(event_ids))

	return runtime.EventStream(&analyzers.StreamOptions{
		QueryString: query,
	}, func(event *analyzers.Event) error {
		if !event_ids[event.ID()] {
			return nil
		}
		event.AddTags([]string{tag})
		err := event.AddStar()
		if err != nil {
			return err
		}
		return event.Commit()
	})
}

func init() {
	analyzers.MustRegister(&SSHBruteForceSketchPlugin{})
}
