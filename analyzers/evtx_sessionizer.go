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
	"sort"
	"strings"

	"github.com/clbanning/mxj"
	"www.timesketch.org/golang/timesketch/tabular"
)

// The Windows event log can contain the same record several times
// when logs were merged. We remember the last few record keys and
// skip repeats.
const event_history_length = 5

// The system event log reports an event log service start (boot)
// with this identifier, which implicitly ends every open session.
const startup_event_identifier = 6005

// evtxDataValues extracts the EventData name/value pairs out of an
// EVTX record's XML payload.
func evtxDataValues(xml_string string) map[string]string {
	result := make(map[string]string)
	if xml_string == "" {
		return result
	}

	parsed, err := mxj.NewMapXml([]byte(xml_string))
	if err != nil {
		return result
	}

	values, err := parsed.ValuesForKey("Data")
	if err != nil {
		return result
	}

	for _, value := range values {
		node, ok := value.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := node["-Name"].(string)
		text, _ := node["#text"].(string)
		if name != "" {
			result[name] = text
		}
	}
	return result
}

// logonSessionizer tracks Windows logon sessions through their start
// and end event identifiers, keyed by the logon id in the EVTX
// payload. A system startup event closes every open session.
type logonSessionizer struct {
	name         string
	display_name string
	session_type string
	start_events map[int64]bool
	end_events   map[int64]bool
}

func (self *logonSessionizer) Info() *AnalyzerInfo {
	return &AnalyzerInfo{
		Name:              self.name,
		DisplayName:       self.display_name,
		Description:       "Group Windows event log records into logon sessions",
		RequiredDataTypes: []string{"windows:evtx:record"},
	}
}

func (self *logonSessionizer) query() string {
	identifiers := []string{
		fmt.Sprintf("%d", startup_event_identifier)}
	for id := range self.start_events {
		identifiers = append(identifiers, fmt.Sprintf("%d", id))
	}
	for id := range self.end_events {
		identifiers = append(identifiers, fmt.Sprintf("%d", id))
	}
	sort.Strings(identifiers)

	return fmt.Sprintf(
		`data_type:"windows:evtx:record" AND event_identifier:(%s)`,
		strings.Join(identifiers, " OR "))
}

func (self *logonSessionizer) Run(runtime *Runtime) (string, error) {
	type openSession struct {
		label string
	}

	open_sessions := make(map[string]*openSession)
	session_count := int64(0)
	history := []string{}

	err := runtime.EventStream(&StreamOptions{
		QueryString: self.query(),
		ReturnFields: []string{
			"timestamp", "event_identifier", "xml_string",
			"session_id"},
	}, func(event *Event) error {
		identifier_raw, pres := event.Get("event_identifier")
		if !pres {
			return nil
		}
		identifier, ok := tabular.AsInt64(identifier_raw)
		if !ok {
			return nil
		}

		// Skip records we have just seen (merged logs repeat).
		key := fmt.Sprintf("%d/%s/%s", identifier,
			event.GetString("timestamp"),
			event.GetString("xml_string"))
		for _, seen := range history {
			if seen == key {
				return nil
			}
		}
		history = append(history, key)
		if len(history) > event_history_length {
			history = history[1:]
		}

		if identifier == startup_event_identifier {
			open_sessions = make(map[string]*openSession)
			return nil
		}

		data := evtxDataValues(event.GetString("xml_string"))
		logon_id := data["TargetLogonId"]
		if logon_id == "" {
			logon_id = data["LogonId"]
		}
		if logon_id == "" {
			runtime.Logger.Debug(
				"No logon id in event %v", event.ID())
			return nil
		}

		if self.start_events[identifier] {
			session_count++
			username := data["TargetUserName"]
			if username == "" {
				username = "unknown"
			}
			session := &openSession{
				label: fmt.Sprintf("%d (%s)",
					session_count, username),
			}
			open_sessions[logon_id] = session

			setSessionIDValue(event, self.session_type,
				session.label)
			return event.Commit()
		}

		if self.end_events[identifier] {
			session, pres := open_sessions[logon_id]
			if !pres {
				return nil
			}
			delete(open_sessions, logon_id)

			setSessionIDValue(event, self.session_type,
				session.label)
			return event.Commit()
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if session_count > 0 {
		sketch := runtime.GetSketch()
		_, err = sketch.AddView(
			"Logon sessions",
			fmt.Sprintf(`session_id.%s:*`, self.session_type),
			"", "")
		if err != nil {
			return "", err
		}
	}

	return fmt.Sprintf(
		"Sessionizing completed, number of %s sessions created: %d",
		self.session_type, session_count), nil
}

func init() {
	MustRegister(&logonSessionizer{
		name:         "evtx_sessionizer",
		display_name: "WindowsLogonSessionizer",
		session_type: "logon_session",
		start_events: map[int64]bool{4624: true, 4778: true},
		end_events:   map[int64]bool{4634: true, 4647: true, 4779: true},
	})

	MustRegister(&logonSessionizer{
		name:         "evtx_unlock_sessionizer",
		display_name: "WindowsUnlockSessionizer",
		session_type: "unlock_session",
		start_events: map[int64]bool{4801: true},
		end_events:   map[int64]bool{4800: true},
	})
}
