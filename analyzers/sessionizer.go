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

	"github.com/Velocidex/ordereddict"
	"www.timesketch.org/golang/timesketch/tabular"
)

// Events further apart than this are not part of the same session.
const default_max_time_diff_micros = 300000000

// SessionizerSketchPlugin assigns a session number to every event:
// the number increments whenever the gap to the previous event
// exceeds the maximum time difference. Variants restrict the query
// and write their own session type key.
type SessionizerSketchPlugin struct {
	name              string
	session_type      string
	query             string
	max_time_diff     int64
	additional_fields []string
}

func NewSessionizer() *SessionizerSketchPlugin {
	return &SessionizerSketchPlugin{
		name:          "sessionizer",
		session_type:  "all_events",
		query:         "*",
		max_time_diff: default_max_time_diff_micros,
	}
}

func (self *SessionizerSketchPlugin) Info() *AnalyzerInfo {
	return &AnalyzerInfo{
		Name:        self.name,
		DisplayName: "Sessionizer",
		Description: "Group events into sessions by time proximity",
	}
}

// setSessionIDValue merges a session value into the session_id
// mapping without clobbering values written by other sessionizer
// types.
func setSessionIDValue(
	event *Event, session_type string, number interface{}) {
	session_id := ordereddict.NewDict()

	existing, pres := event.Get("session_id")
	if pres {
		switch t := existing.(type) {
		case *ordereddict.Dict:
			session_id = t
		case map[string]interface{}:
			for key, value := range t {
				session_id.Set(key, value)
			}
		}
	}

	session_id.Set(session_type, number)
	event.AddAttributes(ordereddict.NewDict().
		Set("session_id", session_id))
}

func (self *SessionizerSketchPlugin) Run(runtime *Runtime) (
	string, error) {

	var session_num int64
	var last_timestamp int64

	err := runtime.EventStream(&StreamOptions{
		QueryString: self.query,
		ReturnFields: append([]string{"timestamp", "session_id"},
			self.additional_fields...),
	}, func(event *Event) error {
		timestamp_raw, pres := event.Get("timestamp")
		if !pres {
			return nil
		}
		timestamp, ok := tabular.AsInt64(timestamp_raw)
		if !ok {
			return nil
		}

		if session_num == 0 ||
			timestamp-last_timestamp > self.max_time_diff {
			session_num++
		}
		last_timestamp = timestamp

		setSessionIDValue(event, self.session_type, session_num)
		return event.Commit()
	})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Sessionizing completed, number of %s sessions created: %d",
		self.session_type, session_num), nil
}

func init() {
	MustRegister(NewSessionizer())
}
