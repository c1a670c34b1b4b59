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

// Native ingestion of Windows event log files. Each record in the
// file becomes one windows:evtx:record event, with the EventData
// values flattened into the strings attribute the feature extraction
// analyzers consume.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/Velocidex/json"
	"github.com/Velocidex/ordereddict"
	"www.timesketch.org/golang/timesketch/tabular"
	"www.velocidex.com/golang/evtx"
)

const evtx_timestamp_desc = "Event Logged"

func evtxLookup(event map[string]interface{},
	path ...string) interface{} {

	var current interface{} = event
	for _, step := range path {
		current_map, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = current_map[step]
	}
	return current
}

func evtxString(event map[string]interface{}, path ...string) string {
	value := evtxLookup(event, path...)
	if value == nil {
		return ""
	}
	return tabular.AsString(value)
}

func evtxInt(event map[string]interface{}, path ...string) int64 {
	value, _ := tabular.AsInt64(evtxLookup(event, path...))
	return value
}

// evtxEventID handles both plain EventIDs and the qualified form
// where the parser emits a {Value, Qualifiers} mapping.
func evtxEventID(event map[string]interface{}) int64 {
	value := evtxLookup(event, "System", "EventID")
	if qualified, ok := value.(map[string]interface{}); ok {
		value = qualified["Value"]
	}
	id, _ := tabular.AsInt64(value)
	return id
}

// evtxStrings flattens EventData into the positional strings list in
// stable key order.
func evtxStrings(event map[string]interface{}) []interface{} {
	event_data, ok := evtxLookup(
		event, "EventData").(map[string]interface{})
	if !ok {
		return nil
	}

	keys := make([]string, 0, len(event_data))
	for key := range event_data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]interface{}, 0, len(keys))
	for _, key := range keys {
		result = append(result, event_data[key])
	}
	return result
}

func evtxTimestamp(event map[string]interface{}) time.Time {
	value := evtxLookup(event, "System", "TimeCreated", "SystemTime")
	seconds, ok := tabular.AsFloat64(value)
	if !ok {
		return time.Time{}
	}
	return time.Unix(0, int64(seconds*1e9)).UTC()
}

func evtxDoc(event map[string]interface{},
	record_number int64) *ordereddict.Dict {

	source_name := evtxString(event, "System", "Provider", "Name")
	event_identifier := evtxEventID(event)
	timestamp := evtxTimestamp(event)

	message := fmt.Sprintf("[%s / EventID %d]",
		source_name, event_identifier)
	event_data := evtxLookup(event, "EventData")
	if event_data != nil {
		serialized, err := json.Marshal(event_data)
		if err == nil {
			message += " " + string(serialized)
		}
	}

	return ordereddict.NewDict().
		Set("message", message).
		Set("datetime", timestamp.Format(time.RFC3339)).
		Set("timestamp", timestamp.UnixMicro()).
		Set("timestamp_desc", evtx_timestamp_desc).
		Set("data_type", "windows:evtx:record").
		Set("source_name", source_name).
		Set("computer_name",
			evtxString(event, "System", "Computer")).
		Set("event_identifier", event_identifier).
		Set("event_version", evtxInt(event, "System", "Version")).
		Set("record_number", record_number).
		Set("strings", evtxStrings(event))
}

func ingestEvtx(ctx context.Context, env *Environment,
	fd io.ReadSeeker, index_name string,
	timeline_id int64) (int, error) {

	chunks, err := evtx.GetChunks(fd)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, chunk := range chunks {
		records, err := chunk.Parse(0)
		if err != nil {
			env.Logger.Warn(
				"Skipping unparseable chunk in %v: %v",
				index_name, err)
			continue
		}

		for _, record := range records {
			event_map, ok := record.Event.(map[string]interface{})
			if !ok {
				continue
			}
			event, ok := event_map["Event"].(map[string]interface{})
			if !ok {
				continue
			}

			doc := evtxDoc(event, int64(record.Header.RecordID))
			err := env.Store.ImportEvent(
				ctx, index_name, doc, "", timeline_id)
			if err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}
