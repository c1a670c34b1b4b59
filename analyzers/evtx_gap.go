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
	"time"

	"github.com/Velocidex/ordereddict"
	"www.timesketch.org/golang/timesketch/tabular"
)

type recordRange struct {
	first int64
	last  int64
}

// missingRanges returns the gaps in a set of record numbers between
// the observed minimum and maximum.
func missingRanges(numbers []int64) []recordRange {
	if len(numbers) == 0 {
		return nil
	}

	sorted := append([]int64{}, numbers...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	result := []recordRange{}
	previous := sorted[0]
	for _, number := range sorted[1:] {
		if number == previous || number == previous+1 {
			previous = number
			continue
		}
		result = append(result, recordRange{
			first: previous + 1,
			last:  number - 1,
		})
		previous = number
	}
	return result
}

// EvtxGapSketchPlugin looks for holes in the Windows event logs: both
// missing record numbers per log source and days with suspiciously
// few records.
type EvtxGapSketchPlugin struct{}

func (self *EvtxGapSketchPlugin) Info() *AnalyzerInfo {
	return &AnalyzerInfo{
		Name:              "evtx_gap",
		DisplayName:       "EvtxGap",
		Description:       "Detect gaps in Windows event log records",
		RequiredDataTypes: []string{"windows:evtx:record"},
	}
}

func (self *EvtxGapSketchPlugin) Run(runtime *Runtime) (string, error) {
	frame, err := runtime.EventFrame(&StreamOptions{
		QueryString: `data_type:"windows:evtx:record"`,
		ReturnFields: []string{
			"record_number", "source_name", "timestamp"},
	})
	if err != nil {
		return "", err
	}

	if frame.Len() == 0 {
		return "No EVTX events to analyze.", nil
	}

	// Pass 1: missing record numbers per log source.
	records_per_source := make(map[string][]int64)
	day_counts := make(map[string]int)

	for i := 0; i < frame.Len(); i++ {
		source := tabular.AsString(frame.Get("source_name", i))
		number, ok := tabular.AsInt64(frame.Get("record_number", i))
		if ok {
			records_per_source[source] = append(
				records_per_source[source], number)
		}

		timestamp, ok := tabular.AsInt64(frame.Get("timestamp", i))
		if ok {
			day := time.UnixMicro(timestamp).UTC().
				Format("2006-01-02")
			day_counts[day]++
		}
	}

	gap_lines := []string{}
	gap_count := 0
	sources := []string{}
	for source := range records_per_source {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	for _, source := range sources {
		for _, gap := range missingRanges(records_per_source[source]) {
			gap_count++
			gap_lines = append(gap_lines, fmt.Sprintf(
				"Records from number %d all the way up to %d "+
					"are missing from %s.",
				gap.first, gap.last, source))
		}
	}

	// Pass 2: days with few or no records.
	days := []string{}
	counts := []float64{}
	for day, count := range day_counts {
		days = append(days, day)
		counts = append(counts, float64(count))
	}
	sort.Strings(days)

	quiet_lines := []string{}
	if len(days) > 1 {
		low_threshold := tabular.Percentile(counts, 0.25)

		first_day, err1 := time.Parse("2006-01-02", days[0])
		last_day, err2 := time.Parse("2006-01-02", days[len(days)-1])
		if err1 == nil && err2 == nil {
			for day := first_day; !day.After(last_day); day = day.AddDate(0, 0, 1) {
				key := day.Format("2006-01-02")
				count, pres := day_counts[key]
				if !pres {
					quiet_lines = append(quiet_lines, fmt.Sprintf(
						"No event log records on %s.", key))
					continue
				}
				if float64(count) < low_threshold {
					quiet_lines = append(quiet_lines, fmt.Sprintf(
						"Only %d event log records on %s, "+
							"below the 25th percentile.",
						count, key))
				}
			}
		}
	}

	if gap_count == 0 && len(quiet_lines) == 0 {
		return "No gaps identified in the event logs.", nil
	}

	sketch := runtime.GetSketch()
	story, err := sketch.AddStory("EVTX gap analysis")
	if err != nil {
		return "", err
	}

	text := []string{"## Event log gap analysis", ""}
	if len(gap_lines) > 0 {
		text = append(text, "### Missing records", "")
		text = append(text, gap_lines...)
		text = append(text, "")
	}
	if len(quiet_lines) > 0 {
		text = append(text, "### Quiet days", "")
		text = append(text, quiet_lines...)
	}
	err = story.AddText(strings.Join(text, "\n"))
	if err != nil {
		return "", err
	}

	agg, err := sketch.AddAggregation(
		"Event log records per day", "barchart",
		"Daily event log record counts",
		ordereddict.NewDict().
			Set("field", "datetime").
			Set("query_string",
				`data_type:"windows:evtx:record"`).
			Set("interval", "day"))
	if err != nil {
		return "", err
	}
	err = story.AddAggregation(agg)
	if err != nil {
		return "", err
	}

	runtime.Output.SetPriority("MEDIUM")
	return fmt.Sprintf(
		"Found %d record gaps and %d quiet days in %d log sources.",
		gap_count, len(quiet_lines), len(sources)), nil
}

func init() {
	MustRegister(&EvtxGapSketchPlugin{})
}
