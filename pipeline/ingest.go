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
package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/Velocidex/ordereddict"
	"github.com/araddon/dateparse"
	"www.timesketch.org/golang/timesketch/analyzers"
	"www.timesketch.org/golang/timesketch/datastore"
	"www.timesketch.org/golang/timesketch/models"
)

// Fields every imported event must carry.
var mandatory_fields = []string{"message", "datetime", "timestamp_desc"}

// Generous line limit for JSONL uploads with large message bodies.
const max_jsonl_line = 10 * 1024 * 1024

// IngestOptions describe one uploaded file and the pipeline to build
// around it.
type IngestOptions struct {
	FilePath      string
	FileExtension string
	TimelineName  string
	IndexName     string
	TimelineID    int64
	SketchID      int64

	// Chunked uploads index only, analysis runs after the last chunk.
	OnlyIndex bool

	NotifyAddress string
}

// BuildIngestPipeline composes the canonical pipeline for one
// uploaded file: ingest, then the configured index analyzers in
// series, then the sketch analyzer groups behind the sketch_init
// barrier. With OnlyIndex the pipeline is the ingest task alone.
func BuildIngestPipeline(env *Environment, options *IngestOptions) (
	*Node, *models.AnalysisSession, error) {

	nodes := []*Node{
		Call("ingest", map[string]interface{}{
			"file_path":      options.FilePath,
			"file_extension": options.FileExtension,
			"timeline_name":  options.TimelineName,
			"index_name":     options.IndexName,
			"timeline_id":    options.TimelineID,
		}),
	}

	if options.OnlyIndex {
		return Chain(nodes...), nil, nil
	}

	for _, name := range env.Config.Analyzers.AutoIndexAnalyzers {
		analyzer, pres := analyzers.GetAnalyzer(name)
		if !pres {
			return nil, nil, fmt.Errorf(
				"unknown index analyzer %q", name)
		}

		analysis := &models.Analysis{
			SketchID:     options.SketchID,
			TimelineID:   options.TimelineID,
			AnalyzerName: name,
			Parameters:   parametersJson(nil),
			Status:       models.AnalysisStatusPending,
		}
		err := env.DB.CreateAnalysis(analysis)
		if err != nil {
			return nil, nil, err
		}

		nodes = append(nodes, Call("run_sketch_analyzer",
			map[string]interface{}{
				"analyzer_name": analyzer.Info().Name,
				"analysis_id":   analysis.ID,
				"sketch_id":     options.SketchID,
				"timeline_id":   options.TimelineID,
				"index_name":    options.IndexName,
				"mark_failure":  true,
			}))
	}

	analysis_node, session, err := BuildSketchAnalysisPipeline(env,
		&PipelineOptions{
			SketchID:   options.SketchID,
			TimelineID: options.TimelineID,
			IndexName:  options.IndexName,
			AnalyzerNames: env.Config.Analyzers.
				AutoSketchAnalyzers,
			NotifyAddress: options.NotifyAddress,
		})
	if err != nil {
		return nil, nil, err
	}
	if analysis_node != nil {
		nodes = append(nodes, analysis_node)
	}

	return Chain(nodes...), session, nil
}

func ingestTask(ctx context.Context, env *Environment,
	input interface{}, kwargs map[string]interface{}) (
	interface{}, error) {

	index_name := kwargString(kwargs, "index_name")
	timeline_id := kwargInt(kwargs, "timeline_id")
	file_path := kwargString(kwargs, "file_path")
	extension := strings.ToLower(strings.TrimPrefix(
		kwargString(kwargs, "file_extension"), "."))

	_ = env.DB.SetSearchIndexStatus(
		index_name, models.IndexStatusProcessing)
	_ = env.DB.SetTimelineStatus(
		timeline_id, models.TimelineStatusProcessing)

	err := env.Store.CreateIndex(ctx, index_name)
	if err != nil {
		return nil, ingestFailed(env, index_name, timeline_id, err)
	}

	total, err := ingestFile(
		ctx, env, file_path, extension, index_name, timeline_id)
	if err != nil {
		return nil, ingestFailed(env, index_name, timeline_id, err)
	}

	result, err := env.Store.Flush(ctx)
	if err != nil {
		return nil, ingestFailed(env, index_name, timeline_id, err)
	}

	digest := importDigest(index_name, total, result)
	if digest != "" {
		env.Logger.Warn("Import of %v: %v", index_name, digest)
		_ = env.DB.AppendSearchIndexDescription(index_name, digest)
	}

	env.Logger.Info("Imported %v events from %v into %v",
		total, file_path, index_name)

	err = env.DB.SetSearchIndexStatus(
		index_name, models.IndexStatusReady)
	if err != nil {
		return nil, err
	}
	err = env.DB.SetTimelineStatus(
		timeline_id, models.TimelineStatusReady)
	if err != nil {
		return nil, err
	}

	return index_name, nil
}

func ingestFile(ctx context.Context, env *Environment,
	file_path, extension, index_name string,
	timeline_id int64) (int, error) {

	switch extension {
	case "plaso":
		return ingestPlaso(
			ctx, env, file_path, index_name, timeline_id)

	case "evtx":
		fd, err := os.Open(file_path)
		if err != nil {
			return 0, err
		}
		defer fd.Close()

		return ingestEvtx(ctx, env, fd, index_name, timeline_id)

	case "csv":
		fd, err := os.Open(file_path)
		if err != nil {
			return 0, err
		}
		defer fd.Close()

		return ingestCsv(ctx, env, fd, index_name, timeline_id)

	case "jsonl":
		fd, err := os.Open(file_path)
		if err != nil {
			return 0, err
		}
		defer fd.Close()

		return ingestJsonl(ctx, env, fd, index_name, timeline_id)
	}

	return 0, &datastore.DataIngestionError{
		IndexName: index_name,
		Detail: fmt.Sprintf("unsupported file extension %q",
			extension),
	}
}

func ingestFailed(env *Environment, index_name string,
	timeline_id int64, err error) error {

	env.Logger.Error("Import into %v failed: %v", index_name, err)
	_ = env.DB.SetSearchIndexStatus(index_name, models.IndexStatusFail)
	_ = env.DB.SetTimelineStatus(timeline_id, models.TimelineStatusFail)
	_ = env.DB.AppendSearchIndexDescription(index_name, err.Error())
	return err
}

// importDigest summarizes the bulk upload errors for one index. An
// upload with no errors produces no digest.
func importDigest(index_name string, total int,
	result *datastore.ImportResult) string {

	if result == nil || !result.ErrorsInUpload {
		return ""
	}

	index_errors, pres := result.ErrorContainer[index_name]
	if !pres {
		return ""
	}

	top_type := topCounted(index_errors.Types)
	top_detail := topCounted(index_errors.Details)

	return fmt.Sprintf(
		"%d out of %d events imported. Most common error type is "+
			"%q with the detail of %q",
		result.NumberOfEvents, total, top_type, top_detail)
}

func topCounted(counts map[string]int) string {
	best := ""
	best_count := -1
	for value, count := range counts {
		if count > best_count ||
			(count == best_count && value < best) {
			best = value
			best_count = count
		}
	}
	return best
}

// normalizeEvent enforces the mandatory fields and derives the
// microsecond timestamp from the datetime column when missing.
func normalizeEvent(event *ordereddict.Dict, index_name string) error {
	missing := []string{}
	for _, field := range mandatory_fields {
		value, pres := event.Get(field)
		if !pres || value == "" || value == nil {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &datastore.DataIngestionError{
			IndexName: index_name,
			Detail: fmt.Sprintf("missing mandatory fields %v",
				missing),
		}
	}

	_, pres := event.Get("timestamp")
	if !pres {
		datetime, _ := event.GetString("datetime")
		parsed, err := dateparse.ParseIn(datetime, time.UTC)
		if err != nil {
			return &datastore.DataIngestionError{
				IndexName: index_name,
				Detail: fmt.Sprintf(
					"unable to parse datetime %q: %v",
					datetime, err),
			}
		}
		event.Set("timestamp", parsed.UnixMicro())
	}
	return nil
}

func ingestCsv(ctx context.Context, env *Environment, fd io.Reader,
	index_name string, timeline_id int64) (int, error) {

	reader := csv.NewReader(fd)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return 0, &datastore.DataIngestionError{
			IndexName: index_name,
			Detail: fmt.Sprintf(
				"unable to read CSV header: %v", err),
		}
	}

	missing := []string{}
	for _, field := range mandatory_fields {
		found := false
		for _, header := range headers {
			if header == field {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing,
				fmt.Sprintf("'%s'", field))
		}
	}
	if len(missing) > 0 {
		return 0, &datastore.DataIngestionError{
			IndexName: index_name,
			Detail: fmt.Sprintf(
				"Missing fields in CSV header: [%s]",
				strings.Join(missing, ", ")),
		}
	}

	count := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, &datastore.DataIngestionError{
				IndexName: index_name,
				Detail:    err.Error(),
			}
		}

		event := ordereddict.NewDict()
		for i, header := range headers {
			if i < len(row) {
				event.Set(header, row[i])
			}
		}

		err = normalizeEvent(event, index_name)
		if err != nil {
			return count, err
		}

		err = env.Store.ImportEvent(
			ctx, index_name, event, "", timeline_id)
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func ingestJsonl(ctx context.Context, env *Environment, fd io.Reader,
	index_name string, timeline_id int64) (int, error) {

	scanner := bufio.NewScanner(fd)
	scanner.Buffer(make([]byte, 64*1024), max_jsonl_line)

	count := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		event := ordereddict.NewDict()
		err := event.UnmarshalJSON([]byte(line))
		if err != nil {
			return count, &datastore.DataIngestionError{
				IndexName: index_name,
				Detail: fmt.Sprintf(
					"invalid JSONL line %d: %v",
					count+1, err),
			}
		}

		err = normalizeEvent(event, index_name)
		if err != nil {
			return count, err
		}

		err = env.Store.ImportEvent(
			ctx, index_name, event, "", timeline_id)
		if err != nil {
			return count, err
		}
		count++
	}

	err := scanner.Err()
	if err != nil {
		return count, &datastore.DataIngestionError{
			IndexName: index_name,
			Detail:    err.Error(),
		}
	}
	return count, nil
}

// ingestPlaso shells out to the configured psort compatible converter
// which writes JSONL on stdout, and streams that into the store.
func ingestPlaso(ctx context.Context, env *Environment,
	file_path, index_name string, timeline_id int64) (int, error) {

	converter := env.Config.PlasoConverter
	if converter == "" {
		return 0, &datastore.DataIngestionError{
			IndexName: index_name,
			Detail:    "no plaso converter configured",
		}
	}

	argv := strings.Fields(converter)
	argv = append(argv, file_path)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 0, err
	}

	err = cmd.Start()
	if err != nil {
		return 0, &datastore.DataIngestionError{
			IndexName: index_name,
			Detail: fmt.Sprintf(
				"unable to start converter: %v", err),
		}
	}

	count, ingest_err := ingestJsonl(
		ctx, env, stdout, index_name, timeline_id)

	wait_err := cmd.Wait()
	if ingest_err != nil {
		return count, ingest_err
	}
	if wait_err != nil {
		return count, &datastore.DataIngestionError{
			IndexName: index_name,
			Detail: fmt.Sprintf(
				"converter failed: %v", wait_err),
		}
	}
	return count, nil
}

func init() {
	RegisterTask("ingest", ingestTask)
}
