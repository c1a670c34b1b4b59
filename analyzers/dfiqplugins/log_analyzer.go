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

// Package dfiqplugins holds analyzers that are only selectable
// through investigative questions. They are registered as a group
// when the question catalog is loaded and removed again when it is
// torn down.
package dfiqplugins

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/Velocidex/json"
	"github.com/hashicorp/go-retryablehttp"
	"www.timesketch.org/golang/timesketch/analyzers"
	"www.timesketch.org/golang/timesketch/config"
)

// logAnalyzerResult is the response document of the external log
// analysis service.
type logAnalyzerResult struct {
	TotalFindingsProcessed int      `json:"total_findings_processed"`
	ErrorsEncountered      int      `json:"errors_encountered"`
	EventsExported         int      `json:"events_exported"`
	ErrorDetails           []string `json:"error_details"`
}

// LLMLogAnalyzerPlugin asks an external model service to summarize
// the logs of the whole sketch. The call runs on its own worker with
// a wall clock budget so a stuck backend cannot hold the analysis
// open.
type LLMLogAnalyzerPlugin struct{}

func (self *LLMLogAnalyzerPlugin) Info() *analyzers.AnalyzerInfo {
	return &analyzers.AnalyzerInfo{
		Name:        "llm_log_analyzer",
		DisplayName: "LLM Log Analyzer",
		Description: "Triggers the LLM log analysis feature for the" +
			" entire sketch.",
		IsDFIQ: true,
	}
}

func callTimeout(config_obj *config.Config) time.Duration {
	seconds := 30
	if config_obj.LLM != nil && config_obj.LLM.TimeoutSeconds > 0 {
		seconds = config_obj.LLM.TimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

// callService posts the analysis request and decodes the response.
func callService(runtime *analyzers.Runtime) (
	*logAnalyzerResult, error) {

	llm_config := runtime.Config.LLM
	if llm_config == nil || llm_config.Endpoint == "" {
		return nil, analyzers.ConfigErrorf(
			"llm log analyzer needs llm.endpoint configured")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"sketch_id": runtime.Sketch.ID,
		"feature":   "log_analyzer",
	})
	if err != nil {
		return nil, err
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil

	request, err := retryablehttp.NewRequestWithContext(
		runtime.Ctx, "POST", llm_config.Endpoint,
		bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	if llm_config.ApiKey != "" {
		request.Header.Set("Authorization",
			"Bearer "+llm_config.ApiKey)
	}

	response, err := client.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != 200 {
		return nil, fmt.Errorf(
			"llm log analyzer service returned status %v",
			response.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	result := &logAnalyzerResult{}
	err = json.Unmarshal(body, result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (self *LLMLogAnalyzerPlugin) Run(
	runtime *analyzers.Runtime) (string, error) {

	runtime.Logger.Info(
		"LLM log analysis started for sketch %v",
		runtime.Sketch.ID)

	type callOutcome struct {
		result *logAnalyzerResult
		err    error
	}

	outcome := make(chan callOutcome, 1)
	go func() {
		result, err := callService(runtime)
		outcome <- callOutcome{result: result, err: err}
	}()

	var result *logAnalyzerResult
	select {
	case done := <-outcome:
		if done.err != nil {
			return "", done.err
		}
		result = done.result

	case <-time.After(callTimeout(runtime.Config)):
		// The backend call is abandoned, the partial outcome is
		// still recorded.
		timeout_err := &analyzers.TimeoutError{Op: "llm log analysis"}
		runtime.Logger.Error("%v on sketch %v",
			timeout_err, runtime.Sketch.ID)

		runtime.Output.ResultMarkdown = fmt.Sprintf(
			"### LLM Log Analyzer Results\n\n%v", timeout_err)
		runtime.Output.SetPriority("MEDIUM")
		return fmt.Sprintf(
			"Log Analyzer did not finish: %v", timeout_err), nil

	case <-runtime.Ctx.Done():
		return "", &analyzers.Cancelled{}
	}

	summary := fmt.Sprintf(
		"Log Analyzer finished. Exported %d events, processed %d"+
			" findings with %d errors.",
		result.EventsExported, result.TotalFindingsProcessed,
		result.ErrorsEncountered)

	markdown := fmt.Sprintf(
		"### LLM Log Analyzer Results\n\n%s", summary)
	if result.ErrorsEncountered > 0 {
		runtime.Output.SetPriority("MEDIUM")
		markdown += "\n\n**Error samples:**\n"
		for _, detail := range result.ErrorDetails {
			markdown += fmt.Sprintf("- `%s`\n", detail)
		}
	}
	runtime.Output.ResultMarkdown = markdown

	runtime.Logger.Info("%s", summary)
	return summary, nil
}

// RegisterAll adds every question-driven analyzer to the registry.
// Called when the question catalog is loaded.
func RegisterAll() error {
	for _, analyzer := range groupAnalyzers() {
		err := analyzers.Register(analyzer)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeregisterAll removes the group again, used on catalog reload.
func DeregisterAll() {
	for _, analyzer := range groupAnalyzers() {
		analyzers.Deregister(analyzer.Info().Name)
	}
}

func groupAnalyzers() []analyzers.Analyzer {
	return []analyzers.Analyzer{
		&LLMLogAnalyzerPlugin{},
	}
}
