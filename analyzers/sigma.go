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
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bradleyjkemp/sigma-go"
	"github.com/bradleyjkemp/sigma-go/evaluator"
)

type sigmaRule struct {
	rule      sigma.Rule
	evaluator *evaluator.RuleEvaluator
}

// loadSigmaRules reads every rule file under <data_dir>/sigma.
// Broken rules are skipped with a warning, one bad rule must not
// disable the whole run.
func loadSigmaRules(runtime *Runtime) ([]*sigmaRule, error) {
	if runtime.Config.DataDir == "" {
		return nil, ConfigErrorf("no data_dir configured")
	}

	rules_dir := filepath.Join(runtime.Config.DataDir, "sigma")
	result := []*sigmaRule{}

	err := filepath.WalkDir(rules_dir,
		func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := filepath.Ext(path)
			if ext != ".yml" && ext != ".yaml" {
				return nil
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			rule, err := sigma.ParseRule(data)
			if err != nil {
				runtime.Logger.Warn(
					"Skipping invalid sigma rule %v: %v",
					path, err)
				return nil
			}

			result = append(result, &sigmaRule{
				rule:      rule,
				evaluator: evaluator.ForRule(rule),
			})
			return nil
		})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SigmaSketchPlugin evaluates the deployed sigma rule set against
// every event and tags the matches.
type SigmaSketchPlugin struct{}

func (self *SigmaSketchPlugin) Info() *AnalyzerInfo {
	return &AnalyzerInfo{
		Name:        "sigma",
		DisplayName: "Sigma",
		Description: "Tag events matching the deployed sigma rules",
	}
}

func (self *SigmaSketchPlugin) Run(runtime *Runtime) (string, error) {
	rules, err := loadSigmaRules(runtime)
	if err != nil {
		return "", err
	}
	if len(rules) == 0 {
		return "No sigma rules configured.", nil
	}

	matched_rules := make(map[string]int)
	count := 0

	err = runtime.EventStream(&StreamOptions{
		QueryString: "*",
	}, func(event *Event) error {
		source := event.Source()
		if source == nil {
			return nil
		}

		fields := make(map[string]interface{})
		for _, key := range source.Keys() {
			value, _ := source.Get(key)
			fields[key] = value
		}

		tags := []string{}
		for _, rule := range rules {
			result, err := rule.evaluator.Matches(
				runtime.Ctx, fields)
			if err != nil {
				continue
			}
			if !result.Match {
				continue
			}

			matched_rules[rule.rule.Title]++
			tags = append(tags, "sigma_match")
			for _, tag := range rule.rule.Tags {
				tags = append(tags,
					strings.ReplaceAll(tag, ".", "-"))
			}
		}

		if len(tags) == 0 {
			return nil
		}

		count++
		event.AddTags(tags)
		event.AddHumanReadable("Sigma rule match", false)
		return event.Commit()
	})
	if err != nil {
		return "", err
	}

	if count > 0 {
		runtime.Output.SetPriority("MEDIUM")
		sketch := runtime.GetSketch()
		_, err = sketch.AddView(
			"Sigma matches", `tag:"sigma_match"`, "", "")
		if err != nil {
			return "", err
		}
	}

	return fmt.Sprintf(
		"%d events matched by %d sigma rules (%d rules loaded)",
		count, len(matched_rules), len(rules)), nil
}

func init() {
	MustRegister(&SigmaSketchPlugin{})
}
