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
	"strings"

	"www.timesketch.org/golang/timesketch/config"
	"www.timesketch.org/golang/timesketch/emojis"
)

// TagRule is one entry of the tags.yaml data document.
type TagRule struct {
	QueryString string   `json:"query_string,omitempty"`
	QueryDSL    string   `json:"query_dsl,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Emojis      []string `json:"emojis,omitempty"`

	// Applied to dynamic tag values, in order.
	Modifiers []string `json:"modifiers,omitempty"`

	SaveSearch bool   `json:"save_search,omitempty"`
	SearchName string `json:"search_name,omitempty"`

	// Optional narrowing of dynamic tag values.
	RegularExpression string   `json:"regular_expression,omitempty"`
	ReFlags           []string `json:"re_flags,omitempty"`
}

func loadTagRules(config_obj *config.Config) (
	map[string]*TagRule, error) {

	rules := make(map[string]*TagRule)
	err := config.LoadDataYaml(config_obj, "tags.yaml", &rules)
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// TaggerSketchPlugin applies the operator maintained tag rules. Each
// rule becomes its own analysis task through the kwargs fan-out.
type TaggerSketchPlugin struct{}

func (self *TaggerSketchPlugin) Info() *AnalyzerInfo {
	return &AnalyzerInfo{
		Name:        "tagger",
		DisplayName: "Tagger",
		Description: "Tag events matching configured queries",
	}
}

func (self *TaggerSketchPlugin) GetKwargs(
	config_obj *config.Config) []map[string]interface{} {

	rules, err := loadTagRules(config_obj)
	if err != nil {
		return nil
	}

	result := []map[string]interface{}{}
	for name := range rules {
		result = append(result, map[string]interface{}{
			"tag_name": name,
		})
	}
	return result
}

// expandTag resolves one configured tag against an event. Dynamic
// tags ($attribute) take their value from the event and may fan out
// into several tags through the split modifier.
func expandTag(event *Event, tag string, rule *TagRule,
	value_re *regexp.Regexp) []string {

	if !strings.HasPrefix(tag, "$") {
		return []string{tag}
	}

	value := event.GetString(strings.TrimPrefix(tag, "$"))
	if value == "" {
		return nil
	}

	if value_re != nil {
		value = value_re.FindString(value)
		if value == "" {
			return nil
		}
	}

	values := []string{value}
	for _, modifier := range rule.Modifiers {
		switch modifier {
		case "split":
			split := []string{}
			for _, item := range values {
				split = append(split, strings.Fields(item)...)
			}
			values = split

		case "upper":
			for i, item := range values {
				values[i] = strings.ToUpper(item)
			}
		}
	}
	return values
}

func (self *TaggerSketchPlugin) Run(runtime *Runtime) (string, error) {
	name, _ := runtime.Kwargs["tag_name"].(string)
	if name == "" {
		return "", ConfigErrorf("tagger needs a tag_name kwarg")
	}

	rules, err := loadTagRules(runtime.Config)
	if err != nil {
		return "", ConfigErrorf("unable to load tags.yaml: %v", err)
	}

	rule, pres := rules[name]
	if !pres {
		return "", ConfigErrorf("unknown tag rule %q", name)
	}
	if rule.QueryString == "" && rule.QueryDSL == "" {
		return "", ConfigErrorf(
			"tag rule %q has no query_string or query_dsl", name)
	}

	var value_re *regexp.Regexp
	if rule.RegularExpression != "" {
		value_re, err = CompileRegularExpression(
			rule.RegularExpression, rule.ReFlags)
		if err != nil {
			return "", err
		}
	}

	emoji_codes := []string{}
	for _, emoji_name := range rule.Emojis {
		code := emojis.GetEmoji(emoji_name)
		if code != "" {
			emoji_codes = append(emoji_codes, code)
		}
	}

	count := 0
	err = runtime.EventStream(&StreamOptions{
		QueryString: rule.QueryString,
		QueryDSL:    rule.QueryDSL,
	}, func(event *Event) error {
		tags := []string{}
		for _, tag := range rule.Tags {
			tags = append(tags,
				expandTag(event, tag, rule, value_re)...)
		}
		if len(tags) == 0 {
			return nil
		}

		count++
		event.AddTags(tags)
		event.AddEmojis(emoji_codes)
		for _, tag := range tags {
			runtime.Output.AddCreatedTag(tag)
		}
		return event.Commit()
	})
	if err != nil {
		return "", err
	}

	if rule.SaveSearch && count > 0 {
		search_name := rule.SearchName
		if search_name == "" {
			search_name = name
		}
		sketch := runtime.GetSketch()
		_, err = sketch.AddView(search_name,
			rule.QueryString, rule.QueryDSL, "")
		if err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("%d events tagged for [%s]", count, name), nil
}

func init() {
	MustRegister(&TaggerSketchPlugin{})
}
