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
package features

import (
	"fmt"
	"strings"

	"github.com/Velocidex/ordereddict"
	"www.timesketch.org/golang/timesketch/analyzers"
	"www.timesketch.org/golang/timesketch/config"
	"www.timesketch.org/golang/timesketch/emojis"
)

const regex_features_file = "regex_features.yaml"

// RegexFeatureConfig is one entry of the regex_features.yaml data
// document.
type RegexFeatureConfig struct {
	QueryString string `json:"query_string,omitempty"`
	QueryDSL    string `json:"query_dsl,omitempty"`

	Attribute string `json:"attribute"`
	StoreAs   string `json:"store_as"`

	RE      string   `json:"re"`
	ReFlags []string `json:"re_flags,omitempty"`

	Emojis []string `json:"emojis,omitempty"`
	Tags   []string `json:"tags,omitempty"`

	CreateView bool `json:"create_view,omitempty"`
	Aggregate  bool `json:"aggregate,omitempty"`

	StoreTypeList            bool `json:"store_type_list,omitempty"`
	OverwriteStoreAs         bool `json:"overwrite_store_as,omitempty"`
	OverwriteAndMergeStoreAs bool `json:"overwrite_and_merge_store_as,omitempty"`
	KeepMultimatch           bool `json:"keep_multimatch,omitempty"`
}

func loadRegexFeatures(config_obj *config.Config) (
	map[string]*RegexFeatureConfig, error) {

	result := make(map[string]*RegexFeatureConfig)
	err := config.LoadDataYaml(config_obj, regex_features_file, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RegexFeaturePlugin extracts new event attributes by running a
// configured regular expression over an existing attribute.
type RegexFeaturePlugin struct{}

func (self *RegexFeaturePlugin) Name() string {
	return "regex_extraction_plugin"
}

func (self *RegexFeaturePlugin) FeatureNames(
	config_obj *config.Config) []string {

	features, err := loadRegexFeatures(config_obj)
	if err != nil {
		return nil
	}

	result := []string{}
	for name := range features {
		result = append(result, name)
	}
	return result
}

// attributeText coerces the attribute value into matchable text.
// Lists are joined with commas, numbers formatted, anything else is
// skipped.
func attributeText(value interface{}) (string, bool) {
	switch t := value.(type) {
	case string:
		return t, true
	case []string:
		return strings.Join(t, ","), true
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, ","), true
	case int, int64, uint64, float64:
		return fmt.Sprintf("%v", t), true
	default:
		return "", false
	}
}

func toStringList(value interface{}) []string {
	switch t := value.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []interface{}:
		result := make([]string, 0, len(t))
		for _, item := range t {
			result = append(result, fmt.Sprintf("%v", item))
		}
		return result
	case string:
		if t == "" {
			return nil
		}
		return strings.Split(t, ",")
	default:
		return []string{fmt.Sprintf("%v", t)}
	}
}

func unionStrings(existing, additions []string) []string {
	seen := make(map[string]bool)
	result := []string{}
	for _, item := range append(append([]string{}, existing...),
		additions...) {
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		result = append(result, item)
	}
	return result
}

// mergeStoreValue decides the new value for store_as given what the
// event already carries. The second return is false when nothing
// should be written.
func mergeStoreValue(existing interface{}, matches []string,
	feature *RegexFeatureConfig) (interface{}, bool) {

	existing_list := toStringList(existing)
	has_existing := len(existing_list) > 0

	fresh := func() interface{} {
		if feature.StoreTypeList {
			return matches
		}
		if feature.KeepMultimatch {
			return strings.Join(matches, ",")
		}
		return matches[0]
	}

	if !has_existing {
		return fresh(), true
	}

	if feature.OverwriteAndMergeStoreAs {
		additions := matches
		if !feature.KeepMultimatch {
			additions = matches[:1]
		}
		merged := unionStrings(existing_list, additions)
		if feature.StoreTypeList {
			return merged, true
		}
		return strings.Join(merged, ","), true
	}

	if feature.OverwriteStoreAs {
		return fresh(), true
	}
	return nil, false
}

func (self *RegexFeaturePlugin) RunFeature(
	runtime *analyzers.Runtime, name string) (string, error) {

	features, err := loadRegexFeatures(runtime.Config)
	if err != nil {
		return "", analyzers.ConfigErrorf(
			"unable to load %s: %v", regex_features_file, err)
	}

	feature, pres := features[name]
	if !pres {
		return "", analyzers.ConfigErrorf(
			"unknown regex feature %q", name)
	}
	if feature.Attribute == "" || feature.StoreAs == "" {
		return "", analyzers.ConfigErrorf(
			"feature %q needs attribute and store_as", name)
	}

	compiled, err := analyzers.CompileRegularExpression(
		feature.RE, feature.ReFlags)
	if err != nil {
		return "", err
	}

	emoji_codes := []string{}
	for _, emoji_name := range feature.Emojis {
		code := emojis.GetEmoji(emoji_name)
		if code != "" {
			emoji_codes = append(emoji_codes, code)
		}
	}

	count := 0
	err = runtime.EventStream(&analyzers.StreamOptions{
		QueryString: feature.QueryString,
		QueryDSL:    feature.QueryDSL,
	}, func(event *analyzers.Event) error {
		value, pres := event.Get(feature.Attribute)
		if !pres {
			return nil
		}
		text, ok := attributeText(value)
		if !ok {
			return nil
		}

		matches := []string{}
		seen := make(map[string]bool)
		for _, groups := range compiled.FindAllStringSubmatch(
			text, -1) {
			match := groups[0]
			if len(groups) > 1 && groups[1] != "" {
				match = groups[1]
			}
			if !seen[match] {
				seen[match] = true
				matches = append(matches, match)
			}
		}
		if len(matches) == 0 {
			return nil
		}

		existing, _ := event.Get(feature.StoreAs)
		new_value, store := mergeStoreValue(
			existing, matches, feature)
		if store {
			event.AddAttributes(ordereddict.NewDict().
				Set(feature.StoreAs, new_value))
		}

		count++
		event.AddTags(feature.Tags)
		event.AddEmojis(emoji_codes)
		return event.Commit()
	})
	if err != nil {
		return "", err
	}

	sketch := runtime.GetSketch()
	if feature.CreateView && count > 0 {
		query := feature.QueryString
		if query == "" {
			query = feature.StoreAs + ":*"
		}
		_, err = sketch.AddView(name, query, feature.QueryDSL, "")
		if err != nil {
			return "", err
		}
	}

	if feature.Aggregate && count > 0 {
		_, err = sketch.AddAggregation(
			fmt.Sprintf("%s values", name), "table", "",
			ordereddict.NewDict().
				Set("field", feature.StoreAs).
				Set("limit", 10))
		if err != nil {
			return "", err
		}
	}

	return fmt.Sprintf(
		"Feature extraction [%s] extracted %d features.",
		name, count), nil
}
