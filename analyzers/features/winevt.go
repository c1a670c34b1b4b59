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
)

const winevt_features_file = "winevt_features.yaml"

type WinEvtMapping struct {
	Name        string   `json:"name"`
	StringIndex int      `json:"string_index"`
	Aliases     []string `json:"aliases,omitempty"`
}

// WinEvtFeatureConfig is one entry of the winevt_features.yaml data
// document. At least one of source_name or provider_identifier must
// be present.
type WinEvtFeatureConfig struct {
	SourceName         []string `json:"source_name,omitempty"`
	ProviderIdentifier []string `json:"provider_identifier,omitempty"`

	EventIdentifier int `json:"event_identifier"`
	EventVersion    int `json:"event_version"`

	Mapping []*WinEvtMapping `json:"mapping"`
}

func loadWinEvtFeatures(config_obj *config.Config) (
	map[string]*WinEvtFeatureConfig, error) {

	result := make(map[string]*WinEvtFeatureConfig)
	err := config.LoadDataYaml(
		config_obj, winevt_features_file, &result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// WinEvtFeaturePlugin maps entries of the positional strings array of
// Windows event log records to named attributes.
type WinEvtFeaturePlugin struct{}

func (self *WinEvtFeaturePlugin) Name() string {
	return "winevt_extraction_plugin"
}

func (self *WinEvtFeaturePlugin) FeatureNames(
	config_obj *config.Config) []string {

	features, err := loadWinEvtFeatures(config_obj)
	if err != nil {
		return nil
	}

	result := []string{}
	for name := range features {
		result = append(result, name)
	}
	return result
}

func quotedTerms(field string, values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, fmt.Sprintf("%q", value))
	}
	return fmt.Sprintf("%s:(%s)", field,
		strings.Join(quoted, " OR "))
}

func (self *WinEvtFeatureConfig) query() (string, error) {
	parts := []string{`data_type:"windows:evtx:record"`}

	if len(self.SourceName) == 0 &&
		len(self.ProviderIdentifier) == 0 {
		return "", analyzers.ConfigErrorf(
			"winevt feature needs source_name or provider_identifier")
	}

	if len(self.SourceName) > 0 {
		parts = append(parts,
			quotedTerms("source_name", self.SourceName))
	}
	if len(self.ProviderIdentifier) > 0 {
		parts = append(parts,
			quotedTerms("provider_identifier",
				self.ProviderIdentifier))
	}

	parts = append(parts, fmt.Sprintf(
		"event_identifier:%d", self.EventIdentifier))
	parts = append(parts, fmt.Sprintf(
		"event_version:%d", self.EventVersion))

	return strings.Join(parts, " AND "), nil
}

func (self *WinEvtFeaturePlugin) RunFeature(
	runtime *analyzers.Runtime, name string) (string, error) {

	features, err := loadWinEvtFeatures(runtime.Config)
	if err != nil {
		return "", analyzers.ConfigErrorf(
			"unable to load %s: %v", winevt_features_file, err)
	}

	feature, pres := features[name]
	if !pres {
		return "", analyzers.ConfigErrorf(
			"unknown winevt feature %q", name)
	}
	if len(feature.Mapping) == 0 {
		return "", analyzers.ConfigErrorf(
			"winevt feature %q has an empty mapping", name)
	}

	query, err := feature.query()
	if err != nil {
		return "", err
	}

	count := 0
	err = runtime.EventStream(&analyzers.StreamOptions{
		QueryString: query,
		ReturnFields: []string{
			"strings", "source_name", "provider_identifier",
			"event_identifier"},
	}, func(event *analyzers.Event) error {
		strings_raw, pres := event.Get("strings")
		if !pres {
			runtime.Logger.Debug(
				"Event %v has no strings array", event.ID())
			return nil
		}
		values, ok := strings_raw.([]interface{})
		if !ok {
			runtime.Logger.Debug(
				"Event %v strings is not a list", event.ID())
			return nil
		}

		attributes := ordereddict.NewDict()
		commented := false
		for _, mapping := range feature.Mapping {
			if mapping.StringIndex >= len(values) ||
				mapping.StringIndex < 0 {
				if !commented {
					commented = true
					err := event.AddComment(fmt.Sprintf(
						"Feature extraction %s: string index %d "+
							"out of bounds.",
						name, mapping.StringIndex))
					if err != nil {
						return err
					}
				}
				continue
			}

			value := values[mapping.StringIndex]
			attributes.Set(mapping.Name, value)
			for _, alias := range mapping.Aliases {
				attributes.Set(alias, value)
			}
		}

		if len(attributes.Keys()) == 0 {
			return nil
		}

		count++
		event.AddAttributes(attributes)
		return event.Commit()
	})
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(
		"Feature extraction [%s] extracted %d features.",
		name, count), nil
}
