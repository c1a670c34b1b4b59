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

// Package features implements the feature extraction analyzer: one
// orchestrating analyzer that fans out into per-feature runs handled
// by extraction plugins.
package features

import (
	"fmt"
	"sort"

	"www.timesketch.org/golang/timesketch/analyzers"
	"www.timesketch.org/golang/timesketch/config"
)

// Plugin is one extraction strategy. Implementations enumerate their
// configured features and run a single feature per analysis task.
type Plugin interface {
	Name() string

	// FeatureNames lists the features this plugin is configured for.
	FeatureNames(config_obj *config.Config) []string

	// RunFeature extracts one named feature.
	RunFeature(runtime *analyzers.Runtime, feature string) (
		string, error)
}

var feature_plugins = []Plugin{
	&RegexFeaturePlugin{},
	&WinEvtFeaturePlugin{},
}

func pluginByName(name string) Plugin {
	for _, plugin := range feature_plugins {
		if plugin.Name() == name {
			return plugin
		}
	}
	return nil
}

// FeatureExtractionSketchPlugin dispatches each configured feature to
// its extraction plugin as an independent analysis.
type FeatureExtractionSketchPlugin struct{}

func (self *FeatureExtractionSketchPlugin) Info() *analyzers.AnalyzerInfo {
	return &analyzers.AnalyzerInfo{
		Name:        "feature_extraction",
		DisplayName: "FeatureExtraction",
		Description: "Extract attributes from events into their own fields",
	}
}

func (self *FeatureExtractionSketchPlugin) GetKwargs(
	config_obj *config.Config) []map[string]interface{} {

	result := []map[string]interface{}{}
	for _, plugin := range feature_plugins {
		features := plugin.FeatureNames(config_obj)
		sort.Strings(features)
		for _, feature := range features {
			result = append(result, map[string]interface{}{
				"plugin":  plugin.Name(),
				"feature": feature,
			})
		}
	}
	return result
}

func (self *FeatureExtractionSketchPlugin) Run(
	runtime *analyzers.Runtime) (string, error) {

	plugin_name, _ := runtime.Kwargs["plugin"].(string)
	feature, _ := runtime.Kwargs["feature"].(string)
	if plugin_name == "" || feature == "" {
		return "", fmt.Errorf(
			"feature_extraction needs plugin and feature kwargs")
	}

	plugin := pluginByName(plugin_name)
	if plugin == nil {
		return "", fmt.Errorf(
			"unknown feature extraction plugin %q", plugin_name)
	}

	return plugin.RunFeature(runtime, feature)
}

func init() {
	analyzers.MustRegister(&FeatureExtractionSketchPlugin{})
}
