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
	"sort"
	"strings"
	"sync"

	"www.timesketch.org/golang/timesketch/config"
)

var (
	mu              sync.Mutex
	global_registry = make(map[string]Analyzer)
)

// Register adds an analyzer to the global registry. Names are case
// insensitive and must be unique.
func Register(analyzer Analyzer) error {
	mu.Lock()
	defer mu.Unlock()

	name := strings.ToLower(analyzer.Info().Name)
	_, pres := global_registry[name]
	if pres {
		return ConfigErrorf("analyzer %s is already registered", name)
	}
	global_registry[name] = analyzer
	return nil
}

// MustRegister is used from package init functions where a duplicate
// registration is a programming error.
func MustRegister(analyzer Analyzer) {
	err := Register(analyzer)
	if err != nil {
		panic(err)
	}
}

func Deregister(name string) {
	mu.Lock()
	defer mu.Unlock()

	delete(global_registry, strings.ToLower(name))
}

func GetAnalyzer(name string) (Analyzer, bool) {
	mu.Lock()
	defer mu.Unlock()

	analyzer, pres := global_registry[strings.ToLower(name)]
	return analyzer, pres
}

// GetAnalyzerNames lists registered analyzer identifiers in sorted
// order. DFIQ driven analyzers are only listed when asked for.
func GetAnalyzerNames(include_dfiq bool) []string {
	mu.Lock()
	defer mu.Unlock()

	result := []string{}
	for name, analyzer := range global_registry {
		if analyzer.Info().IsDFIQ && !include_dfiq {
			continue
		}
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// GetAnalyzers resolves a list of names to analyzers. An empty list
// means all non DFIQ analyzers.
func GetAnalyzers(names []string, include_dfiq bool) (
	[]Analyzer, error) {

	if len(names) == 0 {
		names = GetAnalyzerNames(include_dfiq)
	}

	result := []Analyzer{}
	for _, name := range names {
		analyzer, pres := GetAnalyzer(name)
		if !pres {
			return nil, ConfigErrorf("unknown analyzer %s", name)
		}
		if analyzer.Info().IsDFIQ && !include_dfiq {
			continue
		}
		result = append(result, analyzer)
	}
	return result, nil
}

// GetOrderedAnalyzers arranges the requested analyzers into
// dependency clusters. Analyzers in the same cluster may run
// concurrently, clusters run one after the other. Dependencies that
// were not requested are pulled in automatically.
func GetOrderedAnalyzers(names []string) ([][]Analyzer, error) {
	analyzers, err := GetAnalyzers(names, true)
	if err != nil {
		return nil, err
	}

	// Close over the transitive dependencies.
	selected := make(map[string]Analyzer)
	pending := analyzers
	for len(pending) > 0 {
		analyzer := pending[0]
		pending = pending[1:]

		name := strings.ToLower(analyzer.Info().Name)
		_, pres := selected[name]
		if pres {
			continue
		}
		selected[name] = analyzer

		for _, dep := range analyzer.Info().Depends {
			dep_analyzer, pres := GetAnalyzer(dep)
			if !pres {
				return nil, &DependencyError{
					Analyzer: name,
					Msg:      "unknown dependency " + dep,
				}
			}
			pending = append(pending, dep_analyzer)
		}
	}

	// Peel off dependency levels until everything is scheduled.
	done := make(map[string]bool)
	result := [][]Analyzer{}
	for len(done) < len(selected) {
		level := []string{}
		for name, analyzer := range selected {
			if done[name] {
				continue
			}
			ready := true
			for _, dep := range analyzer.Info().Depends {
				if !done[strings.ToLower(dep)] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, name)
			}
		}

		if len(level) == 0 {
			remaining := []string{}
			for name := range selected {
				if !done[name] {
					remaining = append(remaining, name)
				}
			}
			sort.Strings(remaining)
			return nil, &DependencyError{
				Analyzer: strings.Join(remaining, ", "),
				Msg:      "circular dependency",
			}
		}

		sort.Strings(level)
		cluster := []Analyzer{}
		for _, name := range level {
			done[name] = true
			cluster = append(cluster, selected[name])
		}
		result = append(result, cluster)
	}

	return result, nil
}

// GetKwargsList determines the per run parameter sets for an
// analyzer: the analyzer's own provider wins, then the operator
// configured kwargs, then the packaged defaults. A nil result means
// one run without parameters.
func GetKwargsList(config_obj *config.Config, analyzer Analyzer) (
	[]map[string]interface{}, error) {

	provider, ok := analyzer.(KwargsProvider)
	if ok {
		return provider.GetKwargs(config_obj), nil
	}

	name := strings.ToLower(analyzer.Info().Name)

	raw, pres := config_obj.Analyzers.AutoSketchAnalyzersKwargs[name]
	if !pres {
		raw, pres = config_obj.Analyzers.DefaultKwargs[name]
	}
	if !pres {
		return nil, nil
	}

	kwargs := config.NormalizeKwargs(raw)
	if raw != nil && kwargs == nil {
		return nil, ConfigErrorf(
			"invalid kwargs for analyzer %s", name)
	}
	return kwargs, nil
}
