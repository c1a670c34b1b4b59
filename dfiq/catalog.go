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

// Package dfiq loads the Digital Forensics Investigative Question
// catalog and turns investigative approaches into analyzer runs.
package dfiq

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Velocidex/yaml/v2"
	"github.com/google/uuid"
	"www.timesketch.org/golang/timesketch/analyzers"
	"www.timesketch.org/golang/timesketch/analyzers/dfiqplugins"
	"www.timesketch.org/golang/timesketch/config"
	"www.timesketch.org/golang/timesketch/logging"
)

// Catalog files older than this are silently skipped.
const min_supported_version = "1.1.0"

// Subdirectories of DFIQ.Path holding each component type.
var catalog_dirs = []string{"scenarios", "facets", "questions"}

type ApproachStep struct {
	Name        string `json:"name,omitempty"`
	Stage       string `json:"stage,omitempty"`
	Type        string `json:"type,omitempty"`
	Value       string `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
}

type Approach struct {
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Steps       []ApproachStep `json:"steps,omitempty"`
}

// AnalyzerNames collects the analyzer identifiers from the analysis
// steps of this approach.
func (self *Approach) AnalyzerNames() []string {
	result := []string{}
	seen := make(map[string]bool)
	for _, step := range self.Steps {
		if step.Stage != "analysis" ||
			step.Type != "timesketch-analyzer" {
			continue
		}
		if step.Value == "" || seen[step.Value] {
			continue
		}
		seen[step.Value] = true
		result = append(result, step.Value)
	}
	return result
}

// Component is one DFIQ catalog entry as it appears in a YAML file.
// Scenarios, facets and questions share the envelope and differ in
// their type field and relations.
type Component struct {
	UUID        string     `json:"uuid,omitempty"`
	ID          string     `json:"id,omitempty"`
	Type        string     `json:"type,omitempty"`
	Version     string     `json:"dfiq_version,omitempty"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	ParentIDs   []string   `json:"parent_ids,omitempty"`
	Approaches  []Approach `json:"approaches,omitempty"`
}

type Catalog struct {
	mu sync.RWMutex

	config_obj *config.Config
	logger     *logging.LogContext

	components map[string]*Component
	id_to_uuid map[string]string
}

// LoadCatalog reads the on disk catalog and registers the DFIQ only
// analyzers. When the external knowledge service is configured its
// components are merged in, with local files taking precedence.
func LoadCatalog(config_obj *config.Config) (*Catalog, error) {
	if !config_obj.DFIQ.Enabled {
		return nil, analyzers.ConfigErrorf("DFIQ is not enabled")
	}

	self := &Catalog{
		config_obj: config_obj,
		logger: logging.GetLogger(
			config_obj, &logging.AnalyzerComponent),
		components: make(map[string]*Component),
		id_to_uuid: make(map[string]string),
	}

	documents, err := readCatalogFiles(config_obj.DFIQ.Path)
	if err != nil {
		return nil, err
	}

	if config_obj.DFIQ.YetiEnabled {
		yeti_documents, err := fetchYetiCatalog(config_obj)
		if err != nil {
			// The local catalog still works without the
			// external service.
			self.logger.Error(
				"Unable to fetch DFIQ from knowledge service: %v",
				err)
		} else {
			documents = append(documents, yeti_documents...)
		}
	}

	for _, document := range documents {
		self.addDocument(document)
	}

	err = dfiqplugins.RegisterAll()
	if err != nil {
		return nil, err
	}
	return self, nil
}

// Close deregisters the DFIQ only analyzers so the catalog can be
// reloaded.
func (self *Catalog) Close() {
	dfiqplugins.DeregisterAll()
}

func (self *Catalog) addDocument(document string) {
	component := &Component{}
	err := yaml.Unmarshal([]byte(document), component)
	if err != nil {
		self.logger.Error("Unable to parse DFIQ document: %v", err)
		return
	}

	if component.Name == "" || component.Type == "" {
		return
	}

	if !versionSupported(component.Version) {
		self.logger.Debug(
			"Skipping DFIQ component %v with version %v",
			component.Name, component.Version)
		return
	}

	if component.UUID == "" {
		// Components without a stable UUID get an ephemeral one so
		// they are still addressable for this process lifetime.
		component.UUID = uuid.NewString()
		self.logger.Warn(
			"DFIQ component %v (%v) has no UUID, assigned %v",
			component.ID, component.Name, component.UUID)

	} else if uuid.Validate(component.UUID) != nil {
		self.logger.Error(
			"DFIQ component %v has invalid UUID %v, skipping",
			component.Name, component.UUID)
		return
	}

	self.mu.Lock()
	defer self.mu.Unlock()

	_, pres := self.components[component.UUID]
	if pres {
		return
	}
	self.components[component.UUID] = component
	if component.ID != "" {
		self.id_to_uuid[component.ID] = component.UUID
	}
}

func (self *Catalog) GetByUUID(component_uuid string) (
	*Component, bool) {
	self.mu.RLock()
	defer self.mu.RUnlock()

	component, pres := self.components[component_uuid]
	return component, pres
}

// GetByID resolves the human readable DFIQ ID (eg "Q1001").
func (self *Catalog) GetByID(dfiq_id string) (*Component, bool) {
	self.mu.RLock()
	defer self.mu.RUnlock()

	component_uuid, pres := self.id_to_uuid[dfiq_id]
	if !pres {
		return nil, false
	}
	component, pres := self.components[component_uuid]
	return component, pres
}

func (self *Catalog) byType(component_type string) []*Component {
	self.mu.RLock()
	defer self.mu.RUnlock()

	result := []*Component{}
	for _, component := range self.components {
		if component.Type == component_type {
			result = append(result, component)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UUID < result[j].UUID
	})
	return result
}

func (self *Catalog) Scenarios() []*Component {
	return self.byType("scenario")
}

func (self *Catalog) Facets() []*Component {
	return self.byType("facet")
}

func (self *Catalog) Questions() []*Component {
	return self.byType("question")
}

func readCatalogFiles(path string) ([]string, error) {
	if path == "" {
		return nil, analyzers.ConfigErrorf("no DFIQ path configured")
	}

	result := []string{}
	for _, dir := range catalog_dirs {
		entries, err := os.ReadDir(filepath.Join(path, dir))
		if err != nil {
			// Types the deployment does not use are fine.
			continue
		}

		names := []string{}
		for _, entry := range entries {
			if entry.IsDir() ||
				!strings.HasSuffix(entry.Name(), ".yaml") {
				continue
			}
			names = append(names, entry.Name())
		}
		sort.Strings(names)

		for _, name := range names {
			data, err := os.ReadFile(
				filepath.Join(path, dir, name))
			if err != nil {
				return nil, err
			}
			result = append(result, string(data))
		}
	}
	return result, nil
}

// versionSupported compares dotted version strings numerically
// against the minimum supported catalog version.
func versionSupported(version string) bool {
	if version == "" {
		return false
	}

	have := strings.Split(version, ".")
	want := strings.Split(min_supported_version, ".")
	for i := 0; i < len(want); i++ {
		have_part := 0
		if i < len(have) {
			have_part, _ = strconv.Atoi(have[i])
		}
		want_part, _ := strconv.Atoi(want[i])

		if have_part > want_part {
			return true
		}
		if have_part < want_part {
			return false
		}
	}
	return true
}
