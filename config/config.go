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

// Package config holds the process wide configuration object. The
// config is loaded once at startup and threaded explicitly through
// every constructor as config_obj.
package config

import (
	"os"

	"github.com/Velocidex/yaml/v2"
)

// Can be an array or a string in YAML but always parses to a string
// array. Deployed config files are inconsistent in this regard so to
// interoperate we need to support this ambiguity.
type StringArray []string

func (self *StringArray) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var multi []string
	err := unmarshal(&multi)
	if err != nil {
		var single string
		err := unmarshal(&single)
		if err != nil {
			return err
		}
		*self = []string{single}
	} else {
		*self = multi
	}
	return nil
}

type ElasticConfig struct {
	Addresses StringArray `json:"addresses,omitempty"`
	User      string      `json:"user,omitempty"`
	Password  string      `json:"password,omitempty"`

	// Number of queued documents that triggers a bulk flush.
	FlushInterval int `json:"flush_interval,omitempty"`
}

type DatastoreConfig struct {
	// One of "Sqlite" or "Memory".
	Implementation string `json:"implementation,omitempty"`
	Location       string `json:"location,omitempty"`
}

type LoggingConfig struct {
	OutputDirectory          string `json:"output_directory,omitempty"`
	SeparateLogsPerComponent bool   `json:"separate_logs_per_component,omitempty"`
	Debug                    bool   `json:"debug,omitempty"`

	// Expressed in days.
	MaxAge int64 `json:"max_age,omitempty"`
}

type WorkersConfig struct {
	PoolSize int `json:"pool_size,omitempty"`
}

type AnalyzersConfig struct {
	AutoIndexAnalyzers  StringArray `json:"auto_index_analyzers,omitempty"`
	AutoSketchAnalyzers StringArray `json:"auto_sketch_analyzers,omitempty"`

	// Per analyzer kwargs for the auto lists. Values are either a
	// single mapping or a list of mappings (one analysis per
	// mapping). Normalized by NormalizeKwargs().
	AutoSketchAnalyzersKwargs map[string]interface{} `json:"auto_sketch_analyzers_kwargs,omitempty"`
	DefaultKwargs             map[string]interface{} `json:"analyzers_default_kwargs,omitempty"`

	DomainWatchedDomains        StringArray `json:"domain_analyzer_watched_domains,omitempty"`
	DomainWatchedThreshold      int         `json:"domain_analyzer_watched_domains_threshold,omitempty"`
	DomainWatchedScoreThreshold float64     `json:"domain_analyzer_watched_domains_score_threshold,omitempty"`
	DomainExcludeDomains        StringArray `json:"domain_analyzer_exclude_domains,omitempty"`
}

type DFIQConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`

	YetiEnabled        bool   `json:"yeti_dfiq_enabled,omitempty"`
	YetiApiRoot        string `json:"yeti_api_root,omitempty"`
	YetiApiKey         string `json:"yeti_api_key,omitempty"`
	YetiTlsCertificate string `json:"yeti_tls_certificate,omitempty"`
}

type LLMConfig struct {
	Endpoint       string `json:"endpoint,omitempty"`
	ApiKey         string `json:"api_key,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

type NotificationsConfig struct {
	Enabled      bool   `json:"enabled,omitempty"`
	SmtpServer   string `json:"smtp_server,omitempty"`
	SmtpPort     int    `json:"smtp_port,omitempty"`
	SmtpUser     string `json:"smtp_user,omitempty"`
	SmtpPassword string `json:"smtp_password,omitempty"`
	Sender       string `json:"sender,omitempty"`
}

type Config struct {
	Elastic       *ElasticConfig       `json:"elastic,omitempty"`
	Datastore     *DatastoreConfig     `json:"datastore,omitempty"`
	Logging       *LoggingConfig       `json:"logging,omitempty"`
	Workers       *WorkersConfig       `json:"workers,omitempty"`
	Analyzers     *AnalyzersConfig     `json:"analyzers,omitempty"`
	DFIQ          *DFIQConfig          `json:"dfiq,omitempty"`
	LLM           *LLMConfig           `json:"llm,omitempty"`
	Notifications *NotificationsConfig `json:"notifications,omitempty"`

	// Public URL of this deployment, recorded on analyzer results.
	ExternalHostUrl string `json:"external_host_url,omitempty"`

	// Location of data documents (tags.yaml, feature definitions,
	// sigma rules).
	DataDir string `json:"data_dir,omitempty"`

	// External converter command used for formats we do not parse
	// natively (e.g. plaso storage files).
	PlasoConverter string `json:"plaso_converter,omitempty"`
}

func GetDefaultConfig() *Config {
	return &Config{
		Elastic: &ElasticConfig{
			Addresses:     []string{"http://127.0.0.1:9200"},
			FlushInterval: 1000,
		},
		Datastore: &DatastoreConfig{
			Implementation: "Memory",
		},
		Logging: &LoggingConfig{
			MaxAge: 30,
		},
		Workers: &WorkersConfig{
			PoolSize: 10,
		},
		Analyzers: &AnalyzersConfig{
			DomainWatchedThreshold:      10,
			DomainWatchedScoreThreshold: 0.75,
		},
		DFIQ: &DFIQConfig{},
		LLM: &LLMConfig{
			TimeoutSeconds: 30,
		},
		Notifications: &NotificationsConfig{
			SmtpPort: 25,
		},
		ExternalHostUrl: "https://localhost",
	}
}

// Load the config stored in the YAML file and return a config object
// with defaults filled in for any section the file omits.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseConfigFromString(data)
}

func ParseConfigFromString(config_string []byte) (*Config, error) {
	result := GetDefaultConfig()
	err := yaml.UnmarshalStrict(config_string, result)
	if err != nil {
		return nil, err
	}
	result.ensureSections()
	return result, nil
}

// Sections may be nulled out by an explicit `section:` with no body.
func (self *Config) ensureSections() {
	defaults := GetDefaultConfig()
	if self.Elastic == nil {
		self.Elastic = defaults.Elastic
	}
	if self.Datastore == nil {
		self.Datastore = defaults.Datastore
	}
	if self.Logging == nil {
		self.Logging = defaults.Logging
	}
	if self.Workers == nil {
		self.Workers = defaults.Workers
	}
	if self.Analyzers == nil {
		self.Analyzers = defaults.Analyzers
	}
	if self.DFIQ == nil {
		self.DFIQ = defaults.DFIQ
	}
	if self.LLM == nil {
		self.LLM = defaults.LLM
	}
	if self.Notifications == nil {
		self.Notifications = defaults.Notifications
	}
}
