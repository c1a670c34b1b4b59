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
	"sort"
	"strings"

	"github.com/Velocidex/ordereddict"
	"www.timesketch.org/golang/timesketch/tabular"
)

// Domains served by the large CDN networks. Events pointing at these
// get a known-cdn tag so reviewers can skip them quickly.
var cdn_providers = map[string]string{
	"akadns.net":       "Akamai",
	"akamai.net":       "Akamai",
	"akamaiedge.net":   "Akamai",
	"akamaized.net":    "Akamai",
	"amazonaws.com":    "AWS",
	"azureedge.net":    "Azure",
	"cloudfront.net":   "CloudFront",
	"cloudflare.com":   "Cloudflare",
	"cloudflare.net":   "Cloudflare",
	"edgecastcdn.net":  "EdgeCast",
	"edgekey.net":      "Akamai",
	"edgesuite.net":    "Akamai",
	"fastly.net":       "Fastly",
	"fbcdn.net":        "Facebook",
	"googleusercontent.com": "Google",
	"gstatic.com":      "Google",
	"llnwd.net":        "Limelight",
	"cdn77.org":        "CDN77",
}

const domain_query_dsl = `{
  "query": {
    "bool": {
      "should": [
        {"exists": {"field": "url"}},
        {"exists": {"field": "domain"}}
      ]
    }
  }
}`

// DomainSketchPlugin extracts the domain from every URL bearing event
// and classifies domains by how often they appear in the sketch.
type DomainSketchPlugin struct{}

func (self *DomainSketchPlugin) Info() *AnalyzerInfo {
	return &AnalyzerInfo{
		Name:        "domain",
		DisplayName: "Domain",
		Description: "Extract domain and classify it by frequency",
	}
}

// cdnProvider matches a domain against the CDN table, including
// subdomains of the listed networks.
func cdnProvider(domain string) string {
	for cdn_domain, provider := range cdn_providers {
		if domain == cdn_domain ||
			strings.HasSuffix(domain, "."+cdn_domain) {
			return provider
		}
	}
	return ""
}

// eventDomain resolves the domain of one event, preferring an
// explicit domain field over deriving it from the url field.
func eventDomain(event *Event) string {
	domain := event.GetString("domain")
	if domain != "" {
		return strings.ToLower(domain)
	}
	url := event.GetString("url")
	if url == "" {
		return ""
	}
	return GetDomain(url)
}

func (self *DomainSketchPlugin) Run(runtime *Runtime) (string, error) {
	domain_events := make(map[string][]*Event)

	err := runtime.EventStream(&StreamOptions{
		QueryDSL:     domain_query_dsl,
		ReturnFields: []string{"url", "domain", "message"},
	}, func(event *Event) error {
		domain := eventDomain(event)
		if domain == "" {
			return nil
		}
		domain_events[domain] = append(domain_events[domain], event)
		return nil
	})
	if err != nil {
		return "", err
	}

	if len(domain_events) == 0 {
		return "No domains to analyze", nil
	}

	counts := []float64{}
	tld_set := make(map[string]bool)
	for domain, events := range domain_events {
		counts = append(counts, float64(len(events)))
		tld_set[GetTLD(domain)] = true
	}
	sort.Float64s(counts)

	common_threshold := tabular.Percentile(counts, 0.85)
	rare_threshold := tabular.Percentile(counts, 0.20)

	cdn_count := 0
	for domain, events := range domain_events {
		count := float64(len(events))
		tld := GetTLD(domain)

		tags := []string{}
		if count >= common_threshold {
			tags = append(tags, "common_domain")
		}
		if count <= rare_threshold {
			tags = append(tags, "rare_domain")
		}

		provider := cdnProvider(domain)
		if provider != "" {
			tags = append(tags, "known-cdn")
			cdn_count++
		}

		for _, event := range events {
			event.AddAttributes(ordereddict.NewDict().
				Set("domain", domain).
				Set("tld", tld).
				Set("domain_count", len(events)))
			if provider != "" {
				event.AddAttributes(ordereddict.NewDict().
					Set("cdn_provider", provider))
			}
			event.AddTags(tags)
			err := event.Commit()
			if err != nil {
				return "", err
			}
		}
	}

	sketch := runtime.GetSketch()
	_, err = sketch.AddView("Domains", "domain:*", "", "")
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(
		"%d domains discovered (%d TLDs) and %d known CDN networks found.",
		len(domain_events), len(tld_set), cdn_count), nil
}

func init() {
	MustRegister(&DomainSketchPlugin{})
}
